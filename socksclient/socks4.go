package socksclient

import (
	"encoding/binary"
	"net"
)

const socks4ResponseSize = 8

const socks4ReplyGranted = 0x5A

// buildSocks4Request frames a SOCKS4/SOCKS4a CONNECT or BIND request.
//
// Layout: VN(0x04) CD DSTPORT(2) DSTIP(4) USERID NULL [DSTNAME NULL]
//
// If dest.Host is an IPv4 literal, DSTIP carries it directly (plain SOCKS4).
// Otherwise DSTIP is the "invalid but nonzero" 0.0.0.1 placeholder and, after
// the USERID terminator, the hostname and its own NULL terminator are
// appended (SOCKS4a).
func buildSocks4Request(cmd Command, dest SocksRemoteHost, userID string) []byte {
	req := make([]byte, 0, 9+len(userID)+len(dest.Host))
	req = append(req, 0x04, byte(cmd))
	req = appendPort(req, dest.Port)

	if ip := net.ParseIP(dest.Host); ip != nil {
		if v4 := ip.To4(); v4 != nil {
			req = append(req, v4...)
			req = append(req, userID...)
			req = append(req, 0x00)
			return req
		}
	}

	// SOCKS4a: DSTIP is nonzero in its last octet to signal "resolve
	// DSTNAME", per the SOCKS4a convention.
	req = append(req, 0x00, 0x00, 0x00, 0x01)
	req = append(req, userID...)
	req = append(req, 0x00)
	req = append(req, dest.Host...)
	req = append(req, 0x00)
	return req
}

// parseSocks4Response decodes an 8-byte SOCKS4 response: VN REP DSTPORT(2)
// DSTIP(4). VN is ignored (some servers answer with 0, the spec'd reply
// version; others echo 4).
func parseSocks4Response(buf []byte, proxy SocksProxy) (granted bool, remote SocksRemoteHost, err error) {
	if len(buf) != socks4ResponseSize {
		return false, SocksRemoteHost{}, newError(ErrInternal, proxy, 0, nil)
	}

	rep := buf[1]
	port := int(binary.BigEndian.Uint16(buf[2:4]))
	host := net.IP(buf[4:8]).String()
	host = substituteWildcard(host, proxy.IPAddress)
	remote = SocksRemoteHost{Host: host, Port: port}

	if rep != socks4ReplyGranted {
		return false, remote, rejection{code: rep}
	}
	return true, remote, nil
}
