package socksclient

import (
	"encoding/binary"
	"net"
)

// classifyAddress decides how host should be encoded on the wire: as an
// IPv4 literal, an IPv6 literal, or a hostname. Classification is purely by
// string parsing, exactly as real SOCKS clients must do it — the protocol
// itself carries no separate "this is a name" flag from the caller.
func classifyAddress(host string) (addressType, net.IP) {
	if ip := net.ParseIP(host); ip != nil {
		if v4 := ip.To4(); v4 != nil {
			return atypIPv4, v4
		}
		return atypIPv6, ip.To16()
	}
	return atypHostname, nil
}

// appendAddress appends the wire encoding of host (ATYP + address body, no
// port) to dst and returns the grown slice.
func appendAddress(dst []byte, host string) []byte {
	typ, ip := classifyAddress(host)
	switch typ {
	case atypIPv4:
		dst = append(dst, byte(atypIPv4))
		dst = append(dst, ip...)
	case atypIPv6:
		dst = append(dst, byte(atypIPv6))
		dst = append(dst, ip...)
	case atypHostname:
		dst = append(dst, byte(atypHostname), byte(len(host)))
		dst = append(dst, host...)
	}
	return dst
}

// appendPort appends the big-endian 16-bit encoding of port to dst.
func appendPort(dst []byte, port int) []byte {
	var b [2]byte
	binary.BigEndian.PutUint16(b[:], uint16(port))
	return append(dst, b[:]...)
}

// decodeAddress decodes an ATYP-prefixed address body (address bytes only,
// no leading ATYP byte — the caller has already branched on it) into a
// displayable host string.
func decodeAddress(typ addressType, body []byte) string {
	switch typ {
	case atypIPv4, atypIPv6:
		return net.IP(body).String()
	case atypHostname:
		return string(body)
	default:
		return ""
	}
}

// substituteWildcard replaces host with proxyIPAddress when host is the
// IPv4 (or IPv6) all-zeros wildcard, per spec: some proxies report 0.0.0.0
// rather than their routable address.
func substituteWildcard(host, proxyIPAddress string) string {
	if proxyIPAddress == "" {
		return host
	}
	if ip := net.ParseIP(host); ip != nil && ip.IsUnspecified() {
		return proxyIPAddress
	}
	return host
}
