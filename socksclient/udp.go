package socksclient

import (
	"encoding/binary"
	"fmt"
	"net"
	"net/http/httputil"

	"github.com/die-net/socks-proxy/internal/relay"
)

// udpScratchPool supplies the scratch buffer ReadFrom decodes each relay
// datagram into, sized for the largest UDP frame header plus a generous
// payload; ReadFrom falls back to a one-off allocation for anything larger.
var udpScratchPool httputil.BufferPool = relay.NewBufferPool(65807)

// UDPFrame is a single SOCKS5 UDP relay datagram (RFC 1928 §7): a small
// header identifying the ultimate source/destination, followed by the
// opaque payload.
type UDPFrame struct {
	FrameNumber byte // fragment number; 0 for an unfragmented datagram
	RemoteHost  SocksRemoteHost
	Data        []byte
}

// EncodeUDPFrame serializes f into the wire format a SOCKS5 UDP relay
// expects: 2 reserved bytes, fragment number, ATYP, address, port, payload.
func EncodeUDPFrame(f UDPFrame) []byte {
	out := make([]byte, 0, 10+len(f.RemoteHost.Host)+len(f.Data))
	out = append(out, 0x00, 0x00, f.FrameNumber)
	out = appendAddress(out, f.RemoteHost.Host)
	out = appendPort(out, f.RemoteHost.Port)
	out = append(out, f.Data...)
	return out
}

// DecodeUDPFrame parses the wire format produced by EncodeUDPFrame. It skips
// the two reserved bytes, reads the fragment number and address, and treats
// everything after the port as payload.
func DecodeUDPFrame(b []byte) (UDPFrame, error) {
	if len(b) < 4 {
		return UDPFrame{}, fmt.Errorf("socksclient: udp frame too short: %d bytes", len(b))
	}

	frag := b[2]
	atyp := addressType(b[3])

	var addrBody []byte
	var portOffset int
	switch atyp {
	case atypIPv4:
		if len(b) < 10 {
			return UDPFrame{}, fmt.Errorf("socksclient: udp frame truncated ipv4 header")
		}
		addrBody, portOffset = b[4:8], 8
	case atypIPv6:
		if len(b) < 22 {
			return UDPFrame{}, fmt.Errorf("socksclient: udp frame truncated ipv6 header")
		}
		addrBody, portOffset = b[4:20], 20
	case atypHostname:
		if len(b) < 5 {
			return UDPFrame{}, fmt.Errorf("socksclient: udp frame missing hostname length")
		}
		l := int(b[4])
		if len(b) < 5+l+2 {
			return UDPFrame{}, fmt.Errorf("socksclient: udp frame truncated hostname header")
		}
		addrBody, portOffset = b[5:5+l], 5+l
	default:
		return UDPFrame{}, fmt.Errorf("socksclient: udp frame unknown address type 0x%02x", b[3])
	}

	port := int(binary.BigEndian.Uint16(b[portOffset : portOffset+2]))
	data := b[portOffset+2:]
	payload := make([]byte, len(data))
	copy(payload, data)

	return UDPFrame{
		FrameNumber: frag,
		RemoteHost:  SocksRemoteHost{Host: decodeAddress(atyp, addrBody), Port: port},
		Data:        payload,
	}, nil
}

// udpRelayConn wraps a net.PacketConn bound to the relay address an
// ASSOCIATE reply returned, encoding/decoding the SOCKS5 UDP frame header
// around each datagram. It does not implement any datagram routing policy
// beyond that framing, per spec's scope note that UDP routing itself is an
// external concern.
type udpRelayConn struct {
	net.PacketConn
	relayAddr net.Addr
	dest      SocksRemoteHost
}

// NewUDPAssociateConn wraps pc (already connected, or default-destined, to
// relayAddr — the BND address/port an ASSOCIATE reply carried) so that
// ReadFrom/WriteTo operate on decoded/encoded UDP frame payloads addressed
// to dest, instead of raw relay-framed bytes.
func NewUDPAssociateConn(pc net.PacketConn, relayAddr net.Addr, dest SocksRemoteHost) net.PacketConn {
	return &udpRelayConn{PacketConn: pc, relayAddr: relayAddr, dest: dest}
}

func (c *udpRelayConn) WriteTo(p []byte, _ net.Addr) (int, error) {
	frame := EncodeUDPFrame(UDPFrame{RemoteHost: c.dest, Data: p})
	if _, err := c.PacketConn.WriteTo(frame, c.relayAddr); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (c *udpRelayConn) ReadFrom(p []byte) (int, net.Addr, error) {
	need := len(p) + 262 // +max SOCKS5 UDP header size
	scratch := udpScratchPool.Get()
	defer udpScratchPool.Put(scratch)
	if need > len(scratch) {
		scratch = make([]byte, need)
	}

	n, addr, err := c.PacketConn.ReadFrom(scratch[:need])
	if err != nil {
		return 0, addr, err
	}
	frame, err := DecodeUDPFrame(scratch[:n])
	if err != nil {
		return 0, addr, err
	}
	return copy(p, frame.Data), addr, nil
}
