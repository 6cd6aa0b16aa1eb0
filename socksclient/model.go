package socksclient

import (
	"net"
	"time"
)

// Conn is the duplex byte stream a SocksClient negotiates over. It is
// exactly net.Conn; SocksClient never requires anything net.Conn doesn't
// already provide, and accepts any net.Conn as ExistingStream or as the
// result of a successful handshake.
type Conn = net.Conn

// Command is a SOCKS command code.
type Command byte

const (
	CmdConnect   Command = 0x01
	CmdBind      Command = 0x02
	CmdAssociate Command = 0x03
)

// addressType is the SOCKS5 ATYP byte (and, for SOCKS4a classification
// purposes, an internal stand-in for "this is a hostname").
type addressType byte

const (
	atypIPv4     addressType = 0x01
	atypHostname addressType = 0x03
	atypIPv6     addressType = 0x04
)

// SOCKS5 method selection values (RFC 1928 §3).
const (
	methodNoAuth     byte = 0x00
	methodUserPass   byte = 0x02
	methodNoAccepted byte = 0xFF
)

// SocksProxy describes a single proxy hop.
type SocksProxy struct {
	Host string // IPv4/IPv6 literal or hostname
	Port int    // 1-65535

	// Type selects the protocol version spoken to this proxy: 4 or 5.
	Type int

	UserID   string // SOCKS4 userid / SOCKS5 username
	Password string // SOCKS5 password (ignored for SOCKS4)

	// IPAddress is substituted for a bound address of literal 0.0.0.0
	// reported by this proxy. Some proxies report the wildcard address
	// rather than their routable one.
	IPAddress string
}

// SocksRemoteHost is a destination or bound address: a literal or hostname
// plus a port.
type SocksRemoteHost struct {
	Host string
	Port int
}

// SocksClientState names a position in the handshake state machine. It is a
// closed set of values; once a SocksClient reaches StateError it can never
// observe any other state again.
type SocksClientState int

const (
	StateCreated SocksClientState = iota
	StateConnecting
	StateConnected
	StateSentInitialHandshake
	StateSentAuthentication
	StateReceivedAuthenticationResponse
	StateSentFinalHandshake
	StateReceivedFinalResponse
	StateBoundWaitingForConnection
	StateEstablished
	StateError
)

func (s SocksClientState) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateSentInitialHandshake:
		return "sent initial handshake"
	case StateSentAuthentication:
		return "sent authentication"
	case StateReceivedAuthenticationResponse:
		return "received authentication response"
	case StateSentFinalHandshake:
		return "sent final handshake"
	case StateReceivedFinalResponse:
		return "received final response"
	case StateBoundWaitingForConnection:
		return "bound, waiting for connection"
	case StateEstablished:
		return "established"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// Options configures a SocksClient.
type Options struct {
	Proxy       SocksProxy
	Destination SocksRemoteHost
	Command     Command

	// Timeout bounds the entire handshake, from Connect to a terminal
	// Established/Bound/Error transition. Zero selects DefaultTimeout.
	Timeout time.Duration

	// ExistingStream, if set, is already connected to Proxy and is adopted
	// as-is instead of dialing proxy.Host:proxy.Port directly. This is how
	// a chained hop, or an alternate transport (HTTP CONNECT, SSH channel),
	// is threaded into the handshake.
	ExistingStream Conn

	// SetNoDelay requests TCP_NODELAY on freshly dialed connections. It has
	// no effect when ExistingStream is set.
	SetNoDelay bool
}

// DefaultTimeout is used when Options.Timeout is zero.
const DefaultTimeout = 30 * time.Second

func (o Options) timeout() time.Duration {
	if o.Timeout > 0 {
		return o.Timeout
	}
	return DefaultTimeout
}
