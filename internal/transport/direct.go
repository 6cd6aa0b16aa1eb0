package transport

import (
	"context"
	"fmt"
	"net"
)

// Direct dials a TCP connection with no intermediate hop. It is the
// transport every other provider in this package uses to reach its own
// upstream (the HTTP proxy, the SSH server).
type Direct struct {
	cfg Config
}

// NewDirect constructs a Direct provider.
func NewDirect(cfg Config) *Direct {
	return &Direct{cfg: cfg}
}

// Dial opens a TCP connection to address, applying cfg.DialTimeout and
// cfg.KeepAlive.
func (d *Direct) Dial(ctx context.Context, network, address string) (net.Conn, error) {
	nd := net.Dialer{Timeout: d.cfg.DialTimeout}

	conn, err := nd.DialContext(ctx, network, address)
	if err != nil {
		return nil, fmt.Errorf("transport: direct dial %s %s: %w", network, address, err)
	}

	if tc, ok := conn.(*net.TCPConn); ok {
		_ = tc.SetKeepAliveConfig(d.cfg.KeepAlive)
	}

	return conn, nil
}
