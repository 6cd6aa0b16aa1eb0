// Package transport supplies the net.Conn that reaches the first proxy in a
// socksclient handshake or chain. socksclient itself never dials anything
// beyond the plain TCP case it already performs internally — anything more
// exotic (an HTTP CONNECT tunnel, an SSH channel) comes from here and is
// threaded in through socksclient.Options.ExistingStream.
package transport

import (
	"context"
	"net"
	"time"
)

// Config bounds dial and negotiation timing across every provider in this
// package, the same way dialer.Config does for the teacher's outbound
// dialers.
type Config struct {
	DialTimeout        time.Duration
	NegotiationTimeout time.Duration
	KeepAlive          net.KeepAliveConfig
}

// Provider reaches a single address, possibly through an intermediate hop
// (an HTTP proxy, an SSH server) of its own.
type Provider interface {
	Dial(ctx context.Context, network, address string) (net.Conn, error)
}
