package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"

	"golang.org/x/crypto/ssh"
	"golang.org/x/sync/singleflight"

	internalssh "github.com/die-net/socks-proxy/internal/ssh"
)

// SSH reaches an address by opening a "direct-tcpip" channel over a shared
// SSH transport connection, the same multiplexing model a tunneling SSH
// client uses for `ssh -L`. It maintains at most one live *ssh.Client per
// instance and dials a fresh channel per Dial call. A channel open the
// server rejects is returned as an error; any other channel failure
// invalidates and reconnects the shared transport once before giving up.
type SSH struct {
	addr      string
	sshConfig internalssh.ClientConfig
	direct    Provider

	mu     sync.Mutex
	client *ssh.Client
	sf     singleflight.Group
}

// NewSSH constructs a provider that reaches addr over SSH, authenticating as
// username with password, signers (as loaded from internalssh.LoadSigners),
// or both. Host key verification follows hostKeyCallback.
func NewSSH(cfg Config, addr, username, password string, signers []ssh.Signer, hostKeyCallback ssh.HostKeyCallback) (*SSH, error) {
	if addr == "" {
		return nil, errors.New("transport: ssh: missing address")
	}
	if username == "" {
		return nil, errors.New("transport: ssh: missing username")
	}
	if password == "" && len(signers) == 0 {
		return nil, errors.New("transport: ssh: missing password or key")
	}

	return &SSH{
		addr: addr,
		sshConfig: internalssh.ClientConfig{
			Username:         username,
			Password:         password,
			Signers:          signers,
			HostKeyCallback:  hostKeyCallback,
			Timeout:          cfg.DialTimeout,
			HandshakeTimeout: cfg.NegotiationTimeout,
		},
		direct: NewDirect(cfg),
	}, nil
}

// Dial opens a new direct-tcpip channel to address over the shared SSH
// transport, establishing that transport first if needed.
func (s *SSH) Dial(ctx context.Context, network, address string) (net.Conn, error) {
	if !strings.HasPrefix(network, "tcp") {
		return nil, fmt.Errorf("transport: ssh dial %s %s: unsupported network", network, address)
	}

	client, err := s.getClient(ctx)
	if err != nil {
		return nil, err
	}

	upConn, err := client.DialContext(ctx, "tcp", address)
	if err != nil {
		var openErr *ssh.OpenChannelError
		if errors.As(err, &openErr) {
			return nil, fmt.Errorf("transport: ssh dial %s: %w", address, err)
		}

		// Transport is likely dead. Reconnect once and retry.
		s.invalidateClient()
		client, err2 := s.getClient(ctx)
		if err2 != nil {
			return nil, err
		}
		upConn, err = client.DialContext(ctx, "tcp", address)
		if err != nil {
			return nil, fmt.Errorf("transport: ssh dial %s: %w", address, err)
		}
	}

	stop := context.AfterFunc(ctx, func() { _ = upConn.Close() })
	return &sshChannelConn{Conn: upConn, stop: stop}, nil
}

func (s *SSH) getClient(ctx context.Context) (*ssh.Client, error) {
	s.mu.Lock()
	client := s.client
	s.mu.Unlock()
	if client != nil {
		return client, nil
	}

	ch := s.sf.DoChan("connect", func() (any, error) {
		s.mu.Lock()
		if s.client != nil {
			c := s.client
			s.mu.Unlock()
			return c, nil
		}
		s.mu.Unlock()

		// A background context lets the connection attempt finish for other
		// waiters even if the caller that triggered it gives up.
		newClient, err := s.dialSSH(context.Background())
		if err != nil {
			return nil, err
		}

		s.mu.Lock()
		s.client = newClient
		s.mu.Unlock()
		return newClient, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*ssh.Client), nil
	}
}

func (s *SSH) dialSSH(ctx context.Context) (*ssh.Client, error) {
	conn, err := s.direct.Dial(ctx, "tcp", s.addr)
	if err != nil {
		return nil, fmt.Errorf("transport: ssh transport dial: %w", err)
	}

	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	client, err := internalssh.NewClient(conn, s.sshConfig, s.addr)
	if err != nil {
		return nil, fmt.Errorf("transport: ssh transport: %w", err)
	}
	return client, nil
}

func (s *SSH) invalidateClient() {
	s.mu.Lock()
	client := s.client
	s.client = nil
	s.mu.Unlock()
	if client != nil {
		_ = client.Close()
	}
}

type sshChannelConn struct {
	net.Conn
	stop func() bool
}

func (c *sshChannelConn) Close() error {
	if c.stop != nil {
		c.stop()
	}
	return c.Conn.Close()
}
