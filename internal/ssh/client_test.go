package ssh

import (
	"context"
	"net"
	"testing"
	"time"

	"golang.org/x/crypto/ssh"
)

func TestNewClientAuthenticatesWithPassword(t *testing.T) {
	t.Parallel()

	hostKey := mustGenerateKey(t)
	srv, err := NewServer("127.0.0.1:0", ServerConfig{
		PasswordCallback: SimplePasswordAuth("user", "pass"),
		HostKeys:         []ssh.Signer{hostKey},
	})
	if err != nil {
		t.Fatal(err)
	}
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	go func() { _ = srv.Serve(ctx) }()

	nd := &net.Dialer{}
	conn, err := nd.DialContext(ctx, "tcp", srv.Addr().String())
	if err != nil {
		t.Fatal(err)
	}

	client, err := NewClient(conn, ClientConfig{
		Username:        "user",
		Password:        "pass",
		HostKeyCallback: ssh.InsecureIgnoreHostKey(), //nolint:gosec // Test server has random host key.
		Timeout:         2 * time.Second,
	}, srv.Addr().String())
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	defer client.Close()
}

func TestNewClientWrongPasswordFails(t *testing.T) {
	t.Parallel()

	hostKey := mustGenerateKey(t)
	srv, err := NewServer("127.0.0.1:0", ServerConfig{
		PasswordCallback: SimplePasswordAuth("user", "pass"),
		HostKeys:         []ssh.Signer{hostKey},
	})
	if err != nil {
		t.Fatal(err)
	}
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	go func() { _ = srv.Serve(ctx) }()

	nd := &net.Dialer{}
	conn, err := nd.DialContext(ctx, "tcp", srv.Addr().String())
	if err != nil {
		t.Fatal(err)
	}

	_, err = NewClient(conn, ClientConfig{
		Username:        "user",
		Password:        "wrong",
		HostKeyCallback: ssh.InsecureIgnoreHostKey(), //nolint:gosec // Test server has random host key.
		Timeout:         2 * time.Second,
	}, srv.Addr().String())
	if err == nil {
		t.Fatal("expected authentication failure")
	}
}

func TestNewClientClosesConnOnHandshakeFailure(t *testing.T) {
	t.Parallel()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()

	go func() {
		c, err := ln.Accept()
		if err != nil {
			return
		}
		defer c.Close()
		// Never speaks SSH; the handshake read will fail/timeout.
		<-time.After(2 * time.Second)
	}()

	conn, err := net.Dial("tcp", ln.Addr().String())
	if err != nil {
		t.Fatal(err)
	}

	_, err = NewClient(conn, ClientConfig{
		Username:         "user",
		Password:         "pass",
		HostKeyCallback:  ssh.InsecureIgnoreHostKey(), //nolint:gosec // No real server involved.
		HandshakeTimeout: 50 * time.Millisecond,
	}, ln.Addr().String())
	if err == nil {
		t.Fatal("expected handshake timeout error")
	}

	// NewClient must have closed conn on failure.
	if _, err := conn.Write([]byte("x")); err == nil {
		t.Fatal("expected conn to be closed after a failed handshake")
	}
}
