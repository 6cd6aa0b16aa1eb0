package ssh

import (
	"context"
	"net"
	"testing"
	"time"

	"golang.org/x/crypto/ssh"

	"github.com/die-net/socks-proxy/internal/testutil"
)

// mustGenerateKey generates a fresh host/client key for use in tests,
// failing the test immediately if key generation errors.
func mustGenerateKey(t *testing.T) ssh.Signer {
	t.Helper()
	key, err := generateHostKey()
	if err != nil {
		t.Fatalf("generateHostKey: %v", err)
	}
	return key
}

func TestClientServer(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	echoLn := testutil.StartEchoTCPServer(t, ctx)
	defer echoLn.Close()

	hostKey := mustGenerateKey(t)

	sshSrv, err := NewServer("127.0.0.1:0", ServerConfig{
		PasswordCallback: SimplePasswordAuth("user", "pass"),
		HostKeys:         []ssh.Signer{hostKey},
	})
	if err != nil {
		t.Fatal(err)
	}
	defer sshSrv.Close()

	go func() {
		_ = sshSrv.Serve(ctx)
	}()

	nd := &net.Dialer{}
	conn, err := nd.DialContext(ctx, "tcp", sshSrv.Addr().String())
	if err != nil {
		t.Fatal(err)
	}

	client, err := NewClient(conn, ClientConfig{
		Username:         "user",
		Password:         "pass",
		HostKeyCallback:  ssh.InsecureIgnoreHostKey(), //nolint:gosec // Test server has random host key.
		Timeout:          2 * time.Second,
		HandshakeTimeout: 2 * time.Second,
	}, sshSrv.Addr().String())
	if err != nil {
		t.Fatal(err)
	}
	defer client.Close()

	c1, err := client.DialContext(ctx, "tcp", echoLn.Addr().String())
	if err != nil {
		t.Fatal(err)
	}
	testutil.AssertEcho(t, c1, c1, []byte("hello"))
	_ = c1.Close()

	c2, err := client.DialContext(ctx, "tcp", echoLn.Addr().String())
	if err != nil {
		t.Fatal(err)
	}
	defer c2.Close()
	testutil.AssertEcho(t, c2, c2, []byte("hello2"))
}
