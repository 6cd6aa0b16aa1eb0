// Package ssh wraps golang.org/x/crypto/ssh with this repository's own
// client handshake, server handshake, authentication, and known_hosts
// helpers for tunneling TCP connections over "direct-tcpip" channels.
//
// [NewClient] performs one SSH handshake over a caller-supplied net.Conn and
// returns a *ssh.Client ready to open channels via DialContext; it does not
// manage reconnection or pooling itself — internal/transport's SSH provider
// is what keeps a shared client alive across repeated dials and reconnects
// it after a failure. [NewServer] is the server-side counterpart, accepting
// SSH connections and serving "direct-tcpip" requests by dialing out with a
// configurable dialer.
//
// Features:
//   - Multiple auth methods: password, private key files, SSH agent
//   - Host key verification: known_hosts with trust-on-first-use (TOFU)
//
// Example usage:
//
//	signers, _ := ssh.LoadSigners("agent")
//	hostKeyCallback, _ := ssh.NewHostKeyCallback("~/.ssh/known_hosts")
//
//	conn, _ := net.Dial("tcp", "ssh.example.com:22")
//	client, err := ssh.NewClient(conn, ssh.ClientConfig{
//	    Username:        "user",
//	    Signers:         signers,
//	    HostKeyCallback: hostKeyCallback,
//	}, "ssh.example.com:22")
//
//	tunneled, err := client.DialContext(ctx, "tcp", "internal.example.com:80")
package ssh
