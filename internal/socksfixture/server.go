// Package socksfixture is a minimal SOCKS4/SOCKS4a/SOCKS5 proxy server used
// only by socksclient's own tests to play the proxy side of a handshake.
// It is not part of this repository's public surface and implements just
// enough of the wire protocol to drive CONNECT, BIND, and UDP ASSOCIATE
// against a real TCP/UDP listener — there is no policy here beyond "forward
// to whatever address the client asked for".
package socksfixture

import (
	"bufio"
	"context"
	"encoding/binary"
	"io"
	"net"
	"strconv"

	txsocks5 "github.com/txthinking/socks5"

	"github.com/die-net/socks-proxy/internal/relay"
	"github.com/die-net/socks-proxy/internal/socks5"
	"github.com/die-net/socks-proxy/socksclient"
)

// Auth configures the optional username/password this fixture requires for
// SOCKS5 (SOCKS4 has no equivalent and is always accepted regardless of
// USERID). An empty Auth accepts SOCKS5's No-Auth method only.
type Auth = socks5.Auth

// Server accepts SOCKS4/4a/5 connections and forwards CONNECT, BIND, and
// ASSOCIATE requests with net.Dial/net.ListenPacket — no routing policy, no
// access control beyond the configured Auth.
type Server struct {
	Auth Auth
}

// Serve accepts connections from ln until it errors (typically because ln
// was closed), handling each on its own goroutine.
func (s *Server) Serve(ln net.Listener) error {
	for {
		c, err := ln.Accept()
		if err != nil {
			return err
		}
		go s.handle(c)
	}
}

// bufferedConn lets the version-sniffing Peek in handle share a single
// buffer with whatever handler takes over, instead of losing whatever extra
// bytes bufio pulled off the wire.
type bufferedConn struct {
	net.Conn
	r *bufio.Reader
}

func (c *bufferedConn) Read(p []byte) (int, error) { return c.r.Read(p) }

func (s *Server) handle(conn net.Conn) {
	defer conn.Close()

	br := bufio.NewReader(conn)
	ver, err := br.Peek(1)
	if err != nil {
		return
	}
	bc := &bufferedConn{Conn: conn, r: br}

	switch ver[0] {
	case 0x04:
		s.handleSocks4(bc)
	case 0x05:
		s.handleSocks5(bc)
	}
}

// --- SOCKS5 ---

func (s *Server) handleSocks5(conn net.Conn) {
	if err := socks5.ServerNegotiate(conn, s.Auth); err != nil {
		return
	}

	req, err := socks5.ServerReadRequest(conn)
	if err != nil {
		return
	}

	switch req.Cmd {
	case txsocks5.CmdConnect:
		s.serve5Connect(conn, req)
	case txsocks5.CmdBind:
		s.serve5Bind(conn, req)
	case txsocks5.CmdUDP:
		s.serve5Associate(conn, req)
	default:
		socks5.WriteCommandNotSupportedReply(conn, req.Atyp)
	}
}

func (s *Server) serve5Connect(conn net.Conn, req *txsocks5.Request) {
	up, err := net.Dial("tcp", req.Address())
	if err != nil {
		socks5.WriteConnectionRefusedReply(conn, req.Atyp)
		return
	}
	defer up.Close()

	if err := socks5.WriteSuccessReply(conn, up.LocalAddr()); err != nil {
		return
	}

	_ = relay.CopyBidirectional(context.Background(), conn, up, 0)
}

func (s *Server) serve5Bind(conn net.Conn, req *txsocks5.Request) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		socks5.WriteConnectionRefusedReply(conn, req.Atyp)
		return
	}
	defer ln.Close()

	if err := socks5.WriteSuccessReply(conn, ln.Addr()); err != nil {
		return
	}

	peer, err := ln.Accept()
	if err != nil {
		return
	}
	defer peer.Close()

	if err := socks5.WriteSuccessReply(conn, peer.RemoteAddr()); err != nil {
		return
	}

	_ = relay.CopyBidirectional(context.Background(), conn, peer, 0)
}

func (s *Server) serve5Associate(conn net.Conn, req *txsocks5.Request) {
	_ = req
	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		socks5.WriteConnectionRefusedReply(conn, req.Atyp)
		return
	}
	defer pc.Close()

	if err := socks5.WriteSuccessReply(conn, pc.LocalAddr()); err != nil {
		return
	}

	// Relay UDP frames between the first client that talks to us and
	// whatever destination each frame names, until the TCP control
	// connection closes (RFC 1928 §7 ties ASSOCIATE's lifetime to it).
	done := make(chan struct{})
	go func() {
		defer close(done)
		buf := make([]byte, 65535)
		var clientAddr net.Addr
		for {
			n, addr, err := pc.ReadFrom(buf)
			if err != nil {
				return
			}
			frame, err := socksclient.DecodeUDPFrame(buf[:n])
			if err != nil {
				continue
			}
			if clientAddr == nil {
				clientAddr = addr
			}
			if addr.String() == clientAddr.String() {
				upAddr, err := net.ResolveUDPAddr("udp", net.JoinHostPort(frame.RemoteHost.Host, strconv.Itoa(frame.RemoteHost.Port)))
				if err != nil {
					continue
				}
				_, _ = pc.WriteTo(frame.Data, upAddr)
				continue
			}

			host, portStr, err := net.SplitHostPort(addr.String())
			if err != nil {
				continue
			}
			port, err := strconv.Atoi(portStr)
			if err != nil {
				continue
			}
			reply := socksclient.EncodeUDPFrame(socksclient.UDPFrame{
				RemoteHost: socksclient.SocksRemoteHost{Host: host, Port: port},
				Data:       buf[:n],
			})
			_, _ = pc.WriteTo(reply, clientAddr)
		}
	}()

	buf := make([]byte, 1)
	_, _ = conn.Read(buf) // blocks until the control connection closes
	_ = pc.Close()
	<-done
}

// --- SOCKS4 / SOCKS4a ---

func (s *Server) handleSocks4(conn net.Conn) {
	hdr := make([]byte, 8)
	if _, err := io.ReadFull(conn, hdr); err != nil {
		return
	}
	cmd := hdr[1]
	port := binary.BigEndian.Uint16(hdr[2:4])
	ip := net.IP(hdr[4:8])

	if err := skipNullTerminated(conn); err != nil { // USERID
		return
	}

	host := ip.String()
	if ip[0] == 0 && ip[1] == 0 && ip[2] == 0 && ip[3] != 0 {
		name, err := readNullTerminated(conn) // SOCKS4a DSTNAME
		if err != nil {
			return
		}
		host = string(name)
	}

	dst := net.JoinHostPort(host, strconv.Itoa(int(port)))

	switch cmd {
	case 0x01: // CONNECT
		up, err := net.Dial("tcp", dst)
		if err != nil {
			writeSocks4Reply(conn, 0x5B, nil)
			return
		}
		defer up.Close()
		writeSocks4Reply(conn, 0x5A, up.LocalAddr())
		_ = relay.CopyBidirectional(context.Background(), conn, up, 0)
	case 0x02: // BIND
		ln, err := net.Listen("tcp", "127.0.0.1:0")
		if err != nil {
			writeSocks4Reply(conn, 0x5B, nil)
			return
		}
		defer ln.Close()
		writeSocks4Reply(conn, 0x5A, ln.Addr())

		peer, err := ln.Accept()
		if err != nil {
			return
		}
		defer peer.Close()
		writeSocks4Reply(conn, 0x5A, peer.RemoteAddr())
		_ = relay.CopyBidirectional(context.Background(), conn, peer, 0)
	default:
		writeSocks4Reply(conn, 0x5B, nil)
	}
}

func readNullTerminated(r io.Reader) ([]byte, error) {
	var out []byte
	b := make([]byte, 1)
	for {
		if _, err := io.ReadFull(r, b); err != nil {
			return nil, err
		}
		if b[0] == 0x00 {
			return out, nil
		}
		out = append(out, b[0])
	}
}

func skipNullTerminated(r io.Reader) error {
	_, err := readNullTerminated(r)
	return err
}

func writeSocks4Reply(w io.Writer, code byte, addr net.Addr) {
	reply := make([]byte, 8)
	reply[0] = 0x00
	reply[1] = code
	if ta, ok := addr.(*net.TCPAddr); ok {
		binary.BigEndian.PutUint16(reply[2:4], uint16(ta.Port))
		if v4 := ta.IP.To4(); v4 != nil {
			copy(reply[4:8], v4)
		}
	}
	_, _ = w.Write(reply)
}
