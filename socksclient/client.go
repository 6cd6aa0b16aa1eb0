package socksclient

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http/httputil"
	"strconv"
	"time"

	"github.com/die-net/socks-proxy/internal/relay"
)

// receivePool supplies the scratch buffer each blocking Read into the
// receive buffer uses, the same sync.Pool idiom the relay package applies
// to its own copy buffers.
var receivePool httputil.BufferPool = relay.NewBufferPool(4096)

// OutcomeKind distinguishes the three observable terminal (or semi-terminal,
// for Bound) notices a SocksClient can produce.
type OutcomeKind int

const (
	KindError OutcomeKind = iota
	KindBound
	KindEstablished
)

// Outcome is one message on the channel returned by SocksClient.Dial. A
// CONNECT or ASSOCIATE handshake produces exactly one Outcome (Established
// or Error) before the channel closes. A BIND handshake produces either a
// single Error Outcome, or a Bound Outcome followed by an Established or an
// Error Outcome.
type Outcome struct {
	Kind       OutcomeKind
	Stream     net.Conn         // set for Bound and Established
	RemoteHost *SocksRemoteHost // set for Bound, ASSOCIATE's Established, and BIND's second Established
	Err        *Error           // set for Error
}

// SocksClient drives a single SOCKS4/4a/5 handshake to completion. It is not
// safe for concurrent use — create one per handshake attempt.
type SocksClient struct {
	opts Options

	state     SocksClientState
	buf       ReceiveBuffer
	watermark int
	conn      net.Conn
}

// New creates a SocksClient for the given options. Call Dial to run it.
func New(opts Options) *SocksClient {
	return &SocksClient{opts: opts, state: StateCreated}
}

// State returns the handshake's current state. Once it reports StateError,
// it will never report anything else for this instance.
func (c *SocksClient) State() SocksClientState {
	return c.state
}

// Dial runs the handshake to completion, returning a channel that carries
// its terminal notice(s) (see Outcome). The channel is closed after the last
// notice is sent, so callers may range over it.
//
// Dial adopts opts.ExistingStream if set, otherwise dials the proxy
// directly. A single coarse timeout governs everything from the dial (or
// stream adoption) through the last handshake byte; it is lifted once the
// stream reaches StateEstablished or StateBoundWaitingForConnection.
func (c *SocksClient) Dial(ctx context.Context) <-chan Outcome {
	out := make(chan Outcome, 2)
	go c.run(ctx, out)
	return out
}

func (c *SocksClient) run(ctx context.Context, out chan<- Outcome) {
	defer close(out)

	c.state = StateConnecting
	deadline := time.Now().Add(c.opts.timeout())
	conn, err := c.obtainConn(ctx, deadline)
	if err != nil {
		c.fail(out, err)
		return
	}
	c.conn = conn

	_ = conn.SetDeadline(deadline)

	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	c.state = StateConnected
	if err := c.sendInitialHandshake(); err != nil {
		c.fail(out, err)
		return
	}
	c.state = StateSentInitialHandshake

	for {
		if err := c.fillTo(c.watermark); err != nil {
			c.fail(out, err)
			return
		}

		done, err := c.step(out)
		if err != nil {
			c.fail(out, err)
			return
		}
		if done {
			return
		}
		// Loop: the buffer may already hold the next response if the proxy
		// coalesced writes, so we try to parse again before blocking on Read.
	}
}

func (c *SocksClient) obtainConn(ctx context.Context, deadline time.Time) (net.Conn, error) {
	if c.opts.ExistingStream != nil {
		return c.opts.ExistingStream, nil
	}

	addr := net.JoinHostPort(c.opts.Proxy.Host, strconv.Itoa(c.opts.Proxy.Port))
	d := net.Dialer{Deadline: deadline}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, classifyReadError(err, c.opts.Proxy, c.opts.Command)
	}

	if c.opts.SetNoDelay {
		if tc, ok := conn.(*net.TCPConn); ok {
			_ = tc.SetNoDelay(true)
		}
	}
	return conn, nil
}

func (c *SocksClient) sendInitialHandshake() error {
	if c.opts.Proxy.Type == 4 {
		if err := c.write(buildSocks4Request(c.opts.Command, c.opts.Destination, c.opts.Proxy.UserID)); err != nil {
			return err
		}
		c.watermark = socks4ResponseSize
		return nil
	}

	if err := c.write(buildMethodSelection(c.opts.Proxy)); err != nil {
		return err
	}
	c.watermark = methodSelectionResponseSize
	return nil
}

func (c *SocksClient) write(b []byte) error {
	if _, err := c.conn.Write(b); err != nil {
		return newError(ErrTransport, c.opts.Proxy, c.opts.Command, err)
	}
	return nil
}

// fillTo blocks (respecting the armed deadline and ctx-driven close) until
// the receive buffer holds at least need bytes.
func (c *SocksClient) fillTo(need int) error {
	tmp := receivePool.Get()
	defer receivePool.Put(tmp)
	for c.buf.Len() < need {
		n, err := c.conn.Read(tmp)
		if n > 0 {
			c.buf.Append(tmp[:n])
		}
		if err != nil {
			if c.buf.Len() >= need {
				return nil
			}
			return classifyReadError(err, c.opts.Proxy, c.opts.Command)
		}
	}
	return nil
}

func classifyReadError(err error, proxy SocksProxy, cmd Command) error {
	if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
		return newError(ErrSocketClosed, proxy, cmd, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return newError(ErrProxyTimeout, proxy, cmd, err)
	}
	return newError(ErrTransport, proxy, cmd, err)
}

// step dispatches on the current state, consuming exactly the bytes one
// parse step needs. It returns done=true once the handshake has reached
// StateEstablished (the loop in run should stop calling it).
func (c *SocksClient) step(out chan<- Outcome) (done bool, err error) {
	switch c.state {
	case StateSentInitialHandshake:
		if c.opts.Proxy.Type == 4 {
			return c.stepSocks4Response(out)
		}
		return c.stepMethodSelection()
	case StateSentAuthentication:
		return c.stepUserPassResponse()
	case StateSentFinalHandshake:
		return c.stepCommandResponse(out)
	case StateBoundWaitingForConnection:
		if c.opts.Proxy.Type == 4 {
			return c.stepSocks4BoundSecond(out)
		}
		return c.stepCommandResponse(out)
	default:
		return false, newError(ErrInternal, c.opts.Proxy, c.opts.Command, nil)
	}
}

func (c *SocksClient) stepSocks4Response(out chan<- Outcome) (bool, error) {
	granted, remote, err := parseSocks4Response(c.buf.Get(socks4ResponseSize), c.opts.Proxy)
	if !granted {
		return false, rejectionToError(err, ErrProxyRejected, c.opts.Proxy, c.opts.Command)
	}
	return c.establishOrBind(out, remote)
}

func (c *SocksClient) stepSocks4BoundSecond(out chan<- Outcome) (bool, error) {
	granted, remote, err := parseSocks4Response(c.buf.Get(socks4ResponseSize), c.opts.Proxy)
	if !granted {
		return false, rejectionToError(err, ErrBoundConnectionRejected, c.opts.Proxy, c.opts.Command)
	}
	c.state = StateEstablished
	_ = c.conn.SetDeadline(time.Time{})
	out <- Outcome{Kind: KindEstablished, Stream: c.finalStream(), RemoteHost: &remote}
	return true, nil
}

func (c *SocksClient) stepMethodSelection() (bool, error) {
	method, err := parseMethodSelection(c.buf.Get(methodSelectionResponseSize), c.opts.Proxy)
	if err != nil {
		return false, err
	}

	if method == methodUserPass {
		if err := c.write(buildUserPassRequest(c.opts.Proxy.UserID, c.opts.Proxy.Password)); err != nil {
			return false, err
		}
		c.state = StateSentAuthentication
		c.watermark = userPassResponseSize
		return false, nil
	}

	return false, c.sendFinalHandshake()
}

func (c *SocksClient) stepUserPassResponse() (bool, error) {
	if err := parseUserPassResponse(c.buf.Get(userPassResponseSize), c.opts.Proxy); err != nil {
		return false, err
	}
	c.state = StateReceivedAuthenticationResponse
	return false, c.sendFinalHandshake()
}

func (c *SocksClient) sendFinalHandshake() error {
	if err := c.write(buildCommandRequest(c.opts.Command, c.opts.Destination)); err != nil {
		return err
	}
	c.state = StateSentFinalHandshake
	c.watermark = commandResponseMinimumPeekBytes
	return nil
}

func (c *SocksClient) stepCommandResponse(out chan<- Outcome) (bool, error) {
	peek := c.buf.Peek(commandResponseMinimumPeekBytes)
	if peek[0] != socks5Version {
		return false, newError(ErrVersionMismatch, c.opts.Proxy, c.opts.Command, nil)
	}

	total, ok := commandResponseRequiredLength(peek)
	if !ok {
		return false, newError(ErrInternal, c.opts.Proxy, c.opts.Command, nil)
	}
	if c.buf.Len() < total {
		c.watermark = total
		return false, nil
	}

	remote, err := parseCommandResponse(c.buf.Get(total), c.opts.Proxy)
	if err != nil {
		kind := ErrProxyRejected
		if c.state == StateBoundWaitingForConnection {
			kind = ErrBoundConnectionRejected
		}
		return false, rejectionToError(err, kind, c.opts.Proxy, c.opts.Command)
	}

	if c.state == StateBoundWaitingForConnection {
		c.state = StateEstablished
		_ = c.conn.SetDeadline(time.Time{})
		out <- Outcome{Kind: KindEstablished, Stream: c.finalStream(), RemoteHost: &remote}
		return true, nil
	}

	return c.establishOrBind(out, remote)
}

// establishOrBind dispatches the first successful command/request response
// by command: CONNECT and ASSOCIATE finish the handshake; BIND surfaces the
// Bound notice and keeps parsing for the inbound-connection response.
func (c *SocksClient) establishOrBind(out chan<- Outcome, remote SocksRemoteHost) (bool, error) {
	switch c.opts.Command {
	case CmdBind:
		c.state = StateBoundWaitingForConnection
		_ = c.conn.SetDeadline(time.Time{})
		if c.opts.Proxy.Type == 4 {
			c.watermark = socks4ResponseSize
		} else {
			c.watermark = commandResponseMinimumPeekBytes
		}
		out <- Outcome{Kind: KindBound, Stream: c.conn, RemoteHost: &remote}
		return false, nil
	case CmdAssociate:
		c.state = StateEstablished
		_ = c.conn.SetDeadline(time.Time{})
		out <- Outcome{Kind: KindEstablished, Stream: c.finalStream(), RemoteHost: &remote}
		return true, nil
	default: // CmdConnect
		c.state = StateEstablished
		_ = c.conn.SetDeadline(time.Time{})
		out <- Outcome{Kind: KindEstablished, Stream: c.finalStream()}
		return true, nil
	}
}

// finalStream wraps c.conn so any bytes already buffered past the last
// parsed response are delivered to the caller's first Read, ahead of
// anything subsequently read from the transport. This is the direct
// equivalent of "flush residual bytes before resuming the stream" without
// needing a deferred resume: the wrapper just serves them first.
func (c *SocksClient) finalStream() net.Conn {
	if c.buf.Len() == 0 {
		return c.conn
	}
	return &prefixConn{Conn: c.conn, prefix: c.buf.Get(c.buf.Len())}
}

func (c *SocksClient) fail(out chan<- Outcome, err error) {
	c.state = StateError

	var serr *Error
	if !errors.As(err, &serr) {
		serr = newError(ErrInternal, c.opts.Proxy, c.opts.Command, err)
	}

	if c.conn != nil {
		_ = c.conn.Close()
	}
	out <- Outcome{Kind: KindError, Err: serr}
}

func rejectionToError(cause error, kind ErrorKind, proxy SocksProxy, cmd Command) error {
	var rej rejection
	if errors.As(cause, &rej) {
		return newError(kind, proxy, cmd, rej)
	}
	return cause
}

// prefixConn serves buffered prefix bytes before falling through to the
// wrapped net.Conn's own Read.
type prefixConn struct {
	net.Conn
	prefix []byte
}

func (p *prefixConn) Read(b []byte) (int, error) {
	if len(p.prefix) > 0 {
		n := copy(b, p.prefix)
		p.prefix = p.prefix[n:]
		return n, nil
	}
	return p.Conn.Read(b)
}

// Dial is a convenience wrapper for a CONNECT-only handshake: it blocks for
// the single Outcome a CONNECT produces and returns it as a plain
// (net.Conn, error) pair.
func Dial(ctx context.Context, opts Options) (net.Conn, error) {
	opts.Command = CmdConnect
	outcome := <-New(opts).Dial(ctx)
	if outcome.Kind == KindError {
		return nil, outcome.Err
	}
	return outcome.Stream, nil
}
