package transport

import (
	"bufio"
	"context"
	"crypto/tls"
	"encoding/base64"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// HTTPConnect reaches an address by first dialing an HTTP or HTTPS proxy and
// issuing the CONNECT method, the same way a browser reaches an HTTPS site
// through a corporate proxy. It is one of the providers that can supply the
// ExistingStream for the first hop of a socksclient chain, letting that hop
// be reached through a plain HTTP proxy instead of directly.
type HTTPConnect struct {
	cfg      Config
	proxyURL *url.URL
	auth     string
	direct   Provider
}

// NewHTTPConnect constructs an HTTP CONNECT provider for proxyURL. If
// username is non-empty, Proxy-Authorization is set using HTTP Basic auth.
func NewHTTPConnect(cfg Config, proxyURL *url.URL, username, password string) (*HTTPConnect, error) {
	if proxyURL == nil {
		return nil, errors.New("transport: http connect: missing proxy url")
	}
	if proxyURL.Hostname() == "" {
		return nil, errors.New("transport: http connect: invalid proxy host")
	}
	if proxyURL.Scheme != "http" && proxyURL.Scheme != "https" {
		return nil, fmt.Errorf("transport: http connect: unsupported scheme: %q", proxyURL.Scheme)
	}

	auth := ""
	if username != "" {
		auth = "Basic " + base64.StdEncoding.EncodeToString([]byte(username+":"+password))
	}

	return &HTTPConnect{
		cfg:      cfg,
		proxyURL: proxyURL,
		auth:     auth,
		direct:   NewDirect(cfg),
	}, nil
}

// Dial establishes a TCP connection to address via the configured proxy.
// For an https:// proxy URL, a TLS handshake to the proxy precedes CONNECT.
func (h *HTTPConnect) Dial(ctx context.Context, network, address string) (net.Conn, error) {
	if !strings.HasPrefix(network, "tcp") {
		return nil, fmt.Errorf("transport: http connect dial %s %s: unsupported network", network, address)
	}

	c, err := h.direct.Dial(ctx, network, h.proxyURL.Host)
	if err != nil {
		return nil, fmt.Errorf("transport: http connect: %w", err)
	}

	if strings.EqualFold(h.proxyURL.Scheme, "https") {
		tlsConn := tls.Client(c, &tls.Config{MinVersion: tls.VersionTLS12, ServerName: h.proxyURL.Hostname()})
		if h.cfg.NegotiationTimeout > 0 {
			_ = tlsConn.SetDeadline(time.Now().Add(h.cfg.NegotiationTimeout))
		}
		if err := tlsConn.HandshakeContext(ctx); err != nil {
			_ = tlsConn.Close()
			return nil, fmt.Errorf("transport: http connect tls handshake: %w", err)
		}
		c = tlsConn
	}

	req := &http.Request{
		Method: http.MethodConnect,
		URL:    &url.URL{Opaque: address},
		Host:   address,
		Header: make(http.Header),
	}
	if h.auth != "" {
		req.Header.Set("Proxy-Authorization", h.auth)
	}

	if h.cfg.NegotiationTimeout > 0 {
		_ = c.SetDeadline(time.Now().Add(h.cfg.NegotiationTimeout))
	}

	if err := req.Write(c); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("transport: http connect write: %w", err)
	}

	br := bufio.NewReader(c)
	resp, err := http.ReadResponse(br, req)
	if err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("transport: http connect read: %w", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		_ = c.Close()
		return nil, fmt.Errorf("transport: http connect failed: %s", resp.Status)
	}

	if h.cfg.NegotiationTimeout > 0 {
		_ = c.SetDeadline(time.Time{})
	}
	return c, nil
}
