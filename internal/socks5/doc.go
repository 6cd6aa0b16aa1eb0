package socks5

// Package socks5 provides a small, shared SOCKS5 server-side handshake
// implementation: method negotiation, request parsing, and reply writing.
//
// It wraps the low-level protocol types in github.com/txthinking/socks5 to
// keep this behavior in one place. The only caller in this repository is
// internal/socksfixture, which plays the proxy side of a handshake for
// socksclient's own tests.
//
// This package is not intended to be a full SOCKS5 server/client implementation;
// it is a thin layer around the library primitives with this repository's
// own defaults and error handling.
