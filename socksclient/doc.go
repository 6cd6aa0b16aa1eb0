// Package socksclient implements a SOCKS4, SOCKS4a, and SOCKS5 client
// protocol engine.
//
// It negotiates a handshake over a caller-supplied net.Conn (or one it dials
// itself) and, on success, hands back a transparent net.Conn tunneled through
// the proxy to a remote destination. CONNECT, BIND, and UDP ASSOCIATE are all
// supported, as is chaining through multiple proxies in sequence.
//
// The protocol engine is built around three pieces: a ReceiveBuffer that
// accumulates bytes with peek/consume semantics, a set of pure framer/parser
// functions per handshake message, and a SocksClient state machine that
// drives the two against an underlying stream. None of these perform
// transport I/O beyond Read/Write on the stream, apart from the plain TCP
// dial to the proxy that SocksClient makes when no ExistingStream is given.
// Destination names are passed to the proxy unresolved, and TLS is the
// caller's responsibility.
package socksclient
