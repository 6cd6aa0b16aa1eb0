package socksclient

import (
	"context"
	"errors"
	"math/rand"
	"net"
)

// DialChain negotiates a sequence of SOCKS handshakes, each hop's stream
// becoming the transport for the next, and returns the final tunneled
// net.Conn reaching destination through the last proxy in the chain.
//
// Each intermediate hop dials proxies[i+1] using its IPAddress (the address
// the previous hop actually observed for it, which may differ from the
// Host a caller configured it under) rather than its Host field. The final
// hop's destination is destination itself.
//
// If randomizeChain is set, the whole list of proxies is shuffled before
// dialing, so any of them may become the first hop; whichever proxy ends up
// first is the one dialed directly.
//
// If any hop fails, every stream already established for an earlier hop is
// closed before DialChain returns the error — an intermediate failure never
// leaks the partially built chain.
func DialChain(ctx context.Context, proxies []SocksProxy, destination SocksRemoteHost, randomizeChain bool) (net.Conn, error) {
	if len(proxies) < 2 {
		return nil, errors.New("socksclient: chain requires at least two proxies")
	}

	chain := proxies
	if randomizeChain {
		chain = append([]SocksProxy(nil), proxies...)
		rand.Shuffle(len(chain), func(i, j int) { chain[i], chain[j] = chain[j], chain[i] })
	}

	var stream net.Conn
	for i, p := range chain {
		dest := destination
		if i < len(chain)-1 {
			next := chain[i+1]
			dest = SocksRemoteHost{Host: next.IPAddress, Port: next.Port}
		}

		opts := Options{Proxy: p, Destination: dest, Command: CmdConnect}
		if i > 0 {
			opts.ExistingStream = stream
		}

		outcome := <-New(opts).Dial(ctx)
		if outcome.Kind == KindError {
			if stream != nil {
				_ = stream.Close()
			}
			return nil, outcome.Err
		}
		stream = outcome.Stream
	}

	return stream, nil
}
