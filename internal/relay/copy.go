// Package relay bridges a tunneled socksclient connection to a local peer
// (a listener's accepted connection, or stdio), and pools the byte buffers
// the protocol engine's receive path churns through.
package relay

import (
	"context"
	"io"
	"net"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// CopyBidirectional pumps bytes in both directions between left and right
// until either direction reaches EOF or errors, or ctx is canceled, then
// closes both. If ioTimeout is positive, it is applied as a deadline to both
// connections up front.
func CopyBidirectional(ctx context.Context, left, right net.Conn, ioTimeout time.Duration) error {
	if ioTimeout > 0 {
		dl := time.Now().Add(ioTimeout)
		_ = left.SetDeadline(dl)
		_ = right.SetDeadline(dl)
	}

	var closeOnce sync.Once
	closeBoth := func() {
		closeOnce.Do(func() {
			_ = left.Close()
			_ = right.Close()
		})
	}
	defer closeBoth()

	// Canceling ctx closes both connections, which unblocks both copies.
	stop := context.AfterFunc(ctx, closeBoth)
	defer stop()

	// Whichever direction ends first closes both, so the other one's
	// blocked Read returns too.
	var g errgroup.Group
	g.Go(func() error {
		_, err := io.Copy(left, right)
		closeBoth()
		return err
	})

	g.Go(func() error {
		_, err := io.Copy(right, left)
		closeBoth()
		return err
	})

	return g.Wait()
}
