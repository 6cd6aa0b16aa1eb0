package relay

import (
	"net/http/httputil"
	"sync"
)

type bufferPool struct {
	pool sync.Pool
}

// NewBufferPool returns an httputil.BufferPool handing out fixed-size
// scratch buffers, the pooling idiom applied here to the receive buffer's
// scratch reads and to the scratch space UDP relay reads decode from.
func NewBufferPool(size int) httputil.BufferPool {
	bp := &bufferPool{}
	bp.pool.New = func() any {
		b := make([]byte, size)
		return &b
	}
	return bp
}

func (p *bufferPool) Get() []byte {
	b := p.pool.Get().(*[]byte)
	return *b
}

func (p *bufferPool) Put(b []byte) {
	// This &b forces a 32-byte heap allocation. There's no way to avoid this
	// when converting a non-pointer to an interface{}.
	p.pool.Put(&b)
}
