// Package bufpool provides pooled, size-bucketed scratch arrays for the
// tx-queue and rx-queue batching workers, so a refill pass doesn't
// allocate on every call. The slices are generic over their element
// type since these workers pool fixed-shape struct batches rather than
// payload bytes.
package bufpool

import "sync"

// Bucket sizes chosen to cover typical FIFO/slab depths without
// over-allocating for small devices.
const (
	size64  = 64
	size256 = 256
	size1k  = 1024
)

// Pool vends pooled slices of T sized to at least the requested
// length. Get/Put follow sync.Pool's pointer-to-slice discipline to
// avoid the interface-boxing allocation a bare sync.Pool of []T incurs.
type Pool[T any] struct {
	pool64  sync.Pool
	pool256 sync.Pool
	pool1k  sync.Pool
}

// New creates a Pool[T] with its size buckets primed.
func New[T any]() *Pool[T] {
	p := &Pool[T]{}
	p.pool64.New = func() any { s := make([]T, size64); return &s }
	p.pool256.New = func() any { s := make([]T, size256); return &s }
	p.pool1k.New = func() any { s := make([]T, size1k); return &s }
	return p
}

// Get returns a pooled slice of at least n elements, truncated to n.
func (p *Pool[T]) Get(n int) []T {
	switch {
	case n <= size64:
		return (*p.pool64.Get().(*[]T))[:n]
	case n <= size256:
		return (*p.pool256.Get().(*[]T))[:n]
	case n <= size1k:
		return (*p.pool1k.Get().(*[]T))[:n]
	default:
		// Oversized requests bypass the pool; Put drops them again.
		return make([]T, n)
	}
}

// Put returns buf to the pool matching its capacity. Slices whose
// capacity doesn't match a bucket exactly are dropped (not pooled).
func (p *Pool[T]) Put(buf []T) {
	c := cap(buf)
	buf = buf[:c]
	switch c {
	case size64:
		p.pool64.Put(&buf)
	case size256:
		p.pool256.Put(&buf)
	case size1k:
		p.pool1k.Put(&buf)
	}
}
