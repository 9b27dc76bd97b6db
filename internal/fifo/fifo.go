// Package fifo implements the single-producer/single-consumer queue of
// 16-bit descriptor indices that stands in for a kernel FIFO object:
// one is created per session for tx and one for rx. A FIFO carries a
// reference count (Ref/Unref) and closes when the last reference is
// released; the rx-queue worker reads a session's rx FIFO without
// taking a reference of its own.
package fifo

import (
	"sync"

	"github.com/go-netdevice/netdevice/internal/ringbuf"
)

// ErrShouldWait is returned by TryRead on an empty FIFO and by TryWrite
// on a full one; it signals backpressure, not a hard failure.
var ErrShouldWait = errShouldWait{}

type errShouldWait struct{}

func (errShouldWait) Error() string { return "fifo: should wait" }

// ErrPeerClosed is returned once the peer endpoint has been closed and
// no further reads/writes are possible.
var ErrPeerClosed = errPeerClosed{}

type errPeerClosed struct{}

func (errPeerClosed) Error() string { return "fifo: peer closed" }

// FIFO is a fixed-capacity SPSC queue of 16-bit descriptor indices.
// Unlike a real kernel FIFO, both sides of this FIFO live in the same
// process; a signal channel lets a port-driven worker block until the
// FIFO becomes readable, writable, or the peer closes.
type FIFO struct {
	mu       sync.Mutex
	ring     *ringbuf.Ring[uint16]
	closed   bool
	refcount int

	// signal is re-created (closed and replaced) every time state
	// changes, so a waiter parked on the old channel wakes exactly
	// once and re-checks state.
	signal chan struct{}
}

// New allocates a FIFO with the given fixed depth.
func New(depth int) *FIFO {
	return &FIFO{
		ring:     ringbuf.NewRing[uint16](depth),
		refcount: 1,
		signal:   make(chan struct{}),
	}
}

// Depth returns the FIFO's fixed capacity.
func (f *FIFO) Depth() int { return f.ring.Cap() }

func (f *FIFO) wake() {
	close(f.signal)
	f.signal = make(chan struct{})
}

// Ref increments the FIFO's reference count (rx FIFOs are shared
// between a session and the rx-queue worker).
func (f *FIFO) Ref() {
	f.mu.Lock()
	f.refcount++
	f.mu.Unlock()
}

// Unref decrements the reference count and closes the FIFO once it
// reaches zero.
func (f *FIFO) Unref() {
	f.mu.Lock()
	f.refcount--
	shouldClose := f.refcount <= 0 && !f.closed
	if shouldClose {
		f.closed = true
		f.wake()
	}
	f.mu.Unlock()
}

// Close marks the FIFO peer-closed regardless of refcount. Idempotent.
func (f *FIFO) Close() {
	f.mu.Lock()
	if !f.closed {
		f.closed = true
		f.wake()
	}
	f.mu.Unlock()
}

// Closed reports whether the FIFO has been closed.
func (f *FIFO) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// TryRead reads up to len(p) indices without blocking. Returns the
// number read. If the FIFO is empty, returns (0, ErrShouldWait) unless
// it is also closed, in which case it returns (0, ErrPeerClosed).
func (f *FIFO) TryRead(p []uint16) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ring.Empty() {
		if f.closed {
			return 0, ErrPeerClosed
		}
		return 0, ErrShouldWait
	}
	n := 0
	for n < len(p) && !f.ring.Empty() {
		p[n] = f.ring.Pop()
		n++
	}
	if n > 0 {
		f.wake()
	}
	return n, nil
}

// TryWrite writes up to len(p) indices without blocking, returning the
// number written. Returns ErrShouldWait if the FIFO was already full.
func (f *FIFO) TryWrite(p []uint16) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return 0, ErrPeerClosed
	}
	if f.ring.Full() {
		return 0, ErrShouldWait
	}
	n := 0
	for n < len(p) && !f.ring.Full() {
		f.ring.Push(p[n])
		n++
	}
	if n > 0 {
		f.wake()
	}
	return n, nil
}

// Signal returns the channel a port wait should select on; it is
// closed exactly once whenever the FIFO's readable/writable/closed
// state changes, after which the caller must call Signal again to get
// the new channel.
func (f *FIFO) Signal() <-chan struct{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.signal
}

// Readable reports whether the FIFO holds indices or has been closed,
// i.e. whether a read would return without waiting for a write.
func (f *FIFO) Readable() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return !f.ring.Empty() || f.closed
}

// Writable reports whether a write would currently succeed.
func (f *FIFO) Writable() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return !f.ring.Full() && !f.closed
}
