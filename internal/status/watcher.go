// Package status implements the link-status watcher: a
// bounded, deduplicating queue of status updates served through a
// hanging-get Watch call.
package status

import (
	"context"
	"sync"

	"github.com/go-netdevice/netdevice/internal/constants"
)

// LinkStatus is the link-status record watchers observe.
type LinkStatus struct {
	MTU   uint32
	Flags uint32
}

// FlagOnline is the Flags bit meaning the link is online.
const FlagOnline uint32 = 0x1

// ErrCancelled is delivered to any parked Watch when the watcher is
// closed (unbind or teardown).
var ErrCancelled = errCancelled{}

type errCancelled struct{}

func (errCancelled) Error() string { return "status: watcher cancelled" }

type pending struct {
	ch chan result
}

type result struct {
	status LinkStatus
	err    error
}

// Watcher is a single client's status-watch state: a bounded queue, a
// last-observed value for dedup, and at most one parked hanging-get.
type Watcher struct {
	mu           sync.Mutex
	queue        []LinkStatus
	maxQueue     int
	lastObserved LinkStatus
	haveObserved bool
	waiter       *pending
	closed       bool
}

// NewWatcher creates a Watcher whose buffer is clamped to
// [1, constants.MaxStatusBuffer].
func NewWatcher(buffer int) *Watcher {
	if buffer < 1 {
		buffer = 1
	}
	if buffer > constants.MaxStatusBuffer {
		buffer = constants.MaxStatusBuffer
	}
	return &Watcher{maxQueue: buffer}
}

// Capacity returns the watcher's effective (clamped) buffer size.
func (w *Watcher) Capacity() int { return w.maxQueue }

// PushStatus enqueues a new observation, deduplicating against the
// back of the queue (or last_observed if the queue is empty) and
// dropping the oldest entry on overflow.
func (w *Watcher) PushStatus(s LinkStatus) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}

	dedupKey := w.lastObserved
	haveDedupKey := w.haveObserved
	if len(w.queue) > 0 {
		dedupKey = w.queue[len(w.queue)-1]
		haveDedupKey = true
	}
	if haveDedupKey && dedupKey == s {
		return
	}

	if w.waiter != nil && len(w.queue) == 0 {
		waiter := w.waiter
		w.waiter = nil
		w.lastObserved = s
		w.haveObserved = true
		waiter.ch <- result{status: s}
		return
	}

	w.queue = append(w.queue, s)
	if len(w.queue) > w.maxQueue {
		w.queue = w.queue[1:]
	}
}

// Watch completes immediately with the queue head if one is present,
// otherwise parks until PushStatus delivers one or the context is
// cancelled or the watcher is closed. Only one Watch may be
// outstanding at a time; a second concurrent call replaces the first,
// which then observes ErrCancelled.
func (w *Watcher) Watch(ctx context.Context) (LinkStatus, error) {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return LinkStatus{}, ErrCancelled
	}
	if len(w.queue) > 0 {
		s := w.queue[0]
		w.queue = w.queue[1:]
		w.lastObserved = s
		w.haveObserved = true
		w.mu.Unlock()
		return s, nil
	}

	prev := w.waiter
	ch := make(chan result, 1)
	w.waiter = &pending{ch: ch}
	w.mu.Unlock()

	if prev != nil {
		prev.ch <- result{err: ErrCancelled}
	}

	select {
	case r := <-ch:
		return r.status, r.err
	case <-ctx.Done():
		w.mu.Lock()
		if w.waiter != nil && w.waiter.ch == ch {
			w.waiter = nil
		}
		w.mu.Unlock()
		return LinkStatus{}, ctx.Err()
	}
}

// Close cancels any parked Watch and marks the watcher unusable,
// matching unbind/teardown behavior.
func (w *Watcher) Close() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}
	w.closed = true
	if w.waiter != nil {
		w.waiter.ch <- result{err: ErrCancelled}
		w.waiter = nil
	}
}
