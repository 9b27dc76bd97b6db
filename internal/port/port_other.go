//go:build !linux

package port

import (
	"errors"
	"sync"
)

// ErrClosed is returned by Wait once the port has been closed, so
// callers looping on Wait have a reliable exit signal (matching the
// epoll backend, where EpollWait on a closed fd also errors).
var ErrClosed = errors.New("port: closed")

// Port is a channel-based stand-in for the epoll backend on non-Linux
// build targets: a single channel carrying tagged events that a worker
// selects on.
type Port struct {
	mu     sync.Mutex
	fired  chan Key
	closed bool
}

// New creates a channel-backed Port.
func New() (*Port, error) {
	return &Port{fired: make(chan Key, 64)}, nil
}

// Close releases the port. Safe to call once.
func (p *Port) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.closed {
		p.closed = true
		close(p.fired)
	}
	return nil
}

// Wait blocks until at least one source posts, returning every key
// queued since the last Wait. timeoutMS is accepted for interface
// parity with the epoll backend and ignored: every call, including
// one with a zero timeout, blocks until a post or Close.
func (p *Port) Wait(timeoutMS int) ([]Key, error) {
	k, ok := <-p.fired
	if !ok {
		return nil, ErrClosed
	}
	keys := []Key{k}
	draining := true
	for draining {
		select {
		case k, ok := <-p.fired:
			if !ok {
				draining = false
				break
			}
			keys = append(keys, k)
		default:
			draining = false
		}
	}
	return keys, nil
}

// EventSource is a postable source tagged with a Key.
type EventSource struct {
	port *Port
	key  Key
}

// NewSource creates a source tagged with key, posting to p.
func (p *Port) NewSource(key Key) (*EventSource, error) {
	return &EventSource{port: p, key: key}, nil
}

// Post signals the source, waking a blocked Wait with this source's key.
func (s *EventSource) Post() error {
	s.port.mu.Lock()
	defer s.port.mu.Unlock()
	if s.port.closed {
		return nil
	}
	select {
	case s.port.fired <- s.key:
	default:
	}
	return nil
}

// Close is a no-op; the underlying Port owns the channel.
func (s *EventSource) Close() error { return nil }
