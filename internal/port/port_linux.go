//go:build linux

package port

import (
	"encoding/binary"
	"sync"

	"golang.org/x/sys/unix"
)

// Port is an epoll instance multiplexing eventfd-backed sources. Wait
// blocks until at least one source has been posted to and returns the
// set of keys that fired, draining each source's counter.
type Port struct {
	epfd int

	mu   sync.Mutex
	keys map[int32]Key
}

// New creates a Port backed by a fresh epoll instance.
func New() (*Port, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, err
	}
	return &Port{epfd: epfd, keys: make(map[int32]Key)}, nil
}

// Close releases the underlying epoll fd. Registered sources must be
// closed independently.
func (p *Port) Close() error {
	return unix.Close(p.epfd)
}

func (p *Port) register(fd int, key Key) error {
	p.mu.Lock()
	p.keys[int32(fd)] = key
	p.mu.Unlock()
	ev := unix.EpollEvent{Events: unix.EPOLLIN, Fd: int32(fd)}
	return unix.EpollCtl(p.epfd, unix.EPOLL_CTL_ADD, fd, &ev)
}

func (p *Port) unregister(fd int) {
	p.mu.Lock()
	delete(p.keys, int32(fd))
	p.mu.Unlock()
	_ = unix.EpollCtl(p.epfd, unix.EPOLL_CTL_DEL, fd, nil)
}

// Wait blocks until at least one source fires or timeoutMS elapses
// (negative blocks indefinitely), returning the keys that fired.
func (p *Port) Wait(timeoutMS int) ([]Key, error) {
	var events [32]unix.EpollEvent
	n, err := unix.EpollWait(p.epfd, events[:], timeoutMS)
	if err != nil {
		if err == unix.EINTR {
			return nil, nil
		}
		return nil, err
	}
	fired := make([]Key, 0, n)
	var drain [8]byte
	p.mu.Lock()
	for i := 0; i < n; i++ {
		fd := events[i].Fd
		if key, ok := p.keys[fd]; ok {
			fired = append(fired, key)
		}
		_, _ = unix.Read(int(fd), drain[:])
	}
	p.mu.Unlock()
	return fired, nil
}

// EventSource is a postable source registered under a Key. Posting is
// safe from any goroutine; Wait reports the key at most once per
// outstanding post (the eventfd counter coalesces repeated posts
// between Wait calls, matching a "resume"-style level-triggered wake).
type EventSource struct {
	port *Port
	fd   int
	key  Key
}

// NewSource creates an eventfd-backed source registered with p under key.
func (p *Port) NewSource(key Key) (*EventSource, error) {
	fd, err := unix.Eventfd(0, unix.EFD_NONBLOCK|unix.EFD_CLOEXEC)
	if err != nil {
		return nil, err
	}
	if err := p.register(fd, key); err != nil {
		_ = unix.Close(fd)
		return nil, err
	}
	return &EventSource{port: p, fd: fd, key: key}, nil
}

// Post signals the source, waking a blocked Wait with this source's key.
func (s *EventSource) Post() error {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], 1)
	_, err := unix.Write(s.fd, buf[:])
	if err == unix.EAGAIN {
		return nil
	}
	return err
}

// Close unregisters and releases the source's eventfd.
func (s *EventSource) Close() error {
	s.port.unregister(s.fd)
	return unix.Close(s.fd)
}
