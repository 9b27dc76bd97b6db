// Package binding provides a refcounted registry of opaque handles
// standing in for the IPC server bindings a transport layer would hold
// open on behalf of connected clients.
package binding

import (
	"sync"

	"github.com/go-netdevice/netdevice/internal/logging"
)

// UnbindFunc is called exactly once when a Binding is closed, either
// by the peer or by the registry during teardown.
type UnbindFunc func()

// Binding is one opaque handle held open on behalf of a connected
// client (a port, a device instance, or a status watcher connection).
type Binding struct {
	id     uint64
	unbind UnbindFunc
	closed bool
	mu     sync.Mutex
}

// Close unbinds the handle, invoking its UnbindFunc exactly once.
func (b *Binding) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	if b.unbind != nil {
		b.unbind()
	}
}

// Closed reports whether the binding has already been unbound.
func (b *Binding) Closed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}

// Registry tracks every live Binding so the device-interface's
// teardown FSM can know when its BINDINGS stage has drained.
type Registry struct {
	mu       sync.Mutex
	nextID   uint64
	bindings map[uint64]*Binding
	logger   *logging.Logger
}

// NewRegistry creates an empty binding registry.
func NewRegistry() *Registry {
	return &Registry{
		bindings: make(map[uint64]*Binding),
		logger:   logging.Default(),
	}
}

// Add registers a new binding, returning a handle the caller closes
// (directly, or indirectly via CloseAll) when the client disconnects.
func (r *Registry) Add(unbind UnbindFunc) *Binding {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	id := r.nextID
	b := &Binding{id: id, unbind: r.wrapUnbind(id, unbind)}
	r.bindings[id] = b
	return b
}

func (r *Registry) wrapUnbind(id uint64, inner UnbindFunc) UnbindFunc {
	return func() {
		r.mu.Lock()
		delete(r.bindings, id)
		r.mu.Unlock()
		if inner != nil {
			inner()
		}
	}
}

// Count returns the number of currently live bindings.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.bindings)
}

// CloseAll unbinds every live binding, used when teardown forces the
// BINDINGS stage to drain regardless of individual client cooperation.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	live := make([]*Binding, 0, len(r.bindings))
	for _, b := range r.bindings {
		live = append(live, b)
	}
	r.mu.Unlock()

	for _, b := range live {
		b.Close()
	}
	r.logger.Debug("closed all bindings", "count", len(live))
}
