package vmo

import (
	"github.com/go-netdevice/netdevice/internal/constants"
	"github.com/go-netdevice/netdevice/internal/ringbuf"
)

// ErrNotFound is returned by Unregister on an id that is not currently
// registered (including a double-unregister).
var ErrNotFound = errNotFound{}

type errNotFound struct{}

func (errNotFound) Error() string { return "vmo: id not found" }

// ErrNoResources is returned by Register/Reserve when the store has no
// free slot ids left.
var ErrNoResources = errNoResources{}

type errNoResources struct{}

func (errNoResources) Error() string { return "vmo: no free slot ids" }

// Store multiplexes up to constants.MaxVMOs mapped VMOs behind small
// integer ids. The store is deliberately not internally synchronized:
// thread-safety belongs to the enclosing device-interface lock, so
// every Store method assumes the caller already holds it.
type Store struct {
	slots *ringbuf.Slab[*VMO]
}

// NewStore allocates an empty VMO store with the fixed MAX_VMOS capacity.
func NewStore() *Store {
	return &Store{slots: ringbuf.NewSlab[*VMO](constants.MaxVMOs)}
}

// Reserve checks that at least n slot ids remain available without
// issuing any of them, so a session-count budget can be validated
// up front instead of discovered lazily on first Register.
func (s *Store) Reserve(n int) error {
	if s.slots.Available() < n {
		return ErrNoResources
	}
	return nil
}

// Register maps v into the next free slot and returns its id, which
// always satisfies 0 <= id < constants.MaxVMOs.
func (s *Store) Register(v *VMO) (int, error) {
	if s.slots.Available() == 0 {
		return 0, ErrNoResources
	}
	return s.slots.Push(v), nil
}

// Unregister releases the slot for id. Double-unregister, or an id
// that was never registered, fails NOT_FOUND.
func (s *Store) Unregister(id int) error {
	if !s.slots.Used(id) {
		return ErrNotFound
	}
	s.slots.Free(id)
	return nil
}

// Get returns the VMO registered under id, or ErrNotFound.
func (s *Store) Get(id int) (*VMO, error) {
	if !s.slots.Used(id) {
		return nil, ErrNotFound
	}
	return *s.slots.Get(id), nil
}

// Read reads from the VMO registered under id. Fails NOT_FOUND if id
// is not registered, OUT_OF_RANGE if the access falls outside the VMO.
func (s *Store) Read(id int, p []byte, off int64) error {
	v, err := s.Get(id)
	if err != nil {
		return err
	}
	return v.ReadAt(p, off)
}

// Write writes to the VMO registered under id.
func (s *Store) Write(id int, p []byte, off int64) error {
	v, err := s.Get(id)
	if err != nil {
		return err
	}
	return v.WriteAt(p, off)
}

// Copy copies length bytes from (srcID, srcOff) to (dstID, dstOff).
func (s *Store) Copy(dstID int, dstOff int64, srcID int, srcOff, length int64) error {
	dst, err := s.Get(dstID)
	if err != nil {
		return err
	}
	src, err := s.Get(srcID)
	if err != nil {
		return err
	}
	return dst.CopyFrom(dstOff, src, srcOff, length)
}
