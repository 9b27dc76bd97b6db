package session

import (
	"errors"
	"fmt"
)

// Sentinel errors a session operation can fail with. The
// owning device-interface maps these to the root package's structured
// *Error via errors.Is, keeping this package free of an import cycle
// back to the root package.
var (
	ErrInvalidArgs  = errors.New("session: invalid arguments")
	ErrNotSupported = errors.New("session: not supported")
	ErrBadState     = errors.New("session: bad state")
	ErrNoResources  = errors.New("session: no resources")
	ErrShouldWait   = errors.New("session: should wait")
	ErrOutOfRange   = errors.New("session: out of range")
)

func errInvalidArgs(msg string) error  { return fmt.Errorf("%w: %s", ErrInvalidArgs, msg) }
func errNotSupported(msg string) error { return fmt.Errorf("%w: %s", ErrNotSupported, msg) }
func errBadState(msg string) error     { return fmt.Errorf("%w: %s", ErrBadState, msg) }
func errNoResources(msg string) error  { return fmt.Errorf("%w: %s", ErrNoResources, msg) }
func errOutOfRange(msg string) error   { return fmt.Errorf("%w: %s", ErrOutOfRange, msg) }
