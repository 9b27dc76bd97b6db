package session

import "github.com/go-netdevice/netdevice/internal/wire"

// CompletionStatus is a tx or rx completion's device-reported outcome.
type CompletionStatus int

const (
	StatusOK CompletionStatus = iota
	StatusNotSupported
	StatusNoResources
	StatusUnavailable
	StatusOther
)

func returnFlagsFor(status CompletionStatus) uint32 {
	switch status {
	case StatusOK:
		return wire.ReturnFlagsForStatus(wire.StatusOK)
	case StatusNotSupported:
		return wire.ReturnFlagsForStatus(wire.StatusNotSupported)
	case StatusNoResources:
		return wire.ReturnFlagsForStatus(wire.StatusNoResources)
	case StatusUnavailable:
		return wire.ReturnFlagsForStatus(wire.StatusUnavailable)
	default:
		return wire.ReturnFlagsForStatus(wire.StatusOther)
	}
}
