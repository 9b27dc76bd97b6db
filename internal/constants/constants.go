// Package constants holds the fixed-capacity limits and wire constants
// shared across the netdevice framework.
package constants

import "time"

// Fixed maxima.
const (
	// MaxVMOs bounds the VMO store's slot array; a session's vmo_id is
	// always in [0, MaxVMOs).
	MaxVMOs = 64

	// MaxFrameTypes bounds a session's subscribed rx frame type set and
	// the device's supported frame type lists.
	MaxFrameTypes = 4

	// MaxDescriptorChain bounds chain_length on any descriptor.
	MaxDescriptorChain = 4

	// MaxFIFODepth bounds FIFO depth regardless of device-reported depth.
	MaxFIFODepth = 256

	// MaxStatusBuffer bounds a status watcher's buffered queue length.
	MaxStatusBuffer = 16

	// MaxSessionName bounds a session's name length in bytes.
	MaxSessionName = 64

	// DescriptorVersion is the only descriptor_version this framework
	// accepts; a session opened with any other value fails NOT_SUPPORTED.
	DescriptorVersion = 1

	// BaseDescriptorSize is the size of the descriptor header through
	// data_length; the full wire descriptor adds inbound_flags and
	// return_flags for 32 bytes (wire.DescriptorSize).
	BaseDescriptorSize = 24

	// DefaultBufferLength is the per-descriptor payload capacity a
	// session's data VMO is sized by.
	DefaultBufferLength = 2048
)

// DefaultTeardownTimeout is the deadline the caller of Teardown supplies
// by default if none is given; after it elapses the device-interface
// forces the FSM to FINISHED regardless of in-flight buffers.
const DefaultTeardownTimeout = 10 * time.Second
