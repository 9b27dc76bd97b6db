// Package devcontract defines the narrow contract between the
// device-interface and a device implementation, kept in its own
// package so neither the root package nor internal/session import
// each other directly.
package devcontract

import "github.com/go-netdevice/netdevice/internal/status"

// Region is one (offset, length) span into a VMO the device
// implementation was handed via PrepareVmo.
type Region struct {
	Offset uint64
	Length uint32
}

// TxBuffer is one buffer handed to the device implementation for
// transmission: the session-relative descriptor plus the chain of
// regions making up its payload in the session's data VMO.
type TxBuffer struct {
	ID              uint32 // echoed back verbatim in the matching TxResult
	VMOID           int
	SessionID       uint64
	DescriptorIndex uint16
	FrameType       uint8
	Regions         []Region
	Length          uint32
}

// RxSpaceBuffer is one empty buffer the device implementation may fill
// with a received frame.
type RxSpaceBuffer struct {
	ID      uint32
	VMOID   int
	Regions []Region
	Length  uint32
}

// TxResult is the device's completion report for one tx buffer.
type TxResult struct {
	ID     uint32
	Status Status
}

// RxResult is the device's completion report for one rx space buffer.
type RxResult struct {
	ID          uint32
	TotalLength uint32
	FrameType   uint8
	InfoType    uint32
}

// Status is the completion-status taxonomy a device implementation
// reports on QueueTx/QueueRxSpace completions.
type Status int

const (
	StatusOK Status = iota
	StatusNotSupported
	StatusNoResources
	StatusUnavailable
	StatusOther
)

// FrameTypeFeatures describes one rx or tx frame type the device
// supports.
type FrameTypeFeatures struct {
	FrameType      uint8
	Features       uint32
	SupportedFlags uint32
}

// Info is the fixed-shape device-info record exposed to clients on
// session open and queried by GetInfo.
type Info struct {
	Class               uint8
	MinDescriptorLength uint16
	DescriptorVersion   uint8
	RxDepth             uint16
	TxDepth             uint16
	BufferAlignment     uint32
	MaxBufferLength     uint32
	MinRxBufferLength   uint32
	MinTxBufferHead     uint32
	MinTxBufferTail     uint32
	RxTypes             []uint8
	TxTypes             []FrameTypeFeatures
	RxAccel             []uint8
	TxAccel             []uint8
	// Features is the device-wide feature bitset.
	Features uint32
}

// FeatureNoAutoSnoop disables the tx-listen fan-out.
const FeatureNoAutoSnoop uint32 = 0x1

// StartCallback and StopCallback are invoked by the device
// implementation once Start/Stop has taken effect.
type StartCallback func()
type StopCallback func()

// DeviceImplementation is the set of methods the device-interface
// calls into; a real driver or the in-repo loopback/mock implement it.
type DeviceImplementation interface {
	GetInfo() Info
	Start(cb StartCallback)
	Stop(cb StopCallback)
	GetStatus() status.LinkStatus
	QueueTx(buffers []TxBuffer)
	QueueRxSpace(buffers []RxSpaceBuffer)
	PrepareVmo(id int, data []byte) error
	ReleaseVmo(id int) error
	Init(fw FrameworkCallbacks) error
}

// FrameworkCallbacks is the surface a device implementation calls
// back into; the device-interface implements it.
type FrameworkCallbacks interface {
	StatusChanged(status.LinkStatus)
	CompleteTx(results []TxResult)
	CompleteRx(results []RxResult)
	// Snoop is a no-op inspection hook: it records that a frame
	// crossed the device but does not inspect it.
	Snoop(frameType uint8, length uint32)
}
