// Package wire defines the on-the-wire descriptor layout shared between a
// client and the framework through a session's descriptor VMO.
package wire

import (
	"encoding/binary"
	"errors"
)

// ErrInsufficientData is returned by Unmarshal when the supplied slice is
// shorter than DescriptorSize.
var ErrInsufficientData = errors.New("wire: insufficient data for descriptor")

// Return-flag bits.
const (
	FlagError          uint32 = 0x1
	FlagOutOfResources uint32 = 0x2
	FlagNotSupported   uint32 = 0x4
	FlagNotAvailable   uint32 = 0x8
	FlagRxEchoedTx     uint32 = 0x10
)

// NoInfo is the sentinel InfoType value meaning "no info".
const NoInfo uint32 = 0

// DescriptorSize is sizeof(Descriptor) on the wire: the 24-byte base
// header plus inbound_flags and return_flags (4 bytes each), 32 bytes
// total — already a multiple of 8, so no further padding is added.
const DescriptorSize = 32

// Descriptor mirrors the fixed wire layout shared with clients:
//
//	u8   frame_type
//	u8   chain_length
//	u16  nxt
//	u32  info_type
//	u64  offset
//	u16  head_length
//	u16  tail_length
//	u32  data_length
//	u32  inbound_flags
//	u32  return_flags
type Descriptor struct {
	FrameType    uint8
	ChainLength  uint8
	Nxt          uint16
	InfoType     uint32
	Offset       uint64
	HeadLength   uint16
	TailLength   uint16
	DataLength   uint32
	InboundFlags uint32
	ReturnFlags  uint32
}

// Marshal encodes d into buf[0:DescriptorSize] using little-endian byte
// order. buf must have length >= DescriptorSize.
func (d *Descriptor) Marshal(buf []byte) {
	_ = buf[DescriptorSize-1]
	buf[0] = d.FrameType
	buf[1] = d.ChainLength
	binary.LittleEndian.PutUint16(buf[2:4], d.Nxt)
	binary.LittleEndian.PutUint32(buf[4:8], d.InfoType)
	binary.LittleEndian.PutUint64(buf[8:16], d.Offset)
	binary.LittleEndian.PutUint16(buf[16:18], d.HeadLength)
	binary.LittleEndian.PutUint16(buf[18:20], d.TailLength)
	binary.LittleEndian.PutUint32(buf[20:24], d.DataLength)
	binary.LittleEndian.PutUint32(buf[24:28], d.InboundFlags)
	binary.LittleEndian.PutUint32(buf[28:32], d.ReturnFlags)
}

// Unmarshal decodes buf[0:DescriptorSize] into d.
func (d *Descriptor) Unmarshal(buf []byte) error {
	if len(buf) < DescriptorSize {
		return ErrInsufficientData
	}
	d.FrameType = buf[0]
	d.ChainLength = buf[1]
	d.Nxt = binary.LittleEndian.Uint16(buf[2:4])
	d.InfoType = binary.LittleEndian.Uint32(buf[4:8])
	d.Offset = binary.LittleEndian.Uint64(buf[8:16])
	d.HeadLength = binary.LittleEndian.Uint16(buf[16:18])
	d.TailLength = binary.LittleEndian.Uint16(buf[18:20])
	d.DataLength = binary.LittleEndian.Uint32(buf[20:24])
	d.InboundFlags = binary.LittleEndian.Uint32(buf[24:28])
	d.ReturnFlags = binary.LittleEndian.Uint32(buf[28:32])
	return nil
}

// CompletionStatus is a device completion status, which
// ReturnFlagsForStatus maps to the tx return-flags bit pattern written
// back to clients.
type CompletionStatus int

const (
	StatusOK CompletionStatus = iota
	StatusNotSupported
	StatusNoResources
	StatusUnavailable
	StatusOther
)

// ReturnFlagsForStatus implements the §4.2 return-flags table exactly:
// OK -> 0; each named code sets ERROR plus exactly one specific bit.
func ReturnFlagsForStatus(s CompletionStatus) uint32 {
	switch s {
	case StatusOK:
		return 0
	case StatusNotSupported:
		return FlagError | FlagNotSupported
	case StatusNoResources:
		return FlagError | FlagOutOfResources
	case StatusUnavailable:
		return FlagError | FlagNotAvailable
	default:
		return FlagError
	}
}
