package session

import (
	"github.com/go-netdevice/netdevice/internal/constants"
	"github.com/go-netdevice/netdevice/internal/wire"
)

func (s *Session) descriptorOffset(idx uint16) int64 {
	return int64(idx) * int64(s.descLen)
}

func (s *Session) readDescriptor(idx uint16) (wire.Descriptor, error) {
	var d wire.Descriptor
	if idx >= s.descCount {
		return d, errOutOfRange("descriptor index out of range")
	}
	buf := make([]byte, wire.DescriptorSize)
	if err := s.descVMO.ReadAt(buf, s.descriptorOffset(idx)); err != nil {
		return d, errOutOfRange("descriptor vmo read out of range")
	}
	if err := d.Unmarshal(buf); err != nil {
		return d, err
	}
	return d, nil
}

func (s *Session) writeDescriptor(idx uint16, d wire.Descriptor) error {
	if idx >= s.descCount {
		return errOutOfRange("descriptor index out of range")
	}
	buf := make([]byte, wire.DescriptorSize)
	d.Marshal(buf)
	if err := s.descVMO.WriteAt(buf, s.descriptorOffset(idx)); err != nil {
		return errOutOfRange("descriptor vmo write out of range")
	}
	return nil
}

// chain walks a descriptor chain starting at head, validating the
// chain_length contract: the head reports the chain's remaining link
// count and each follower must report exactly one less.
func (s *Session) chain(head uint16) ([]uint16, []wire.Descriptor, error) {
	indices := make([]uint16, 0, constants.MaxDescriptorChain)
	descs := make([]wire.Descriptor, 0, constants.MaxDescriptorChain)

	idx := head
	for {
		d, err := s.readDescriptor(idx)
		if err != nil {
			return nil, nil, err
		}
		if len(descs) == 0 {
			if int(d.ChainLength) >= constants.MaxDescriptorChain {
				return nil, nil, errInvalidArgs("chain_length out of bounds")
			}
		} else {
			expected := descs[0].ChainLength - uint8(len(descs))
			if d.ChainLength != expected {
				return nil, nil, errInvalidArgs("chain_length does not decrement along chain")
			}
		}
		indices = append(indices, idx)
		descs = append(descs, d)

		if len(descs)-1 == int(descs[0].ChainLength) {
			break
		}
		idx = d.Nxt
	}
	return indices, descs, nil
}

// txRegions assembles the (offset, length) spans FetchTx attaches to
// the tx transaction: the head region is extended forward by the
// device's required tx head length, the tail region of the final link
// is extended backward by the required tail length.
func txRegions(descs []wire.Descriptor, headReq, tailReq uint32) []Region {
	regions := make([]Region, len(descs))
	for i, d := range descs {
		off := d.Offset
		length := uint64(d.DataLength)
		if i == 0 {
			off -= uint64(headReq)
			length += uint64(headReq)
		}
		if i == len(descs)-1 {
			length += uint64(tailReq)
		}
		regions[i] = Region{Offset: off, Length: uint32(length)}
	}
	return regions
}

// rxRegions is FillRxSpace's counterpart: rx payload is written after
// head padding rather than before it, so only the head link shifts its
// starting offset forward, with no length extension.
func rxRegions(descs []wire.Descriptor) []Region {
	regions := make([]Region, len(descs))
	for i, d := range descs {
		off := d.Offset
		if i == 0 {
			off += uint64(d.HeadLength)
		}
		regions[i] = Region{Offset: off, Length: uint32(d.DataLength)}
	}
	return regions
}
