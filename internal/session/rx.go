package session

import (
	"errors"

	"github.com/go-netdevice/netdevice/internal/vmo"
	"github.com/go-netdevice/netdevice/internal/wire"
)

// RxFill is the payload the rx-queue hands back on CompleteRx: the
// total payload length, the frame type and framework-assigned
// info_type, and the inbound flags to stamp.
type RxFill struct {
	TotalLength  uint32
	FrameType    uint8
	InfoType     uint32
	InboundFlags uint32
}

// FetchRxDescriptors reads up to the device's rx depth of descriptor
// indices from the rx FIFO into the available scratch array. A non-nil
// error other than ErrShouldWait means the session's rx side has been
// invalidated.
func (s *Session) FetchRxDescriptors() error {
	if !s.rxValid.Load() {
		return errBadState("rx invalid")
	}
	depth := s.hooks.RxDepth()
	if depth <= 0 {
		depth = 1
	}
	buf := make([]uint16, depth)
	n, err := s.rxFIFO.TryRead(buf)
	s.mu.Lock()
	s.availableRx = append(s.availableRx, buf[:n]...)
	s.mu.Unlock()
	if n > 0 {
		return nil
	}
	if err != nil {
		return ErrShouldWait
	}
	return nil
}

// LoadRxDescriptors drains the available array (fetching from the
// FIFO first if empty) into dst while dst has room.
func (s *Session) LoadRxDescriptors(dst *[]uint16, capacity int) error {
	s.mu.Lock()
	empty := len(s.availableRx) == 0
	s.mu.Unlock()
	if empty {
		if err := s.FetchRxDescriptors(); err != nil && err != ErrShouldWait {
			return err
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for len(*dst) < capacity && len(s.availableRx) > 0 {
		*dst = append(*dst, s.availableRx[0])
		s.availableRx = s.availableRx[1:]
	}
	return nil
}

// FillRxSpace walks the chain at descIndex and returns the regions the
// device should receive payload into; in_flight_rx is incremented.
func (s *Session) FillRxSpace(descIndex uint16) ([]Region, error) {
	_, descs, err := s.chain(descIndex)
	if err != nil {
		return nil, err
	}
	s.inFlightRx.Add(1)
	return rxRegions(descs), nil
}

// PeekRxRegions re-derives the region spans a completed descriptor's
// chain occupies, without touching in_flight_rx, so a caller that
// already holds a filled descriptor (the rx-queue's fan-out path) can
// find the bytes the device wrote without re-running FillRxSpace's
// bookkeeping a second time.
func (s *Session) PeekRxRegions(descIndex uint16) ([]Region, error) {
	_, descs, err := s.chain(descIndex)
	if err != nil {
		return nil, err
	}
	return rxRegions(descs), nil
}

// CompleteRx reports whether descIndex's buffer may be reused
// immediately. When it returns false, the descriptor has
// been queued onto the return scratch array via LoadRxInfo and will
// be flushed on the next CommitRx, which is what drops in_flight_rx
// for it; the reusable-immediately branches below drop it right away
// since no commit is needed for a descriptor that was never handed off.
func (s *Session) CompleteRx(descIndex uint16, fill RxFill) (reusable bool, err error) {
	if fill.TotalLength == 0 || ((!s.SubscribesTo(fill.FrameType) || s.paused.Load()) && s.rxValid.Load()) {
		s.inFlightRx.Add(-1)
		return true, nil
	}
	if err := s.LoadRxInfo(descIndex, fill); err != nil {
		s.inFlightRx.Add(-1)
		return true, err
	}
	s.mu.Lock()
	s.returnRx = append(s.returnRx, descIndex)
	s.mu.Unlock()
	return false, nil
}

// LoadRxInfo writes frame_type/inbound_flags/info_type back to the
// head descriptor and distributes total_length across the chain,
// zeroing data_length on any links the payload did not reach.
func (s *Session) LoadRxInfo(descIndex uint16, fill RxFill) error {
	indices, descs, err := s.chain(descIndex)
	if err != nil {
		return err
	}
	var capacity uint32
	for _, d := range descs {
		capacity += uint32(d.DataLength)
	}
	if fill.TotalLength > capacity {
		return errNoResources("rx total_length exceeds chain capacity")
	}

	remaining := fill.TotalLength
	for i, idx := range indices {
		d := descs[i]
		if i == 0 {
			d.FrameType = fill.FrameType
			d.InboundFlags = fill.InboundFlags
			d.InfoType = fill.InfoType
		}
		take := d.DataLength
		if take > remaining {
			take = remaining
		}
		d.DataLength = take
		remaining -= take
		if err := s.writeDescriptor(idx, d); err != nil {
			return err
		}
	}
	return nil
}

// CompleteRxWith implements the fan-out copy path: another session's
// tx buffer is copied into one of this session's available rx
// descriptors. The frame's length is the total of ownerRegions. On
// NO_RESOURCES (the frame is longer than the descriptor's chain) the
// descriptor is returned unused and the packet is dropped without
// killing the session; any other error kills it.
func (s *Session) CompleteRxWith(ownerData *vmo.VMO, ownerRegions []Region, fill RxFill) (accepted bool) {
	s.mu.Lock()
	if len(s.availableRx) == 0 {
		s.mu.Unlock()
		return false
	}
	descIndex := s.availableRx[0]
	s.availableRx = s.availableRx[1:]
	s.mu.Unlock()

	regions, err := s.FillRxSpace(descIndex)
	if err != nil {
		s.Kill()
		return false
	}
	fill.TotalLength = sumRegionLengths(ownerRegions)
	if err := s.copyRegions(ownerData, ownerRegions, regions); err != nil {
		s.Kill()
		return false
	}
	reusable, err := s.CompleteRx(descIndex, fill)
	if err != nil {
		if errors.Is(err, ErrNoResources) {
			s.mu.Lock()
			s.availableRx = append(s.availableRx, descIndex)
			s.mu.Unlock()
			return false
		}
		s.Kill()
		return false
	}
	if reusable {
		s.mu.Lock()
		s.availableRx = append(s.availableRx, descIndex)
		s.mu.Unlock()
	}
	return true
}

// ListenFromTx mirrors CompleteRxWith for the tx-snoop fan-out path,
// stamping RX_ECHOED_TX. Insufficient rx capacity here is not a kill
// condition; the descriptor is simply left unused.
func (s *Session) ListenFromTx(ownerData *vmo.VMO, ownerRegions []Region, fill RxFill) bool {
	s.mu.Lock()
	if len(s.availableRx) == 0 {
		s.mu.Unlock()
		return false
	}
	descIndex := s.availableRx[0]
	s.availableRx = s.availableRx[1:]
	s.mu.Unlock()

	regions, err := s.FillRxSpace(descIndex)
	if err != nil {
		s.mu.Lock()
		s.availableRx = append(s.availableRx, descIndex)
		s.mu.Unlock()
		return false
	}
	fill.TotalLength = sumRegionLengths(ownerRegions)
	if err := s.copyRegions(ownerData, ownerRegions, regions); err != nil {
		s.mu.Lock()
		s.availableRx = append(s.availableRx, descIndex)
		s.mu.Unlock()
		return false
	}
	fill.InboundFlags |= wire.FlagRxEchoedTx
	reusable, err := s.CompleteRx(descIndex, fill)
	if err != nil || reusable {
		s.mu.Lock()
		s.availableRx = append(s.availableRx, descIndex)
		s.mu.Unlock()
		return err == nil
	}
	return true
}

func sumRegionLengths(regions []Region) uint32 {
	var total uint32
	for _, r := range regions {
		total += r.Length
	}
	return total
}

func (s *Session) copyRegions(ownerData *vmo.VMO, ownerRegions []Region, dstRegions []Region) error {
	var ownerOff int
	for _, dst := range dstRegions {
		remaining := int64(dst.Length)
		dstOff := int64(dst.Offset)
		for remaining > 0 && ownerOff < len(ownerRegions) {
			src := ownerRegions[ownerOff]
			take := int64(src.Length)
			if take > remaining {
				take = remaining
			}
			if err := s.dataVMO.CopyFrom(dstOff, ownerData, int64(src.Offset), take); err != nil {
				return err
			}
			dstOff += take
			remaining -= take
			if take == int64(src.Length) {
				ownerOff++
			} else {
				ownerRegions[ownerOff].Offset += uint64(take)
				ownerRegions[ownerOff].Length -= uint32(take)
			}
		}
	}
	return nil
}

// CommitRx flushes the return scratch array to the rx FIFO in one
// write and resets the count; suppressed while paused. Every
// descriptor actually written back to the FIFO is now owned by the
// client again, so in_flight_rx is decremented to match; any
// descriptor TryWrite couldn't fit is left queued for the next
// CommitRx.
func (s *Session) CommitRx() error {
	if s.paused.Load() {
		return nil
	}
	s.mu.Lock()
	toWrite := s.returnRx
	s.returnRx = nil
	s.mu.Unlock()
	if len(toWrite) == 0 {
		return nil
	}
	n, err := s.rxFIFO.TryWrite(toWrite)
	if n > 0 {
		s.inFlightRx.Add(-int64(n))
	}
	if n < len(toWrite) {
		s.mu.Lock()
		s.returnRx = append(append([]uint16(nil), toWrite[n:]...), s.returnRx...)
		s.mu.Unlock()
	}
	return err
}
