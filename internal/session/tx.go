package session

// FetchTx is the tx worker's core step: it
// drains indices from the tx FIFO (or retries a descriptor that
// overran the in-flight slab last time), validates each descriptor
// chain, and attaches accepted buffers to an open transaction. It
// returns overran=true when the device's in-flight tx slab has no
// room left, so the caller knows not to rearm the FIFO wait yet
// (IO_OVERRUN).
func (s *Session) FetchTx() (overran bool, err error) {
	txn := s.hooks.BeginTx()
	defer txn.Close()

	if s.pendingTx != nil {
		idx := *s.pendingTx
		ok, kill, attachErr := s.tryAttach(txn, idx)
		if attachErr != nil {
			return false, attachErr
		}
		if kill {
			s.Kill()
			return false, nil
		}
		if !ok {
			return true, nil
		}
		s.pendingTx = nil
	}

	limit := s.hooks.RxDepth()
	if limit <= 0 {
		limit = 1
	}
	buf := make([]uint16, limit)
	n, readErr := s.txFIFO.TryRead(buf)
	if readErr != nil && n == 0 {
		// ErrShouldWait or ErrPeerClosed: nothing to do this pass.
		return false, nil
	}

	for i := 0; i < n; i++ {
		idx := buf[i]
		ok, kill, attachErr := s.tryAttach(txn, idx)
		if attachErr != nil {
			return false, attachErr
		}
		if kill {
			s.Kill()
			return false, nil
		}
		if !ok {
			s.pendingTx = &idx
			return true, nil
		}
	}
	return false, nil
}

// tryAttach validates one descriptor chain and offers it to txn. ok
// is false only on transaction overrun (caller should stop and retry
// later); kill is true on a session contract breach.
func (s *Session) tryAttach(txn TxTransaction, idx uint16) (ok, kill bool, err error) {
	indices, descs, chainErr := s.chain(idx)
	if chainErr != nil {
		return false, true, nil
	}
	head := descs[0]
	if !s.hooks.TxFrameSupported(head.FrameType) {
		return false, true, nil
	}
	headReq, tailReq := s.hooks.TxRequirements(head.FrameType)
	if uint32(head.HeadLength) < headReq {
		return false, true, nil
	}
	tail := descs[len(descs)-1]
	if uint32(tail.TailLength) < tailReq {
		return false, true, nil
	}

	regions := txRegions(descs, headReq, tailReq)
	attached := txn.Attach(TxBuffer{
		Session:         s,
		SessionID:       s.id,
		DescriptorIndex: indices[0],
		FrameType:       head.FrameType,
		Regions:         regions,
	})
	if !attached {
		return false, false, nil
	}
	s.inFlightTx.Add(1)
	s.hooks.NotifyTxAccepted(s, indices[0])
	return true, false, nil
}

// PeekTxRegions re-derives the region spans and frame type of an
// already-accepted tx descriptor chain, for the device-interface's
// tx-listen fan-out: it does not touch
// in_flight_tx or re-attach anything, it only recomputes the byte
// spans a listener session should copy from.
func (s *Session) PeekTxRegions(descIndex uint16) ([]Region, uint8, error) {
	_, descs, err := s.chain(descIndex)
	if err != nil {
		return nil, 0, err
	}
	headReq, tailReq := s.hooks.TxRequirements(descs[0].FrameType)
	return txRegions(descs, headReq, tailReq), descs[0].FrameType, nil
}

// ReturnTx is called by the tx-queue with one descriptor's completion
// status. It maps status to
// return-flags, writes the descriptor back, and decrements in_flight_tx.
func (s *Session) ReturnTx(descIndex uint16, status CompletionStatus) error {
	d, err := s.readDescriptor(descIndex)
	if err != nil {
		return err
	}
	d.ReturnFlags = returnFlagsFor(status)
	if err := s.writeDescriptor(descIndex, d); err != nil {
		return err
	}
	if _, writeErr := s.txFIFO.TryWrite([]uint16{descIndex}); writeErr != nil {
		return writeErr
	}
	s.inFlightTx.Add(-1)
	return nil
}
