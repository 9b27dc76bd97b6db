package session

// SetPaused implements the ALIVE(paused)/ALIVE(running) transitions.
// The caller (device-interface) is responsible for firing the
// corresponding session-started/-stopped notifications; SetPaused only
// flips the flag.
func (s *Session) SetPaused(paused bool) {
	s.paused.Store(paused)
}

// Kill tears the session down for a contract breach, peer close, or
// explicit Close. It is idempotent and non-blocking: it
// signals the tx worker to exit (safe to call from the tx worker's own
// goroutine, e.g. on a FetchTx contract breach) without joining it.
// Callers needing a synchronous guarantee that the worker has fully
// exited should follow Kill with WaitStopped.
func (s *Session) Kill() {
	if !s.state.CompareAndSwap(int32(StateAlive), int32(StateKilled)) {
		return
	}
	s.rxValid.Store(false)
	s.requestTxWorkerStop()
	s.txFIFO.Close()
	s.hooks.NotifyDeadSession(s)
}

// Close is the client-initiated counterpart to Kill; both converge on
// the same KILLED transition.
func (s *Session) Close() { s.Kill() }

// WaitStopped blocks until the tx worker goroutine has exited. It is a
// no-op if the worker was never started.
func (s *Session) WaitStopped() {
	if s.txStopped == nil {
		return
	}
	<-s.txStopped
}

// InvalidateRx marks the session's rx side as no longer serviceable
// without touching tx or the lifecycle state, for the rx-queue's
// PurgeSession: a session can be purged from the rx-queue's
// bookkeeping independently of a full Kill (e.g. it is simply no
// longer registered for rx fan-out).
func (s *Session) InvalidateRx() {
	s.rxValid.Store(false)
}

// MarkDead moves a killed session to DEAD once it has left the active
// registry. The device-interface calls this after removing the session
// from its active list / clearing the primary slot.
func (s *Session) MarkDead() {
	s.state.CompareAndSwap(int32(StateKilled), int32(StateDead))
}

// ReadyToDestroy reports whether both in-flight counters have reached
// zero, the condition PruneDeadSessions scans for.
func (s *Session) ReadyToDestroy() bool {
	return s.State() == StateDead && s.inFlightTx.Load() == 0 && s.inFlightRx.Load() == 0
}

// MarkDestroyed transitions DEAD -> DESTROYED; the caller has already
// released the VMO registration and removed the session from the dead
// list.
func (s *Session) MarkDestroyed() {
	s.state.CompareAndSwap(int32(StateDead), int32(StateDestroyed))
}

// CloseRxFIFO closes the shared rx FIFO reference once the rx-queue
// confirms it is no longer holding space buffers for this session.
func (s *Session) CloseRxFIFO() {
	s.rxFIFO.Unref()
}
