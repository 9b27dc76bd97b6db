package netdevice

import (
	"github.com/go-netdevice/netdevice/internal/devcontract"
	"github.com/go-netdevice/netdevice/internal/session"
	"github.com/go-netdevice/netdevice/internal/status"
)

// electPrimaryLocked runs the primacy election over
// every primary-flagged session currently registered and installs the
// winner if it differs from the incumbent. Must be called with
// sessionsMu held.
func (d *Device) electPrimaryLocked() {
	var best *session.Session
	for _, s := range d.sessions {
		if !s.Primary() {
			continue
		}
		if best == nil || better(s, best) {
			best = s
		}
	}
	if best == d.primary {
		return
	}
	d.primary = best
	d.rxQueue.SetPrimary(best)
	d.metrics.RecordPrimaryElection()
}

// better reports whether candidate should take over primary from
// incumbent:
// a non-paused candidate beats a paused incumbent; otherwise the
// strictly larger descriptor_count wins; ties keep whichever session
// opened first (lower ID).
func better(candidate, incumbent *session.Session) bool {
	cp, ip := candidate.Paused(), incumbent.Paused()
	if cp != ip {
		return !cp
	}
	if candidate.DescriptorCount() != incumbent.DescriptorCount() {
		return candidate.DescriptorCount() > incumbent.DescriptorCount()
	}
	return candidate.ID() < incumbent.ID()
}

// recomputeListenLocked refreshes the hot-path hint NotifyTxAccepted
// checks before locking the registry.
// Must be called with sessionsMu held.
func (d *Device) recomputeListenLocked() {
	has := d.primary != nil && d.primary.ListenTx() && !d.primary.Paused()
	if !has {
		for _, s := range d.sessions {
			if s.ListenTx() && !s.Paused() {
				has = true
				break
			}
		}
	}
	d.hasListenSessions.Store(has)
}

// SessionStarted implements the primary-session-unpaused trigger:
// bumps the active-primary count, re-runs primacy election, and starts
// the device once the count leaves zero.
func (d *Device) SessionStarted(s *session.Session) {
	d.sessionsMu.Lock()
	if s.Primary() {
		d.activePrimary++
		d.electPrimaryLocked()
	}
	d.recomputeListenLocked()
	shouldStart := d.activePrimary != 0
	d.sessionsMu.Unlock()

	if shouldStart {
		d.StartDevice()
	}
}

// SessionStopped implements the primary-session-paused-or-dying
// trigger: drops the active-primary
// count, promotes a replacement primary if s held that slot, and
// stops the device once the count reaches zero.
func (d *Device) SessionStopped(s *session.Session) {
	d.sessionsMu.Lock()
	if s.Primary() {
		if d.activePrimary > 0 {
			d.activePrimary--
		}
		if d.primary == s {
			d.electPrimaryLocked()
		}
	}
	d.recomputeListenLocked()
	shouldStop := d.activePrimary == 0
	d.sessionsMu.Unlock()

	if shouldStop {
		d.StopDevice()
	}
}

// SetSessionPaused implements the pause/unpause primacy-arbitration
// trigger: it flips s's paused flag and then fires the same
// SessionStopped/SessionStarted events a session death/open would, so
// a paused primary immediately loses the election to a running
// session and an unpaused one can reclaim it.
func (d *Device) SetSessionPaused(s *session.Session, paused bool) {
	s.SetPaused(paused)
	if paused {
		d.SessionStopped(s)
	} else {
		d.SessionStarted(s)
	}
}

// StartDevice implements the device start-state transition: it
// invokes the device implementation's Start while STOPPED, or
// coalesces into the pending op otherwise.
func (d *Device) StartDevice() {
	d.stateMu.Lock()
	switch d.status {
	case statusStopped:
		d.status = statusStarting
		d.stateMu.Unlock()
		d.impl.Start(d.deviceStarted)
		return
	case statusStopping:
		d.pending = pendingStart
	default: // STARTING, STARTED
		d.pending = pendingNone
	}
	d.stateMu.Unlock()
}

// StopDevice implements the device stop-state transition: it invokes
// the device implementation's Stop while STARTED, or coalesces into
// the pending op otherwise.
func (d *Device) StopDevice() {
	d.stateMu.Lock()
	switch d.status {
	case statusStarted:
		d.status = statusStopping
		d.stateMu.Unlock()
		d.impl.Stop(d.deviceStopped)
		return
	case statusStarting:
		d.pending = pendingStop
	default: // STOPPED, STOPPING
		d.pending = pendingNone
	}
	d.stateMu.Unlock()
}

// setDeviceStatus records the new status, captures and clears the
// coalesced pending op, and reclaims both queues' device-held buffers
// if the device just reached STOPPED.
func (d *Device) setDeviceStatus(newStatus deviceStatus) pendingOp {
	d.stateMu.Lock()
	pending := d.pending
	d.status = newStatus
	d.pending = pendingNone
	d.stateMu.Unlock()

	if newStatus == statusStopped {
		d.txQueue.Reclaim()
		d.rxQueue.Reclaim()
	}
	return pending
}

// deviceStarted is the callback the device implementation invokes once
// Start has taken effect.
func (d *Device) deviceStarted() {
	pending := d.setDeviceStatus(statusStarted)
	if pending == pendingStop {
		d.StopDevice()
		return
	}
	d.notifyTxQueueAvailable()
	d.rxQueue.NotifySessionChanged()
}

// deviceStopped is the callback the device implementation invokes once
// Stop has taken effect.
func (d *Device) deviceStopped() {
	pending := d.setDeviceStatus(statusStopped)
	if d.continueTeardown(teardownSessions) {
		return
	}
	if pending == pendingStart {
		d.StartDevice()
	}
}

// notifyTxQueueAvailable wakes every registered session's tx worker.
func (d *Device) notifyTxQueueAvailable() {
	d.sessionsMu.Lock()
	sessions := make([]*session.Session, 0, len(d.sessions))
	for _, s := range d.sessions {
		sessions = append(sessions, s)
	}
	d.sessionsMu.Unlock()
	for _, s := range sessions {
		s.Nudge()
	}
}

// StatusChanged forwards a link-status change to every registered
// watcher.
func (d *Device) StatusChanged(ls status.LinkStatus) {
	d.statusMu.Lock()
	watchers := make([]*status.Watcher, 0, len(d.statusWatchers))
	for _, w := range d.statusWatchers {
		watchers = append(watchers, w)
	}
	d.statusMu.Unlock()
	for _, w := range watchers {
		w.PushStatus(ls)
	}
}

// CompleteTx forwards a tx completion batch to the tx-queue.
func (d *Device) CompleteTx(results []devcontract.TxResult) {
	d.txQueue.CompleteTxList(results)
}

// CompleteRx forwards an rx completion batch to the rx-queue.
func (d *Device) CompleteRx(results []devcontract.RxResult) {
	d.rxQueue.CompleteRxList(results)
}

// Snoop records that a frame crossed the device without inspecting it.
func (d *Device) Snoop(frameType uint8, length uint32) {
	d.metrics.SnoopFrames.Inc()
}
