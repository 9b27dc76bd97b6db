package netdevice

import (
	"time"

	"github.com/go-netdevice/netdevice/internal/constants"
	"github.com/go-netdevice/netdevice/internal/session"
	"github.com/go-netdevice/netdevice/internal/status"
)

// teardownStage is the device-interface teardown FSM's state.
type teardownStage int32

const (
	teardownRunning teardownStage = iota
	teardownBindings
	teardownWatchers
	teardownSessions
	teardownFinished
)

// Teardown begins the shutdown FSM: it unbinds every client binding,
// then every status watcher, then kills every session, advancing to
// the next stage only once the current one has fully drained. callback
// fires exactly once, after the FSM reaches FINISHED, outside any
// lock. Calling Teardown again while one is already running is a no-op.
func (d *Device) Teardown(callback func()) {
	d.TeardownWithTimeout(constants.DefaultTeardownTimeout, callback)
}

// TeardownWithTimeout is Teardown with a caller-supplied deadline: if
// the FSM has not drained by then (a device implementation sitting on
// its Stop callback, a session whose buffers never come back), the
// device-interface forces the FSM to FINISHED and invokes the callback
// anyway.
func (d *Device) TeardownWithTimeout(timeout time.Duration, callback func()) {
	d.teardownMu.Lock()
	if d.teardown != teardownRunning {
		d.teardownMu.Unlock()
		return
	}
	d.teardown = teardownBindings
	d.teardownCallback = callback
	d.teardownStarted = time.Now()
	d.teardownDone = make(chan struct{})
	done := d.teardownDone
	d.teardownMu.Unlock()

	if timeout > 0 {
		go func() {
			select {
			case <-done:
			case <-time.After(timeout):
				d.forceTeardownFinished()
			}
		}()
	}

	d.bindings.CloseAll()
	d.continueTeardown(teardownBindings)
}

// forceTeardownFinished is the deadline path: it marks the FSM FINISHED
// and fires the callback if the normal drain has not already done so.
func (d *Device) forceTeardownFinished() {
	d.teardownMu.Lock()
	if d.teardown == teardownFinished {
		d.teardownMu.Unlock()
		return
	}
	d.teardown = teardownFinished
	cb := d.teardownCallback
	started := d.teardownStarted
	done := d.teardownDone
	d.teardownMu.Unlock()

	d.logger.Warn("teardown deadline reached, forcing FINISHED")
	if done != nil {
		close(done)
	}
	d.metrics.RecordTeardown(time.Since(started).Seconds())
	if cb != nil {
		cb()
	}
}

// continueTeardown re-checks whether the stage named by trigger has
// drained and, if so, advances the FSM and kicks off the next stage's
// work. It is safe to call redundantly from any completion path
// (binding unbind, watcher unbind, session death, device-stopped
// callback) since every stage's guard is idempotent. It returns true
// once teardown has reached FINISHED and the callback has fired.
func (d *Device) continueTeardown(trigger teardownStage) bool {
	d.teardownMu.Lock()

	if d.teardown == teardownBindings && trigger == teardownBindings {
		if d.bindings.Count() > 0 {
			d.teardownMu.Unlock()
			return false
		}
		d.teardown = teardownWatchers
		d.teardownMu.Unlock()
		d.watchers.CloseAll()
		return d.continueTeardown(teardownWatchers)
	}

	if d.teardown == teardownWatchers && trigger == teardownWatchers {
		if d.watchers.Count() > 0 {
			d.teardownMu.Unlock()
			return false
		}
		d.teardown = teardownSessions
		d.teardownMu.Unlock()
		d.killAllSessions()
		return d.continueTeardown(teardownSessions)
	}

	if d.teardown == teardownSessions {
		d.sessionsMu.Lock()
		d.deadMu.Lock()
		drained := len(d.sessions) == 0 && d.primary == nil && len(d.deadSessions) == 0
		d.deadMu.Unlock()
		d.sessionsMu.Unlock()

		d.stateMu.Lock()
		stopped := d.status == statusStopped
		d.stateMu.Unlock()

		if !drained || !stopped {
			d.teardownMu.Unlock()
			return false
		}
		d.teardown = teardownFinished
		cb := d.teardownCallback
		started := d.teardownStarted
		done := d.teardownDone
		d.teardownMu.Unlock()

		if done != nil {
			close(done)
		}
		d.metrics.RecordTeardown(time.Since(started).Seconds())
		if cb != nil {
			cb()
		}
		return true
	}

	d.teardownMu.Unlock()
	return false
}

// killAllSessions kills every currently registered session; each
// Kill synchronously drives NotifyDeadSession, which in turn drops
// active_primary_sessions to zero and stops the device once the last
// unpaused session dies.
func (d *Device) killAllSessions() {
	d.sessionsMu.Lock()
	toKill := make([]*session.Session, 0, len(d.sessions))
	for _, s := range d.sessions {
		toKill = append(toKill, s)
	}
	d.sessionsMu.Unlock()
	for _, s := range toKill {
		s.Kill()
	}
}

// GetStatusWatcher creates and registers a status watcher, refusing
// once teardown has begun. It
// pushes the device's current link status before returning.
func (d *Device) GetStatusWatcher(buffer int) (*status.Watcher, error) {
	d.teardownMu.Lock()
	running := d.teardown == teardownRunning
	d.teardownMu.Unlock()
	if !running {
		return nil, NewError("device.get_status_watcher", CodeBadState, "device is tearing down")
	}

	w := status.NewWatcher(buffer)
	w.PushStatus(d.impl.GetStatus())

	d.statusMu.Lock()
	d.watcherSeq++
	id := d.watcherSeq
	d.statusWatchers[id] = w
	d.statusMu.Unlock()

	d.watchers.Add(func() {
		d.statusMu.Lock()
		delete(d.statusWatchers, id)
		d.statusMu.Unlock()
		w.Close()
		d.continueTeardown(teardownWatchers)
	})

	return w, nil
}
