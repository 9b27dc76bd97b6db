package rxqueue

import (
	"github.com/go-netdevice/netdevice/internal/port"
)

// Port keys for the rx-queue's device-wide worker. QUIT has no
// dedicated source, the same way a session's tx worker treats Close as
// its stop signal: the worker loop exits on any Wait error, and Stop
// closes the port directly to produce one.
const (
	keyRxTrigger      = port.KeyResume
	keySessionChanged = port.KeyTimer
	keyFIFOReady      = port.KeyDynamicBase
)

// Start spawns the rx-queue's refill/wait worker, grounded on the same
// port-driven event loop shape as internal/session's tx worker.
func (q *Queue) Start() error {
	p, err := port.New()
	if err != nil {
		return err
	}
	triggerSrc, err := p.NewSource(keyRxTrigger)
	if err != nil {
		p.Close()
		return err
	}
	changedSrc, err := p.NewSource(keySessionChanged)
	if err != nil {
		p.Close()
		return err
	}
	fifoSrc, err := p.NewSource(keyFIFOReady)
	if err != nil {
		p.Close()
		return err
	}

	q.port = p
	q.triggerSource = triggerSrc
	q.changedSource = changedSrc
	q.fifoSource = fifoSrc
	q.stopped = make(chan struct{})

	go q.loop()
	_ = triggerSrc.Post()
	return nil
}

// Stop closes the worker's port and then posts RX_TRIGGER: closing an
// epoll fd does not wake a Wait already blocked on it, so the post
// wakes it, the loop runs one more refill pass, and its next Wait
// returns the error it treats as exit. Stop does not join the
// goroutine.
func (q *Queue) Stop() {
	if q.port == nil {
		return
	}
	q.port.Close()
	_ = q.triggerSource.Post()
}

// WaitStopped blocks until the worker goroutine has exited. No-op if
// Start was never called.
func (q *Queue) WaitStopped() {
	if q.stopped == nil {
		return
	}
	<-q.stopped
}

// NotifySessionChanged posts SESSION_CHANGED, prompting the worker to
// drop any stale FIFO wait and re-enter the refill phase against
// whatever SetPrimary last installed.
func (q *Queue) NotifySessionChanged() {
	if q.changedSource != nil {
		_ = q.changedSource.Post()
	}
}

// triggerRefill posts RX_TRIGGER, used by CompleteRxList once
// device_buffer_count is at or below the notify threshold.
func (q *Queue) triggerRefill() {
	if q.triggerSource != nil {
		_ = q.triggerSource.Post()
	}
}

func (q *Queue) loop() {
	defer close(q.stopped)
	for {
		keys, err := q.port.Wait(-1)
		if err != nil {
			return
		}
		refill := false
		for _, k := range keys {
			switch k {
			case keySessionChanged:
				q.fifoWaitArmed = false
				refill = true
			case keyFIFOReady:
				q.fifoWaitArmed = false
				refill = true
			case keyRxTrigger:
				refill = true
			}
		}
		if !refill {
			continue
		}
		q.Refill()
		q.armFIFOWaitIfNeeded()
	}
}

// armFIFOWaitIfNeeded arms a one-shot wait on the primary session's rx
// FIFO readiness when the device still has room for space buffers,
// re-entering the refill phase on signal. The signal channel is
// captured before the readability check so a write landing between
// the refill pass and the arming still closes the captured channel
// rather than being lost.
func (q *Queue) armFIFOWaitIfNeeded() {
	primary := q.currentPrimary()
	if primary == nil {
		return
	}
	if q.DeviceBufferCount() >= q.hooks.RxDepth() {
		return
	}
	if q.fifoWaitArmed {
		return
	}
	q.fifoWaitArmed = true
	sig := primary.RxSignal()
	if primary.RxReadable() {
		_ = q.fifoSource.Post()
		return
	}
	go func() {
		select {
		case <-sig:
			_ = q.fifoSource.Post()
		case <-q.stopped:
		}
	}()
}
