package session

import (
	"github.com/go-netdevice/netdevice/internal/port"
)

// Port keys for the per-session tx worker. KILL
// has no dedicated source: requestTxWorkerStop closes the port and
// posts RESUME, so the loop's next Wait returns an error the loop
// treats as exit. RESUME
// reuses the package's well-known key; TX_AVAIL is this worker's one
// dynamic source.
const (
	keyResume  = port.KeyResume
	keyTxAvail = port.KeyDynamicBase
)

// Start spawns the per-session tx-fetch worker: a single goroutine
// looping on a port with KILL/RESUME/TX_AVAIL keys until cancelled.
func (s *Session) Start() error {
	p, err := port.New()
	if err != nil {
		return err
	}
	resumeSrc, err := p.NewSource(keyResume)
	if err != nil {
		p.Close()
		return err
	}
	txAvailSrc, err := p.NewSource(keyTxAvail)
	if err != nil {
		resumeSrc.Close()
		p.Close()
		return err
	}

	s.txPort = p
	s.txResumeSource = resumeSrc
	s.txAvailSource = txAvailSrc
	s.txStopped = make(chan struct{})

	go s.txLoop()
	_ = resumeSrc.Post()
	return nil
}

func (s *Session) txLoop() {
	defer close(s.txStopped)
	for {
		keys, err := s.txPort.Wait(-1)
		if err != nil {
			return
		}
		stop := false
		rearm := false
		for _, k := range keys {
			switch k {
			case keyResume:
				rearm = true
			case keyTxAvail:
				if s.paused.Load() {
					continue
				}
				overran, err := s.FetchTx()
				if err != nil {
					s.Kill()
					stop = true
					continue
				}
				if !overran {
					rearm = true
				}
			}
		}
		if stop {
			return
		}
		if rearm {
			s.armTxWait()
		}
	}
}

// armTxWait arranges for keyTxAvail to fire the next time the tx FIFO
// becomes readable or the peer closes it; in this in-process
// implementation the FIFO's own signal channel is bridged onto the
// port via a one-shot goroutine. The signal channel is captured before
// the readability check so a write landing between the two still
// closes the captured channel rather than being lost.
func (s *Session) armTxWait() {
	sig := s.txFIFO.Signal()
	if s.txFIFO.Readable() && !s.txFIFO.Closed() {
		_ = s.txAvailSource.Post()
		return
	}
	go func() {
		select {
		case <-sig:
			_ = s.txAvailSource.Post()
		case <-s.txStopped:
		}
	}()
}

// Nudge re-posts TX_AVAIL, used by the tx-queue to wake a session's
// worker after an IO_OVERRUN cleared. A no-op before Start or after
// the worker has exited.
func (s *Session) Nudge() {
	if s.txAvailSource != nil {
		_ = s.txAvailSource.Post()
	}
}

// requestTxWorkerStop closes the port and then posts RESUME: closing an
// epoll fd does not wake a Wait already blocked on it, so the post
// wakes it and the loop's next Wait returns the error it treats as
// exit. It does not join the goroutine (Kill may itself run on it).
func (s *Session) requestTxWorkerStop() {
	if s.txPort == nil {
		return
	}
	s.txPort.Close()
	_ = s.txResumeSource.Post()
}
