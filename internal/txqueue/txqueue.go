// Package txqueue implements the device-wide tx batching: a
// fixed-capacity in-flight slab shared by every session's FetchTx
// call, and the return path that maps device completions back to the
// owning session. It runs no goroutine or port of its own; batches are
// built and flushed on each session's tx worker.
package txqueue

import (
	"sort"
	"sync"

	"github.com/go-netdevice/netdevice/internal/bufpool"
	"github.com/go-netdevice/netdevice/internal/devcontract"
	"github.com/go-netdevice/netdevice/internal/logging"
	"github.com/go-netdevice/netdevice/internal/ringbuf"
	"github.com/go-netdevice/netdevice/internal/session"
)

type inFlight struct {
	buf session.TxBuffer
}

// Sink is what the tx-queue forwards completed batches to; the
// device-interface's DeviceImplementation satisfies it directly.
type Sink interface {
	QueueTx(buffers []devcontract.TxBuffer)
}

// Queue owns the device-wide in-flight tx slab and the return queue of
// completed buffer ids.
type Queue struct {
	mu     sync.Mutex
	slab   *ringbuf.Slab[inFlight]
	device Sink
	logger *logging.Logger
	batch  *bufpool.Pool[devcontract.TxBuffer]

	wasFull     bool
	pendingWake map[uint64]*session.Session
}

// New creates a Queue with in-flight capacity depth (device tx-depth).
func New(depth int, device Sink) *Queue {
	return &Queue{
		slab:        ringbuf.NewSlab[inFlight](depth),
		device:      device,
		logger:      logging.Default(),
		batch:       bufpool.New[devcontract.TxBuffer](),
		pendingWake: make(map[uint64]*session.Session),
	}
}

// Available reports the number of free in-flight slots.
func (q *Queue) Available() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.slab.Available()
}

// Overrun reports whether the slab has no free slots (the IO_OVERRUN
// condition).
func (q *Queue) Overrun() bool {
	return q.Available() == 0
}

type attachedBuf struct {
	id  int
	buf session.TxBuffer
}

// transaction is a session.TxTransaction that holds the queue lock for
// its entire lifetime and flushes the accepted batch to the device
// outside the lock on Close.
type transaction struct {
	q        *Queue
	attached []attachedBuf
	locked   bool
}

// BeginTx opens a transaction, acquiring the queue lock until Close.
func (q *Queue) BeginTx() session.TxTransaction {
	q.mu.Lock()
	return &transaction{q: q, locked: true}
}

func (t *transaction) Attach(buf session.TxBuffer) bool {
	q := t.q
	if q.slab.Available() == 0 {
		q.wasFull = true
		return false
	}
	idx := q.slab.Push(inFlight{buf: buf})
	t.attached = append(t.attached, attachedBuf{id: idx, buf: buf})
	return true
}

func (t *transaction) Close() {
	if t.locked {
		t.q.mu.Unlock()
		t.locked = false
	}
	if len(t.attached) == 0 {
		return
	}
	batch := t.q.batch.Get(len(t.attached))
	for i, a := range t.attached {
		var vmoID int
		if a.buf.Session != nil {
			vmoID = a.buf.Session.VMOID()
		}
		regions := make([]devcontract.Region, len(a.buf.Regions))
		var length uint32
		for j, r := range a.buf.Regions {
			regions[j] = devcontract.Region{Offset: r.Offset, Length: r.Length}
			length += r.Length
		}
		batch[i] = devcontract.TxBuffer{
			ID:              uint32(a.id),
			VMOID:           vmoID,
			SessionID:       a.buf.SessionID,
			DescriptorIndex: a.buf.DescriptorIndex,
			FrameType:       a.buf.FrameType,
			Regions:         regions,
			Length:          length,
		}
	}
	t.q.device.QueueTx(batch)
	t.q.batch.Put(batch)
}

// CompleteTxList is the device's completion callback path: it
// resolves each slab id to its owning session, groups
// consecutive same-session entries, and calls that session's ReturnTx
// on the group. It reports whether capacity had been exhausted since
// the last call, so the device-interface can wake overrun sessions.
func (q *Queue) CompleteTxList(results []devcontract.TxResult) (wasFull bool) {
	type entry struct {
		id      uint32
		session *session.Session
		desc    uint16
		status  session.CompletionStatus
	}
	entries := make([]entry, 0, len(results))

	q.mu.Lock()
	wasFull = q.wasFull
	q.wasFull = false
	for _, r := range results {
		idx := int(r.ID)
		if !q.slab.Used(idx) {
			continue
		}
		inf := q.slab.Get(idx)
		entries = append(entries, entry{
			id:      r.ID,
			session: inf.buf.Session,
			desc:    inf.buf.DescriptorIndex,
			status:  statusFrom(r.Status),
		})
		q.slab.Free(idx)
	}
	q.mu.Unlock()

	sort.SliceStable(entries, func(i, j int) bool {
		si, sj := entries[i].session, entries[j].session
		if si == sj {
			return false
		}
		if si == nil {
			return true
		}
		if sj == nil {
			return false
		}
		return si.ID() < sj.ID()
	})

	for _, e := range entries {
		if e.session == nil {
			continue
		}
		if err := e.session.ReturnTx(e.desc, e.status); err != nil {
			q.logger.Warn("tx return failed", "session", e.session.Name(), "error", err)
		}
	}

	if wasFull {
		q.mu.Lock()
		woken := make([]*session.Session, 0, len(q.pendingWake))
		for id, s := range q.pendingWake {
			woken = append(woken, s)
			delete(q.pendingWake, id)
		}
		q.mu.Unlock()
		for _, s := range woken {
			s.Nudge()
		}
	}
	return wasFull
}

// RegisterOverrun records that s should be nudged once capacity frees
// up; called by the device-interface when a session's FetchTx reports
// IO_OVERRUN.
func (q *Queue) RegisterOverrun(s *session.Session) {
	q.mu.Lock()
	q.pendingWake[s.ID()] = s
	q.mu.Unlock()
}

// Reclaim returns every in-flight buffer to its session with
// UNAVAILABLE, per the STOPPED reclaim policy.
func (q *Queue) Reclaim() {
	q.mu.Lock()
	type held struct {
		idx  int
		s    *session.Session
		desc uint16
	}
	all := make([]held, 0)
	q.slab.Each(func(idx int, v *inFlight) bool {
		all = append(all, held{idx: idx, s: v.buf.Session, desc: v.buf.DescriptorIndex})
		return true
	})
	for _, h := range all {
		q.slab.Free(h.idx)
	}
	q.mu.Unlock()

	for _, h := range all {
		if h.s == nil {
			continue
		}
		if err := h.s.ReturnTx(h.desc, session.StatusUnavailable); err != nil {
			q.logger.Warn("tx reclaim return failed", "session", h.s.Name(), "error", err)
		}
	}
}

func statusFrom(s devcontract.Status) session.CompletionStatus {
	switch s {
	case devcontract.StatusOK:
		return session.StatusOK
	case devcontract.StatusNotSupported:
		return session.StatusNotSupported
	case devcontract.StatusNoResources:
		return session.StatusNoResources
	case devcontract.StatusUnavailable:
		return session.StatusUnavailable
	default:
		return session.StatusOther
	}
}
