// Package rxqueue implements the device-wide rx refill and completion
// worker: an in-flight slab correlating device rx-space
// buffers back to the session and descriptor they came from, a ring of
// descriptors fetched from sessions but not yet handed to the device,
// and the fan-out/tx-listen dispatch driven off each completion.
// Unlike internal/txqueue, which serves every session equally, this
// worker tracks a movable "primary" session it pulls space from.
package rxqueue

import (
	"sync"

	"github.com/go-netdevice/netdevice/internal/bufpool"
	"github.com/go-netdevice/netdevice/internal/devcontract"
	"github.com/go-netdevice/netdevice/internal/logging"
	"github.com/go-netdevice/netdevice/internal/port"
	"github.com/go-netdevice/netdevice/internal/ringbuf"
	"github.com/go-netdevice/netdevice/internal/session"
)

type inFlight struct {
	owner *session.Session
	desc  uint16
}

// availEntry is one descriptor fetched from a session's rx FIFO but
// not yet handed to the device. It is tagged with its owning session
// (rather than a bare index) so PurgeSession can tell which queued
// entries survive a primary handoff.
type availEntry struct {
	owner *session.Session
	desc  uint16
}

// Hooks is what the rx-queue calls back into the device-interface for;
// kept narrow the way internal/txqueue.Sink and internal/session.Hooks
// are, so this package never imports the root package.
type Hooks interface {
	// RxDepth is the device's advertised rx depth (device.rx_depth).
	RxDepth() int
	// QueueRxSpace forwards one refill batch to the device implementation.
	QueueRxSpace(buffers []devcontract.RxSpaceBuffer)
	// CommitAllSessions flushes every registered session's return-scratch
	// array (CommitRx on primary then each other session) and then prunes
	// any session that has reached DEAD with no in-flight buffers left.
	CommitAllSessions()
	// FanOut implements DeviceInterface::CopySessionData: called after a
	// successful CompleteRx on the primary, it offers the completed
	// frame to every other session's rx pool.
	FanOut(owner *session.Session, fill session.RxFill, ownerRegions []session.Region)
}

// Queue owns the device-wide rx in-flight slab, the available-descriptor
// ring, and the refill/completion logic.
type Queue struct {
	mu    sync.Mutex
	slab  *ringbuf.Slab[inFlight]
	avail *ringbuf.Ring[availEntry]

	hooks  Hooks
	logger *logging.Logger
	batch  *bufpool.Pool[devcontract.RxSpaceBuffer]

	deviceBufferCount int
	notifyThreshold   int

	primaryMu sync.RWMutex
	primary   *session.Session

	port          *port.Port
	triggerSource *port.EventSource
	changedSource *port.EventSource
	fifoSource    *port.EventSource
	fifoWaitArmed bool
	stopped       chan struct{}
}

// New creates a Queue sized to depth (device rx-fifo depth). The
// notify threshold is half the depth, clamped to at least 1 so a
// depth-1 device still gets refill triggers.
func New(depth int, hooks Hooks) *Queue {
	threshold := depth / 2
	if threshold < 1 {
		threshold = 1
	}
	return &Queue{
		slab:            ringbuf.NewSlab[inFlight](depth),
		avail:           ringbuf.NewRing[availEntry](depth),
		hooks:           hooks,
		logger:          logging.Default(),
		batch:           bufpool.New[devcontract.RxSpaceBuffer](),
		notifyThreshold: threshold,
	}
}

// SetPrimary installs the session the rx-queue pulls descriptors
// from. Pass nil when no session is
// primary. Stale available-ring entries belonging to the outgoing
// primary are left in place; PurgeSession is the caller's explicit
// mechanism for scrubbing them once that session is actually torn down.
func (q *Queue) SetPrimary(s *session.Session) {
	q.primaryMu.Lock()
	q.primary = s
	q.primaryMu.Unlock()
	q.NotifySessionChanged()
}

func (q *Queue) currentPrimary() *session.Session {
	q.primaryMu.RLock()
	defer q.primaryMu.RUnlock()
	return q.primary
}

// DeviceBufferCount returns the number of space buffers currently
// charged to the device.
func (q *Queue) DeviceBufferCount() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.deviceBufferCount
}

// Refill is the worker's refill phase: it tops up
// the device's outstanding rx-space buffers up to rx_depth, pulling
// first from the available ring and then from the primary session's
// rx FIFO, and forwards any assembled batch to the device.
func (q *Queue) Refill() {
	primary := q.currentPrimary()
	depth := q.hooks.RxDepth()

	q.mu.Lock()
	pushCount := depth - q.deviceBufferCount
	if pushCount > q.slab.Available() {
		pushCount = q.slab.Available()
	}
	scratch := q.batch.Get(pushCount)
	pushed := 0
	for i := 0; i < pushCount; i++ {
		buf, ok := q.prepareBuffLocked(primary)
		if !ok {
			break
		}
		scratch[pushed] = buf
		pushed++
	}
	batch := scratch[:pushed]
	q.deviceBufferCount += pushed

	if pushed == 0 && primary != nil && q.slab.Available() > 0 {
		q.drainPrimaryLocked(primary)
	}
	q.mu.Unlock()

	if pushed > 0 {
		q.hooks.QueueRxSpace(batch)
	}
	q.batch.Put(scratch)
}

// prepareBuffLocked pops one descriptor (from the available ring, or
// by fetching from the primary's rx FIFO if the ring is empty),
// allocates it a slab slot, and asks its owner to fill its rx space.
// Must be called with q.mu held.
func (q *Queue) prepareBuffLocked(primary *session.Session) (devcontract.RxSpaceBuffer, bool) {
	e, ok := q.nextAvailableLocked(primary)
	if !ok {
		return devcontract.RxSpaceBuffer{}, false
	}
	regions, err := e.owner.FillRxSpace(e.desc)
	if err != nil {
		q.logger.Warn("rx fill space failed", "session", e.owner.Name(), "error", err)
		return devcontract.RxSpaceBuffer{}, false
	}
	slabIdx := q.slab.Push(inFlight{owner: e.owner, desc: e.desc})

	var length uint32
	devRegions := make([]devcontract.Region, len(regions))
	for i, r := range regions {
		devRegions[i] = devcontract.Region{Offset: r.Offset, Length: r.Length}
		length += r.Length
	}
	return devcontract.RxSpaceBuffer{
		ID:      uint32(slabIdx),
		VMOID:   e.owner.VMOID(),
		Regions: devRegions,
		Length:  length,
	}, true
}

func (q *Queue) nextAvailableLocked(primary *session.Session) (availEntry, bool) {
	if !q.avail.Empty() {
		return q.avail.Pop(), true
	}
	if primary == nil {
		return availEntry{}, false
	}
	dst := make([]uint16, 0, 1)
	if err := primary.LoadRxDescriptors(&dst, 1); err != nil {
		return availEntry{}, false
	}
	if len(dst) == 0 {
		return availEntry{}, false
	}
	return availEntry{owner: primary, desc: dst[0]}, true
}

// drainPrimaryLocked pulls as many descriptors as the slab has room
// for from the primary's rx FIFO straight into the available ring,
// for the case where the refill pass pushed nothing but the FIFO has
// become readable again. Must be called with q.mu held.
func (q *Queue) drainPrimaryLocked(primary *session.Session) {
	room := q.slab.Available() - q.avail.Len()
	if room <= 0 {
		return
	}
	dst := make([]uint16, 0, room)
	if err := primary.LoadRxDescriptors(&dst, room); err != nil {
		return
	}
	for _, idx := range dst {
		if q.avail.Full() {
			break
		}
		q.avail.Push(availEntry{owner: primary, desc: idx})
	}
}

// PurgeSession discards every available-ring entry belonging to s and
// marks its rx side invalid: it rotates the
// whole ring, re-pushing only entries owned by some other session.
func (q *Queue) PurgeSession(s *session.Session) {
	s.InvalidateRx()

	q.mu.Lock()
	defer q.mu.Unlock()
	n := q.avail.Len()
	for i := 0; i < n; i++ {
		e := q.avail.Pop()
		if e.owner == s {
			continue
		}
		q.avail.Push(e)
	}
}

// Reclaim drains every device-held in-flight rx buffer and every
// queued available-ring entry back to its owning session, each as a
// reusable zero-length completion. A buffer whose session has since
// died is simply dropped. Caller must hold whatever lock the
// device-interface uses to serialize this against Refill/CompleteRxList.
func (q *Queue) Reclaim() {
	type owned struct {
		owner *session.Session
		desc  uint16
	}

	q.mu.Lock()
	reclaimed := make([]owned, 0, q.slab.Len()+q.avail.Len())
	q.slab.Each(func(i int, v *inFlight) bool {
		reclaimed = append(reclaimed, owned{owner: v.owner, desc: v.desc})
		return true
	})
	for i := 0; i < q.slab.Cap(); i++ {
		if q.slab.Used(i) {
			q.slab.Free(i)
		}
	}
	for !q.avail.Empty() {
		e := q.avail.Pop()
		reclaimed = append(reclaimed, owned{owner: e.owner, desc: e.desc})
	}
	q.deviceBufferCount = 0
	q.mu.Unlock()

	for _, r := range reclaimed {
		if r.owner == nil {
			continue
		}
		if _, err := r.owner.CompleteRx(r.desc, session.RxFill{}); err != nil {
			q.logger.Warn("rx reclaim failed", "session", r.owner.Name(), "error", err)
		}
	}
}

// CompleteRxList is the device's rx completion callback path: it
// resolves each result's slab id back to
// the owning session and descriptor, calls that session's CompleteRx,
// fans the frame out to other sessions on success, and frees the slab
// slot. It reports whether device_buffer_count has dropped to or below
// the notify threshold so the caller can re-arm refill.
func (q *Queue) CompleteRxList(results []devcontract.RxResult) (shouldNotify bool) {
	type entry struct {
		owner *session.Session
		desc  uint16
		fill  session.RxFill
	}
	entries := make([]entry, 0, len(results))

	q.mu.Lock()
	q.deviceBufferCount -= len(results)
	for _, r := range results {
		idx := int(r.ID)
		if !q.slab.Used(idx) {
			continue
		}
		inf := *q.slab.Get(idx)
		q.slab.Free(idx)
		entries = append(entries, entry{
			owner: inf.owner,
			desc:  inf.desc,
			fill: session.RxFill{
				TotalLength: r.TotalLength,
				FrameType:   r.FrameType,
				InfoType:    r.InfoType,
			},
		})
	}
	shouldNotify = q.deviceBufferCount <= q.notifyThreshold
	q.mu.Unlock()

	for i := range entries {
		e := &entries[i]
		if e.owner == nil {
			continue
		}
		reusable, err := e.owner.CompleteRx(e.desc, e.fill)
		if err != nil {
			q.logger.Warn("rx complete failed", "session", e.owner.Name(), "error", err)
			continue
		}
		if reusable {
			q.mu.Lock()
			if !q.avail.Full() {
				q.avail.Push(availEntry{owner: e.owner, desc: e.desc})
			}
			q.mu.Unlock()
			continue
		}
		if regions, err := e.owner.PeekRxRegions(e.desc); err == nil {
			q.hooks.FanOut(e.owner, e.fill, regions)
		}
	}

	q.hooks.CommitAllSessions()
	if shouldNotify {
		q.triggerRefill()
	}
	return shouldNotify
}
