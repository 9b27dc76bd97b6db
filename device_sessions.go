package netdevice

import (
	"github.com/go-netdevice/netdevice/internal/constants"
	"github.com/go-netdevice/netdevice/internal/devcontract"
	"github.com/go-netdevice/netdevice/internal/fifo"
	"github.com/go-netdevice/netdevice/internal/session"
	"github.com/go-netdevice/netdevice/internal/vmo"
	"github.com/go-netdevice/netdevice/internal/wire"
)

// SessionParams is the open contract's input: everything a client
// supplies to OpenSession.
type SessionParams struct {
	Name              string
	DescriptorCount   uint16
	DescriptorLength  uint16
	DescriptorVersion uint32
	Primary           bool
	ListenTx          bool
	RxFrameTypes      []uint8
}

// SessionHandle is what OpenSession hands back to the caller: the
// session itself plus the two FIFOs and the registered VMOs the
// client reads/writes descriptors and payload through.
type SessionHandle struct {
	Session   *session.Session
	RxFIFO    *fifo.FIFO
	TxFIFO    *fifo.FIFO
	VMOID     int
	DataVMO   *vmo.VMO
	DescVMO   *vmo.VMO
}

// OpenSession validates params, allocates the session's resources,
// registers its data VMO with the device implementation, spawns its
// tx worker, and runs primacy election.
func (d *Device) OpenSession(params SessionParams) (*SessionHandle, error) {
	d.teardownMu.Lock()
	stage := d.teardown
	d.teardownMu.Unlock()
	if stage != teardownRunning {
		return nil, NewError("device.open_session", CodeUnavailable, "device is tearing down")
	}

	for _, ft := range params.RxFrameTypes {
		if !d.RxFrameSupported(ft) {
			return nil, NewError("device.open_session", CodeInvalidArgs, "unsupported rx frame type")
		}
	}

	dataVMO := vmo.New(int64(params.DescriptorCount) * constants.DefaultBufferLength)
	descVMO := vmo.New(int64(params.DescriptorCount) * int64(params.DescriptorLength))

	d.vmosMu.Lock()
	err := d.vmos.Reserve(1)
	var vmoID int
	if err == nil {
		vmoID, err = d.vmos.Register(dataVMO)
	}
	d.vmosMu.Unlock()
	if err != nil {
		return nil, NewError("device.open_session", CodeNoResources, "vmo store exhausted")
	}

	if err := d.impl.PrepareVmo(vmoID, dataVMO.Bytes()); err != nil {
		d.vmosMu.Lock()
		_ = d.vmos.Unregister(vmoID)
		d.vmosMu.Unlock()
		return nil, WrapError("device.open_session", err)
	}

	rxDepth := fifoDepth(d.info.RxDepth)
	txDepth := fifoDepth(d.info.TxDepth)
	rxFIFO := fifo.New(rxDepth)
	txFIFO := fifo.New(txDepth)

	cfg := session.Config{
		Name:              params.Name,
		DescriptorVMO:     descVMO,
		DataVMO:           dataVMO,
		DescriptorCount:   params.DescriptorCount,
		DescriptorLength:  params.DescriptorLength,
		DescriptorVersion: params.DescriptorVersion,
		Primary:           params.Primary,
		ListenTx:          params.ListenTx,
		RxFrameTypes:      params.RxFrameTypes,
		VMOID:             vmoID,
		RxFIFO:            rxFIFO,
		TxFIFO:            txFIFO,
	}

	hooks := &sessionHooks{d: d}
	s, err := session.New(cfg, hooks)
	if err != nil {
		d.releaseVMO(vmoID)
		return nil, err
	}
	hooks.s = s

	if err := s.Start(); err != nil {
		d.releaseVMO(vmoID)
		return nil, WrapError("device.open_session", err)
	}

	d.sessionsMu.Lock()
	d.sessions[s.ID()] = s
	d.sessionsMu.Unlock()
	d.metrics.RecordSessionOpened()

	d.SessionStarted(s)

	return &SessionHandle{
		Session: s,
		RxFIFO:  rxFIFO,
		TxFIFO:  txFIFO,
		VMOID:   vmoID,
		DataVMO: dataVMO,
		DescVMO: descVMO,
	}, nil
}

func fifoDepth(deviceDepth uint16) int {
	d := int(deviceDepth) * 2
	if d > constants.MaxFIFODepth {
		d = constants.MaxFIFODepth
	}
	if d <= 0 {
		d = 1
	}
	return d
}

func (d *Device) releaseVMO(vmoID int) {
	d.vmosMu.Lock()
	_ = d.vmos.Unregister(vmoID)
	d.vmosMu.Unlock()
	_ = d.impl.ReleaseVmo(vmoID)
}

// TxFrameSupported reports whether frameType is in the device's
// advertised tx type set. Tx and rx type sets are validated
// independently; a type the device only receives is not transmittable.
func (d *Device) TxFrameSupported(frameType uint8) bool {
	for _, ft := range d.info.TxTypes {
		if ft.FrameType == frameType {
			return true
		}
	}
	return false
}

// RxFrameSupported reports whether frameType is in the device's
// advertised rx type set, the set rx subscriptions are checked against.
func (d *Device) RxFrameSupported(frameType uint8) bool {
	for _, ft := range d.info.RxTypes {
		if ft == frameType {
			return true
		}
	}
	return false
}

// TxRequirements returns the device's required tx head/tail lengths
// for frameType. The framework does not vary these
// per frame type beyond what the device advertises globally.
func (d *Device) TxRequirements(frameType uint8) (headLength, tailLength uint32) {
	return d.info.MinTxBufferHead, d.info.MinTxBufferTail
}

// BeginTx opens the device-wide tx transaction.
func (d *Device) BeginTx() session.TxTransaction {
	return d.txQueue.BeginTx()
}

// NotifyTxAccepted implements the tx-listen fan-out trigger: every
// accepted tx descriptor is offered to listening sessions unless
// NO_AUTO_SNOOP is set or no session listens.
func (d *Device) NotifyTxAccepted(owner *session.Session, descriptorIndex uint16) {
	d.metrics.RecordTx(0)
	if d.info.Features&devcontract.FeatureNoAutoSnoop != 0 {
		return
	}
	if !d.hasListenSessions.Load() {
		return
	}
	d.listenFromTx(owner, descriptorIndex)
}

func (d *Device) listenFromTx(owner *session.Session, descIndex uint16) {
	regions, frameType, err := owner.PeekTxRegions(descIndex)
	if err != nil {
		return
	}

	d.sessionsMu.Lock()
	listeners := make([]*session.Session, 0, len(d.sessions))
	if d.primary != nil && d.primary != owner && d.primary.ListenTx() {
		listeners = append(listeners, d.primary)
	}
	for _, s := range d.sessions {
		if s == owner || s == d.primary || !s.ListenTx() {
			continue
		}
		listeners = append(listeners, s)
	}
	d.sessionsMu.Unlock()

	fill := session.RxFill{FrameType: frameType, InfoType: wire.NoInfo}
	for _, l := range listeners {
		regionsCopy := append([]session.Region(nil), regions...)
		l.ListenFromTx(owner.DataVMO(), regionsCopy, fill)
	}
}

// NotifyDeadSession implements the KILLED->limbo transition: removes
// the session from the active
// registry (or primary slot), purges it from the rx-queue if it was
// primary, destroys it immediately if nothing is in flight, otherwise
// parks it on the dead-sessions list.
func (d *Device) NotifyDeadSession(s *session.Session) {
	if !s.Paused() {
		d.SessionStopped(s)
	}

	d.sessionsMu.Lock()
	wasPrimary := d.primary == s
	delete(d.sessions, s.ID())
	if wasPrimary {
		d.primary = nil
		d.electPrimaryLocked()
	}
	d.sessionsMu.Unlock()

	if wasPrimary {
		d.rxQueue.PurgeSession(s)
	}

	s.MarkDead()
	d.metrics.RecordSessionKilled()

	if s.ReadyToDestroy() {
		d.destroySession(s)
		d.continueTeardown(teardownSessions)
		return
	}

	d.deadMu.Lock()
	d.deadSessions = append(d.deadSessions, s)
	d.deadMu.Unlock()
}

// PruneDeadSessions destroys any dead session whose in-flight counters
// have reached zero since the last scan.
func (d *Device) PruneDeadSessions() {
	d.deadMu.Lock()
	live := d.deadSessions[:0]
	var ready []*session.Session
	for _, s := range d.deadSessions {
		if s.ReadyToDestroy() {
			ready = append(ready, s)
		} else {
			live = append(live, s)
		}
	}
	d.deadSessions = live
	d.deadMu.Unlock()

	for _, s := range ready {
		d.destroySession(s)
	}
	if len(ready) > 0 {
		d.continueTeardown(teardownSessions)
	}
}

func (d *Device) destroySession(s *session.Session) {
	s.CloseRxFIFO()
	d.releaseVMO(s.VMOID())
	s.MarkDestroyed()
	d.metrics.RecordSessionClosed()
}

// CommitAllSessions flushes every registered session's rx return
// scratch array and prunes any dead session ready to be destroyed.
func (d *Device) CommitAllSessions() {
	d.sessionsMu.Lock()
	toCommit := make([]*session.Session, 0, len(d.sessions)+1)
	if d.primary != nil {
		toCommit = append(toCommit, d.primary)
	}
	for _, s := range d.sessions {
		if s == d.primary {
			continue
		}
		toCommit = append(toCommit, s)
	}
	d.sessionsMu.Unlock()

	for _, s := range toCommit {
		_ = s.CommitRx()
	}
	d.PruneDeadSessions()
}

// FanOut implements CopySessionData:
// offers a completed rx frame from owner to every other session's rx
// pool.
func (d *Device) FanOut(owner *session.Session, fill session.RxFill, regions []session.Region) {
	d.sessionsMu.Lock()
	listeners := make([]*session.Session, 0, len(d.sessions)+1)
	if d.primary != nil && d.primary != owner {
		listeners = append(listeners, d.primary)
	}
	for _, s := range d.sessions {
		if s == owner || s == d.primary {
			continue
		}
		listeners = append(listeners, s)
	}
	d.sessionsMu.Unlock()

	for _, l := range listeners {
		regionsCopy := append([]session.Region(nil), regions...)
		l.CompleteRxWith(owner.DataVMO(), regionsCopy, fill)
	}
}

// sessionHooks adapts a *Device to the narrow session.Hooks interface
// for one specific session, so internal/session never imports the
// root package.
type sessionHooks struct {
	d *Device
	s *session.Session
}

func (h *sessionHooks) TxFrameSupported(ft uint8) bool { return h.d.TxFrameSupported(ft) }
func (h *sessionHooks) RxFrameSupported(ft uint8) bool { return h.d.RxFrameSupported(ft) }
func (h *sessionHooks) TxRequirements(ft uint8) (uint32, uint32) { return h.d.TxRequirements(ft) }
func (h *sessionHooks) RxDepth() int                             { return h.d.RxDepth() }
func (h *sessionHooks) NotifyDeadSession(s *session.Session)     { h.d.NotifyDeadSession(s) }

func (h *sessionHooks) NotifyTxAccepted(owner *session.Session, descriptorIndex uint16) {
	h.d.NotifyTxAccepted(owner, descriptorIndex)
}

// BeginTx wraps the device-wide tx transaction so a first Attach
// failure (IO_OVERRUN) registers this session to be nudged once
// capacity frees up.
func (h *sessionHooks) BeginTx() session.TxTransaction {
	return &txTxnWrapper{inner: h.d.BeginTx(), queue: h.d.txQueue, sess: h.s}
}

type txTxnWrapper struct {
	inner      session.TxTransaction
	queue      interface{ RegisterOverrun(*session.Session) }
	sess       *session.Session
	registered bool
}

func (w *txTxnWrapper) Attach(buf session.TxBuffer) bool {
	ok := w.inner.Attach(buf)
	if !ok && !w.registered {
		w.registered = true
		w.queue.RegisterOverrun(w.sess)
	}
	return ok
}

func (w *txTxnWrapper) Close() { w.inner.Close() }
