// Package netdevice implements the device-interface: the root
// component that owns the session registry, primacy election, the
// device start/stop state machine, and the teardown FSM.
// It brokers every cross-session operation and is the only component
// that imports both internal/txqueue and internal/rxqueue.
package netdevice

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-netdevice/netdevice/internal/binding"
	"github.com/go-netdevice/netdevice/internal/devcontract"
	"github.com/go-netdevice/netdevice/internal/logging"
	"github.com/go-netdevice/netdevice/internal/rxqueue"
	"github.com/go-netdevice/netdevice/internal/session"
	"github.com/go-netdevice/netdevice/internal/status"
	"github.com/go-netdevice/netdevice/internal/txqueue"
	"github.com/go-netdevice/netdevice/internal/vmo"
)

// deviceStatus is the device's STOPPED/STARTING/STARTED/STOPPING
// state.
type deviceStatus int32

const (
	statusStopped deviceStatus = iota
	statusStarting
	statusStarted
	statusStopping
)

func (s deviceStatus) String() string {
	switch s {
	case statusStopped:
		return "STOPPED"
	case statusStarting:
		return "STARTING"
	case statusStarted:
		return "STARTED"
	case statusStopping:
		return "STOPPING"
	default:
		return "UNKNOWN"
	}
}

// pendingOp is the coalesced start/stop operation queued while a
// device.Start/device.Stop callback is outstanding.
type pendingOp int32

const (
	pendingNone pendingOp = iota
	pendingStart
	pendingStop
)

// Options configures a Device beyond its device implementation.
type Options struct {
	Logger  *logging.Logger
	Metrics *Metrics
}

// Device is the device-interface root component: it owns
// the session registry, the vmo store, the binding/watcher registries,
// the tx- and rx-queues, and the device start/stop and teardown state
// machines. Locks are acquired outer-to-inner in the order declared
// here: teardownMu -> sessionsMu -> deadMu -> bindings'/
// watchers' own locks (peers) -> vmosMu -> stateMu (our approximation
// of "device_status written only while both queue locks are held",
// since the queues' own locks are private to their packages).
type Device struct {
	impl    devcontract.DeviceImplementation
	info    devcontract.Info
	logger  *logging.Logger
	metrics *Metrics

	vmosMu sync.Mutex
	vmos   *vmo.Store

	sessionsMu        sync.Mutex
	sessions          map[uint64]*session.Session
	primary           *session.Session
	activePrimary     int
	hasListenSessions atomic.Bool

	deadMu       sync.Mutex
	deadSessions []*session.Session

	bindings *binding.Registry
	watchers *binding.Registry

	statusMu       sync.Mutex
	statusWatchers map[uint64]*status.Watcher
	watcherSeq     uint64

	stateMu sync.Mutex
	status  deviceStatus
	pending pendingOp

	teardownMu       sync.Mutex
	teardown         teardownStage
	teardownCallback func()
	teardownStarted  time.Time
	teardownDone     chan struct{}

	txQueue *txqueue.Queue
	rxQueue *rxqueue.Queue
}

// New constructs a Device over impl, wiring the tx- and rx-queues and
// invoking the device implementation's Init with this Device as the
// framework callback surface.
func New(impl devcontract.DeviceImplementation, opts Options) (*Device, error) {
	info := impl.GetInfo()
	d := &Device{
		impl:           impl,
		info:           info,
		logger:         opts.Logger,
		metrics:        opts.Metrics,
		vmos:           vmo.NewStore(),
		sessions:       make(map[uint64]*session.Session),
		bindings:       binding.NewRegistry(),
		watchers:       binding.NewRegistry(),
		statusWatchers: make(map[uint64]*status.Watcher),
	}
	if d.logger == nil {
		d.logger = logging.Default()
	}
	if d.metrics == nil {
		d.metrics = NewMetrics(nil)
	}

	d.txQueue = txqueue.New(int(info.TxDepth), d)
	d.rxQueue = rxqueue.New(int(info.RxDepth), d)

	if err := impl.Init(d); err != nil {
		return nil, WrapError("device.new", err)
	}
	if err := d.rxQueue.Start(); err != nil {
		return nil, WrapError("device.new", err)
	}
	return d, nil
}

// Info returns the device-info record clients see on open.
func (d *Device) Info() devcontract.Info { return d.info }

// Status returns the device's current start/stop status.
func (d *Device) Status() string {
	d.stateMu.Lock()
	defer d.stateMu.Unlock()
	return d.status.String()
}

// GetStatus forwards to the device implementation's link-status query.
func (d *Device) GetStatus() status.LinkStatus {
	return d.impl.GetStatus()
}

// HasListenSessions reports the hot-path hint the tx-listen fan-out
// consults before locking the session registry.
func (d *Device) HasListenSessions() bool { return d.hasListenSessions.Load() }

// rxqueue.Hooks

// RxDepth returns the device's advertised rx depth.
func (d *Device) RxDepth() int { return int(d.info.RxDepth) }

// QueueRxSpace forwards one refill batch to the device implementation.
func (d *Device) QueueRxSpace(buffers []devcontract.RxSpaceBuffer) {
	d.impl.QueueRxSpace(buffers)
}

// txqueue.Sink

// QueueTx forwards one completed tx batch to the device implementation.
func (d *Device) QueueTx(buffers []devcontract.TxBuffer) {
	d.impl.QueueTx(buffers)
}

// Close stops the rx-queue's background worker. It is distinct from
// Teardown: Teardown drains clients and the device while the process
// keeps running, Close is for discarding the Device itself (the
// rx-queue worker is harmless to leave running once every session and
// the device have already reached STOPPED, so nothing else forces its
// exit on its own).
func (d *Device) Close() {
	d.rxQueue.Stop()
	d.rxQueue.WaitStopped()
}
