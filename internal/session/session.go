// Package session implements the per-client session: descriptor-chain
// bookkeeping over a pair of FIFOs, the tx-fetch worker, and the
// ALIVE/KILLED/DEAD/DESTROYED lifecycle state machine.
package session

import (
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/go-netdevice/netdevice/internal/constants"
	"github.com/go-netdevice/netdevice/internal/fifo"
	"github.com/go-netdevice/netdevice/internal/logging"
	"github.com/go-netdevice/netdevice/internal/port"
	"github.com/go-netdevice/netdevice/internal/vmo"
	"github.com/go-netdevice/netdevice/internal/wire"
)

// State is a session's lifecycle state.
type State int32

const (
	StateAlive State = iota
	StateKilled
	StateDead
	StateDestroyed
)

func (s State) String() string {
	switch s {
	case StateAlive:
		return "ALIVE"
	case StateKilled:
		return "KILLED"
	case StateDead:
		return "DEAD"
	case StateDestroyed:
		return "DESTROYED"
	default:
		return "UNKNOWN"
	}
}

// Region is one (offset, length) span of a session's data VMO attached
// to a tx transaction or filled in for rx.
type Region struct {
	Offset uint64
	Length uint32
}

// TxBuffer is what FetchTx attaches to the device's tx queue for one
// accepted descriptor chain.
type TxBuffer struct {
	Session         *Session
	SessionID       uint64
	DescriptorIndex uint16
	FrameType       uint8
	Regions         []Region
}

// TxTransaction is opened once per FetchTx call and closed exactly
// once; Close is where the batch reaches the device implementation.
type TxTransaction interface {
	// Attach offers one accepted buffer to the transaction. It returns
	// false if no in-flight slot remains (IO_OVERRUN); the caller must
	// stop accepting further descriptors in that case.
	Attach(buf TxBuffer) bool
	Close()
}

// Hooks is everything a Session needs from its owning device-interface
// and tx-queue, kept as a narrow interface so session logic stays
// testable without a whole device-interface behind it.
type Hooks interface {
	TxFrameSupported(frameType uint8) bool
	RxFrameSupported(frameType uint8) bool
	TxRequirements(frameType uint8) (headLength, tailLength uint32)
	RxDepth() int
	BeginTx() TxTransaction
	NotifyTxAccepted(owner *Session, descriptorIndex uint16)
	NotifyDeadSession(s *Session)
}

// Config is the open contract's input.
type Config struct {
	Name              string
	DescriptorVMO     *vmo.VMO
	DataVMO           *vmo.VMO
	DescriptorCount   uint16
	DescriptorLength  uint16 // bytes, must be a multiple of 8 and >= wire.DescriptorSize
	DescriptorVersion uint32
	Primary           bool
	ListenTx          bool
	RxFrameTypes      []uint8
	VMOID             int
	RxFIFO            *fifo.FIFO // shared, ref-counted
	TxFIFO            *fifo.FIFO // owned
}

// Session is one client's framework-side state.
type Session struct {
	id   uint64
	name string

	descVMO   *vmo.VMO
	dataVMO   *vmo.VMO
	descCount uint16
	descLen   uint16

	primary  bool
	listenTx bool
	rxTypes  []uint8
	vmoID    int

	rxFIFO *fifo.FIFO
	txFIFO *fifo.FIFO

	hooks  Hooks
	logger *logging.Logger

	paused  atomic.Bool
	rxValid atomic.Bool
	state   atomic.Int32

	inFlightTx atomic.Int64
	inFlightRx atomic.Int64

	mu             sync.Mutex
	availableRx    []uint16
	returnRx       []uint16
	pendingTx      *uint16 // descriptor index that overran the last FetchTx
	txPort         *port.Port
	txResumeSource *port.EventSource
	txAvailSource  *port.EventSource
	txStopped      chan struct{}
}

var sessionSeq atomic.Uint64

// New validates the open contract and constructs a Session. It does
// not yet spawn the tx worker; call Start for that once the session
// has been registered with the device-interface.
func New(cfg Config, hooks Hooks) (*Session, error) {
	if len(cfg.Name) == 0 || len(cfg.Name) > constants.MaxSessionName {
		return nil, errInvalidArgs("session name must be 1.." + strconv.Itoa(constants.MaxSessionName) + " bytes")
	}
	if len(cfg.RxFrameTypes) > constants.MaxFrameTypes {
		return nil, errInvalidArgs("too many subscribed rx frame types")
	}
	for _, ft := range cfg.RxFrameTypes {
		if !hooks.RxFrameSupported(ft) {
			return nil, errInvalidArgs("unsupported rx frame type")
		}
	}
	if cfg.DescriptorVersion != constants.DescriptorVersion {
		return nil, errNotSupported("descriptor_version mismatch")
	}
	if cfg.DescriptorLength%8 != 0 || cfg.DescriptorLength < wire.DescriptorSize {
		return nil, errInvalidArgs("descriptor_length must be a multiple of 8 and >= base descriptor size")
	}
	if cfg.DescriptorVMO == nil || cfg.DataVMO == nil || cfg.RxFIFO == nil || cfg.TxFIFO == nil {
		return nil, errInvalidArgs("missing required resource")
	}

	s := &Session{
		id:        sessionSeq.Add(1),
		name:      cfg.Name,
		descVMO:   cfg.DescriptorVMO,
		dataVMO:   cfg.DataVMO,
		descCount: cfg.DescriptorCount,
		descLen:   cfg.DescriptorLength,
		primary:   cfg.Primary,
		listenTx:  cfg.ListenTx,
		rxTypes:   append([]uint8(nil), cfg.RxFrameTypes...),
		vmoID:     cfg.VMOID,
		rxFIFO:    cfg.RxFIFO,
		txFIFO:    cfg.TxFIFO,
		hooks:     hooks,
		logger:    logging.Default().With(nil),
	}
	s.rxValid.Store(true)

	rxDepth := hooks.RxDepth()
	if rxDepth <= 0 {
		rxDepth = 1
	}
	s.availableRx = make([]uint16, 0, rxDepth)
	s.returnRx = make([]uint16, 0, rxDepth)

	return s, nil
}

// ID returns a stable numeric identity used as primacy/ordering key.
func (s *Session) ID() uint64 { return s.id }

// Name returns the session's configured name.
func (s *Session) Name() string { return s.name }

// CorrelationID returns a fresh UUID for log/metric labeling only; it
// is never used as a primacy or identity key.
func (s *Session) CorrelationID() string { return uuid.NewString() }

// Primary reports whether this session set the primary flag at open.
func (s *Session) Primary() bool { return s.primary }

// ListenTx reports whether this session set listen_tx at open.
func (s *Session) ListenTx() bool { return s.listenTx }

// VMOID returns the framework-assigned data VMO registration id.
func (s *Session) VMOID() int { return s.vmoID }

// DescriptorCount returns the number of descriptors the session
// registered at open, the tie-breaker primacy election falls back to.
func (s *Session) DescriptorCount() uint16 { return s.descCount }

// DataVMO returns the session's data VMO, used by the rx-queue's
// fan-out and tx-listen paths to copy payload bytes between sessions.
func (s *Session) DataVMO() *vmo.VMO { return s.dataVMO }

// RxValid reports whether the session's rx side is still accepting
// descriptors (cleared by Kill).
func (s *Session) RxValid() bool { return s.rxValid.Load() }

// RxSignal returns the rx FIFO's readiness channel, bridged onto the
// rx-queue's port the same way a session's own tx worker bridges its
// tx FIFO.
func (s *Session) RxSignal() <-chan struct{} { return s.rxFIFO.Signal() }

// RxReadable reports whether the shared rx FIFO currently holds
// descriptor indices and is still open, paired with RxSignal for
// race-free wait arming.
func (s *Session) RxReadable() bool { return s.rxFIFO.Readable() && !s.rxFIFO.Closed() }

// Paused reports the session's current pause flag.
func (s *Session) Paused() bool { return s.paused.Load() }

// State returns the session's current lifecycle state.
func (s *Session) State() State { return State(s.state.Load()) }

// InFlightTx/InFlightRx expose the ring counters used by PruneDeadSessions.
func (s *Session) InFlightTx() int64 { return s.inFlightTx.Load() }
func (s *Session) InFlightRx() int64 { return s.inFlightRx.Load() }

// SubscribesTo reports whether frameType is in the session's rx subscription set.
func (s *Session) SubscribesTo(frameType uint8) bool {
	for _, ft := range s.rxTypes {
		if ft == frameType {
			return true
		}
	}
	return false
}
