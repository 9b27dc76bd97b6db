package netdevice

import (
	"sync"

	"github.com/go-netdevice/netdevice/internal/devcontract"
	"github.com/go-netdevice/netdevice/internal/status"
)

// MockDevice is a mock devcontract.DeviceImplementation for testing
// code that drives a Device, tracking method calls for verification.
type MockDevice struct {
	mu sync.Mutex

	info   devcontract.Info
	link   status.LinkStatus
	fw     devcontract.FrameworkCallbacks
	vmos   map[int][]byte

	startCalls int
	stopCalls  int
	initCalls  int

	queuedTx      []devcontract.TxBuffer
	queuedRxSpace []devcontract.RxSpaceBuffer

	// AutoComplete, when true, immediately reports every queued tx
	// buffer back through the framework callbacks as StatusOK. Rx space
	// buffers are only recorded, never completed.
	AutoComplete bool

	// DeferStart/DeferStop, when set, defer invoking the Start/Stop
	// callback until FireStart/FireStop is called explicitly, letting
	// tests exercise the STARTING/STOPPING coalescing window.
	DeferStart bool
	DeferStop  bool

	pendingStart devcontract.StartCallback
	pendingStop  devcontract.StopCallback
}

// NewMockDevice creates a mock device implementation reporting info.
func NewMockDevice(info devcontract.Info) *MockDevice {
	return &MockDevice{
		info: info,
		vmos: make(map[int][]byte),
	}
}

func (m *MockDevice) GetInfo() devcontract.Info { return m.info }

func (m *MockDevice) Start(cb devcontract.StartCallback) {
	m.mu.Lock()
	m.startCalls++
	deferred := m.DeferStart
	if deferred {
		m.pendingStart = cb
	}
	m.mu.Unlock()
	if !deferred {
		cb()
	}
}

func (m *MockDevice) Stop(cb devcontract.StopCallback) {
	m.mu.Lock()
	m.stopCalls++
	deferred := m.DeferStop
	if deferred {
		m.pendingStop = cb
	}
	m.mu.Unlock()
	if !deferred {
		cb()
	}
}

// FireStart invokes a deferred Start callback (see DeferStart).
func (m *MockDevice) FireStart() {
	m.mu.Lock()
	cb := m.pendingStart
	m.pendingStart = nil
	m.mu.Unlock()
	if cb != nil {
		cb()
	}
}

// FireStop invokes a deferred Stop callback (see DeferStop).
func (m *MockDevice) FireStop() {
	m.mu.Lock()
	cb := m.pendingStop
	m.pendingStop = nil
	m.mu.Unlock()
	if cb != nil {
		cb()
	}
}

func (m *MockDevice) GetStatus() status.LinkStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.link
}

// SetStatus updates the status GetStatus reports and pushes it to the
// framework, mimicking a real device reporting a link change.
func (m *MockDevice) SetStatus(ls status.LinkStatus) {
	m.mu.Lock()
	m.link = ls
	fw := m.fw
	m.mu.Unlock()
	if fw != nil {
		fw.StatusChanged(ls)
	}
}

func (m *MockDevice) QueueTx(buffers []devcontract.TxBuffer) {
	m.mu.Lock()
	m.queuedTx = append(m.queuedTx, buffers...)
	auto := m.AutoComplete
	fw := m.fw
	m.mu.Unlock()
	if !auto || fw == nil {
		return
	}
	results := make([]devcontract.TxResult, len(buffers))
	for i, b := range buffers {
		results[i] = devcontract.TxResult{ID: b.ID, Status: devcontract.StatusOK}
	}
	fw.CompleteTx(results)
}

func (m *MockDevice) QueueRxSpace(buffers []devcontract.RxSpaceBuffer) {
	m.mu.Lock()
	m.queuedRxSpace = append(m.queuedRxSpace, buffers...)
	m.mu.Unlock()
}

func (m *MockDevice) PrepareVmo(id int, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.vmos[id] = data
	return nil
}

func (m *MockDevice) ReleaseVmo(id int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.vmos, id)
	return nil
}

func (m *MockDevice) Init(fw devcontract.FrameworkCallbacks) error {
	m.mu.Lock()
	m.initCalls++
	m.fw = fw
	m.mu.Unlock()
	return nil
}

// CallCounts returns the number of times each lifecycle method has
// been called, for test assertions.
func (m *MockDevice) CallCounts() map[string]int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return map[string]int{
		"start": m.startCalls,
		"stop":  m.stopCalls,
		"init":  m.initCalls,
	}
}

// QueuedTx returns a snapshot of every tx buffer handed to QueueTx.
func (m *MockDevice) QueuedTx() []devcontract.TxBuffer {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]devcontract.TxBuffer(nil), m.queuedTx...)
}

// QueuedRxSpace returns a snapshot of every rx buffer handed to
// QueueRxSpace.
func (m *MockDevice) QueuedRxSpace() []devcontract.RxSpaceBuffer {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]devcontract.RxSpaceBuffer(nil), m.queuedRxSpace...)
}

// VMOData returns the backing bytes PrepareVmo received for id, if any.
func (m *MockDevice) VMOData(id int) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.vmos[id]
	return b, ok
}

var _ devcontract.DeviceImplementation = (*MockDevice)(nil)
