package rxqueue

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/go-netdevice/netdevice/internal/devcontract"
	"github.com/go-netdevice/netdevice/internal/fifo"
	"github.com/go-netdevice/netdevice/internal/session"
	"github.com/go-netdevice/netdevice/internal/vmo"
	"github.com/go-netdevice/netdevice/internal/wire"
)

type stubSessionHooks struct{ rxDepth int }

func (h stubSessionHooks) TxFrameSupported(uint8) bool             { return true }
func (stubSessionHooks) RxFrameSupported(uint8) bool               { return true }
func (stubSessionHooks) TxRequirements(uint8) (uint32, uint32)     { return 0, 0 }
func (h stubSessionHooks) RxDepth() int                            { return h.rxDepth }
func (stubSessionHooks) BeginTx() session.TxTransaction            { return nil }
func (stubSessionHooks) NotifyTxAccepted(*session.Session, uint16) {}
func (stubSessionHooks) NotifyDeadSession(*session.Session)        {}

type fakeDeviceHooks struct {
	rxDepth          int
	batches          [][]devcontract.RxSpaceBuffer
	commitCalls      int
	fanOutCalls      int
	lastFanOutOwner  *session.Session
	lastFanOutRegion []session.Region
}

func (f *fakeDeviceHooks) RxDepth() int { return f.rxDepth }
func (f *fakeDeviceHooks) QueueRxSpace(buffers []devcontract.RxSpaceBuffer) {
	f.batches = append(f.batches, buffers)
}
func (f *fakeDeviceHooks) CommitAllSessions() { f.commitCalls++ }
func (f *fakeDeviceHooks) FanOut(owner *session.Session, fill session.RxFill, regions []session.Region) {
	f.fanOutCalls++
	f.lastFanOutOwner = owner
	f.lastFanOutRegion = regions
}

func newRxTestSession(t *testing.T, name string, rxTypes []uint8) (*session.Session, *vmo.VMO, *fifo.FIFO) {
	t.Helper()
	const descCount = 4
	descVMO := vmo.New(descCount * wire.DescriptorSize)
	rxFIFO := fifo.New(8)
	cfg := session.Config{
		Name:              name,
		DescriptorVMO:     descVMO,
		DataVMO:           vmo.New(4096),
		DescriptorCount:   descCount,
		DescriptorLength:  wire.DescriptorSize,
		DescriptorVersion: 1,
		RxFrameTypes:      rxTypes,
		RxFIFO:            rxFIFO,
		TxFIFO:            fifo.New(8),
	}
	s, err := session.New(cfg, stubSessionHooks{rxDepth: 4})
	require.NoError(t, err)
	return s, descVMO, rxFIFO
}

func writeRxDescriptor(t *testing.T, v *vmo.VMO, idx uint16, d wire.Descriptor) {
	t.Helper()
	buf := make([]byte, wire.DescriptorSize)
	d.Marshal(buf)
	require.NoError(t, v.WriteAt(buf, int64(idx)*wire.DescriptorSize))
}

func TestQueueRefillPullsFromPrimaryFIFO(t *testing.T) {
	primary, descVMO, rxFIFO := newRxTestSession(t, "primary", nil)
	writeRxDescriptor(t, descVMO, 0, wire.Descriptor{Offset: 128, DataLength: 64})
	_, err := rxFIFO.TryWrite([]uint16{0})
	require.NoError(t, err)

	hooks := &fakeDeviceHooks{rxDepth: 4}
	q := New(4, hooks)
	q.SetPrimary(primary)

	q.Refill()

	require.Len(t, hooks.batches, 1)
	batch := hooks.batches[0]
	require.Len(t, batch, 1)
	require.Equal(t, primary.VMOID(), batch[0].VMOID)
	require.Equal(t, uint32(64), batch[0].Length)
	require.Equal(t, []devcontract.Region{{Offset: 128, Length: 64}}, batch[0].Regions)
	require.Equal(t, 1, q.DeviceBufferCount())
}

func TestQueueCompleteRxListReusesUnsubscribedFrame(t *testing.T) {
	primary, descVMO, rxFIFO := newRxTestSession(t, "primary", nil) // no subscriptions
	writeRxDescriptor(t, descVMO, 0, wire.Descriptor{Offset: 128, DataLength: 64})
	_, err := rxFIFO.TryWrite([]uint16{0})
	require.NoError(t, err)

	hooks := &fakeDeviceHooks{rxDepth: 4}
	q := New(4, hooks)
	q.SetPrimary(primary)
	q.Refill()
	require.Len(t, hooks.batches, 1)
	id := hooks.batches[0][0].ID

	shouldNotify := q.CompleteRxList([]devcontract.RxResult{{ID: id, TotalLength: 64, FrameType: 9}})
	require.True(t, shouldNotify) // depth 4, threshold 2, buffer count now 0
	require.Equal(t, 1, hooks.commitCalls)
	require.Zero(t, hooks.fanOutCalls)
	require.Equal(t, 0, q.DeviceBufferCount())

	// The descriptor should have been returned to the available ring,
	// not refetched from the (now empty) FIFO.
	hooks.batches = nil
	q.Refill()
	require.Len(t, hooks.batches, 1)
	require.Equal(t, uint32(64), hooks.batches[0][0].Length)
}

func TestQueueCompleteRxListFansOutAcceptedFrame(t *testing.T) {
	primary, descVMO, rxFIFO := newRxTestSession(t, "primary", []uint8{1})
	writeRxDescriptor(t, descVMO, 0, wire.Descriptor{Offset: 128, DataLength: 64, FrameType: 1})
	_, err := rxFIFO.TryWrite([]uint16{0})
	require.NoError(t, err)

	hooks := &fakeDeviceHooks{rxDepth: 4}
	q := New(4, hooks)
	q.SetPrimary(primary)
	q.Refill()
	id := hooks.batches[0][0].ID

	shouldNotify := q.CompleteRxList([]devcontract.RxResult{{ID: id, TotalLength: 64, FrameType: 1}})
	require.True(t, shouldNotify)
	require.Equal(t, 1, hooks.fanOutCalls)
	require.Equal(t, primary, hooks.lastFanOutOwner)
	require.Equal(t, []session.Region{{Offset: 128, Length: 64}}, hooks.lastFanOutRegion)
}

func TestPurgeSessionDiscardsOnlyThatSessionsAvailableEntries(t *testing.T) {
	primary, descVMO, rxFIFO := newRxTestSession(t, "primary", nil)
	writeRxDescriptor(t, descVMO, 0, wire.Descriptor{Offset: 128, DataLength: 64})
	_, err := rxFIFO.TryWrite([]uint16{0})
	require.NoError(t, err)

	hooks := &fakeDeviceHooks{rxDepth: 4}
	q := New(4, hooks)
	q.SetPrimary(primary)
	q.Refill()
	id := hooks.batches[0][0].ID

	// Reusable completion pushes the descriptor back into the available ring.
	q.CompleteRxList([]devcontract.RxResult{{ID: id, TotalLength: 64, FrameType: 9}})

	q.PurgeSession(primary)
	require.False(t, primary.RxValid())

	hooks.batches = nil
	q.Refill()
	require.Empty(t, hooks.batches)
}
