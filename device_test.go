package netdevice

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/go-netdevice/netdevice/internal/constants"
	"github.com/go-netdevice/netdevice/internal/devcontract"
	"github.com/go-netdevice/netdevice/internal/session"
	"github.com/go-netdevice/netdevice/internal/status"
	"github.com/go-netdevice/netdevice/internal/wire"
)

func testInfo() devcontract.Info {
	return devcontract.Info{
		Class:               1,
		MinDescriptorLength: wire.DescriptorSize,
		DescriptorVersion:   constants.DescriptorVersion,
		RxDepth:             4,
		TxDepth:             4,
		MinRxBufferLength:   64,
		RxTypes:             []uint8{1},
		TxTypes:             []devcontract.FrameTypeFeatures{{FrameType: 1}},
	}
}

func newTestDevice(t *testing.T, impl *MockDevice) *Device {
	t.Helper()
	d, err := New(impl, Options{Metrics: NewMetrics(prometheus.NewRegistry())})
	require.NoError(t, err)
	t.Cleanup(d.Close)
	return d
}

func openTestSession(t *testing.T, d *Device, name string, primary bool, descCount uint16) *SessionHandle {
	t.Helper()
	h, err := d.OpenSession(SessionParams{
		Name:              name,
		DescriptorCount:   descCount,
		DescriptorLength:  wire.DescriptorSize,
		DescriptorVersion: constants.DescriptorVersion,
		Primary:           primary,
	})
	require.NoError(t, err)
	return h
}

func TestOpenSessionStartsDeviceOnFirstPrimary(t *testing.T) {
	impl := NewMockDevice(testInfo())
	d := newTestDevice(t, impl)

	h := openTestSession(t, d, "client-a", true, 4)
	require.NotNil(t, h.Session)

	require.Equal(t, "STARTED", d.Status())
	require.Equal(t, 1, impl.CallCounts()["start"])

	data, ok := impl.VMOData(h.VMOID)
	require.True(t, ok)
	require.Len(t, data, int(h.DataVMO.Size()))
}

func TestPrimacyElectionPrefersLargerDescriptorCount(t *testing.T) {
	impl := NewMockDevice(testInfo())
	d := newTestDevice(t, impl)

	a := openTestSession(t, d, "client-a", true, 4)
	require.Equal(t, a.Session, d.primary)

	b := openTestSession(t, d, "client-b", true, 8)
	require.Equal(t, b.Session, d.primary)

	// A smaller descriptor_count session opened later does not take over.
	c := openTestSession(t, d, "client-c", true, 2)
	require.Equal(t, b.Session, d.primary)
	_ = c
}

func TestPrimacyElectionTieBreaksOnEarlierOpen(t *testing.T) {
	impl := NewMockDevice(testInfo())
	d := newTestDevice(t, impl)

	a := openTestSession(t, d, "client-a", true, 4)
	_ = openTestSession(t, d, "client-b", true, 4)

	// Equal descriptor_count: the earlier-opened session keeps primary.
	require.Equal(t, a.Session, d.primary)
}

func TestPausedPrimaryLosesElectionToRunningSession(t *testing.T) {
	impl := NewMockDevice(testInfo())
	d := newTestDevice(t, impl)

	a := openTestSession(t, d, "client-a", true, 8)
	require.Equal(t, a.Session, d.primary)

	d.SetSessionPaused(a.Session, true)
	require.Equal(t, a.Session, d.primary) // no other primary session to take over yet

	b := openTestSession(t, d, "client-b", true, 2)
	require.Equal(t, b.Session, d.primary)
}

func TestDeviceStopsOnceLastPrimarySessionKilled(t *testing.T) {
	impl := NewMockDevice(testInfo())
	d := newTestDevice(t, impl)

	h := openTestSession(t, d, "client-a", true, 4)
	require.Equal(t, "STARTED", d.Status())

	h.Session.Kill()
	h.Session.WaitStopped()

	require.Equal(t, "STOPPED", d.Status())
	require.Equal(t, 1, impl.CallCounts()["stop"])
	require.Nil(t, d.primary)
}

func TestDeviceCoalescesStartWhileStopping(t *testing.T) {
	impl := NewMockDevice(testInfo())
	impl.DeferStop = true
	d := newTestDevice(t, impl)

	h := openTestSession(t, d, "client-a", true, 4)
	h.Session.Kill()
	h.Session.WaitStopped()

	// The device is still STOPPING (stop callback deferred); a fresh
	// primary session arriving now must coalesce into a pending START
	// rather than invoking device.Start while STOPPING.
	require.Equal(t, "STOPPING", d.Status())

	h2 := openTestSession(t, d, "client-b", true, 4)
	require.Equal(t, "STOPPING", d.Status())

	impl.FireStop()
	require.Equal(t, "STARTED", d.Status())
	require.Equal(t, 2, impl.CallCounts()["start"])
	_ = h2
}

func TestTeardownDrainsSessionsAndInvokesCallback(t *testing.T) {
	impl := NewMockDevice(testInfo())
	d := newTestDevice(t, impl)

	openTestSession(t, d, "client-a", true, 4)
	openTestSession(t, d, "client-b", false, 4)

	done := make(chan struct{})
	d.Teardown(func() { close(done) })

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("teardown did not complete")
	}

	require.Equal(t, "STOPPED", d.Status())
}

func TestTeardownIsIdempotentWhileRunning(t *testing.T) {
	impl := NewMockDevice(testInfo())
	d := newTestDevice(t, impl)

	openTestSession(t, d, "client-a", true, 4)

	var calls int
	done := make(chan struct{})
	d.Teardown(func() { calls++; close(done) })
	d.Teardown(func() { calls++ }) // no-op: teardown already in progress

	<-done
	require.Equal(t, 1, calls)
}

func TestTeardownDeadlineForcesCallback(t *testing.T) {
	impl := NewMockDevice(testInfo())
	impl.DeferStop = true // device implementation never completes Stop
	d := newTestDevice(t, impl)

	openTestSession(t, d, "client-a", true, 4)

	done := make(chan struct{})
	d.TeardownWithTimeout(50*time.Millisecond, func() { close(done) })

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("deadline did not force the teardown callback")
	}
}

func TestOpenSessionRefusedOnceTearingDown(t *testing.T) {
	impl := NewMockDevice(testInfo())
	d := newTestDevice(t, impl)

	openTestSession(t, d, "client-a", true, 4)
	d.Teardown(func() {})

	_, err := d.OpenSession(SessionParams{
		Name:              "client-b",
		DescriptorCount:   4,
		DescriptorLength:  wire.DescriptorSize,
		DescriptorVersion: constants.DescriptorVersion,
	})
	require.Error(t, err)
	require.True(t, IsCode(err, CodeUnavailable))
}

func TestOpenSessionRejectsUnsupportedRxFrameType(t *testing.T) {
	impl := NewMockDevice(testInfo())
	d := newTestDevice(t, impl)

	_, err := d.OpenSession(SessionParams{
		Name:              "client-a",
		DescriptorCount:   4,
		DescriptorLength:  wire.DescriptorSize,
		DescriptorVersion: constants.DescriptorVersion,
		RxFrameTypes:      []uint8{99},
	})
	require.Error(t, err)
	require.True(t, IsCode(err, CodeInvalidArgs))
}

// asymmetricInfo advertises disjoint rx and tx frame type sets so the
// two validation paths can be told apart: type 1 is receive-only,
// type 2 is transmit-only.
func asymmetricInfo() devcontract.Info {
	info := testInfo()
	info.RxTypes = []uint8{1}
	info.TxTypes = []devcontract.FrameTypeFeatures{{FrameType: 2}}
	return info
}

func TestOpenSessionRejectsRxSubscriptionToTxOnlyType(t *testing.T) {
	impl := NewMockDevice(asymmetricInfo())
	d := newTestDevice(t, impl)

	_, err := d.OpenSession(SessionParams{
		Name:              "client-a",
		DescriptorCount:   4,
		DescriptorLength:  wire.DescriptorSize,
		DescriptorVersion: constants.DescriptorVersion,
		RxFrameTypes:      []uint8{2}, // transmit-only on this device
	})
	require.Error(t, err)
	require.True(t, IsCode(err, CodeInvalidArgs))
}

func TestTxWithRxOnlyFrameTypeKillsSession(t *testing.T) {
	impl := NewMockDevice(asymmetricInfo())
	d := newTestDevice(t, impl)

	h := openTestSession(t, d, "client-a", true, 4)

	buf := make([]byte, wire.DescriptorSize)
	desc := wire.Descriptor{FrameType: 1, DataLength: 16} // receive-only type
	desc.Marshal(buf)
	require.NoError(t, h.DescVMO.WriteAt(buf, 0))
	_, err := h.TxFIFO.TryWrite([]uint16{0})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return h.Session.State() != session.StateAlive
	}, time.Second, 5*time.Millisecond)
	require.Empty(t, impl.QueuedTx())
}

func TestGetStatusWatcherPushesCurrentStatus(t *testing.T) {
	online := status.LinkStatus{MTU: 1500, Flags: status.FlagOnline}
	impl := NewMockDevice(testInfo())
	impl.SetStatus(online)
	d := newTestDevice(t, impl)

	w, err := d.GetStatusWatcher(4)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	ls, err := w.Watch(ctx)
	require.NoError(t, err)
	require.Equal(t, online, ls)
}
