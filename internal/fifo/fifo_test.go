package fifo

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestFIFOWriteThenRead(t *testing.T) {
	f := New(4)
	n, err := f.TryWrite([]uint16{10, 20, 30})
	require.NoError(t, err)
	require.Equal(t, 3, n)

	buf := make([]uint16, 4)
	n, err = f.TryRead(buf)
	require.NoError(t, err)
	require.Equal(t, 3, n)
	require.Equal(t, []uint16{10, 20, 30}, buf[:n])
}

func TestFIFOReadEmptyShouldWait(t *testing.T) {
	f := New(2)
	_, err := f.TryRead(make([]uint16, 1))
	require.ErrorIs(t, err, ErrShouldWait)
}

func TestFIFOWriteFullShouldWait(t *testing.T) {
	f := New(1)
	_, err := f.TryWrite([]uint16{1})
	require.NoError(t, err)
	_, err = f.TryWrite([]uint16{2})
	require.ErrorIs(t, err, ErrShouldWait)
}

func TestFIFOCloseThenReadIsPeerClosed(t *testing.T) {
	f := New(2)
	f.Close()
	_, err := f.TryRead(make([]uint16, 1))
	require.ErrorIs(t, err, ErrPeerClosed)
}

func TestFIFORefcountClosesAtZero(t *testing.T) {
	f := New(2)
	f.Ref()
	require.False(t, f.Closed())
	f.Unref()
	require.False(t, f.Closed())
	f.Unref()
	require.True(t, f.Closed())
}

func TestFIFOSignalWakesOnWrite(t *testing.T) {
	f := New(2)
	sig := f.Signal()

	done := make(chan struct{})
	go func() {
		_, _ = f.TryWrite([]uint16{1})
		close(done)
	}()

	select {
	case <-sig:
	case <-time.After(time.Second):
		t.Fatal("signal did not fire after write")
	}
	<-done
}
