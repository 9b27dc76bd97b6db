package vmo

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestVMOReadWriteRoundTrip(t *testing.T) {
	v := New(4096)
	payload := []byte("hello network device")
	require.NoError(t, v.WriteAt(payload, 128))

	got := make([]byte, len(payload))
	require.NoError(t, v.ReadAt(got, 128))
	require.Equal(t, payload, got)
}

func TestVMOOutOfRange(t *testing.T) {
	v := New(64)
	require.ErrorIs(t, v.WriteAt(make([]byte, 10), 60), ErrOutOfRange)
	require.ErrorIs(t, v.ReadAt(make([]byte, 1), -1), ErrOutOfRange)
}

func TestVMOCopyFromCrossesVMOs(t *testing.T) {
	src := New(256)
	dst := New(256)
	payload := []byte("forwarded frame payload")
	require.NoError(t, src.WriteAt(payload, 0))
	require.NoError(t, dst.CopyFrom(64, src, 0, int64(len(payload))))

	got := make([]byte, len(payload))
	require.NoError(t, dst.ReadAt(got, 64))
	require.Equal(t, payload, got)
}

func TestVMOCopyFromOutOfRange(t *testing.T) {
	src := New(16)
	dst := New(16)
	require.ErrorIs(t, dst.CopyFrom(10, src, 0, 100), ErrOutOfRange)
}
