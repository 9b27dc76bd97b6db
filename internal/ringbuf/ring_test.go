package ringbuf

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRingFIFOOrder(t *testing.T) {
	r := NewRing[int](4)
	for i := 1; i <= 4; i++ {
		r.Push(i)
		require.LessOrEqual(t, r.Len(), r.Cap())
	}
	require.True(t, r.Full())

	for i := 1; i <= 4; i++ {
		require.Equal(t, i, r.Pop())
	}
	require.True(t, r.Empty())
}

func TestRingWrapsAroundBackingArray(t *testing.T) {
	r := NewRing[int](3)
	r.Push(1)
	r.Push(2)
	require.Equal(t, 1, r.Pop())
	r.Push(3)
	r.Push(4)
	require.Equal(t, 2, r.Pop())
	require.Equal(t, 3, r.Pop())
	require.Equal(t, 4, r.Pop())
	require.True(t, r.Empty())
}

func TestRingPushOnFullPanics(t *testing.T) {
	r := NewRing[int](1)
	r.Push(1)
	require.Panics(t, func() { r.Push(2) })
}

func TestRingPopOnEmptyPanics(t *testing.T) {
	r := NewRing[int](1)
	require.Panics(t, func() { r.Pop() })
}

func TestRingPeekDoesNotRemove(t *testing.T) {
	r := NewRing[int](2)
	r.Push(7)
	require.Equal(t, 7, r.Peek())
	require.Equal(t, 1, r.Len())
	require.Equal(t, 7, r.Pop())
}
