package ringbuf

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSlabPushReturnsUnusedIndexWithinCapacity(t *testing.T) {
	s := NewSlab[string](3)
	seen := map[int]bool{}
	for i := 0; i < 3; i++ {
		idx := s.Push("x")
		require.GreaterOrEqual(t, idx, 0)
		require.Less(t, idx, s.Cap())
		require.False(t, seen[idx])
		seen[idx] = true
	}
}

func TestSlabIteratorAscendingOccupiedOnly(t *testing.T) {
	s := NewSlab[int](5)
	idxs := make([]int, 0, 5)
	for i := 0; i < 5; i++ {
		idxs = append(idxs, s.Push(i*10))
	}
	// Free two interior slots, leaving a gap the iterator must skip.
	s.Free(idxs[1])
	s.Free(idxs[3])

	var visited []int
	s.Each(func(index int, v *int) bool {
		visited = append(visited, index)
		return true
	})
	require.Len(t, visited, 3)
	for i := 1; i < len(visited); i++ {
		require.Less(t, visited[i-1], visited[i])
	}
}

func TestSlabDoubleFreePanics(t *testing.T) {
	s := NewSlab[int](2)
	idx := s.Push(1)
	s.Free(idx)
	require.Panics(t, func() { s.Free(idx) })
}

func TestSlabPushOnFullPanics(t *testing.T) {
	s := NewSlab[int](1)
	s.Push(1)
	require.Panics(t, func() { s.Push(2) })
}

func TestSlabFreeThenReuse(t *testing.T) {
	s := NewSlab[int](1)
	idx := s.Push(1)
	s.Free(idx)
	idx2 := s.Push(2)
	require.Equal(t, idx, idx2)
	require.Equal(t, 2, *s.Get(idx2))
}

func TestSlabAvailableAndLen(t *testing.T) {
	s := NewSlab[int](4)
	require.Equal(t, 4, s.Available())
	s.Push(1)
	s.Push(2)
	require.Equal(t, 2, s.Len())
	require.Equal(t, 2, s.Available())
}
