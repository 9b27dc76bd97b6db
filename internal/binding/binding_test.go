package binding

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRegistryAddAndClose(t *testing.T) {
	r := NewRegistry()
	var unbound bool
	b := r.Add(func() { unbound = true })
	require.Equal(t, 1, r.Count())

	b.Close()
	require.True(t, unbound)
	require.Equal(t, 0, r.Count())
	require.True(t, b.Closed())
}

func TestBindingCloseIsIdempotent(t *testing.T) {
	calls := 0
	b := NewRegistry().Add(func() { calls++ })
	b.Close()
	b.Close()
	require.Equal(t, 1, calls)
}

func TestRegistryCloseAll(t *testing.T) {
	r := NewRegistry()
	var closed []int
	for i := 0; i < 3; i++ {
		i := i
		r.Add(func() { closed = append(closed, i) })
	}
	require.Equal(t, 3, r.Count())
	r.CloseAll()
	require.Equal(t, 0, r.Count())
	require.Len(t, closed, 3)
}
