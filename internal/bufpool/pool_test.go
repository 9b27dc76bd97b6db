package bufpool

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPoolGetReturnsRequestedLength(t *testing.T) {
	p := New[int]()
	s := p.Get(10)
	require.Len(t, s, 10)
	require.GreaterOrEqual(t, cap(s), 10)
}

func TestPoolPutGetRoundTrip(t *testing.T) {
	p := New[int]()
	s := p.Get(64)
	s[0] = 42
	p.Put(s)

	s2 := p.Get(64)
	// sync.Pool does not guarantee handing the just-returned slice
	// back, so only the length of the slice after a Put is checked.
	require.Len(t, s2, 64)
}

func TestPoolBucketSelection(t *testing.T) {
	p := New[byte]()
	require.Equal(t, size64, cap(p.Get(1)))
	require.Equal(t, size256, cap(p.Get(size64+1)))
	require.Equal(t, size1k, cap(p.Get(size256+1)))
}
