package vmo

import (
	"testing"

	"github.com/go-netdevice/netdevice/internal/constants"
	"github.com/stretchr/testify/require"
)

func TestStoreRegisterUnregister(t *testing.T) {
	s := NewStore()
	id, err := s.Register(New(4096))
	require.NoError(t, err)
	require.GreaterOrEqual(t, id, 0)
	require.Less(t, id, constants.MaxVMOs)

	require.NoError(t, s.Unregister(id))
	require.ErrorIs(t, s.Unregister(id), ErrNotFound)
}

func TestStoreUnregisterUnknownID(t *testing.T) {
	s := NewStore()
	require.ErrorIs(t, s.Unregister(5), ErrNotFound)
}

func TestStoreReserveBudget(t *testing.T) {
	s := NewStore()
	require.NoError(t, s.Reserve(constants.MaxVMOs))
	require.Error(t, s.Reserve(constants.MaxVMOs+1))
}

func TestStoreExhaustion(t *testing.T) {
	s := NewStore()
	for i := 0; i < constants.MaxVMOs; i++ {
		_, err := s.Register(New(4096))
		require.NoError(t, err)
	}
	_, err := s.Register(New(4096))
	require.ErrorIs(t, err, ErrNoResources)
}

func TestStoreReadWriteCopyByID(t *testing.T) {
	s := NewStore()
	srcID, err := s.Register(New(256))
	require.NoError(t, err)
	dstID, err := s.Register(New(256))
	require.NoError(t, err)

	payload := []byte("packet")
	require.NoError(t, s.Write(srcID, payload, 0))
	require.NoError(t, s.Copy(dstID, 16, srcID, 0, int64(len(payload))))

	got := make([]byte, len(payload))
	require.NoError(t, s.Read(dstID, got, 16))
	require.Equal(t, payload, got)
}
