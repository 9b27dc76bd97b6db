package netdevice

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStructuredError(t *testing.T) {
	err := NewError("Open", CodeInvalidArgs, "session name too long")
	require.Equal(t, "Open", err.Op)
	require.Equal(t, CodeInvalidArgs, err.Code)
	require.Equal(t, "netdevice: session name too long (op=Open)", err.Error())
}

func TestSessionError(t *testing.T) {
	err := NewSessionError("FetchTx", "client-a", CodeBadState, "rx invalid")
	require.Equal(t, "client-a", err.Session)
	require.Equal(t, "netdevice: rx invalid (op=FetchTx session=client-a)", err.Error())
}

func TestWrapErrorPreservesStructuredCode(t *testing.T) {
	inner := NewError("Register", CodeNoResources, "no free vmo slots")
	wrapped := WrapError("Open", inner)
	require.Equal(t, CodeNoResources, wrapped.Code)
	require.Equal(t, "Open", wrapped.Op)
}

func TestWrapErrorOnPlainError(t *testing.T) {
	wrapped := WrapError("Open", fmt.Errorf("boom"))
	require.Equal(t, CodeUnavailable, wrapped.Code)
	require.ErrorContains(t, wrapped, "boom")
}

func TestWrapErrorNil(t *testing.T) {
	require.Nil(t, WrapError("Open", nil))
}

func TestIsCode(t *testing.T) {
	err := NewError("Open", CodeNotFound, "missing")
	require.True(t, IsCode(err, CodeNotFound))
	require.False(t, IsCode(err, CodeBadState))
	require.False(t, IsCode(nil, CodeNotFound))
}

func TestErrorsIsAgainstBareCode(t *testing.T) {
	err := NewError("Open", CodeShouldWait, "")
	require.True(t, errors.Is(err, CodeShouldWait))
	require.False(t, errors.Is(err, CodeBadState))
}
