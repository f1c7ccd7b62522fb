package errors

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	err := New("test error")
	require.NotNil(t, err)
	assert.Equal(t, "test error", err.Error())
}

func TestWrap(t *testing.T) {
	original := New("original")
	wrapped := Wrap(original, "wrapped")

	assert.Contains(t, wrapped.Error(), "wrapped")
	assert.Contains(t, wrapped.Error(), "original")
	assert.True(t, Is(wrapped, original))
}

func TestWrapf(t *testing.T) {
	original := New("original")
	wrapped := Wrapf(original, "wrapped: %d", 42)

	assert.Contains(t, wrapped.Error(), "wrapped: 42")
	assert.True(t, Is(wrapped, original))
}

func TestSentinels(t *testing.T) {
	err := Wrap(ErrNotFound, "schedule lookup")
	assert.True(t, IsNotFoundError(err))
	assert.False(t, IsNotFoundError(nil))

	err = Wrapf(ErrTerminalState, "run %s", "abc")
	assert.True(t, IsTerminalStateError(err))
	assert.False(t, IsTerminalStateError(fmt.Errorf("plain")))
}

func TestWithDetail(t *testing.T) {
	err := New("base")
	err = WithDetail(err, "detail one")
	err = WithDetail(err, "detail two")

	details := GetAllDetails(err)
	assert.Len(t, details, 2)
}
