package rocerr

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWrapsKindAndMessage(t *testing.T) {
	err := New(KindQueueFull, "transfer queue is full", Context{Channel: 2})
	assert.Equal(t, KindQueueFull, err.Kind)
	assert.Contains(t, err.Error(), "queue full")
	assert.Contains(t, err.Error(), "transfer queue is full")
}

func TestWrapPreservesCauseForUnwrap(t *testing.T) {
	cause := errors.New("mmap failed")
	err := Wrap(KindCard, "open bar", Context{}, cause)

	require.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "mmap failed")
}

func TestIsMatchesOnKindOnly(t *testing.T) {
	a := New(KindFifo, "first", Context{})
	b := New(KindFifo, "second", Context{})
	c := New(KindCard, "third", Context{})

	assert.True(t, Is(a, KindFifo))
	assert.True(t, a.Is(b))
	assert.False(t, a.Is(c))
	assert.False(t, Is(c, KindFifo))
}

func TestKindStringUnknown(t *testing.T) {
	assert.Contains(t, Kind(999).String(), "unknown")
}
