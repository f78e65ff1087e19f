package superpage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEntryFullyPushed(t *testing.T) {
	e := NewEntry(Superpage{Offset: 0, Size: 4 * 8192}, 0x1000, 8192)
	assert.Equal(t, uint64(4), e.MaxPages)
	assert.False(t, e.FullyPushed())

	e.PushedPages = 4
	assert.True(t, e.FullyPushed())
}

func TestEntryNextPushBusAddress(t *testing.T) {
	e := NewEntry(Superpage{Size: 3 * 8192}, 0x2000, 8192)
	assert.Equal(t, uint64(0x2000), e.NextPushBusAddress())
	e.PushedPages = 2
	assert.Equal(t, uint64(0x2000+2*8192), e.NextPushBusAddress())
}

func TestQueueAddRespectsTransferCapacity(t *testing.T) {
	q := NewQueue(2, 10)
	require.NoError(t, q.Add(NewEntry(Superpage{Size: 8192}, 0, 8192)))
	require.NoError(t, q.Add(NewEntry(Superpage{Size: 8192}, 0, 8192)))

	err := q.Add(NewEntry(Superpage{Size: 8192}, 0, 8192))
	assert.ErrorContains(t, err, "full")
}

func TestQueuePreservesOrderAcrossTransitions(t *testing.T) {
	q := NewQueue(10, 10)
	a := NewEntry(Superpage{Offset: 0, Size: 8192}, 0, 8192)
	b := NewEntry(Superpage{Offset: 8192, Size: 8192}, 8192, 8192)
	require.NoError(t, q.Add(a))
	require.NoError(t, q.Add(b))

	a.PushedPages = 1
	q.AdvancePushingToArrivals()
	b.PushedPages = 1
	q.AdvancePushingToArrivals()

	assert.Equal(t, a, q.FrontArrivals())
	q.AdvanceArrivalsToFilled()
	assert.Equal(t, b, q.FrontArrivals())
	q.AdvanceArrivalsToFilled()

	first, err := q.PopFilled()
	require.NoError(t, err)
	assert.Equal(t, uint64(0), first.Offset)

	second, err := q.PopFilled()
	require.NoError(t, err)
	assert.Equal(t, uint64(8192), second.Offset)
}

func TestPopFilledEmptyFails(t *testing.T) {
	q := NewQueue(10, 10)
	_, err := q.PopFilled()
	assert.ErrorContains(t, err, "empty")
}

func TestPeekFallsThroughRegions(t *testing.T) {
	q := NewQueue(10, 10)
	_, ok := q.Peek()
	assert.False(t, ok)

	e := NewEntry(Superpage{Offset: 42, Size: 8192}, 0, 8192)
	require.NoError(t, q.Add(e))
	sp, ok := q.Peek()
	require.True(t, ok)
	assert.Equal(t, uint64(42), sp.Offset)
}

func TestResetEmptiesAllRegions(t *testing.T) {
	q := NewQueue(10, 10)
	require.NoError(t, q.Add(NewEntry(Superpage{Size: 8192}, 0, 8192)))
	q.Reset()
	assert.Equal(t, 10, q.TransferQueueAvailable())
	assert.Equal(t, 0, q.ReadyQueueSize())
}
