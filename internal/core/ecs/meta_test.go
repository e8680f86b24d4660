package ecs

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func TestMetaTable_Grow(t *testing.T) {
	m := newMetaTable(4, 3, nil, zap.NewNop())
	assert.Equal(t, 16, m.chunkLen())
	assert.Nil(t, m.slot(0))

	_, _, ok := m.get(0)
	assert.False(t, ok)

	require.NoError(t, m.growTo(0))
	assert.Equal(t, 16, m.capacity())

	gen, alive, ok := m.get(5)
	require.True(t, ok)
	assert.Equal(t, uint32(0), gen)
	assert.False(t, alive)
	assert.Nil(t, m.slot(16))

	require.NoError(t, m.growTo(40))
	assert.Equal(t, 48, m.capacity())

	err := m.growTo(48)
	require.ErrorIs(t, err, ErrAllocationFailed)
	assert.Equal(t, 48, m.capacity())
}

func TestMetaTable_SlotsDoNotMove(t *testing.T) {
	m := newMetaTable(4, 64, nil, zap.NewNop())
	require.NoError(t, m.growTo(3))

	s := m.slot(3)
	s.store(7, true)
	require.NoError(t, m.growTo(500))

	assert.Same(t, s, m.slot(3))
	gen, alive, ok := m.get(3)
	require.True(t, ok)
	assert.Equal(t, uint32(7), gen)
	assert.True(t, alive)
}

func TestMetaSlot_Packing(t *testing.T) {
	var s metaSlot
	s.store(MaxGeneration, true)
	gen, alive := s.load()
	assert.Equal(t, MaxGeneration, gen)
	assert.True(t, alive)

	s.store(MaxGeneration, false)
	gen, alive = s.load()
	assert.Equal(t, MaxGeneration, gen)
	assert.False(t, alive)
}

func TestMetaTable_Budget(t *testing.T) {
	m := newMetaTable(4, 64, nil, zap.NewNop())
	chunk := m.chunkBytes()

	budget := NewByteBudget(2 * chunk)
	m = newMetaTable(4, 64, budget, zap.NewNop())

	require.NoError(t, m.growTo(15))
	require.NoError(t, m.growTo(16))
	assert.Equal(t, 2*chunk, budget.Used())

	err := m.growTo(32)
	require.ErrorIs(t, err, ErrAllocationFailed)
	assert.Equal(t, 2*chunk, budget.Used())

	m.reset()
	assert.Equal(t, int64(0), budget.Used())
	assert.Equal(t, 0, m.capacity())
}

func TestByteBudget(t *testing.T) {
	b := NewByteBudget(100)
	require.NoError(t, b.Acquire(60))
	require.Error(t, b.Acquire(41))
	require.NoError(t, b.Acquire(40))
	assert.Equal(t, int64(100), b.Used())

	b.Release(100)
	assert.Equal(t, int64(0), b.Used())
}

func TestFreshCursor(t *testing.T) {
	c := newFreshCursor(9)

	start, err := c.reserve(4, nil)
	require.NoError(t, err)
	assert.Equal(t, uint32(0), start)

	start, err = c.reserve(4, nil)
	require.NoError(t, err)
	assert.Equal(t, uint32(4), start)
	assert.Equal(t, uint32(8), c.high())

	// A refused request leaves room for smaller ones.
	_, err = c.reserve(4, nil)
	require.ErrorIs(t, err, ErrIdentifierSpaceExhausted)
	assert.Equal(t, uint32(8), c.high())
	assert.True(t, c.contains(7))
	assert.False(t, c.contains(8))

	start, err = c.reserve(2, nil)
	require.NoError(t, err)
	assert.Equal(t, uint32(8), start)
	assert.True(t, c.contains(9))
	assert.False(t, c.contains(10))

	_, err = c.reserve(1, nil)
	require.ErrorIs(t, err, ErrIdentifierSpaceExhausted)
	assert.Equal(t, uint32(10), c.high())

	c.reset()
	assert.Equal(t, uint32(0), c.high())
	assert.False(t, c.contains(0))
}

func TestFreshCursor_GrowFailureClaimsNothing(t *testing.T) {
	c := newFreshCursor(99)
	boom := errors.New("no room")

	var asked []uint32
	_, err := c.reserve(5, func(last uint32) error {
		asked = append(asked, last)
		return boom
	})
	require.ErrorIs(t, err, boom)
	assert.Equal(t, []uint32{4}, asked)
	assert.Equal(t, uint32(0), c.high())
	assert.False(t, c.contains(0))

	start, err := c.reserve(5, func(uint32) error { return nil })
	require.NoError(t, err)
	assert.Equal(t, uint32(0), start)
	assert.Equal(t, uint32(5), c.high())
}

func TestFreshCursor_ExactFit(t *testing.T) {
	c := newFreshCursor(3)

	_, err := c.reserve(2, nil)
	require.NoError(t, err)
	start, err := c.reserve(2, nil)
	require.NoError(t, err)
	assert.Equal(t, uint32(2), start)

	_, err = c.reserve(1, nil)
	require.ErrorIs(t, err, ErrIdentifierSpaceExhausted)
}

func TestFreshCursor_FullDomain(t *testing.T) {
	c := newFreshCursor(PlaceholderIndex - 1)
	c.next.Store(uint64(PlaceholderIndex) - 1)

	start, err := c.reserve(1, nil)
	require.NoError(t, err)
	assert.Equal(t, PlaceholderIndex-1, start)

	_, err = c.reserve(1, nil)
	require.ErrorIs(t, err, ErrIdentifierSpaceExhausted)
	assert.False(t, c.contains(PlaceholderIndex))
}

func TestFreshCursor_ConcurrentReserve(t *testing.T) {
	c := newFreshCursor(999)
	const workers = 8

	starts := make([][]uint32, workers)
	var g errgroup.Group
	for w := range workers {
		g.Go(func() error {
			for {
				start, err := c.reserve(3, nil)
				if err != nil {
					return nil
				}
				starts[w] = append(starts[w], start)
			}
		})
	}
	require.NoError(t, g.Wait())

	seen := make(map[uint32]bool)
	for _, part := range starts {
		for _, s := range part {
			require.False(t, seen[s], "range at %d claimed twice", s)
			seen[s] = true
		}
	}
	assert.Len(t, seen, 333)
	assert.Equal(t, uint32(999), c.high())
}
