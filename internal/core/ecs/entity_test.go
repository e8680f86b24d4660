package ecs

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEntityID_Packing(t *testing.T) {
	id := NewEntityID(7, 3)

	assert.Equal(t, uint32(7), id.Index())
	assert.Equal(t, uint32(3), id.Generation())
	assert.Equal(t, uint64(3)<<32|7, id.Bits())
	assert.Equal(t, id, FromBits(id.Bits()))

	top := NewEntityID(PlaceholderIndex-1, MaxGeneration)
	assert.Equal(t, PlaceholderIndex-1, top.Index())
	assert.Equal(t, MaxGeneration, top.Generation())
}

func TestEntityID_String(t *testing.T) {
	tests := []struct {
		id   EntityID
		want string
	}{
		{NewEntityID(0, 0), "0v0"},
		{NewEntityID(1, 1), "1v1"},
		{NewEntityID(42, 4000000000), "42v4000000000"},
		{Placeholder, "PLACEHOLDER"},
		{NewEntityID(PlaceholderIndex, 9), "PLACEHOLDER"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.id.String())
		})
	}
}

func TestEntityID_Placeholder(t *testing.T) {
	assert.True(t, Placeholder.IsPlaceholder())
	assert.Equal(t, uint32(0), Placeholder.Generation())
	assert.False(t, NewEntityID(0, 0).IsPlaceholder())

	_, err := TryFromBits(Placeholder.Bits())
	require.Error(t, err)

	id, err := TryFromBits(NewEntityID(5, 2).Bits())
	require.NoError(t, err)
	assert.Equal(t, NewEntityID(5, 2), id)
}

func TestEntityID_Less(t *testing.T) {
	// Generation is the high half, so it dominates the order.
	assert.True(t, NewEntityID(5, 0).Less(NewEntityID(1, 1)))
	assert.True(t, NewEntityID(1, 1).Less(NewEntityID(2, 1)))
	assert.False(t, NewEntityID(2, 1).Less(NewEntityID(2, 1)))
}
