package ecs

import (
	"fmt"
	"math"
)

// EntityID encodes a 32-bit index in the lower bits and a 32-bit generation
// in the upper bits. Generation increments on free to invalidate stale refs.
type EntityID uint64

const (
	// MaxGeneration is the last generation an index can carry. An index freed
	// at this generation is retired instead of recycled.
	MaxGeneration uint32 = math.MaxUint32

	// PlaceholderIndex is never handed out by an allocator.
	PlaceholderIndex uint32 = math.MaxUint32
)

// Placeholder is a valid but meaningless id, useful to pre-size slices
// before real entities are known.
const Placeholder = EntityID(PlaceholderIndex)

func NewEntityID(index uint32, generation uint32) EntityID {
	return EntityID(uint64(generation)<<32 | uint64(index))
}

func (id EntityID) Index() uint32      { return uint32(id) }
func (id EntityID) Generation() uint32 { return uint32(id >> 32) }
func (id EntityID) Bits() uint64       { return uint64(id) }

// IsPlaceholder reports whether id uses the reserved placeholder index.
func (id EntityID) IsPlaceholder() bool { return id.Index() == PlaceholderIndex }

// Less orders ids by their packed bits (generation first, then index).
func (id EntityID) Less(other EntityID) bool { return id < other }

// String renders the short form "{index}v{generation}".
func (id EntityID) String() string {
	if id.IsPlaceholder() {
		return "PLACEHOLDER"
	}
	return fmt.Sprintf("%dv%d", id.Index(), id.Generation())
}

// FromBits reinterprets raw bits produced by Bits.
func FromBits(bits uint64) EntityID { return EntityID(bits) }

// TryFromBits is FromBits but rejects bits that carry the placeholder index.
func TryFromBits(bits uint64) (EntityID, error) {
	id := EntityID(bits)
	if id.IsPlaceholder() {
		return 0, fmt.Errorf("invalid entity bits %#x: placeholder index", bits)
	}
	return id, nil
}
