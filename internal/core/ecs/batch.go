package ecs

import (
	"iter"

	"go.uber.org/zap"
)

// Batch is the lazy result of AllocMany: recycled indices first, then the
// fresh range. Each entity becomes alive when it is yielded. A Batch is
// consumed once, from one goroutine; Close hands back whatever was not taken.
type Batch struct {
	a        *Allocator
	recycled []uint32
	next     uint32
	end      uint32
	total    int
}

// Len is the number of entities the batch was created with.
func (b *Batch) Len() int { return b.total }

// Remaining is the number of entities not yet yielded.
func (b *Batch) Remaining() int {
	return len(b.recycled) + int(b.end-b.next)
}

// Next yields the next entity, or false once the batch is drained.
func (b *Batch) Next() (EntityID, bool) {
	if len(b.recycled) > 0 {
		index := b.recycled[0]
		b.recycled = b.recycled[1:]
		return b.a.revive(index), true
	}
	if b.next < b.end {
		index := b.next
		b.next++
		return b.a.birth(index), true
	}
	return 0, false
}

// All ranges over the remaining entities. Breaking out early leaves the rest
// in the batch.
func (b *Batch) All() iter.Seq[EntityID] {
	return func(yield func(EntityID) bool) {
		for {
			e, ok := b.Next()
			if !ok || !yield(e) {
				return
			}
		}
	}
}

// Collect drains the batch into a slice.
func (b *Batch) Collect() []EntityID {
	out := make([]EntityID, 0, b.Remaining())
	for e := range b.All() {
		out = append(out, e)
	}
	return out
}

// Close returns unconsumed entities to the allocator; they were never made
// alive and go back onto the free list unless a free is running, in which
// case the next allocation or free picks them up.
func (b *Batch) Close() {
	n := b.Remaining()
	if n == 0 {
		return
	}
	b.a.log.Warn("unconsumed batch entities returned", zap.Int("count", n), zap.Int("batch", b.total))

	rest := make([]uint32, 0, n)
	rest = append(rest, b.recycled...)
	for i := b.next; i < b.end; i++ {
		rest = append(rest, i)
	}
	b.recycled = nil
	b.next = b.end
	b.a.orphan(rest)
	b.a.tryDrainOrphans()
}
