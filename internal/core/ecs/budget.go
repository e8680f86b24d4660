package ecs

import (
	"fmt"
	"sync/atomic"
)

// MemoryBudget gates meta table growth. Acquire returning an error makes the
// triggering Alloc/AllocMany fail with ErrAllocationFailed instead of growing.
type MemoryBudget interface {
	Acquire(bytes int64) error
	Release(bytes int64)
}

// ByteBudget is a MemoryBudget with a fixed byte ceiling.
type ByteBudget struct {
	limit int64
	used  atomic.Int64
}

func NewByteBudget(limit int64) *ByteBudget {
	return &ByteBudget{limit: limit}
}

func (b *ByteBudget) Acquire(bytes int64) error {
	for {
		cur := b.used.Load()
		if cur+bytes > b.limit {
			return fmt.Errorf("memory budget: %d + %d bytes exceeds limit %d", cur, bytes, b.limit)
		}
		if b.used.CompareAndSwap(cur, cur+bytes) {
			return nil
		}
	}
}

func (b *ByteBudget) Release(bytes int64) {
	b.used.Add(-bytes)
}

// Used returns the bytes currently held.
func (b *ByteBudget) Used() int64 { return b.used.Load() }
