package ecs

import (
	"fmt"
	"sync"
	"sync/atomic"
	"unsafe"

	"go.uber.org/zap"
)

const (
	// DefaultMetaChunkBits gives 1024 slots per meta chunk.
	DefaultMetaChunkBits = 10

	aliveBit = 1
)

// metaSlot packs generation<<32 | alive into one word so readers on other
// goroutines never observe a torn (generation, alive) pair.
type metaSlot struct {
	state atomic.Uint64
}

func packMeta(generation uint32, alive bool) uint64 {
	v := uint64(generation) << 32
	if alive {
		v |= aliveBit
	}
	return v
}

func (s *metaSlot) load() (generation uint32, alive bool) {
	v := s.state.Load()
	return uint32(v >> 32), v&aliveBit != 0
}

func (s *metaSlot) store(generation uint32, alive bool) {
	s.state.Store(packMeta(generation, alive))
}

type metaChunk struct {
	slots []metaSlot
}

// metaTable maps index -> (generation, alive). Chunks are never moved once
// published; growth swaps in a longer directory of the same chunk pointers.
type metaTable struct {
	chunkBits uint
	chunkMask uint32
	maxChunks int
	budget    MemoryBudget
	log       *zap.Logger

	mu     sync.Mutex // serializes growth only
	chunks atomic.Pointer[[]*metaChunk]
}

func newMetaTable(chunkBits uint, maxChunks int, budget MemoryBudget, log *zap.Logger) *metaTable {
	t := &metaTable{
		chunkBits: chunkBits,
		chunkMask: uint32(1)<<chunkBits - 1,
		maxChunks: maxChunks,
		budget:    budget,
		log:       log,
	}
	empty := make([]*metaChunk, 0)
	t.chunks.Store(&empty)
	return t
}

func (t *metaTable) chunkLen() int { return 1 << t.chunkBits }

func (t *metaTable) chunkBytes() int64 {
	return int64(t.chunkLen()) * int64(unsafe.Sizeof(metaSlot{}))
}

// slot returns the slot for index, or nil if its chunk does not exist yet.
func (t *metaTable) slot(index uint32) *metaSlot {
	chunks := *t.chunks.Load()
	ci := int(index >> t.chunkBits)
	if ci >= len(chunks) {
		return nil
	}
	return &chunks[ci].slots[index&t.chunkMask]
}

// get never panics; ok is false when index has no backing slot.
func (t *metaTable) get(index uint32) (generation uint32, alive bool, ok bool) {
	s := t.slot(index)
	if s == nil {
		return 0, false, false
	}
	generation, alive = s.load()
	return generation, alive, true
}

// growTo makes sure the chunk holding index exists.
func (t *metaTable) growTo(index uint32) error {
	ci := int(index >> t.chunkBits)

	// Fast path: already covered.
	if ci < len(*t.chunks.Load()) {
		return nil
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	old := *t.chunks.Load()
	if ci < len(old) {
		return nil
	}
	if ci >= t.maxChunks {
		t.log.Error("meta table chunk limit reached",
			zap.Uint32("index", index), zap.Int("max_chunks", t.maxChunks))
		return fmt.Errorf("%w: meta chunk %d exceeds limit of %d chunks", ErrAllocationFailed, ci, t.maxChunks)
	}

	missing := ci + 1 - len(old)
	if t.budget != nil {
		if err := t.budget.Acquire(int64(missing) * t.chunkBytes()); err != nil {
			t.log.Error("meta table growth refused", zap.Uint32("index", index), zap.Error(err))
			return fmt.Errorf("%w: %w", ErrAllocationFailed, err)
		}
	}

	grown := make([]*metaChunk, ci+1)
	copy(grown, old)
	for i := len(old); i <= ci; i++ {
		grown[i] = &metaChunk{slots: make([]metaSlot, t.chunkLen())}
	}
	t.chunks.Store(&grown)

	t.log.Debug("meta table grown", zap.Int("chunks", len(grown)), zap.Int("capacity", len(grown)<<t.chunkBits))
	return nil
}

// capacity is the number of addressable slots.
func (t *metaTable) capacity() int {
	return len(*t.chunks.Load()) << t.chunkBits
}

// reset drops every chunk. Exclusive access only.
func (t *metaTable) reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := len(*t.chunks.Load())
	empty := make([]*metaChunk, 0)
	t.chunks.Store(&empty)
	if t.budget != nil && n > 0 {
		t.budget.Release(int64(n) * t.chunkBytes())
	}
}
