package ecs

import (
	"math/bits"
	"runtime"
	"sync/atomic"
)

// Free buffer layout: freeChunks power-of-two chunks laid end to end. The first
// two hold 512 entries, every later chunk doubles, and together they cover the
// whole uint32 index space. Chunks are allocated on first push and never move.
const (
	freeChunks  = 24
	freeSkipped = 32 - freeChunks
)

func freeChunkCap(chunk uint32) uint32 {
	return 1 << (max(chunk, 1) + freeSkipped)
}

// freeSlotInfo maps a position in the buffer to (chunk, offset, chunk capacity).
func freeSlotInfo(pos uint32) (chunk, offset, capacity uint32) {
	lz := uint32(bits.LeadingZeros32(pos))
	if lz < freeChunks-1 {
		chunk = freeChunks - 1 - lz
	}
	capacity = freeChunkCap(chunk)
	return chunk, pos &^ capacity, capacity
}

type freeChunk struct {
	entries []atomic.Uint32
}

// freeState packs the list state into one word:
//
//	bits  0..31  length
//	bit   32     disabled (a push is in progress)
//	bits 33..63  tag, bumped by every pop so a stale CAS can never succeed
type freeState uint64

const (
	freeLenMask  = 1<<32 - 1
	freeDisabled = 1 << 32
	freeTagUnit  = 1 << 33
)

func (s freeState) length() uint32 { return uint32(s & freeLenMask) }
func (s freeState) disabled() bool { return s&freeDisabled != 0 }

func (s freeState) withLength(n uint32) freeState {
	return s&^(freeLenMask|freeDisabled) | freeState(n)
}

// popped assumes n <= s.length().
func (s freeState) popped(n uint32) freeState {
	return s - freeState(n) + freeTagUnit
}

// freeList is a LIFO of recyclable indices. pop/popMany may run on any number
// of goroutines; push/pushMany must be serialized by the caller.
type freeList struct {
	chunks [freeChunks]atomic.Pointer[freeChunk]
	state  atomic.Uint64
}

func (l *freeList) get(pos uint32) uint32 {
	ci, off, _ := freeSlotInfo(pos)
	c := l.chunks[ci].Load()
	if c == nil {
		panic("ecs: free list read past initialized chunks")
	}
	return c.entries[off].Load()
}

func (l *freeList) set(pos uint32, index uint32) {
	ci, off, capacity := freeSlotInfo(pos)
	c := l.chunks[ci].Load()
	if c == nil {
		c = &freeChunk{entries: make([]atomic.Uint32, capacity)}
		l.chunks[ci].Store(c)
	}
	c.entries[off].Store(index)
}

// spin waits out a push in progress, yielding every 64 attempts.
func spin(attempts *int) {
	*attempts++
	if *attempts%64 == 0 {
		runtime.Gosched()
	}
}

// pop takes one index, or reports false when the list is empty.
func (l *freeList) pop() (uint32, bool) {
	attempts := 0
	for {
		s := freeState(l.state.Load())
		if s.disabled() {
			spin(&attempts)
			continue
		}
		n := s.length()
		if n == 0 {
			return 0, false
		}
		// Read before the CAS: a successful CAS proves the entry was not
		// overwritten in between.
		index := l.get(n - 1)
		if l.state.CompareAndSwap(uint64(s), uint64(s.popped(1))) {
			return index, true
		}
	}
}

// popMany takes up to n indices in a single state transition.
func (l *freeList) popMany(n uint32) []uint32 {
	var out []uint32
	attempts := 0
	for {
		s := freeState(l.state.Load())
		if s.disabled() {
			spin(&attempts)
			continue
		}
		have := s.length()
		k := min(have, n)
		if k == 0 {
			return nil
		}
		if cap(out) < int(k) {
			out = make([]uint32, k)
		}
		out = out[:k]
		base := have - k
		for i := range out {
			out[i] = l.get(base + uint32(i))
		}
		if l.state.CompareAndSwap(uint64(s), uint64(s.popped(k))) {
			return out
		}
	}
}

// push appends one index. Exclusive access only.
func (l *freeList) push(index uint32) {
	prev := l.begin()
	n := prev.length()
	l.set(n, index)
	l.state.Store(uint64(prev.withLength(n + 1)))
}

// pushMany appends indices with a single publish. Exclusive access only.
func (l *freeList) pushMany(indices []uint32) {
	if len(indices) == 0 {
		return
	}
	prev := l.begin()
	n := prev.length()
	for i, index := range indices {
		l.set(n+uint32(i), index)
	}
	l.state.Store(uint64(prev.withLength(n + uint32(len(indices)))))
}

// begin disables concurrent pops for the duration of a push and returns the
// state it started from.
func (l *freeList) begin() freeState {
	prev := freeState(l.state.Or(freeDisabled))
	if prev.disabled() {
		panic("ecs: concurrent free list push")
	}
	return prev
}

func (l *freeList) len() uint32 {
	return freeState(l.state.Load()).length()
}

// reset empties the list but keeps its chunks. Exclusive access only.
func (l *freeList) reset() {
	l.state.Store(0)
}
