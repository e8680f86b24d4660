package ecs

import "sync/atomic"

// freshCursor hands out indices that have never been used before. It is a
// 64-bit counter over a 32-bit index domain so limit checks never wrap.
type freshCursor struct {
	next  atomic.Uint64
	limit uint64 // one past the largest mintable index
}

func newFreshCursor(maxIndex uint32) *freshCursor {
	return &freshCursor{limit: uint64(maxIndex) + 1}
}

// reserve claims the half-open range [start, start+n) with a single
// compare-and-swap. A refused request leaves the cursor where it was, so
// smaller requests can still fit. grow, when set, runs before the swap with
// the last index of the range; if it fails nothing is claimed.
func (c *freshCursor) reserve(n uint32, grow func(last uint32) error) (uint32, error) {
	for {
		cur := c.next.Load()
		end := cur + uint64(n)
		if end > c.limit {
			return 0, ErrIdentifierSpaceExhausted
		}
		if n > 0 && grow != nil {
			if err := grow(uint32(end - 1)); err != nil {
				return 0, err
			}
		}
		if c.next.CompareAndSwap(cur, end) {
			return uint32(cur), nil
		}
	}
}

// high returns the number of indices minted so far.
func (c *freshCursor) high() uint32 { return uint32(c.next.Load()) }

// contains reports whether index has been minted.
func (c *freshCursor) contains(index uint32) bool {
	return uint64(index) < c.next.Load()
}

func (c *freshCursor) reset() { c.next.Store(0) }
