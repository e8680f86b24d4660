package ecs

import (
	"fmt"
	"math"
	"sync"
	"sync/atomic"

	"github.com/RoaringBitmap/roaring/v2"
	"go.uber.org/zap"
)

// Allocator mints, recycles and invalidates entity ids.
//
// Alloc, AllocMany, IsAlive and Resolve are lock-free and may be called from
// any number of goroutines. Free, FreeSkipping and FreeMany form the
// exclusive path: they are serialized by an internal writer lock, and the
// owning World only calls them from its exclusive phase. Clear additionally
// requires that no allocation runs concurrently.
type Allocator struct {
	meta   *metaTable
	free   freeList
	cursor *freshCursor
	log    *zap.Logger

	writer  sync.Mutex
	retired *roaring.Bitmap // guarded by writer

	orphanMu sync.Mutex
	orphans  []uint32 // dead indices handed back by the shared path
	orphaned atomic.Int64

	live     atomic.Int64
	frees    atomic.Uint64
	rejected atomic.Uint64
	closed   atomic.Bool
}

type options struct {
	log       *zap.Logger
	chunkBits uint
	maxChunks int
	maxIndex  uint32
	budget    MemoryBudget
}

// Option configures an Allocator.
type Option func(*options)

// WithLogger sets the logger used for retirement and growth diagnostics.
func WithLogger(log *zap.Logger) Option {
	return func(o *options) {
		if log != nil {
			o.log = log
		}
	}
}

// WithMetaChunkBits sets the meta table chunk size to 1<<bits slots.
func WithMetaChunkBits(bits uint) Option {
	return func(o *options) { o.chunkBits = min(bits, 24) }
}

// WithMaxMetaChunks caps meta table growth. Zero means enough chunks for the
// whole index domain.
func WithMaxMetaChunks(n int) Option {
	return func(o *options) { o.maxChunks = n }
}

// WithMaxIndex shrinks the index domain. Indices above maxIndex are never
// minted; the placeholder index is always excluded.
func WithMaxIndex(maxIndex uint32) Option {
	return func(o *options) { o.maxIndex = min(maxIndex, PlaceholderIndex-1) }
}

// WithMemoryBudget routes meta table growth through b.
func WithMemoryBudget(b MemoryBudget) Option {
	return func(o *options) { o.budget = b }
}

// New creates an empty Allocator.
func New(opts ...Option) *Allocator {
	o := options{
		log:       zap.NewNop(),
		chunkBits: DefaultMetaChunkBits,
		maxIndex:  PlaceholderIndex - 1,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.maxChunks <= 0 {
		o.maxChunks = int((uint64(o.maxIndex) >> o.chunkBits) + 1)
	}
	return &Allocator{
		meta:    newMetaTable(o.chunkBits, o.maxChunks, o.budget, o.log),
		cursor:  newFreshCursor(o.maxIndex),
		log:     o.log,
		retired: roaring.New(),
	}
}

// Alloc returns a new live entity, reusing a freed index when one exists.
// The meta table grows before a fresh index is claimed, so a failed growth
// leaves the index unminted.
func (a *Allocator) Alloc() (EntityID, error) {
	if index, ok := a.free.pop(); ok {
		return a.revive(index), nil
	}
	if a.tryDrainOrphans() {
		if index, ok := a.free.pop(); ok {
			return a.revive(index), nil
		}
	}
	index, err := a.cursor.reserve(1, a.meta.growTo)
	if err != nil {
		return 0, err
	}
	return a.birth(index), nil
}

// AllocMany reserves n entities. Recycled indices are drained from the free
// list in one transfer and the remainder is reserved as one contiguous fresh
// range, so the Batch itself never fails.
func (a *Allocator) AllocMany(n int) (*Batch, error) {
	if n < 0 {
		return nil, fmt.Errorf("ecs: negative batch size %d", n)
	}
	if uint64(n) > math.MaxUint32 {
		return nil, ErrIdentifierSpaceExhausted
	}
	a.tryDrainOrphans()
	recycled := a.free.popMany(uint32(n))
	fresh := uint32(n) - uint32(len(recycled))

	var start uint32
	if fresh > 0 {
		var err error
		if start, err = a.cursor.reserve(fresh, a.meta.growTo); err != nil {
			a.orphan(recycled)
			a.tryDrainOrphans()
			return nil, err
		}
	}
	return &Batch{
		a:        a,
		recycled: recycled,
		next:     start,
		end:      start + fresh,
		total:    n,
	}, nil
}

// revive marks a recycled index alive at the generation bumped by its free.
func (a *Allocator) revive(index uint32) EntityID {
	s := a.meta.slot(index)
	if s == nil {
		panic(fmt.Sprintf("ecs: recycled index %d has no meta slot", index))
	}
	gen, _ := s.load()
	s.store(gen, true)
	a.live.Add(1)
	return NewEntityID(index, gen)
}

// birth initializes the slot of a freshly minted index.
func (a *Allocator) birth(index uint32) EntityID {
	a.meta.slot(index).store(0, true)
	a.live.Add(1)
	return NewEntityID(index, 0)
}

// orphan queues dead indices that the shared path could not hand out.
func (a *Allocator) orphan(indices []uint32) {
	if len(indices) == 0 {
		return
	}
	a.orphanMu.Lock()
	a.orphans = append(a.orphans, indices...)
	a.orphaned.Store(int64(len(a.orphans)))
	a.orphanMu.Unlock()
}

// drainOrphans moves orphaned indices onto the free list. Caller holds writer.
func (a *Allocator) drainOrphans() {
	a.orphanMu.Lock()
	pending := a.orphans
	a.orphans = nil
	a.orphaned.Store(0)
	a.orphanMu.Unlock()
	a.free.pushMany(pending)
}

// tryDrainOrphans drains orphans from the shared path when no free is in
// progress. A running free drains them itself, or the next one will.
func (a *Allocator) tryDrainOrphans() bool {
	if a.orphaned.Load() == 0 || !a.writer.TryLock() {
		return false
	}
	defer a.writer.Unlock()
	a.drainOrphans()
	return true
}

// Free kills e and recycles its index.
func (a *Allocator) Free(e EntityID) error {
	return a.FreeSkipping(e, 0)
}

// FreeSkipping frees e so that its index comes back with a generation at
// least 1+generations above the current one (saturating at MaxGeneration).
func (a *Allocator) FreeSkipping(e EntityID, generations uint32) error {
	a.writer.Lock()
	defer a.writer.Unlock()

	a.drainOrphans()
	index, recycle, err := a.kill(e, uint64(generations)+1)
	if err != nil {
		return err
	}
	if recycle {
		a.free.push(index)
	}
	return nil
}

// FreeMany frees each entity in order and returns one error slot per input.
// A repeated entity fails with ErrAlreadyFreed after its first occurrence.
func (a *Allocator) FreeMany(es []EntityID) []error {
	a.writer.Lock()
	defer a.writer.Unlock()

	a.drainOrphans()
	errs := make([]error, len(es))
	recycle := make([]uint32, 0, len(es))
	for i, e := range es {
		index, ok, err := a.kill(e, 1)
		if err != nil {
			errs[i] = err
			continue
		}
		if ok {
			recycle = append(recycle, index)
		}
	}
	a.free.pushMany(recycle)
	return errs
}

// kill validates e against its slot, marks it dead and bumps the generation
// by step. recycle is false when the index was retired. Caller holds writer.
func (a *Allocator) kill(e EntityID, step uint64) (index uint32, recycle bool, err error) {
	index = e.Index()
	if !a.cursor.contains(index) {
		a.rejected.Add(1)
		return index, false, unknownEntity(e)
	}
	s := a.meta.slot(index)
	if s == nil {
		a.rejected.Add(1)
		return index, false, unknownEntity(e)
	}
	gen, alive := s.load()
	if !alive || gen != e.Generation() {
		a.rejected.Add(1)
		return index, false, alreadyFreed(e)
	}

	a.live.Add(-1)
	a.frees.Add(1)
	if gen == MaxGeneration {
		s.store(gen, false)
		a.retired.Add(index)
		a.log.Warn("entity index retired", zap.Stringer("entity", e))
		return index, false, nil
	}
	next := min(uint64(gen)+step, uint64(MaxGeneration))
	s.store(uint32(next), false)
	return index, true, nil
}

// IsAlive reports whether e is the current live handle for its index.
func (a *Allocator) IsAlive(e EntityID) bool {
	gen, alive, ok := a.meta.get(e.Index())
	return ok && alive && gen == e.Generation()
}

// Resolve returns the current handle for index, which may be dead. ok is
// false when the index has never been minted.
func (a *Allocator) Resolve(index uint32) (EntityID, bool) {
	if !a.cursor.contains(index) {
		return 0, false
	}
	gen, _, _ := a.meta.get(index)
	return NewEntityID(index, gen), true
}

// Reserve grows the meta table so the next n fresh allocations do not grow it.
func (a *Allocator) Reserve(n int) error {
	shortfall := int64(n) - int64(a.NumFree())
	if shortfall <= 0 {
		return nil
	}
	last := uint64(a.cursor.high()) + uint64(shortfall) - 1
	if last >= a.cursor.limit {
		last = a.cursor.limit - 1
	}
	return a.meta.growTo(uint32(last))
}

// Len is the number of live entities.
func (a *Allocator) Len() int { return int(a.live.Load()) }

// TotalIndices is the number of indices ever minted.
func (a *Allocator) TotalIndices() uint32 { return a.cursor.high() }

// NumFree is the number of indices waiting for reuse, including orphans not
// yet moved onto the free list.
func (a *Allocator) NumFree() int {
	return int(a.free.len()) + int(a.orphaned.Load())
}

// NumRetired is the number of indices permanently taken out of circulation.
func (a *Allocator) NumRetired() int {
	a.writer.Lock()
	defer a.writer.Unlock()
	return int(a.retired.GetCardinality())
}

// IsRetired reports whether index has been retired.
func (a *Allocator) IsRetired(index uint32) bool {
	a.writer.Lock()
	defer a.writer.Unlock()
	return a.retired.Contains(index)
}

// LiveSet returns a snapshot of live indices. Allocations racing with the
// snapshot may or may not be included.
func (a *Allocator) LiveSet() *roaring.Bitmap {
	a.writer.Lock()
	defer a.writer.Unlock()

	set := roaring.New()
	high := a.cursor.high()
	for i := uint32(0); i < high; i++ {
		if _, alive, ok := a.meta.get(i); ok && alive {
			set.Add(i)
		}
	}
	return set
}

// Clear forgets every entity. Outstanding handles become unknown. No
// allocation may run concurrently.
func (a *Allocator) Clear() {
	a.writer.Lock()
	defer a.writer.Unlock()

	a.orphanMu.Lock()
	a.orphans = nil
	a.orphaned.Store(0)
	a.orphanMu.Unlock()

	a.free.reset()
	a.meta.reset()
	a.cursor.reset()
	a.retired.Clear()
	a.live.Store(0)
}

// Close marks the allocator as torn down. It keeps working, but remote
// handles report Closed from now on.
func (a *Allocator) Close() { a.closed.Store(true) }

// Remote returns a handle for goroutines outside the World's phases.
func (a *Allocator) Remote() *RemoteAllocator { return &RemoteAllocator{a: a} }

// Stats is a point-in-time view of allocator bookkeeping.
type Stats struct {
	TotalIndices uint32
	Live         int
	Free         int
	Retired      int
	MetaCapacity int
	Frees        uint64 // successful frees, cumulative
	Rejected     uint64 // rejected frees, cumulative
}

func (a *Allocator) Stats() Stats {
	return Stats{
		TotalIndices: a.TotalIndices(),
		Live:         a.Len(),
		Free:         a.NumFree(),
		Retired:      a.NumRetired(),
		MetaCapacity: a.meta.capacity(),
		Frees:        a.frees.Load(),
		Rejected:     a.rejected.Load(),
	}
}

func (a *Allocator) String() string {
	return fmt.Sprintf("Allocator{total_indices: %d, free: %d, live: %d}", a.TotalIndices(), a.NumFree(), a.Len())
}

// RemoteAllocator allocates on behalf of code that holds no World access.
// Its pops wait out a free in progress instead of racing it.
type RemoteAllocator struct {
	a *Allocator
}

func (r *RemoteAllocator) Alloc() (EntityID, error) { return r.a.Alloc() }

// Closed reports whether the source allocator was closed. Ids allocated after
// that point belong to a World that no longer exists.
func (r *RemoteAllocator) Closed() bool { return r.a.closed.Load() }

// SharedAllocator is the shared-access view of an Allocator: it exposes only
// the operations that are safe to call concurrently.
type SharedAllocator struct {
	a *Allocator
}

func (s SharedAllocator) Alloc() (EntityID, error)              { return s.a.Alloc() }
func (s SharedAllocator) AllocMany(n int) (*Batch, error)       { return s.a.AllocMany(n) }
func (s SharedAllocator) IsAlive(e EntityID) bool               { return s.a.IsAlive(e) }
func (s SharedAllocator) Resolve(index uint32) (EntityID, bool) { return s.a.Resolve(index) }
func (s SharedAllocator) Len() int                              { return s.a.Len() }
func (s SharedAllocator) TotalIndices() uint32                  { return s.a.TotalIndices() }
func (s SharedAllocator) Remote() *RemoteAllocator              { return s.a.Remote() }
