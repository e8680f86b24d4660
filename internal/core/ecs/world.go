package ecs

import (
	"sync"

	"go.uber.org/zap"
)

// World is the top-level ECS container. It owns the entity allocator, the
// component registry, and a deferred destruction queue flushed by
// CleanupSystem each tick.
//
// Spawning goes through the shared allocator view and may happen from any
// goroutine. Freeing only happens in the exclusive phase: FlushDestroyQueue
// or a holder of EntityAllocatorMut.
type World struct {
	alloc    *Allocator
	registry *Registry
	log      *zap.Logger

	mu sync.Mutex // held for the duration of an exclusive phase

	queueMu      sync.Mutex
	destroyQueue []EntityID
	spare        []EntityID // guarded by mu
}

func NewWorld(opts ...Option) *World {
	a := New(opts...)
	return &World{
		alloc:        a,
		registry:     NewRegistry(),
		log:          a.log,
		destroyQueue: make([]EntityID, 0, 64),
	}
}

// EntityAllocator returns the shared view: allocation and liveness queries.
func (w *World) EntityAllocator() SharedAllocator { return SharedAllocator{a: w.alloc} }

// EntityAllocatorMut enters the exclusive phase and returns the allocator
// with its free path. Call release when done; other exclusive users block
// until then.
func (w *World) EntityAllocatorMut() (a *Allocator, release func()) {
	w.mu.Lock()
	return w.alloc, w.mu.Unlock
}

func (w *World) Registry() *Registry { return w.registry }

func (w *World) CreateEntity() (EntityID, error) {
	return w.alloc.Alloc()
}

// CreateEntities spawns n entities through a single batch reservation.
func (w *World) CreateEntities(n int) ([]EntityID, error) {
	b, err := w.alloc.AllocMany(n)
	if err != nil {
		return nil, err
	}
	return b.Collect(), nil
}

func (w *World) Alive(id EntityID) bool {
	return w.alloc.IsAlive(id)
}

// MarkForDestruction queues an entity for end-of-tick cleanup. Safe to call
// from any goroutine.
func (w *World) MarkForDestruction(id EntityID) {
	w.queueMu.Lock()
	w.destroyQueue = append(w.destroyQueue, id)
	w.queueMu.Unlock()
}

// PendingDestruction is the number of queued entities.
func (w *World) PendingDestruction() int {
	w.queueMu.Lock()
	defer w.queueMu.Unlock()
	return len(w.destroyQueue)
}

// FlushResult reports what one flush of the destroy queue did.
type FlushResult struct {
	Freed    []EntityID
	Rejected []error // one *FreeError per queued entity that was not alive
}

// FlushDestroyQueue frees all queued entities and clears their components.
// Entities queued twice are freed once; the repeat shows up in Rejected.
// Called by CleanupSystem at the end of each tick.
func (w *World) FlushDestroyQueue() FlushResult {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.queueMu.Lock()
	queue := w.destroyQueue
	w.destroyQueue = w.spare
	w.queueMu.Unlock()

	var res FlushResult
	if len(queue) == 0 {
		w.spare = queue
		return res
	}

	res.Freed = make([]EntityID, 0, len(queue))
	for i, err := range w.alloc.FreeMany(queue) {
		if err != nil {
			res.Rejected = append(res.Rejected, err)
			continue
		}
		res.Freed = append(res.Freed, queue[i])
	}
	w.registry.RemoveAll(res.Freed...)
	w.spare = queue[:0]

	w.log.Debug("destroy queue flushed",
		zap.Int("freed", len(res.Freed)), zap.Int("rejected", len(res.Rejected)))
	return res
}

// Close tears the World down; remote allocators observe it as closed.
func (w *World) Close() {
	w.alloc.Close()
}
