package system

import (
	"testing"
	"time"

	"github.com/l1jgo/ecsid/internal/core/ecs"
	"github.com/l1jgo/ecsid/internal/core/event"
	coresys "github.com/l1jgo/ecsid/internal/core/system"
	"github.com/l1jgo/ecsid/internal/data"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func runWorkload(t *testing.T, w *ecs.World, entry *data.WorkloadEntry, ticks int) (*Workload, *event.Bus) {
	t.Helper()
	bus := event.NewBus()
	runner := coresys.NewRunner(zap.NewNop())
	wl := NewWorkload(w, bus, entry, zap.NewNop())
	wl.Register(runner)
	for range ticks {
		require.NoError(t, runner.Tick(time.Millisecond))
	}
	return wl, bus
}

func TestWorkload_SteadyState(t *testing.T) {
	for _, batch := range []int{1, 4, 64} {
		w := ecs.NewWorld()
		entry := &data.WorkloadEntry{Name: "t", Spawners: 3, PerTick: 10, BatchSize: batch, LifetimeTicks: 2}
		wl, _ := runWorkload(t, w, entry, 10)

		assert.Equal(t, int64(300), wl.Spawned())
		assert.Equal(t, 270, wl.Cleanup.Freed(), "entities live for two ticks")
		assert.Equal(t, 0, wl.Cleanup.Rejected())
		assert.Equal(t, uint64(0), wl.Audit.Violations())
		assert.Equal(t, 30, wl.Lifetimes.Len())
		assert.Equal(t, 30, w.EntityAllocator().Len())
		// Recycling keeps the index space bounded by the peak population.
		assert.LessOrEqual(t, w.EntityAllocator().TotalIndices(), uint32(60))
	}
}

func TestWorkload_DoubleDespawnRejected(t *testing.T) {
	w := ecs.NewWorld()
	entry := &data.WorkloadEntry{Name: "dd", Spawners: 2, PerTick: 5, BatchSize: 5, LifetimeTicks: 1, DoubleDespawn: true}
	wl, bus := runWorkload(t, w, entry, 4)

	var rejected int
	event.Subscribe(bus, func(ev event.DespawnRejected) {
		assert.ErrorIs(t, ev.Err, ecs.ErrAlreadyFreed)
		rejected++
	})
	bus.SwapBuffers()
	bus.DispatchAll()

	assert.Equal(t, 40, wl.Cleanup.Freed())
	assert.Equal(t, 40, wl.Cleanup.Rejected())
	assert.Equal(t, 10, rejected, "last tick's rejections")
	assert.Equal(t, uint64(0), wl.Audit.Violations())
	assert.Equal(t, 0, w.EntityAllocator().Len())
}

func TestWorkload_EventsArriveNextTick(t *testing.T) {
	w := ecs.NewWorld()
	bus := event.NewBus()
	entry := &data.WorkloadEntry{Name: "ev", Spawners: 2, PerTick: 3, LifetimeTicks: 5}
	wl := NewWorkload(w, bus, entry, nil)

	var spawnEvents, spawned int
	event.Subscribe(bus, func(ev event.EntitiesSpawned) {
		spawnEvents++
		spawned += len(ev.Entities)
	})

	runner := coresys.NewRunner(nil)
	wl.Register(runner)
	for range 4 {
		require.NoError(t, runner.Tick(time.Millisecond))
	}
	assert.Equal(t, 6, spawnEvents)
	assert.Equal(t, 18, spawned)
	assert.Equal(t, int64(24), wl.Spawned())
}

func TestSpawnerSystem_ExhaustionTracksPartialSpawn(t *testing.T) {
	w := ecs.NewWorld(ecs.WithMaxIndex(4))
	bus := event.NewBus()
	lifetimes := ecs.NewPtrComponentStore[Lifetime]()
	entry := &data.WorkloadEntry{Name: "x", Spawners: 1, PerTick: 10, LifetimeTicks: 1}
	s := NewSpawnerSystem("x-0", w, bus, lifetimes, entry)

	err := s.Update(time.Millisecond)
	require.ErrorIs(t, err, ecs.ErrIdentifierSpaceExhausted)
	assert.Contains(t, err.Error(), "spawner x-0")
	assert.Equal(t, int64(5), s.Spawned())
	assert.Equal(t, 5, lifetimes.Len())
	assert.Equal(t, 1, event.Pending[event.EntitiesSpawned](bus))
}

func TestAuditSystem_DetectsOutOfBandFree(t *testing.T) {
	w := ecs.NewWorld()
	lifetimes := ecs.NewPtrComponentStore[Lifetime]()
	audit := NewAuditSystem(w, lifetimes, zap.NewNop())

	es, err := w.CreateEntities(3)
	require.NoError(t, err)
	for _, e := range es {
		lifetimes.Set(e, &Lifetime{TTL: 1})
	}
	require.NoError(t, audit.Update(time.Millisecond))
	assert.Equal(t, uint64(3), audit.Checked())

	// Freed behind the world's back: the row stays, the handle dies.
	alloc, release := w.EntityAllocatorMut()
	require.NoError(t, alloc.Free(es[1]))
	release()

	err = audit.Update(time.Millisecond)
	require.ErrorIs(t, err, ErrAuditFailed)
	// The dead handle and the live count falling below the tracked rows.
	assert.Equal(t, uint64(2), audit.Violations())
}

func TestAuditSystem_DetectsSharedIndex(t *testing.T) {
	w := ecs.NewWorld()
	lifetimes := ecs.NewPtrComponentStore[Lifetime]()
	audit := NewAuditSystem(w, lifetimes, zap.NewNop())

	e, err := w.CreateEntity()
	require.NoError(t, err)
	lifetimes.Set(e, &Lifetime{TTL: 1})
	lifetimes.Set(ecs.NewEntityID(e.Index(), e.Generation()+1), &Lifetime{TTL: 1})

	require.ErrorIs(t, audit.Update(time.Millisecond), ErrAuditFailed)
}

func TestExpirySystem(t *testing.T) {
	w := ecs.NewWorld()
	lifetimes := ecs.NewPtrComponentStore[Lifetime]()
	expiry := NewExpirySystem(w, lifetimes, false)

	short, err := w.CreateEntity()
	require.NoError(t, err)
	long, err := w.CreateEntity()
	require.NoError(t, err)
	lifetimes.Set(short, &Lifetime{TTL: 1})
	lifetimes.Set(long, &Lifetime{TTL: 3})

	require.NoError(t, expiry.Update(time.Millisecond))
	assert.Equal(t, 1, w.PendingDestruction())

	l, ok := lifetimes.Get(long)
	require.True(t, ok)
	assert.Equal(t, 2, l.TTL)
}
