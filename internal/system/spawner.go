package system

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/l1jgo/ecsid/internal/core/ecs"
	"github.com/l1jgo/ecsid/internal/core/event"
	coresys "github.com/l1jgo/ecsid/internal/core/system"
	"github.com/l1jgo/ecsid/internal/data"
)

// Lifetime counts down the ticks an entity has left before it is despawned.
type Lifetime struct {
	Spawner string
	TTL     int
}

// SpawnerSystem creates entities every tick through the world's shared
// allocator view. Phase 0 (Spawn). Several spawners run concurrently.
type SpawnerSystem struct {
	name      string
	world     *ecs.World
	bus       *event.Bus
	lifetimes *ecs.PtrComponentStore[Lifetime]

	perTick   int
	batchSize int
	lifetime  int

	spawned atomic.Int64
}

func NewSpawnerSystem(name string, w *ecs.World, bus *event.Bus, lifetimes *ecs.PtrComponentStore[Lifetime], wl *data.WorkloadEntry) *SpawnerSystem {
	return &SpawnerSystem{
		name:      name,
		world:     w,
		bus:       bus,
		lifetimes: lifetimes,
		perTick:   wl.PerTick,
		batchSize: wl.BatchSize,
		lifetime:  wl.LifetimeTicks,
	}
}

func (s *SpawnerSystem) Phase() coresys.Phase { return coresys.PhaseSpawn }
func (s *SpawnerSystem) Concurrent() bool     { return true }

func (s *SpawnerSystem) Update(_ time.Duration) error {
	if s.perTick == 0 {
		return nil
	}
	out, err := s.spawn()
	// Entities handed out before a failure are still live and tracked.
	for _, id := range out {
		s.lifetimes.Set(id, &Lifetime{Spawner: s.name, TTL: s.lifetime})
	}
	s.spawned.Add(int64(len(out)))
	if len(out) > 0 {
		event.Emit(s.bus, event.EntitiesSpawned{Spawner: s.name, Entities: out})
	}
	if err != nil {
		return fmt.Errorf("spawner %s: %w", s.name, err)
	}
	return nil
}

func (s *SpawnerSystem) spawn() ([]ecs.EntityID, error) {
	alloc := s.world.EntityAllocator()
	out := make([]ecs.EntityID, 0, s.perTick)

	if s.batchSize <= 1 {
		for range s.perTick {
			id, err := alloc.Alloc()
			if err != nil {
				return out, err
			}
			out = append(out, id)
		}
		return out, nil
	}

	for remaining := s.perTick; remaining > 0; {
		n := min(remaining, s.batchSize)
		b, err := alloc.AllocMany(n)
		if err != nil {
			return out, err
		}
		for id := range b.All() {
			out = append(out, id)
		}
		remaining -= n
	}
	return out, nil
}

func (s *SpawnerSystem) Name() string { return s.name }

// Spawned is the total number of entities this spawner has created.
func (s *SpawnerSystem) Spawned() int64 { return s.spawned.Load() }
