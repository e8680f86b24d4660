package system

import (
	"time"

	"github.com/l1jgo/ecsid/internal/core/ecs"
	"github.com/l1jgo/ecsid/internal/core/event"
	coresys "github.com/l1jgo/ecsid/internal/core/system"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// CleanupSystem flushes the deferred entity destruction queue at tick end.
// Phase 3 (Cleanup). Rejected frees are reported, not fatal.
type CleanupSystem struct {
	world *ecs.World
	bus   *event.Bus
	log   *zap.Logger
	warn  rate.Sometimes // throttles the rejected-despawn warning

	freed    int
	rejected int
}

func NewCleanupSystem(world *ecs.World, bus *event.Bus, log *zap.Logger) *CleanupSystem {
	return &CleanupSystem{
		world: world,
		bus:   bus,
		log:   log,
		warn:  rate.Sometimes{First: 1, Interval: time.Second},
	}
}

func (s *CleanupSystem) Phase() coresys.Phase { return coresys.PhaseCleanup }

func (s *CleanupSystem) Update(_ time.Duration) error {
	res := s.world.FlushDestroyQueue()
	s.freed += len(res.Freed)
	s.rejected += len(res.Rejected)

	if len(res.Freed) > 0 {
		event.Emit(s.bus, event.EntitiesDespawned{Entities: res.Freed})
	}
	for _, err := range res.Rejected {
		s.log.Debug("despawn rejected", zap.Error(err))
		event.Emit(s.bus, event.DespawnRejected{Err: err})
	}
	if n := len(res.Rejected); n > 0 {
		s.warn.Do(func() {
			s.log.Warn("queued despawns rejected", zap.Int("count", n), zap.Int("total", s.rejected))
		})
	}
	return nil
}

// Freed is the total number of entities this system has freed.
func (s *CleanupSystem) Freed() int { return s.freed }

// Rejected is the total number of queued despawns the allocator refused.
func (s *CleanupSystem) Rejected() int { return s.rejected }
