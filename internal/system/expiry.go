package system

import (
	"time"

	"github.com/l1jgo/ecsid/internal/core/ecs"
	coresys "github.com/l1jgo/ecsid/internal/core/system"
)

// ExpirySystem ages every Lifetime by one tick and queues entities whose
// lifetime ran out. Phase 1 (Update).
type ExpirySystem struct {
	world     *ecs.World
	lifetimes *ecs.PtrComponentStore[Lifetime]
	double    bool // queue each expired entity twice

	expired []ecs.EntityID
}

func NewExpirySystem(w *ecs.World, lifetimes *ecs.PtrComponentStore[Lifetime], double bool) *ExpirySystem {
	return &ExpirySystem{world: w, lifetimes: lifetimes, double: double}
}

func (s *ExpirySystem) Phase() coresys.Phase { return coresys.PhaseUpdate }

func (s *ExpirySystem) Update(_ time.Duration) error {
	s.expired = s.expired[:0]
	s.lifetimes.Each(func(id ecs.EntityID, l *Lifetime) {
		if l.TTL > 0 {
			l.TTL--
		}
		if l.TTL == 0 {
			s.expired = append(s.expired, id)
		}
	})
	for _, id := range s.expired {
		s.world.MarkForDestruction(id)
		if s.double {
			s.world.MarkForDestruction(id)
		}
	}
	return nil
}
