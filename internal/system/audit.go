package system

import (
	"errors"
	"fmt"
	"time"

	"github.com/l1jgo/ecsid/internal/core/ecs"
	coresys "github.com/l1jgo/ecsid/internal/core/system"
	"go.uber.org/zap"
)

// ErrAuditFailed is returned by AuditSystem when a tick broke handle
// uniqueness or liveness.
var ErrAuditFailed = errors.New("entity audit failed")

// AuditSystem cross-checks tracked entities against the allocator. Phase 2
// (Audit), after spawns and before the destroy queue is flushed, so every
// tracked entity must still be alive and own its index exclusively.
type AuditSystem struct {
	world     *ecs.World
	lifetimes *ecs.PtrComponentStore[Lifetime]
	log       *zap.Logger

	seen       map[uint32]ecs.EntityID
	checked    uint64
	violations uint64
}

func NewAuditSystem(w *ecs.World, lifetimes *ecs.PtrComponentStore[Lifetime], log *zap.Logger) *AuditSystem {
	return &AuditSystem{
		world:     w,
		lifetimes: lifetimes,
		log:       log,
		seen:      make(map[uint32]ecs.EntityID, 1024),
	}
}

func (s *AuditSystem) Phase() coresys.Phase { return coresys.PhaseAudit }

func (s *AuditSystem) Update(_ time.Duration) error {
	alloc := s.world.EntityAllocator()
	clear(s.seen)

	var bad uint64
	s.lifetimes.Each(func(id ecs.EntityID, _ *Lifetime) {
		s.checked++
		if prev, dup := s.seen[id.Index()]; dup {
			bad++
			s.log.Error("two live handles share an index",
				zap.Stringer("first", prev), zap.Stringer("second", id))
			return
		}
		s.seen[id.Index()] = id
		if !alloc.IsAlive(id) {
			bad++
			s.log.Error("tracked entity is not alive", zap.Stringer("entity", id))
		}
	})

	if live := alloc.Len(); live < len(s.seen) {
		bad++
		s.log.Error("live count below tracked entities",
			zap.Int("live", live), zap.Int("tracked", len(s.seen)))
	}

	if bad > 0 {
		s.violations += bad
		return fmt.Errorf("%w: %d violations", ErrAuditFailed, bad)
	}
	return nil
}

// Checked is the number of handles inspected so far.
func (s *AuditSystem) Checked() uint64 { return s.checked }

// Violations is the number of problems found so far.
func (s *AuditSystem) Violations() uint64 { return s.violations }
