package system

import (
	"fmt"

	"github.com/l1jgo/ecsid/internal/core/ecs"
	"github.com/l1jgo/ecsid/internal/core/event"
	coresys "github.com/l1jgo/ecsid/internal/core/system"
	"github.com/l1jgo/ecsid/internal/data"
	"go.uber.org/zap"
)

// Workload is the set of systems that drives one workload entry against a
// World.
type Workload struct {
	Entry     *data.WorkloadEntry
	Lifetimes *ecs.PtrComponentStore[Lifetime]

	Events   *EventSystem
	Spawners []*SpawnerSystem
	Expiry   *ExpirySystem
	Audit    *AuditSystem
	Cleanup  *CleanupSystem
}

// NewWorkload builds the systems and registers the lifetime store with the
// world's registry so freed entities drop their rows.
func NewWorkload(w *ecs.World, bus *event.Bus, entry *data.WorkloadEntry, log *zap.Logger) *Workload {
	if log == nil {
		log = zap.NewNop()
	}
	lifetimes := ecs.NewPtrComponentStore[Lifetime]()
	w.Registry().Register(lifetimes)

	wl := &Workload{
		Entry:     entry,
		Lifetimes: lifetimes,
		Events:    NewEventSystem(bus),
		Expiry:    NewExpirySystem(w, lifetimes, entry.DoubleDespawn),
		Audit:     NewAuditSystem(w, lifetimes, log),
		Cleanup:   NewCleanupSystem(w, bus, log),
	}
	for i := range entry.Spawners {
		name := fmt.Sprintf("%s-%d", entry.Name, i)
		wl.Spawners = append(wl.Spawners, NewSpawnerSystem(name, w, bus, lifetimes, entry))
	}
	return wl
}

// Register adds every system to r. The event system goes first so it runs
// before the concurrent spawners of the same phase.
func (wl *Workload) Register(r *coresys.Runner) {
	r.Register(wl.Events)
	for _, s := range wl.Spawners {
		r.Register(s)
	}
	r.Register(wl.Expiry)
	r.Register(wl.Audit)
	r.Register(wl.Cleanup)
}

// Spawned is the total across all spawners.
func (wl *Workload) Spawned() int64 {
	var n int64
	for _, s := range wl.Spawners {
		n += s.Spawned()
	}
	return n
}
