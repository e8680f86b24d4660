package system

import (
	"time"

	"github.com/l1jgo/ecsid/internal/core/event"
	coresys "github.com/l1jgo/ecsid/internal/core/system"
)

// EventSystem delivers the events emitted during the previous tick.
// Phase 0 (Spawn), sequential, so it finishes before any spawner runs.
type EventSystem struct {
	bus *event.Bus
}

func NewEventSystem(bus *event.Bus) *EventSystem {
	return &EventSystem{bus: bus}
}

func (s *EventSystem) Phase() coresys.Phase { return coresys.PhaseSpawn }

func (s *EventSystem) Update(_ time.Duration) error {
	s.bus.SwapBuffers()
	s.bus.DispatchAll()
	return nil
}
