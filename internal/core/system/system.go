package system

import "time"

// Phase defines execution ordering within a single tick.
type Phase int

const (
	PhaseSpawn   Phase = iota // 0: allocate entities (shared access)
	PhaseUpdate               // 1: per-entity logic, despawn decisions
	PhaseAudit                // 2: read-only invariant checks
	PhaseCleanup              // 3: free queued entities (exclusive access)
)

func (p Phase) String() string {
	switch p {
	case PhaseSpawn:
		return "spawn"
	case PhaseUpdate:
		return "update"
	case PhaseAudit:
		return "audit"
	case PhaseCleanup:
		return "cleanup"
	}
	return "unknown"
}

// System is the interface every ECS system implements.
type System interface {
	Phase() Phase
	Update(dt time.Duration) error
}

// Concurrent is implemented by systems that may run in parallel with the
// other concurrent systems of their phase.
type Concurrent interface {
	Concurrent() bool
}
