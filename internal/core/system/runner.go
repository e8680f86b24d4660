package system

import (
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Runner executes systems in phase order each tick. Within a phase,
// sequential systems run first in registration order, then the phase's
// concurrent systems run in parallel.
type Runner struct {
	systems []System
	sorted  bool
	log     *zap.Logger
	ticks   uint64
}

func NewRunner(log *zap.Logger) *Runner {
	if log == nil {
		log = zap.NewNop()
	}
	return &Runner{
		systems: make([]System, 0, 16),
		log:     log,
	}
}

func (r *Runner) Register(s System) {
	r.systems = append(r.systems, s)
	r.sorted = false
}

// Ticks is the number of completed ticks.
func (r *Runner) Ticks() uint64 { return r.ticks }

// Tick runs every phase once and stops at the first failing phase.
func (r *Runner) Tick(dt time.Duration) error {
	r.ensureSorted()
	for start := 0; start < len(r.systems); {
		phase := r.systems[start].Phase()
		end := start
		for end < len(r.systems) && r.systems[end].Phase() == phase {
			end++
		}
		if err := r.runPhase(phase, r.systems[start:end], dt); err != nil {
			return err
		}
		start = end
	}
	r.ticks++
	return nil
}

// TickPhase runs only the systems of the given phase.
func (r *Runner) TickPhase(phase Phase, dt time.Duration) error {
	r.ensureSorted()
	var batch []System
	for _, s := range r.systems {
		if s.Phase() == phase {
			batch = append(batch, s)
		}
	}
	return r.runPhase(phase, batch, dt)
}

func (r *Runner) runPhase(phase Phase, systems []System, dt time.Duration) error {
	var parallel []System
	for _, s := range systems {
		if c, ok := s.(Concurrent); ok && c.Concurrent() {
			parallel = append(parallel, s)
			continue
		}
		if err := s.Update(dt); err != nil {
			return fmt.Errorf("%s phase: %w", phase, err)
		}
	}
	if len(parallel) == 0 {
		return nil
	}

	var g errgroup.Group
	for _, s := range parallel {
		g.Go(func() error { return s.Update(dt) })
	}
	if err := g.Wait(); err != nil {
		r.log.Error("concurrent system failed", zap.Stringer("phase", phase), zap.Error(err))
		return fmt.Errorf("%s phase: %w", phase, err)
	}
	return nil
}

func (r *Runner) ensureSorted() {
	if !r.sorted {
		sort.SliceStable(r.systems, func(i, j int) bool {
			return r.systems[i].Phase() < r.systems[j].Phase()
		})
		r.sorted = true
	}
}
