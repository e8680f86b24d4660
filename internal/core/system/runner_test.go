package system

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type recorder struct {
	mu  sync.Mutex
	log []string
}

func (r *recorder) add(s string) {
	r.mu.Lock()
	r.log = append(r.log, s)
	r.mu.Unlock()
}

type fakeSystem struct {
	name       string
	phase      Phase
	concurrent bool
	err        error
	rec        *recorder
}

func (s *fakeSystem) Phase() Phase     { return s.phase }
func (s *fakeSystem) Concurrent() bool { return s.concurrent }

func (s *fakeSystem) Update(time.Duration) error {
	s.rec.add(s.name)
	return s.err
}

func TestRunner_PhaseOrder(t *testing.T) {
	rec := &recorder{}
	r := NewRunner(zap.NewNop())
	r.Register(&fakeSystem{name: "cleanup", phase: PhaseCleanup, rec: rec})
	r.Register(&fakeSystem{name: "update", phase: PhaseUpdate, rec: rec})
	r.Register(&fakeSystem{name: "spawn-a", phase: PhaseSpawn, rec: rec})
	r.Register(&fakeSystem{name: "audit", phase: PhaseAudit, rec: rec})
	r.Register(&fakeSystem{name: "spawn-b", phase: PhaseSpawn, rec: rec})

	require.NoError(t, r.Tick(time.Millisecond))
	assert.Equal(t, []string{"spawn-a", "spawn-b", "update", "audit", "cleanup"}, rec.log)
	assert.Equal(t, uint64(1), r.Ticks())
}

func TestRunner_SequentialBeforeConcurrent(t *testing.T) {
	rec := &recorder{}
	r := NewRunner(nil)
	for _, name := range []string{"p1", "p2", "p3"} {
		r.Register(&fakeSystem{name: name, phase: PhaseSpawn, concurrent: true, rec: rec})
	}
	r.Register(&fakeSystem{name: "seq", phase: PhaseSpawn, rec: rec})
	r.Register(&fakeSystem{name: "after", phase: PhaseCleanup, rec: rec})

	require.NoError(t, r.Tick(time.Millisecond))
	require.Len(t, rec.log, 5)
	assert.Equal(t, "seq", rec.log[0])
	assert.ElementsMatch(t, []string{"p1", "p2", "p3"}, rec.log[1:4])
	assert.Equal(t, "after", rec.log[4])
}

func TestRunner_StopsAtFailingPhase(t *testing.T) {
	boom := errors.New("boom")
	rec := &recorder{}
	r := NewRunner(zap.NewNop())
	r.Register(&fakeSystem{name: "ok", phase: PhaseSpawn, concurrent: true, rec: rec})
	r.Register(&fakeSystem{name: "bad", phase: PhaseSpawn, concurrent: true, err: boom, rec: rec})
	r.Register(&fakeSystem{name: "never", phase: PhaseCleanup, rec: rec})

	err := r.Tick(time.Millisecond)
	require.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "spawn phase")
	assert.NotContains(t, rec.log, "never")
	assert.Equal(t, uint64(0), r.Ticks())
}

func TestRunner_TickPhase(t *testing.T) {
	rec := &recorder{}
	r := NewRunner(zap.NewNop())
	r.Register(&fakeSystem{name: "spawn", phase: PhaseSpawn, rec: rec})
	r.Register(&fakeSystem{name: "cleanup", phase: PhaseCleanup, rec: rec})

	require.NoError(t, r.TickPhase(PhaseCleanup, time.Millisecond))
	assert.Equal(t, []string{"cleanup"}, rec.log)
	assert.Equal(t, uint64(0), r.Ticks())
}

func TestPhase_String(t *testing.T) {
	assert.Equal(t, "spawn", PhaseSpawn.String())
	assert.Equal(t, "audit", PhaseAudit.String())
	assert.Equal(t, "cleanup", PhaseCleanup.String())
	assert.Equal(t, "unknown", Phase(42).String())
}
