package data

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// WorkloadEntry describes one spawn/despawn workload.
type WorkloadEntry struct {
	Name          string `yaml:"name"`
	Spawners      int    `yaml:"spawners"`       // concurrent spawner systems
	PerTick       int    `yaml:"per_tick"`       // entities each spawner creates per tick
	BatchSize     int    `yaml:"batch_size"`     // 0 or 1 = one Alloc per entity, else AllocMany chunks
	LifetimeTicks int    `yaml:"lifetime_ticks"` // ticks before an entity is despawned
	DoubleDespawn bool   `yaml:"double_despawn"` // queue every expired entity twice
	Ticks         int    `yaml:"ticks"`          // 0 = run until interrupted
	Note          string `yaml:"note"`
}

func (e *WorkloadEntry) validate() error {
	switch {
	case e.Name == "":
		return fmt.Errorf("workload without name")
	case e.Spawners <= 0:
		return fmt.Errorf("workload %s: spawners must be positive", e.Name)
	case e.PerTick < 0:
		return fmt.Errorf("workload %s: per_tick must not be negative", e.Name)
	case e.LifetimeTicks <= 0:
		return fmt.Errorf("workload %s: lifetime_ticks must be positive", e.Name)
	case e.Ticks < 0:
		return fmt.Errorf("workload %s: ticks must not be negative", e.Name)
	}
	return nil
}

// WorkloadTable provides lookup of workloads by name.
type WorkloadTable struct {
	workloads map[string]*WorkloadEntry
}

// LoadWorkloadTable loads workloads.yaml.
func LoadWorkloadTable(path string) (*WorkloadTable, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read workload list: %w", err)
	}
	return ParseWorkloadTable(raw)
}

func ParseWorkloadTable(raw []byte) (*WorkloadTable, error) {
	var entries []WorkloadEntry
	if err := yaml.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("parse workload list: %w", err)
	}
	t := &WorkloadTable{
		workloads: make(map[string]*WorkloadEntry, len(entries)),
	}
	for i := range entries {
		e := &entries[i]
		if err := e.validate(); err != nil {
			return nil, err
		}
		if _, dup := t.workloads[e.Name]; dup {
			return nil, fmt.Errorf("duplicate workload %s", e.Name)
		}
		t.workloads[e.Name] = e
	}
	return t, nil
}

// Get returns the named workload, or nil if none.
func (t *WorkloadTable) Get(name string) *WorkloadEntry {
	return t.workloads[name]
}

// Names returns all workload names, sorted.
func (t *WorkloadTable) Names() []string {
	names := make([]string, 0, len(t.workloads))
	for n := range t.workloads {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Count returns the total number of workloads loaded.
func (t *WorkloadTable) Count() int {
	return len(t.workloads)
}
