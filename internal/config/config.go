package config

import (
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

type Config struct {
	Allocator AllocatorConfig `toml:"allocator"`
	World     WorldConfig     `toml:"world"`
	Workload  WorkloadConfig  `toml:"workload"`
	Logging   LoggingConfig   `toml:"logging"`
	Profile   ProfileConfig   `toml:"profile"`
}

type AllocatorConfig struct {
	MetaChunkBits     uint   `toml:"meta_chunk_bits"`     // slots per meta chunk = 1 << bits
	MaxMetaChunks     int    `toml:"max_meta_chunks"`     // 0 = whole index domain
	MaxIndex          uint32 `toml:"max_index"`           // 0 = full uint32 domain
	MemoryBudgetBytes int64  `toml:"memory_budget_bytes"` // 0 = unlimited
}

type WorldConfig struct {
	TickRate       time.Duration `toml:"tick_rate"`
	InitialReserve int           `toml:"initial_reserve"`
}

type WorkloadConfig struct {
	Table  string `toml:"table"`  // path to workloads.yaml
	Name   string `toml:"name"`   // workload to run from the table
	Script string `toml:"script"` // optional Lua scenario; overrides Name
}

type LoggingConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"` // "json" or "console"
}

type ProfileConfig struct {
	Mode string `toml:"mode"` // "", "cpu", "mem", "allocs", "mutex", "block"
	Path string `toml:"path"`
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	return Parse(data, path)
}

// Parse decodes TOML over the defaults; name is only used in errors.
func Parse(data []byte, name string) (*Config, error) {
	cfg := Defaults()
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", name, err)
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", name, err)
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Allocator.MetaChunkBits > 24 {
		return fmt.Errorf("allocator.meta_chunk_bits %d above 24", c.Allocator.MetaChunkBits)
	}
	if c.World.TickRate <= 0 {
		return fmt.Errorf("world.tick_rate must be positive")
	}
	if c.World.InitialReserve < 0 {
		return fmt.Errorf("world.initial_reserve must not be negative")
	}
	return nil
}

func Defaults() *Config {
	return &Config{
		Allocator: AllocatorConfig{
			MetaChunkBits: 10,
		},
		World: WorldConfig{
			TickRate:       50 * time.Millisecond,
			InitialReserve: 1024,
		},
		Workload: WorkloadConfig{
			Table: "data/yaml/workloads.yaml",
			Name:  "steady",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}
