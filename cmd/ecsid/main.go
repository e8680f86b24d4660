package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/l1jgo/ecsid/internal/config"
	"github.com/l1jgo/ecsid/internal/core/ecs"
	"github.com/l1jgo/ecsid/internal/core/event"
	coresys "github.com/l1jgo/ecsid/internal/core/system"
	"github.com/l1jgo/ecsid/internal/data"
	"github.com/l1jgo/ecsid/internal/scripting"
	"github.com/l1jgo/ecsid/internal/system"
	"github.com/pkg/profile"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

// ── Startup display helpers ────────────────────────────────────────

func printBanner(mode string) {
	fmt.Println()
	fmt.Println("\033[36;1m  ┌───────────────────────────────────────────┐\033[0m")
	fmt.Println("\033[36;1m  │\033[0m               ecsid  v0.1.0               \033[36;1m│\033[0m")
	fmt.Println("\033[36;1m  │\033[0m     generational entity id allocator      \033[36;1m│\033[0m")
	fmt.Println("\033[36;1m  └───────────────────────────────────────────┘\033[0m")
	fmt.Println()
	fmt.Printf("  \033[1mmode:\033[0m %s\n\n", mode)
}

func printSection(title string) {
	lineLen := 46 - len(title) - 1
	if lineLen < 3 {
		lineLen = 3
	}
	fmt.Printf("  \033[33m── %s %s\033[0m\n", title, strings.Repeat("─", lineLen))
}

func printStat(label string, count int) {
	numStr := fmt.Sprintf("%d", count)
	dotsLen := 42 - len(label) - len(numStr)
	if dotsLen < 3 {
		dotsLen = 3
	}
	fmt.Printf("  %s \033[90m%s\033[0m \033[32m%s\033[0m\n", label, strings.Repeat("·", dotsLen), numStr)
}

func printOK(msg string) {
	fmt.Printf("  \033[32m✓\033[0m %s\n", msg)
}

func printReady(msg string) {
	fmt.Printf("  \033[32m▶\033[0m %s\n", msg)
}

func printStats(st ecs.Stats) {
	printStat("total indices", int(st.TotalIndices))
	printStat("live", st.Live)
	printStat("free", st.Free)
	printStat("retired", st.Retired)
	printStat("meta capacity", st.MetaCapacity)
	printStat("frees", int(st.Frees))
	printStat("rejected frees", int(st.Rejected))
}

// ── Main logic ─────────────────────────────────────────────────────

func run() error {
	cfgPath := "config/ecsid.toml"
	if p := os.Getenv("ECSID_CONFIG"); p != "" {
		cfgPath = p
	}
	flag.StringVar(&cfgPath, "config", cfgPath, "path to the TOML config")
	script := flag.String("script", "", "run a Lua scenario instead of a workload")
	workload := flag.String("workload", "", "workload name, overrides [workload].name")
	ticks := flag.Int("ticks", -1, "tick count, overrides the workload's ticks (0 = until interrupted)")
	flag.Parse()

	// 1. Load config
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if *script != "" {
		cfg.Workload.Script = *script
	}
	if *workload != "" {
		cfg.Workload.Name = *workload
	}

	// 2. Init logger
	log, err := newLogger(cfg.Logging)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer log.Sync()

	if stop := startProfile(cfg.Profile); stop != nil {
		defer stop()
	}

	mode := "workload " + cfg.Workload.Name
	if cfg.Workload.Script != "" {
		mode = "script " + cfg.Workload.Script
	}
	printBanner(mode)

	// 3. Build the world
	printSection("allocator")
	world := ecs.NewWorld(allocatorOptions(cfg.Allocator, log)...)
	defer world.Close()

	alloc, release := world.EntityAllocatorMut()
	err = alloc.Reserve(cfg.World.InitialReserve)
	release()
	if err != nil {
		return fmt.Errorf("reserve %d entities: %w", cfg.World.InitialReserve, err)
	}
	printOK(fmt.Sprintf("reserved %d entities", cfg.World.InitialReserve))
	fmt.Println()

	if cfg.Workload.Script != "" {
		return runScript(world, cfg.Workload.Script, log)
	}
	return runWorkload(world, cfg, *ticks, log)
}

func allocatorOptions(cfg config.AllocatorConfig, log *zap.Logger) []ecs.Option {
	opts := []ecs.Option{
		ecs.WithLogger(log),
		ecs.WithMetaChunkBits(cfg.MetaChunkBits),
	}
	if cfg.MaxMetaChunks > 0 {
		opts = append(opts, ecs.WithMaxMetaChunks(cfg.MaxMetaChunks))
	}
	if cfg.MaxIndex > 0 {
		opts = append(opts, ecs.WithMaxIndex(cfg.MaxIndex))
	}
	if cfg.MemoryBudgetBytes > 0 {
		opts = append(opts, ecs.WithMemoryBudget(ecs.NewByteBudget(cfg.MemoryBudgetBytes)))
	}
	return opts
}

func runScript(world *ecs.World, path string, log *zap.Logger) error {
	printSection("script")
	engine := scripting.NewEngine(world, log)
	defer engine.Close()

	start := time.Now()
	if err := engine.RunFile(path); err != nil {
		return err
	}
	if engine.HasFunction("scenario") {
		if err := engine.Run("scenario"); err != nil {
			return err
		}
	}
	printOK(fmt.Sprintf("%s finished in %s", path, time.Since(start).Round(time.Millisecond)))
	fmt.Println()

	printSection("stats")
	alloc, release := world.EntityAllocatorMut()
	defer release()
	printStats(alloc.Stats())
	return nil
}

func runWorkload(world *ecs.World, cfg *config.Config, tickOverride int, log *zap.Logger) error {
	// 4. Load workloads
	printSection("workloads")
	table, err := data.LoadWorkloadTable(cfg.Workload.Table)
	if err != nil {
		return fmt.Errorf("load workloads: %w", err)
	}
	printStat("workloads", table.Count())
	entry := table.Get(cfg.Workload.Name)
	if entry == nil {
		return fmt.Errorf("unknown workload %q (have %s)", cfg.Workload.Name, strings.Join(table.Names(), ", "))
	}
	maxTicks := entry.Ticks
	if tickOverride >= 0 {
		maxTicks = tickOverride
	}
	fmt.Println()

	// 5. Create systems and register with runner
	bus := event.NewBus()
	runner := coresys.NewRunner(log)
	wl := system.NewWorkload(world, bus, entry, log)
	wl.Register(runner)

	var despawned int
	event.Subscribe(bus, func(ev event.EntitiesDespawned) {
		despawned += len(ev.Entities)
	})

	// 6. Start tick loop
	shutdownCh := make(chan os.Signal, 1)
	signal.Notify(shutdownCh, syscall.SIGINT, syscall.SIGTERM)

	ticker := time.NewTicker(cfg.World.TickRate)
	defer ticker.Stop()

	printSection("running")
	printReady(fmt.Sprintf("%d spawners, %d entities per tick each", entry.Spawners, entry.PerTick))
	printReady(fmt.Sprintf("tick loop started (tick: %s)", cfg.World.TickRate))
	fmt.Println()

	start := time.Now()
	var runErr error
loop:
	for maxTicks == 0 || runner.Ticks() < uint64(maxTicks) {
		select {
		case <-ticker.C:
			if err := runner.Tick(cfg.World.TickRate); err != nil {
				runErr = err
				break loop
			}
		case sig := <-shutdownCh:
			log.Info("shutdown signal received", zap.String("signal", sig.String()))
			break loop
		}
	}

	log.Info("workload stopped",
		zap.String("workload", entry.Name),
		zap.Uint64("ticks", runner.Ticks()),
		zap.Duration("elapsed", time.Since(start)))

	printSection("stats")
	printStat("ticks", int(runner.Ticks()))
	printStat("spawned", int(wl.Spawned()))
	printStat("freed", wl.Cleanup.Freed())
	printStat("despawn events", despawned)
	printStat("rejected despawns", wl.Cleanup.Rejected())
	printStat("audited handles", int(wl.Audit.Checked()))
	printStat("audit violations", int(wl.Audit.Violations()))
	alloc, release := world.EntityAllocatorMut()
	printStats(alloc.Stats())
	release()

	if runErr != nil {
		return fmt.Errorf("workload %s: %w", entry.Name, runErr)
	}
	return nil
}

func startProfile(cfg config.ProfileConfig) func() {
	var mode func(*profile.Profile)
	switch cfg.Mode {
	case "cpu":
		mode = profile.CPUProfile
	case "mem":
		mode = profile.MemProfile
	case "allocs":
		mode = profile.MemProfileAllocs
	case "mutex":
		mode = profile.MutexProfile
	case "block":
		mode = profile.BlockProfile
	default:
		return nil
	}
	path := cfg.Path
	if path == "" {
		path = "."
	}
	return profile.Start(mode, profile.ProfilePath(path), profile.NoShutdownHook).Stop
}

func newLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	var level zapcore.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = zapcore.InfoLevel
	}

	var zapCfg zap.Config
	if cfg.Format == "json" {
		zapCfg = zap.NewProductionConfig()
	} else {
		zapCfg = zap.NewDevelopmentConfig()
		zapCfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		zapCfg.EncoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05")
		zapCfg.EncoderConfig.ConsoleSeparator = "  "
		zapCfg.DisableCaller = true
		zapCfg.DisableStacktrace = true
	}
	zapCfg.Level = zap.NewAtomicLevelAt(level)

	return zapCfg.Build()
}
