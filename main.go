package main

import (
	"errors"
	"flag"
	"log/slog"
	"os"
	"time"

	"github.com/pthm-cable/slick/config"
	"github.com/pthm-cable/slick/model"
	"github.com/pthm-cable/slick/telemetry"
)

func main() {
	// CLI flags
	configPath := flag.String("config", "", "Path to config.yaml (empty = use defaults)")
	outputDir := flag.String("output-dir", "", "Output directory for CSV logs and config snapshot (overrides config)")
	seed := flag.Int64("seed", 0, "RNG seed (0 = use config; config seed 0 = time-based)")
	uncertain := flag.Bool("uncertain", false, "Run with uncertainty elements (overrides config when set)")
	maxSteps := flag.Int("max-steps", 0, "Stop after N steps (0 = run the configured duration)")
	verbose := flag.Bool("verbose", false, "Log every step")

	flag.Parse()

	// Initialize config before anything else
	if err := config.Init(*configPath); err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	cfg := config.Cfg()

	// CLI overrides
	if *seed != 0 {
		cfg.Run.Seed = *seed
	}
	if cfg.Run.Seed == 0 {
		cfg.Run.Seed = time.Now().UnixNano()
	}
	if *uncertain {
		cfg.Run.Uncertain = true
	}
	if *outputDir != "" {
		cfg.Output.Dir = *outputDir
	}

	// Set up slog (JSON to stdout for structured logging)
	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	m, err := model.BuildFromConfig(cfg, logger)
	if err != nil {
		slog.Error("failed to build model", "error", err)
		os.Exit(1)
	}
	defer m.Close()

	om, err := telemetry.NewOutputManager(cfg.Output.Dir)
	if err != nil {
		slog.Error("failed to set up output", "error", err)
		os.Exit(1)
	}
	if om != nil {
		om.TrajectoryEvery = cfg.Output.TrajectoryEvery
		if err := om.WriteConfig(cfg); err != nil {
			slog.Error("failed to write config snapshot", "error", err)
			os.Exit(1)
		}
		m.AddOutputter(om)
	}

	slog.Info("starting drift run",
		"config", *configPath,
		"seed", cfg.Run.Seed,
		"uncertain", cfg.Run.Uncertain,
		"output_dir", cfg.Output.Dir,
		"max_steps", *maxSteps,
	)

	if err := m.Rewind(); err != nil {
		slog.Error("failed to start run", "error", err)
		os.Exit(1)
	}
	for {
		err := m.Step()
		if errors.Is(err, model.ErrRunComplete) {
			break
		}
		if err != nil {
			slog.Error("run aborted", "step", m.StepCount(), "error", err)
			os.Exit(1)
		}
		if *maxSteps > 0 && m.StepCount() >= *maxSteps {
			slog.Info("max steps reached", "step", m.StepCount())
			break
		}
	}

	for _, s := range m.Sets() {
		slog.Info("final set state", "stats", telemetry.ComputeSetStats(m.StepCount(), m.Time(), s))
	}
	slog.Info("run finished", "steps", m.StepCount(), "end", m.Time())
}
