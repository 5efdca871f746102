// Package main provides the fleet simulator binary. With -ticks it runs a
// scenario headless and logs a summary; otherwise it runs the simulation and
// the observer until interrupted.
package main

import (
	"context"
	"flag"
	"log"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/cory-johannsen/fleetsim/internal/config"
	"github.com/cory-johannsen/fleetsim/internal/observability"
	"github.com/cory-johannsen/fleetsim/internal/observer"
	"github.com/cory-johannsen/fleetsim/internal/scenario"
	"github.com/cory-johannsen/fleetsim/internal/server"
	"github.com/cory-johannsen/fleetsim/internal/sim/rng"
	"github.com/cory-johannsen/fleetsim/internal/sim/world"
	"github.com/cory-johannsen/fleetsim/internal/simulation"
	"github.com/cory-johannsen/fleetsim/internal/trace"
)

func main() {
	start := time.Now()

	configPath := flag.String("config", "configs/dev.yaml", "path to configuration file")
	scenarioPath := flag.String("scenario", "content/scenarios/default.yaml", "path to scenario YAML file")
	ticks := flag.Uint64("ticks", 0, "run this many ticks headless and exit; 0 runs as a server")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	runID := uuid.New()
	logger, err := observability.NewLogger(cfg.Logging, zap.String("run_id", runID.String()))
	if err != nil {
		log.Fatalf("initializing logger: %v", err)
	}
	defer logger.Sync()

	sc, err := scenario.LoadFromFile(*scenarioPath)
	if err != nil {
		logger.Fatal("loading scenario", zap.String("path", *scenarioPath), zap.Error(err))
	}

	var src rng.Source
	if cfg.Simulation.Seed == 0 {
		src = rng.NewCryptoSource()
	} else {
		src = rng.NewSeededSource(cfg.Simulation.Seed)
	}

	w := world.New(logger.Named("world"), world.Options{VerifyInvariants: cfg.Simulation.VerifyInvariants})
	if err := sc.Populate(w, scenario.DefaultsFrom(cfg), src); err != nil {
		logger.Fatal("populating world", zap.String("scenario", sc.Name), zap.Error(err))
	}
	logger.Info("scenario loaded",
		zap.String("scenario", sc.Name),
		zap.Int("controllers", len(w.Controllers())),
		zap.Int("robots", len(w.Robots())),
		zap.Int("depots", len(w.Depots())),
		zap.Int("factories", len(w.Factories())),
		zap.Uint64("seed", cfg.Simulation.Seed),
	)

	runner, err := simulation.NewRunner(w, simulation.Options{
		DeltaSeconds: cfg.Simulation.DeltaSeconds,
		TickRateHz:   cfg.Simulation.TickRateHz,
		MaxTicks:     cfg.Simulation.MaxTicks,
	}, logger.Named("simulation"))
	if err != nil {
		logger.Fatal("creating runner", zap.Error(err))
	}

	// Fatal exits without running defers, so failure paths close the trace first.
	closeTrace := func() {}
	if cfg.Trace.Enabled {
		tw, err := trace.Create(cfg.Trace.Dir, runID)
		if err != nil {
			logger.Fatal("creating trace", zap.Error(err))
		}
		closeTrace = func() {
			if err := tw.Close(); err != nil {
				logger.Error("closing trace", zap.Error(err))
			}
		}
		defer closeTrace()
		runner.AddRecorder(tw)
		logger.Info("tracing ticks", zap.String("path", tw.Path()))
	}

	if *ticks > 0 {
		if err := runHeadless(runner, *ticks, logger); err != nil {
			closeTrace()
			logger.Fatal("simulation failed", zap.Error(err))
		}
		return
	}

	lifecycle := server.NewLifecycle(logger)
	lifecycle.Add("simulation", runner)
	if cfg.Observer.Enabled {
		lifecycle.Add("observer", observer.NewServer(cfg.Observer.Addr(), runner, logger.Named("observer")))
	}

	logger.Info("fleet simulator initialized",
		zap.Duration("startup", time.Since(start)),
		zap.Bool("observer", cfg.Observer.Enabled),
		zap.String("observer_addr", cfg.Observer.Addr()),
	)

	err = lifecycle.Run(context.Background())
	logSummary(logger, runner.Snapshot(), time.Since(start))
	if err != nil {
		closeTrace()
		logger.Fatal("server error", zap.Error(err))
	}
}

// runHeadless steps the runner n times as fast as possible and logs the
// summary whether or not the run completed.
func runHeadless(r *simulation.Runner, n uint64, logger *zap.Logger) error {
	start := time.Now()
	err := r.RunTicks(n)
	logSummary(logger, r.Snapshot(), time.Since(start))
	return err
}

// logSummary reports what each depot holds, what each factory lost and how
// busy each controller was.
func logSummary(logger *zap.Logger, s world.Snapshot, elapsed time.Duration) {
	logger.Info("simulation finished", zap.Uint64("ticks", s.Tick), zap.Duration("elapsed", elapsed))
	for _, e := range s.Entities {
		switch e.Kind {
		case world.KindDepot.String():
			logger.Info("depot", zap.Uint64("id", uint64(e.ID)), zap.Any("items", e.Items))
		case world.KindFactory.String():
			logger.Info("factory",
				zap.Uint64("id", uint64(e.ID)),
				zap.Any("items", e.Items),
				zap.Int("lost_output_full", e.LostOutputFull),
				zap.Int("lost_missing_input", e.LostMissingInput),
			)
		}
	}
	for _, c := range s.Controllers {
		logger.Info("controller",
			zap.Uint64("id", uint64(c.ID)),
			zap.Int("robots", c.Robots),
			zap.Float64("utilization", c.Utilization),
		)
	}
}
