package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"mailledger/internal/app"
	"mailledger/internal/scheduler"
	"mailledger/internal/shared/config"
	"mailledger/internal/shared/logger"
	"mailledger/internal/shared/telemetry"
)

const shutdownTimeout = 30 * time.Second

func main() {
	once := flag.Bool("once", false, "Run a single ingestion pass and exit")
	flag.Parse()

	if err := run(*once); err != nil {
		log := logger.New()
		log.Fatal().Err(err).Msg("worker exited")
	}
}

func run(once bool) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log := logger.NewWithOptions(os.Stderr, logger.Options{Level: cfg.Log.Level, Format: cfg.Log.Format}).
		With().Str("service", "worker").Logger()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry, err := telemetry.Init(ctx, cfg.Telemetry, log)
	if err != nil {
		return err
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(ctx); err != nil {
			log.Error().Err(err).Msg("telemetry shutdown failed")
		}
	}()

	deps, err := app.NewDependencies(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer deps.Close()

	job := scheduler.NewIngestJob(deps.IngestSvc, cfg.Scheduler.Mode).WithLogger(log)

	if once {
		ctx, cancel := context.WithTimeout(ctx, cfg.Scheduler.RunTimeout)
		defer cancel()
		return job.Execute(logger.WithContext(ctx, log))
	}

	if !cfg.Scheduler.Enabled {
		return fmt.Errorf("scheduler is disabled (SCHEDULER_ENABLED=false); use -once for a single run")
	}
	return schedule(ctx, cfg.Scheduler, job, log)
}

// schedule runs job on the configured specs until ctx is cancelled.
func schedule(ctx context.Context, cfg config.SchedulerConfig, job scheduler.Job, log zerolog.Logger) error {
	sched, err := scheduler.NewScheduler(scheduler.Config{
		Specs:        cfg.Specs,
		RunOnStartup: cfg.RunOnStartup,
		RunTimeout:   cfg.RunTimeout,
	}, job, log)
	if err != nil {
		return err
	}

	sched.Start()
	log.Info().Str("mode", cfg.Mode).Msg("worker started")

	<-ctx.Done()
	sched.Shutdown(shutdownTimeout)
	return nil
}
