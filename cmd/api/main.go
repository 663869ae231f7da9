package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"mailledger/internal/app"
	"mailledger/internal/shared/config"
	"mailledger/internal/shared/logger"
	"mailledger/internal/shared/telemetry"
)

const shutdownTimeout = 30 * time.Second

func main() {
	log := logger.New()
	if err := run(); err != nil {
		log.Fatal().Err(err).Msg("api exited")
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log := logger.NewWithOptions(os.Stderr, logger.Options{Level: cfg.Log.Level, Format: cfg.Log.Format}).
		With().Str("service", "api").Logger()

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

	srv := NewServer(cfg.Server.Host+":"+cfg.Server.Port, SetupRoutes(deps, cfg, log))
	return Serve(ctx, srv, log, shutdownTimeout)
}
