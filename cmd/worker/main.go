// Package main provides the entry point for the curation worker service.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/thebtf/xfeed/internal/config"
	"github.com/thebtf/xfeed/internal/db"
	"github.com/thebtf/xfeed/internal/worker"
)

var Version = "dev"

func main() {
	configPath := flag.String("config", config.Path(), "path to config.yaml")
	flag.Parse()

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", *configPath).Msg("Failed to load config")
	}
	zerolog.SetGlobalLevel(cfg.Level())
	config.Set(cfg)

	log.Info().
		Str("version", Version).
		Str("storage", cfg.Storage.Driver).
		Msg("Starting xfeed worker")

	if cfg.Storage.Driver == config.DriverSQLite {
		if err := config.EnsureDataDir(); err != nil {
			log.Fatal().Err(err).Msg("Failed to create data directory")
		}
	}
	store, err := db.Open(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open reputation store")
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Error().Err(err).Msg("Store close error")
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	svc := worker.NewService(Version, cfg, store, log.Logger, worker.WithAuthToken(os.Getenv("XFEED_AUTH_TOKEN")))

	watcher, err := config.NewWatcher(*configPath, cfg, log.Logger)
	if err != nil {
		log.Warn().Err(err).Msg("Config hot reload disabled")
	} else {
		watcher.Subscribe(svc.SetConfig)
		go watcher.Run(ctx)
		defer watcher.Close()
	}

	if err := svc.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("Failed to start service")
	}

	<-ctx.Done()
	log.Info().Msg("Received shutdown signal")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), worker.ShutdownTimeout)
	defer cancel()

	if err := svc.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Shutdown error")
	}

	log.Info().Msg("Worker shutdown complete")
}
