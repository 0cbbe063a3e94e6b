// Package main provides the entry point for the worker service.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/thebtf/dailyscore/internal/config"
	"github.com/thebtf/dailyscore/internal/maintenance"
	"github.com/thebtf/dailyscore/internal/setup"
	"github.com/thebtf/dailyscore/internal/worker"
	"github.com/thebtf/dailyscore/internal/worker/sse"
)

var Version = "dev"

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	if err := run(); err != nil {
		log.Fatal().Err(err).Msg("Worker failed")
	}
	log.Info().Msg("Worker shutdown complete")
}

func run() error {
	log.Info().Str("version", Version).Msg("Starting dailyscore worker")

	if err := config.EnsureAll(); err != nil {
		log.Warn().Err(err).Msg("Could not create default settings")
	}
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load settings: %w", err)
	}
	config.Set(cfg)

	store, err := setup.OpenStore(cfg)
	if err != nil {
		return fmt.Errorf("open %s database: %w", cfg.DBDriver, err)
	}
	defer store.Close()

	cls, closeCache := setup.Classifier(cfg, log.Logger)
	defer closeCache()

	events := sse.NewBroadcaster()
	trackers, err := setup.NewTrackers(store, cls, worker.Publisher(events), cfg, log.Logger)
	if err != nil {
		return err
	}

	svc, err := worker.NewService(worker.Options{
		Version:    Version,
		Config:     cfg,
		Store:      store,
		Users:      trackers.Users,
		Guests:     trackers.Guests,
		Classifier: cls,
		Events:     events,
	})
	if err != nil {
		return err
	}
	if err := svc.Start(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	maint := maintenance.NewService(store, trackers.Guests, cfg, log.Logger)
	go maint.Start(ctx)

	// Timeout and gap policy edits apply without a restart.
	go func() {
		err := config.Watch(ctx, config.SettingsPath(), func(next *config.Config) {
			cls.SetTimeout(next.ClassifierTimeout())
			sc, err := setup.ScoringConfig(next)
			if err != nil {
				log.Warn().Err(err).Msg("Ignoring scoring settings")
				return
			}
			trackers.Engine.UpdateConfig(sc)
		})
		if err != nil {
			log.Warn().Err(err).Msg("Settings watcher stopped")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down")
	maint.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return svc.Shutdown(shutdownCtx)
}
