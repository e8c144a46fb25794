// Package main is the entry point for the claims engine daemon. It wires
// storage, notifications and the war activation scheduler, then runs until
// interrupted.
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"claims-engine/internal/config"
	"claims-engine/internal/notify"
	"claims-engine/internal/pkg/clock"
	"claims-engine/internal/pkg/db"
	"claims-engine/internal/pkg/lock"
	"claims-engine/internal/repository"
	"claims-engine/internal/scheduler"
	"claims-engine/internal/service"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	cfg, err := config.Load("config")
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	setupLogging(cfg.Log)
	log.Info().Str("storage", cfg.Storage.Driver).Msg("Configuration loaded successfully")

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	repo, closeRepo, err := openRepository(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open storage")
	}
	defer closeRepo()

	dispatcher := notify.NewDispatcher(buildSink(cfg.Notify), cfg.Notify.QueueSize)
	dispatcher.Start(context.WithoutCancel(ctx))
	defer func() {
		drainCtx, cancelDrain := context.WithTimeout(context.Background(), cfg.Notify.DrainTimeout)
		defer cancelDrain()
		dispatcher.Close(drainCtx)
		log.Info().
			Int64("dropped", dispatcher.Dropped()).
			Int64("failed", dispatcher.Failed()).
			Msg("Notification dispatcher stopped")
	}()

	curve, err := cfg.BenefitCurve()
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid benefit tiers")
	}
	cost, err := cfg.War.Cost()
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid war.declaration_cost")
	}

	clk := clock.System{}
	engine := service.New(service.Deps{
		Repo:   repo,
		Locks:  lock.NewEntityLock(),
		Clock:  clk,
		Notify: dispatcher,
	}, service.Options{
		Curve:           curve,
		NoticePeriod:    cfg.War.NoticePeriod,
		DeclarationCost: cost,
	})

	sched := scheduler.New(engine.Wars, clk, cfg.Scheduler.PollInterval)
	engine.Wars.SetScheduler(sched)
	pending, err := engine.Wars.PendingActivations(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load declared wars")
	}
	for id, at := range pending {
		sched.ScheduleAt(id, at)
	}

	log.Info().
		Int("max_level", curve.MaxLevel()).
		Dur("notice_period", engine.Wars.NoticePeriod()).
		Int("pending_activations", len(pending)).
		Msg("Claims engine is running")

	if err := sched.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Error().Err(err).Msg("Scheduler stopped unexpectedly")
	}
	log.Info().Msg("Claims engine stopped gracefully")
}

func setupLogging(cfg config.LogConfig) {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		log.Warn().Str("level", cfg.Level).Msg("Unknown log level, using info")
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	if !cfg.Console {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	}
}

func openRepository(ctx context.Context, cfg *config.Config) (repository.Repository, func(), error) {
	if cfg.Storage.Driver == config.StorageMemory {
		log.Warn().Msg("Using in-memory storage; state is lost on exit")
		return repository.NewMemory(), func() {}, nil
	}

	pool, err := db.NewPool(ctx, &cfg.Database)
	if err != nil {
		return nil, nil, err
	}
	if err := repository.Migrate(ctx, pool.Pool); err != nil {
		pool.Close()
		return nil, nil, err
	}
	if err := pool.HealthCheck(ctx); err != nil {
		pool.Close()
		return nil, nil, err
	}
	return repository.NewPostgres(pool.Pool), pool.Close, nil
}

func buildSink(cfg config.NotifyConfig) notify.Sink {
	sinks := notify.Multi{notify.LogSink{}}
	if cfg.Telegram.Token != "" {
		tg, err := notify.NewTelegramSink(cfg.Telegram)
		if err != nil {
			log.Error().Err(err).Msg("Telegram announcements disabled")
		} else {
			sinks = append(sinks, tg)
			log.Info().Int64("chat_id", cfg.Telegram.ChatID).Msg("Telegram announcements enabled")
		}
	}
	return sinks
}
