package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/parcel-intake-backend/internal/cron"
	"github.com/angelmondragon/parcel-intake-backend/internal/propagation"
	"github.com/angelmondragon/parcel-intake-backend/pkg/config"
	"github.com/angelmondragon/parcel-intake-backend/pkg/db"
	"github.com/angelmondragon/parcel-intake-backend/pkg/instance"
	"github.com/angelmondragon/parcel-intake-backend/pkg/logger"
	"github.com/angelmondragon/parcel-intake-backend/pkg/metrics"
	"github.com/angelmondragon/parcel-intake-backend/pkg/migrate"
	"github.com/angelmondragon/parcel-intake-backend/pkg/redis"
)

const (
	lockKeyFormat = "propagation-dispatcher:%s"
	lockTTL       = 30 * time.Second
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "propagation-worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	cfg.Service.Kind = "propagation-worker"

	logg = logger.New(logger.Options{
		ServiceName: "propagation-worker",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	propagationMetrics := metrics.NewPropagationMetrics(prometheus.DefaultRegisterer)
	propagator, err := propagation.NewConfiguredPropagator(cfg.Logistics, logg, propagationMetrics)
	if err != nil {
		logg.Error(context.Background(), "failed to create propagator", err)
		os.Exit(1)
	}
	if !propagator.Enabled() {
		logg.Warn(context.Background(), "logistics api key not set, status pushes are logged only")
	}

	lock, err := cron.NewRedisLock(redisClient, redisClient.LockKey(lockName(cfg.App.Env)), instance.GetID(), lockTTL)
	if err != nil {
		logg.Error(context.Background(), "failed to create dispatcher lock", err)
		os.Exit(1)
	}

	dispatcher, err := propagation.NewDispatcher(propagation.DispatcherParams{
		Logger:        logg,
		Repository:    propagation.NewRepository(dbClient.DB()),
		DB:            dbClient,
		Propagator:    propagator,
		Lock:          lock,
		Metrics:       propagationMetrics,
		BatchSize:     cfg.Propagation.BatchSize,
		PollInterval:  cfg.Propagation.PollInterval,
		FollowUpDelay: cfg.Propagation.StageThreeDelay,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create propagation dispatcher", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
		"instance":    instance.GetID(),
	})
	logg.Info(ctx, "starting propagation worker")

	if err := dispatcher.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "propagation worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "propagation worker shutting down gracefully")
}

func lockName(env string) string {
	if env == "" {
		env = "local"
	}
	return fmt.Sprintf(lockKeyFormat, env)
}
