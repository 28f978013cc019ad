package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/parcel-intake-backend/api/routes"
	"github.com/angelmondragon/parcel-intake-backend/internal/cron"
	"github.com/angelmondragon/parcel-intake-backend/internal/manifests"
	"github.com/angelmondragon/parcel-intake-backend/internal/propagation"
	"github.com/angelmondragon/parcel-intake-backend/internal/scans"
	"github.com/angelmondragon/parcel-intake-backend/internal/sessions"
	"github.com/angelmondragon/parcel-intake-backend/internal/stats"
	"github.com/angelmondragon/parcel-intake-backend/pkg/config"
	"github.com/angelmondragon/parcel-intake-backend/pkg/db"
	"github.com/angelmondragon/parcel-intake-backend/pkg/env"
	"github.com/angelmondragon/parcel-intake-backend/pkg/instance"
	"github.com/angelmondragon/parcel-intake-backend/pkg/logger"
	"github.com/angelmondragon/parcel-intake-backend/pkg/metrics"
	"github.com/angelmondragon/parcel-intake-backend/pkg/migrate"
	"github.com/angelmondragon/parcel-intake-backend/pkg/redis"
)

const dispatcherLockTTL = 30 * time.Second

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	cfg.Service.Kind = "api"

	logg = logger.New(logger.Options{
		ServiceName: "api",
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

	scanMetrics := metrics.NewScanMetrics(prometheus.DefaultRegisterer)
	propagationMetrics := metrics.NewPropagationMetrics(prometheus.DefaultRegisterer)

	manifestRepo := manifests.NewRepository(dbClient.DB())
	manifestSvc, err := manifests.NewService(manifestRepo, dbClient, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create manifest service", err)
		os.Exit(1)
	}
	matcher, err := manifests.NewMatcher(manifestRepo)
	if err != nil {
		logg.Error(context.Background(), "failed to create parcel matcher", err)
		os.Exit(1)
	}

	sessionSvc, err := sessions.NewService(sessions.NewRepository(dbClient.DB()), dbClient, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create session service", err)
		os.Exit(1)
	}

	statsSvc, err := stats.NewService(stats.NewRepository(dbClient.DB()), cfg.Stats.MultiParcelThreshold)
	if err != nil {
		logg.Error(context.Background(), "failed to create stats service", err)
		os.Exit(1)
	}

	taskRepo := propagation.NewRepository(dbClient.DB())
	scheduler, err := propagation.NewScheduler(taskRepo, logg, propagationMetrics)
	if err != nil {
		logg.Error(context.Background(), "failed to create propagation scheduler", err)
		os.Exit(1)
	}
	propagator, err := propagation.NewConfiguredPropagator(cfg.Logistics, logg, propagationMetrics)
	if err != nil {
		logg.Error(context.Background(), "failed to create propagator", err)
		os.Exit(1)
	}
	if !propagator.Enabled() {
		logg.Warn(context.Background(), "logistics api key not set, status pushes are logged only")
	}

	reconciler, err := scans.NewReconciler(scans.ReconcilerParams{
		Logger:        logg,
		Matcher:       matcher,
		Parcels:       manifestRepo,
		Sessions:      sessionSvc,
		Propagator:    propagator,
		Scheduler:     scheduler,
		Audit:         scans.NewAuditRecorder(logg, scanMetrics, redisClient),
		StageTwoDelay: propagation.UniformDelay(cfg.Propagation.StageTwoMinDelay, cfg.Propagation.StageTwoMaxDelay),
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create scan reconciler", err)
		os.Exit(1)
	}

	port := env.First(cfg.App.Port, "PORT")
	addr := ":" + port
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"addr":        addr,
		"serviceKind": cfg.Service.Kind,
		"instance":    instance.GetID(),
	})

	if cfg.Propagation.InlineDispatcher {
		lock, err := cron.NewRedisLock(redisClient, redisClient.LockKey(fmt.Sprintf("propagation-dispatcher:%s", cfg.App.Env)), instance.GetID(), dispatcherLockTTL)
		if err != nil {
			logg.Error(ctx, "failed to create dispatcher lock", err)
			os.Exit(1)
		}
		dispatcher, err := propagation.NewDispatcher(propagation.DispatcherParams{
			Logger:        logg,
			Repository:    taskRepo,
			DB:            dbClient,
			Propagator:    propagator,
			Lock:          lock,
			Metrics:       propagationMetrics,
			BatchSize:     cfg.Propagation.BatchSize,
			PollInterval:  cfg.Propagation.PollInterval,
			FollowUpDelay: cfg.Propagation.StageThreeDelay,
		})
		if err != nil {
			logg.Error(ctx, "failed to create propagation dispatcher", err)
			os.Exit(1)
		}
		go func() {
			if err := dispatcher.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logg.Error(ctx, "inline propagation dispatcher stopped", err)
			}
		}()
		logg.Info(ctx, "inline propagation dispatcher started")
	}

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(routes.RouterParams{
			Config:    cfg,
			Logger:    logg,
			DB:        dbClient,
			Redis:     redisClient,
			Manifests: manifestSvc,
			Matcher:   matcher,
			Scans:     reconciler,
			Sessions:  sessionSvc,
			Stats:     statsSvc,
			Scheduler: scheduler,
			Metrics:   promhttp.Handler(),
		}),
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(ctx, "api server shutdown failed", err)
		}
	}()

	logg.Info(ctx, "starting api server")

	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "api server shutting down gracefully")
}
