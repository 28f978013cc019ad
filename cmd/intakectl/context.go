package main

import (
	"context"
	"sync"

	"github.com/joho/godotenv"

	"github.com/angelmondragon/parcel-intake-backend/internal/manifests"
	"github.com/angelmondragon/parcel-intake-backend/internal/propagation"
	"github.com/angelmondragon/parcel-intake-backend/internal/sessions"
	"github.com/angelmondragon/parcel-intake-backend/internal/stats"
	"github.com/angelmondragon/parcel-intake-backend/pkg/config"
	"github.com/angelmondragon/parcel-intake-backend/pkg/db"
	"github.com/angelmondragon/parcel-intake-backend/pkg/logger"
)

type commandContext struct {
	jsonFlag bool

	configOnce sync.Once
	config     *config.Config
	logg       *logger.Logger
	configErr  error

	dbClient *db.Client
	ownsDB   bool
}

// services are built straight on the database, no API round trip.
type services struct {
	manifests manifests.Service
	stats     stats.Service
	tasks     propagation.Scheduler
	sessions  sessions.Service
}

func newCommandContext() *commandContext {
	return &commandContext{}
}

func (c *commandContext) jsonOutput() bool {
	return c.jsonFlag
}

func (c *commandContext) ensureConfig() (*config.Config, *logger.Logger, error) {
	c.configOnce.Do(func() {
		if c.config != nil {
			return
		}
		_ = godotenv.Load()
		cfg, err := config.Load()
		if err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
		c.logg = logger.New(logger.Options{
			ServiceName: "intakectl",
			Level:       logger.ParseLevel(cfg.App.LogLevel),
			WarnStack:   cfg.App.LogWarnStack,
		})
	})
	return c.config, c.logg, c.configErr
}

func (c *commandContext) database(ctx context.Context) (*db.Client, error) {
	if c.dbClient != nil {
		return c.dbClient, nil
	}
	cfg, logg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	client, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		return nil, err
	}
	c.dbClient = client
	c.ownsDB = true
	return client, nil
}

func (c *commandContext) withServices(ctx context.Context, fn func(*services) error) error {
	cfg, logg, err := c.ensureConfig()
	if err != nil {
		return err
	}
	client, err := c.database(ctx)
	if err != nil {
		return err
	}

	manifestSvc, err := manifests.NewService(manifests.NewRepository(client.DB()), client, logg)
	if err != nil {
		return err
	}
	statsSvc, err := stats.NewService(stats.NewRepository(client.DB()), cfg.Stats.MultiParcelThreshold)
	if err != nil {
		return err
	}
	scheduler, err := propagation.NewScheduler(propagation.NewRepository(client.DB()), logg, nil)
	if err != nil {
		return err
	}
	sessionSvc, err := sessions.NewService(sessions.NewRepository(client.DB()), client, logg)
	if err != nil {
		return err
	}

	return fn(&services{
		manifests: manifestSvc,
		stats:     statsSvc,
		tasks:     scheduler,
		sessions:  sessionSvc,
	})
}

func (c *commandContext) close() {
	if c.dbClient == nil || !c.ownsDB {
		return
	}
	if err := c.dbClient.Close(); err != nil && c.logg != nil {
		c.logg.Error(context.Background(), "error closing database", err)
	}
	c.dbClient = nil
}
