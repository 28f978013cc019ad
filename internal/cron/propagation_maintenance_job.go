package cron

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/multierr"

	"github.com/angelmondragon/parcel-intake-backend/pkg/logger"
)

const (
	defaultStaleRunningAfter = 10 * time.Minute
	defaultTaskRetention     = 30 * 24 * time.Hour
)

type PropagationMaintenanceJobParams struct {
	Logger            *logger.Logger
	Repository        propagationTaskRepo
	StaleRunningAfter time.Duration
	Retention         time.Duration
}

type propagationTaskRepo interface {
	FailStaleRunning(ctx context.Context, cutoff, at time.Time) (int64, error)
	DeleteFinishedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// NewPropagationMaintenanceJob fails tasks abandoned in running and prunes
// finished tasks past retention. Abandoned tasks are never re-run.
func NewPropagationMaintenanceJob(params PropagationMaintenanceJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Repository == nil {
		return nil, fmt.Errorf("propagation repository required")
	}
	stale := params.StaleRunningAfter
	if stale <= 0 {
		stale = defaultStaleRunningAfter
	}
	retention := params.Retention
	if retention <= 0 {
		retention = defaultTaskRetention
	}
	return &propagationMaintenanceJob{
		logg:      params.Logger,
		repo:      params.Repository,
		stale:     stale,
		retention: retention,
		now:       time.Now,
	}, nil
}

type propagationMaintenanceJob struct {
	logg      *logger.Logger
	repo      propagationTaskRepo
	stale     time.Duration
	retention time.Duration
	now       func() time.Time
}

func (j *propagationMaintenanceJob) Name() string { return "propagation-maintenance" }

func (j *propagationMaintenanceJob) Run(ctx context.Context) error {
	now := j.now().UTC()
	var errs []error

	abandoned, err := j.repo.FailStaleRunning(ctx, now.Add(-j.stale), now)
	if err != nil {
		errs = append(errs, fmt.Errorf("fail abandoned tasks: %w", err))
	}

	pruned, err := j.repo.DeleteFinishedBefore(ctx, now.Add(-j.retention))
	if err != nil {
		errs = append(errs, fmt.Errorf("prune finished tasks: %w", err))
	}

	logCtx := j.logg.WithFields(ctx, map[string]any{
		"abandoned_tasks": abandoned,
		"pruned_tasks":    pruned,
		"stale_after":     j.stale.String(),
		"retention":       j.retention.String(),
	})
	j.logg.Info(logCtx, "propagation maintenance complete")
	return multierr.Combine(errs...)
}
