package propagation

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/parcel-intake-backend/pkg/db/models"
	"github.com/angelmondragon/parcel-intake-backend/pkg/enums"
	"github.com/angelmondragon/parcel-intake-backend/pkg/logger"
	"github.com/angelmondragon/parcel-intake-backend/pkg/metrics"
)

const (
	defaultBatchSize     = 25
	defaultPollInterval  = time.Second
	defaultFollowUpDelay = time.Second
	maxBackoff           = 30 * time.Second
	jitterWindow         = 100 * time.Millisecond
)

var jitterSource = rand.New(rand.NewSource(time.Now().UnixNano()))

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Lock keeps concurrent dispatchers from polling the same batch.
type Lock interface {
	Acquire(ctx context.Context) (bool, error)
	Release(ctx context.Context) error
}

type stagePropagator interface {
	Propagate(ctx context.Context, trackingNumber, stageLabel string) Result
}

// followUps lists the stage each completed stage schedules next.
var followUps = map[enums.PropagationStage]enums.PropagationStage{
	enums.StageAtWarehouse: enums.StageInSortingArea,
}

type DispatcherParams struct {
	Logger        *logger.Logger
	Repository    Repository
	DB            txRunner
	Propagator    stagePropagator
	Lock          Lock
	Metrics       *metrics.PropagationMetrics
	BatchSize     int
	PollInterval  time.Duration
	FollowUpDelay time.Duration
}

// Dispatcher runs due propagation tasks exactly once each.
type Dispatcher struct {
	logg          *logger.Logger
	repo          Repository
	db            txRunner
	propagator    stagePropagator
	lock          Lock
	metrics       *metrics.PropagationMetrics
	batchSize     int
	pollInterval  time.Duration
	followUpDelay time.Duration
	now           func() time.Time
}

func NewDispatcher(params DispatcherParams) (*Dispatcher, error) {
	if params.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if params.Repository == nil {
		return nil, errors.New("propagation repository is required")
	}
	if params.DB == nil {
		return nil, errors.New("database client is required")
	}
	if params.Propagator == nil {
		return nil, errors.New("propagator is required")
	}

	batch := params.BatchSize
	if batch <= 0 {
		batch = defaultBatchSize
	}
	poll := params.PollInterval
	if poll <= 0 {
		poll = defaultPollInterval
	}
	followUp := params.FollowUpDelay
	if followUp <= 0 {
		followUp = defaultFollowUpDelay
	}

	return &Dispatcher{
		logg:          params.Logger,
		repo:          params.Repository,
		db:            params.DB,
		propagator:    params.Propagator,
		lock:          params.Lock,
		metrics:       params.Metrics,
		batchSize:     batch,
		pollInterval:  poll,
		followUpDelay: followUp,
		now:           time.Now,
	}, nil
}

// Run polls for due tasks until ctx is canceled.
func (d *Dispatcher) Run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx = d.logg.WithField(ctx, "component", "propagation-dispatcher")
	d.logg.Info(ctx, "propagation dispatcher started")

	backoff := d.pollInterval
	for {
		select {
		case <-ctx.Done():
			d.logg.Info(ctx, "propagation dispatcher context canceled")
			return ctx.Err()
		default:
		}

		processed, err := d.RunOnce(ctx)
		if err != nil {
			d.logg.Error(ctx, "propagation dispatch cycle failed", err)
			backoff = nextBackoff(backoff, d.pollInterval, maxBackoff)
			if err := sleep(ctx, withJitter(backoff)); err != nil {
				return err
			}
			continue
		}
		backoff = d.pollInterval

		if processed == d.batchSize {
			continue
		}
		if err := sleep(ctx, withJitter(d.pollInterval)); err != nil {
			return err
		}
	}
}

// RunOnce claims and executes one batch of due tasks, returning how many ran.
func (d *Dispatcher) RunOnce(ctx context.Context) (int, error) {
	claimed, err := d.claimDue(ctx)
	if err != nil {
		return 0, err
	}
	for _, task := range claimed {
		if err := d.execute(ctx, task); err != nil {
			return 0, err
		}
	}
	return len(claimed), nil
}

func (d *Dispatcher) claimDue(ctx context.Context) ([]models.PropagationTask, error) {
	if d.lock != nil {
		locked, err := d.lock.Acquire(ctx)
		if err != nil {
			return nil, fmt.Errorf("lock acquire: %w", err)
		}
		if !locked {
			return nil, nil
		}
		defer func() {
			if relErr := d.lock.Release(ctx); relErr != nil {
				d.logg.Error(ctx, "failed to release dispatcher lock", relErr)
			}
		}()
	}

	now := d.now().UTC()
	due, err := d.repo.FetchDue(ctx, now, d.batchSize)
	if err != nil {
		return nil, fmt.Errorf("fetch due tasks: %w", err)
	}

	claimed := make([]models.PropagationTask, 0, len(due))
	for _, task := range due {
		ok, err := d.repo.Claim(ctx, task.ID, now)
		if err != nil {
			return nil, fmt.Errorf("claim task %s: %w", task.ID, err)
		}
		if !ok {
			continue
		}
		task.Status = enums.TaskStatusRunning
		task.Attempts++
		claimed = append(claimed, task)
		d.metrics.IncTask(string(enums.TaskStatusRunning))
	}
	return claimed, nil
}

// execute runs a claimed task once. The outcome is stored whatever it is, and
// a follow-up stage is queued after completion even when the push failed. A
// task that stopped being running meanwhile keeps its state and queues nothing.
func (d *Dispatcher) execute(ctx context.Context, task models.PropagationTask) error {
	logCtx := d.logg.WithTrackingNumber(ctx, task.TrackingNumber)
	logCtx = d.logg.WithFields(logCtx, map[string]any{"task_id": task.ID, "stage": task.Stage})

	result := d.propagator.Propagate(logCtx, task.TrackingNumber, string(task.Stage))
	completedAt := d.now().UTC()

	status := enums.TaskStatusSucceeded
	var lastError *string
	if !result.Success {
		status = enums.TaskStatusFailed
		msg := result.Error
		lastError = &msg
	}

	var stored bool
	err := d.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := d.repo.WithTx(tx)
		ok, err := repo.Complete(ctx, task.ID, status, lastError, completedAt)
		if err != nil {
			return fmt.Errorf("complete task %s: %w", task.ID, err)
		}
		if !ok {
			return nil
		}
		stored = true
		next, ok := followUps[task.Stage]
		if !ok {
			return nil
		}
		parentID := task.ID
		followUp := models.PropagationTask{
			ID:             uuid.New(),
			TrackingNumber: task.TrackingNumber,
			Stage:          next,
			Status:         enums.TaskStatusPending,
			RunAt:          completedAt.Add(d.followUpDelay),
			ParentID:       &parentID,
			CreatedAt:      completedAt,
			UpdatedAt:      completedAt,
		}
		if err := repo.Create(ctx, &followUp); err != nil {
			return fmt.Errorf("schedule follow-up for task %s: %w", task.ID, err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	if !stored {
		d.logg.Warn(d.logg.WithField(logCtx, "status", status), "propagation task no longer running; outcome dropped")
		return nil
	}

	d.metrics.IncTask(string(status))
	d.logg.Info(d.logg.WithField(logCtx, "status", status), "propagation task finished")
	return nil
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func nextBackoff(current, base, max time.Duration) time.Duration {
	if current <= 0 {
		current = base
	}
	next := current * 2
	if next > max {
		return max
	}
	return next
}

func withJitter(d time.Duration) time.Duration {
	return d + time.Duration(jitterSource.Int63n(int64(jitterWindow)))
}
