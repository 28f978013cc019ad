package propagation

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/parcel-intake-backend/pkg/db/models"
	"github.com/angelmondragon/parcel-intake-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/parcel-intake-backend/pkg/errors"
	"github.com/angelmondragon/parcel-intake-backend/pkg/logger"
	"github.com/angelmondragon/parcel-intake-backend/pkg/metrics"
)

const (
	defaultListLimit   = 50
	maxListLimit       = 200
	abandonedTaskError = "abandoned: worker stopped before completion"
)

// TaskDTO is the API view of a propagation task.
type TaskDTO struct {
	ID             uuid.UUID                   `json:"id"`
	TrackingNumber string                      `json:"trackingNumber"`
	Stage          enums.PropagationStage      `json:"stage"`
	Status         enums.PropagationTaskStatus `json:"status"`
	RunAt          time.Time                   `json:"runAt"`
	Attempts       int                         `json:"attempts"`
	LastError      *string                     `json:"lastError"`
	ParentID       *uuid.UUID                  `json:"parentId,omitempty"`
	ClaimedAt      *time.Time                  `json:"claimedAt"`
	CompletedAt    *time.Time                  `json:"completedAt"`
	CanceledAt     *time.Time                  `json:"canceledAt"`
	CreatedAt      time.Time                   `json:"createdAt"`
}

func newTaskDTO(t models.PropagationTask) TaskDTO {
	return TaskDTO{
		ID:             t.ID,
		TrackingNumber: t.TrackingNumber,
		Stage:          t.Stage,
		Status:         t.Status,
		RunAt:          t.RunAt,
		Attempts:       t.Attempts,
		LastError:      t.LastError,
		ParentID:       t.ParentID,
		ClaimedAt:      t.ClaimedAt,
		CompletedAt:    t.CompletedAt,
		CanceledAt:     t.CanceledAt,
		CreatedAt:      t.CreatedAt,
	}
}

// Scheduler records deferred stage pushes and exposes handles to query or
// cancel them.
type Scheduler interface {
	Schedule(ctx context.Context, trackingNumber string, stage enums.PropagationStage, runAt time.Time) (*TaskDTO, error)
	Get(ctx context.Context, id uuid.UUID) (*TaskDTO, error)
	List(ctx context.Context, filter TaskFilter) ([]TaskDTO, error)
	Cancel(ctx context.Context, id uuid.UUID) (*TaskDTO, error)
	PendingCount(ctx context.Context) (int, error)
}

type scheduler struct {
	repo    Repository
	logg    *logger.Logger
	metrics *metrics.PropagationMetrics
	now     func() time.Time
}

func NewScheduler(repo Repository, logg *logger.Logger, m *metrics.PropagationMetrics) (Scheduler, error) {
	if repo == nil {
		return nil, errors.New("propagation repository is required")
	}
	if logg == nil {
		return nil, errors.New("logger is required")
	}
	return &scheduler{repo: repo, logg: logg, metrics: m, now: time.Now}, nil
}

func (s *scheduler) Schedule(ctx context.Context, trackingNumber string, stage enums.PropagationStage, runAt time.Time) (*TaskDTO, error) {
	trackingNumber = strings.TrimSpace(trackingNumber)
	if trackingNumber == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "tracking number is required")
	}
	if !stage.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("unknown propagation stage %q", stage))
	}

	now := s.now().UTC()
	if runAt.IsZero() {
		runAt = now
	}
	task := models.PropagationTask{
		ID:             uuid.New(),
		TrackingNumber: trackingNumber,
		Stage:          stage,
		Status:         enums.TaskStatusPending,
		RunAt:          runAt.UTC(),
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.repo.Create(ctx, &task); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "schedule propagation task")
	}
	s.metrics.IncTask(string(enums.TaskStatusPending))

	logCtx := s.logg.WithTrackingNumber(ctx, trackingNumber)
	logCtx = s.logg.WithFields(logCtx, map[string]any{"stage": stage, "run_at": task.RunAt, "task_id": task.ID})
	s.logg.Info(logCtx, "propagation task scheduled")

	dto := newTaskDTO(task)
	return &dto, nil
}

func (s *scheduler) Get(ctx context.Context, id uuid.UUID) (*TaskDTO, error) {
	task, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "propagation task not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load propagation task")
	}
	dto := newTaskDTO(*task)
	return &dto, nil
}

func (s *scheduler) List(ctx context.Context, filter TaskFilter) ([]TaskDTO, error) {
	if filter.Status != "" && !filter.Status.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid task status %q", filter.Status))
	}
	if filter.Limit > maxListLimit {
		filter.Limit = maxListLimit
	}
	tasks, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list propagation tasks")
	}
	out := make([]TaskDTO, 0, len(tasks))
	for _, t := range tasks {
		out = append(out, newTaskDTO(t))
	}
	return out, nil
}

// Cancel stops a task that has not started. Running or finished tasks yield a
// state conflict.
func (s *scheduler) Cancel(ctx context.Context, id uuid.UUID) (*TaskDTO, error) {
	ok, err := s.repo.Cancel(ctx, id, s.now().UTC())
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "cancel propagation task")
	}
	task, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, fmt.Sprintf("task is %s and can no longer be canceled", task.Status)).
			WithDetails(map[string]any{"taskId": task.ID, "status": task.Status})
	}
	s.metrics.IncTask(string(enums.TaskStatusCanceled))
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{"task_id": id, "tracking_number": task.TrackingNumber}), "propagation task canceled")
	return task, nil
}

func (s *scheduler) PendingCount(ctx context.Context) (int, error) {
	count, err := s.repo.CountByStatus(ctx, enums.TaskStatusPending)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "count pending propagation tasks")
	}
	return int(count), nil
}

// UniformDelay returns a generator of delays drawn uniformly from [min, max].
func UniformDelay(min, max time.Duration) func() time.Duration {
	if max < min {
		min, max = max, min
	}
	var mu sync.Mutex
	source := rand.New(rand.NewSource(time.Now().UnixNano()))
	return func() time.Duration {
		if max == min {
			return min
		}
		mu.Lock()
		defer mu.Unlock()
		return min + time.Duration(source.Int63n(int64(max-min)+1))
	}
}
