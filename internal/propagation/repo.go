package propagation

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/parcel-intake-backend/pkg/db/models"
	"github.com/angelmondragon/parcel-intake-backend/pkg/enums"
)

// TaskFilter narrows task listings. Zero values match everything.
type TaskFilter struct {
	TrackingNumber string
	Status         enums.PropagationTaskStatus
	Limit          int
}

// Repository persists deferred propagation tasks.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, task *models.PropagationTask) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.PropagationTask, error)
	List(ctx context.Context, filter TaskFilter) ([]models.PropagationTask, error)
	Cancel(ctx context.Context, id uuid.UUID, at time.Time) (bool, error)
	FetchDue(ctx context.Context, now time.Time, limit int) ([]models.PropagationTask, error)
	Claim(ctx context.Context, id uuid.UUID, at time.Time) (bool, error)
	Complete(ctx context.Context, id uuid.UUID, status enums.PropagationTaskStatus, lastError *string, at time.Time) (bool, error)
	CountByStatus(ctx context.Context, status enums.PropagationTaskStatus) (int64, error)
	FailStaleRunning(ctx context.Context, cutoff, at time.Time) (int64, error)
	DeleteFinishedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, task *models.PropagationTask) error {
	if task.ID == uuid.Nil {
		task.ID = uuid.New()
	}
	if task.Status == "" {
		task.Status = enums.TaskStatusPending
	}
	return r.db.WithContext(ctx).Create(task).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.PropagationTask, error) {
	var task models.PropagationTask
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&task).Error; err != nil {
		return nil, err
	}
	return &task, nil
}

func (r *repository) List(ctx context.Context, filter TaskFilter) ([]models.PropagationTask, error) {
	query := r.db.WithContext(ctx).Model(&models.PropagationTask{})
	if filter.TrackingNumber != "" {
		query = query.Where("tracking_number = ?", filter.TrackingNumber)
	}
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}

	var tasks []models.PropagationTask
	err := query.
		Order("run_at DESC").
		Order("id DESC").
		Limit(limit).
		Find(&tasks).Error
	if err != nil {
		return nil, err
	}
	return tasks, nil
}

// Cancel moves a pending task to canceled. It reports false when the task
// already left pending.
func (r *repository) Cancel(ctx context.Context, id uuid.UUID, at time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.PropagationTask{}).
		Where("id = ? AND status = ?", id, enums.TaskStatusPending).
		Updates(map[string]any{
			"status":      enums.TaskStatusCanceled,
			"canceled_at": at,
			"updated_at":  at,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) FetchDue(ctx context.Context, now time.Time, limit int) ([]models.PropagationTask, error) {
	var tasks []models.PropagationTask
	err := r.db.WithContext(ctx).
		Where("status = ? AND run_at <= ?", enums.TaskStatusPending, now).
		Order("run_at ASC").
		Order("id ASC").
		Limit(limit).
		Find(&tasks).Error
	if err != nil {
		return nil, err
	}
	return tasks, nil
}

// Claim moves a pending task to running. Only one caller can win the claim.
func (r *repository) Claim(ctx context.Context, id uuid.UUID, at time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.PropagationTask{}).
		Where("id = ? AND status = ?", id, enums.TaskStatusPending).
		Updates(map[string]any{
			"status":     enums.TaskStatusRunning,
			"claimed_at": at,
			"attempts":   gorm.Expr("attempts + 1"),
			"updated_at": at,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// Complete stores the outcome of a running task. It reports false when the
// task is no longer running, e.g. after maintenance failed it as abandoned.
func (r *repository) Complete(ctx context.Context, id uuid.UUID, status enums.PropagationTaskStatus, lastError *string, at time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.PropagationTask{}).
		Where("id = ? AND status = ?", id, enums.TaskStatusRunning).
		Updates(map[string]any{
			"status":       status,
			"last_error":   lastError,
			"completed_at": at,
			"updated_at":   at,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) CountByStatus(ctx context.Context, status enums.PropagationTaskStatus) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.PropagationTask{}).
		Where("status = ?", status).
		Count(&count).Error
	return count, err
}

// FailStaleRunning marks tasks stuck in running since before cutoff as failed.
func (r *repository) FailStaleRunning(ctx context.Context, cutoff, at time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&models.PropagationTask{}).
		Where("status = ? AND claimed_at < ?", enums.TaskStatusRunning, cutoff).
		Updates(map[string]any{
			"status":       enums.TaskStatusFailed,
			"last_error":   abandonedTaskError,
			"completed_at": at,
			"updated_at":   at,
		})
	return res.RowsAffected, res.Error
}

func (r *repository) DeleteFinishedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("status IN ? AND updated_at < ?", []enums.PropagationTaskStatus{
			enums.TaskStatusSucceeded,
			enums.TaskStatusFailed,
			enums.TaskStatusCanceled,
		}, cutoff).
		Delete(&models.PropagationTask{})
	return res.RowsAffected, res.Error
}
