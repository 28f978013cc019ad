package sessions

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/parcel-intake-backend/pkg/db/models"
)

// Repository persists operator scan sessions.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindActive(ctx context.Context, userID string) (*models.ScanSession, error)
	ListActive(ctx context.Context, userID string) ([]models.ScanSession, error)
	Create(ctx context.Context, session *models.ScanSession) error
	Deactivate(ctx context.Context, ids []uuid.UUID, endAt time.Time) error
	IncrementCounters(ctx context.Context, id uuid.UUID, success bool, at time.Time) (bool, error)
	CountActive(ctx context.Context) (int64, error)
	CloseIdle(ctx context.Context, cutoff, endAt time.Time) (int64, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a GORM-backed session repository.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) FindActive(ctx context.Context, userID string) (*models.ScanSession, error) {
	var session models.ScanSession
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND is_active = ?", userID, true).
		Order("start_time DESC").
		First(&session).Error
	if err != nil {
		return nil, err
	}
	return &session, nil
}

func (r *repository) ListActive(ctx context.Context, userID string) ([]models.ScanSession, error) {
	var sessions []models.ScanSession
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND is_active = ?", userID, true).
		Order("start_time ASC").
		Find(&sessions).Error
	if err != nil {
		return nil, err
	}
	return sessions, nil
}

func (r *repository) Create(ctx context.Context, session *models.ScanSession) error {
	if session.ID == uuid.Nil {
		session.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(session).Error
}

func (r *repository) Deactivate(ctx context.Context, ids []uuid.UUID, endAt time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).
		Model(&models.ScanSession{}).
		Where("id IN ? AND is_active = ?", ids, true).
		Updates(map[string]any{
			"is_active":  false,
			"end_time":   endAt,
			"updated_at": endAt,
		}).Error
}

// IncrementCounters bumps the totals of an active session in one statement.
// It reports false when the session was closed in the meantime.
func (r *repository) IncrementCounters(ctx context.Context, id uuid.UUID, success bool, at time.Time) (bool, error) {
	updates := map[string]any{
		"total_scans":  gorm.Expr("total_scans + 1"),
		"last_scan_at": at,
		"updated_at":   at,
	}
	if success {
		updates["successful_scans"] = gorm.Expr("successful_scans + 1")
	} else {
		updates["error_scans"] = gorm.Expr("error_scans + 1")
	}
	res := r.db.WithContext(ctx).
		Model(&models.ScanSession{}).
		Where("id = ? AND is_active = ?", id, true).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) CountActive(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.ScanSession{}).
		Where("is_active = ?", true).
		Count(&count).Error
	return count, err
}

// CloseIdle deactivates sessions whose last activity is older than cutoff.
func (r *repository) CloseIdle(ctx context.Context, cutoff, endAt time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&models.ScanSession{}).
		Where("is_active = ? AND COALESCE(last_scan_at, start_time) < ?", true, cutoff).
		Updates(map[string]any{
			"is_active":  false,
			"end_time":   endAt,
			"updated_at": endAt,
		})
	return res.RowsAffected, res.Error
}
