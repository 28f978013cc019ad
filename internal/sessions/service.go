package sessions

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/parcel-intake-backend/pkg/db"
	"github.com/angelmondragon/parcel-intake-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/parcel-intake-backend/pkg/errors"
	"github.com/angelmondragon/parcel-intake-backend/pkg/logger"
)

var activeSessionConstraint = db.UniqueConstraint{Name: "ux_scan_sessions_active_user", Columns: "scan_sessions.user_id"}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service tracks operator scanning sessions and their counters.
type Service interface {
	Start(ctx context.Context, operatorID, operatorName string) (*SessionDTO, error)
	Stop(ctx context.Context, operatorID string) ([]SessionDTO, error)
	RecordOutcome(ctx context.Context, operatorID, operatorName string, success bool) error
	ActiveCount(ctx context.Context) (int, error)
	CloseIdle(ctx context.Context, idleFor time.Duration) (int, error)
}

type service struct {
	repo Repository
	tx   txRunner
	logg *logger.Logger
	now  func() time.Time
}

func NewService(repo Repository, tx txRunner, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("sessions repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{repo: repo, tx: tx, logg: logg, now: time.Now}, nil
}

// Start closes any session the operator still has open and opens a new one.
func (s *service) Start(ctx context.Context, operatorID, operatorName string) (*SessionDTO, error) {
	operatorID = strings.TrimSpace(operatorID)
	if operatorID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "userId is required")
	}
	now := s.now().UTC()

	var created models.ScanSession
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if _, err := s.closeActive(ctx, repo, operatorID, now); err != nil {
			return err
		}
		created = newActiveSession(operatorID, operatorName, now)
		return repo.Create(ctx, &created)
	})
	if err != nil {
		if activeSessionConstraint.Violated(err) {
			return nil, pkgerrors.Wrap(pkgerrors.CodeConflict, err, "a session for this operator was started concurrently")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "start session")
	}

	s.logg.Info(s.logg.WithOperatorID(ctx, operatorID), "scan session started")
	dto := newSessionDTO(created)
	return &dto, nil
}

// Stop closes every active session of the operator. Having none is not an error.
func (s *service) Stop(ctx context.Context, operatorID string) ([]SessionDTO, error) {
	operatorID = strings.TrimSpace(operatorID)
	if operatorID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "userId is required")
	}
	now := s.now().UTC()

	var closed []models.ScanSession
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		closed, err = s.closeActive(ctx, s.repo.WithTx(tx), operatorID, now)
		return err
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "stop session")
	}

	out := make([]SessionDTO, 0, len(closed))
	for _, session := range closed {
		out = append(out, newSessionDTO(session))
	}
	logCtx := s.logg.WithOperatorID(ctx, operatorID)
	s.logg.Info(s.logg.WithField(logCtx, "closed", len(out)), "scan session stopped")
	return out, nil
}

// RecordOutcome counts one scan attempt against the operator's active session,
// opening a session when none exists.
func (s *service) RecordOutcome(ctx context.Context, operatorID, operatorName string, success bool) error {
	operatorID = strings.TrimSpace(operatorID)
	if operatorID == "" {
		return nil
	}

	var err error
	for attempt := 0; attempt < 2; attempt++ {
		err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
			return s.recordOnce(ctx, s.repo.WithTx(tx), operatorID, operatorName, success)
		})
		if err == nil || !activeSessionConstraint.Violated(err) {
			break
		}
	}
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "record scan outcome")
	}
	return nil
}

func (s *service) recordOnce(ctx context.Context, repo Repository, operatorID, operatorName string, success bool) error {
	now := s.now().UTC()
	session, err := repo.FindActive(ctx, operatorID)
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		fresh := newActiveSession(operatorID, operatorName, now)
		if err := repo.Create(ctx, &fresh); err != nil {
			return err
		}
		session = &fresh
	}

	ok, err := repo.IncrementCounters(ctx, session.ID, success, now)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("session %s closed while recording", session.ID)
	}
	return nil
}

func (s *service) ActiveCount(ctx context.Context) (int, error) {
	count, err := s.repo.CountActive(ctx)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "count active sessions")
	}
	return int(count), nil
}

// CloseIdle ends sessions with no scan activity within idleFor.
func (s *service) CloseIdle(ctx context.Context, idleFor time.Duration) (int, error) {
	if idleFor <= 0 {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "idle timeout must be positive")
	}
	now := s.now().UTC()
	closed, err := s.repo.CloseIdle(ctx, now.Add(-idleFor), now)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "close idle sessions")
	}
	return int(closed), nil
}

func (s *service) closeActive(ctx context.Context, repo Repository, operatorID string, now time.Time) ([]models.ScanSession, error) {
	active, err := repo.ListActive(ctx, operatorID)
	if err != nil {
		return nil, err
	}
	if len(active) == 0 {
		return active, nil
	}
	ids := make([]uuid.UUID, 0, len(active))
	for i := range active {
		ids = append(ids, active[i].ID)
		end := now
		active[i].EndTime = &end
		active[i].IsActive = false
	}
	if err := repo.Deactivate(ctx, ids, now); err != nil {
		return nil, err
	}
	return active, nil
}

func newActiveSession(operatorID, operatorName string, now time.Time) models.ScanSession {
	return models.ScanSession{
		ID:        uuid.New(),
		UserID:    operatorID,
		UserName:  strings.TrimSpace(operatorName),
		StartTime: now,
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}
}
