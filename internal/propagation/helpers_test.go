package propagation

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/parcel-intake-backend/pkg/db/dbtest"
	"github.com/angelmondragon/parcel-intake-backend/pkg/db/models"
)

var baseTime = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

type stubPropagator struct {
	mu      sync.Mutex
	calls   []string
	results map[string]Result
	during  func()
}

func (s *stubPropagator) Propagate(ctx context.Context, trackingNumber, stageLabel string) Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, trackingNumber+"|"+stageLabel)
	if s.during != nil {
		s.during()
	}
	if res, ok := s.results[stageLabel]; ok {
		return res
	}
	return Result{Success: true, Stage: stageLabel, Status: StatusCode(stageLabel)}
}

type stubLock struct {
	acquire  bool
	released int
}

func (l *stubLock) Acquire(ctx context.Context) (bool, error) { return l.acquire, nil }

func (l *stubLock) Release(ctx context.Context) error {
	l.released++
	return nil
}

func openRepo(t *testing.T) (Repository, *gorm.DB) {
	t.Helper()
	conn := dbtest.Open(t)
	return NewRepository(conn), conn
}

func allTasks(t *testing.T, conn *gorm.DB) []models.PropagationTask {
	t.Helper()
	var tasks []models.PropagationTask
	require.NoError(t, conn.Order("run_at ASC").Find(&tasks).Error)
	return tasks
}
