package cron

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/angelmondragon/parcel-intake-backend/pkg/logger"
)

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "cron-test", Output: &bytes.Buffer{}})
}

type fakeSessionCloser struct {
	idle   time.Duration
	closed int
	err    error
}

func (f *fakeSessionCloser) CloseIdle(ctx context.Context, idleFor time.Duration) (int, error) {
	f.idle = idleFor
	return f.closed, f.err
}

func TestSessionIdleJobUsesConfiguredTimeout(t *testing.T) {
	closer := &fakeSessionCloser{closed: 3}
	job, err := NewSessionIdleJob(SessionIdleJobParams{Logger: testLogger(), Sessions: closer, IdleTimeout: 2 * time.Hour})
	if err != nil {
		t.Fatalf("NewSessionIdleJob: %v", err)
	}
	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if closer.idle != 2*time.Hour {
		t.Fatalf("expected idle timeout 2h, got %s", closer.idle)
	}

	closer.err = errors.New("db down")
	if err := job.Run(context.Background()); err == nil {
		t.Fatal("expected error")
	}
}

type fakeTaskRepo struct {
	staleCutoff  time.Time
	pruneCutoff  time.Time
	staleErr     error
	pruneErr     error
	pruneCalled  bool
	staleUpdated int64
}

func (f *fakeTaskRepo) FailStaleRunning(ctx context.Context, cutoff, at time.Time) (int64, error) {
	f.staleCutoff = cutoff
	return f.staleUpdated, f.staleErr
}

func (f *fakeTaskRepo) DeleteFinishedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	f.pruneCalled = true
	f.pruneCutoff = cutoff
	return 0, f.pruneErr
}

func newMaintenanceJob(t *testing.T, repo *fakeTaskRepo) *propagationMaintenanceJob {
	t.Helper()
	jobIface, err := NewPropagationMaintenanceJob(PropagationMaintenanceJobParams{
		Logger:            testLogger(),
		Repository:        repo,
		StaleRunningAfter: 10 * time.Minute,
		Retention:         24 * time.Hour,
	})
	if err != nil {
		t.Fatalf("NewPropagationMaintenanceJob: %v", err)
	}
	job, ok := jobIface.(*propagationMaintenanceJob)
	if !ok {
		t.Fatalf("expected propagationMaintenanceJob, got %T", jobIface)
	}
	return job
}

func TestPropagationMaintenanceJobCutoffs(t *testing.T) {
	now := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	repo := &fakeTaskRepo{staleUpdated: 2}
	job := newMaintenanceJob(t, repo)
	job.now = func() time.Time { return now }

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !repo.staleCutoff.Equal(now.Add(-10 * time.Minute)) {
		t.Fatalf("unexpected stale cutoff %s", repo.staleCutoff)
	}
	if !repo.pruneCutoff.Equal(now.Add(-24 * time.Hour)) {
		t.Fatalf("unexpected prune cutoff %s", repo.pruneCutoff)
	}
}

func TestPropagationMaintenanceJobCombinesErrors(t *testing.T) {
	repo := &fakeTaskRepo{staleErr: errors.New("stale boom"), pruneErr: errors.New("prune boom")}
	job := newMaintenanceJob(t, repo)

	err := job.Run(context.Background())
	if err == nil {
		t.Fatal("expected error")
	}
	if !repo.pruneCalled {
		t.Fatal("prune should run even when the stale sweep fails")
	}
	if !strings.Contains(err.Error(), "stale boom") || !strings.Contains(err.Error(), "prune boom") {
		t.Fatalf("expected both errors, got %v", err)
	}
}
