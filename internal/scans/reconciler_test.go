package scans

import (
	"bytes"
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/parcel-intake-backend/internal/manifests"
	"github.com/angelmondragon/parcel-intake-backend/internal/propagation"
	"github.com/angelmondragon/parcel-intake-backend/pkg/db"
	"github.com/angelmondragon/parcel-intake-backend/pkg/db/dbtest"
	"github.com/angelmondragon/parcel-intake-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/parcel-intake-backend/pkg/errors"
	"github.com/angelmondragon/parcel-intake-backend/pkg/logger"
	"github.com/angelmondragon/parcel-intake-backend/pkg/types"
)

var scanTime = time.Date(2026, 3, 1, 11, 0, 0, 0, time.UTC)

type outcome struct {
	operatorID string
	success    bool
}

type stubSessions struct {
	mu       sync.Mutex
	outcomes []outcome
}

func (s *stubSessions) RecordOutcome(ctx context.Context, operatorID, operatorName string, success bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.outcomes = append(s.outcomes, outcome{operatorID: operatorID, success: success})
	return nil
}

func (s *stubSessions) count(success bool) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, o := range s.outcomes {
		if o.success == success {
			n++
		}
	}
	return n
}

type stubPropagator struct {
	mu     sync.Mutex
	result propagation.Result
	calls  []string
}

func (p *stubPropagator) Propagate(ctx context.Context, trackingNumber, stageLabel string) propagation.Result {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, trackingNumber+"|"+stageLabel)
	res := p.result
	res.Stage = stageLabel
	return res
}

type scheduled struct {
	trackingNumber string
	stage          enums.PropagationStage
	runAt          time.Time
}

type stubScheduler struct {
	mu    sync.Mutex
	tasks []scheduled
}

func (s *stubScheduler) Schedule(ctx context.Context, trackingNumber string, stage enums.PropagationStage, runAt time.Time) (*propagation.TaskDTO, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks = append(s.tasks, scheduled{trackingNumber: trackingNumber, stage: stage, runAt: runAt})
	return &propagation.TaskDTO{TrackingNumber: trackingNumber, Stage: stage, Status: enums.TaskStatusPending, RunAt: runAt}, nil
}

type stubAudit struct {
	mu       sync.Mutex
	outcomes []string
}

func (a *stubAudit) RecordScan(ctx context.Context, audit ScanAudit) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.outcomes = append(a.outcomes, audit.Outcome)
}

type fixture struct {
	reconciler *Reconciler
	repo       manifests.Repository
	sessions   *stubSessions
	propagator *stubPropagator
	scheduler  *stubScheduler
	audit      *stubAudit
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	conn := dbtest.Open(t)
	logg := logger.New(logger.Options{ServiceName: "scans-test", Output: &bytes.Buffer{}})

	repo := manifests.NewRepository(conn)
	svc, err := manifests.NewService(repo, db.NewFromConn(conn), logg)
	require.NoError(t, err)
	_, err = svc.Ingest(context.Background(), manifests.IngestInput{
		ManifestNumber: "M1",
		Parcels: []manifests.ParcelInput{
			{TrackingNumber: types.LooseString("TN001"), ConsigneeName: "Alice"},
			{TrackingNumber: types.LooseString("TN002"), ConsigneeName: "Bob"},
		},
	})
	require.NoError(t, err)

	matcher, err := manifests.NewMatcher(repo)
	require.NoError(t, err)

	f := &fixture{
		repo:       repo,
		sessions:   &stubSessions{},
		propagator: &stubPropagator{result: propagation.Result{Success: true}},
		scheduler:  &stubScheduler{},
		audit:      &stubAudit{},
	}
	f.reconciler, err = NewReconciler(ReconcilerParams{
		Logger:        logg,
		Matcher:       matcher,
		Parcels:       repo,
		Sessions:      f.sessions,
		Propagator:    f.propagator,
		Scheduler:     f.scheduler,
		Audit:         f.audit,
		StageTwoDelay: func() time.Duration { return 25 * time.Minute },
	})
	require.NoError(t, err)
	f.reconciler.now = func() time.Time { return scanTime }
	return f
}

func TestScenarioReceiveThenConflictThenNotFound(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.reconciler.SubmitScan(ctx, ScanInput{TrackingNumber: "TN001", OperatorID: "op1", OperatorName: "Jane"})
	require.NoError(t, err)
	assert.True(t, res.Parcel.Received)
	assert.Equal(t, "Jane", res.Parcel.ReceivedBy)
	assert.Equal(t, "op1", res.Parcel.ScannedBy)
	assert.Equal(t, "M1", res.ManifestNumber)
	assert.Equal(t, 0, res.ParcelIndex)
	assert.False(t, res.ManifestMismatch)
	assert.True(t, res.Propagation.Success)
	assert.Equal(t, 1, res.Parcel.ScanHistory.Count(enums.ScanActionReceived))

	stored, err := f.repo.FindFirstParcelByTrackingNumber(ctx, "TN001")
	require.NoError(t, err)
	assert.True(t, stored.Received)
	require.NotNil(t, stored.ReceivedAt)
	firstReceivedAt := *stored.ReceivedAt

	f.reconciler.now = func() time.Time { return scanTime.Add(time.Minute) }
	_, err = f.reconciler.SubmitScan(ctx, ScanInput{TrackingNumber: "TN001", OperatorID: "op2", OperatorName: "Ken"})
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeConflict, pkgerrors.CodeOf(err))
	assert.Contains(t, pkgerrors.As(err).Message(), "Jane")

	stored, err = f.repo.FindFirstParcelByTrackingNumber(ctx, "TN001")
	require.NoError(t, err)
	assert.Equal(t, "Jane", stored.ReceivedBy)
	assert.True(t, stored.ReceivedAt.Equal(firstReceivedAt))
	assert.Equal(t, 1, stored.ScanHistory.Count(enums.ScanActionReceived))

	_, err = f.reconciler.SubmitScan(ctx, ScanInput{TrackingNumber: "TN999", OperatorID: "op1", OperatorName: "Jane"})
	assert.Equal(t, pkgerrors.CodeNotFound, pkgerrors.CodeOf(err))

	assert.Equal(t, 1, f.sessions.count(true))
	assert.Equal(t, 2, f.sessions.count(false))
	assert.Equal(t, []string{OutcomeSuccess, OutcomeConflict, OutcomeNotFound}, f.audit.outcomes)
}

func TestSubmitScanPropagatesAndSchedulesWarehouseStage(t *testing.T) {
	f := newFixture(t)

	res, err := f.reconciler.SubmitScan(context.Background(), ScanInput{TrackingNumber: "TN002", OperatorID: "op1"})
	require.NoError(t, err)
	assert.Equal(t, "op1", res.Parcel.ReceivedBy, "operator id stands in for a missing name")
	assert.Equal(t, 1, res.ParcelIndex)

	assert.Equal(t, []string{"TN002|Custom Clearing"}, f.propagator.calls)
	require.Len(t, f.scheduler.tasks, 1)
	assert.Equal(t, enums.StageAtWarehouse, f.scheduler.tasks[0].stage)
	assert.True(t, f.scheduler.tasks[0].runAt.Equal(scanTime.Add(25*time.Minute)))
	require.NotNil(t, res.NextStage)
}

func TestStageOneFailureDoesNotFailScan(t *testing.T) {
	f := newFixture(t)
	f.propagator.result = propagation.Result{Success: false, Error: "execute status update request"}

	res, err := f.reconciler.SubmitScan(context.Background(), ScanInput{TrackingNumber: "TN001", OperatorID: "op1", OperatorName: "Jane"})
	require.NoError(t, err)
	assert.True(t, res.Parcel.Received)
	assert.False(t, res.Propagation.Success)
	assert.Equal(t, "execute status update request", res.Propagation.Error)
	assert.Len(t, f.scheduler.tasks, 1)
}

func TestSubmitScanUsesClientTimestampAndFlagsMismatch(t *testing.T) {
	f := newFixture(t)
	at := scanTime.Add(-2 * time.Hour)

	res, err := f.reconciler.SubmitScan(context.Background(), ScanInput{
		TrackingNumber: " TN001 ",
		OperatorID:     "op1",
		OperatorName:   "Jane",
		Timestamp:      &at,
		ManifestNumber: "M7",
	})
	require.NoError(t, err)
	assert.True(t, res.ManifestMismatch)
	require.NotNil(t, res.Parcel.ReceivedAt)
	assert.True(t, res.Parcel.ReceivedAt.Equal(at))
}

func TestSubmitScanRequiresTrackingNumber(t *testing.T) {
	f := newFixture(t)

	_, err := f.reconciler.SubmitScan(context.Background(), ScanInput{TrackingNumber: "  ", OperatorID: "op1"})
	assert.Equal(t, pkgerrors.CodeValidation, pkgerrors.CodeOf(err))
	assert.Empty(t, f.sessions.outcomes)
	assert.Equal(t, []string{OutcomeInvalid}, f.audit.outcomes)
}

func TestConcurrentScansReceiveOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	const workers = 8
	var wg sync.WaitGroup
	var mu sync.Mutex
	successes, conflicts := 0, 0
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.reconciler.SubmitScan(ctx, ScanInput{TrackingNumber: "TN001", OperatorID: "op1", OperatorName: "Jane"})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case pkgerrors.IsCode(err, pkgerrors.CodeConflict):
				conflicts++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, successes)
	assert.Equal(t, workers-1, conflicts)

	stored, err := f.repo.FindFirstParcelByTrackingNumber(ctx, "TN001")
	require.NoError(t, err)
	assert.Equal(t, 1, stored.ScanHistory.Count(enums.ScanActionReceived))
}
