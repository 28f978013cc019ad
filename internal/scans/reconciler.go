package scans

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/parcel-intake-backend/internal/manifests"
	"github.com/angelmondragon/parcel-intake-backend/internal/propagation"
	"github.com/angelmondragon/parcel-intake-backend/pkg/db/models"
	"github.com/angelmondragon/parcel-intake-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/parcel-intake-backend/pkg/errors"
	"github.com/angelmondragon/parcel-intake-backend/pkg/logger"
	"github.com/angelmondragon/parcel-intake-backend/pkg/types"
)

const (
	maxReceiveAttempts   = 3
	defaultStageTwoDelay = 30 * time.Minute
)

// Submitter is the scan entry point used by the HTTP layer.
type Submitter interface {
	SubmitScan(ctx context.Context, input ScanInput) (*ScanResult, error)
}

type parcelMatcher interface {
	FindParcel(ctx context.Context, trackingNumber string) (*manifests.ParcelMatch, error)
}

type parcelStore interface {
	FindParcelByID(ctx context.Context, id uuid.UUID) (*models.Parcel, error)
	MarkReceived(ctx context.Context, parcelID uuid.UUID, expectedVersion int, update manifests.ReceiveUpdate) (bool, error)
}

type sessionRecorder interface {
	RecordOutcome(ctx context.Context, operatorID, operatorName string, success bool) error
}

type stagePropagator interface {
	Propagate(ctx context.Context, trackingNumber, stageLabel string) propagation.Result
}

type stageScheduler interface {
	Schedule(ctx context.Context, trackingNumber string, stage enums.PropagationStage, runAt time.Time) (*propagation.TaskDTO, error)
}

// ScanInput is one scan submitted by an operator.
type ScanInput struct {
	TrackingNumber string
	OperatorID     string
	OperatorName   string
	Timestamp      *time.Time
	ManifestNumber string
}

// ScanResult is returned for an accepted scan.
type ScanResult struct {
	Parcel           manifests.ParcelDTO  `json:"parcel"`
	ManifestNumber   string               `json:"manifestNumber"`
	ParcelIndex      int                  `json:"parcelIndex"`
	Message          string               `json:"message"`
	Propagation      propagation.Result   `json:"propagation"`
	NextStage        *propagation.TaskDTO `json:"nextStage,omitempty"`
	ManifestMismatch bool                 `json:"manifestMismatch"`
}

type ReconcilerParams struct {
	Logger        *logger.Logger
	Matcher       parcelMatcher
	Parcels       parcelStore
	Sessions      sessionRecorder
	Propagator    stagePropagator
	Scheduler     stageScheduler
	Audit         AuditRecorder
	StageTwoDelay func() time.Duration
}

// Reconciler marks scanned parcels received and starts their status propagation.
type Reconciler struct {
	logg          *logger.Logger
	matcher       parcelMatcher
	parcels       parcelStore
	sessions      sessionRecorder
	propagator    stagePropagator
	scheduler     stageScheduler
	audit         AuditRecorder
	stageTwoDelay func() time.Duration
	now           func() time.Time
}

func NewReconciler(params ReconcilerParams) (*Reconciler, error) {
	if params.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if params.Matcher == nil {
		return nil, errors.New("parcel matcher is required")
	}
	if params.Parcels == nil {
		return nil, errors.New("parcel store is required")
	}
	if params.Sessions == nil {
		return nil, errors.New("session recorder is required")
	}
	if params.Propagator == nil {
		return nil, errors.New("propagator is required")
	}
	if params.Scheduler == nil {
		return nil, errors.New("propagation scheduler is required")
	}
	audit := params.Audit
	if audit == nil {
		audit = NewAuditRecorder(params.Logger, nil, nil)
	}
	delay := params.StageTwoDelay
	if delay == nil {
		delay = func() time.Duration { return defaultStageTwoDelay }
	}
	return &Reconciler{
		logg:          params.Logger,
		matcher:       params.Matcher,
		parcels:       params.Parcels,
		sessions:      params.Sessions,
		propagator:    params.Propagator,
		scheduler:     params.Scheduler,
		audit:         audit,
		stageTwoDelay: delay,
		now:           time.Now,
	}, nil
}

// SubmitScan receives a parcel exactly once. Unknown tracking numbers yield
// NotFound and repeated scans yield Conflict; neither mutates anything.
func (r *Reconciler) SubmitScan(ctx context.Context, input ScanInput) (*ScanResult, error) {
	trackingNumber := strings.TrimSpace(input.TrackingNumber)
	operatorID := strings.TrimSpace(input.OperatorID)
	operatorName := strings.TrimSpace(input.OperatorName)
	now := r.now().UTC()

	ctx = r.logg.WithOperatorID(ctx, operatorID)
	audit := ScanAudit{TrackingNumber: trackingNumber, OperatorID: operatorID, At: now}

	if trackingNumber == "" {
		err := pkgerrors.New(pkgerrors.CodeValidation, "tracking number is required")
		audit.Outcome, audit.Err = OutcomeInvalid, err
		r.audit.RecordScan(ctx, audit)
		return nil, err
	}

	match, err := r.matcher.FindParcel(ctx, trackingNumber)
	if err != nil {
		return nil, r.reject(ctx, audit, operatorName, err)
	}
	audit.ManifestNumber = match.Manifest.ManifestNumber

	receivedAt := now
	if input.Timestamp != nil && !input.Timestamp.IsZero() {
		receivedAt = input.Timestamp.UTC()
	}
	receivedBy := operatorName
	if receivedBy == "" {
		receivedBy = operatorID
	}
	entry := types.ScanHistoryEntry{
		UserID:    operatorID,
		UserName:  operatorName,
		Timestamp: receivedAt,
		Action:    enums.ScanActionReceived,
	}

	parcel, err := r.receive(ctx, match.Parcel, receivedAt, receivedBy, operatorID, operatorName, entry)
	if err != nil {
		return nil, r.reject(ctx, audit, operatorName, err)
	}

	audit.Outcome = OutcomeSuccess
	r.audit.RecordScan(ctx, audit)
	r.recordSession(ctx, operatorID, operatorName, true)

	result := &ScanResult{
		Parcel:         manifests.NewParcelDTO(*parcel),
		ManifestNumber: match.Manifest.ManifestNumber,
		ParcelIndex:    match.Index,
		Message:        fmt.Sprintf("Parcel %s received for %s (manifest %s)", trackingNumber, parcel.ConsigneeName, match.Manifest.ManifestNumber),
	}

	if input.ManifestNumber != "" && strings.TrimSpace(input.ManifestNumber) != match.Manifest.ManifestNumber {
		result.ManifestMismatch = true
		logCtx := r.logg.WithTrackingNumber(ctx, trackingNumber)
		logCtx = r.logg.WithFields(logCtx, map[string]any{
			"expected_manifest": strings.TrimSpace(input.ManifestNumber),
			"owning_manifest":   match.Manifest.ManifestNumber,
		})
		r.logg.Warn(logCtx, "scanned parcel belongs to a different manifest")
	}

	result.Propagation = r.propagator.Propagate(ctx, trackingNumber, enums.StageCustomClearing.String())

	runAt := now.Add(r.stageTwoDelay())
	task, err := r.scheduler.Schedule(ctx, trackingNumber, enums.StageAtWarehouse, runAt)
	if err != nil {
		r.logg.Error(r.logg.WithTrackingNumber(ctx, trackingNumber), "failed to schedule warehouse stage", err)
	} else {
		result.NextStage = task
	}

	return result, nil
}

// receive writes the received state with a version check, reloading when an
// ingestion update bumped the version in between.
func (r *Reconciler) receive(ctx context.Context, parcel models.Parcel, receivedAt time.Time, receivedBy, operatorID, operatorName string, entry types.ScanHistoryEntry) (*models.Parcel, error) {
	for attempt := 0; attempt < maxReceiveAttempts; attempt++ {
		if parcel.Received {
			return nil, alreadyReceived(parcel)
		}

		update := manifests.ReceiveUpdate{
			ReceivedAt:    receivedAt,
			ReceivedBy:    receivedBy,
			ScannedBy:     operatorID,
			ScannedByUser: operatorName,
			History:       parcel.ScanHistory.Append(entry),
		}
		ok, err := r.parcels.MarkReceived(ctx, parcel.ID, parcel.Version, update)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "persist scan")
		}
		if ok {
			at := update.ReceivedAt
			parcel.Received = true
			parcel.ReceivedAt = &at
			parcel.ReceivedBy = update.ReceivedBy
			parcel.ScannedBy = update.ScannedBy
			parcel.ScannedByUser = update.ScannedByUser
			parcel.ScanHistory = update.History
			parcel.Version++
			return &parcel, nil
		}

		fresh, err := r.parcels.FindParcelByID(ctx, parcel.ID)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "reload parcel")
		}
		parcel = *fresh
	}
	return nil, pkgerrors.New(pkgerrors.CodeConflict, fmt.Sprintf("parcel %s changed while scanning; scan again", parcel.TrackingNumber))
}

func (r *Reconciler) reject(ctx context.Context, audit ScanAudit, operatorName string, err error) error {
	switch pkgerrors.CodeOf(err) {
	case pkgerrors.CodeNotFound:
		audit.Outcome = OutcomeNotFound
	case pkgerrors.CodeConflict:
		audit.Outcome = OutcomeConflict
	case pkgerrors.CodeValidation:
		audit.Outcome = OutcomeInvalid
	default:
		audit.Outcome = OutcomeError
	}
	audit.Err = err
	r.audit.RecordScan(ctx, audit)
	if audit.Outcome != OutcomeInvalid {
		r.recordSession(ctx, audit.OperatorID, operatorName, false)
	}
	return err
}

func (r *Reconciler) recordSession(ctx context.Context, operatorID, operatorName string, success bool) {
	if err := r.sessions.RecordOutcome(ctx, operatorID, operatorName, success); err != nil {
		r.logg.Error(ctx, "failed to record session outcome", err)
	}
}

func alreadyReceived(parcel models.Parcel) error {
	details := map[string]any{
		"trackingNumber": parcel.TrackingNumber,
		"receivedBy":     parcel.ReceivedBy,
	}
	if parcel.ReceivedAt != nil {
		details["receivedAt"] = parcel.ReceivedAt.UTC()
	}
	return pkgerrors.New(pkgerrors.CodeConflict, fmt.Sprintf("parcel %s was already received by %s", parcel.TrackingNumber, parcel.ReceivedBy)).
		WithDetails(details)
}
