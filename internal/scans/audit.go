package scans

import (
	"context"
	"time"

	"github.com/angelmondragon/parcel-intake-backend/pkg/logger"
	"github.com/angelmondragon/parcel-intake-backend/pkg/metrics"
)

// ActivityStream is the recent-activity counter fed by scan attempts.
const ActivityStream = "scans"

const (
	OutcomeSuccess  = "success"
	OutcomeNotFound = "not_found"
	OutcomeConflict = "conflict"
	OutcomeInvalid  = "invalid"
	OutcomeError    = "error"
)

// ScanAudit describes one scan attempt.
type ScanAudit struct {
	TrackingNumber string
	OperatorID     string
	ManifestNumber string
	Outcome        string
	At             time.Time
	Err            error
}

// AuditRecorder receives every scan attempt.
type AuditRecorder interface {
	RecordScan(ctx context.Context, audit ScanAudit)
}

type activityStore interface {
	RecordActivity(ctx context.Context, stream string, at time.Time) error
}

type auditRecorder struct {
	logg     *logger.Logger
	metrics  *metrics.ScanMetrics
	activity activityStore
}

// NewAuditRecorder logs each attempt, counts it by outcome and bumps the
// recent-activity counter. Metrics and activity are optional.
func NewAuditRecorder(logg *logger.Logger, m *metrics.ScanMetrics, activity activityStore) AuditRecorder {
	return &auditRecorder{logg: logg, metrics: m, activity: activity}
}

func (a *auditRecorder) RecordScan(ctx context.Context, audit ScanAudit) {
	a.metrics.IncAttempt(audit.Outcome)

	if a.logg != nil {
		logCtx := a.logg.WithTrackingNumber(ctx, audit.TrackingNumber)
		logCtx = a.logg.WithFields(logCtx, map[string]any{
			"event":       "scan.attempt",
			"operator_id": audit.OperatorID,
			"outcome":     audit.Outcome,
		})
		if audit.ManifestNumber != "" {
			logCtx = a.logg.WithManifestNumber(logCtx, audit.ManifestNumber)
		}
		switch audit.Outcome {
		case OutcomeSuccess:
			a.logg.Info(logCtx, "scan accepted")
		case OutcomeError:
			a.logg.Error(logCtx, "scan failed", audit.Err)
		default:
			if audit.Err != nil {
				logCtx = a.logg.WithField(logCtx, "reason", audit.Err.Error())
			}
			a.logg.Warn(logCtx, "scan rejected")
		}
	}

	if a.activity == nil {
		return
	}
	if err := a.activity.RecordActivity(ctx, ActivityStream, audit.At); err != nil && a.logg != nil {
		a.logg.Error(ctx, "failed to record scan activity", err)
	}
}
