package propagation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/angelmondragon/parcel-intake-backend/pkg/config"
	pkgerrors "github.com/angelmondragon/parcel-intake-backend/pkg/errors"
	"github.com/angelmondragon/parcel-intake-backend/pkg/logger"
	"github.com/angelmondragon/parcel-intake-backend/pkg/logistics"
	"github.com/angelmondragon/parcel-intake-backend/pkg/metrics"
)

const defaultCallTimeout = 10 * time.Second

type statusPusher interface {
	PushStatus(ctx context.Context, update logistics.StatusUpdate) (*logistics.StatusResponse, error)
}

// Result is the outcome of one status push. Failures are reported here and
// never returned as errors.
type Result struct {
	Success bool   `json:"success"`
	Stage   string `json:"stage"`
	Status  string `json:"status"`
	Error   string `json:"error,omitempty"`
	Details any    `json:"details,omitempty"`
}

type PropagatorParams struct {
	Logger  *logger.Logger
	Client  statusPusher
	Metrics *metrics.PropagationMetrics
	Timeout time.Duration
}

// Propagator pushes parcel stage changes to the logistics provider.
type Propagator struct {
	logg    *logger.Logger
	client  statusPusher
	metrics *metrics.PropagationMetrics
	timeout time.Duration
	now     func() time.Time
}

// NewPropagator builds a propagator. A nil Client leaves it disabled: every
// call is logged and reported as unsuccessful.
func NewPropagator(params PropagatorParams) (*Propagator, error) {
	if params.Logger == nil {
		return nil, errors.New("logger is required")
	}
	timeout := params.Timeout
	if timeout <= 0 {
		timeout = defaultCallTimeout
	}
	return &Propagator{
		logg:    params.Logger,
		client:  params.Client,
		metrics: params.Metrics,
		timeout: timeout,
		now:     time.Now,
	}, nil
}

// NewConfiguredPropagator builds a propagator from logistics settings. Without
// an API key the propagator only logs and reports unsuccessful pushes.
func NewConfiguredPropagator(cfg config.LogisticsConfig, logg *logger.Logger, m *metrics.PropagationMetrics) (*Propagator, error) {
	params := PropagatorParams{Logger: logg, Metrics: m, Timeout: cfg.Timeout}
	if cfg.Enabled() {
		client, err := logistics.NewClient(
			cfg.APIKey,
			logistics.WithBaseURL(cfg.BaseURL),
			logistics.WithTimeout(cfg.Timeout),
		)
		if err != nil {
			return nil, fmt.Errorf("logistics client: %w", err)
		}
		params.Client = client
	}
	return NewPropagator(params)
}

// Enabled reports whether pushes reach the provider.
func (p *Propagator) Enabled() bool {
	return p != nil && p.client != nil
}

// Propagate pushes one stage for one parcel within the configured timeout.
func (p *Propagator) Propagate(ctx context.Context, trackingNumber, stageLabel string) Result {
	code := StatusCode(stageLabel)
	result := Result{Stage: stageLabel, Status: code}

	logCtx := p.logg.WithTrackingNumber(ctx, trackingNumber)
	logCtx = p.logg.WithFields(logCtx, map[string]any{"stage": stageLabel, "status": code})

	if !p.Enabled() {
		result.Error = "logistics integration not configured"
		p.logg.Warn(logCtx, "status propagation skipped")
		p.metrics.ObserveCall(stageLabel, "skipped", 0)
		return result
	}
	if strings.TrimSpace(trackingNumber) == "" {
		result.Error = "tracking number is required"
		p.metrics.ObserveCall(stageLabel, "invalid", 0)
		return result
	}

	callCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	start := time.Now()
	resp, err := p.client.PushStatus(callCtx, logistics.StatusUpdate{
		TrackingNumber: trackingNumber,
		Status:         code,
		StatusLabel:    stageLabel,
		Timestamp:      p.now().UTC(),
	})
	elapsed := time.Since(start)
	logCtx = p.logg.WithField(logCtx, "duration_ms", elapsed.Milliseconds())

	if err != nil {
		result.Error = err.Error()
		if typed := pkgerrors.As(err); typed != nil {
			result.Error = typed.Message()
			result.Details = typed.Details()
		}
		p.metrics.ObserveCall(stageLabel, "failure", elapsed)
		p.logg.Error(logCtx, "status propagation failed", err)
		return result
	}

	result.Success = true
	if resp != nil && len(resp.Body) > 0 {
		result.Details = resp.Body
	}
	p.metrics.ObserveCall(stageLabel, "success", elapsed)
	p.logg.Info(logCtx, fmt.Sprintf("status propagated: %s", code))
	return result
}
