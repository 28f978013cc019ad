package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// ScanMetrics counts scan attempts by outcome (success, not_found, conflict,
// invalid, error).
type ScanMetrics struct {
	attempts *prometheus.CounterVec
}

// NewScanMetrics registers the scan metrics on the provided registerer.
func NewScanMetrics(reg prometheus.Registerer) *ScanMetrics {
	if reg == nil {
		return &ScanMetrics{}
	}
	attempts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "intake_scan_attempts_total",
		Help: "Scan attempts grouped by outcome.",
	}, []string{"outcome"})
	reg.MustRegister(attempts)
	return &ScanMetrics{attempts: attempts}
}

// IncAttempt increments the attempt counter for outcome.
func (s *ScanMetrics) IncAttempt(outcome string) {
	if s == nil || s.attempts == nil {
		return
	}
	s.attempts.WithLabelValues(normalizeLabel(outcome)).Inc()
}
