package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PropagationMetrics records external status pushes and deferred task churn.
type PropagationMetrics struct {
	calls    *prometheus.CounterVec
	duration *prometheus.HistogramVec
	tasks    *prometheus.CounterVec
}

// NewPropagationMetrics registers the propagation metrics on the provided registerer.
func NewPropagationMetrics(reg prometheus.Registerer) *PropagationMetrics {
	if reg == nil {
		return &PropagationMetrics{}
	}
	calls := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "intake_propagation_calls_total",
		Help: "External status pushes grouped by stage and result.",
	}, []string{"stage", "result"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "intake_propagation_call_duration_seconds",
		Help:    "Latency of external status pushes.",
		Buckets: prometheus.DefBuckets,
	}, []string{"stage"})
	tasks := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "intake_propagation_tasks_total",
		Help: "Deferred propagation task transitions grouped by status.",
	}, []string{"status"})
	reg.MustRegister(calls, duration, tasks)
	return &PropagationMetrics{
		calls:    calls,
		duration: duration,
		tasks:    tasks,
	}
}

// ObserveCall records one external push.
func (p *PropagationMetrics) ObserveCall(stage, result string, elapsed time.Duration) {
	if p == nil || p.calls == nil {
		return
	}
	p.calls.WithLabelValues(normalizeLabel(stage), normalizeLabel(result)).Inc()
	p.duration.WithLabelValues(normalizeLabel(stage)).Observe(elapsed.Seconds())
}

// IncTask counts a task entering status.
func (p *PropagationMetrics) IncTask(status string) {
	if p == nil || p.tasks == nil {
		return
	}
	p.tasks.WithLabelValues(normalizeLabel(status)).Inc()
}
