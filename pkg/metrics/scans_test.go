package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func TestScanMetricsCountsOutcomes(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewScanMetrics(reg)
	metrics.IncAttempt("success")
	metrics.IncAttempt("success")
	metrics.IncAttempt("conflict")
	metrics.IncAttempt("")

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	if got, err := fetchCounterValue(mfs, "intake_scan_attempts_total", "outcome", "success"); err != nil || got != 2 {
		t.Fatalf("expected success=2, got %f err=%v", got, err)
	}
	if got, err := fetchCounterValue(mfs, "intake_scan_attempts_total", "outcome", "conflict"); err != nil || got != 1 {
		t.Fatalf("expected conflict=1, got %f err=%v", got, err)
	}
	if got, err := fetchCounterValue(mfs, "intake_scan_attempts_total", "outcome", "unknown"); err != nil || got != 1 {
		t.Fatalf("expected empty outcome to map to unknown, got %f err=%v", got, err)
	}
}

func TestPropagationMetricsExportsCallsAndTasks(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewPropagationMetrics(reg)
	metrics.ObserveCall("At Warehouse", "failure", 120*time.Millisecond)
	metrics.IncTask("succeeded")

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	if got, err := fetchCounterValue(mfs, "intake_propagation_calls_total", "result", "failure"); err != nil || got != 1 {
		t.Fatalf("expected failure call=1, got %f err=%v", got, err)
	}
	if got, err := fetchHistogramSum(mfs, "intake_propagation_call_duration_seconds", "stage", "At Warehouse"); err != nil || got <= 0 {
		t.Fatalf("expected duration sum > 0, got %f err=%v", got, err)
	}
	if got, err := fetchCounterValue(mfs, "intake_propagation_tasks_total", "status", "succeeded"); err != nil || got != 1 {
		t.Fatalf("expected succeeded task=1, got %f err=%v", got, err)
	}
}

func TestNilRegistererIsNoop(t *testing.T) {
	NewScanMetrics(nil).IncAttempt("success")
	NewPropagationMetrics(nil).ObserveCall("x", "y", time.Second)
	var p *PropagationMetrics
	p.IncTask("failed")
}
