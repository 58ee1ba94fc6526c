package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
)

func TestAccessMetricsObserve(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewAccessMetrics(reg)
	m.ObserveDecision("locked")
	m.ObserveDecision("locked")
	m.ObserveUnlock("charged", 3)
	m.ObserveUnlock("subscription", 0)

	if got := testutil.ToFloat64(m.decisionsTotal.WithLabelValues("locked")); got != 2 {
		t.Fatalf("expected 2 locked decisions, got %v", got)
	}
	if got := testutil.ToFloat64(m.creditsSpent); got != 3 {
		t.Fatalf("expected 3 credits spent, got %v", got)
	}
}

func TestDepositMetricsObserve(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewDepositMetrics(reg)
	m.ObserveTransition("completed", "premium")
	m.ObserveMatch("verified")
	m.ObserveTimeToTerminal(120)

	var metric dto.Metric
	if err := m.approvalLatency.Write(&metric); err != nil {
		t.Fatalf("write histogram: %v", err)
	}
	if metric.GetHistogram().GetSampleCount() != 1 {
		t.Fatalf("expected one sample, got %d", metric.GetHistogram().GetSampleCount())
	}
	if got := testutil.ToFloat64(m.matchesTotal.WithLabelValues("verified")); got != 1 {
		t.Fatalf("expected one verified match, got %v", got)
	}
}

func TestMetricsNilSafe(t *testing.T) {
	var a *AccessMetrics
	a.ObserveDecision("locked")
	a.ObserveUnlock("charged", 1)

	var d *DepositMetrics
	d.ObserveTransition("failed", "credits")
	d.ObserveMatch("duplicate")
	d.ObserveTimeToTerminal(1)
}
