package metrics

import "github.com/prometheus/client_golang/prometheus"

// AccessMetrics exposes counters for lead visibility decisions and unlocks.
type AccessMetrics struct {
	decisionsTotal *prometheus.CounterVec
	unlocksTotal   *prometheus.CounterVec
	creditsSpent   prometheus.Counter
}

func NewAccessMetrics(reg prometheus.Registerer) *AccessMetrics {
	m := &AccessMetrics{
		decisionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "proconnect",
			Subsystem: "access",
			Name:      "decisions_total",
			Help:      "Lead visibility decisions by access level",
		}, []string{"access_level"}),
		unlocksTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "proconnect",
			Subsystem: "access",
			Name:      "unlocks_total",
			Help:      "Lead unlock attempts by outcome",
		}, []string{"outcome"}),
		creditsSpent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "proconnect",
			Subsystem: "access",
			Name:      "credits_spent_total",
			Help:      "Credits spent on lead unlocks",
		}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.decisionsTotal, m.unlocksTotal, m.creditsSpent)
	return m
}

func (m *AccessMetrics) ObserveDecision(level string) {
	if m == nil {
		return
	}
	m.decisionsTotal.WithLabelValues(level).Inc()
}

func (m *AccessMetrics) ObserveUnlock(outcome string, credits int) {
	if m == nil {
		return
	}
	m.unlocksTotal.WithLabelValues(outcome).Inc()
	if credits > 0 {
		m.creditsSpent.Add(float64(credits))
	}
}

// DepositMetrics tracks deposit lifecycle transitions and reconciliation.
type DepositMetrics struct {
	transitionsTotal *prometheus.CounterVec
	matchesTotal     *prometheus.CounterVec
	approvalLatency  prometheus.Histogram
}

func NewDepositMetrics(reg prometheus.Registerer) *DepositMetrics {
	m := &DepositMetrics{
		transitionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "proconnect",
			Subsystem: "deposits",
			Name:      "transitions_total",
			Help:      "Deposit transitions by target status and purpose",
		}, []string{"status", "purpose"}),
		matchesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "proconnect",
			Subsystem: "deposits",
			Name:      "reconciliation_matches_total",
			Help:      "Bank transactions applied to deposits by result",
		}, []string{"result"}),
		approvalLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "proconnect",
			Subsystem: "deposits",
			Name:      "time_to_terminal_seconds",
			Help:      "Time from deposit creation to a terminal status",
			Buckets:   []float64{60, 300, 900, 3600, 4 * 3600, 24 * 3600, 72 * 3600},
		}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.transitionsTotal, m.matchesTotal, m.approvalLatency)
	return m
}

func (m *DepositMetrics) ObserveTransition(status, purpose string) {
	if m == nil {
		return
	}
	m.transitionsTotal.WithLabelValues(status, purpose).Inc()
}

func (m *DepositMetrics) ObserveMatch(result string) {
	if m == nil {
		return
	}
	m.matchesTotal.WithLabelValues(result).Inc()
}

func (m *DepositMetrics) ObserveTimeToTerminal(seconds float64) {
	if m == nil {
		return
	}
	m.approvalLatency.Observe(seconds)
}
