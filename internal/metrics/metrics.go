package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "aml"

// Metrics holds the screening collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	RulesFired           *prometheus.CounterVec
	TransactionsScreened prometheus.Counter
	BatchRuns            *prometheus.CounterVec
	EnrichmentAttempts   *prometheus.CounterVec
	EnrichmentLatency    prometheus.Histogram
	EnrichmentCost       prometheus.Counter
}

// New creates the collectors and registers them with reg
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		RulesFired: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "screening",
			Name:      "rules_fired_total",
			Help:      "Flags created, by rule",
		}, []string{"rule"}),
		TransactionsScreened: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "screening",
			Name:      "transactions_screened_total",
			Help:      "Transactions evaluated against the rule catalog",
		}),
		BatchRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "screening",
			Name:      "runs_total",
			Help:      "Orchestrator runs, by mode and result",
		}, []string{"mode", "result"}),
		EnrichmentAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "enrichment",
			Name:      "attempts_total",
			Help:      "Enrichment attempts, by outcome",
		}, []string{"outcome"}),
		EnrichmentLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "enrichment",
			Name:      "latency_seconds",
			Help:      "Reasoning service round-trip latency",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 40, 60},
		}),
		EnrichmentCost: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "enrichment",
			Name:      "cost_usd_total",
			Help:      "Estimated reasoning service spend in USD",
		}),
	}

	reg.MustRegister(
		m.RulesFired,
		m.TransactionsScreened,
		m.BatchRuns,
		m.EnrichmentAttempts,
		m.EnrichmentLatency,
		m.EnrichmentCost,
	)
	return m
}

func (m *Metrics) RuleFired(rule string) {
	if m == nil {
		return
	}
	m.RulesFired.WithLabelValues(rule).Inc()
}

func (m *Metrics) TransactionScreened() {
	if m == nil {
		return
	}
	m.TransactionsScreened.Inc()
}

func (m *Metrics) RunFinished(mode string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.BatchRuns.WithLabelValues(mode, result).Inc()
}

func (m *Metrics) EnrichmentAttempt(outcome string, latency time.Duration, cost float64) {
	if m == nil {
		return
	}
	m.EnrichmentAttempts.WithLabelValues(outcome).Inc()
	m.EnrichmentLatency.Observe(latency.Seconds())
	if cost > 0 {
		m.EnrichmentCost.Add(cost)
	}
}
