package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics_Record(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.RuleFired("HIGH_VELOCITY")
	m.RuleFired("HIGH_VELOCITY")
	m.TransactionScreened()
	m.RunFinished("batch", nil)
	m.RunFinished("single", errors.New("boom"))
	m.EnrichmentAttempt("completed", 2*time.Second, 0.03)
	m.EnrichmentAttempt("transport_error", time.Second, 0)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.RulesFired.WithLabelValues("HIGH_VELOCITY")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.TransactionsScreened))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.BatchRuns.WithLabelValues("single", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.EnrichmentAttempts.WithLabelValues("completed")))
	assert.InDelta(t, 0.03, testutil.ToFloat64(m.EnrichmentCost), 1e-9)
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RuleFired("X")
		m.TransactionScreened()
		m.RunFinished("batch", nil)
		m.EnrichmentAttempt("completed", time.Second, 1)
	})
}
