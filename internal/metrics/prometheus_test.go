package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestPrometheusSink_Counters(t *testing.T) {
	reg := prometheus.NewRegistry()
	s := NewPrometheusSink(reg, zap.NewNop())

	s.TickStarted()
	s.TickStarted()
	s.TickSkipped()
	s.TickCompleted(250*time.Millisecond, 3, nil)
	s.TriggerFired("INACTIVITY")
	s.DispatchOutcome("EMAIL", OutcomeSuccess)
	s.QueueDepth(7)
	s.QueueCapacity(256)

	assert.Equal(t, float64(2), testutil.ToFloat64(s.ticksTotal))
	assert.Equal(t, float64(1), testutil.ToFloat64(s.ticksSkippedTotal))
	assert.Equal(t, float64(3), testutil.ToFloat64(s.firingsTotal))
	assert.Equal(t, float64(1), testutil.ToFloat64(s.triggersFiredTotal.WithLabelValues("INACTIVITY")))
	assert.Equal(t, float64(1), testutil.ToFloat64(s.dispatchOutcomesTotal.WithLabelValues("EMAIL", OutcomeSuccess)))
	assert.Equal(t, float64(7), testutil.ToFloat64(s.queueDepth))
	assert.Equal(t, float64(256), testutil.ToFloat64(s.queueCapacity))
}

func TestPrometheusSink_DoubleRegistrationIsSafe(t *testing.T) {
	reg := prometheus.NewRegistry()
	NewPrometheusSink(reg, zap.NewNop())

	assert.NotPanics(t, func() {
		NewPrometheusSink(reg, zap.NewNop())
	})
}

func TestNoopSink_ImplementsSink(t *testing.T) {
	var _ Sink = NewNoopSink()
	var _ Sink = (*PrometheusSink)(nil)
}
