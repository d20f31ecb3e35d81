package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// PrometheusSink implements Sink using the Prometheus client library.
// All methods are non-blocking. Registration errors are logged but never
// propagated; a metric that fails to register simply stops being exported.
type PrometheusSink struct {
	logger *zap.Logger

	ticksTotal        prometheus.Counter
	ticksSkippedTotal prometheus.Counter
	tickDuration      prometheus.Histogram
	firingsTotal      prometheus.Counter

	triggersMatchedTotal *prometheus.CounterVec
	triggersFiredTotal   *prometheus.CounterVec
	actionFailuresTotal  *prometheus.CounterVec
	droppedTotal         prometheus.Counter

	dispatchOutcomesTotal *prometheus.CounterVec
	queueDepth            prometheus.Gauge
	queueCapacity         prometheus.Gauge
}

// NewPrometheusSink creates a Prometheus metrics sink registered on reg.
func NewPrometheusSink(reg prometheus.Registerer, logger *zap.Logger) *PrometheusSink {
	s := &PrometheusSink{logger: logger}

	s.ticksTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "triggerd_scanner_ticks_total",
		Help: "Total number of scan ticks that ran.",
	})
	s.ticksSkippedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "triggerd_scanner_ticks_skipped_total",
		Help: "Total number of scan ticks skipped because the previous tick was still running.",
	})
	s.tickDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "triggerd_scanner_tick_duration_seconds",
		Help:    "Duration of each scan tick in seconds.",
		Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30},
	})
	s.firingsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "triggerd_scanner_firings_total",
		Help: "Total number of firing records written by the scanner.",
	})

	s.triggersMatchedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "triggerd_engine_triggers_matched_total",
		Help: "Total number of event-driven trigger matches.",
	}, []string{"trigger_type"})
	s.triggersFiredTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "triggerd_engine_triggers_fired_total",
		Help: "Total number of trigger executions (both paths).",
	}, []string{"trigger_type"})
	s.actionFailuresTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "triggerd_engine_action_failures_total",
		Help: "Total number of failed trigger actions.",
	}, []string{"action_type"})
	s.droppedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "triggerd_notify_messages_dropped_total",
		Help: "Total number of messages dropped because the notify queue was full.",
	})

	s.dispatchOutcomesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "triggerd_notify_dispatch_outcomes_total",
		Help: "Final per-message dispatch outcomes by channel.",
	}, []string{"channel", "outcome"})
	s.queueDepth = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "triggerd_notify_queue_depth",
		Help: "Current number of buffered notification messages.",
	})
	s.queueCapacity = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "triggerd_notify_queue_capacity",
		Help: "Capacity of the notification queue buffer.",
	})

	for name, c := range map[string]prometheus.Collector{
		"triggerd_scanner_ticks_total":           s.ticksTotal,
		"triggerd_scanner_ticks_skipped_total":   s.ticksSkippedTotal,
		"triggerd_scanner_tick_duration_seconds": s.tickDuration,
		"triggerd_scanner_firings_total":         s.firingsTotal,
		"triggerd_engine_triggers_matched_total": s.triggersMatchedTotal,
		"triggerd_engine_triggers_fired_total":   s.triggersFiredTotal,
		"triggerd_engine_action_failures_total":  s.actionFailuresTotal,
		"triggerd_notify_messages_dropped_total": s.droppedTotal,
		"triggerd_notify_dispatch_outcomes_total": s.dispatchOutcomesTotal,
		"triggerd_notify_queue_depth":             s.queueDepth,
		"triggerd_notify_queue_capacity":          s.queueCapacity,
	} {
		if err := reg.Register(c); err != nil {
			s.logger.Warn("metrics: registration failed", zap.String("metric", name), zap.Error(err))
		}
	}

	return s
}

func (s *PrometheusSink) TickStarted() {
	s.ticksTotal.Inc()
}

func (s *PrometheusSink) TickCompleted(duration time.Duration, firings int, err error) {
	s.tickDuration.Observe(duration.Seconds())
	s.firingsTotal.Add(float64(firings))
}

func (s *PrometheusSink) TickSkipped() {
	s.ticksSkippedTotal.Inc()
}

func (s *PrometheusSink) TriggerMatched(triggerType string) {
	s.triggersMatchedTotal.WithLabelValues(triggerType).Inc()
}

func (s *PrometheusSink) TriggerFired(triggerType string) {
	s.triggersFiredTotal.WithLabelValues(triggerType).Inc()
}

func (s *PrometheusSink) ActionFailed(actionType string) {
	s.actionFailuresTotal.WithLabelValues(actionType).Inc()
}

func (s *PrometheusSink) MessageDropped() {
	s.droppedTotal.Inc()
}

func (s *PrometheusSink) DispatchOutcome(channel, outcome string) {
	s.dispatchOutcomesTotal.WithLabelValues(channel, outcome).Inc()
}

func (s *PrometheusSink) QueueDepth(depth int) {
	s.queueDepth.Set(float64(depth))
}

func (s *PrometheusSink) QueueCapacity(capacity int) {
	s.queueCapacity.Set(float64(capacity))
}
