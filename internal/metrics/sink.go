package metrics

import "time"

// Sink defines the interface for recording engine metrics.
// All methods are fire-and-forget: implementations MUST NOT block or
// propagate errors. If the metrics backend is unavailable, implementations
// log warnings and continue.
type Sink interface {
	// Scanner metrics
	TickStarted()
	TickCompleted(duration time.Duration, firings int, err error)
	TickSkipped()

	// Matcher/dispatcher metrics
	TriggerMatched(triggerType string)
	TriggerFired(triggerType string)
	ActionFailed(actionType string)
	MessageDropped()

	// Notify worker metrics
	DispatchOutcome(channel, outcome string)
	QueueDepth(depth int)
	QueueCapacity(capacity int)
}

// Outcome constants for DispatchOutcome.
const (
	OutcomeSuccess = "success"
	OutcomeFailed  = "failed"
	OutcomeSkipped = "skipped"
)
