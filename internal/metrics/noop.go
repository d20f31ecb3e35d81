package metrics

import "time"

// NoopSink is a no-op implementation of Sink, used when metrics are
// disabled so callers can skip nil checks.
type NoopSink struct{}

// NewNoopSink returns a no-op metrics sink.
func NewNoopSink() *NoopSink {
	return &NoopSink{}
}

func (n *NoopSink) TickStarted()                                             {}
func (n *NoopSink) TickCompleted(duration time.Duration, firings int, err error) {}
func (n *NoopSink) TickSkipped()                                             {}
func (n *NoopSink) TriggerMatched(triggerType string)                        {}
func (n *NoopSink) TriggerFired(triggerType string)                          {}
func (n *NoopSink) ActionFailed(actionType string)                           {}
func (n *NoopSink) MessageDropped()                                          {}
func (n *NoopSink) DispatchOutcome(channel, outcome string)                  {}
func (n *NoopSink) QueueDepth(depth int)                                     {}
func (n *NoopSink) QueueCapacity(capacity int)                               {}
