package engine

import (
	"context"

	"go.uber.org/zap"

	"github.com/jemiko1/crm-triggers/internal/domain"
)

// Executor runs a matched trigger's actions.
type Executor interface {
	Execute(ctx context.Context, trigger domain.Trigger, wo domain.WorkOrder)
}

// Matcher is the event-driven entry point, invoked synchronously from the
// work-order lifecycle's own transaction boundary. Its methods never return
// errors and never panic outward: automation health must not affect the
// triggering business operation.
//
// Event-driven triggers are deliberately not gated by the firing ledger.
// Every transition is treated as a distinct, legitimate event; if the
// lifecycle delivers the same transition twice, notifications duplicate.
type Matcher struct {
	triggers   TriggerStore
	dispatcher Executor
	metrics    MetricsSink // optional, nil = disabled
	logger     *zap.Logger
}

// NewMatcher creates a Matcher.
func NewMatcher(triggers TriggerStore, dispatcher Executor, logger *zap.Logger) *Matcher {
	return &Matcher{
		triggers:   triggers,
		dispatcher: dispatcher,
		logger:     logger,
	}
}

// WithMetrics attaches a metrics sink.
func (m *Matcher) WithMetrics(sink MetricsSink) *Matcher {
	m.metrics = sink
	return m
}

// OnStatusChange evaluates STATUS_CHANGE triggers for the work order's
// type. A trigger matches when its condition's from/to sides are each
// either unset or equal to the actual transition.
func (m *Matcher) OnStatusChange(ctx context.Context, wo domain.WorkOrder, fromStatus, toStatus string) {
	defer m.guard("status change")

	triggers, err := m.triggers.ListActive(ctx, domain.TriggerStatusChange, wo.Type)
	if err != nil {
		m.logger.Error("engine: listing status change triggers failed",
			zap.String("work_order_id", wo.ID.String()), zap.Error(err))
		return
	}

	for _, trigger := range triggers {
		cond := trigger.Condition.StatusChange
		if cond == nil {
			m.logger.Warn("engine: status change trigger without condition, skipped",
				zap.String("trigger", trigger.Name))
			continue
		}
		if !cond.Matches(fromStatus, toStatus) {
			continue
		}
		m.matched(trigger)
		m.dispatcher.Execute(ctx, trigger, wo)
	}
}

// OnFieldChange evaluates FIELD_CHANGE triggers; a trigger matches when its
// configured field is among the changed field names.
func (m *Matcher) OnFieldChange(ctx context.Context, wo domain.WorkOrder, changedFields []string) {
	defer m.guard("field change")

	if len(changedFields) == 0 {
		return
	}

	triggers, err := m.triggers.ListActive(ctx, domain.TriggerFieldChange, wo.Type)
	if err != nil {
		m.logger.Error("engine: listing field change triggers failed",
			zap.String("work_order_id", wo.ID.String()), zap.Error(err))
		return
	}

	changed := make(map[string]bool, len(changedFields))
	for _, f := range changedFields {
		changed[f] = true
	}

	for _, trigger := range triggers {
		cond := trigger.Condition.FieldChange
		if cond == nil {
			m.logger.Warn("engine: field change trigger without condition, skipped",
				zap.String("trigger", trigger.Name))
			continue
		}
		if !changed[cond.Field] {
			continue
		}
		m.matched(trigger)
		m.dispatcher.Execute(ctx, trigger, wo)
	}
}

func (m *Matcher) matched(trigger domain.Trigger) {
	if m.metrics != nil {
		m.metrics.TriggerMatched(string(trigger.Type))
	}
	m.logger.Info("engine: trigger matched",
		zap.String("trigger", trigger.Name),
		zap.String("trigger_type", string(trigger.Type)))
}

// guard swallows panics so the caller's transaction always completes.
func (m *Matcher) guard(path string) {
	if r := recover(); r != nil {
		m.logger.Error("engine: panic on event path",
			zap.String("path", path), zap.Any("panic", r))
	}
}
