// Package engine evaluates workflow triggers against work-order state and
// dispatches their notification actions. The event path (Matcher) is called
// synchronously by the work-order lifecycle; the scan path lives in
// internal/scanner. Both funnel into the Dispatcher.
package engine

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jemiko1/crm-triggers/internal/domain"
	"github.com/jemiko1/crm-triggers/internal/notify"
	"github.com/jemiko1/crm-triggers/internal/template"
)

// TriggerStore returns active triggers of one type that are in scope for a
// work-order type (a trigger with no work-order type is a wildcard).
// Returned triggers carry their active actions ordered by sort order.
type TriggerStore interface {
	ListActive(ctx context.Context, t domain.TriggerType, workOrderType string) ([]domain.Trigger, error)
}

// EmployeeDirectory resolves recipient identities. All lookups return
// active employees only.
type EmployeeDirectory interface {
	EmployeesByIDs(ctx context.Context, ids []uuid.UUID) ([]domain.Employee, error)
	EmployeesByPositions(ctx context.Context, positionIDs []uuid.UUID) ([]domain.Employee, error)
	AssigneesOf(ctx context.Context, workOrderID uuid.UUID) ([]uuid.UUID, error)

	// WorkflowPositions returns every position referenced by any workflow
	// step assignment; the RESPONSIBLE target is this broad fallback
	// audience, not scoped to a single work order.
	WorkflowPositions(ctx context.Context) ([]uuid.UUID, error)
}

// NotificationStore persists in-app notifications. Implementations must
// deduplicate on (work order, employee) so inserting the same pair twice is
// a no-op, not an error.
type NotificationStore interface {
	InsertNotification(ctx context.Context, n domain.Notification) error
}

// Enqueuer hands rendered messages to the notification worker pool without
// blocking.
type Enqueuer interface {
	Enqueue(msg notify.Message) error
}

// StatsSink records best-effort firing statistics for configuration
// screens.
type StatsSink interface {
	FiringRecorded(ctx context.Context, triggerID uuid.UUID, triggerType domain.TriggerType)
}

// MetricsSink records engine metrics. Methods must be non-blocking and
// fire-and-forget.
type MetricsSink interface {
	TriggerMatched(triggerType string)
	TriggerFired(triggerType string)
	ActionFailed(actionType string)
	MessageDropped()
}

// Dispatcher executes a matched trigger's actions against a work order:
// resolve targets, render text, hand off per channel. Failures are isolated
// per action so one broken action never blocks the rest of the trigger.
type Dispatcher struct {
	directory     EmployeeDirectory
	templates     template.Source
	notifications NotificationStore
	queue         Enqueuer
	stats         StatsSink   // optional, nil = disabled
	metrics       MetricsSink // optional, nil = disabled
	logger        *zap.Logger
	clock         func() time.Time
}

// NewDispatcher creates a Dispatcher.
func NewDispatcher(
	directory EmployeeDirectory,
	templates template.Source,
	notifications NotificationStore,
	queue Enqueuer,
	logger *zap.Logger,
) *Dispatcher {
	return &Dispatcher{
		directory:     directory,
		templates:     templates,
		notifications: notifications,
		queue:         queue,
		logger:        logger,
		clock:         time.Now,
	}
}

// WithStats attaches a firing statistics sink.
func (d *Dispatcher) WithStats(sink StatsSink) *Dispatcher {
	d.stats = sink
	return d
}

// WithMetrics attaches a metrics sink.
func (d *Dispatcher) WithMetrics(sink MetricsSink) *Dispatcher {
	d.metrics = sink
	return d
}

// Execute runs the trigger's active actions in sort order. Every per-action
// failure (target resolution, rendering, handoff) is logged with the
// trigger name and swallowed; subsequent actions still run. Execute itself
// never returns an error and never panics.
func (d *Dispatcher) Execute(ctx context.Context, trigger domain.Trigger, wo domain.WorkOrder) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("engine: panic during dispatch",
				zap.String("trigger", trigger.Name),
				zap.Any("panic", r))
		}
	}()

	if d.metrics != nil {
		d.metrics.TriggerFired(string(trigger.Type))
	}
	if d.stats != nil {
		d.stats.FiringRecorded(ctx, trigger.ID, trigger.Type)
	}

	vars := map[string]string{
		"workOrderNumber": strconv.FormatInt(wo.Number, 10),
		"title":           wo.Title,
		"type":            wo.Type,
	}

	for _, action := range trigger.Actions {
		if !action.Active {
			continue
		}
		if err := d.executeAction(ctx, trigger, action, wo, vars); err != nil {
			if d.metrics != nil {
				d.metrics.ActionFailed(string(action.Type))
			}
			d.logger.Warn("engine: action failed",
				zap.String("trigger", trigger.Name),
				zap.String("action_type", string(action.Type)),
				zap.String("work_order_id", wo.ID.String()),
				zap.Error(err))
		}
	}
}

func (d *Dispatcher) executeAction(ctx context.Context, trigger domain.Trigger, action domain.Action, wo domain.WorkOrder, vars map[string]string) error {
	recipients, err := d.resolveTargets(ctx, action, wo)
	if err != nil {
		return fmt.Errorf("resolve targets: %w", err)
	}
	if len(recipients) == 0 {
		// An empty audience is not an error; the action just has no one
		// to notify right now.
		d.logger.Debug("engine: no recipients, action skipped",
			zap.String("trigger", trigger.Name),
			zap.String("target", string(action.Target)))
		return nil
	}

	subject, body := action.Subject, action.Body
	if action.TemplateCode != "" {
		tpl, err := d.templates.Lookup(ctx, action.TemplateCode)
		if err != nil {
			return fmt.Errorf("template %q: %w", action.TemplateCode, err)
		}
		subject, body = tpl.Subject, tpl.Body
	}
	subject = template.Render(subject, vars)
	body = template.Render(body, vars)

	switch action.Type {
	case domain.ActionEmail:
		return d.enqueue(trigger, wo, notify.ChannelEmail, recipients, subject, body)
	case domain.ActionSMS:
		return d.enqueue(trigger, wo, notify.ChannelSMS, recipients, subject, body)
	case domain.ActionSystemNotification:
		return d.insertNotifications(ctx, wo, recipients, subject, body)
	default:
		return fmt.Errorf("unknown action type %q", action.Type)
	}
}

func (d *Dispatcher) enqueue(trigger domain.Trigger, wo domain.WorkOrder, channel notify.Channel, recipients []domain.Employee, subject, body string) error {
	err := d.queue.Enqueue(notify.Message{
		TriggerName: trigger.Name,
		WorkOrderID: wo.ID,
		Channel:     channel,
		Recipients:  recipients,
		Subject:     subject,
		Body:        body,
	})
	if err != nil {
		if d.metrics != nil {
			d.metrics.MessageDropped()
		}
		return fmt.Errorf("enqueue %s: %w", channel, err)
	}
	return nil
}

// insertNotifications writes one in-app row per recipient. The store
// deduplicates on (work order, employee). A failed insert is logged and the
// remaining recipients still get theirs.
func (d *Dispatcher) insertNotifications(ctx context.Context, wo domain.WorkOrder, recipients []domain.Employee, subject, body string) error {
	now := d.clock().UTC()
	var failed int
	for _, r := range recipients {
		n := domain.Notification{
			ID:          uuid.New(),
			WorkOrderID: wo.ID,
			EmployeeID:  r.ID,
			Subject:     subject,
			Body:        body,
			CreatedAt:   now,
		}
		if err := d.notifications.InsertNotification(ctx, n); err != nil {
			failed++
			d.logger.Warn("engine: in-app notification insert failed",
				zap.String("work_order_id", wo.ID.String()),
				zap.String("employee_id", r.ID.String()),
				zap.Error(err))
		}
	}
	if failed == len(recipients) {
		return fmt.Errorf("all %d in-app inserts failed", failed)
	}
	return nil
}

// resolveTargets maps the action's target specification to concrete
// employees.
func (d *Dispatcher) resolveTargets(ctx context.Context, action domain.Action, wo domain.WorkOrder) ([]domain.Employee, error) {
	switch action.Target {
	case domain.TargetAssignedEmployees:
		ids, err := d.directory.AssigneesOf(ctx, wo.ID)
		if err != nil {
			return nil, err
		}
		if len(ids) == 0 {
			return nil, nil
		}
		return d.directory.EmployeesByIDs(ctx, ids)

	case domain.TargetPosition:
		if len(action.PositionIDs) == 0 {
			return nil, fmt.Errorf("%w: POSITION target without position ids", domain.ErrInvalidCondition)
		}
		return d.directory.EmployeesByPositions(ctx, action.PositionIDs)

	case domain.TargetResponsible:
		positions, err := d.directory.WorkflowPositions(ctx)
		if err != nil {
			return nil, err
		}
		if len(positions) == 0 {
			return nil, nil
		}
		return d.directory.EmployeesByPositions(ctx, positions)

	default:
		return nil, fmt.Errorf("unknown target type %q", action.Target)
	}
}
