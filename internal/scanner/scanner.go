// Package scanner runs the time-driven side of the trigger engine: a
// periodic, mutually exclusive sweep that evaluates INACTIVITY and
// DEADLINE_PROXIMITY triggers over live work orders, gates every candidate
// through the firing ledger, and dispatches the survivors.
package scanner

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/jemiko1/crm-triggers/internal/domain"
)

// ErrAlreadyFired is returned by a FiringLedger insert when a record for
// the (trigger, work order) pair already exists. The scanner treats it as
// "someone else got there first", never as a failure.
var ErrAlreadyFired = errors.New("firing already recorded")

// TriggerSource lists active triggers of one type, regardless of work-order
// type; the scanner applies each trigger's own scope to its work-order
// query.
type TriggerSource interface {
	ListActiveByType(ctx context.Context, t domain.TriggerType) ([]domain.Trigger, error)
}

// WorkOrderSource is the bounded query collaborator over live work orders.
// A nil workOrderType means no type filter.
type WorkOrderSource interface {
	FindStuck(ctx context.Context, status string, updatedBefore time.Time, workOrderType *string, limit int) ([]domain.WorkOrder, error)
	FindApproachingDeadline(ctx context.Context, from, until time.Time, excludeStatuses []string, workOrderType *string, limit int) ([]domain.WorkOrder, error)
}

// FiringLedger is the one-shot latch per (trigger, work order) pair.
type FiringLedger interface {
	// InsertFiring records a firing; returns ErrAlreadyFired when the pair
	// already exists.
	InsertFiring(ctx context.Context, f domain.Firing) error
	// FiredWorkOrders reports which of the given work orders already have a
	// firing for the trigger.
	FiredWorkOrders(ctx context.Context, triggerID uuid.UUID, workOrderIDs []uuid.UUID) (map[uuid.UUID]bool, error)
}

// Dispatcher executes a fired trigger's actions.
type Dispatcher interface {
	Execute(ctx context.Context, trigger domain.Trigger, wo domain.WorkOrder)
}

// MetricsSink records scan metrics. Methods must be non-blocking.
type MetricsSink interface {
	TickStarted()
	TickCompleted(duration time.Duration, firings int, err error)
	TickSkipped()
}

// Config holds scanner settings.
type Config struct {
	// Interval between ticks. Ignored when CronSpec is set.
	Interval time.Duration
	// CronSpec optionally schedules ticks with a standard 5-field cron
	// expression instead of a fixed interval.
	CronSpec string
	// PageSize bounds each work-order query.
	PageSize int
	// DefaultInactivityMinutes applies when an INACTIVITY condition leaves
	// minutes unset.
	DefaultInactivityMinutes int
	// DefaultDeadlineMinutes applies when a DEADLINE_PROXIMITY condition
	// leaves minutes_before unset.
	DefaultDeadlineMinutes int
}

// DefaultConfig returns the stock scanner settings.
func DefaultConfig() Config {
	return Config{
		Interval:                 300 * time.Second,
		PageSize:                 200,
		DefaultInactivityMinutes: 120,
		DefaultDeadlineMinutes:   180,
	}
}

// Scanner evaluates time-based triggers. At most one tick runs at a time:
// a tick arriving while the previous one is still running is skipped
// entirely (not queued) and a warning recorded. Correctness does not depend
// on this guard; the ledger's uniqueness constraint is what prevents double
// firing even across processes.
type Scanner struct {
	cfg        Config
	triggers   TriggerSource
	workOrders WorkOrderSource
	ledger     FiringLedger
	dispatcher Dispatcher
	metrics    MetricsSink // optional, nil = disabled
	logger     *zap.Logger
	clock      func() time.Time
	running    atomic.Bool
}

// New creates a Scanner. Zero-valued config fields fall back to
// DefaultConfig values.
func New(cfg Config, triggers TriggerSource, workOrders WorkOrderSource, ledger FiringLedger, dispatcher Dispatcher, logger *zap.Logger) *Scanner {
	def := DefaultConfig()
	if cfg.Interval <= 0 {
		cfg.Interval = def.Interval
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = def.PageSize
	}
	if cfg.DefaultInactivityMinutes <= 0 {
		cfg.DefaultInactivityMinutes = def.DefaultInactivityMinutes
	}
	if cfg.DefaultDeadlineMinutes <= 0 {
		cfg.DefaultDeadlineMinutes = def.DefaultDeadlineMinutes
	}
	return &Scanner{
		cfg:        cfg,
		triggers:   triggers,
		workOrders: workOrders,
		ledger:     ledger,
		dispatcher: dispatcher,
		logger:     logger,
		clock:      time.Now,
	}
}

// WithMetrics attaches a metrics sink.
func (s *Scanner) WithMetrics(sink MetricsSink) *Scanner {
	s.metrics = sink
	return s
}

// Run ticks until ctx is cancelled.
func (s *Scanner) Run(ctx context.Context) error {
	if s.cfg.CronSpec != "" {
		return s.runCron(ctx)
	}

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	s.logger.Info("scanner: started", zap.Duration("interval", s.cfg.Interval))

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scanner: stopped")
			return ctx.Err()
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// runCron schedules ticks from a cron expression instead of a fixed
// interval.
func (s *Scanner) runCron(ctx context.Context) error {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	sched, err := parser.Parse(s.cfg.CronSpec)
	if err != nil {
		return fmt.Errorf("parse scan cron %q: %w", s.cfg.CronSpec, err)
	}

	s.logger.Info("scanner: started", zap.String("cron", s.cfg.CronSpec))

	for {
		next := sched.Next(s.clock())
		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			s.logger.Info("scanner: stopped")
			return ctx.Err()
		case <-timer.C:
			s.Tick(ctx)
		}
	}
}

// Tick runs one scan pass. It returns the number of firings dispatched and
// whether the pass actually ran; a pass that finds the previous one still
// running is skipped.
func (s *Scanner) Tick(ctx context.Context) (int, bool) {
	if !s.running.CompareAndSwap(false, true) {
		s.logger.Warn("scanner: previous tick still running, skipping")
		if s.metrics != nil {
			s.metrics.TickSkipped()
		}
		return 0, false
	}
	defer s.running.Store(false)

	if s.metrics != nil {
		s.metrics.TickStarted()
	}

	start := s.clock()
	now := start.UTC()

	// The two condition families are independent; a failure in one must
	// not stop the other.
	fired := s.evaluateInactivity(ctx, now)
	fired += s.evaluateDeadlineProximity(ctx, now)

	elapsed := s.clock().Sub(start)
	if s.metrics != nil {
		s.metrics.TickCompleted(elapsed, fired, nil)
	}
	s.logger.Debug("scanner: tick completed",
		zap.Duration("elapsed", elapsed), zap.Int("firings", fired))
	return fired, true
}

// evaluateInactivity fires INACTIVITY triggers for work orders that have
// sat in the required status past the trigger's cutoff.
func (s *Scanner) evaluateInactivity(ctx context.Context, now time.Time) int {
	triggers, err := s.triggers.ListActiveByType(ctx, domain.TriggerInactivity)
	if err != nil {
		s.logger.Error("scanner: listing inactivity triggers failed", zap.Error(err))
		return 0
	}

	fired := 0
	for _, trigger := range triggers {
		cond := trigger.Condition.Inactivity
		if cond == nil || cond.InStatus == "" {
			// Misconfigured trigger: skip it, keep evaluating the rest.
			s.logger.Warn("scanner: inactivity trigger without in_status, skipped",
				zap.String("trigger", trigger.Name))
			continue
		}

		minutes := cond.Minutes
		if minutes <= 0 {
			minutes = s.cfg.DefaultInactivityMinutes
		}
		cutoff := now.Add(-time.Duration(minutes) * time.Minute)

		stuck, err := s.workOrders.FindStuck(ctx, cond.InStatus, cutoff, trigger.WorkOrderType, s.cfg.PageSize)
		if err != nil {
			s.logger.Error("scanner: stuck work-order query failed",
				zap.String("trigger", trigger.Name), zap.Error(err))
			continue
		}

		fired += s.fireBatch(ctx, trigger, stuck, now)
	}
	return fired
}

// evaluateDeadlineProximity fires DEADLINE_PROXIMITY triggers for
// non-terminal work orders whose deadline falls inside the trigger's
// look-ahead window.
func (s *Scanner) evaluateDeadlineProximity(ctx context.Context, now time.Time) int {
	triggers, err := s.triggers.ListActiveByType(ctx, domain.TriggerDeadlineProximity)
	if err != nil {
		s.logger.Error("scanner: listing deadline triggers failed", zap.Error(err))
		return 0
	}

	fired := 0
	for _, trigger := range triggers {
		cond := trigger.Condition.DeadlineProximity
		if cond == nil {
			s.logger.Warn("scanner: deadline trigger without condition, skipped",
				zap.String("trigger", trigger.Name))
			continue
		}

		minutes := cond.MinutesBefore
		if minutes <= 0 {
			minutes = s.cfg.DefaultDeadlineMinutes
		}
		until := now.Add(time.Duration(minutes) * time.Minute)

		approaching, err := s.workOrders.FindApproachingDeadline(ctx, now, until, domain.TerminalStatuses, trigger.WorkOrderType, s.cfg.PageSize)
		if err != nil {
			s.logger.Error("scanner: deadline work-order query failed",
				zap.String("trigger", trigger.Name), zap.Error(err))
			continue
		}

		fired += s.fireBatch(ctx, trigger, approaching, now)
	}
	return fired
}

// fireBatch applies the dedup gate to the candidates and dispatches the
// remainder. The firing record is written immediately before dispatch;
// dispatch failures never roll it back.
func (s *Scanner) fireBatch(ctx context.Context, trigger domain.Trigger, candidates []domain.WorkOrder, now time.Time) int {
	if len(candidates) == 0 {
		return 0
	}

	ids := make([]uuid.UUID, 0, len(candidates))
	for _, wo := range candidates {
		ids = append(ids, wo.ID)
	}

	already, err := s.ledger.FiredWorkOrders(ctx, trigger.ID, ids)
	if err != nil {
		s.logger.Error("scanner: ledger lookup failed",
			zap.String("trigger", trigger.Name), zap.Error(err))
		return 0
	}

	fired := 0
	for _, wo := range candidates {
		if already[wo.ID] {
			continue
		}

		err := s.ledger.InsertFiring(ctx, domain.Firing{
			TriggerID:   trigger.ID,
			WorkOrderID: wo.ID,
			FiredAt:     now,
		})
		if errors.Is(err, ErrAlreadyFired) {
			// A concurrent scanner won the race; this pair is done.
			continue
		}
		if err != nil {
			s.logger.Error("scanner: firing insert failed",
				zap.String("trigger", trigger.Name),
				zap.String("work_order_id", wo.ID.String()),
				zap.Error(err))
			continue
		}

		s.logger.Info("scanner: trigger fired",
			zap.String("trigger", trigger.Name),
			zap.String("trigger_type", string(trigger.Type)),
			zap.String("work_order_id", wo.ID.String()))

		s.dispatcher.Execute(ctx, trigger, wo)
		fired++
	}
	return fired
}
