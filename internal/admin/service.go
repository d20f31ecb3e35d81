// Package admin is the management surface for trigger configuration:
// validated CRUD over triggers and their actions, plus an overview of the
// configured rules. Validation happens here, at the write boundary, so the
// evaluation paths can assume stored definitions are well-formed.
package admin

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jemiko1/crm-triggers/internal/domain"
)

// ErrInvalidInput marks a rejected create or update. The wrapped message
// says which field and why.
var ErrInvalidInput = errors.New("invalid input")

// Store is the persistence contract the service drives.
type Store interface {
	GetTrigger(ctx context.Context, id uuid.UUID) (domain.Trigger, error)
	ListTriggers(ctx context.Context, workOrderType *string) ([]domain.Trigger, error)
	CreateTrigger(ctx context.Context, t domain.Trigger) error
	UpdateTrigger(ctx context.Context, t domain.Trigger) error
	DeleteTrigger(ctx context.Context, id uuid.UUID) error

	CreateAction(ctx context.Context, a domain.Action) error
	UpdateAction(ctx context.Context, a domain.Action) error
	DeleteAction(ctx context.Context, id uuid.UUID) error
}

// StatsReader reads best-effort firing counters for the overview. Optional.
type StatsReader interface {
	FiringsOn(ctx context.Context, triggerID uuid.UUID, triggerType domain.TriggerType, day time.Time) (int64, error)
}

// TriggerInput is the write payload for a trigger. Condition is the raw
// JSON payload matching the trigger type.
type TriggerInput struct {
	Name          string
	WorkOrderType *string
	Type          domain.TriggerType
	Condition     json.RawMessage
	Active        bool
}

// ActionInput is the write payload for an action.
type ActionInput struct {
	TriggerID    uuid.UUID
	Type         domain.ActionType
	Target       domain.TargetType
	PositionIDs  []uuid.UUID
	TemplateCode string
	Subject      string
	Body         string
	SortOrder    int
	Active       bool
}

// Service validates and persists trigger configuration.
type Service struct {
	store  Store
	stats  StatsReader // optional, nil = no firing counts in the overview
	logger *zap.Logger
	clock  func() time.Time
}

// NewService creates a Service.
func NewService(store Store, logger *zap.Logger) *Service {
	return &Service{store: store, logger: logger, clock: time.Now}
}

// WithStats attaches a firing-counter reader used by Overview.
func (s *Service) WithStats(r StatsReader) *Service {
	s.stats = r
	return s
}

// CreateTrigger validates and stores a new trigger.
func (s *Service) CreateTrigger(ctx context.Context, in TriggerInput) (domain.Trigger, error) {
	cond, err := validateTriggerInput(in)
	if err != nil {
		return domain.Trigger{}, err
	}

	now := s.clock().UTC()
	t := domain.Trigger{
		ID:            uuid.New(),
		Name:          in.Name,
		WorkOrderType: in.WorkOrderType,
		Type:          in.Type,
		Condition:     cond,
		Active:        in.Active,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.store.CreateTrigger(ctx, t); err != nil {
		return domain.Trigger{}, fmt.Errorf("create trigger: %w", err)
	}
	s.logger.Info("admin: trigger created",
		zap.String("trigger_id", t.ID.String()),
		zap.String("type", string(t.Type)),
		zap.String("name", t.Name))
	return t, nil
}

// UpdateTrigger validates and rewrites an existing trigger. The trigger
// type is immutable; the input's condition is validated against the stored
// type.
func (s *Service) UpdateTrigger(ctx context.Context, id uuid.UUID, in TriggerInput) (domain.Trigger, error) {
	current, err := s.store.GetTrigger(ctx, id)
	if err != nil {
		return domain.Trigger{}, err
	}
	if in.Type != "" && in.Type != current.Type {
		return domain.Trigger{}, fmt.Errorf("%w: trigger type is immutable", ErrInvalidInput)
	}
	in.Type = current.Type

	cond, err := validateTriggerInput(in)
	if err != nil {
		return domain.Trigger{}, err
	}

	current.Name = in.Name
	current.WorkOrderType = in.WorkOrderType
	current.Condition = cond
	current.Active = in.Active
	current.UpdatedAt = s.clock().UTC()

	if err := s.store.UpdateTrigger(ctx, current); err != nil {
		return domain.Trigger{}, fmt.Errorf("update trigger: %w", err)
	}
	return current, nil
}

// GetTrigger returns one trigger with all of its actions.
func (s *Service) GetTrigger(ctx context.Context, id uuid.UUID) (domain.Trigger, error) {
	return s.store.GetTrigger(ctx, id)
}

// ListTriggers returns all triggers, optionally scoped to a work-order
// type.
func (s *Service) ListTriggers(ctx context.Context, workOrderType *string) ([]domain.Trigger, error) {
	return s.store.ListTriggers(ctx, workOrderType)
}

// DeleteTrigger removes a trigger and its actions.
func (s *Service) DeleteTrigger(ctx context.Context, id uuid.UUID) error {
	if err := s.store.DeleteTrigger(ctx, id); err != nil {
		return err
	}
	s.logger.Info("admin: trigger deleted", zap.String("trigger_id", id.String()))
	return nil
}

// CreateAction validates and stores a new action under an existing trigger.
func (s *Service) CreateAction(ctx context.Context, in ActionInput) (domain.Action, error) {
	if err := validateActionInput(in); err != nil {
		return domain.Action{}, err
	}

	a := domain.Action{
		ID:           uuid.New(),
		TriggerID:    in.TriggerID,
		Type:         in.Type,
		Target:       in.Target,
		PositionIDs:  in.PositionIDs,
		TemplateCode: in.TemplateCode,
		Subject:      in.Subject,
		Body:         in.Body,
		SortOrder:    in.SortOrder,
		Active:       in.Active,
	}
	if err := s.store.CreateAction(ctx, a); err != nil {
		return domain.Action{}, fmt.Errorf("create action: %w", err)
	}
	return a, nil
}

// UpdateAction validates and rewrites an existing action.
func (s *Service) UpdateAction(ctx context.Context, id uuid.UUID, in ActionInput) (domain.Action, error) {
	if err := validateActionInput(in); err != nil {
		return domain.Action{}, err
	}

	a := domain.Action{
		ID:           id,
		TriggerID:    in.TriggerID,
		Type:         in.Type,
		Target:       in.Target,
		PositionIDs:  in.PositionIDs,
		TemplateCode: in.TemplateCode,
		Subject:      in.Subject,
		Body:         in.Body,
		SortOrder:    in.SortOrder,
		Active:       in.Active,
	}
	if err := s.store.UpdateAction(ctx, a); err != nil {
		return domain.Action{}, err
	}
	return a, nil
}

// DeleteAction removes one action.
func (s *Service) DeleteAction(ctx context.Context, id uuid.UUID) error {
	return s.store.DeleteAction(ctx, id)
}

// TriggerSummary is one trigger's line in the overview.
type TriggerSummary struct {
	Trigger      domain.Trigger
	FiringsToday int64
}

// TypeOverview groups the configured triggers of one type.
type TypeOverview struct {
	Type     domain.TriggerType
	Total    int
	Active   int
	Triggers []TriggerSummary
}

// Overview returns the configured triggers grouped by type, optionally
// scoped to a work-order type. When a stats reader is attached, each line
// carries today's firing count; counter read failures are logged and the
// count left at zero.
func (s *Service) Overview(ctx context.Context, workOrderType *string) ([]TypeOverview, error) {
	triggers, err := s.store.ListTriggers(ctx, workOrderType)
	if err != nil {
		return nil, err
	}

	today := s.clock().UTC()
	byType := make(map[domain.TriggerType]*TypeOverview)
	for _, t := range triggers {
		ov, ok := byType[t.Type]
		if !ok {
			ov = &TypeOverview{Type: t.Type}
			byType[t.Type] = ov
		}
		ov.Total++
		if t.Active {
			ov.Active++
		}

		summary := TriggerSummary{Trigger: t}
		if s.stats != nil {
			n, err := s.stats.FiringsOn(ctx, t.ID, t.Type, today)
			if err != nil {
				s.logger.Warn("admin: firing counter read failed",
					zap.String("trigger_id", t.ID.String()), zap.Error(err))
			} else {
				summary.FiringsToday = n
			}
		}
		ov.Triggers = append(ov.Triggers, summary)
	}

	out := make([]TypeOverview, 0, len(byType))
	for _, ov := range byType {
		out = append(out, *ov)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Type < out[j].Type })
	return out, nil
}

func validateTriggerInput(in TriggerInput) (domain.Condition, error) {
	if in.Name == "" {
		return domain.Condition{}, fmt.Errorf("%w: name is required", ErrInvalidInput)
	}
	if !in.Type.Valid() {
		return domain.Condition{}, fmt.Errorf("%w: unknown trigger type %q", ErrInvalidInput, in.Type)
	}
	if in.WorkOrderType != nil && *in.WorkOrderType == "" {
		return domain.Condition{}, fmt.Errorf("%w: work order type must be unset or non-empty", ErrInvalidInput)
	}

	cond, err := domain.ParseCondition(in.Type, in.Condition)
	if err != nil {
		return domain.Condition{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	return cond, nil
}

func validateActionInput(in ActionInput) error {
	if in.TriggerID == uuid.Nil {
		return fmt.Errorf("%w: trigger id is required", ErrInvalidInput)
	}
	if !in.Type.Valid() {
		return fmt.Errorf("%w: unknown action type %q", ErrInvalidInput, in.Type)
	}
	if !in.Target.Valid() {
		return fmt.Errorf("%w: unknown target type %q", ErrInvalidInput, in.Target)
	}
	if in.Target == domain.TargetPosition && len(in.PositionIDs) == 0 {
		return fmt.Errorf("%w: POSITION target requires position ids", ErrInvalidInput)
	}
	if in.Target != domain.TargetPosition && len(in.PositionIDs) > 0 {
		return fmt.Errorf("%w: position ids are only valid with a POSITION target", ErrInvalidInput)
	}
	if in.TemplateCode == "" && in.Body == "" {
		return fmt.Errorf("%w: either template code or body is required", ErrInvalidInput)
	}
	return nil
}
