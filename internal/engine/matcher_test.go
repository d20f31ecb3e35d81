package engine

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/jemiko1/crm-triggers/internal/domain"
)

func statusTrigger(name, from, to string) domain.Trigger {
	return domain.Trigger{
		ID:     uuid.New(),
		Name:   name,
		Type:   domain.TriggerStatusChange,
		Active: true,
		Condition: domain.Condition{
			StatusChange: &domain.StatusChangeCondition{FromStatus: from, ToStatus: to},
		},
	}
}

func fieldTrigger(name, field string) domain.Trigger {
	return domain.Trigger{
		ID:     uuid.New(),
		Name:   name,
		Type:   domain.TriggerFieldChange,
		Active: true,
		Condition: domain.Condition{
			FieldChange: &domain.FieldChangeCondition{Field: field},
		},
	}
}

func TestMatcher_StatusChangeMatching(t *testing.T) {
	store := &mockTriggerStore{triggers: []domain.Trigger{
		statusTrigger("started", "CREATED", "IN_PROGRESS"),
	}}
	exec := &mockExecutor{}
	m := NewMatcher(store, exec, zap.NewNop())

	wo := domain.WorkOrder{ID: uuid.New(), Type: "ELEVATOR_REPAIR"}

	m.OnStatusChange(context.Background(), wo, "CREATED", "IN_PROGRESS")
	assert.Equal(t, []string{"started"}, exec.executed())

	// Same trigger, different destination: no fire.
	m.OnStatusChange(context.Background(), wo, "CREATED", "COMPLETED")
	assert.Equal(t, []string{"started"}, exec.executed())
}

func TestMatcher_StatusChangeWildcardSides(t *testing.T) {
	store := &mockTriggerStore{triggers: []domain.Trigger{
		statusTrigger("any-to-completed", "", "COMPLETED"),
	}}
	exec := &mockExecutor{}
	m := NewMatcher(store, exec, zap.NewNop())

	wo := domain.WorkOrder{ID: uuid.New(), Type: "HVAC_SERVICE"}

	m.OnStatusChange(context.Background(), wo, "CREATED", "COMPLETED")
	m.OnStatusChange(context.Background(), wo, "IN_PROGRESS", "COMPLETED")
	m.OnStatusChange(context.Background(), wo, "IN_PROGRESS", "CANCELED")

	assert.Equal(t, []string{"any-to-completed", "any-to-completed"}, exec.executed())
}

func TestMatcher_FieldChangeMatching(t *testing.T) {
	store := &mockTriggerStore{triggers: []domain.Trigger{
		fieldTrigger("deadline-edited", "deadline"),
		fieldTrigger("title-edited", "title"),
	}}
	exec := &mockExecutor{}
	m := NewMatcher(store, exec, zap.NewNop())

	wo := domain.WorkOrder{ID: uuid.New(), Type: "ELEVATOR_REPAIR"}
	m.OnFieldChange(context.Background(), wo, []string{"deadline", "description"})

	assert.Equal(t, []string{"deadline-edited"}, exec.executed())
}

func TestMatcher_StoreErrorNeverPropagates(t *testing.T) {
	store := &mockTriggerStore{err: errors.New("db down")}
	exec := &mockExecutor{}
	m := NewMatcher(store, exec, zap.NewNop())

	wo := domain.WorkOrder{ID: uuid.New(), Type: "ELEVATOR_REPAIR"}

	// Must not panic and must not call the executor.
	m.OnStatusChange(context.Background(), wo, "A", "B")
	m.OnFieldChange(context.Background(), wo, []string{"title"})
	assert.Empty(t, exec.executed())
}

func TestMatcher_MisconfiguredTriggerIsIsolated(t *testing.T) {
	broken := domain.Trigger{
		ID:     uuid.New(),
		Name:   "broken",
		Type:   domain.TriggerStatusChange,
		Active: true,
		// Condition branch missing entirely.
	}
	store := &mockTriggerStore{triggers: []domain.Trigger{
		broken,
		statusTrigger("healthy", "", ""),
	}}
	exec := &mockExecutor{}
	m := NewMatcher(store, exec, zap.NewNop())

	wo := domain.WorkOrder{ID: uuid.New(), Type: "ELEVATOR_REPAIR"}
	m.OnStatusChange(context.Background(), wo, "CREATED", "IN_PROGRESS")

	// The broken trigger is skipped; the healthy one still fires.
	assert.Equal(t, []string{"healthy"}, exec.executed())
}

type panickingExecutor struct{}

func (panickingExecutor) Execute(context.Context, domain.Trigger, domain.WorkOrder) {
	panic("boom")
}

func TestMatcher_PanicIsSwallowed(t *testing.T) {
	store := &mockTriggerStore{triggers: []domain.Trigger{statusTrigger("t", "", "")}}
	m := NewMatcher(store, panickingExecutor{}, zap.NewNop())

	wo := domain.WorkOrder{ID: uuid.New(), Type: "ELEVATOR_REPAIR"}

	assert.NotPanics(t, func() {
		m.OnStatusChange(context.Background(), wo, "A", "B")
	})
}
