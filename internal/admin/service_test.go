package admin

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/jemiko1/crm-triggers/internal/domain"
)

type memStore struct {
	triggers map[uuid.UUID]domain.Trigger
	actions  map[uuid.UUID]domain.Action
}

func newMemStore() *memStore {
	return &memStore{
		triggers: make(map[uuid.UUID]domain.Trigger),
		actions:  make(map[uuid.UUID]domain.Action),
	}
}

func (m *memStore) GetTrigger(_ context.Context, id uuid.UUID) (domain.Trigger, error) {
	t, ok := m.triggers[id]
	if !ok {
		return domain.Trigger{}, domain.ErrNotFound
	}
	return t, nil
}

func (m *memStore) ListTriggers(_ context.Context, workOrderType *string) ([]domain.Trigger, error) {
	var out []domain.Trigger
	for _, t := range m.triggers {
		if workOrderType != nil && !t.AppliesTo(*workOrderType) {
			continue
		}
		out = append(out, t)
	}
	return out, nil
}

func (m *memStore) CreateTrigger(_ context.Context, t domain.Trigger) error {
	m.triggers[t.ID] = t
	return nil
}

func (m *memStore) UpdateTrigger(_ context.Context, t domain.Trigger) error {
	if _, ok := m.triggers[t.ID]; !ok {
		return domain.ErrNotFound
	}
	m.triggers[t.ID] = t
	return nil
}

func (m *memStore) DeleteTrigger(_ context.Context, id uuid.UUID) error {
	if _, ok := m.triggers[id]; !ok {
		return domain.ErrNotFound
	}
	delete(m.triggers, id)
	return nil
}

func (m *memStore) CreateAction(_ context.Context, a domain.Action) error {
	if _, ok := m.triggers[a.TriggerID]; !ok {
		return domain.ErrNotFound
	}
	m.actions[a.ID] = a
	return nil
}

func (m *memStore) UpdateAction(_ context.Context, a domain.Action) error {
	if _, ok := m.actions[a.ID]; !ok {
		return domain.ErrNotFound
	}
	m.actions[a.ID] = a
	return nil
}

func (m *memStore) DeleteAction(_ context.Context, id uuid.UUID) error {
	if _, ok := m.actions[id]; !ok {
		return domain.ErrNotFound
	}
	delete(m.actions, id)
	return nil
}

type stubStats struct {
	counts map[uuid.UUID]int64
}

func (s *stubStats) FiringsOn(_ context.Context, id uuid.UUID, _ domain.TriggerType, _ time.Time) (int64, error) {
	return s.counts[id], nil
}

func newTestService() (*Service, *memStore) {
	store := newMemStore()
	return NewService(store, zap.NewNop()), store
}

func TestCreateTrigger(t *testing.T) {
	svc, store := newTestService()

	created, err := svc.CreateTrigger(context.Background(), TriggerInput{
		Name:      "escalate stuck orders",
		Type:      domain.TriggerInactivity,
		Condition: json.RawMessage(`{"minutes": 90, "in_status": "IN_PROGRESS"}`),
		Active:    true,
	})
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, created.ID)
	require.NotNil(t, created.Condition.Inactivity)
	assert.Equal(t, 90, created.Condition.Inactivity.Minutes)

	stored, ok := store.triggers[created.ID]
	require.True(t, ok)
	assert.Equal(t, "escalate stuck orders", stored.Name)
}

func TestCreateTrigger_Validation(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	cases := []struct {
		name string
		in   TriggerInput
	}{
		{"missing name", TriggerInput{
			Type:      domain.TriggerFieldChange,
			Condition: json.RawMessage(`{"field": "deadline"}`),
		}},
		{"unknown type", TriggerInput{
			Name: "x", Type: "TIMER",
			Condition: json.RawMessage(`{}`),
		}},
		{"inactivity without in_status", TriggerInput{
			Name: "x", Type: domain.TriggerInactivity,
			Condition: json.RawMessage(`{"minutes": 60}`),
		}},
		{"malformed condition json", TriggerInput{
			Name: "x", Type: domain.TriggerStatusChange,
			Condition: json.RawMessage(`{`),
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.CreateTrigger(ctx, tc.in)
			assert.ErrorIs(t, err, ErrInvalidInput)
		})
	}
}

func TestUpdateTrigger_TypeImmutable(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	created, err := svc.CreateTrigger(ctx, TriggerInput{
		Name:      "on completion",
		Type:      domain.TriggerStatusChange,
		Condition: json.RawMessage(`{"to_status": "COMPLETED"}`),
		Active:    true,
	})
	require.NoError(t, err)

	_, err = svc.UpdateTrigger(ctx, created.ID, TriggerInput{
		Name:      "on completion",
		Type:      domain.TriggerInactivity,
		Condition: json.RawMessage(`{"in_status": "NEW"}`),
	})
	assert.ErrorIs(t, err, ErrInvalidInput)

	// Leaving the type unset keeps the stored one.
	updated, err := svc.UpdateTrigger(ctx, created.ID, TriggerInput{
		Name:      "renamed",
		Condition: json.RawMessage(`{"to_status": "CANCELED"}`),
		Active:    false,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.TriggerStatusChange, updated.Type)
	assert.Equal(t, "renamed", updated.Name)
	assert.False(t, updated.Active)
}

func TestUpdateTrigger_NotFound(t *testing.T) {
	svc, _ := newTestService()

	_, err := svc.UpdateTrigger(context.Background(), uuid.New(), TriggerInput{
		Name:      "x",
		Condition: json.RawMessage(`{}`),
	})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestCreateAction_Validation(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	trigger, err := svc.CreateTrigger(ctx, TriggerInput{
		Name:      "deadline heads-up",
		Type:      domain.TriggerDeadlineProximity,
		Condition: json.RawMessage(`{"minutes_before": 120}`),
		Active:    true,
	})
	require.NoError(t, err)

	cases := []struct {
		name string
		in   ActionInput
	}{
		{"missing trigger id", ActionInput{
			Type: domain.ActionEmail, Target: domain.TargetResponsible, Body: "b",
		}},
		{"unknown action type", ActionInput{
			TriggerID: trigger.ID, Type: "PUSH", Target: domain.TargetResponsible, Body: "b",
		}},
		{"position target without ids", ActionInput{
			TriggerID: trigger.ID, Type: domain.ActionEmail, Target: domain.TargetPosition, Body: "b",
		}},
		{"position ids on non-position target", ActionInput{
			TriggerID: trigger.ID, Type: domain.ActionEmail, Target: domain.TargetResponsible,
			PositionIDs: []uuid.UUID{uuid.New()}, Body: "b",
		}},
		{"no template and no body", ActionInput{
			TriggerID: trigger.ID, Type: domain.ActionSMS, Target: domain.TargetAssignedEmployees,
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.CreateAction(ctx, tc.in)
			assert.ErrorIs(t, err, ErrInvalidInput)
		})
	}

	// Valid action goes through.
	action, err := svc.CreateAction(ctx, ActionInput{
		TriggerID:   trigger.ID,
		Type:        domain.ActionEmail,
		Target:      domain.TargetPosition,
		PositionIDs: []uuid.UUID{uuid.New()},
		Subject:     "Deadline approaching",
		Body:        "Order #{{workOrderNumber}} is due soon",
		Active:      true,
	})
	require.NoError(t, err)
	assert.Equal(t, trigger.ID, action.TriggerID)
}

func TestCreateAction_MissingTrigger(t *testing.T) {
	svc, _ := newTestService()

	_, err := svc.CreateAction(context.Background(), ActionInput{
		TriggerID: uuid.New(),
		Type:      domain.ActionEmail,
		Target:    domain.TargetResponsible,
		Body:      "b",
	})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestOverview(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	a, err := svc.CreateTrigger(ctx, TriggerInput{
		Name: "stuck", Type: domain.TriggerInactivity,
		Condition: json.RawMessage(`{"in_status": "NEW"}`), Active: true,
	})
	require.NoError(t, err)
	_, err = svc.CreateTrigger(ctx, TriggerInput{
		Name: "stuck in progress", Type: domain.TriggerInactivity,
		Condition: json.RawMessage(`{"in_status": "IN_PROGRESS"}`), Active: false,
	})
	require.NoError(t, err)
	_, err = svc.CreateTrigger(ctx, TriggerInput{
		Name: "completed", Type: domain.TriggerStatusChange,
		Condition: json.RawMessage(`{"to_status": "COMPLETED"}`), Active: true,
	})
	require.NoError(t, err)

	svc.WithStats(&stubStats{counts: map[uuid.UUID]int64{a.ID: 5}})

	overview, err := svc.Overview(ctx, nil)
	require.NoError(t, err)
	require.Len(t, overview, 2)

	// Sorted by type name: INACTIVITY before STATUS_CHANGE.
	inactivity := overview[0]
	assert.Equal(t, domain.TriggerInactivity, inactivity.Type)
	assert.Equal(t, 2, inactivity.Total)
	assert.Equal(t, 1, inactivity.Active)

	var firings int64
	for _, s := range inactivity.Triggers {
		if s.Trigger.ID == a.ID {
			firings = s.FiringsToday
		}
	}
	assert.Equal(t, int64(5), firings)
}
