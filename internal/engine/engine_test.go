package engine

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"

	"github.com/jemiko1/crm-triggers/internal/domain"
	"github.com/jemiko1/crm-triggers/internal/notify"
)

// Shared mocks for the engine tests.

type mockTriggerStore struct {
	triggers []domain.Trigger
	err      error
}

func (s *mockTriggerStore) ListActive(_ context.Context, t domain.TriggerType, workOrderType string) ([]domain.Trigger, error) {
	if s.err != nil {
		return nil, s.err
	}
	var out []domain.Trigger
	for _, tr := range s.triggers {
		if tr.Type == t && tr.Active && tr.AppliesTo(workOrderType) {
			out = append(out, tr)
		}
	}
	return out, nil
}

type mockDirectory struct {
	employees         map[uuid.UUID]domain.Employee
	positionMembers   map[uuid.UUID][]uuid.UUID // position -> employee ids
	assignees         map[uuid.UUID][]uuid.UUID // work order -> employee ids
	workflowPositions []uuid.UUID
	err               error
}

func newMockDirectory() *mockDirectory {
	return &mockDirectory{
		employees:       make(map[uuid.UUID]domain.Employee),
		positionMembers: make(map[uuid.UUID][]uuid.UUID),
		assignees:       make(map[uuid.UUID][]uuid.UUID),
	}
}

func (d *mockDirectory) addEmployee(name string) domain.Employee {
	e := domain.Employee{ID: uuid.New(), Name: name, Email: name + "@example.com"}
	d.employees[e.ID] = e
	return e
}

func (d *mockDirectory) EmployeesByIDs(_ context.Context, ids []uuid.UUID) ([]domain.Employee, error) {
	if d.err != nil {
		return nil, d.err
	}
	var out []domain.Employee
	for _, id := range ids {
		if e, ok := d.employees[id]; ok {
			out = append(out, e)
		}
	}
	return out, nil
}

func (d *mockDirectory) EmployeesByPositions(_ context.Context, positionIDs []uuid.UUID) ([]domain.Employee, error) {
	if d.err != nil {
		return nil, d.err
	}
	seen := make(map[uuid.UUID]bool)
	var out []domain.Employee
	for _, pid := range positionIDs {
		for _, eid := range d.positionMembers[pid] {
			if seen[eid] {
				continue
			}
			seen[eid] = true
			out = append(out, d.employees[eid])
		}
	}
	return out, nil
}

func (d *mockDirectory) AssigneesOf(_ context.Context, workOrderID uuid.UUID) ([]uuid.UUID, error) {
	if d.err != nil {
		return nil, d.err
	}
	return d.assignees[workOrderID], nil
}

func (d *mockDirectory) WorkflowPositions(_ context.Context) ([]uuid.UUID, error) {
	if d.err != nil {
		return nil, d.err
	}
	return d.workflowPositions, nil
}

type mockNotificationStore struct {
	mu       sync.Mutex
	rows     []domain.Notification
	seen     map[string]bool
	failNext bool
}

func newMockNotificationStore() *mockNotificationStore {
	return &mockNotificationStore{seen: make(map[string]bool)}
}

func (s *mockNotificationStore) InsertNotification(_ context.Context, n domain.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failNext {
		s.failNext = false
		return errors.New("insert failed")
	}
	key := n.WorkOrderID.String() + "|" + n.EmployeeID.String()
	if s.seen[key] {
		return nil // dedup: conflicting insert is a no-op
	}
	s.seen[key] = true
	s.rows = append(s.rows, n)
	return nil
}

func (s *mockNotificationStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rows)
}

type mockQueue struct {
	mu       sync.Mutex
	messages []notify.Message
	full     bool
}

func (q *mockQueue) Enqueue(msg notify.Message) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.full {
		return notify.ErrQueueFull
	}
	q.messages = append(q.messages, msg)
	return nil
}

func (q *mockQueue) byChannel(c notify.Channel) []notify.Message {
	q.mu.Lock()
	defer q.mu.Unlock()
	var out []notify.Message
	for _, m := range q.messages {
		if m.Channel == c {
			out = append(out, m)
		}
	}
	return out
}

// mockExecutor records Execute calls for matcher tests.
type mockExecutor struct {
	mu    sync.Mutex
	calls []string // trigger names
}

func (e *mockExecutor) Execute(_ context.Context, trigger domain.Trigger, _ domain.WorkOrder) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls = append(e.calls, trigger.Name)
}

func (e *mockExecutor) executed() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.calls...)
}
