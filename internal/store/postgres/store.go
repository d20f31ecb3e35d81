// Package postgres persists trigger definitions, the firing ledger and
// in-app notifications, and serves the bounded read queries the engine
// needs over the CRM schema (work orders, employees, positions).
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/jemiko1/crm-triggers/internal/admin"
	"github.com/jemiko1/crm-triggers/internal/domain"
	"github.com/jemiko1/crm-triggers/internal/engine"
	"github.com/jemiko1/crm-triggers/internal/scanner"
)

// Store implements the engine, scanner and admin storage contracts on
// PostgreSQL.
type Store struct {
	db     *sql.DB
	logger *zap.Logger
}

// New creates a Store on the given connection.
func New(db *sql.DB, logger *zap.Logger) *Store {
	return &Store{db: db, logger: logger}
}

// ListActive returns active triggers of one type in scope for the given
// work-order type, with their active actions ordered by sort order.
func (s *Store) ListActive(ctx context.Context, t domain.TriggerType, workOrderType string) ([]domain.Trigger, error) {
	return s.listTriggers(ctx, queryListActiveTriggers, string(t), workOrderType)
}

// ListActiveByType returns all active triggers of one type regardless of
// work-order scope.
func (s *Store) ListActiveByType(ctx context.Context, t domain.TriggerType) ([]domain.Trigger, error) {
	return s.listTriggers(ctx, queryListActiveTriggersByType, string(t))
}

func (s *Store) listTriggers(ctx context.Context, query string, args ...any) ([]domain.Trigger, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var triggers []domain.Trigger
	for rows.Next() {
		trigger, err := scanTrigger(rows)
		if err != nil {
			if errors.Is(err, domain.ErrInvalidCondition) {
				// A trigger with a broken condition must not take the
				// whole evaluation pass down with it.
				s.logger.Warn("store: trigger with invalid condition skipped", zap.Error(err))
				continue
			}
			return nil, err
		}
		triggers = append(triggers, trigger)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if err := s.attachActiveActions(ctx, triggers); err != nil {
		return nil, err
	}
	return triggers, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTrigger(row rowScanner) (domain.Trigger, error) {
	var t domain.Trigger
	var workOrderType sql.NullString
	var rawCondition []byte

	err := row.Scan(
		&t.ID,
		&t.Name,
		&workOrderType,
		&t.Type,
		&rawCondition,
		&t.Active,
		&t.CreatedAt,
		&t.UpdatedAt,
	)
	if err != nil {
		return domain.Trigger{}, err
	}
	if workOrderType.Valid {
		t.WorkOrderType = &workOrderType.String
	}

	t.Condition, err = domain.ParseCondition(t.Type, rawCondition)
	if err != nil {
		return domain.Trigger{}, fmt.Errorf("trigger %s: %w", t.ID, err)
	}
	return t, nil
}

// attachActiveActions loads the active actions for all triggers in one
// query and attaches them in sort order.
func (s *Store) attachActiveActions(ctx context.Context, triggers []domain.Trigger) error {
	if len(triggers) == 0 {
		return nil
	}

	ids := make([]uuid.UUID, 0, len(triggers))
	index := make(map[uuid.UUID]int, len(triggers))
	for i, t := range triggers {
		ids = append(ids, t.ID)
		index[t.ID] = i
	}

	rows, err := s.db.QueryContext(ctx, queryListActionsForTriggers, pq.Array(ids))
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		action, err := scanAction(rows)
		if err != nil {
			return err
		}
		if i, ok := index[action.TriggerID]; ok {
			triggers[i].Actions = append(triggers[i].Actions, action)
		}
	}
	return rows.Err()
}

func scanAction(row rowScanner) (domain.Action, error) {
	var a domain.Action
	var positionIDs pq.StringArray
	var templateCode sql.NullString

	err := row.Scan(
		&a.ID,
		&a.TriggerID,
		&a.Type,
		&a.Target,
		&positionIDs,
		&templateCode,
		&a.Subject,
		&a.Body,
		&a.SortOrder,
		&a.Active,
	)
	if err != nil {
		return domain.Action{}, err
	}
	if templateCode.Valid {
		a.TemplateCode = templateCode.String
	}

	for _, raw := range positionIDs {
		id, err := uuid.Parse(raw)
		if err != nil {
			return domain.Action{}, fmt.Errorf("action %s: bad position id %q: %w", a.ID, raw, err)
		}
		a.PositionIDs = append(a.PositionIDs, id)
	}
	return a, nil
}

// GetTrigger returns one trigger with all of its actions, active or not.
func (s *Store) GetTrigger(ctx context.Context, id uuid.UUID) (domain.Trigger, error) {
	row := s.db.QueryRowContext(ctx, queryGetTrigger, id)
	trigger, err := scanTrigger(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Trigger{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Trigger{}, err
	}

	rows, err := s.db.QueryContext(ctx, queryListAllActionsForTrigger, id)
	if err != nil {
		return domain.Trigger{}, err
	}
	defer rows.Close()

	for rows.Next() {
		action, err := scanAction(rows)
		if err != nil {
			return domain.Trigger{}, err
		}
		trigger.Actions = append(trigger.Actions, action)
	}
	return trigger, rows.Err()
}

// ListTriggers returns every trigger, optionally restricted to those in
// scope for one work-order type (wildcards included).
func (s *Store) ListTriggers(ctx context.Context, workOrderType *string) ([]domain.Trigger, error) {
	var filter sql.NullString
	if workOrderType != nil {
		filter = sql.NullString{String: *workOrderType, Valid: true}
	}

	rows, err := s.db.QueryContext(ctx, queryListTriggers, filter)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var triggers []domain.Trigger
	for rows.Next() {
		trigger, err := scanTrigger(rows)
		if err != nil {
			if errors.Is(err, domain.ErrInvalidCondition) {
				s.logger.Warn("store: trigger with invalid condition skipped", zap.Error(err))
				continue
			}
			return nil, err
		}
		triggers = append(triggers, trigger)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if err := s.attachActiveActions(ctx, triggers); err != nil {
		return nil, err
	}
	return triggers, nil
}

// CreateTrigger inserts a trigger definition.
func (s *Store) CreateTrigger(ctx context.Context, t domain.Trigger) error {
	raw, err := t.Condition.Encode()
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, queryInsertTrigger,
		t.ID, t.Name, nullable(t.WorkOrderType), string(t.Type), raw, t.Active, t.CreatedAt, t.UpdatedAt,
	)
	return err
}

// UpdateTrigger rewrites a trigger definition; the trigger type itself is
// immutable. Returns domain.ErrNotFound when no such trigger exists.
func (s *Store) UpdateTrigger(ctx context.Context, t domain.Trigger) error {
	raw, err := t.Condition.Encode()
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, queryUpdateTrigger,
		t.ID, t.Name, nullable(t.WorkOrderType), raw, t.Active, t.UpdatedAt,
	)
	if err != nil {
		return err
	}
	return requireRow(res)
}

// DeleteTrigger removes a trigger and its actions. The firing ledger is
// untouched: records of past firings survive their trigger.
func (s *Store) DeleteTrigger(ctx context.Context, id uuid.UUID) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, queryDeleteTriggerActions, id); err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, queryDeleteTrigger, id)
	if err != nil {
		return err
	}
	if err := requireRow(res); err != nil {
		return err
	}
	return tx.Commit()
}

// CreateAction inserts an action under an existing trigger. A missing
// trigger surfaces as domain.ErrNotFound via the foreign key.
func (s *Store) CreateAction(ctx context.Context, a domain.Action) error {
	_, err := s.db.ExecContext(ctx, queryInsertAction,
		a.ID, a.TriggerID, string(a.Type), string(a.Target), positionArray(a.PositionIDs),
		nullableStr(a.TemplateCode), a.Subject, a.Body, a.SortOrder, a.Active,
	)
	if isForeignKeyViolation(err) {
		return domain.ErrNotFound
	}
	return err
}

// UpdateAction rewrites an action. Returns domain.ErrNotFound when absent.
func (s *Store) UpdateAction(ctx context.Context, a domain.Action) error {
	res, err := s.db.ExecContext(ctx, queryUpdateAction,
		a.ID, string(a.Type), string(a.Target), positionArray(a.PositionIDs),
		nullableStr(a.TemplateCode), a.Subject, a.Body, a.SortOrder, a.Active,
	)
	if err != nil {
		return err
	}
	return requireRow(res)
}

// DeleteAction removes one action. Returns domain.ErrNotFound when absent.
func (s *Store) DeleteAction(ctx context.Context, id uuid.UUID) error {
	res, err := s.db.ExecContext(ctx, queryDeleteAction, id)
	if err != nil {
		return err
	}
	return requireRow(res)
}

// InsertFiring writes the one-shot latch row. The primary key on
// (trigger_id, work_order_id) makes a duplicate insert fail; that failure
// is reported as scanner.ErrAlreadyFired and treated by callers as
// "already fired", never retried.
func (s *Store) InsertFiring(ctx context.Context, f domain.Firing) error {
	_, err := s.db.ExecContext(ctx, queryInsertFiring, f.TriggerID, f.WorkOrderID, f.FiredAt)
	if isUniqueViolation(err) {
		return scanner.ErrAlreadyFired
	}
	return err
}

// FiredWorkOrders reports which of the given work orders already have a
// firing for the trigger.
func (s *Store) FiredWorkOrders(ctx context.Context, triggerID uuid.UUID, workOrderIDs []uuid.UUID) (map[uuid.UUID]bool, error) {
	rows, err := s.db.QueryContext(ctx, queryFiredWorkOrders, triggerID, pq.Array(workOrderIDs))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	fired := make(map[uuid.UUID]bool)
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		fired[id] = true
	}
	return fired, rows.Err()
}

// FindStuck returns up to limit work orders sitting in status with no
// update since updatedBefore, oldest first.
func (s *Store) FindStuck(ctx context.Context, status string, updatedBefore time.Time, workOrderType *string, limit int) ([]domain.WorkOrder, error) {
	rows, err := s.db.QueryContext(ctx, queryFindStuck, status, updatedBefore, nullable(workOrderType), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectWorkOrders(rows)
}

// FindApproachingDeadline returns up to limit work orders outside the
// excluded statuses whose deadline falls in [from, until], soonest first.
func (s *Store) FindApproachingDeadline(ctx context.Context, from, until time.Time, excludeStatuses []string, workOrderType *string, limit int) ([]domain.WorkOrder, error) {
	rows, err := s.db.QueryContext(ctx, queryFindApproachingDeadline,
		from, until, pq.Array(excludeStatuses), nullable(workOrderType), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectWorkOrders(rows)
}

func collectWorkOrders(rows *sql.Rows) ([]domain.WorkOrder, error) {
	var orders []domain.WorkOrder
	for rows.Next() {
		var wo domain.WorkOrder
		var deadline sql.NullTime
		err := rows.Scan(&wo.ID, &wo.Type, &wo.Number, &wo.Title, &wo.Status, &wo.UpdatedAt, &deadline)
		if err != nil {
			return nil, err
		}
		if deadline.Valid {
			d := deadline.Time
			wo.Deadline = &d
		}
		orders = append(orders, wo)
	}
	return orders, rows.Err()
}

// InsertNotification writes one in-app notification row. Conflicting
// inserts on (work_order_id, employee_id) are silently dropped.
func (s *Store) InsertNotification(ctx context.Context, n domain.Notification) error {
	_, err := s.db.ExecContext(ctx, queryInsertNotification,
		n.ID, n.WorkOrderID, n.EmployeeID, n.Subject, n.Body, n.CreatedAt)
	return err
}

// EmployeesByIDs returns the active employees among ids.
func (s *Store) EmployeesByIDs(ctx context.Context, ids []uuid.UUID) ([]domain.Employee, error) {
	rows, err := s.db.QueryContext(ctx, queryEmployeesByIDs, pq.Array(ids))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectEmployees(rows)
}

// EmployeesByPositions returns the active employees holding any of the
// positions.
func (s *Store) EmployeesByPositions(ctx context.Context, positionIDs []uuid.UUID) ([]domain.Employee, error) {
	rows, err := s.db.QueryContext(ctx, queryEmployeesByPositions, pq.Array(positionIDs))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectEmployees(rows)
}

func collectEmployees(rows *sql.Rows) ([]domain.Employee, error) {
	var employees []domain.Employee
	for rows.Next() {
		var e domain.Employee
		var email, phone sql.NullString
		if err := rows.Scan(&e.ID, &e.Name, &email, &phone); err != nil {
			return nil, err
		}
		e.Email = email.String
		e.Phone = phone.String
		employees = append(employees, e)
	}
	return employees, rows.Err()
}

// AssigneesOf returns the employee ids currently assigned to the work
// order.
func (s *Store) AssigneesOf(ctx context.Context, workOrderID uuid.UUID) ([]uuid.UUID, error) {
	rows, err := s.db.QueryContext(ctx, queryAssigneesOf, workOrderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectIDs(rows)
}

// WorkflowPositions returns every position referenced by a workflow step.
func (s *Store) WorkflowPositions(ctx context.Context) ([]uuid.UUID, error) {
	rows, err := s.db.QueryContext(ctx, queryWorkflowPositions)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectIDs(rows)
}

func collectIDs(rows *sql.Rows) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func nullable(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func nullableStr(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func positionArray(ids []uuid.UUID) any {
	strs := make([]string, 0, len(ids))
	for _, id := range ids {
		strs = append(strs, id.String())
	}
	return pq.Array(strs)
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

func isForeignKeyViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23503"
}

// Compile-time interface assertions.
var (
	_ engine.TriggerStore      = (*Store)(nil)
	_ engine.NotificationStore = (*Store)(nil)
	_ engine.EmployeeDirectory = (*Store)(nil)
	_ scanner.TriggerSource    = (*Store)(nil)
	_ scanner.WorkOrderSource  = (*Store)(nil)
	_ scanner.FiringLedger     = (*Store)(nil)
	_ admin.Store              = (*Store)(nil)
)
