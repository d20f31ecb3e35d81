package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned by stores when a referenced trigger or action
// does not exist.
var ErrNotFound = errors.New("not found")

type TriggerType string

const (
	TriggerStatusChange      TriggerType = "STATUS_CHANGE"
	TriggerFieldChange       TriggerType = "FIELD_CHANGE"
	TriggerInactivity        TriggerType = "INACTIVITY"
	TriggerDeadlineProximity TriggerType = "DEADLINE_PROXIMITY"
)

// Valid reports whether t is one of the known trigger types.
func (t TriggerType) Valid() bool {
	switch t {
	case TriggerStatusChange, TriggerFieldChange, TriggerInactivity, TriggerDeadlineProximity:
		return true
	}
	return false
}

// TimeBased reports whether triggers of this type are evaluated by the
// periodic scanner (and therefore gated by the firing ledger) rather than
// by lifecycle events.
func (t TriggerType) TimeBased() bool {
	return t == TriggerInactivity || t == TriggerDeadlineProximity
}

// Trigger is a named automation rule: a condition scoped to a work-order
// type, plus an ordered list of notification actions. Triggers are created
// and edited by admin tooling; the engine only reads them.
type Trigger struct {
	ID   uuid.UUID
	Name string

	// WorkOrderType scopes the trigger to one work-order type.
	// nil means the trigger applies to every type.
	WorkOrderType *string

	Type      TriggerType
	Condition Condition
	Active    bool

	CreatedAt time.Time
	UpdatedAt time.Time

	// Actions are loaded ordered by SortOrder. Only active actions are
	// present on triggers returned by ListActive.
	Actions []Action
}

// AppliesTo reports whether the trigger is in scope for the given
// work-order type. An unset WorkOrderType is a wildcard.
func (t Trigger) AppliesTo(workOrderType string) bool {
	return t.WorkOrderType == nil || *t.WorkOrderType == workOrderType
}
