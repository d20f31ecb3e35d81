package domain

import (
	"time"

	"github.com/google/uuid"
)

// Firing records that a time-based trigger has already notified for a work
// order. At most one record exists per (TriggerID, WorkOrderID) pair; the
// storage layer enforces this with a uniqueness constraint, which is the
// sole coordination primitive between scanner instances. Firings are
// written by the scanner immediately before dispatch and never updated or
// deleted by the engine.
type Firing struct {
	TriggerID   uuid.UUID
	WorkOrderID uuid.UUID
	FiredAt     time.Time
}

// Notification is an in-app notification row produced by a
// SYSTEM_NOTIFICATION action. Rows are deduplicated on
// (WorkOrderID, EmployeeID) so re-resolving the same audience for the same
// work order does not create duplicates.
type Notification struct {
	ID          uuid.UUID
	WorkOrderID uuid.UUID
	EmployeeID  uuid.UUID
	Subject     string
	Body        string
	CreatedAt   time.Time
}
