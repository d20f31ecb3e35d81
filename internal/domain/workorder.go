package domain

import (
	"time"

	"github.com/google/uuid"
)

// Work-order statuses the engine needs to know about. The full status set
// belongs to the work-order lifecycle; the engine only treats these two as
// terminal when scanning for approaching deadlines.
const (
	StatusCompleted = "COMPLETED"
	StatusCanceled  = "CANCELED"
)

// TerminalStatuses are excluded from deadline-proximity scans.
var TerminalStatuses = []string{StatusCompleted, StatusCanceled}

// WorkOrder is a point-in-time, read-only view of a work order, supplied by
// the lifecycle on the event path or fetched via a bounded query on the
// scan path. The engine never mutates it.
type WorkOrder struct {
	ID     uuid.UUID
	Type   string
	Number int64
	Title  string
	Status string

	UpdatedAt time.Time
	Deadline  *time.Time

	AssigneeIDs []uuid.UUID
}

// Employee is a resolved notification recipient. Directory lookups only
// return active employees.
type Employee struct {
	ID    uuid.UUID
	Name  string
	Email string
	Phone string
}
