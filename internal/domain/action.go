package domain

import (
	"github.com/google/uuid"
)

type ActionType string

const (
	ActionEmail              ActionType = "EMAIL"
	ActionSMS                ActionType = "SMS"
	ActionSystemNotification ActionType = "SYSTEM_NOTIFICATION"
)

func (a ActionType) Valid() bool {
	switch a {
	case ActionEmail, ActionSMS, ActionSystemNotification:
		return true
	}
	return false
}

type TargetType string

const (
	TargetPosition          TargetType = "POSITION"
	TargetAssignedEmployees TargetType = "ASSIGNED_EMPLOYEES"
	TargetResponsible       TargetType = "RESPONSIBLE"
)

func (t TargetType) Valid() bool {
	switch t {
	case TargetPosition, TargetAssignedEmployees, TargetResponsible:
		return true
	}
	return false
}

// Action is one notification step attached to a trigger. Actions are owned
// exclusively by their trigger; deleting the trigger deletes its actions.
type Action struct {
	ID        uuid.UUID
	TriggerID uuid.UUID

	Type   ActionType
	Target TargetType

	// PositionIDs is required when Target is TargetPosition and ignored
	// otherwise. Validated at the write boundary, not at dispatch time.
	PositionIDs []uuid.UUID

	// TemplateCode selects a stored template. When empty, Subject and Body
	// are used as literal text.
	TemplateCode string
	Subject      string
	Body         string

	SortOrder int
	Active    bool
}
