package domain

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrInvalidCondition marks a malformed or incomplete trigger condition.
// The offending trigger is skipped during evaluation; everything else
// continues.
var ErrInvalidCondition = errors.New("invalid trigger condition")

// StatusChangeCondition matches a status transition. An unset FromStatus or
// ToStatus matches any value on that side.
type StatusChangeCondition struct {
	FromStatus string `json:"from_status,omitempty"`
	ToStatus   string `json:"to_status,omitempty"`
}

// Matches reports whether the transition from -> to satisfies the condition.
func (c StatusChangeCondition) Matches(from, to string) bool {
	if c.FromStatus != "" && c.FromStatus != from {
		return false
	}
	if c.ToStatus != "" && c.ToStatus != to {
		return false
	}
	return true
}

// FieldChangeCondition matches an edit that touched the named field.
type FieldChangeCondition struct {
	Field string `json:"field"`
}

// InactivityCondition selects work orders that have sat in InStatus without
// an update for at least Minutes. Minutes of 0 means "use the configured
// default". InStatus is required; a trigger without it is misconfigured.
type InactivityCondition struct {
	Minutes  int    `json:"minutes,omitempty"`
	InStatus string `json:"in_status"`
}

// DeadlineProximityCondition selects non-terminal work orders whose deadline
// falls within the next MinutesBefore minutes. MinutesBefore of 0 means
// "use the configured default".
type DeadlineProximityCondition struct {
	MinutesBefore int `json:"minutes_before,omitempty"`
}

// Condition is the variant payload of a trigger. Exactly one branch is set,
// and which one is determined by the trigger's type. Conditions are parsed
// and validated once at the load/write boundary so evaluation code never
// sees a half-formed payload.
type Condition struct {
	StatusChange      *StatusChangeCondition
	FieldChange       *FieldChangeCondition
	Inactivity        *InactivityCondition
	DeadlineProximity *DeadlineProximityCondition
}

// ParseCondition decodes raw JSON into the branch matching the trigger type
// and validates it. Unknown trigger types and payloads that fail validation
// return an error wrapping ErrInvalidCondition.
func ParseCondition(t TriggerType, raw []byte) (Condition, error) {
	var cond Condition
	if len(raw) == 0 {
		raw = []byte("{}")
	}

	switch t {
	case TriggerStatusChange:
		var c StatusChangeCondition
		if err := json.Unmarshal(raw, &c); err != nil {
			return Condition{}, fmt.Errorf("%w: %v", ErrInvalidCondition, err)
		}
		cond.StatusChange = &c
	case TriggerFieldChange:
		var c FieldChangeCondition
		if err := json.Unmarshal(raw, &c); err != nil {
			return Condition{}, fmt.Errorf("%w: %v", ErrInvalidCondition, err)
		}
		cond.FieldChange = &c
	case TriggerInactivity:
		var c InactivityCondition
		if err := json.Unmarshal(raw, &c); err != nil {
			return Condition{}, fmt.Errorf("%w: %v", ErrInvalidCondition, err)
		}
		cond.Inactivity = &c
	case TriggerDeadlineProximity:
		var c DeadlineProximityCondition
		if err := json.Unmarshal(raw, &c); err != nil {
			return Condition{}, fmt.Errorf("%w: %v", ErrInvalidCondition, err)
		}
		cond.DeadlineProximity = &c
	default:
		return Condition{}, fmt.Errorf("%w: unknown trigger type %q", ErrInvalidCondition, t)
	}

	if err := cond.Validate(t); err != nil {
		return Condition{}, err
	}
	return cond, nil
}

// Validate checks that the branch matching the trigger type is present and
// complete.
func (c Condition) Validate(t TriggerType) error {
	switch t {
	case TriggerStatusChange:
		if c.StatusChange == nil {
			return fmt.Errorf("%w: missing status change payload", ErrInvalidCondition)
		}
	case TriggerFieldChange:
		if c.FieldChange == nil || c.FieldChange.Field == "" {
			return fmt.Errorf("%w: field is required", ErrInvalidCondition)
		}
	case TriggerInactivity:
		if c.Inactivity == nil || c.Inactivity.InStatus == "" {
			return fmt.Errorf("%w: in_status is required", ErrInvalidCondition)
		}
		if c.Inactivity.Minutes < 0 {
			return fmt.Errorf("%w: minutes must not be negative", ErrInvalidCondition)
		}
	case TriggerDeadlineProximity:
		if c.DeadlineProximity == nil {
			return fmt.Errorf("%w: missing deadline proximity payload", ErrInvalidCondition)
		}
		if c.DeadlineProximity.MinutesBefore < 0 {
			return fmt.Errorf("%w: minutes_before must not be negative", ErrInvalidCondition)
		}
	default:
		return fmt.Errorf("%w: unknown trigger type %q", ErrInvalidCondition, t)
	}
	return nil
}

// Encode marshals the set branch back to JSON for storage.
func (c Condition) Encode() ([]byte, error) {
	switch {
	case c.StatusChange != nil:
		return json.Marshal(c.StatusChange)
	case c.FieldChange != nil:
		return json.Marshal(c.FieldChange)
	case c.Inactivity != nil:
		return json.Marshal(c.Inactivity)
	case c.DeadlineProximity != nil:
		return json.Marshal(c.DeadlineProximity)
	}
	return []byte("{}"), nil
}
