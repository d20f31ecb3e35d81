package domain

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCondition_StatusChange(t *testing.T) {
	cond, err := ParseCondition(TriggerStatusChange, []byte(`{"from_status":"CREATED","to_status":"IN_PROGRESS"}`))
	require.NoError(t, err)
	require.NotNil(t, cond.StatusChange)

	assert.True(t, cond.StatusChange.Matches("CREATED", "IN_PROGRESS"))
	assert.False(t, cond.StatusChange.Matches("CREATED", "COMPLETED"))
	assert.False(t, cond.StatusChange.Matches("IN_PROGRESS", "IN_PROGRESS"))
}

func TestParseCondition_StatusChangeWildcards(t *testing.T) {
	cond, err := ParseCondition(TriggerStatusChange, []byte(`{"to_status":"COMPLETED"}`))
	require.NoError(t, err)

	// Unset from_status matches any origin status.
	assert.True(t, cond.StatusChange.Matches("CREATED", "COMPLETED"))
	assert.True(t, cond.StatusChange.Matches("IN_PROGRESS", "COMPLETED"))
	assert.False(t, cond.StatusChange.Matches("CREATED", "CANCELED"))

	// Empty payload matches every transition.
	cond, err = ParseCondition(TriggerStatusChange, nil)
	require.NoError(t, err)
	assert.True(t, cond.StatusChange.Matches("A", "B"))
}

func TestParseCondition_FieldChangeRequiresField(t *testing.T) {
	_, err := ParseCondition(TriggerFieldChange, []byte(`{}`))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidCondition))

	cond, err := ParseCondition(TriggerFieldChange, []byte(`{"field":"deadline"}`))
	require.NoError(t, err)
	assert.Equal(t, "deadline", cond.FieldChange.Field)
}

func TestParseCondition_InactivityRequiresInStatus(t *testing.T) {
	_, err := ParseCondition(TriggerInactivity, []byte(`{"minutes":60}`))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidCondition))

	cond, err := ParseCondition(TriggerInactivity, []byte(`{"minutes":60,"in_status":"IN_PROGRESS"}`))
	require.NoError(t, err)
	assert.Equal(t, 60, cond.Inactivity.Minutes)
	assert.Equal(t, "IN_PROGRESS", cond.Inactivity.InStatus)
}

func TestParseCondition_MalformedJSON(t *testing.T) {
	_, err := ParseCondition(TriggerDeadlineProximity, []byte(`{not json`))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidCondition))
}

func TestParseCondition_UnknownType(t *testing.T) {
	_, err := ParseCondition(TriggerType("BOGUS"), []byte(`{}`))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidCondition))
}

func TestCondition_EncodeRoundTrip(t *testing.T) {
	cond, err := ParseCondition(TriggerDeadlineProximity, []byte(`{"minutes_before":90}`))
	require.NoError(t, err)

	raw, err := cond.Encode()
	require.NoError(t, err)

	again, err := ParseCondition(TriggerDeadlineProximity, raw)
	require.NoError(t, err)
	assert.Equal(t, 90, again.DeadlineProximity.MinutesBefore)
}

func TestTrigger_AppliesTo(t *testing.T) {
	elevator := "ELEVATOR_REPAIR"

	scoped := Trigger{WorkOrderType: &elevator}
	assert.True(t, scoped.AppliesTo("ELEVATOR_REPAIR"))
	assert.False(t, scoped.AppliesTo("HVAC_SERVICE"))

	wildcard := Trigger{}
	assert.True(t, wildcard.AppliesTo("ELEVATOR_REPAIR"))
	assert.True(t, wildcard.AppliesTo("HVAC_SERVICE"))
}

func TestTriggerType_TimeBased(t *testing.T) {
	assert.False(t, TriggerStatusChange.TimeBased())
	assert.False(t, TriggerFieldChange.TimeBased())
	assert.True(t, TriggerInactivity.TimeBased())
	assert.True(t, TriggerDeadlineProximity.TimeBased())
}
