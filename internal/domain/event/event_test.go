package event

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestType_IsValid(t *testing.T) {
	tests := []struct {
		eventType Type
		want      bool
	}{
		{TypeSessionSettled, true},
		{TypeSessionsReset, true},
		{TypeEnrollmentsReplaced, true},
		{TypeCenterScheduleUpdated, true},
		{Type("session.deleted"), false},
		{Type(""), false},
	}

	for _, tt := range tests {
		t.Run(tt.eventType.String(), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.eventType.IsValid())
		})
	}
}

func TestNewEvent(t *testing.T) {
	evt := NewEvent(TypeSessionSettled, "s1", map[string]interface{}{"client_id": "c1"})

	assert.NotEmpty(t, evt.ID)
	assert.NotEmpty(t, evt.CorrelationID)
	assert.NotEqual(t, evt.ID, evt.CorrelationID)
	assert.Equal(t, "s1", evt.SubjectID)
	assert.False(t, evt.Timestamp.IsZero())
	assert.Equal(t, "c1", evt.GetPayloadString("client_id"))

	empty := NewEvent(TypeSessionsReset, "", nil)
	assert.NotNil(t, empty.Payload)

	other := NewEvent(TypeSessionSettled, "s2", nil)
	assert.NotEqual(t, evt.ID, other.ID)
}

func TestNewEventWithCorrelation(t *testing.T) {
	first := NewEvent(TypeEnrollmentsReplaced, "c1", nil)
	second := NewEventWithCorrelation(TypeSessionSettled, "s1", nil, first.CorrelationID)

	assert.Equal(t, first.CorrelationID, second.CorrelationID)
	assert.NotEqual(t, first.ID, second.ID)
}

func TestEvent_WithPayload(t *testing.T) {
	original := NewEvent(TypeSessionSettled, "s1", map[string]interface{}{"total_fee": int64(55000)})
	updated := original.WithPayload("mode", "single_voucher")

	assert.Equal(t, "single_voucher", updated.GetPayloadString("mode"))
	assert.Equal(t, int64(55000), updated.GetPayloadInt("total_fee"))
	assert.Empty(t, original.GetPayloadString("mode"), "original payload is not mutated")
	assert.Equal(t, original.ID, updated.ID)
	assert.Equal(t, original.CorrelationID, updated.CorrelationID)
}

func TestEvent_PayloadAccessors(t *testing.T) {
	evt := NewEvent(TypeSessionSettled, "s1", map[string]interface{}{
		"as_int":     42,
		"as_int64":   int64(43),
		"as_float":   44.0,
		"wrong_type": "x",
		"usage":      map[string]int64{"v1": 50000},
	})

	assert.Equal(t, int64(42), evt.GetPayloadInt("as_int"))
	assert.Equal(t, int64(43), evt.GetPayloadInt("as_int64"))
	assert.Equal(t, int64(44), evt.GetPayloadInt("as_float"))
	assert.Equal(t, int64(0), evt.GetPayloadInt("wrong_type"))
	assert.Equal(t, int64(0), evt.GetPayloadInt("missing"))
	assert.Empty(t, evt.GetPayloadString("as_int"))
	assert.Equal(t, map[string]int64{"v1": 50000}, evt.GetPayloadAmounts("usage"))
	assert.Nil(t, evt.GetPayloadAmounts("missing"))
}

func TestEvent_JSONRoundTripKeepsAmounts(t *testing.T) {
	evt := NewEvent(TypeSessionSettled, "s1", map[string]interface{}{
		"total_support": int64(45000),
		"usage":         map[string]int64{"v1": 45000},
	})

	raw, err := json.Marshal(evt)
	require.NoError(t, err)

	var decoded Event
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, TypeSessionSettled, decoded.Type)
	assert.Equal(t, int64(45000), decoded.GetPayloadInt("total_support"))
	assert.Equal(t, map[string]int64{"v1": 45000}, decoded.GetPayloadAmounts("usage"))
}
