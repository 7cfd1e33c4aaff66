// Package event defines the domain events emitted after settlement state commits.
package event

import (
	"time"

	"github.com/google/uuid"
)

// Event represents a domain event. SubjectID is the record the event is about:
// a session ID for settlements, a client ID for enrollments, empty for global changes.
type Event struct {
	ID            string                 `json:"id"`
	Type          Type                   `json:"type"`
	SubjectID     string                 `json:"subject_id,omitempty"`
	Payload       map[string]interface{} `json:"payload"`
	Timestamp     time.Time              `json:"timestamp"`
	CorrelationID string                 `json:"correlation_id"`
}

// NewEvent creates a new domain event with auto-generated ID and timestamp
func NewEvent(eventType Type, subjectID string, payload map[string]interface{}) *Event {
	return NewEventWithCorrelation(eventType, subjectID, payload, uuid.NewString())
}

// NewEventWithCorrelation creates an event linked to a correlation chain
func NewEventWithCorrelation(eventType Type, subjectID string, payload map[string]interface{}, correlationID string) *Event {
	if payload == nil {
		payload = map[string]interface{}{}
	}
	return &Event{
		ID:            uuid.NewString(),
		Type:          eventType,
		SubjectID:     subjectID,
		Payload:       payload,
		Timestamp:     time.Now(),
		CorrelationID: correlationID,
	}
}

// WithPayload returns a new Event with an added payload key-value pair (immutable operation)
func (e *Event) WithPayload(key string, value interface{}) *Event {
	newPayload := make(map[string]interface{}, len(e.Payload)+1)
	for k, v := range e.Payload {
		newPayload[k] = v
	}
	newPayload[key] = value

	out := *e
	out.Payload = newPayload
	return &out
}

// GetPayloadString retrieves a string value from the payload
func (e *Event) GetPayloadString(key string) string {
	if val, ok := e.Payload[key]; ok {
		if str, ok := val.(string); ok {
			return str
		}
	}
	return ""
}

// GetPayloadInt retrieves an int64 value from the payload. Amounts are whole
// won, so float64 values decoded from JSON are truncated.
func (e *Event) GetPayloadInt(key string) int64 {
	if val, ok := e.Payload[key]; ok {
		switch v := val.(type) {
		case int64:
			return v
		case int:
			return int64(v)
		case float64:
			return int64(v)
		}
	}
	return 0
}

// GetPayloadAmounts retrieves a per-voucher amount map from the payload
func (e *Event) GetPayloadAmounts(key string) map[string]int64 {
	switch v := e.Payload[key].(type) {
	case map[string]int64:
		return v
	case map[string]interface{}:
		out := make(map[string]int64, len(v))
		for k, raw := range v {
			switch n := raw.(type) {
			case int64:
				out[k] = n
			case float64:
				out[k] = int64(n)
			}
		}
		return out
	}
	return nil
}
