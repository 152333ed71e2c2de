package event

import (
	"time"

	"github.com/google/uuid"
)

// Event is a notification emitted after a committed state change. Delivery is
// best effort; nothing in the engine depends on an event being handled.
type Event struct {
	ID            string         `json:"id"`
	Type          Type           `json:"type"`
	EntityType    string         `json:"entity_type"`
	EntityID      string         `json:"entity_id"`
	InstanceID    int64          `json:"instance_id,omitempty"`
	ActorID       string         `json:"actor_id,omitempty"`
	Payload       map[string]any `json:"payload"`
	Timestamp     time.Time      `json:"timestamp"`
	CorrelationID string         `json:"correlation_id"`
}

// NewEvent creates a new domain event with generated ID and timestamp
func NewEvent(eventType Type, entityType, entityID string, payload map[string]any) *Event {
	return &Event{
		ID:            uuid.NewString(),
		Type:          eventType,
		EntityType:    entityType,
		EntityID:      entityID,
		Payload:       payload,
		Timestamp:     time.Now(),
		CorrelationID: uuid.NewString(),
	}
}

// NewEventWithCorrelation creates an event linked to a correlation chain
func NewEventWithCorrelation(eventType Type, entityType, entityID string, payload map[string]any, correlationID string) *Event {
	evt := NewEvent(eventType, entityType, entityID, payload)
	evt.CorrelationID = correlationID
	return evt
}

// ForInstance returns a copy of the event bound to a workflow instance and actor
func (e *Event) ForInstance(instanceID int64, actorID string) *Event {
	cp := *e
	cp.InstanceID = instanceID
	cp.ActorID = actorID
	return &cp
}

// WithPayload returns a new Event with an added payload key-value pair
func (e *Event) WithPayload(key string, value any) *Event {
	newPayload := make(map[string]any, len(e.Payload)+1)
	for k, v := range e.Payload {
		newPayload[k] = v
	}
	newPayload[key] = value

	cp := *e
	cp.Payload = newPayload
	return &cp
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

// GetPayloadInt retrieves an int64 value from the payload
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
