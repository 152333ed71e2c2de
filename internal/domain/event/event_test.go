package event

import (
	"testing"
	"time"
)

func TestType_IsValid(t *testing.T) {
	tests := []struct {
		name      string
		eventType Type
		want      bool
	}{
		{"workflow initiated", TypeWorkflowInitiated, true},
		{"action recorded", TypeWorkflowActionRecorded, true},
		{"workflow closed", TypeWorkflowClosed, true},
		{"admission transitioned", TypeAdmissionTransitioned, true},
		{"payment initiated", TypeAdmissionPaymentStarted, true},
		{"sla breached", TypeAdmissionSLABreached, true},
		{"unknown", Type("voucher.generated"), false},
		{"empty", Type(""), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.eventType.IsValid(); got != tt.want {
				t.Errorf("Type.IsValid() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNewEvent(t *testing.T) {
	before := time.Now()
	evt := NewEvent(TypeWorkflowClosed, "leave_request", "42", map[string]any{"status": "APPROVED"})
	after := time.Now()

	if evt.ID == "" {
		t.Error("NewEvent() ID should not be empty")
	}
	if evt.CorrelationID == "" {
		t.Error("NewEvent() CorrelationID should not be empty")
	}
	if evt.Type != TypeWorkflowClosed {
		t.Errorf("NewEvent() Type = %v, want %v", evt.Type, TypeWorkflowClosed)
	}
	if evt.EntityType != "leave_request" || evt.EntityID != "42" {
		t.Errorf("NewEvent() entity = %s/%s, want leave_request/42", evt.EntityType, evt.EntityID)
	}
	if evt.Timestamp.Before(before) || evt.Timestamp.After(after) {
		t.Errorf("NewEvent() Timestamp = %v, want between %v and %v", evt.Timestamp, before, after)
	}
	if evt.GetPayloadString("status") != "APPROVED" {
		t.Errorf("GetPayloadString(status) = %v, want APPROVED", evt.GetPayloadString("status"))
	}
}

func TestNewEventWithCorrelation(t *testing.T) {
	evt := NewEventWithCorrelation(TypeAdmissionTransitioned, "admission_application", "7", nil, "corr-1")

	if evt.CorrelationID != "corr-1" {
		t.Errorf("CorrelationID = %v, want corr-1", evt.CorrelationID)
	}
	if evt.ID == "corr-1" {
		t.Error("ID should be generated independently of the correlation ID")
	}
}

func TestEvent_WithPayload(t *testing.T) {
	original := NewEvent(TypeWorkflowInitiated, "leave_request", "1", map[string]any{"a": 1})
	updated := original.WithPayload("b", "two")

	if _, ok := original.Payload["b"]; ok {
		t.Error("WithPayload() mutated the original payload")
	}
	if updated.GetPayloadString("b") != "two" {
		t.Errorf("updated payload b = %v, want two", updated.GetPayloadString("b"))
	}
	if updated.GetPayloadInt("a") != 1 {
		t.Errorf("updated payload a = %v, want 1", updated.GetPayloadInt("a"))
	}
	if updated.ID != original.ID {
		t.Error("WithPayload() should keep the event ID")
	}
}

func TestEvent_ForInstance(t *testing.T) {
	original := NewEvent(TypeWorkflowClosed, "leave_request", "1", nil)
	bound := original.ForInstance(99, "u-1")

	if original.InstanceID != 0 || original.ActorID != "" {
		t.Error("ForInstance() mutated the original event")
	}
	if bound.InstanceID != 99 || bound.ActorID != "u-1" {
		t.Errorf("ForInstance() = %d/%s, want 99/u-1", bound.InstanceID, bound.ActorID)
	}
}

func TestEvent_GetPayloadInt(t *testing.T) {
	evt := NewEvent(TypeWorkflowActionRecorded, "x", "1", map[string]any{
		"int":   3,
		"int64": int64(4),
		"float": float64(5),
		"str":   "6",
	})

	tests := []struct {
		key  string
		want int64
	}{
		{"int", 3},
		{"int64", 4},
		{"float", 5},
		{"str", 0},
		{"missing", 0},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			if got := evt.GetPayloadInt(tt.key); got != tt.want {
				t.Errorf("GetPayloadInt(%s) = %v, want %v", tt.key, got, tt.want)
			}
		})
	}
}

func TestEvent_UniqueIDs(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		evt := NewEvent(TypeWorkflowInitiated, "x", "1", nil)
		if seen[evt.ID] {
			t.Fatalf("duplicate event ID %s", evt.ID)
		}
		seen[evt.ID] = true
	}
}
