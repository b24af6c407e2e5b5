package game

import (
	"strings"
	"testing"
)

func TestValidatePayloadRequiredField(t *testing.T) {
	spec := DefaultRegistry()[EventPlayerMovement]

	reasons := spec.ValidatePayload(map[string]interface{}{
		"position": map[string]interface{}{"x": 1.0, "y": 2.0},
		// velocity, timestamp, sequenceId missing
	})
	if len(reasons) != 3 {
		t.Errorf("Expected 3 missing-field reasons, got %v", reasons)
	}
}

func TestValidatePayloadTypeChecks(t *testing.T) {
	spec := DefaultRegistry()[EventPlayerMovement]

	reasons := spec.ValidatePayload(map[string]interface{}{
		"position":   "not an object",
		"velocity":   map[string]interface{}{},
		"timestamp":  "soon",
		"sequenceId": 1.0,
	})
	if len(reasons) != 2 {
		t.Errorf("Expected reasons for position and timestamp, got %v", reasons)
	}
}

func TestValidatePayloadEnum(t *testing.T) {
	spec := DefaultRegistry()[EventChatMessage]

	reasons := spec.ValidatePayload(map[string]interface{}{
		"message": "gg",
		"type":    "whisper",
	})
	if len(reasons) != 1 || !strings.Contains(reasons[0], "not allowed") {
		t.Errorf("Enum violation not reported: %v", reasons)
	}
}

func TestChatSanitization(t *testing.T) {
	spec := DefaultRegistry()[EventChatMessage]

	payload := map[string]interface{}{
		"message": "  <script>alert(1)</script>nice goal  ",
	}
	if reasons := spec.ValidatePayload(payload); len(reasons) != 0 {
		t.Fatalf("Sanitizable message rejected: %v", reasons)
	}
	if payload["message"] != "alert(1)nice goal" {
		t.Errorf("Sanitized message = %q", payload["message"])
	}
}

func TestChatLengthClamp(t *testing.T) {
	spec := DefaultRegistry()[EventChatMessage]

	payload := map[string]interface{}{
		"message": strings.Repeat("a", 500),
	}
	spec.ValidatePayload(payload)
	if got := len(payload["message"].(string)); got != 280 {
		t.Errorf("Message not clamped: len=%d", got)
	}
}

func TestRegistryPriorities(t *testing.T) {
	reg := DefaultRegistry()

	cases := map[string]Priority{
		EventGoalScored:     PriorityCritical,
		EventGameEnded:      PriorityCritical,
		EventPlayerMovement: PriorityHigh,
		EventHeartbeat:      PriorityNormal,
		EventChatMessage:    PriorityLow,
		EventGameCleanup:    PriorityLow,
	}
	for event, want := range cases {
		if got := reg[event].Priority; got != want {
			t.Errorf("%s priority = %s, want %s", event, got, want)
		}
	}
}
