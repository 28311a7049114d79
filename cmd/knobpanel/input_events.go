package main

import (
	"encoding/json"
	"fmt"
)

// ============================================================================
// Input Events
// ============================================================================
// InputEvent is the user intent produced by the knob decoder (or injected over
// IPC). Each event is produced once and consumed once by the dispatcher.
// ============================================================================

// InputEvent is one of Left, Right, Click or LongPress.
type InputEvent uint8

const (
	EventLeft InputEvent = iota + 1
	EventRight
	EventClick
	EventLongPress
)

func (e InputEvent) String() string {
	switch e {
	case EventLeft:
		return "left"
	case EventRight:
		return "right"
	case EventClick:
		return "click"
	case EventLongPress:
		return "long_press"
	default:
		return fmt.Sprintf("input_event(%d)", uint8(e))
	}
}

// ParseInputEvent maps a wire name back to an InputEvent.
func ParseInputEvent(s string) (InputEvent, error) {
	switch s {
	case "left":
		return EventLeft, nil
	case "right":
		return EventRight, nil
	case "click":
		return EventClick, nil
	case "long_press":
		return EventLongPress, nil
	default:
		return 0, fmt.Errorf("unknown input event: %q", s)
	}
}

// EventEnvelope is the JSON wire format for events sent over IPC.
//
//	{"type": "left"}
type EventEnvelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// UnmarshalEvent parses an envelope into an input event.
func UnmarshalEvent(data []byte) (InputEvent, error) {
	var env EventEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return 0, fmt.Errorf("unmarshal envelope: %w", err)
	}
	if env.Type == "" {
		return 0, fmt.Errorf("missing event type")
	}
	return ParseInputEvent(env.Type)
}
