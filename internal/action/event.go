package action

import (
	"fmt"

	"github.com/mitchellh/mapstructure"
)

// EventType is what the producer wants done with an action.
type EventType string

const (
	EventRegister EventType = "register"
	EventSubmit   EventType = "submit"
	EventAbort    EventType = "abort"
)

// Event is one record of the producer's stream.
type Event struct {
	Type     EventType `mapstructure:"type" json:"type"`
	TurnID   string    `mapstructure:"turn_id" json:"turn_id"`
	ActionID string    `mapstructure:"action_id" json:"action_id"`
	Action   Action    `mapstructure:"action" json:"action"`
}

// Validate checks the routing fields and, for register and submit, the action.
func (ev Event) Validate() error {
	if ev.TurnID == "" || ev.ActionID == "" {
		return fmt.Errorf("%w: turn_id and action_id are required", ErrInvalidAction)
	}
	switch ev.Type {
	case EventRegister, EventSubmit:
		return ev.Action.Validate()
	case EventAbort:
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrUnknownEventType, ev.Type)
	}
}

// DecodeEvent converts a loosely typed record, such as one line of a JSON
// event log, into an Event.
func DecodeEvent(raw map[string]any) (Event, error) {
	var ev Event
	if err := mapstructure.Decode(raw, &ev); err != nil {
		return Event{}, fmt.Errorf("invalid event: %w", err)
	}
	if err := ev.Validate(); err != nil {
		return Event{}, err
	}
	return ev, nil
}
