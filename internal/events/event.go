package events

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Target selects how an ingress event is routed to connections.
type Target string

const (
	TargetUser Target = "user"
	TargetRoom Target = "room"
	TargetAll  Target = "all"
)

var (
	ErrInvalidEvent = errors.New("invalid event")
)

// Event is the record producers put on the real-time topic.
type Event struct {
	Target Target          `json:"target"`
	UserID string          `json:"userId,omitempty"`
	Room   string          `json:"room,omitempty"`
	Name   string          `json:"event"`
	Data   json.RawMessage `json:"data,omitempty"`
}

// Validate checks that the event names its destination.
func (e *Event) Validate() error {
	if e.Name == "" {
		return fmt.Errorf("%w: missing event name", ErrInvalidEvent)
	}
	switch e.Target {
	case TargetUser:
		if e.UserID == "" {
			return fmt.Errorf("%w: user target without userId", ErrInvalidEvent)
		}
	case TargetRoom:
		if e.Room == "" {
			return fmt.Errorf("%w: room target without room", ErrInvalidEvent)
		}
	case TargetAll:
	default:
		return fmt.Errorf("%w: unknown target %q", ErrInvalidEvent, e.Target)
	}
	return nil
}

// Key is the partitioning key: events for one destination share a partition
// and keep their order.
func (e *Event) Key() string {
	switch e.Target {
	case TargetUser:
		return "user:" + e.UserID
	case TargetRoom:
		return "room:" + e.Room
	default:
		return "all"
	}
}

// Decode parses and validates one record value.
func Decode(value []byte) (*Event, error) {
	var ev Event
	if err := json.Unmarshal(value, &ev); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidEvent, err)
	}
	if err := ev.Validate(); err != nil {
		return nil, err
	}
	return &ev, nil
}
