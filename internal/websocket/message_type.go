package websocket

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// EventName is the name carried in every envelope.
type EventName string

// Server -> client events.
const (
	EventConnected         EventName = "connected"
	EventNotification      EventName = "notification"
	EventTaskCreated       EventName = "task:created"
	EventTaskUpdated       EventName = "task:updated"
	EventTaskDeleted       EventName = "task:deleted"
	EventEventCreated      EventName = "event:created"
	EventEventUpdated      EventName = "event:updated"
	EventEventDeleted      EventName = "event:deleted"
	EventForceDisconnect   EventName = "force-disconnect"
	EventPong              EventName = "pong"
	EventUserRoleUpdated   EventName = "user:role-updated"
	EventUserStatusUpdated EventName = "user:status-updated"
)

// Client -> server events.
const (
	EventPing             EventName = "ping"
	EventTaskSubscribe    EventName = "task:subscribe"
	EventTaskUnsubscribe  EventName = "task:unsubscribe"
	EventEventSubscribe   EventName = "event:subscribe"
	EventEventUnsubscribe EventName = "event:unsubscribe"
	EventNotificationRead EventName = "notification:read"
)

func (e EventName) String() string {
	return string(e)
}

// IsValid reports whether e is a known event name in either direction.
func (e EventName) IsValid() bool {
	switch e {
	case EventConnected, EventNotification,
		EventTaskCreated, EventTaskUpdated, EventTaskDeleted,
		EventEventCreated, EventEventUpdated, EventEventDeleted,
		EventForceDisconnect, EventPong, EventUserRoleUpdated, EventUserStatusUpdated,
		EventPing, EventTaskSubscribe, EventTaskUnsubscribe,
		EventEventSubscribe, EventEventUnsubscribe, EventNotificationRead:
		return true
	default:
		return false
	}
}

// Envelope is the single JSON object carried by each text frame.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// EncodeEnvelope serializes payload under event. A nil payload encodes as null.
func EncodeEnvelope(event string, payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %q payload: %w", event, err)
	}
	return json.Marshal(Envelope{Event: event, Data: data})
}

// DecodeEnvelope parses one inbound frame.
func DecodeEnvelope(frame []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return nil, fmt.Errorf("invalid envelope: %w", err)
	}
	if env.Event == "" {
		return nil, errors.New("invalid envelope: missing event name")
	}
	return &env, nil
}

// ConnectedPayload is sent once a connection becomes Active.
type ConnectedPayload struct {
	Message   string    `json:"message"`
	UserID    string    `json:"userId"`
	Timestamp time.Time `json:"timestamp"`
}

// ForceDisconnectPayload is the advisory sent before a server-initiated close.
type ForceDisconnectPayload struct {
	Reason string `json:"reason"`
}

// PongPayload answers an application-level ping.
type PongPayload struct {
	Timestamp time.Time `json:"timestamp"`
}

// Notification is the payload of the notification event.
type Notification struct {
	ID        string         `json:"id"`
	Type      string         `json:"type"`
	Title     string         `json:"title"`
	Message   string         `json:"message"`
	Data      map[string]any `json:"data"`
	Timestamp time.Time      `json:"timestamp"`
}

// ParseEntityID extracts the id carried by a subscribe/unsubscribe payload.
// It accepts a bare string, a bare number, or an object with an "id" field.
func ParseEntityID(data json.RawMessage) (string, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return "", errors.New("missing id")
	}

	switch data[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return "", fmt.Errorf("invalid id: %w", err)
		}
		s = strings.TrimSpace(s)
		if s == "" {
			return "", errors.New("missing id")
		}
		return s, nil
	case '{':
		var obj struct {
			ID json.RawMessage `json:"id"`
		}
		if err := json.Unmarshal(data, &obj); err != nil {
			return "", fmt.Errorf("invalid id: %w", err)
		}
		if len(obj.ID) == 0 || obj.ID[0] == '{' {
			return "", errors.New("missing id")
		}
		return ParseEntityID(obj.ID)
	default:
		var n json.Number
		if err := json.Unmarshal(data, &n); err != nil {
			return "", fmt.Errorf("invalid id: %w", err)
		}
		return n.String(), nil
	}
}
