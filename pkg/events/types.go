package events

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// EventType identifies the kind of payload carried by a stream event.
type EventType string

const (
	// Events produced by worker code during a chat request
	AgentActivity     EventType = "agent_activity"
	AgentStatusUpdate EventType = "agent_status_update"
	ErrorEvent        EventType = "error"

	// Synthetic events injected by the stream itself
	Heartbeat EventType = "heartbeat"
	Connected EventType = "connected"
)

// Event is one record in a session's stream. Events are write-once: FIFO
// order within a session follows enqueue order, with no ordering guarantee
// across sessions.
type Event struct {
	ID        string      `json:"id"`
	Type      EventType   `json:"type"`
	Payload   interface{} `json:"payload,omitempty"`
	SessionID string      `json:"session_id,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// MarshalJSON flattens the event into the shape the frontend consumes:
// the payload is emitted under "data" and empty fields are omitted.
func (e Event) MarshalJSON() ([]byte, error) {
	result := map[string]interface{}{
		"id":        e.ID,
		"type":      e.Type,
		"timestamp": e.Timestamp,
	}

	if e.SessionID != "" {
		result["session_id"] = e.SessionID
	}
	if e.Payload != nil {
		result["data"] = e.Payload
	}

	return json.Marshal(result)
}

// NewEvent builds an event with a fresh ID and the current timestamp.
func NewEvent(sessionID string, eventType EventType, payload interface{}) Event {
	return Event{
		ID:        GenerateEventID(),
		Type:      eventType,
		Payload:   payload,
		SessionID: sessionID,
		Timestamp: time.Now(),
	}
}

// GenerateEventID returns a unique identifier for an event.
func GenerateEventID() string {
	return uuid.NewString()
}
