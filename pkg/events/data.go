package events

import "time"

// ActivityPayload describes one unit of agent or tool work in progress.
type ActivityPayload struct {
	AgentName string `json:"agent_name,omitempty"`
	ToolName  string `json:"tool_name,omitempty"`
	Message   string `json:"message"`
	Detail    string `json:"detail,omitempty"`
}

// StatusPayload reports a coarse agent state change (started, thinking,
// synthesizing, completed).
type StatusPayload struct {
	AgentName string `json:"agent_name,omitempty"`
	Status    string `json:"status"`
	Progress  int    `json:"progress,omitempty"`
}

// ErrorPayload carries a user-presentable failure description.
type ErrorPayload struct {
	Message string `json:"message"`
	Source  string `json:"source,omitempty"`
}

// HeartbeatPayload marks a keep-alive tick on an otherwise idle stream.
type HeartbeatPayload struct {
	At time.Time `json:"at"`
}

// ConnectedPayload acknowledges a newly attached stream consumer.
type ConnectedPayload struct {
	SessionID string `json:"session_id"`
}

// NewActivityEvent builds an agent_activity event for a session.
func NewActivityEvent(sessionID, agentName, toolName, message string) Event {
	return NewEvent(sessionID, AgentActivity, &ActivityPayload{
		AgentName: agentName,
		ToolName:  toolName,
		Message:   message,
	})
}

// NewStatusEvent builds an agent_status_update event for a session.
func NewStatusEvent(sessionID, agentName, status string) Event {
	return NewEvent(sessionID, AgentStatusUpdate, &StatusPayload{
		AgentName: agentName,
		Status:    status,
	})
}

// NewErrorEvent builds an error event for a session.
func NewErrorEvent(sessionID, source, message string) Event {
	return NewEvent(sessionID, ErrorEvent, &ErrorPayload{
		Message: message,
		Source:  source,
	})
}

// NewHeartbeatEvent builds a synthetic keep-alive event.
func NewHeartbeatEvent(sessionID string) Event {
	return NewEvent(sessionID, Heartbeat, &HeartbeatPayload{At: time.Now()})
}

// NewConnectedEvent builds the synthetic event a stream yields on attach.
func NewConnectedEvent(sessionID string) Event {
	return NewEvent(sessionID, Connected, &ConnectedPayload{SessionID: sessionID})
}
