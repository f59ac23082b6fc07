package server

import (
	"encoding/json"
	"net/http"
	"sort"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"agentchat/core/pkg/events"
)

// CreateSessionRequest optionally carries a caller-chosen session id.
type CreateSessionRequest struct {
	SessionID string `json:"session_id,omitempty"`
}

// CreateSessionResponse reports the id the session was registered under.
type CreateSessionResponse struct {
	SessionID string `json:"session_id"`
	Created   bool   `json:"created"`
}

// EmitEventRequest is the producer-facing emission body. Unknown event types
// are rejected rather than silently renamed.
type EmitEventRequest struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// EmitEventResponse reports whether the event reached the session queue.
// Delivery is best-effort; a false here is advisory, not an error.
type EmitEventResponse struct {
	Delivered bool `json:"delivered"`
}

// handleCreateSession registers a session, minting an id when the caller did
// not choose one. Re-creating an existing session is a no-op.
func (api *StreamingAPI) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req CreateSessionRequest
	if r.Body != nil {
		// An empty body is fine: the id is optional.
		_ = json.NewDecoder(r.Body).Decode(&req)
	}

	sessionID := req.SessionID
	created := true
	if sessionID == "" {
		sessionID = uuid.NewString()
	} else if api.bus.HasSession(sessionID) {
		created = false
	}
	api.bus.AddSession(sessionID)

	api.logger.Infof("session %s registered via API (created=%v)", sessionID, created)
	api.writeJSON(w, http.StatusOK, CreateSessionResponse{
		SessionID: sessionID,
		Created:   created,
	})
}

// handleListSessions returns a snapshot of active sessions plus bus totals.
func (api *StreamingAPI) handleListSessions(w http.ResponseWriter, r *http.Request) {
	infos := api.bus.Sessions()
	sort.Slice(infos, func(i, j int) bool {
		return infos[i].CreatedAt.Before(infos[j].CreatedAt)
	})

	api.writeJSON(w, http.StatusOK, map[string]interface{}{
		"sessions": infos,
		"stats":    api.bus.Stats(),
	})
}

// handleRemoveSession drops a session and its activity history.
func (api *StreamingAPI) handleRemoveSession(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["session_id"]
	if !api.bus.RemoveSession(sessionID) {
		api.writeError(w, http.StatusNotFound, "session not found")
		return
	}
	api.writeJSON(w, http.StatusOK, map[string]interface{}{
		"session_id": sessionID,
		"removed":    true,
	})
}

// handleEmitEvent enqueues one event for a session's stream. The response is
// 200 even when the event is dropped: producers must never fail because a
// consumer is slow or gone.
func (api *StreamingAPI) handleEmitEvent(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["session_id"]

	var req EmitEventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	eventType, payload, err := decodeEmission(req)
	if err != nil {
		api.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	delivered := api.bus.Emit(sessionID, eventType, payload)
	api.writeJSON(w, http.StatusOK, EmitEventResponse{Delivered: delivered})
}

// decodeEmission maps the wire body onto a typed payload so stream consumers
// see the same shapes that in-process producers emit.
func decodeEmission(req EmitEventRequest) (events.EventType, interface{}, error) {
	switch events.EventType(req.Type) {
	case events.AgentActivity:
		var payload events.ActivityPayload
		if err := unmarshalPayload(req.Data, &payload); err != nil {
			return "", nil, err
		}
		return events.AgentActivity, &payload, nil
	case events.AgentStatusUpdate:
		var payload events.StatusPayload
		if err := unmarshalPayload(req.Data, &payload); err != nil {
			return "", nil, err
		}
		return events.AgentStatusUpdate, &payload, nil
	case events.ErrorEvent:
		var payload events.ErrorPayload
		if err := unmarshalPayload(req.Data, &payload); err != nil {
			return "", nil, err
		}
		return events.ErrorEvent, &payload, nil
	default:
		return "", nil, errUnknownEventType(req.Type)
	}
}

func unmarshalPayload(raw json.RawMessage, v interface{}) error {
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, v)
}

type errUnknownEventType string

func (e errUnknownEventType) Error() string {
	return "unknown event type: " + string(e)
}
