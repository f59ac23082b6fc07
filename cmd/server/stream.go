package server

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/gorilla/mux"
)

// handleStreamSession attaches the caller to a session's event stream over
// Server-Sent Events. The stream opens with a synthetic connected event and
// carries heartbeats while idle; it ends when the client disconnects. Opening
// a stream registers the session when it does not exist yet.
func (api *StreamingAPI) handleStreamSession(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["session_id"]

	flusher, ok := w.(http.Flusher)
	if !ok {
		api.writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	api.logger.Infof("SSE stream opened for session %s", sessionID)

	// The request context ends when the client goes away; the bus applies
	// its detach grace rule at that point.
	for event := range api.bus.StreamSession(r.Context(), sessionID) {
		data, err := json.Marshal(event)
		if err != nil {
			// Best effort: tell the client something went missing, keep going.
			api.logger.Errorf("Failed to marshal %s event for session %s: %v", event.Type, sessionID, err)
			fmt.Fprintf(w, "event: error\ndata: {\"message\":\"event serialization failed\"}\n\n")
			flusher.Flush()
			continue
		}

		fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event.Type, data)
		flusher.Flush()
	}

	api.logger.Infof("SSE stream closed for session %s", sessionID)
}
