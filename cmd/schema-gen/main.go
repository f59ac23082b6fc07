package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/invopop/jsonschema"

	"agentchat/core/pkg/events"
	"agentchat/core/pkg/tokens"
)

// StreamEvent is the wire shape of one SSE data frame: the envelope with its
// payload flattened under "data".
type StreamEvent struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	SessionID string    `json:"session_id,omitempty"`
	Timestamp string    `json:"timestamp"`
	Data      EventData `json:"data,omitempty"`
}

// EventData is the discriminated union of all payload types a stream can
// carry.
type EventData struct {
	Activity  *events.ActivityPayload  `json:"agent_activity,omitempty"`
	Status    *events.StatusPayload    `json:"agent_status_update,omitempty"`
	Error     *events.ErrorPayload     `json:"error,omitempty"`
	Heartbeat *events.HeartbeatPayload `json:"heartbeat,omitempty"`
	Connected *events.ConnectedPayload `json:"connected,omitempty"`
}

// TokenAPI groups the request/response bodies of the token budget endpoints
// for one shared schema.
type TokenAPI struct {
	Turn       tokens.ChatTurn           `json:"turn"`
	Stats      tokens.TokenStats         `json:"stats"`
	Specialist tokens.SpecialistResponse `json:"specialist_response"`
}

func writeSchema(filename string, v any) error {
	r := new(jsonschema.Reflector)
	r.ExpandedStruct = true
	r.DoNotReference = false
	r.RequiredFromJSONSchemaTags = true

	schema := r.Reflect(v)

	dir := filepath.Dir(filename)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	f, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("failed to create file %s: %w", filename, err)
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(schema)
}

func main() {
	fmt.Println("Generating JSON schemas for stream and token API types...")

	if err := writeSchema("schemas/stream-event.schema.json", StreamEvent{}); err != nil {
		fmt.Printf("Error generating stream event schema: %v\n", err)
		os.Exit(1)
	}

	if err := writeSchema("schemas/token-api.schema.json", TokenAPI{}); err != nil {
		fmt.Printf("Error generating token API schema: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("Successfully generated schemas:")
	fmt.Println("  - schemas/stream-event.schema.json")
	fmt.Println("  - schemas/token-api.schema.json")
}
