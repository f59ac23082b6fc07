// Package tokens keeps LLM-bound payloads inside a configured token budget.
//
// Estimation is a fast character-class heuristic, not a real tokenizer: the
// contract is monotonicity (longer text never estimates lower) and rough
// budget compliance, never parity with any model's tokenizer. Every operation
// degrades instead of failing; callers get a smaller but valid result plus a
// log line, never an error from the hot path.
package tokens

// Role tags one side of a conversation turn.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// ChatTurn is one role-tagged message in a conversation history. Turns are
// immutable once counted: reduction produces replacement turns, it never
// rewrites content in place.
type ChatTurn struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
	Name    string `json:"name,omitempty"`
}

// SpecialistResponse is one sub-agent's raw output plus the agent it came
// from. Consumed only by the synthesis feasibility check and the emergency
// fallback; never persisted.
type SpecialistResponse struct {
	AgentName string `json:"agent_name"`
	Content   string `json:"content"`
}
