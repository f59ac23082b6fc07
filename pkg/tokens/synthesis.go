package tokens

import "strings"

// routingKeywords mark a coordinator response as pure routing chatter, which
// adds nothing once the specialist bodies are assembled directly.
var routingKeywords = []string{
	"specialist", "defer", "better suited", "route this", "delegate",
}

const emergencyNote = "[Note: Response assembled in emergency mode because the combined specialist output exceeded the synthesis budget. Some conversational framing was removed.]"

const emptyFallbackResponse = "No detailed response is available from the specialist agents."

// CheckSynthesisFeasibility reports whether the combined specialist and
// coordinator responses can still go through an LLM synthesis call without
// overflowing the model. A fixed synthesis-prompt reserve is held back from
// the safe limit. Pure predicate: the only side effect is a diagnostic log
// when synthesis is infeasible.
func (m *Manager) CheckSynthesisFeasibility(responses []SpecialistResponse, coordinatorResponse string) (bool, int) {
	parts := make([]string, 0, len(responses)+1)
	if strings.TrimSpace(coordinatorResponse) != "" {
		parts = append(parts, coordinatorResponse)
	}
	for _, resp := range responses {
		if strings.TrimSpace(resp.Content) != "" {
			parts = append(parts, resp.Content)
		}
	}

	totalTokens := m.EstimateTokens(strings.Join(parts, "\n\n"))
	feasible := totalTokens <= m.budget.SafeLimit-synthesisReserveTokens
	if !feasible {
		m.log.Warnf("synthesis infeasible: %d estimated tokens against safe limit %d (reserve %d), falling back to direct assembly",
			totalTokens, m.budget.SafeLimit, synthesisReserveTokens)
	}
	return feasible, totalTokens
}

// EmergencyFallbackSynthesis assembles one user-facing answer from raw
// specialist responses without an LLM call. Used only when
// CheckSynthesisFeasibility says synthesis would overflow the model.
// Routing-only coordinator chatter is dropped, leading agent-name markers
// are stripped from each specialist body, and the survivors are joined with
// blank lines plus a fixed emergency disclaimer. Never fails: with nothing
// to assemble it returns a fixed placeholder string.
func (m *Manager) EmergencyFallbackSynthesis(responses []SpecialistResponse, coordinatorResponse string) string {
	bodies := make([]string, 0, len(responses)+1)

	coordinator := strings.TrimSpace(coordinatorResponse)
	if coordinator != "" && !isRoutingOnly(coordinator) {
		bodies = append(bodies, coordinator)
	}

	for _, resp := range responses {
		body := stripAgentPrefix(strings.TrimSpace(resp.Content), resp.AgentName)
		if body != "" {
			bodies = append(bodies, body)
		}
	}

	if len(bodies) == 0 {
		m.log.Warnf("emergency synthesis had no usable specialist content (%d responses)", len(responses))
		return emptyFallbackResponse
	}

	m.log.Infof("assembled emergency response from %d of %d specialist responses", len(bodies), len(responses))
	return strings.Join(bodies, "\n\n") + "\n\n" + emergencyNote
}

// isRoutingOnly detects coordinator output that merely hands the question to
// specialists.
func isRoutingOnly(text string) bool {
	lower := strings.ToLower(text)
	for _, keyword := range routingKeywords {
		if strings.Contains(lower, keyword) {
			return true
		}
	}
	return false
}

// stripAgentPrefix removes a leading "[AgentName] " or short "Prefix: "
// speaker marker. A colon prefix is recognized only below agentPrefixMaxLen
// characters so genuine sentences are left intact.
func stripAgentPrefix(body, agentName string) string {
	if body == "" {
		return body
	}

	if strings.HasPrefix(body, "[") {
		if end := strings.Index(body, "] "); end > 0 {
			return strings.TrimSpace(body[end+2:])
		}
	}

	if agentName != "" {
		if rest, ok := strings.CutPrefix(body, agentName+": "); ok {
			return strings.TrimSpace(rest)
		}
	}

	if colon := strings.Index(body, ": "); colon > 0 && colon < agentPrefixMaxLen {
		prefix := body[:colon]
		if !strings.ContainsAny(prefix, ".!?\n") {
			return strings.TrimSpace(body[colon+2:])
		}
	}

	return body
}
