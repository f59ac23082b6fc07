package tokens

// TokenStats is a point-in-time breakdown of budget usage for one prospective
// LLM call. Recomputed on demand from its inputs; never cached.
type TokenStats struct {
	MessagesTokens  int     `json:"messages_tokens"`
	RAGTokens       int     `json:"rag_tokens"`
	SystemTokens    int     `json:"system_tokens"`
	TotalTokens     int     `json:"total_tokens"`
	AvailableTokens int     `json:"available_tokens"`
	UsagePercentage float64 `json:"usage_percentage"`
}

// ComputeStats derives usage statistics for a (history, RAG context, system
// prompt) triple against the configured safe limit.
func (m *Manager) ComputeStats(turns []ChatTurn, ragContext, systemPrompt string) TokenStats {
	messages := m.EstimateTurnsTokens(turns)
	rag := m.EstimateTokens(ragContext)
	system := m.EstimateTokens(systemPrompt)
	total := messages + rag + system

	return TokenStats{
		MessagesTokens:  messages,
		RAGTokens:       rag,
		SystemTokens:    system,
		TotalTokens:     total,
		AvailableTokens: m.budget.SafeLimit - total,
		UsagePercentage: float64(total) / float64(m.budget.SafeLimit) * 100,
	}
}
