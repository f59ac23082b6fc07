package tokens

import "strings"

var summaryKeywords = []string{
	"result", "error", "success", "found", "data", "analysis", "summary",
}

// FitHistory fits a conversation history into the budget slice reserved for
// history (SafeLimit - ContextReserve).
func (m *Manager) FitHistory(turns []ChatTurn) []ChatTurn {
	return m.FitToBudget(turns, m.budget.AvailableForHistory())
}

// FitToBudget returns a turn list whose estimate is at or below maxTokens
// whenever that is structurally possible. Reduction stages run in order of
// increasing cost and information loss, each skipped once the list fits:
//
//  1. drop oldest middle turns, preserving system turns and the most recent
//  2. summarize individually oversized turns
//  3. collapse to system turns plus the last two, hard-truncating content
//
// Already-fitting input is returned unchanged, which makes the operation
// idempotent. The degenerate case where even the minimal set exceeds the
// budget returns that minimal set; it is logged, never escalated.
func (m *Manager) FitToBudget(turns []ChatTurn, maxTokens int) []ChatTurn {
	if maxTokens <= 0 {
		maxTokens = m.budget.AvailableForHistory()
	}
	if m.EstimateTurnsTokens(turns) <= maxTokens {
		return turns
	}

	reduced := m.dropOldest(turns, maxTokens)
	if m.EstimateTurnsTokens(reduced) <= maxTokens {
		return reduced
	}

	reduced = m.summarizeOversized(reduced)
	if m.EstimateTurnsTokens(reduced) <= maxTokens {
		return reduced
	}

	reduced = m.hardTruncate(reduced)
	if remaining := m.EstimateTurnsTokens(reduced); remaining > maxTokens {
		m.log.Warnf("history still over budget after all reductions: %d tokens for budget %d (%d turns kept)",
			remaining, maxTokens, len(reduced))
	}
	return reduced
}

// dropOldest keeps every system turn and the last recentTurnsKept turns
// verbatim, then readmits middle turns newest-first while they fit. Accepted
// middle turns are returned in their original chronological position.
func (m *Manager) dropOldest(turns []ChatTurn, maxTokens int) []ChatTurn {
	n := len(turns)
	recentStart := n - recentTurnsKept
	if recentStart < 0 {
		recentStart = 0
	}

	keep := make([]bool, n)
	for i, turn := range turns {
		if turn.Role == RoleSystem || i >= recentStart {
			keep[i] = true
		}
	}

	preserved := collectKept(turns, keep)
	used := m.EstimateTurnsTokens(preserved)
	if used > maxTokens {
		return m.collapseToMinimal(turns)
	}

	// Middle turns, newest first, while the leftover budget holds. Stopping
	// at the first miss keeps the readmitted window contiguous with the
	// preserved recent turns.
	for i := recentStart - 1; i >= 0; i-- {
		if keep[i] {
			continue
		}
		cost := m.EstimateTurnTokens(turns[i]) + listOverheadTokens
		if used+cost > maxTokens {
			break
		}
		keep[i] = true
		used += cost
	}

	return collectKept(turns, keep)
}

// summarizeOversized replaces any turn estimated above the summarize
// threshold with a keyword-driven extractive summary. Other turns pass
// through untouched.
func (m *Manager) summarizeOversized(turns []ChatTurn) []ChatTurn {
	out := make([]ChatTurn, 0, len(turns))
	for _, turn := range turns {
		if m.EstimateTurnTokens(turn) <= summarizeThresholdTokens {
			out = append(out, turn)
			continue
		}
		summarized := turn
		summarized.Content = "[Summarized] " + extractSummary(turn.Content)
		m.log.Debugf("summarized oversized %s turn: %d chars down to %d",
			turn.Role, len(turn.Content), len(summarized.Content))
		out = append(out, summarized)
	}
	return out
}

// extractSummary keeps the first sentence, the last sentence, and any
// sentence carrying a status keyword, capped at summaryMaxChars.
func extractSummary(content string) string {
	sentences := strings.Split(content, ". ")
	if len(sentences) <= 2 {
		return truncateRunes(content, summaryMaxChars, "...")
	}

	kept := []string{sentences[0]}
	for _, sentence := range sentences[1 : len(sentences)-1] {
		lower := strings.ToLower(sentence)
		for _, keyword := range summaryKeywords {
			if strings.Contains(lower, keyword) {
				kept = append(kept, sentence)
				break
			}
		}
	}
	kept = append(kept, sentences[len(sentences)-1])

	summary := strings.Join(kept, ". ")
	return truncateRunes(summary, summaryMaxChars, "...")
}

// hardTruncate is the last resort: system turns plus the final two, with
// non-system content cut to hardTruncateChars.
func (m *Manager) hardTruncate(turns []ChatTurn) []ChatTurn {
	minimal := m.collapseToMinimal(turns)
	out := make([]ChatTurn, 0, len(minimal))
	for _, turn := range minimal {
		if turn.Role != RoleSystem && len([]rune(turn.Content)) > hardTruncateChars {
			truncated := turn
			truncated.Content = truncateRunes(turn.Content, hardTruncateChars, "...[truncated]")
			out = append(out, truncated)
			continue
		}
		out = append(out, turn)
	}
	return out
}

// collapseToMinimal keeps system turns plus the last minimalTurnsKept turns,
// in original order.
func (m *Manager) collapseToMinimal(turns []ChatTurn) []ChatTurn {
	n := len(turns)
	start := n - minimalTurnsKept
	if start < 0 {
		start = 0
	}

	out := make([]ChatTurn, 0, minimalTurnsKept)
	for i, turn := range turns {
		if turn.Role == RoleSystem || i >= start {
			out = append(out, turn)
		}
	}
	return out
}

func collectKept(turns []ChatTurn, keep []bool) []ChatTurn {
	out := make([]ChatTurn, 0, len(turns))
	for i, turn := range turns {
		if keep[i] {
			out = append(out, turn)
		}
	}
	return out
}

// truncateRunes cuts s to at most max runes, appending suffix when a cut
// happened. Rune-based so multibyte content is never split mid-character.
func truncateRunes(s string, max int, suffix string) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max]) + suffix
}
