package tokens

import (
	"math"
	"unicode"
)

// EstimateTokens approximates the token count of arbitrary text. Characters
// are bucketed into four classes, each divided by an empirical divisor, then
// an overhead factor is applied. Deterministic, input-only, and monotonic:
// a longer string never estimates below its prefix. Empty input is 0 tokens;
// any non-empty input is at least 1.
func (m *Manager) EstimateTokens(text string) int {
	if text == "" {
		return 0
	}

	var alpha, digit, space, symbol int
	for _, r := range text {
		switch {
		case unicode.IsLetter(r):
			alpha++
		case unicode.IsDigit(r):
			digit++
		case unicode.IsSpace(r):
			space++
		default:
			symbol++
		}
	}

	estimate := float64(alpha)/m.est.AlphaDivisor +
		float64(digit)/m.est.DigitDivisor +
		float64(space)/m.est.SpaceDivisor +
		float64(symbol)/m.est.SymbolDivisor
	estimate *= m.est.OverheadFactor

	tokens := int(math.Floor(estimate))
	if tokens < 1 {
		return 1
	}
	return tokens
}

// EstimateTurnTokens estimates one turn: role, content, and name, plus a
// fixed per-turn overhead for message delimiters.
func (m *Manager) EstimateTurnTokens(turn ChatTurn) int {
	total := m.EstimateTokens(string(turn.Role)) + m.EstimateTokens(turn.Content)
	if turn.Name != "" {
		total += m.EstimateTokens(turn.Name)
	}
	return total + turnOverheadTokens
}

// EstimateTurnsTokens estimates a whole history, including per-turn
// conversation formatting overhead.
func (m *Manager) EstimateTurnsTokens(turns []ChatTurn) int {
	total := 0
	for _, turn := range turns {
		total += m.EstimateTurnTokens(turn)
	}
	return total + len(turns)*listOverheadTokens
}
