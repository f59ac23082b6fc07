package tokens

import (
	"fmt"

	"agentchat/core/pkg/logger"
)

// Default budget configuration, sized for a 128k-context model.
const (
	DefaultMaxTokens      = 128000
	DefaultSafeLimit      = 120000
	DefaultContextReserve = 8000
)

// Reduction and overhead constants. These ride on top of the estimator and
// are shared by every reduction stage.
const (
	// turnOverheadTokens accounts for role/name/content delimiters per turn.
	turnOverheadTokens = 10
	// listOverheadTokens accounts for conversation formatting per turn.
	listOverheadTokens = 3

	// recentTurnsKept are preserved verbatim by the drop-oldest stage.
	recentTurnsKept = 5
	// minimalTurnsKept is the degenerate collapse target.
	minimalTurnsKept = 2

	// summarizeThresholdTokens marks a turn as oversized.
	summarizeThresholdTokens = 2000
	// summaryMaxChars caps an extractive summary.
	summaryMaxChars = 1000
	// hardTruncateChars caps non-system content in the final stage.
	hardTruncateChars = 500

	// queryHeaderLines are always preserved from tabular output.
	queryHeaderLines = 5
	// queryFooterReserveTokens is held back for the truncation footer.
	queryFooterReserveTokens = 500
	// queryFallbackChars is the flat slice taken when truncation itself fails.
	queryFallbackChars = 10000

	// synthesisReserveTokens is the prompt overhead assumed for an LLM
	// synthesis call.
	synthesisReserveTokens = 1000

	// agentPrefixMaxLen bounds what counts as a strippable "Name: " marker,
	// so real sentences with a colon are left alone.
	agentPrefixMaxLen = 20
)

// Budget is the process-wide token ceiling configuration.
// AvailableForHistory is derived: SafeLimit - ContextReserve.
type Budget struct {
	MaxTokens      int `json:"max_tokens"`
	SafeLimit      int `json:"safe_limit"`
	ContextReserve int `json:"context_reserve"`
}

// AvailableForHistory returns the slice of the budget left for conversation
// history after the system prompt and tool schema reserve.
func (b Budget) AvailableForHistory() int {
	return b.SafeLimit - b.ContextReserve
}

// Validate enforces the ordering invariant AvailableForHistory < SafeLimit < MaxTokens.
func (b Budget) Validate() error {
	if b.MaxTokens <= 0 || b.SafeLimit <= 0 || b.ContextReserve <= 0 {
		return fmt.Errorf("budget values must be positive: max=%d safe=%d reserve=%d",
			b.MaxTokens, b.SafeLimit, b.ContextReserve)
	}
	if b.SafeLimit >= b.MaxTokens {
		return fmt.Errorf("safe limit %d must be below max tokens %d", b.SafeLimit, b.MaxTokens)
	}
	if b.AvailableForHistory() >= b.SafeLimit {
		return fmt.Errorf("context reserve %d leaves no headroom below safe limit %d",
			b.ContextReserve, b.SafeLimit)
	}
	return nil
}

// DefaultBudget returns the stock 128k-model budget.
func DefaultBudget() Budget {
	return Budget{
		MaxTokens:      DefaultMaxTokens,
		SafeLimit:      DefaultSafeLimit,
		ContextReserve: DefaultContextReserve,
	}
}

// EstimatorConfig holds the character-class divisors behind EstimateTokens.
// The values are empirical tuning constants, not an approximation of any
// specific tokenizer; override them only with measurements in hand.
type EstimatorConfig struct {
	AlphaDivisor   float64
	DigitDivisor   float64
	SpaceDivisor   float64
	SymbolDivisor  float64
	OverheadFactor float64
}

// DefaultEstimatorConfig returns the stock divisors.
func DefaultEstimatorConfig() EstimatorConfig {
	return EstimatorConfig{
		AlphaDivisor:   4.0,
		DigitDivisor:   2.5,
		SpaceDivisor:   1.0,
		SymbolDivisor:  3.0,
		OverheadFactor: 1.1,
	}
}

// Manager guards the token budget for LLM-bound payloads. All operations are
// pure with respect to the manager (they read configuration only), so one
// Manager is safe for concurrent use from any number of request goroutines.
type Manager struct {
	budget Budget
	est    EstimatorConfig
	log    logger.Logger
}

// NewManager builds a Manager over the given budget.
func NewManager(budget Budget, log logger.Logger) (*Manager, error) {
	if err := budget.Validate(); err != nil {
		return nil, fmt.Errorf("invalid token budget: %w", err)
	}
	return &Manager{
		budget: budget,
		est:    DefaultEstimatorConfig(),
		log:    log,
	}, nil
}

// NewDefaultManager builds a Manager with the stock budget.
func NewDefaultManager(log logger.Logger) *Manager {
	m, _ := NewManager(DefaultBudget(), log)
	return m
}

// Budget returns the configured budget.
func (m *Manager) Budget() Budget {
	return m.budget
}

// SetEstimatorConfig overrides the estimator tuning constants.
func (m *Manager) SetEstimatorConfig(cfg EstimatorConfig) {
	m.est = cfg
}
