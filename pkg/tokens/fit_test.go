package tokens

import (
	"fmt"
	"reflect"
	"strings"
	"testing"
)

func turnWithTokens(m *Manager, role Role, approxTokens int) ChatTurn {
	// Letter-heavy filler: each "alpha beta " repeat is a stable estimate,
	// so scale repeats until the turn lands near the target.
	unit := "alpha beta "
	perUnit := float64(m.EstimateTokens(strings.Repeat(unit, 100))) / 100
	repeats := int(float64(approxTokens) / perUnit)
	if repeats < 1 {
		repeats = 1
	}
	return ChatTurn{Role: role, Content: strings.Repeat(unit, repeats)}
}

func TestFitToBudget_AlreadyFittingUnchanged(t *testing.T) {
	m := newTestManager(t)
	turns := []ChatTurn{
		{Role: RoleSystem, Content: "you are a router"},
		{Role: RoleUser, Content: "hello"},
		{Role: RoleAssistant, Content: "hi, how can I help?"},
	}

	got := m.FitToBudget(turns, 10000)
	if !reflect.DeepEqual(got, turns) {
		t.Fatalf("fitting input should be returned unchanged")
	}
}

func TestFitToBudget_DropsOldestKeepsSystemAndRecent(t *testing.T) {
	m := newTestManager(t)

	turns := []ChatTurn{{Role: RoleSystem, Content: "you are a data analyst"}}
	for i := 0; i < 40; i++ {
		role := RoleUser
		if i%2 == 1 {
			role = RoleAssistant
		}
		turn := turnWithTokens(m, role, 50)
		turn.Name = fmt.Sprintf("turn-%d", i)
		turns = append(turns, turn)
	}

	const budget = 800
	got := m.FitToBudget(turns, budget)

	if est := m.EstimateTurnsTokens(got); est > budget {
		t.Fatalf("result exceeds budget: %d > %d", est, budget)
	}
	if got[0].Role != RoleSystem {
		t.Fatalf("system turn not preserved at front")
	}
	// The final five turns of the original history survive verbatim.
	tail := turns[len(turns)-5:]
	gotTail := got[len(got)-5:]
	if !reflect.DeepEqual(gotTail, tail) {
		t.Fatalf("most recent turns not preserved verbatim")
	}
	if len(got) >= len(turns) {
		t.Fatalf("expected reduction, got %d of %d turns", len(got), len(turns))
	}
}

func TestFitToBudget_ChronologicalOrderPreserved(t *testing.T) {
	m := newTestManager(t)

	var turns []ChatTurn
	for i := 0; i < 30; i++ {
		turn := turnWithTokens(m, RoleUser, 40)
		turn.Name = fmt.Sprintf("turn-%02d", i)
		turns = append(turns, turn)
	}

	got := m.FitToBudget(turns, 700)
	for i := 1; i < len(got); i++ {
		if got[i-1].Name >= got[i].Name {
			t.Fatalf("turns out of chronological order: %s before %s", got[i-1].Name, got[i].Name)
		}
	}
}

func TestFitToBudget_CollapsesToMinimalWhenRecentTooLarge(t *testing.T) {
	m := newTestManager(t)

	// Fifty alternating turns around 300 tokens each; even the last five
	// blow a 1000-token budget, so the degenerate minimum applies.
	var turns []ChatTurn
	for i := 0; i < 50; i++ {
		role := RoleUser
		if i%2 == 1 {
			role = RoleAssistant
		}
		turns = append(turns, turnWithTokens(m, role, 300))
	}

	const budget = 1000
	got := m.FitToBudget(turns, budget)

	if len(got) != 2 {
		t.Fatalf("expected minimal collapse to 2 turns, got %d", len(got))
	}
	if m.EstimateTurnsTokens(got) >= m.EstimateTurnsTokens(turns) {
		t.Fatalf("reduction made no progress")
	}
	// Minimal set is the final two turns, truncated if still too large.
	for i, turn := range got {
		original := turns[len(turns)-2+i]
		if turn.Role != original.Role {
			t.Fatalf("minimal turn %d has role %s, expected %s", i, turn.Role, original.Role)
		}
		if !strings.HasPrefix(original.Content, strings.TrimSuffix(turn.Content, "...[truncated]")) {
			t.Fatalf("minimal turn %d is not a truncation of the original", i)
		}
	}
}

func TestFitToBudget_SummarizesOversizedTurn(t *testing.T) {
	m := newTestManager(t)

	turn := ChatTurn{
		Role:    RoleTool,
		Content: strings.Repeat("result 42 found. ", 400),
	}
	if m.EstimateTurnTokens(turn) <= summarizeThresholdTokens {
		t.Fatalf("test fixture is not oversized")
	}

	got := m.FitToBudget([]ChatTurn{turn}, 600)
	if len(got) != 1 {
		t.Fatalf("expected 1 turn, got %d", len(got))
	}
	if !strings.HasPrefix(got[0].Content, "[Summarized] ") {
		t.Fatalf("expected summarized marker, got %q", got[0].Content[:40])
	}
	body := strings.TrimPrefix(got[0].Content, "[Summarized] ")
	if len([]rune(body)) > summaryMaxChars+len("...") {
		t.Fatalf("summary too long: %d chars", len(body))
	}
}

func TestFitToBudget_Idempotent(t *testing.T) {
	m := newTestManager(t)

	var turns []ChatTurn
	turns = append(turns, ChatTurn{Role: RoleSystem, Content: "stay concise"})
	for i := 0; i < 25; i++ {
		turns = append(turns, turnWithTokens(m, RoleUser, 80))
	}

	for _, budget := range []int{400, 900, 2500} {
		once := m.FitToBudget(turns, budget)
		twice := m.FitToBudget(once, budget)
		if !reflect.DeepEqual(once, twice) {
			t.Fatalf("fit not idempotent at budget %d", budget)
		}
	}
}

func TestFitToBudget_SystemTurnsPreserved(t *testing.T) {
	m := newTestManager(t)

	turns := []ChatTurn{{Role: RoleSystem, Content: "rules of engagement"}}
	for i := 0; i < 20; i++ {
		turns = append(turns, turnWithTokens(m, RoleUser, 60))
	}
	turns = append(turns, ChatTurn{Role: RoleSystem, Content: "addendum: cite sources"})

	got := m.FitToBudget(turns, 500)
	systems := 0
	for _, turn := range got {
		if turn.Role == RoleSystem {
			systems++
		}
	}
	if systems != 2 {
		t.Fatalf("expected both system turns preserved, found %d", systems)
	}
}

func TestFitToBudget_DegenerateNeverPanicsAndTerminates(t *testing.T) {
	m := newTestManager(t)

	// Even system + last 2 exceed this budget; the call must still return
	// the minimal set rather than fail.
	turns := []ChatTurn{
		{Role: RoleSystem, Content: strings.Repeat("policy text ", 200)},
		turnWithTokens(m, RoleUser, 400),
		turnWithTokens(m, RoleAssistant, 400),
	}

	got := m.FitToBudget(turns, 50)
	if len(got) == 0 {
		t.Fatalf("expected non-empty minimal set")
	}
	if m.EstimateTurnsTokens(got) >= m.EstimateTurnsTokens(turns) {
		t.Fatalf("expected reduction even in degenerate case")
	}
}

func TestFitHistory_UsesBudgetHeadroom(t *testing.T) {
	m := newTestManager(t)
	turns := []ChatTurn{{Role: RoleUser, Content: "short"}}
	if got := m.FitHistory(turns); !reflect.DeepEqual(got, turns) {
		t.Fatalf("small history should pass through untouched")
	}
}
