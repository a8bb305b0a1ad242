package agent

import "github.com/fyrsmithlabs/shopd/internal/engine"

// reflectionWindow is how many trailing transcript events the gate inspects.
const reflectionWindow = 3

// ReflectionGate decides whether the most recent executor turn failed in a
// retryable way. It is a pure function of TurnState and performs no external
// calls.
type ReflectionGate struct {
	maxIterations int
}

// NewReflectionGate creates a gate honoring the given iteration bound.
func NewReflectionGate(maxIterations int) *ReflectionGate {
	if maxIterations <= 0 {
		maxIterations = DefaultMaxIterations
	}
	return &ReflectionGate{maxIterations: maxIterations}
}

// Reflect inspects the last few transcript events for tool-result error
// markers. A retry is requested only when a marker is present and the
// iteration budget leaves at least two slots, so the corrective attempt can
// itself reach the tools.
func (g *ReflectionGate) Reflect(state *TurnState) {
	state.ShouldRetry = false
	state.RetryHint = ""

	if !g.recentToolError(state) {
		return
	}
	if state.IterationCount > g.maxIterations-2 {
		return
	}

	state.ShouldRetry = true
	state.RetryHint = retryHintText
}

func (g *ReflectionGate) recentToolError(state *TurnState) bool {
	for _, ev := range state.Recent(reflectionWindow) {
		if ev.Role == engine.RoleTool && hasErrorMarker(ev.Content) {
			return true
		}
	}
	return false
}
