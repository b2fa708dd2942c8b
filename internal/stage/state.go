package stage

import "fmt"

// State is an item's position in the scoring pipeline.
type State string

const (
	StateFetched         State = "fetched"
	StateAmbiguityScored State = "ambiguity-scored"
	StatePatternMined    State = "pattern-mined"
	StateRiskAssessed    State = "risk-assessed"
	StateAutoCleared     State = "auto-cleared"
	StatePendingOverride State = "pending-override"
	StateResolved        State = "resolved"
	StateFailed          State = "failed"
)

// allowedTransitions is the per-item state machine. Terminal states are
// auto-cleared, resolved, and failed.
var allowedTransitions = map[State]map[State]struct{}{
	StateFetched: {
		StateAmbiguityScored: {},
		StateFailed:          {},
	},
	StateAmbiguityScored: {
		StatePatternMined: {},
		StateFailed:       {},
	},
	StatePatternMined: {
		StateRiskAssessed: {},
		StateAutoCleared:  {}, // zero pattern matches skip risk analysis
		StateFailed:       {},
	},
	StateRiskAssessed: {
		StateAutoCleared:     {},
		StatePendingOverride: {},
		StateFailed:          {},
	},
	StatePendingOverride: {
		StateResolved: {},
	},
}

// Transition validates a state change and returns the new state.
func Transition(from, to State) (State, error) {
	if _, ok := allowedTransitions[from][to]; !ok {
		return from, fmt.Errorf("stage: invalid transition %s -> %s", from, to)
	}
	return to, nil
}

// Terminal reports whether no further automated action applies to s.
func Terminal(s State) bool {
	return s == StateAutoCleared || s == StateResolved || s == StateFailed
}
