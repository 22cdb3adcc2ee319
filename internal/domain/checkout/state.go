package checkout

import "fmt"

// State is a step of a single checkout attempt.
type State int

const (
	StateBuilding State = iota
	StatePriced
	StateCommitting
	StateCommitted
	StateAborted
)

func (s State) String() string {
	switch s {
	case StateBuilding:
		return "building"
	case StatePriced:
		return "priced"
	case StateCommitting:
		return "committing"
	case StateCommitted:
		return "committed"
	case StateAborted:
		return "aborted"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Terminal reports whether s ends an attempt.
func (s State) Terminal() bool {
	return s == StateCommitted || s == StateAborted
}

var stateEdges = map[State][]State{
	StateBuilding:   {StatePriced, StateAborted},
	StatePriced:     {StateCommitting, StateAborted},
	StateCommitting: {StateCommitted, StateAborted},
}

func (s State) canMoveTo(next State) bool {
	for _, n := range stateEdges[s] {
		if n == next {
			return true
		}
	}
	return false
}
