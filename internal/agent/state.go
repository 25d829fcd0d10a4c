package agent

import "github.com/molviz/pymol-agent/internal/memory"

// State is the per-conversation context: the two memory tiers and the turn
// counter. It is exclusively owned by one Loop; deployments running several
// conversations create one State each.
type State struct {
	Memory *memory.System
	turns  int
}

// NewState creates conversation state around mem.
func NewState(mem *memory.System) *State {
	return &State{Memory: mem}
}

// Turns reports how many user turns this conversation has processed.
func (s *State) Turns() int { return s.turns }
