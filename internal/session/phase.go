package session

import "fmt"

// Phase is the state of one interview session.
type Phase string

const (
	PhaseCreated     Phase = "created"
	PhaseAnalyzing   Phase = "analyzing"
	PhaseQuestioning Phase = "questioning"
	PhaseEvaluating  Phase = "evaluating"
	PhaseConcluding  Phase = "concluding"
	PhaseConcluded   Phase = "concluded"
)

// transitions lists every permitted move. A phase missing from the table has no way out.
var transitions = map[Phase][]Phase{
	PhaseCreated: {PhaseAnalyzing},
	// analyzing falls back to created when the strategy or the first question cannot be produced.
	PhaseAnalyzing:   {PhaseQuestioning, PhaseCreated},
	PhaseQuestioning: {PhaseEvaluating, PhaseConcluding},
	// evaluating -> concluding also covers an explicit end after a stalled evaluation.
	PhaseEvaluating: {PhaseQuestioning, PhaseConcluding},
	PhaseConcluding: {PhaseConcluded},
	PhaseConcluded:  {},
}

// Phases returns all phases in lifecycle order.
func Phases() []Phase {
	return []Phase{PhaseCreated, PhaseAnalyzing, PhaseQuestioning, PhaseEvaluating, PhaseConcluding, PhaseConcluded}
}

// Valid reports whether p is a known phase.
func (p Phase) Valid() bool {
	_, ok := transitions[p]
	return ok
}

// CanTransition reports whether the table allows moving from p to next.
func (p Phase) CanTransition(next Phase) bool {
	for _, allowed := range transitions[p] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Terminal reports whether no transition leaves p.
func (p Phase) Terminal() bool {
	return p.Valid() && len(transitions[p]) == 0
}

func (p Phase) String() string { return string(p) }

// TransitionError describes a move the table does not allow.
type TransitionError struct {
	From Phase
	To   Phase
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("phase transition %s -> %s is not allowed", e.From, e.To)
}

func (e *TransitionError) Unwrap() error { return ErrInvalidTransition }
