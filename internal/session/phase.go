package session

// Phase is a state of the session state machine.
type Phase string

const (
	PhaseIdle         Phase = "idle"
	PhaseInitializing Phase = "initializing"
	PhaseExtracting   Phase = "extracting"
	PhaseEvaluating   Phase = "evaluating"
	PhaseClaimFailed  Phase = "claim_failed"
	PhaseProving      Phase = "proving"
	PhaseSubmitting   Phase = "submitting"
	PhasePersisting   Phase = "persisting"
	PhaseCompleted    Phase = "completed"
	PhaseError        Phase = "error"
)

// IsTerminal reports whether no further transition may leave p.
func (p Phase) IsTerminal() bool {
	switch p {
	case PhaseClaimFailed, PhaseCompleted, PhaseError:
		return true
	}
	return false
}

// next lists the legal non-error successors of each phase. Every
// non-terminal phase may also move to PhaseError.
var next = map[Phase][]Phase{
	PhaseIdle:         {PhaseInitializing},
	PhaseInitializing: {PhaseExtracting},
	PhaseExtracting:   {PhaseEvaluating},
	PhaseEvaluating:   {PhaseClaimFailed, PhaseProving},
	PhaseProving:      {PhaseSubmitting},
	PhaseSubmitting:   {PhasePersisting},
	PhasePersisting:   {PhaseCompleted},
}

func canTransition(from, to Phase) bool {
	if from.IsTerminal() {
		return false
	}
	if to == PhaseError {
		return true
	}
	for _, p := range next[from] {
		if p == to {
			return true
		}
	}
	return false
}
