package executor

import "errors"

// State is the engine's execution state.
type State int

const (
	StateIdle State = iota
	StatePlanning
	StateExecuting
	StateWaitingInput
	StatePaused
	StateCompleted
	StateFailed
)

var stateNames = [...]string{"idle", "planning", "executing", "waiting_input", "paused", "completed", "failed"}

func (s State) String() string {
	if s < StateIdle || s > StateFailed {
		return "unknown"
	}
	return stateNames[s]
}

// Busy reports whether the engine is doing or about to do something.
func (s State) Busy() bool {
	return s == StatePlanning || s == StateExecuting
}

// active reports whether a plan is loaded.
func (s State) active() bool {
	return s == StateExecuting || s == StateWaitingInput || s == StatePaused
}

var (
	ErrEmptyPlan          = errors.New("no actions to execute")
	ErrStepBudgetExceeded = errors.New("step budget exceeded")
	ErrBackendUnavailable = errors.New("automation backend unavailable")
)
