package domain

import (
	"fmt"

	"github.com/yuantus/backend/internal/domain/models"
)

// ProcessTransition represents an action that can change process state
type ProcessTransition string

const (
	// TransitionComplete closes the process after its end activity is reached
	TransitionComplete ProcessTransition = "Complete"
	// TransitionCancel is the operator escape hatch for a process that
	// should not run to completion
	TransitionCancel ProcessTransition = "Cancel"
	// TransitionFail marks a process that can never resolve (stall)
	TransitionFail ProcessTransition = "Fail"
)

// ProcessStateMachine enforces valid state transitions for process instances.
// Invalid transitions return an error (fail-fast approach).
type ProcessStateMachine struct {
	// transitions maps (current state, transition) -> next state
	transitions map[stateTransitionKey]models.ProcessState
}

type stateTransitionKey struct {
	state      models.ProcessState
	transition ProcessTransition
}

// NewProcessStateMachine creates a state machine with the process lifecycle rules.
// State diagram:
//
//	        Start
//	          │
//	          ▼
//	      [Active]
//	      │   │   \
//	Complete Cancel Fail
//	      │   │      \
//	      ▼   ▼       ▼
//	[Completed] [Cancelled] [Error]
//
// Completed, Cancelled and Error are terminal.
func NewProcessStateMachine() *ProcessStateMachine {
	sm := &ProcessStateMachine{
		transitions: make(map[stateTransitionKey]models.ProcessState),
	}

	sm.addTransition(models.ProcessStateActive, TransitionComplete, models.ProcessStateCompleted)
	sm.addTransition(models.ProcessStateActive, TransitionCancel, models.ProcessStateCancelled)
	sm.addTransition(models.ProcessStateActive, TransitionFail, models.ProcessStateError)

	return sm
}

func (sm *ProcessStateMachine) addTransition(from models.ProcessState, via ProcessTransition, to models.ProcessState) {
	key := stateTransitionKey{state: from, transition: via}
	sm.transitions[key] = to
}

// Transition attempts to transition from the current state using the given action.
// Returns the new state or an error if the transition is invalid.
func (sm *ProcessStateMachine) Transition(current models.ProcessState, action ProcessTransition) (models.ProcessState, error) {
	key := stateTransitionKey{state: current, transition: action}
	next, ok := sm.transitions[key]
	if !ok {
		return current, fmt.Errorf("invalid state transition: cannot %s from %s", action, current)
	}
	return next, nil
}

// CanTransition checks if a transition is valid without performing it.
func (sm *ProcessStateMachine) CanTransition(current models.ProcessState, action ProcessTransition) bool {
	key := stateTransitionKey{state: current, transition: action}
	_, ok := sm.transitions[key]
	return ok
}

// IsTerminal returns true if the state is a terminal state (no further transitions).
func (sm *ProcessStateMachine) IsTerminal(state models.ProcessState) bool {
	return state == models.ProcessStateCompleted ||
		state == models.ProcessStateCancelled ||
		state == models.ProcessStateError
}
