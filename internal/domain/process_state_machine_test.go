package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/yuantus/backend/internal/domain/models"
)

func TestProcessStateMachineTransitions(t *testing.T) {
	sm := NewProcessStateMachine()

	tests := []struct {
		name    string
		from    models.ProcessState
		via     ProcessTransition
		want    models.ProcessState
		wantErr bool
	}{
		{"active completes", models.ProcessStateActive, TransitionComplete, models.ProcessStateCompleted, false},
		{"active cancels", models.ProcessStateActive, TransitionCancel, models.ProcessStateCancelled, false},
		{"active fails", models.ProcessStateActive, TransitionFail, models.ProcessStateError, false},
		{"completed cannot cancel", models.ProcessStateCompleted, TransitionCancel, "", true},
		{"completed cannot complete again", models.ProcessStateCompleted, TransitionComplete, "", true},
		{"cancelled cannot fail", models.ProcessStateCancelled, TransitionFail, "", true},
		{"error cannot complete", models.ProcessStateError, TransitionComplete, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := sm.Transition(tt.from, tt.via)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestProcessStateMachineCanTransition(t *testing.T) {
	sm := NewProcessStateMachine()

	assert.True(t, sm.CanTransition(models.ProcessStateActive, TransitionCancel))
	assert.False(t, sm.CanTransition(models.ProcessStateCompleted, TransitionCancel))
	assert.False(t, sm.CanTransition(models.ProcessStateError, TransitionFail))
}

func TestProcessStateMachineIsTerminal(t *testing.T) {
	sm := NewProcessStateMachine()

	assert.False(t, sm.IsTerminal(models.ProcessStateActive))
	assert.True(t, sm.IsTerminal(models.ProcessStateCompleted))
	assert.True(t, sm.IsTerminal(models.ProcessStateCancelled))
	assert.True(t, sm.IsTerminal(models.ProcessStateError))
}
