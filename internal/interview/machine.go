// Package interview runs the interview lifecycle: the phase state machine,
// the message exchange with the reasoning service, and the in-memory
// registry of live sessions.
package interview

import (
	"errors"
	"fmt"

	"github.com/ashureev/interview-funnel/internal/domain"
)

// ErrInvalidTransition is returned when a phase change is not allowed.
var ErrInvalidTransition = errors.New("invalid phase transition")

// validTransitions defines the interview lifecycle. It is strictly linear.
//
//nolint:gochecknoglobals // state machine definition
var validTransitions = map[domain.Phase][]domain.Phase{
	domain.PhaseLoading:      {domain.PhaseGreeting},
	domain.PhaseGreeting:     {domain.PhaseConversation},
	domain.PhaseConversation: {domain.PhaseSummary},
	domain.PhaseSummary:      {domain.PhaseComplete},
	domain.PhaseComplete: {
		// Terminal.
	},
}

// IsValidTransition reports whether from -> to is allowed.
func IsValidTransition(from, to domain.Phase) bool {
	for _, allowed := range validTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// ValidNextPhases returns the phases reachable from p.
func ValidNextPhases(p domain.Phase) []domain.Phase {
	return validTransitions[p]
}

// IsTerminal reports whether p has no outgoing transitions.
func IsTerminal(p domain.Phase) bool {
	return p == domain.PhaseComplete
}

// StateMachine tracks the current phase. It is not safe for concurrent use;
// Session serializes access.
type StateMachine struct {
	phase        domain.Phase
	onTransition func(from, to domain.Phase)
}

// NewStateMachine returns a machine in the loading phase. onTransition may be nil.
func NewStateMachine(onTransition func(from, to domain.Phase)) *StateMachine {
	return &StateMachine{phase: domain.PhaseLoading, onTransition: onTransition}
}

// Phase returns the current phase.
func (m *StateMachine) Phase() domain.Phase {
	return m.phase
}

// Transition moves to the next phase or returns ErrInvalidTransition.
func (m *StateMachine) Transition(to domain.Phase) error {
	from := m.phase
	if !IsValidTransition(from, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	m.phase = to
	if m.onTransition != nil {
		m.onTransition(from, to)
	}
	return nil
}
