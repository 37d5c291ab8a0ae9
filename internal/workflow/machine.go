// Package workflow implements a small table-driven state machine. Transitions
// declare a guard predicate and an optional entry hook; the engine interprets
// the table instead of relying on reflection or dynamic dispatch.
package workflow

import (
	"context"
	"errors"
	"fmt"
)

// State names a node in the machine.
type State string

// Subject is anything that carries a workflow state.
type Subject interface {
	CurrentState() State
}

// Guard decides whether the acting user may take a transition. Returning
// ErrTransitionUnavailable (or any error) keeps the transition hidden from
// that actor; it is not a system fault.
type Guard func(ctx context.Context, subject Subject, actorID int64) error

// Hook runs after a transition's guard passes, before the caller persists the
// new state. A hook failure aborts the transition.
type Hook func(ctx context.Context, subject Subject, actorID int64) error

// Transition is one guarded edge in the machine.
type Transition struct {
	From    State
	To      State
	Guard   Guard
	OnEnter Hook
}

// Machine interprets a transition table.
type Machine struct {
	initial     State
	transitions []Transition
	terminal    map[State]bool
}

var (
	// ErrTransitionUnavailable indicates no legal transition exists for the
	// actor between the subject's state and the requested target.
	ErrTransitionUnavailable = errors.New("workflow: transition unavailable")
	// ErrTerminalState indicates the subject already reached a terminal state.
	ErrTerminalState = errors.New("workflow: subject is in a terminal state")
)

// New builds a machine from an initial state and its transition table.
// States that never appear as a transition source are terminal.
func New(initial State, transitions []Transition) *Machine {
	terminal := make(map[State]bool)
	for _, t := range transitions {
		terminal[t.To] = true
	}
	for _, t := range transitions {
		delete(terminal, t.From)
	}
	return &Machine{initial: initial, transitions: transitions, terminal: terminal}
}

// Initial returns the machine's starting state.
func (m *Machine) Initial() State {
	return m.initial
}

// IsTerminal reports whether the state has no outgoing transitions.
func (m *Machine) IsTerminal(state State) bool {
	return m.terminal[state]
}

// Fire attempts the transition from the subject's current state to the target.
// The guard runs first; a passing guard triggers the OnEnter hook. The caller
// persists the resulting state — the machine itself holds no storage.
func (m *Machine) Fire(ctx context.Context, subject Subject, to State, actorID int64) error {
	current := subject.CurrentState()
	if m.IsTerminal(current) {
		return fmt.Errorf("%w: %s", ErrTerminalState, current)
	}
	for _, t := range m.transitions {
		if t.From != current || t.To != to {
			continue
		}
		if t.Guard != nil {
			if err := t.Guard(ctx, subject, actorID); err != nil {
				return fmt.Errorf("%w: %s -> %s", ErrTransitionUnavailable, current, to)
			}
		}
		if t.OnEnter != nil {
			if err := t.OnEnter(ctx, subject, actorID); err != nil {
				return err
			}
		}
		return nil
	}
	return fmt.Errorf("%w: %s -> %s", ErrTransitionUnavailable, current, to)
}

// Available lists the targets the actor may legally reach from the subject's
// current state. An empty list on a non-terminal state surfaces a stalled
// subject (for example a requisition with no qualifying approver).
func (m *Machine) Available(ctx context.Context, subject Subject, actorID int64) []State {
	current := subject.CurrentState()
	var targets []State
	for _, t := range m.transitions {
		if t.From != current {
			continue
		}
		if t.Guard != nil {
			if err := t.Guard(ctx, subject, actorID); err != nil {
				continue
			}
		}
		targets = append(targets, t.To)
	}
	return targets
}
