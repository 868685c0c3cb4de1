// Package fsm provides a small table-driven state machine over a string
// state field owned by a process.
package fsm

import (
	"errors"
	"fmt"
	"slices"
)

// ErrInvalidTransition is returned when the target state is not reachable
// from the current state.
var ErrInvalidTransition = errors.New("invalid state transition")

// StateMachine is the capability approval transitions are checked against.
type StateMachine interface {
	CurrentState() string
	CanTransition(from, to string) bool
	ApplyTransition(to string) error
}

// Restorer is implemented by machines that can be put back into an earlier
// state without a table check. Callers use it to undo a transition whose
// follow-up work failed.
type Restorer interface {
	Restore(state string)
}

// Table lists, for each state, the states it may move to.
type Table map[string][]string

// Machine enforces a Table against a state field it does not own.
type Machine struct {
	state   *string
	allowed Table
}

var (
	_ StateMachine = (*Machine)(nil)
	_ Restorer     = (*Machine)(nil)
)

// New creates a machine that reads and writes *state.
func New(state *string, allowed Table) *Machine {
	return &Machine{state: state, allowed: allowed}
}

// CurrentState returns the current state.
func (m *Machine) CurrentState() string { return *m.state }

// CanTransition checks if a transition is allowed.
func (m *Machine) CanTransition(from, to string) bool {
	return slices.Contains(m.allowed[from], to)
}

// AllowedTransitions returns the states reachable from the given state.
func (m *Machine) AllowedTransitions(from string) []string {
	return slices.Clone(m.allowed[from])
}

// ApplyTransition moves to the target state.
func (m *Machine) ApplyTransition(to string) error {
	from := *m.state
	if !m.CanTransition(from, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	*m.state = to
	return nil
}

// Restore sets the state directly, bypassing the table.
func (m *Machine) Restore(state string) { *m.state = state }
