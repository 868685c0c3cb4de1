package process

import (
	"fmt"

	"github.com/jkaninda/signoffs/internal/fsm"
)

// Machined is a process driven by a state machine.
type Machined interface {
	Accessor
	StateMachine() fsm.StateMachine
}

// FsmActions declares approval transitions that also move the process's
// state machine to a target state. An approval is only available, or
// revokable, when the machine can reach the registered target.
type FsmActions[P Machined] struct {
	cfg actionsConfig[P]
}

// NewFsmActions creates an empty state-machine actions descriptor.
func NewFsmActions[P Machined](opts ...Option) *FsmActions[P] {
	return &FsmActions[P]{cfg: newActionsConfig[P](opts)}
}

// RegisterApproveTransition registers fn as the approve transition for id,
// moving the machine to target.
func (a *FsmActions[P]) RegisterApproveTransition(id Identity, target string, fn TransitionFunc[P]) *FsmActions[P] {
	t := a.cfg.registry.AddApproveTransition(id, fn)
	t.ApproveState = target
	return a
}

// RegisterRevokeTransition registers fn as the revoke transition for id,
// moving the machine to target.
func (a *FsmActions[P]) RegisterRevokeTransition(id Identity, target string, fn TransitionFunc[P]) *FsmActions[P] {
	t := a.cfg.registry.AddRevokeTransition(id, fn)
	t.RevokeState = target
	return a
}

// Bind resolves approval id under a different accessor name.
func (a *FsmActions[P]) Bind(id Identity, name string) *FsmActions[P] {
	a.cfg.registry.AddApproval(id)
	a.cfg.names[id.ApprovalID()] = name
	return a
}

// Registry returns the transition registry.
func (a *FsmActions[P]) Registry() *TransitionRegistry[P] { return a.cfg.registry }

// For binds the actions to a process instance and its state machine.
func (a *FsmActions[P]) For(p P) (*ActionsRegistry[P], error) {
	m := p.StateMachine()
	if m == nil {
		return nil, fmt.Errorf("%w: process %T has no state machine", ErrImproperlyConfigured, p)
	}
	seq, err := a.cfg.sequence(p)
	if err != nil {
		return nil, err
	}
	return newActionsRegistry(p, seq, a.cfg.registry, m, a.cfg.opts), nil
}
