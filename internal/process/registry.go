package process

import (
	"iter"
	"reflect"
	"runtime"
	"strings"
)

// ApprovalTransition holds the approve and revoke transitions for one approval.
type ApprovalTransition[P any] struct {
	approvalID string

	Approve TransitionFunc[P]
	Revoke  TransitionFunc[P]

	// Target states for state-machine driven processes. Empty for plain actions.
	ApproveState string
	RevokeState  string
}

// NewApprovalTransition creates a transition entry for approvalID.
func NewApprovalTransition[P any](approvalID string, approve, revoke TransitionFunc[P]) *ApprovalTransition[P] {
	return &ApprovalTransition[P]{approvalID: approvalID, Approve: approve, Revoke: revoke}
}

// ApprovalID returns the approval this entry belongs to.
func (t *ApprovalTransition[P]) ApprovalID() string { return t.approvalID }

// ApproveName returns the approve function's name, or "" if unset.
func (t *ApprovalTransition[P]) ApproveName() string { return funcName(t.Approve) }

// RevokeName returns the revoke function's name, or "" if unset.
func (t *ApprovalTransition[P]) RevokeName() string { return funcName(t.Revoke) }

// funcName returns the short name of fn: "approveIt" for a method
// expression (*Process).approveIt or a method value p.approveIt.
func funcName[P any](fn TransitionFunc[P]) string {
	if fn == nil {
		return ""
	}
	f := runtime.FuncForPC(reflect.ValueOf(fn).Pointer())
	if f == nil {
		return ""
	}
	name := strings.TrimSuffix(f.Name(), "-fm")
	if i := strings.LastIndex(name, "."); i >= 0 {
		name = name[i+1:]
	}
	return name
}

// TransitionRegistry maps approval ids to their transitions. The order in
// which approvals are first referenced is the canonical approval sequence.
// A registry is populated at setup and read-only afterwards.
type TransitionRegistry[P any] struct {
	transitions map[string]*ApprovalTransition[P]
	order       []string
}

// NewTransitionRegistry creates an empty registry.
func NewTransitionRegistry[P any]() *TransitionRegistry[P] {
	return &TransitionRegistry[P]{transitions: make(map[string]*ApprovalTransition[P])}
}

// AddApproval ensures an entry exists for the approval, appending it to the
// sequence on first reference.
func (r *TransitionRegistry[P]) AddApproval(id Identity) *ApprovalTransition[P] {
	key := id.ApprovalID()
	if t, ok := r.transitions[key]; ok {
		return t
	}
	t := NewApprovalTransition[P](key, nil, nil)
	r.transitions[key] = t
	r.order = append(r.order, key)
	return t
}

// AddApproveTransition sets the approve transition, leaving revoke untouched.
func (r *TransitionRegistry[P]) AddApproveTransition(id Identity, fn TransitionFunc[P]) *ApprovalTransition[P] {
	t := r.AddApproval(id)
	t.Approve = fn
	return t
}

// AddRevokeTransition sets the revoke transition, leaving approve untouched.
func (r *TransitionRegistry[P]) AddRevokeTransition(id Identity, fn TransitionFunc[P]) *ApprovalTransition[P] {
	t := r.AddApproval(id)
	t.Revoke = fn
	return t
}

// Get returns the entry for the approval, or nil. It never creates entries.
func (r *TransitionRegistry[P]) Get(id Identity) *ApprovalTransition[P] {
	if id == nil {
		return nil
	}
	return r.transitions[id.ApprovalID()]
}

// ApprovalOrder returns approval ids in first-registration order.
func (r *TransitionRegistry[P]) ApprovalOrder() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Len returns the number of registered approvals.
func (r *TransitionRegistry[P]) Len() int { return len(r.order) }

// All iterates entries in sequence order.
func (r *TransitionRegistry[P]) All() iter.Seq[*ApprovalTransition[P]] {
	return func(yield func(*ApprovalTransition[P]) bool) {
		for _, id := range r.order {
			if !yield(r.transitions[id]) {
				return
			}
		}
	}
}
