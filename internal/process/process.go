// Package process sequences the approvals of a business process and binds
// them to approve and revoke transitions.
//
// A process type declares its approvals once, at startup, through Actions
// (or FsmActions when the process is driven by a state machine). Each request
// then calls For(p) to get an ActionsRegistry bound to that process instance,
// which answers what may happen next and performs guarded transitions.
//
// Approvals are strictly gated: only the first unapproved approval in the
// registered order is available, and only the last approved one may be
// revoked.
package process

import (
	"context"
	"errors"
	"time"
)

// ErrImproperlyConfigured is returned when a process does not expose the
// approvals its actions were registered for.
var ErrImproperlyConfigured = errors.New("improperly configured approval process")

// Approval is the approval instance contract the engine drives.
type Approval interface {
	Identity
	IsComplete() bool
	IsApproved() bool
	// IsSigned reports whether any signoff has been collected.
	IsSigned() bool
	CanApprove(ctx context.Context, userID string) bool
	CanRevoke(ctx context.Context, userID string) bool
	Approve(ctx context.Context, userID string) error
	Revoke(ctx context.Context, userID string) error
}

// Identity identifies an approval by its registered id.
type Identity interface {
	ApprovalID() string
}

// ID is a bare approval id usable wherever an Identity is accepted.
type ID string

func (id ID) ApprovalID() string { return string(id) }

// Accessor resolves approval instances on a process by name.
type Accessor interface {
	Approval(name string) (Approval, bool)
}

// Saver is implemented by processes that persist themselves after a transition.
type Saver interface {
	Save(ctx context.Context) error
}

// Identifier is implemented by processes that carry an id for logs and audit.
type Identifier interface {
	ProcessID() string
}

// TransitionFunc is an application transition. It receives the process the
// actions are bound to and the approval being approved or revoked.
type TransitionFunc[P any] func(p P, a Approval) error

// BoundTransition is a TransitionFunc bound to a process instance.
type BoundTransition func(a Approval) error

// UnitOfWork runs fn atomically. Storage layers pass a transaction-scoped
// context to fn.
type UnitOfWork func(ctx context.Context, fn func(ctx context.Context) error) error

// Kind is the direction of a transition.
type Kind string

const (
	KindApprove Kind = "approve"
	KindRevoke  Kind = "revoke"
)

// Result classifies a transition attempt.
type Result string

const (
	ResultApplied Result = "applied"
	ResultDenied  Result = "denied"
	ResultInvalid Result = "invalid_transition"
	ResultError   Result = "error"
)

// Attempt describes a transition about to be tried.
type Attempt struct {
	Kind       Kind
	ProcessID  string
	ApprovalID string
	UserID     string
}

// Outcome is the result of an Attempt.
type Outcome struct {
	Attempt
	Result   Result
	Reason   Reason
	Err      error
	Duration time.Duration
}

// Observer is notified around every transition attempt. The returned
// function receives the outcome; the returned context is used for the attempt.
type Observer interface {
	BeginTransition(ctx context.Context, a Attempt) (context.Context, func(Outcome))
}

// ObserverFunc adapts a function that only needs outcomes to Observer.
type ObserverFunc func(ctx context.Context, o Outcome)

func (f ObserverFunc) BeginTransition(ctx context.Context, _ Attempt) (context.Context, func(Outcome)) {
	return ctx, func(o Outcome) { f(ctx, o) }
}

func sameApproval(a, b Identity) bool {
	return a != nil && b != nil && a.ApprovalID() == b.ApprovalID()
}
