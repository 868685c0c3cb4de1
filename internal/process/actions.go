package process

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jkaninda/signoffs/internal/fsm"
)

// Reason explains why a transition may or may not proceed.
type Reason int

const (
	ReasonOK Reason = iota
	ReasonUnknownApproval
	ReasonAlreadyApproved
	ReasonNotNext
	ReasonNotApproved
	ReasonNotRevokable
	ReasonInvalidState
	ReasonPermission
	ReasonIncomplete
	ReasonNoTransition
)

func (r Reason) String() string {
	switch r {
	case ReasonOK:
		return "ok"
	case ReasonUnknownApproval:
		return "unknown_approval"
	case ReasonAlreadyApproved:
		return "already_approved"
	case ReasonNotNext:
		return "not_next"
	case ReasonNotApproved:
		return "not_approved"
	case ReasonNotRevokable:
		return "not_revokable"
	case ReasonInvalidState:
		return "invalid_state"
	case ReasonPermission:
		return "permission_denied"
	case ReasonIncomplete:
		return "incomplete"
	case ReasonNoTransition:
		return "no_transition"
	default:
		return "unknown"
	}
}

// ActionsRegistry is the decision engine for one process instance.
// Every query is computed from current approval state; nothing is cached.
type ActionsRegistry[P any] struct {
	process  P
	seq      *BoundSequence
	registry *TransitionRegistry[P]
	machine  fsm.StateMachine // nil unless built by FsmActions
	opts     *options
}

func newActionsRegistry[P any](p P, seq *BoundSequence, reg *TransitionRegistry[P], machine fsm.StateMachine, opts *options) *ActionsRegistry[P] {
	return &ActionsRegistry[P]{
		process:  p,
		seq:      seq,
		registry: reg,
		machine:  machine,
		opts:     opts,
	}
}

// Process returns the process the registry is bound to.
func (r *ActionsRegistry[P]) Process() P { return r.process }

// Sequence returns the bound approval sequence.
func (r *ActionsRegistry[P]) Sequence() *BoundSequence { return r.seq }

// Registry returns the transition registry.
func (r *ActionsRegistry[P]) Registry() *TransitionRegistry[P] { return r.registry }

// resolve returns the sequence's instance for id, or nil.
func (r *ActionsRegistry[P]) resolve(id Identity) Approval {
	if id == nil {
		return nil
	}
	i := r.seq.indexOf(id)
	if i < 0 {
		return nil
	}
	return r.seq.approvals[r.seq.names[i]]
}

// --- Queries ---

// AllApprovals returns every approval in sequence order.
func (r *ActionsRegistry[P]) AllApprovals() []Approval {
	return r.seq.Approvals()
}

// ApprovedApprovals returns the approved approvals in sequence order.
func (r *ActionsRegistry[P]) ApprovedApprovals() []Approval {
	var out []Approval
	for _, a := range r.seq.Approvals() {
		if a.IsApproved() {
			out = append(out, a)
		}
	}
	return out
}

// UnapprovedApprovals returns the unapproved approvals in sequence order.
func (r *ActionsRegistry[P]) UnapprovedApprovals() []Approval {
	var out []Approval
	for _, a := range r.seq.Approvals() {
		if !a.IsApproved() {
			out = append(out, a)
		}
	}
	return out
}

// NextApproval returns the first unapproved approval, or nil when all are approved.
func (r *ActionsRegistry[P]) NextApproval() Approval {
	for _, a := range r.seq.Approvals() {
		if !a.IsApproved() {
			return a
		}
	}
	return nil
}

// NextApprovalIsSigned reports whether the next approval is complete but
// not yet approved.
func (r *ActionsRegistry[P]) NextApprovalIsSigned() bool {
	next := r.NextApproval()
	return next != nil && next.IsComplete() && !next.IsApproved()
}

// PreviousApproval returns the approved approval immediately before the next
// one. When every approval is approved it returns the last one.
func (r *ActionsRegistry[P]) PreviousApproval() Approval {
	all := r.seq.Approvals()
	i := len(all)
	if next := r.NextApproval(); next != nil {
		i = r.seq.indexOf(next)
	}
	if i <= 0 {
		return nil
	}
	if prev := all[i-1]; prev.IsApproved() {
		return prev
	}
	return nil
}

// AvailableApprovals returns the approvals that may be acted on next: the
// next approval when it is unapproved, or nothing.
func (r *ActionsRegistry[P]) AvailableApprovals() []Approval {
	next := r.NextApproval()
	if next == nil || next.IsApproved() || !r.stateAllows(next, KindApprove) {
		return nil
	}
	return []Approval{next}
}

// NextAvailableApproval returns the first available approval, or nil.
func (r *ActionsRegistry[P]) NextAvailableApproval() Approval {
	if avail := r.AvailableApprovals(); len(avail) > 0 {
		return avail[0]
	}
	return nil
}

// RevokableApprovals returns the approvals that may be revoked: the last
// approved approval in sequence order, or nothing.
func (r *ActionsRegistry[P]) RevokableApprovals() []Approval {
	all := r.seq.Approvals()
	for i := len(all) - 1; i >= 0; i-- {
		a := all[i]
		if !a.IsApproved() {
			continue
		}
		if r.opts.revokeBlockedByNextSignoffs {
			if next := r.NextApproval(); next != nil && next.IsSigned() {
				return nil
			}
		}
		if !r.stateAllows(a, KindRevoke) {
			return nil
		}
		return []Approval{a}
	}
	return nil
}

// NextRevokableApproval returns the first revokable approval, or nil.
func (r *ActionsRegistry[P]) NextRevokableApproval() Approval {
	if rev := r.RevokableApprovals(); len(rev) > 0 {
		return rev[0]
	}
	return nil
}

// BoundApproveTransition returns the approve transition bound to the
// process, or nil when none is registered for the approval.
func (r *ActionsRegistry[P]) BoundApproveTransition(id Identity) BoundTransition {
	t := r.registry.Get(id)
	if t == nil || t.Approve == nil {
		return nil
	}
	fn, p := t.Approve, r.process
	return func(a Approval) error { return fn(p, a) }
}

// BoundRevokeTransition returns the revoke transition bound to the
// process, or nil when none is registered for the approval.
func (r *ActionsRegistry[P]) BoundRevokeTransition(id Identity) BoundTransition {
	t := r.registry.Get(id)
	if t == nil || t.Revoke == nil {
		return nil
	}
	fn, p := t.Revoke, r.process
	return func(a Approval) error { return fn(p, a) }
}

// stateAllows checks the state machine, when there is one, for the
// approval's target state.
func (r *ActionsRegistry[P]) stateAllows(a Identity, kind Kind) bool {
	if r.machine == nil {
		return true
	}
	t := r.registry.Get(a)
	if t == nil {
		return false
	}
	target := t.ApproveState
	if kind == KindRevoke {
		target = t.RevokeState
	}
	return target != "" && r.machine.CanTransition(r.machine.CurrentState(), target)
}

// --- Guards ---

// CanProceed reports whether the approval is available.
func (r *ActionsRegistry[P]) CanProceed(id Identity) bool {
	for _, a := range r.AvailableApprovals() {
		if sameApproval(a, id) {
			return true
		}
	}
	return false
}

// HasApproveTransitionPerm reports whether userID may approve the approval.
func (r *ActionsRegistry[P]) HasApproveTransitionPerm(ctx context.Context, id Identity, userID string) bool {
	a := r.resolve(id)
	return a != nil && a.CanApprove(ctx, userID)
}

// UserCanProceed reports whether the approval is available and userID may approve it.
func (r *ActionsRegistry[P]) UserCanProceed(ctx context.Context, id Identity, userID string) bool {
	return r.CanProceed(id) && r.HasApproveTransitionPerm(ctx, id, userID)
}

// CanDoApproveTransition reports whether TryApproveTransition would apply.
func (r *ActionsRegistry[P]) CanDoApproveTransition(ctx context.Context, id Identity, userID string) bool {
	return r.ExplainApprove(ctx, id, userID) == ReasonOK
}

// CanRevoke reports whether the approval is revokable.
func (r *ActionsRegistry[P]) CanRevoke(id Identity) bool {
	for _, a := range r.RevokableApprovals() {
		if sameApproval(a, id) {
			return true
		}
	}
	return false
}

// HasRevokeTransitionPerm reports whether userID may revoke the approval.
func (r *ActionsRegistry[P]) HasRevokeTransitionPerm(ctx context.Context, id Identity, userID string) bool {
	a := r.resolve(id)
	return a != nil && a.CanRevoke(ctx, userID)
}

// UserCanRevoke reports whether the approval is revokable by userID.
func (r *ActionsRegistry[P]) UserCanRevoke(ctx context.Context, id Identity, userID string) bool {
	return r.CanRevoke(id) && r.HasRevokeTransitionPerm(ctx, id, userID)
}

// CanDoRevokeTransition reports whether TryRevokeTransition would apply.
func (r *ActionsRegistry[P]) CanDoRevokeTransition(ctx context.Context, id Identity, userID string) bool {
	return r.ExplainRevoke(ctx, id, userID) == ReasonOK
}

// ExplainApprove returns the first reason an approve transition would not
// apply, or ReasonOK.
func (r *ActionsRegistry[P]) ExplainApprove(ctx context.Context, id Identity, userID string) Reason {
	a := r.resolve(id)
	switch {
	case a == nil:
		return ReasonUnknownApproval
	case a.IsApproved():
		return ReasonAlreadyApproved
	case !sameApproval(r.NextApproval(), a):
		return ReasonNotNext
	case !r.stateAllows(a, KindApprove):
		return ReasonInvalidState
	case !a.CanApprove(ctx, userID):
		return ReasonPermission
	case !a.IsComplete():
		return ReasonIncomplete
	case r.BoundApproveTransition(a) == nil:
		return ReasonNoTransition
	}
	return ReasonOK
}

// ExplainRevoke returns the first reason a revoke transition would not
// apply, or ReasonOK.
func (r *ActionsRegistry[P]) ExplainRevoke(ctx context.Context, id Identity, userID string) Reason {
	a := r.resolve(id)
	switch {
	case a == nil:
		return ReasonUnknownApproval
	case !a.IsApproved():
		return ReasonNotApproved
	case !r.CanRevoke(a):
		if r.lastApproved(a) && !r.stateAllows(a, KindRevoke) {
			return ReasonInvalidState
		}
		return ReasonNotRevokable
	case !a.CanRevoke(ctx, userID):
		return ReasonPermission
	case r.BoundRevokeTransition(a) == nil:
		return ReasonNoTransition
	}
	return ReasonOK
}

func (r *ActionsRegistry[P]) lastApproved(id Identity) bool {
	approved := r.ApprovedApprovals()
	return len(approved) > 0 && sameApproval(approved[len(approved)-1], id)
}

// --- Commands ---

// TryApproveTransition runs the approve transition and approves the approval
// when every guard passes. It returns false with a nil error when a guard
// fails or the state machine rejects the transition. Errors from the
// transition or from persistence are returned.
func (r *ActionsRegistry[P]) TryApproveTransition(ctx context.Context, id Identity, userID string) (bool, error) {
	return r.try(ctx, KindApprove, id, userID)
}

// TryRevokeTransition is the revoke counterpart of TryApproveTransition.
func (r *ActionsRegistry[P]) TryRevokeTransition(ctx context.Context, id Identity, userID string) (bool, error) {
	return r.try(ctx, KindRevoke, id, userID)
}

func (r *ActionsRegistry[P]) try(ctx context.Context, kind Kind, id Identity, userID string) (bool, error) {
	attempt := Attempt{Kind: kind, UserID: userID}
	if id != nil {
		attempt.ApprovalID = id.ApprovalID()
	}
	if ident, ok := any(r.process).(Identifier); ok {
		attempt.ProcessID = ident.ProcessID()
	}

	ctx, done := r.begin(ctx, attempt)
	start := time.Now()
	outcome := Outcome{Attempt: attempt}
	finish := func(applied bool, err error) (bool, error) {
		outcome.Duration = time.Since(start)
		outcome.Err = err
		done(outcome)
		return applied, err
	}

	reason := r.ExplainApprove(ctx, id, userID)
	if kind == KindRevoke {
		reason = r.ExplainRevoke(ctx, id, userID)
	}
	outcome.Reason = reason
	if reason != ReasonOK {
		outcome.Result = ResultDenied
		r.opts.logger.Debug("approval transition denied",
			slog.String("kind", string(kind)),
			slog.String("approval_id", attempt.ApprovalID),
			slog.String("user_id", userID),
			slog.String("reason", reason.String()),
		)
		return finish(false, nil)
	}

	a := r.resolve(id)
	t := r.registry.Get(a)
	err := r.opts.unitOfWork(ctx, func(ctx context.Context) error {
		return r.apply(ctx, kind, t, a, userID)
	})
	switch {
	case errors.Is(err, fsm.ErrInvalidTransition):
		outcome.Result = ResultInvalid
		outcome.Reason = ReasonInvalidState
		r.opts.logger.Warn("approval transition rejected by state machine",
			slog.String("kind", string(kind)),
			slog.String("approval_id", attempt.ApprovalID),
			slog.String("error", err.Error()),
		)
		return finish(false, nil)
	case err != nil:
		outcome.Result = ResultError
		r.opts.logger.Error("approval transition failed",
			slog.String("kind", string(kind)),
			slog.String("approval_id", attempt.ApprovalID),
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
		return finish(false, fmt.Errorf("%s transition for %s: %w", kind, attempt.ApprovalID, err))
	}

	outcome.Result = ResultApplied
	r.opts.logger.Info("approval transition applied",
		slog.String("kind", string(kind)),
		slog.String("process_id", attempt.ProcessID),
		slog.String("approval_id", attempt.ApprovalID),
		slog.String("user_id", userID),
	)
	return finish(true, nil)
}

func (r *ActionsRegistry[P]) apply(ctx context.Context, kind Kind, t *ApprovalTransition[P], a Approval, userID string) (err error) {
	fn, target := t.Approve, t.ApproveState
	if kind == KindRevoke {
		fn, target = t.Revoke, t.RevokeState
	}
	if r.machine != nil {
		from := r.machine.CurrentState()
		if !r.machine.CanTransition(from, target) {
			return fmt.Errorf("%w: %s -> %s", fsm.ErrInvalidTransition, from, target)
		}
		defer func() {
			if err != nil {
				r.restoreState(from)
			}
		}()
	}
	if err := fn(r.process, a); err != nil {
		return err
	}
	if r.machine != nil {
		if err := r.machine.ApplyTransition(target); err != nil {
			return err
		}
	}

	if kind == KindRevoke {
		err = a.Revoke(ctx, userID)
	} else {
		err = a.Approve(ctx, userID)
	}
	if err != nil {
		return err
	}

	if s, ok := any(r.process).(Saver); ok {
		if err := s.Save(ctx); err != nil {
			return fmt.Errorf("saving process: %w", err)
		}
	}
	return nil
}

// restoreState puts the machine back to from after a failed transition.
// Machines that cannot restore are left as they are.
func (r *ActionsRegistry[P]) restoreState(from string) {
	rs, ok := r.machine.(fsm.Restorer)
	if !ok || r.machine.CurrentState() == from {
		return
	}
	rs.Restore(from)
	r.opts.logger.Warn("process state restored after failed transition",
		slog.String("state", from),
	)
}

func (r *ActionsRegistry[P]) begin(ctx context.Context, a Attempt) (context.Context, func(Outcome)) {
	if len(r.opts.observers) == 0 {
		return ctx, func(Outcome) {}
	}
	dones := make([]func(Outcome), 0, len(r.opts.observers))
	for _, o := range r.opts.observers {
		var done func(Outcome)
		ctx, done = o.BeginTransition(ctx, a)
		dones = append(dones, done)
	}
	return ctx, func(out Outcome) {
		for i := len(dones) - 1; i >= 0; i-- {
			dones[i](out)
		}
	}
}
