package process

import (
	"context"
	"fmt"
	"log/slog"
)

type options struct {
	logger                      *slog.Logger
	observers                   []Observer
	unitOfWork                  UnitOfWork
	revokeBlockedByNextSignoffs bool
	sequence                    []string
}

// Option configures Actions and FsmActions.
type Option func(*options)

// WithLogger sets the logger used for transition attempts.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithObserver adds an observer notified around every transition attempt.
func WithObserver(obs Observer) Option {
	return func(o *options) {
		if obs != nil {
			o.observers = append(o.observers, obs)
		}
	}
}

// WithUnitOfWork runs each transition inside uow, typically a storage transaction.
func WithUnitOfWork(uow UnitOfWork) Option {
	return func(o *options) {
		if uow != nil {
			o.unitOfWork = uow
		}
	}
}

// WithRevokeBlockedByNextSignoffs forbids revoking an approval once the
// next approval has collected any signoff.
func WithRevokeBlockedByNextSignoffs() Option {
	return func(o *options) { o.revokeBlockedByNextSignoffs = true }
}

// WithSequence overrides the approval order, which otherwise follows
// registration order.
func WithSequence(ids ...Identity) Option {
	return func(o *options) {
		o.sequence = o.sequence[:0]
		for _, id := range ids {
			o.sequence = append(o.sequence, id.ApprovalID())
		}
	}
}

func newOptions(opts []Option) *options {
	o := &options{
		logger: slog.New(slog.DiscardHandler),
		unitOfWork: func(ctx context.Context, fn func(ctx context.Context) error) error {
			return fn(ctx)
		},
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// actionsConfig is the per-type state shared by Actions and FsmActions.
type actionsConfig[P Accessor] struct {
	registry *TransitionRegistry[P]
	names    map[string]string
	opts     *options
}

func newActionsConfig[P Accessor](opts []Option) actionsConfig[P] {
	return actionsConfig[P]{
		registry: NewTransitionRegistry[P](),
		names:    make(map[string]string),
		opts:     newOptions(opts),
	}
}

func (c *actionsConfig[P]) ordering() []string {
	if len(c.opts.sequence) > 0 {
		return c.opts.sequence
	}
	return c.registry.ApprovalOrder()
}

// sequence binds the process's approval instances and checks that each
// carries the id it was registered under.
func (c *actionsConfig[P]) sequence(p P) (*BoundSequence, error) {
	ids := c.ordering()
	names := make([]string, len(ids))
	for i, id := range ids {
		if c.registry.Get(ID(id)) == nil {
			return nil, fmt.Errorf("%w: sequence names unregistered approval %q", ErrImproperlyConfigured, id)
		}
		names[i] = id
		if n, ok := c.names[id]; ok {
			names[i] = n
		}
	}
	seq, err := NewBoundSequence(p, names)
	if err != nil {
		return nil, err
	}
	for i, name := range names {
		a, _ := seq.Get(name)
		if a.ApprovalID() != ids[i] {
			return nil, fmt.Errorf("%w: approval %q has id %q, registered as %q",
				ErrImproperlyConfigured, name, a.ApprovalID(), ids[i])
		}
	}
	return seq, nil
}

// Actions declares the approval transitions of a process type. Configure it
// once at startup, then call For on each process instance.
type Actions[P Accessor] struct {
	cfg actionsConfig[P]
}

// NewActions creates an empty actions descriptor.
func NewActions[P Accessor](opts ...Option) *Actions[P] {
	return &Actions[P]{cfg: newActionsConfig[P](opts)}
}

// RegisterApproveTransition registers fn as the approve transition for id.
func (a *Actions[P]) RegisterApproveTransition(id Identity, fn TransitionFunc[P]) *Actions[P] {
	a.cfg.registry.AddApproveTransition(id, fn)
	return a
}

// RegisterRevokeTransition registers fn as the revoke transition for id.
func (a *Actions[P]) RegisterRevokeTransition(id Identity, fn TransitionFunc[P]) *Actions[P] {
	a.cfg.registry.AddRevokeTransition(id, fn)
	return a
}

// Bind resolves approval id under a different accessor name. By default the
// approval id is used as the name.
func (a *Actions[P]) Bind(id Identity, name string) *Actions[P] {
	a.cfg.registry.AddApproval(id)
	a.cfg.names[id.ApprovalID()] = name
	return a
}

// Registry returns the transition registry.
func (a *Actions[P]) Registry() *TransitionRegistry[P] { return a.cfg.registry }

// For binds the actions to a process instance.
func (a *Actions[P]) For(p P) (*ActionsRegistry[P], error) {
	seq, err := a.cfg.sequence(p)
	if err != nil {
		return nil, err
	}
	return newActionsRegistry(p, seq, a.cfg.registry, nil, a.cfg.opts), nil
}
