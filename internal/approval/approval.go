// Package approval implements approvals: composite gates that collect signoffs
// under a signing order and are then approved or revoked as a whole.
package approval

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jkaninda/signoffs/internal/signingorder"
	"github.com/jkaninda/signoffs/internal/signoff"
)

var (
	ErrNotFound         = errors.New("approval stamp not found")
	ErrAlreadyApproved  = errors.New("approval already approved")
	ErrNotApproved      = errors.New("approval not approved")
	ErrIrrevocable      = errors.New("approval is irrevocable")
	ErrApprovalLocked   = errors.New("signoffs cannot change on an approved approval")
	ErrNotNext          = errors.New("signoff is not next in the signing order")
	ErrAlreadySigned    = errors.New("user already signed this signoff")
	ErrOutOfOrder       = errors.New("revoking signet would break the signing order")
	ErrPermissionDenied = signoff.ErrPermissionDenied
)

// Status summarizes where an approval is in its lifecycle.
type Status int

const (
	StatusPending Status = iota
	StatusSigning
	StatusComplete
	StatusApproved
	StatusRevoked
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusSigning:
		return "signing"
	case StatusComplete:
		return "complete"
	case StatusApproved:
		return "approved"
	case StatusRevoked:
		return "revoked"
	default:
		return "unknown"
	}
}

// Type describes a kind of approval: which signoffs it collects, in what
// order, and who may approve or revoke it.
type Type struct {
	ID           string
	Label        string
	SigningOrder *signingorder.SigningOrder
	Signoffs     *signoff.Registry
	// ApprovePerm is required to approve. Empty means any identified user.
	ApprovePerm string
	// RevokePerm is required to revoke. Empty means any identified user.
	RevokePerm  string
	Irrevocable bool
}

// Validate checks that every signoff in the signing order is registered.
func (t *Type) Validate() error {
	if t.ID == "" {
		return errors.New("approval type id is required")
	}
	if t.SigningOrder == nil {
		return fmt.Errorf("approval type %s: signing order is required", t.ID)
	}
	if t.Signoffs == nil {
		return fmt.Errorf("approval type %s: signoff registry is required", t.ID)
	}
	for _, id := range t.SigningOrder.Terms() {
		if _, ok := t.Signoffs.Get(id); !ok {
			return fmt.Errorf("approval type %s: %w: %s", t.ID, signoff.ErrUnknownType, id)
		}
	}
	return nil
}

// Stamp is the persisted record of one approval instance.
type Stamp struct {
	ID         uuid.UUID
	ApprovalID string
	Approved   bool
	Timestamp  time.Time // Set when approved.
	CreatedAt  time.Time
}

// Approval is a live approval instance: a stamp plus its signets.
// Safe for concurrent use.
type Approval struct {
	typ    *Type
	perms  signoff.Permissions
	store  Store
	logger *slog.Logger
	now    func() time.Time

	mu      sync.RWMutex
	stamp   Stamp
	signets []*signoff.Signet // chronological, revoked signets included
}

// Option configures an Approval.
type Option func(*Approval)

// WithStore persists stamps and signets to s.
func WithStore(s Store) Option { return func(a *Approval) { a.store = s } }

// WithPermissions sets the permission backend for sign, approve and revoke checks.
func WithPermissions(p signoff.Permissions) Option { return func(a *Approval) { a.perms = p } }

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option { return func(a *Approval) { a.logger = l } }

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option { return func(a *Approval) { a.now = now } }

func newApproval(typ *Type, opts []Option) *Approval {
	a := &Approval{
		typ:   typ,
		perms: signoff.AllowAll,
		now:   func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.logger == nil {
		a.logger = slog.New(slog.DiscardHandler)
	}
	return a
}

// New creates an approval backed by a new stamp.
func New(ctx context.Context, typ *Type, opts ...Option) (*Approval, error) {
	if err := typ.Validate(); err != nil {
		return nil, err
	}
	a := newApproval(typ, opts)
	now := a.now()
	a.stamp = Stamp{ID: uuid.New(), ApprovalID: typ.ID, CreatedAt: now}
	if a.store != nil {
		if err := a.store.SaveStamp(ctx, &a.stamp); err != nil {
			return nil, fmt.Errorf("saving stamp for %s: %w", typ.ID, err)
		}
	}
	return a, nil
}

// Load restores an approval from its stamp and signets in the given store.
func Load(ctx context.Context, typ *Type, store Store, stampID uuid.UUID, opts ...Option) (*Approval, error) {
	if err := typ.Validate(); err != nil {
		return nil, err
	}
	a := newApproval(typ, append(opts, WithStore(store)))
	stamp, err := store.GetStamp(ctx, stampID)
	if err != nil {
		return nil, err
	}
	if stamp.ApprovalID != typ.ID {
		return nil, fmt.Errorf("stamp %s belongs to %s, not %s", stampID, stamp.ApprovalID, typ.ID)
	}
	signets, err := store.ListSignets(ctx, stampID)
	if err != nil {
		return nil, fmt.Errorf("loading signets for %s: %w", stampID, err)
	}
	a.stamp = *stamp
	a.signets = signets
	return a, nil
}

// ApprovalID returns the approval type id.
func (a *Approval) ApprovalID() string { return a.typ.ID }

// Type returns the approval type.
func (a *Approval) Type() *Type { return a.typ }

// Stamp returns a copy of the stamp.
func (a *Approval) Stamp() Stamp {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.stamp
}

// Signets returns copies of the active (unrevoked) signets, oldest first.
func (a *Approval) Signets() []signoff.Signet {
	a.mu.RLock()
	defer a.mu.RUnlock()
	var out []signoff.Signet
	for _, s := range a.signets {
		if !s.IsRevoked() {
			out = append(out, *s)
		}
	}
	return out
}

// History returns copies of every signet, revoked ones included.
func (a *Approval) History() []signoff.Signet {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]signoff.Signet, 0, len(a.signets))
	for _, s := range a.signets {
		out = append(out, *s)
	}
	return out
}

func (a *Approval) String() string {
	return fmt.Sprintf("%s[%s]", a.typ.ID, a.Stamp().ID)
}

// Status reports the lifecycle status.
func (a *Approval) Status() Status {
	a.mu.RLock()
	defer a.mu.RUnlock()
	switch {
	case a.stamp.Approved:
		return StatusApproved
	case a.matchLocked().Complete:
		return StatusComplete
	case len(a.signedLocked()) > 0:
		return StatusSigning
	case len(a.signets) > 0:
		return StatusRevoked
	}
	return StatusPending
}

func (a *Approval) signedLocked() []string {
	var ids []string
	for _, s := range a.signets {
		if !s.IsRevoked() {
			ids = append(ids, s.SignoffID)
		}
	}
	return ids
}

func (a *Approval) matchLocked() signingorder.MatchResult {
	return a.typ.SigningOrder.Match(a.signedLocked())
}

// IsComplete reports whether the signets satisfy the signing order.
func (a *Approval) IsComplete() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.matchLocked().Complete
}

// IsApproved reports whether the approval has been approved.
func (a *Approval) IsApproved() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.stamp.Approved
}

// IsSigned reports whether at least one active signet exists.
func (a *Approval) IsSigned() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.signedLocked()) > 0
}

// HasSigned reports whether userID holds any active signet on this approval.
func (a *Approval) HasSigned(userID string) bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return slices.ContainsFunc(a.signets, func(s *signoff.Signet) bool {
		return !s.IsRevoked() && s.UserID == userID
	})
}

func (a *Approval) hasSignedLocked(userID, signoffID string) bool {
	return slices.ContainsFunc(a.signets, func(s *signoff.Signet) bool {
		return !s.IsRevoked() && s.UserID == userID && s.SignoffID == signoffID
	})
}

// NextSignoffTypes returns the signoff types that may be signed next.
// With a non-empty userID the list is narrowed to types that user may sign.
func (a *Approval) NextSignoffTypes(ctx context.Context, userID string) []*signoff.Type {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.nextLocked(ctx, userID)
}

func (a *Approval) nextLocked(ctx context.Context, userID string) []*signoff.Type {
	var out []*signoff.Type
	for _, id := range a.matchLocked().Next {
		t, ok := a.typ.Signoffs.Get(id)
		if !ok {
			continue
		}
		if userID != "" && (!t.IsPermittedSigner(ctx, a.perms, userID) || a.hasSignedLocked(userID, id)) {
			continue
		}
		out = append(out, t)
	}
	return out
}

// CanSign reports whether userID may sign any of the next signoffs.
func (a *Approval) CanSign(ctx context.Context, userID string) bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return !a.stamp.Approved && len(a.nextLocked(ctx, userID)) > 0
}

// Sign records a signet for userID on the given signoff type.
func (a *Approval) Sign(ctx context.Context, userID, signoffID string) (*signoff.Signet, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.stamp.Approved {
		return nil, fmt.Errorf("%w: %s", ErrApprovalLocked, a.typ.ID)
	}
	t, err := a.typ.Signoffs.Lookup(signoffID)
	if err != nil {
		return nil, err
	}
	if !slices.Contains(a.matchLocked().Next, signoffID) {
		return nil, fmt.Errorf("%w: %s on %s", ErrNotNext, signoffID, a.typ.ID)
	}
	if !t.IsPermittedSigner(ctx, a.perms, userID) {
		return nil, fmt.Errorf("%w: %s may not sign %s", ErrPermissionDenied, userID, signoffID)
	}
	if a.hasSignedLocked(userID, signoffID) {
		return nil, fmt.Errorf("%w: %s on %s", ErrAlreadySigned, userID, signoffID)
	}

	s := signoff.NewSignet(t, a.stamp.ID, userID, "", a.now())
	if a.store != nil {
		if err := a.store.SaveSignet(ctx, s); err != nil {
			return nil, fmt.Errorf("saving signet: %w", err)
		}
	}
	a.signets = append(a.signets, s)

	a.logger.Info("signoff signed",
		slog.String("approval_id", a.typ.ID),
		slog.String("stamp_id", a.stamp.ID.String()),
		slog.String("signoff_id", signoffID),
		slog.String("user_id", userID),
	)
	cp := *s
	return &cp, nil
}

// RevokeSignoff revokes a single active signet. The remaining signets must
// still form a valid prefix of the signing order.
func (a *Approval) RevokeSignoff(ctx context.Context, userID string, signetID uuid.UUID, reason string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.stamp.Approved {
		return fmt.Errorf("%w: %s", ErrApprovalLocked, a.typ.ID)
	}
	idx := slices.IndexFunc(a.signets, func(s *signoff.Signet) bool {
		return s.ID == signetID && !s.IsRevoked()
	})
	if idx < 0 {
		return fmt.Errorf("active signet %s not found on %s", signetID, a.typ.ID)
	}
	target := a.signets[idx]
	t, err := a.typ.Signoffs.Lookup(target.SignoffID)
	if err != nil {
		return err
	}
	if !t.IsPermittedRevoker(ctx, a.perms, userID) {
		return fmt.Errorf("%w: %s may not revoke %s", ErrPermissionDenied, userID, target.SignoffID)
	}

	var remaining []string
	for i, s := range a.signets {
		if i != idx && !s.IsRevoked() {
			remaining = append(remaining, s.SignoffID)
		}
	}
	if !a.typ.SigningOrder.Match(remaining).Valid {
		return fmt.Errorf("%w: %s", ErrOutOfOrder, target.SignoffID)
	}

	updated := *target
	if err := updated.Revoke(userID, reason, a.now()); err != nil {
		return err
	}
	if a.store != nil {
		if err := a.store.SaveSignet(ctx, &updated); err != nil {
			return fmt.Errorf("saving revoked signet: %w", err)
		}
	}
	a.signets[idx] = &updated
	a.logger.Info("signoff revoked",
		slog.String("approval_id", a.typ.ID),
		slog.String("signoff_id", updated.SignoffID),
		slog.String("user_id", userID),
	)
	return nil
}

// ReadyToApprove reports whether the approval is complete and not yet approved.
func (a *Approval) ReadyToApprove() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return !a.stamp.Approved && a.matchLocked().Complete
}

// CanApprove reports whether userID holds the approve permission.
func (a *Approval) CanApprove(ctx context.Context, userID string) bool {
	return userID != "" && a.hasPerm(ctx, userID, a.typ.ApprovePerm)
}

// CanRevoke reports whether the approval is approved and userID may revoke it.
func (a *Approval) CanRevoke(ctx context.Context, userID string) bool {
	if a.typ.Irrevocable || userID == "" || !a.IsApproved() {
		return false
	}
	return a.hasPerm(ctx, userID, a.typ.RevokePerm)
}

func (a *Approval) hasPerm(ctx context.Context, userID, perm string) bool {
	if perm == "" {
		return true
	}
	return a.perms != nil && a.perms.HasPerm(ctx, userID, perm)
}

// Approve marks the approval approved. It does not check completeness or
// permissions; use ApproveIfReady, or the process actions, to enforce them.
func (a *Approval) Approve(ctx context.Context, userID string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.stamp.Approved {
		return fmt.Errorf("%w: %s", ErrAlreadyApproved, a.typ.ID)
	}
	updated := a.stamp
	updated.Approved = true
	updated.Timestamp = a.now()
	if a.store != nil {
		if err := a.store.SaveStamp(ctx, &updated); err != nil {
			return fmt.Errorf("saving stamp: %w", err)
		}
	}
	a.stamp = updated
	a.logger.Info("approval approved",
		slog.String("approval_id", a.typ.ID),
		slog.String("stamp_id", a.stamp.ID.String()),
		slog.String("user_id", userID),
	)
	return nil
}

// ApproveIfReady approves when the signing order is complete.
func (a *Approval) ApproveIfReady(ctx context.Context, userID string) (bool, error) {
	if !a.ReadyToApprove() {
		return false, nil
	}
	if err := a.Approve(ctx, userID); err != nil {
		return false, err
	}
	return true, nil
}

// Revoke revokes the approval and all of its signets.
func (a *Approval) Revoke(ctx context.Context, userID string) error {
	return a.RevokeWithReason(ctx, userID, "")
}

// RevokeWithReason revokes the approval, then its signets newest first.
func (a *Approval) RevokeWithReason(ctx context.Context, userID, reason string) error {
	if !a.IsApproved() {
		return fmt.Errorf("%w: %s", ErrNotApproved, a.typ.ID)
	}
	if a.typ.Irrevocable {
		return fmt.Errorf("%w: %s", ErrIrrevocable, a.typ.ID)
	}
	if userID == "" || !a.hasPerm(ctx, userID, a.typ.RevokePerm) {
		return fmt.Errorf("%w: %s may not revoke %s", ErrPermissionDenied, userID, a.typ.ID)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	// Another revoke may have won the race since the checks above.
	if !a.stamp.Approved {
		return fmt.Errorf("%w: %s", ErrNotApproved, a.typ.ID)
	}

	stamp := a.stamp
	stamp.Approved = false
	stamp.Timestamp = time.Time{}

	signets := make([]*signoff.Signet, len(a.signets))
	copy(signets, a.signets)
	var revoked []*signoff.Signet
	for i := len(signets) - 1; i >= 0; i-- {
		if signets[i].IsRevoked() {
			continue
		}
		s := *signets[i]
		_ = s.Revoke(userID, reason, a.now())
		signets[i] = &s
		revoked = append(revoked, &s)
	}

	if a.store != nil {
		if err := a.store.SaveStamp(ctx, &stamp); err != nil {
			return fmt.Errorf("saving stamp: %w", err)
		}
		for _, s := range revoked {
			if err := a.store.SaveSignet(ctx, s); err != nil {
				return fmt.Errorf("saving revoked signet: %w", err)
			}
		}
	}
	a.stamp = stamp
	a.signets = signets

	a.logger.Info("approval revoked",
		slog.String("approval_id", a.typ.ID),
		slog.String("stamp_id", stamp.ID.String()),
		slog.String("user_id", userID),
		slog.Int("signets_revoked", len(revoked)),
	)
	return nil
}
