// Package signoff defines signoff types and the signets users sign them with.
package signoff

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

var (
	ErrPermissionDenied = errors.New("permission denied")
	ErrAlreadyRevoked   = errors.New("signet already revoked")
	ErrDuplicateType    = errors.New("duplicate signoff type")
	ErrUnknownType      = errors.New("unknown signoff type")
)

// Permissions answers whether a user holds a named permission.
type Permissions interface {
	HasPerm(ctx context.Context, userID, perm string) bool
}

// PermissionsFunc adapts a function to Permissions.
type PermissionsFunc func(ctx context.Context, userID, perm string) bool

func (f PermissionsFunc) HasPerm(ctx context.Context, userID, perm string) bool {
	return f(ctx, userID, perm)
}

// AllowAll grants every permission to every user.
var AllowAll Permissions = PermissionsFunc(func(context.Context, string, string) bool { return true })

// Type describes a kind of signoff.
type Type struct {
	ID    string `json:"id" yaml:"id"`
	Label string `json:"label,omitempty" yaml:"label,omitempty"`
	// Perm is required to sign. Empty means any identified user may sign.
	Perm string `json:"perm,omitempty" yaml:"perm,omitempty"`
	// RevokePerm is required to revoke. Empty falls back to Perm.
	RevokePerm  string `json:"revoke_perm,omitempty" yaml:"revoke_perm,omitempty"`
	Irrevocable bool   `json:"irrevocable,omitempty" yaml:"irrevocable,omitempty"`
}

// IsPermittedSigner reports whether userID may sign signoffs of this type.
func (t *Type) IsPermittedSigner(ctx context.Context, perms Permissions, userID string) bool {
	if userID == "" {
		return false
	}
	return hasPerm(ctx, perms, userID, t.Perm)
}

// IsPermittedRevoker reports whether userID may revoke signoffs of this type.
func (t *Type) IsPermittedRevoker(ctx context.Context, perms Permissions, userID string) bool {
	if t.Irrevocable || userID == "" {
		return false
	}
	perm := t.RevokePerm
	if perm == "" {
		perm = t.Perm
	}
	return hasPerm(ctx, perms, userID, perm)
}

func (t *Type) String() string {
	if t.Label != "" {
		return t.Label
	}
	return t.ID
}

func hasPerm(ctx context.Context, perms Permissions, userID, perm string) bool {
	if perm == "" {
		return true
	}
	return perms != nil && perms.HasPerm(ctx, userID, perm)
}

// Revocation records who revoked a signet, when and why.
type Revocation struct {
	UserID    string    `json:"user_id"`
	Reason    string    `json:"reason,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Signet is a single signature on a signoff, attached to an approval stamp.
type Signet struct {
	ID        uuid.UUID   `json:"id"`
	SignoffID string      `json:"signoff_id"`
	StampID   uuid.UUID   `json:"stamp_id"`
	UserID    string      `json:"user_id"`
	Sigil     string      `json:"sigil"`
	Timestamp time.Time   `json:"timestamp"`
	Revoked   *Revocation `json:"revoked,omitempty"`
}

// NewSignet creates a signet for userID. The sigil defaults to the user id.
func NewSignet(t *Type, stampID uuid.UUID, userID, sigil string, now time.Time) *Signet {
	if sigil == "" {
		sigil = userID
	}
	return &Signet{
		ID:        uuid.New(),
		SignoffID: t.ID,
		StampID:   stampID,
		UserID:    userID,
		Sigil:     sigil,
		Timestamp: now,
	}
}

// IsRevoked reports whether the signet was revoked.
func (s *Signet) IsRevoked() bool { return s.Revoked != nil }

// Revoke marks the signet revoked.
func (s *Signet) Revoke(userID, reason string, now time.Time) error {
	if s.Revoked != nil {
		return fmt.Errorf("%w: %s", ErrAlreadyRevoked, s.ID)
	}
	s.Revoked = &Revocation{UserID: userID, Reason: reason, Timestamp: now}
	return nil
}
