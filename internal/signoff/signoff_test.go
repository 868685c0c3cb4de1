package signoff

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
)

func permsFor(grants map[string][]string) Permissions {
	return PermissionsFunc(func(_ context.Context, userID, perm string) bool {
		for _, p := range grants[userID] {
			if p == perm {
				return true
			}
		}
		return false
	})
}

// --- Permissions ---

func TestType_IsPermittedSigner(t *testing.T) {
	ctx := context.Background()
	perms := permsFor(map[string][]string{"alice": {"sign_electrical"}})

	open := &Type{ID: "open"}
	if !open.IsPermittedSigner(ctx, nil, "bob") {
		t.Error("empty perm should allow any identified user")
	}
	if open.IsPermittedSigner(ctx, nil, "") {
		t.Error("anonymous user must not sign")
	}

	restricted := &Type{ID: "electrical", Perm: "sign_electrical"}
	if !restricted.IsPermittedSigner(ctx, perms, "alice") {
		t.Error("alice holds sign_electrical")
	}
	if restricted.IsPermittedSigner(ctx, perms, "bob") {
		t.Error("bob lacks sign_electrical")
	}
	if restricted.IsPermittedSigner(ctx, nil, "alice") {
		t.Error("nil permissions must deny restricted signoffs")
	}
}

func TestType_IsPermittedRevoker(t *testing.T) {
	ctx := context.Background()
	perms := permsFor(map[string][]string{
		"alice": {"sign"},
		"admin": {"revoke"},
	})

	fallback := &Type{ID: "s", Perm: "sign"}
	if !fallback.IsPermittedRevoker(ctx, perms, "alice") {
		t.Error("revoke perm should fall back to sign perm")
	}

	explicit := &Type{ID: "s", Perm: "sign", RevokePerm: "revoke"}
	if explicit.IsPermittedRevoker(ctx, perms, "alice") {
		t.Error("alice lacks revoke perm")
	}
	if !explicit.IsPermittedRevoker(ctx, perms, "admin") {
		t.Error("admin holds revoke perm")
	}

	locked := &Type{ID: "s", Irrevocable: true}
	if locked.IsPermittedRevoker(ctx, AllowAll, "admin") {
		t.Error("irrevocable signoffs cannot be revoked")
	}
}

// --- Signet ---

func TestSignet_Revoke(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	s := NewSignet(&Type{ID: "s"}, uuid.New(), "alice", "", now)
	if s.Sigil != "alice" {
		t.Errorf("sigil = %q, want alice", s.Sigil)
	}
	if s.IsRevoked() {
		t.Fatal("new signet should not be revoked")
	}
	if err := s.Revoke("admin", "typo", now); err != nil {
		t.Fatalf("Revoke: %v", err)
	}
	if !s.IsRevoked() || s.Revoked.UserID != "admin" || s.Revoked.Reason != "typo" {
		t.Errorf("unexpected revocation: %+v", s.Revoked)
	}
	if err := s.Revoke("admin", "", now); !errors.Is(err, ErrAlreadyRevoked) {
		t.Errorf("second revoke error = %v, want ErrAlreadyRevoked", err)
	}
}

// --- Registry ---

func TestRegistry(t *testing.T) {
	r, err := NewRegistry(&Type{ID: "a"}, &Type{ID: "b"})
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	if err := r.Register(&Type{ID: "a"}); !errors.Is(err, ErrDuplicateType) {
		t.Errorf("duplicate register error = %v, want ErrDuplicateType", err)
	}
	if _, err := r.Lookup("missing"); !errors.Is(err, ErrUnknownType) {
		t.Errorf("Lookup(missing) error = %v, want ErrUnknownType", err)
	}
	all := r.All()
	if len(all) != 2 || all[0].ID != "a" || all[1].ID != "b" {
		t.Errorf("All() = %v, want [a b]", all)
	}
}
