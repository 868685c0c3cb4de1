package security

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/jkaninda/signoffs/internal/signoff"
)

// Wildcard grants every permission when listed in a role.
const Wildcard = "*"

// Role defines a named set of permissions.
type Role struct {
	Name        string   `json:"name" yaml:"name"`
	Permissions []string `json:"permissions" yaml:"permissions"` // Explicitly granted permission names.
}

// RBACConfig is the full role-based access control configuration.
type RBACConfig struct {
	Roles       map[string]Role   // role name → definition
	UserRoles   map[string]string // user ID → role name
	DefaultRole string            // role for users not in UserRoles
}

// Validate checks that every assigned role exists.
func (c RBACConfig) Validate() error {
	for user, role := range c.UserRoles {
		if _, ok := c.Roles[role]; !ok {
			return fmt.Errorf("%w: %q assigned to user %q", ErrUnknownRole, role, user)
		}
	}
	if c.DefaultRole != "" {
		if _, ok := c.Roles[c.DefaultRole]; !ok {
			return fmt.Errorf("%w: default role %q", ErrUnknownRole, c.DefaultRole)
		}
	}
	return nil
}

// RBAC enforces role-based access control with default-deny semantics.
// Safe for concurrent use.
type RBAC struct {
	mu          sync.RWMutex
	roles       map[string]Role
	userRoles   map[string]string
	defaultRole string
	logger      *slog.Logger
}

var _ signoff.Permissions = (*RBAC)(nil)

// NewRBAC creates an RBAC enforcer from the given configuration.
func NewRBAC(cfg RBACConfig, logger *slog.Logger) *RBAC {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &RBAC{
		roles:       cfg.Roles,
		userRoles:   cfg.UserRoles,
		defaultRole: cfg.DefaultRole,
		logger:      logger,
	}
}

// CheckPermission returns nil if the user's role grants perm.
// Default-deny: no role or missing permission means denied.
func (r *RBAC) CheckPermission(ctx context.Context, userID, perm string) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	role, ok := r.resolveRole(userID)
	if !ok {
		r.logger.WarnContext(ctx, "permission denied: no role found",
			slog.String("user_id", userID),
			slog.String("permission", perm),
		)
		return fmt.Errorf("%w: user %q has no assigned role", ErrPermissionDenied, userID)
	}

	if !roleHasPermission(role, perm) {
		r.logger.WarnContext(ctx, "permission denied: permission not in role",
			slog.String("user_id", userID),
			slog.String("role", role.Name),
			slog.String("permission", perm),
		)
		return fmt.Errorf("%w: role %q does not grant %q", ErrPermissionDenied, role.Name, perm)
	}

	return nil
}

// HasPerm reports whether CheckPermission passes.
func (r *RBAC) HasPerm(ctx context.Context, userID, perm string) bool {
	return r.CheckPermission(ctx, userID, perm) == nil
}

// RoleOf returns the role name resolved for the user, or "".
func (r *RBAC) RoleOf(userID string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	role, ok := r.resolveRole(userID)
	if !ok {
		return ""
	}
	return role.Name
}

// resolveRole returns the role for the user, falling back to defaultRole.
func (r *RBAC) resolveRole(userID string) (Role, bool) {
	roleName, ok := r.userRoles[userID]
	if !ok {
		roleName = r.defaultRole
	}
	if roleName == "" {
		return Role{}, false
	}
	role, ok := r.roles[roleName]
	if ok && role.Name == "" {
		role.Name = roleName
	}
	return role, ok
}

// roleHasPermission checks if perm is in the role's permission list, or the
// role holds the wildcard.
func roleHasPermission(role Role, perm string) bool {
	return slices.Contains(role.Permissions, perm) || slices.Contains(role.Permissions, Wildcard)
}
