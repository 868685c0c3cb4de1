package security

import "context"

// RoleStore provides persistent storage for RBAC configuration.
// Implementations must be safe for concurrent use.
type RoleStore interface {
	// LoadRBACConfig loads the full RBAC config.
	LoadRBACConfig(ctx context.Context) (RBACConfig, error)
	// SaveRole creates or updates a role and its permissions.
	SaveRole(ctx context.Context, role Role) error
	// AssignUserRole sets the role for a user.
	AssignUserRole(ctx context.Context, userID, roleName string) error
}

// AuditStore is an append-only store for audit events.
// No update or delete methods: immutability enforced at the interface level.
type AuditStore interface {
	// Append writes a single audit event. Never updates or deletes.
	Append(ctx context.Context, event AuditEvent) error
}
