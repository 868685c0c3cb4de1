// Package security enforces default-deny permissions for signing, approving
// and revoking, and keeps an append-only audit trail of those actions.
package security

import (
	"errors"
	"time"

	"github.com/jkaninda/signoffs/internal/signoff"
)

// Sentinel errors for security enforcement.
var (
	ErrPermissionDenied = signoff.ErrPermissionDenied
	ErrUnknownRole      = errors.New("unknown role")
)

// Audited action names.
const (
	ActionSign          = "sign"
	ActionRevokeSignoff = "revoke_signoff"
	ActionApprove       = "approve"
	ActionRevoke        = "revoke"
)

// Audit results.
const (
	ResultSuccess = "success"
	ResultDenied  = "denied"
	ResultFailure = "failure"
)

// AuditEvent is a single entry in the append-only audit log.
type AuditEvent struct {
	Timestamp     time.Time      `json:"timestamp"`
	CorrelationID string         `json:"correlation_id"`
	UserID        string         `json:"user_id"`
	Action        string         `json:"action"`
	ProcessID     string         `json:"process_id,omitempty"`
	ApprovalID    string         `json:"approval_id,omitempty"`
	SignoffID     string         `json:"signoff_id,omitempty"`
	Parameters    map[string]any `json:"parameters,omitempty"`
	Result        string         `json:"result"` // "success", "denied", "failure"
	Reason        string         `json:"reason,omitempty"`
	Error         string         `json:"error,omitempty"`
}
