package security

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/jkaninda/signoffs/internal/approval"
	"github.com/jkaninda/signoffs/internal/process"
	"github.com/jkaninda/signoffs/internal/signoff"
)

// permissionChecker is the RBAC check contract.
// Satisfied by *RBAC (in-memory) and *StoreRBAC (store-backed).
type permissionChecker interface {
	CheckPermission(ctx context.Context, userID, perm string) error
	HasPerm(ctx context.Context, userID, perm string) bool
}

// auditAppender is the audit logging contract.
// Satisfied by *AuditLogger (JSONL file) and *StoreAuditLogger.
type auditAppender interface {
	LogAction(ctx context.Context, event AuditEvent) error
	Close() error
}

// Manager composes RBAC and audit logging. It is the Permissions backend
// handed to approvals and an Observer for process actions, so every
// approve and revoke attempt lands in the audit log.
type Manager struct {
	rbac   permissionChecker
	audit  auditAppender
	logger *slog.Logger
	now    func() time.Time
}

var (
	_ signoff.Permissions = (*Manager)(nil)
	_ process.Observer    = (*Manager)(nil)
)

// NewManager creates a composed security manager. audit may be nil.
func NewManager(rbac permissionChecker, audit auditAppender, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Manager{
		rbac:   rbac,
		audit:  audit,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func (m *Manager) CheckPermission(ctx context.Context, userID, perm string) error {
	return m.rbac.CheckPermission(ctx, userID, perm)
}

func (m *Manager) HasPerm(ctx context.Context, userID, perm string) bool {
	return m.rbac.HasPerm(ctx, userID, perm)
}

// LogAction appends an audit event, stamping its time when unset.
func (m *Manager) LogAction(ctx context.Context, event AuditEvent) error {
	if m.audit == nil {
		return nil
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = m.now()
	}
	return m.audit.LogAction(ctx, event)
}

// Sign signs on behalf of userID and audits the attempt.
func (m *Manager) Sign(ctx context.Context, a *approval.Approval, userID, signoffID string) (*signoff.Signet, error) {
	sg, err := a.Sign(ctx, userID, signoffID)
	event := AuditEvent{
		CorrelationID: uuid.NewString(),
		UserID:        userID,
		Action:        ActionSign,
		ApprovalID:    a.ApprovalID(),
		SignoffID:     signoffID,
		Result:        resultOf(err),
	}
	if sg != nil {
		event.Parameters = map[string]any{"signet_id": sg.ID.String()}
	}
	if err != nil {
		event.Error = err.Error()
	}
	m.logAudit(ctx, event)
	return sg, err
}

// RevokeSignoff revokes one signet on behalf of userID and audits the attempt.
func (m *Manager) RevokeSignoff(ctx context.Context, a *approval.Approval, userID string, signetID uuid.UUID, reason string) error {
	err := a.RevokeSignoff(ctx, userID, signetID, reason)
	event := AuditEvent{
		CorrelationID: uuid.NewString(),
		UserID:        userID,
		Action:        ActionRevokeSignoff,
		ApprovalID:    a.ApprovalID(),
		Parameters:    map[string]any{"signet_id": signetID.String()},
		Result:        resultOf(err),
		Reason:        reason,
	}
	if err != nil {
		event.Error = err.Error()
	}
	m.logAudit(ctx, event)
	return err
}

// BeginTransition audits the outcome of every approve or revoke attempt.
func (m *Manager) BeginTransition(ctx context.Context, at process.Attempt) (context.Context, func(process.Outcome)) {
	correlationID := uuid.NewString()
	return ctx, func(o process.Outcome) {
		event := AuditEvent{
			CorrelationID: correlationID,
			UserID:        at.UserID,
			Action:        string(at.Kind),
			ProcessID:     at.ProcessID,
			ApprovalID:    at.ApprovalID,
		}
		switch o.Result {
		case process.ResultApplied:
			event.Result = ResultSuccess
		case process.ResultDenied, process.ResultInvalid:
			event.Result = ResultDenied
			event.Reason = o.Reason.String()
		default:
			event.Result = ResultFailure
		}
		if o.Err != nil {
			event.Error = o.Err.Error()
		}
		m.logAudit(ctx, event)
	}
}

// Close releases the audit log.
func (m *Manager) Close() error {
	if m.audit == nil {
		return nil
	}
	return m.audit.Close()
}

func (m *Manager) logAudit(ctx context.Context, event AuditEvent) {
	if err := m.LogAction(ctx, event); err != nil {
		m.logger.ErrorContext(ctx, "audit write failed",
			slog.String("action", event.Action),
			slog.String("error", err.Error()),
		)
	}
}

func resultOf(err error) string {
	switch {
	case err == nil:
		return ResultSuccess
	case errors.Is(err, ErrPermissionDenied):
		return ResultDenied
	default:
		return ResultFailure
	}
}
