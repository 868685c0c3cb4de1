package postgres

import (
	"encoding/json"

	"github.com/google/uuid"

	"github.com/jkaninda/signoffs/internal/approval"
	"github.com/jkaninda/signoffs/internal/permitting"
	"github.com/jkaninda/signoffs/internal/security"
	"github.com/jkaninda/signoffs/internal/signoff"
)

// --- Stamps ---

func toStampModel(s *approval.Stamp) StampModel {
	m := StampModel{
		ID:         s.ID,
		ApprovalID: s.ApprovalID,
		Approved:   s.Approved,
		CreatedAt:  s.CreatedAt,
	}
	if !s.Timestamp.IsZero() {
		ts := s.Timestamp
		m.ApprovedAt = &ts
	}
	return m
}

func toStampDomain(m *StampModel) *approval.Stamp {
	s := &approval.Stamp{
		ID:         m.ID,
		ApprovalID: m.ApprovalID,
		Approved:   m.Approved,
		CreatedAt:  m.CreatedAt.UTC(),
	}
	if m.ApprovedAt != nil {
		s.Timestamp = m.ApprovedAt.UTC()
	}
	return s
}

// --- Processes ---

func toProcessModel(r *permitting.Record) (ProcessModel, error) {
	stamps, err := json.Marshal(r.Stamps)
	if err != nil {
		return ProcessModel{}, err
	}
	return ProcessModel{
		ID:        r.ID,
		Kind:      r.Kind,
		Subject:   r.Subject,
		State:     r.State,
		Stamps:    JSONB(stamps),
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}, nil
}

func toProcessDomain(m *ProcessModel) (*permitting.Record, error) {
	r := &permitting.Record{
		ID:        m.ID,
		Kind:      m.Kind,
		Subject:   m.Subject,
		State:     m.State,
		CreatedAt: m.CreatedAt.UTC(),
		UpdatedAt: m.UpdatedAt.UTC(),
	}
	if len(m.Stamps) > 0 {
		if err := json.Unmarshal(m.Stamps, &r.Stamps); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// --- Signets ---

func toSignetModel(s *signoff.Signet) SignetModel {
	m := SignetModel{
		ID:        s.ID,
		StampID:   s.StampID,
		SignoffID: s.SignoffID,
		UserID:    s.UserID,
		Sigil:     s.Sigil,
		SignedAt:  s.Timestamp,
	}
	if s.Revoked != nil {
		ts := s.Revoked.Timestamp
		m.RevokedBy = s.Revoked.UserID
		m.RevokeReason = s.Revoked.Reason
		m.RevokedAt = &ts
	}
	return m
}

func toSignetDomain(m *SignetModel) *signoff.Signet {
	s := &signoff.Signet{
		ID:        m.ID,
		StampID:   m.StampID,
		SignoffID: m.SignoffID,
		UserID:    m.UserID,
		Sigil:     m.Sigil,
		Timestamp: m.SignedAt.UTC(),
	}
	if m.RevokedAt != nil {
		s.Revoked = &signoff.Revocation{
			UserID:    m.RevokedBy,
			Reason:    m.RevokeReason,
			Timestamp: m.RevokedAt.UTC(),
		}
	}
	return s
}

// --- Roles ---

func toSecurityRole(m *RoleModel) security.Role {
	perms := make([]string, 0, len(m.Permissions))
	for _, p := range m.Permissions {
		perms = append(perms, p.Name)
	}
	return security.Role{
		Name:        m.Name,
		Permissions: perms,
	}
}

// --- Audit ---

func toAuditModel(event security.AuditEvent) AuditEventModel {
	params, _ := json.Marshal(event.Parameters)
	if params == nil || string(params) == "null" {
		params = []byte("{}")
	}
	return AuditEventModel{
		ID:            uuid.New(),
		CorrelationID: event.CorrelationID,
		UserID:        event.UserID,
		Action:        event.Action,
		ProcessID:     event.ProcessID,
		ApprovalID:    event.ApprovalID,
		SignoffID:     event.SignoffID,
		Parameters:    JSONB(params),
		Result:        event.Result,
		Reason:        event.Reason,
		Error:         event.Error,
		CreatedAt:     event.Timestamp,
	}
}

func toAuditDomain(m *AuditEventModel) security.AuditEvent {
	var params map[string]any
	if len(m.Parameters) > 0 {
		_ = json.Unmarshal(m.Parameters, &params)
	}
	if len(params) == 0 {
		params = nil
	}
	return security.AuditEvent{
		Timestamp:     m.CreatedAt.UTC(),
		CorrelationID: m.CorrelationID,
		UserID:        m.UserID,
		Action:        m.Action,
		ProcessID:     m.ProcessID,
		ApprovalID:    m.ApprovalID,
		SignoffID:     m.SignoffID,
		Parameters:    params,
		Result:        m.Result,
		Reason:        m.Reason,
		Error:         m.Error,
	}
}
