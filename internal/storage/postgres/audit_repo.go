package postgres

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/jkaninda/signoffs/internal/security"
)

// AuditRepository implements security.AuditStore.
// Append-only: no Update or Delete methods exist on this type.
type AuditRepository struct {
	db *gorm.DB
}

var _ security.AuditStore = (*AuditRepository)(nil)

// NewAuditRepository creates an AuditRepository.
func NewAuditRepository(db *gorm.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

// Append inserts a single audit event. This is the only write method.
func (r *AuditRepository) Append(ctx context.Context, event security.AuditEvent) error {
	model := toAuditModel(event)
	if err := conn(ctx, r.db).Create(&model).Error; err != nil {
		return fmt.Errorf("appending audit event: %w", err)
	}
	return nil
}

// Query returns audit events newest first, optionally filtered by process.
// Limit defaults to 100.
func (r *AuditRepository) Query(ctx context.Context, processID string, limit int) ([]security.AuditEvent, error) {
	if limit <= 0 {
		limit = 100
	}

	q := conn(ctx, r.db).
		Order("created_at DESC").
		Limit(limit)
	if processID != "" {
		q = q.Where("process_id = ?", processID)
	}

	var models []AuditEventModel
	if err := q.Find(&models).Error; err != nil {
		return nil, fmt.Errorf("querying audit events: %w", err)
	}

	events := make([]security.AuditEvent, len(models))
	for i := range models {
		events[i] = toAuditDomain(&models[i])
	}
	return events, nil
}
