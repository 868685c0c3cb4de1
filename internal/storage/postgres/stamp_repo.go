package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/jkaninda/signoffs/internal/approval"
	"github.com/jkaninda/signoffs/internal/signoff"
)

// StampRepository implements approval.Store.
type StampRepository struct {
	db *gorm.DB
}

var _ approval.Store = (*StampRepository)(nil)

// NewStampRepository creates a StampRepository.
func NewStampRepository(db *gorm.DB) *StampRepository {
	return &StampRepository{db: db}
}

// SaveStamp inserts or updates a stamp.
func (r *StampRepository) SaveStamp(ctx context.Context, s *approval.Stamp) error {
	model := toStampModel(s)
	err := conn(ctx, r.db).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{"approved", "approved_at", "updated_at"}),
		}).
		Create(&model).Error
	if err != nil {
		return fmt.Errorf("saving stamp %s: %w", s.ID, err)
	}
	return nil
}

// GetStamp returns the stamp with the given ID, or approval.ErrNotFound.
func (r *StampRepository) GetStamp(ctx context.Context, id uuid.UUID) (*approval.Stamp, error) {
	var model StampModel
	if err := conn(ctx, r.db).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %s", approval.ErrNotFound, id)
		}
		return nil, fmt.Errorf("getting stamp: %w", err)
	}
	return toStampDomain(&model), nil
}

// SaveSignet inserts or updates a signet. Only revocation columns change on update.
func (r *StampRepository) SaveSignet(ctx context.Context, s *signoff.Signet) error {
	model := toSignetModel(s)
	err := conn(ctx, r.db).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{"revoked_by", "revoke_reason", "revoked_at"}),
		}).
		Create(&model).Error
	if err != nil {
		return fmt.Errorf("saving signet %s: %w", s.ID, err)
	}
	return nil
}

// ListSignets returns all signets on a stamp, oldest first.
func (r *StampRepository) ListSignets(ctx context.Context, stampID uuid.UUID) ([]*signoff.Signet, error) {
	var models []SignetModel
	err := conn(ctx, r.db).
		Where("stamp_id = ?", stampID).
		Order("signed_at ASC").
		Find(&models).Error
	if err != nil {
		return nil, fmt.Errorf("listing signets: %w", err)
	}

	out := make([]*signoff.Signet, len(models))
	for i := range models {
		out[i] = toSignetDomain(&models[i])
	}
	return out, nil
}

// ListStamps returns stamps for an approval type, newest first. Limit defaults to 100.
func (r *StampRepository) ListStamps(ctx context.Context, approvalID string, limit int) ([]*approval.Stamp, error) {
	if limit <= 0 {
		limit = 100
	}
	var models []StampModel
	err := conn(ctx, r.db).
		Where("approval_id = ?", approvalID).
		Order("created_at DESC").
		Limit(limit).
		Find(&models).Error
	if err != nil {
		return nil, fmt.Errorf("listing stamps: %w", err)
	}

	out := make([]*approval.Stamp, len(models))
	for i := range models {
		out[i] = toStampDomain(&models[i])
	}
	return out, nil
}
