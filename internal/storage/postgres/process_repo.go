package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/jkaninda/signoffs/internal/permitting"
)

// ProcessRepository implements permitting.Store.
type ProcessRepository struct {
	db *gorm.DB
}

var _ permitting.Store = (*ProcessRepository)(nil)

// NewProcessRepository creates a ProcessRepository.
func NewProcessRepository(db *gorm.DB) *ProcessRepository {
	return &ProcessRepository{db: db}
}

// SaveProcess inserts a process record or updates its state and stamps.
func (r *ProcessRepository) SaveProcess(ctx context.Context, rec *permitting.Record) error {
	model, err := toProcessModel(rec)
	if err != nil {
		return fmt.Errorf("encoding process %s: %w", rec.ID, err)
	}
	err = conn(ctx, r.db).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{"state", "stamps", "updated_at"}),
		}).
		Create(&model).Error
	if err != nil {
		return fmt.Errorf("saving process %s: %w", rec.ID, err)
	}
	return nil
}

// GetProcess returns the process with the given ID, or permitting.ErrNotFound.
func (r *ProcessRepository) GetProcess(ctx context.Context, id uuid.UUID) (*permitting.Record, error) {
	var model ProcessModel
	if err := conn(ctx, r.db).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %s", permitting.ErrNotFound, id)
		}
		return nil, fmt.Errorf("getting process: %w", err)
	}
	rec, err := toProcessDomain(&model)
	if err != nil {
		return nil, fmt.Errorf("decoding process %s: %w", id, err)
	}
	return rec, nil
}

// ListProcesses returns the most recently updated processes of a kind.
// An empty kind lists every kind. Limit defaults to 50.
func (r *ProcessRepository) ListProcesses(ctx context.Context, kind string, limit int) ([]*permitting.Record, error) {
	if limit <= 0 {
		limit = 50
	}
	q := conn(ctx, r.db).Order("updated_at DESC").Limit(limit)
	if kind != "" {
		q = q.Where("kind = ?", kind)
	}
	var models []ProcessModel
	if err := q.Find(&models).Error; err != nil {
		return nil, fmt.Errorf("listing processes: %w", err)
	}
	out := make([]*permitting.Record, 0, len(models))
	for i := range models {
		rec, err := toProcessDomain(&models[i])
		if err != nil {
			return nil, fmt.Errorf("decoding process %s: %w", models[i].ID, err)
		}
		out = append(out, rec)
	}
	return out, nil
}
