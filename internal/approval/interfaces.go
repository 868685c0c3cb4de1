package approval

import (
	"context"

	"github.com/google/uuid"

	"github.com/jkaninda/signoffs/internal/signoff"
)

// Store is the persistence contract for approval stamps and their signets.
// Signets are never deleted; revocation is recorded on the signet itself.
type Store interface {
	// SaveStamp inserts or updates a stamp.
	SaveStamp(ctx context.Context, stamp *Stamp) error
	// GetStamp returns the stamp with the given ID, or ErrNotFound.
	GetStamp(ctx context.Context, id uuid.UUID) (*Stamp, error)
	// SaveSignet inserts or updates a signet.
	SaveSignet(ctx context.Context, s *signoff.Signet) error
	// ListSignets returns all signets on a stamp, oldest first.
	ListSignets(ctx context.Context, stampID uuid.UUID) ([]*signoff.Signet, error)
}
