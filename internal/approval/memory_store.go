package approval

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/jkaninda/signoffs/internal/signoff"
)

// MemoryStore implements Store using in-memory maps.
// Used in tests and when no database is configured.
type MemoryStore struct {
	mu      sync.RWMutex
	stamps  map[uuid.UUID]*Stamp
	signets map[uuid.UUID]*signoff.Signet
	order   []uuid.UUID // signet insertion order
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		stamps:  make(map[uuid.UUID]*Stamp),
		signets: make(map[uuid.UUID]*signoff.Signet),
	}
}

func (s *MemoryStore) SaveStamp(_ context.Context, stamp *Stamp) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *stamp
	s.stamps[stamp.ID] = &cp
	return nil
}

func (s *MemoryStore) GetStamp(_ context.Context, id uuid.UUID) (*Stamp, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.stamps[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	cp := *st
	return &cp, nil
}

func (s *MemoryStore) SaveSignet(_ context.Context, sg *signoff.Signet) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.stamps[sg.StampID]; !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, sg.StampID)
	}
	cp := *sg
	if sg.Revoked != nil {
		rv := *sg.Revoked
		cp.Revoked = &rv
	}
	if _, ok := s.signets[sg.ID]; !ok {
		s.order = append(s.order, sg.ID)
	}
	s.signets[sg.ID] = &cp
	return nil
}

func (s *MemoryStore) ListSignets(_ context.Context, stampID uuid.UUID) ([]*signoff.Signet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*signoff.Signet
	for _, id := range s.order {
		if sg := s.signets[id]; sg.StampID == stampID {
			cp := *sg
			out = append(out, &cp)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.Before(out[j].Timestamp)
	})
	return out, nil
}
