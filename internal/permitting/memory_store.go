package permitting

import (
	"context"
	"fmt"
	"maps"
	"sync"

	"github.com/google/uuid"
)

// MemoryStore implements Store using an in-memory map.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[uuid.UUID]*Record
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[uuid.UUID]*Record)}
}

func (s *MemoryStore) SaveProcess(_ context.Context, r *Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[r.ID] = clone(r)
	return nil
}

func (s *MemoryStore) GetProcess(_ context.Context, id uuid.UUID) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.records[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return clone(r), nil
}

func clone(r *Record) *Record {
	cp := *r
	cp.Stamps = maps.Clone(r.Stamps)
	return &cp
}
