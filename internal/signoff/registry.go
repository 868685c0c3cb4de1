package signoff

import (
	"fmt"
	"sync"
)

// Registry holds signoff types by id, in registration order.
type Registry struct {
	mu    sync.RWMutex
	types map[string]*Type
	order []string
}

// NewRegistry creates a registry pre-loaded with types.
func NewRegistry(types ...*Type) (*Registry, error) {
	r := &Registry{types: make(map[string]*Type, len(types))}
	for _, t := range types {
		if err := r.Register(t); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register adds a signoff type. Ids must be unique.
func (r *Registry) Register(t *Type) error {
	if t == nil || t.ID == "" {
		return fmt.Errorf("%w: empty id", ErrUnknownType)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.types[t.ID]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateType, t.ID)
	}
	r.types[t.ID] = t
	r.order = append(r.order, t.ID)
	return nil
}

// Get returns the signoff type for id.
func (r *Registry) Get(id string) (*Type, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.types[id]
	return t, ok
}

// Lookup is like Get but returns ErrUnknownType when id is not registered.
func (r *Registry) Lookup(id string) (*Type, error) {
	t, ok := r.Get(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownType, id)
	}
	return t, nil
}

// All returns every type in registration order.
func (r *Registry) All() []*Type {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Type, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.types[id])
	}
	return out
}

// MustGet is like Lookup but panics. Use it for ids fixed at compile time.
func (r *Registry) MustGet(id string) *Type {
	t, err := r.Lookup(id)
	if err != nil {
		panic(err)
	}
	return t
}
