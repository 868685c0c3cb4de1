package process

import (
	"fmt"
	"iter"
)

// BoundSequence is an ordered, read-only view of the approval instances on
// one process, resolved by name through the process Accessor.
type BoundSequence struct {
	names     []string
	approvals map[string]Approval
}

// NewBoundSequence resolves each name in ordering against the process.
func NewBoundSequence(acc Accessor, ordering []string) (*BoundSequence, error) {
	s := &BoundSequence{
		names:     make([]string, 0, len(ordering)),
		approvals: make(map[string]Approval, len(ordering)),
	}
	for _, name := range ordering {
		if _, dup := s.approvals[name]; dup {
			return nil, fmt.Errorf("%w: approval %q appears twice in the sequence", ErrImproperlyConfigured, name)
		}
		a, ok := acc.Approval(name)
		if !ok || a == nil {
			return nil, fmt.Errorf("%w: process %T has no approval %q", ErrImproperlyConfigured, acc, name)
		}
		s.names = append(s.names, name)
		s.approvals[name] = a
	}
	return s, nil
}

// Names returns the approval names in order.
func (s *BoundSequence) Names() []string {
	out := make([]string, len(s.names))
	copy(out, s.names)
	return out
}

// Approvals returns the approval instances in order.
func (s *BoundSequence) Approvals() []Approval {
	out := make([]Approval, 0, len(s.names))
	for _, name := range s.names {
		out = append(out, s.approvals[name])
	}
	return out
}

// Get returns the approval bound to name.
func (s *BoundSequence) Get(name string) (Approval, bool) {
	a, ok := s.approvals[name]
	return a, ok
}

// Len returns the number of approvals in the sequence.
func (s *BoundSequence) Len() int { return len(s.names) }

// All iterates name, approval pairs in order.
func (s *BoundSequence) All() iter.Seq2[string, Approval] {
	return func(yield func(string, Approval) bool) {
		for _, name := range s.names {
			if !yield(name, s.approvals[name]) {
				return
			}
		}
	}
}

// Map returns a copy of the name to approval mapping.
func (s *BoundSequence) Map() map[string]Approval {
	out := make(map[string]Approval, len(s.approvals))
	for k, v := range s.approvals {
		out[k] = v
	}
	return out
}

// Equal reports whether the sequence binds exactly the given names to
// approvals with the same ids.
func (s *BoundSequence) Equal(m map[string]Approval) bool {
	if len(m) != len(s.approvals) {
		return false
	}
	for name, a := range s.approvals {
		other, ok := m[name]
		if !ok || !sameApproval(a, other) {
			return false
		}
	}
	return true
}

func (s *BoundSequence) indexOf(id Identity) int {
	for i, name := range s.names {
		if sameApproval(s.approvals[name], id) {
			return i
		}
	}
	return -1
}
