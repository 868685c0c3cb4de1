// Package permitting defines the bundled approval processes: a two-step
// leave request and a four-stage building permit driven by a state machine.
// Both keep their approvals in an approval.Store and their own state in a
// Store, so an instance can be reloaded between requests.
package permitting

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jkaninda/signoffs/internal/approval"
)

// ErrNotFound is returned when a process record does not exist.
var ErrNotFound = errors.New("process not found")

// Process kinds.
const (
	KindLeaveRequest   = "leave_request"
	KindBuildingPermit = "building_permit"
)

// Record is the persisted form of a process instance.
type Record struct {
	ID        uuid.UUID
	Kind      string
	Subject   string               // Employee or building the process is about.
	State     string               // Empty for processes without a state machine.
	Stamps    map[string]uuid.UUID // Approval id -> stamp id.
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Store persists process records.
type Store interface {
	SaveProcess(ctx context.Context, r *Record) error
	GetProcess(ctx context.Context, id uuid.UUID) (*Record, error)
}

// instance is the state shared by every process in this package.
type instance struct {
	record    Record
	approvals map[string]*approval.Approval
	store     Store
	now       func() time.Time
	history   []string
}

func newInstance(ctx context.Context, kind, subject string, types []*approval.Type, store Store, stamps approval.Store, opts []approval.Option) (*instance, error) {
	if stamps != nil {
		opts = append(opts, approval.WithStore(stamps))
	}
	in := &instance{
		record: Record{
			ID:      uuid.New(),
			Kind:    kind,
			Subject: subject,
			Stamps:  make(map[string]uuid.UUID, len(types)),
		},
		approvals: make(map[string]*approval.Approval, len(types)),
		store:     store,
		now:       func() time.Time { return time.Now().UTC() },
	}
	for _, typ := range types {
		a, err := approval.New(ctx, typ, opts...)
		if err != nil {
			return nil, fmt.Errorf("creating %s approval: %w", typ.ID, err)
		}
		in.approvals[typ.ID] = a
		in.record.Stamps[typ.ID] = a.Stamp().ID
	}
	in.record.CreatedAt = in.now()
	return in, nil
}

func loadInstance(ctx context.Context, kind string, id uuid.UUID, types []*approval.Type, store Store, stamps approval.Store, opts []approval.Option) (*instance, error) {
	rec, err := store.GetProcess(ctx, id)
	if err != nil {
		return nil, err
	}
	if rec.Kind != kind {
		return nil, fmt.Errorf("process %s is a %s, not a %s", id, rec.Kind, kind)
	}
	in := &instance{
		record:    *rec,
		approvals: make(map[string]*approval.Approval, len(types)),
		store:     store,
		now:       func() time.Time { return time.Now().UTC() },
	}
	for _, typ := range types {
		stampID, ok := rec.Stamps[typ.ID]
		if !ok {
			return nil, fmt.Errorf("process %s has no %s stamp", id, typ.ID)
		}
		a, err := approval.Load(ctx, typ, stamps, stampID, opts...)
		if err != nil {
			return nil, fmt.Errorf("loading %s approval: %w", typ.ID, err)
		}
		in.approvals[typ.ID] = a
	}
	return in, nil
}

func (in *instance) lookup(name string) (*approval.Approval, bool) {
	a, ok := in.approvals[name]
	return a, ok
}

func (in *instance) save(ctx context.Context) error {
	if in.store == nil {
		return nil
	}
	in.record.UpdatedAt = in.now()
	rec := in.record
	if err := in.store.SaveProcess(ctx, &rec); err != nil {
		return fmt.Errorf("saving %s %s: %w", in.record.Kind, in.record.ID, err)
	}
	return nil
}
