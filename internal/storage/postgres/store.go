package postgres

import (
	"context"
	"sync"

	"github.com/jkaninda/signoffs/internal/approval"
	"github.com/jkaninda/signoffs/internal/permitting"
	"github.com/jkaninda/signoffs/internal/security"
	"github.com/jkaninda/signoffs/internal/storage"
)

// Store implements storage.Store backed by PostgreSQL.
// It wraps the existing DB and lazily creates sub-store repositories.
type Store struct {
	pgDB *DB

	mu        sync.Mutex
	stamps    approval.Store
	processes *ProcessRepository
	roles     security.RoleStore
	audit     *AuditRepository
}

// NewStore wraps an existing DB as a unified Store.
func NewStore(pgDB *DB) *Store {
	return &Store{pgDB: pgDB}
}

// Migrate re-runs AutoMigrate. Open already migrates; this serves the CLI.
func (s *Store) Migrate(ctx context.Context) error {
	return autoMigrate(s.pgDB.GormDB().WithContext(ctx))
}

func (s *Store) Atomic(ctx context.Context, fn func(ctx context.Context) error) error {
	return Atomic(ctx, s.pgDB.GormDB(), fn)
}

func (s *Store) Ping(ctx context.Context) error {
	return s.pgDB.Ping(ctx)
}

func (s *Store) Close() error {
	return s.pgDB.Close()
}

func (s *Store) Driver() string {
	return storage.DriverPostgres
}

// DB returns the wrapped connection.
func (s *Store) DB() *DB {
	return s.pgDB
}

// --- Sub-store accessors ---

func (s *Store) Stamps() approval.Store {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stamps == nil {
		s.stamps = NewStampRepository(s.pgDB.GormDB())
	}
	return s.stamps
}

func (s *Store) Processes() permitting.Store {
	return s.ProcessRepository()
}

// ProcessRepository returns the concrete process repository, which also supports listing.
func (s *Store) ProcessRepository() *ProcessRepository {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.processes == nil {
		s.processes = NewProcessRepository(s.pgDB.GormDB())
	}
	return s.processes
}

func (s *Store) Roles() security.RoleStore {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.roles == nil {
		s.roles = NewRoleRepository(s.pgDB.GormDB())
	}
	return s.roles
}

func (s *Store) Audit() security.AuditStore {
	return s.AuditRepository()
}

// AuditRepository returns the concrete audit repository, which also supports Query.
func (s *Store) AuditRepository() *AuditRepository {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.audit == nil {
		s.audit = NewAuditRepository(s.pgDB.GormDB())
	}
	return s.audit
}

// compile-time interface check
var _ storage.Store = (*Store)(nil)
