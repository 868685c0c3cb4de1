// Package sqlite implements the unified Store interface using SQLite via GORM.
// Uses modernc.org/sqlite (pure Go, no CGO) through the glebarez/sqlite GORM driver.
//
// Key differences from the PostgreSQL backend:
//   - WAL mode enabled by default for concurrent reads
//   - JSONB columns use TEXT type (SQLite stores JSON as text natively)
//   - No connection pooling (single file, WAL handles concurrency)
package sqlite

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"

	"github.com/jkaninda/signoffs/internal/approval"
	"github.com/jkaninda/signoffs/internal/permitting"
	"github.com/jkaninda/signoffs/internal/security"
	"github.com/jkaninda/signoffs/internal/storage"
	pgstore "github.com/jkaninda/signoffs/internal/storage/postgres"
)

// Config holds SQLite-specific configuration.
type Config struct {
	Path        string // Database file path.
	JournalMode string // WAL mode by default.
}

// Store implements storage.Store backed by SQLite.
type Store struct {
	db     *gorm.DB
	logger *slog.Logger
	path   string

	// Sub-store instances (created lazily on first access).
	mu        sync.Mutex
	stamps    approval.Store
	processes *pgstore.ProcessRepository
	roles     security.RoleStore
	audit     *pgstore.AuditRepository
}

// Open creates a new SQLite-backed Store.
func Open(cfg Config, slogger *slog.Logger) (*Store, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("sqlite path is required")
	}

	dir := filepath.Dir(cfg.Path)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, fmt.Errorf("creating database directory %s: %w", dir, err)
	}

	journalMode := cfg.JournalMode
	if journalMode == "" {
		journalMode = "wal"
	}

	dsn := fmt.Sprintf("%s?_pragma=journal_mode(%s)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(ON)", cfg.Path, journalMode)

	db, err := gorm.Open(sqlite.Open(dsn), pgstore.GormConfig(slogger, 0))
	if err != nil {
		return nil, fmt.Errorf("opening sqlite database: %w", err)
	}

	slogger.Info("signoffs store opened",
		slog.String("backend", "sqlite"),
		slog.String("path", cfg.Path),
		slog.String("journal_mode", journalMode),
	)
	return &Store{db: db, logger: slogger, path: cfg.Path}, nil
}

// Migrate runs GORM AutoMigrate with the same models as the PostgreSQL backend.
func (s *Store) Migrate(ctx context.Context) error {
	return s.db.WithContext(ctx).AutoMigrate(pgstore.Models()...)
}

// Atomic runs fn in a transaction shared by every repository it calls.
func (s *Store) Atomic(ctx context.Context, fn func(ctx context.Context) error) error {
	return pgstore.Atomic(ctx, s.db, fn)
}

// Ping checks that the database file is reachable.
func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Driver returns "sqlite".
func (s *Store) Driver() string {
	return storage.DriverSQLite
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// --- Sub-store accessors ---
// All sub-stores reuse the PostgreSQL repository implementations since they
// operate on the same GORM models. GORM's SQLite dialect handles the SQL
// differences transparently.

func (s *Store) Stamps() approval.Store {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stamps == nil {
		s.stamps = pgstore.NewStampRepository(s.db)
	}
	return s.stamps
}

func (s *Store) Processes() permitting.Store {
	return s.ProcessRepository()
}

// ProcessRepository returns the concrete process repository, which also supports listing.
func (s *Store) ProcessRepository() *pgstore.ProcessRepository {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.processes == nil {
		s.processes = pgstore.NewProcessRepository(s.db)
	}
	return s.processes
}

func (s *Store) Roles() security.RoleStore {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.roles == nil {
		s.roles = pgstore.NewRoleRepository(s.db)
	}
	return s.roles
}

func (s *Store) Audit() security.AuditStore {
	return s.AuditRepository()
}

// AuditRepository returns the concrete audit repository, which also supports Query.
func (s *Store) AuditRepository() *pgstore.AuditRepository {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.audit == nil {
		s.audit = pgstore.NewAuditRepository(s.db)
	}
	return s.audit
}

// compile-time interface check
var _ storage.Store = (*Store)(nil)
