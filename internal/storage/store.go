// Package storage defines the unified Store interface that abstracts all persistence operations.
// Two backends are provided: SQLite (default, zero-config) and PostgreSQL.
package storage

import (
	"context"

	"github.com/jkaninda/signoffs/internal/approval"
	"github.com/jkaninda/signoffs/internal/permitting"
	"github.com/jkaninda/signoffs/internal/security"
)

// Store is the unified persistence interface.
// Both SQLite and PostgreSQL backends implement this interface.
type Store interface {
	// Sub-store accessors. The returned stores share the same connection and
	// join the transaction of a context passed through Atomic.
	Stamps() approval.Store
	Processes() permitting.Store
	Roles() security.RoleStore
	Audit() security.AuditStore

	// Atomic runs fn in a single transaction. It has the shape of
	// process.UnitOfWork.
	Atomic(ctx context.Context, fn func(ctx context.Context) error) error

	// Lifecycle.
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error

	// Driver returns the storage driver name ("sqlite" or "postgres").
	Driver() string
}

// Config holds storage configuration for driver selection.
type Config struct {
	Driver   string         `json:"driver" yaml:"driver" validate:"omitempty,oneof=sqlite postgres"`
	SQLite   SQLiteConfig   `json:"sqlite" yaml:"sqlite"`
	Postgres PostgresConfig `json:"postgres" yaml:"postgres"`
}

// SQLiteConfig holds SQLite-specific settings.
type SQLiteConfig struct {
	Path        string `json:"path,omitempty" yaml:"path,omitempty"` // Database file path. Default: derived from data dir.
	JournalMode string `json:"journal_mode" yaml:"journal_mode"`     // "wal" (default), "delete", "truncate", etc.
}

// PostgresConfig holds PostgreSQL-specific settings.
type PostgresConfig struct {
	DSN              string `json:"dsn" yaml:"dsn"`
	MaxOpenConns     int    `json:"max_open_conns" yaml:"max_open_conns" validate:"gte=0"`
	MaxIdleConns     int    `json:"max_idle_conns" yaml:"max_idle_conns" validate:"gte=0"`
	ConnMaxLifetimeS int    `json:"conn_max_lifetime_s" yaml:"conn_max_lifetime_s" validate:"gte=0"`
	SlowQueryMS      int    `json:"slow_query_ms,omitempty" yaml:"slow_query_ms,omitempty" validate:"gte=0"`
	SkipMigrate      bool   `json:"skip_migrate,omitempty" yaml:"skip_migrate,omitempty"` // Leave the schema to `signoffs migrate`.
}

// DefaultDriver is the default storage driver.
const DefaultDriver = "sqlite"

// DriverSQLite is the SQLite driver name.
const DriverSQLite = "sqlite"

// DriverPostgres is the PostgreSQL driver name.
const DriverPostgres = "postgres"
