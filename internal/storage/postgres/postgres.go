// Package postgres stores approval stamps, signets, process records, roles and
// audit events in PostgreSQL through GORM.
// The sqlite package reuses the models, repositories and GORM settings defined here.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Pool and logging defaults applied by Open for zero Config fields.
const (
	DefaultMaxOpenConns    = 25
	DefaultMaxIdleConns    = 5
	DefaultConnMaxLifetime = 30 * time.Minute
	DefaultConnMaxIdleTime = 10 * time.Minute
	DefaultSlowQuery       = 200 * time.Millisecond
)

// ErrNoDSN is returned by Open when Config.DSN is empty.
var ErrNoDSN = errors.New("postgres: dsn is required")

// Config configures the PostgreSQL connection and pool.
type Config struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration

	// SlowQuery is the duration above which a statement is logged.
	SlowQuery time.Duration
	// SkipMigrate leaves the schema alone on Open; `signoffs migrate` applies it.
	SkipMigrate bool
}

// Validate reports configuration errors that Open cannot default away.
func (c Config) Validate() error {
	if strings.TrimSpace(c.DSN) == "" {
		return ErrNoDSN
	}
	return nil
}

// withDefaults fills zero fields. Idle connections never exceed open ones.
func (c Config) withDefaults() Config {
	if c.MaxOpenConns <= 0 {
		c.MaxOpenConns = DefaultMaxOpenConns
	}
	if c.MaxIdleConns <= 0 {
		c.MaxIdleConns = DefaultMaxIdleConns
	}
	if c.MaxIdleConns > c.MaxOpenConns {
		c.MaxIdleConns = c.MaxOpenConns
	}
	if c.ConnMaxLifetime <= 0 {
		c.ConnMaxLifetime = DefaultConnMaxLifetime
	}
	if c.ConnMaxIdleTime <= 0 {
		c.ConnMaxIdleTime = DefaultConnMaxIdleTime
	}
	if c.SlowQuery <= 0 {
		c.SlowQuery = DefaultSlowQuery
	}
	return c
}

// DB is an open PostgreSQL connection pool.
type DB struct {
	gormDB *gorm.DB
	logger *slog.Logger
	cfg    Config
}

// Open connects to PostgreSQL and sizes the pool. Unless cfg.SkipMigrate is
// set the schema is migrated before Open returns.
func Open(cfg Config, slogger *slog.Logger) (*DB, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg = cfg.withDefaults()

	gcfg := GormConfig(slogger, cfg.SlowQuery)
	gcfg.PrepareStmt = true
	db, err := gorm.Open(postgres.Open(cfg.DSN), gcfg)
	if err != nil {
		return nil, fmt.Errorf("connecting to postgres: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("getting underlying sql.DB: %w", err)
	}
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	sqlDB.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	if !cfg.SkipMigrate {
		if err := autoMigrate(db); err != nil {
			_ = sqlDB.Close()
			return nil, fmt.Errorf("migrating signoffs schema: %w", err)
		}
	}

	slogger.Info("signoffs store opened",
		slog.String("backend", "postgres"),
		slog.Int("max_open_conns", cfg.MaxOpenConns),
		slog.Int("max_idle_conns", cfg.MaxIdleConns),
		slog.Bool("migrated", !cfg.SkipMigrate),
	)
	return &DB{gormDB: db, logger: slogger, cfg: cfg}, nil
}

// GormDB returns the underlying *gorm.DB for repository constructors.
func (d *DB) GormDB() *gorm.DB { return d.gormDB }

// Config returns the configuration in effect, defaults applied.
func (d *DB) Config() Config { return d.cfg }

// Ping checks that the server is reachable.
func (d *DB) Ping(ctx context.Context) error {
	sqlDB, err := d.gormDB.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Close releases the connection pool.
func (d *DB) Close() error {
	sqlDB, err := d.gormDB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// autoMigrate creates or updates every signoffs table.
func autoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(Models()...)
}

// GormConfig returns the GORM settings both backends share: UTC timestamps
// and statement logging through slog.
func GormConfig(slogger *slog.Logger, slowQuery time.Duration) *gorm.Config {
	if slowQuery <= 0 {
		slowQuery = DefaultSlowQuery
	}
	return &gorm.Config{
		Logger: logger.New(gormWriter{slogger}, logger.Config{
			SlowThreshold:             slowQuery,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
		}),
		NowFunc: func() time.Time { return time.Now().UTC() },
	}
}

// gormWriter sends GORM's slow-query and error lines to slog.
type gormWriter struct {
	logger *slog.Logger
}

func (w gormWriter) Printf(format string, args ...any) {
	w.logger.Warn(strings.TrimSpace(fmt.Sprintf(format, args...)), slog.String("component", "storage"))
}
