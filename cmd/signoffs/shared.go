package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	goutils "github.com/jkaninda/go-utils"

	"github.com/jkaninda/signoffs/internal/approval"
	"github.com/jkaninda/signoffs/internal/config"
	"github.com/jkaninda/signoffs/internal/observability"
	"github.com/jkaninda/signoffs/internal/process"
	"github.com/jkaninda/signoffs/internal/security"
	"github.com/jkaninda/signoffs/internal/storage"
	pgstore "github.com/jkaninda/signoffs/internal/storage/postgres"
	sqlitestore "github.com/jkaninda/signoffs/internal/storage/sqlite"
)

// SharedComponents holds the subsystems every command needs. Built once by
// initShared, torn down by Cleanup.
type SharedComponents struct {
	Config     *config.Config
	Logger     *slog.Logger
	Store      storage.Store
	Obs        *observability.Observability // nil = observability disabled.
	Instrument *observability.Instrument
	Security   *security.Manager

	cleanups []func()
}

// Cleanup runs all deferred cleanup functions in reverse order.
func (sc *SharedComponents) Cleanup() {
	for i := len(sc.cleanups) - 1; i >= 0; i-- {
		sc.cleanups[i]()
	}
}

func (sc *SharedComponents) addCleanup(fn func()) {
	sc.cleanups = append(sc.cleanups, fn)
}

// ProcessOptions wires audit, instrumentation and the store transaction into
// process actions.
func (sc *SharedComponents) ProcessOptions() []process.Option {
	opts := []process.Option{
		process.WithLogger(sc.Logger),
		process.WithObserver(sc.Security),
		process.WithObserver(sc.Instrument),
		process.WithUnitOfWork(sc.Store.Atomic),
	}
	if sc.Config.Processes.RevokeBlockedByNextSignoffs {
		opts = append(opts, process.WithRevokeBlockedByNextSignoffs())
	}
	return opts
}

// ApprovalOptions lets approvals check permissions through the security manager.
func (sc *SharedComponents) ApprovalOptions() []approval.Option {
	return []approval.Option{
		approval.WithPermissions(sc.Security),
		approval.WithLogger(sc.Logger),
	}
}

// Sign signs through the security manager and records the outcome.
func (sc *SharedComponents) Sign(ctx context.Context, a *approval.Approval, userID, signoffID string) error {
	_, err := sc.Security.Sign(ctx, a, userID, signoffID)
	sc.Instrument.RecordSignoff(ctx, signoffID, err)
	return err
}

// loadConfig reads the config file. A missing file at the default location
// falls back to defaults; a missing file that was asked for is an error.
func loadConfig() (*config.Config, error) {
	path := goutils.Env("SIGNOFFS_CONFIG", configPath)
	cfg, err := config.Load(path)
	if err == nil {
		return cfg, nil
	}
	if errors.Is(err, fs.ErrNotExist) && path == config.DefaultConfigPath() {
		return config.Default(), nil
	}
	return nil, err
}

func newLogger(cfg config.LogConfig) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.SlogLevel()}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

// initShared loads config and builds storage, observability and security.
// Callers must call sc.Cleanup() when done.
func initShared(ctx context.Context) (*SharedComponents, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	logger := newLogger(cfg.Log)
	sc := &SharedComponents{Config: cfg, Logger: logger}

	dataDir := cfg.ResolvedDataDir()
	if err := os.MkdirAll(dataDir, 0750); err != nil {
		return nil, fmt.Errorf("creating data directory %s: %w", dataDir, err)
	}
	logger.Debug("data directory initialized", slog.String("path", dataDir))

	// Observability.
	obs, err := observability.New(cfg.Observability, logger)
	if err != nil {
		return nil, fmt.Errorf("initializing observability: %w", err)
	}
	sc.Obs = obs
	sc.Instrument = obs.Instrument()
	sc.addCleanup(func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		obs.Shutdown(shutdownCtx)
	})

	// Storage.
	store, err := initStore(cfg, logger)
	if err != nil {
		sc.Cleanup()
		return nil, fmt.Errorf("initializing storage: %w", err)
	}
	sc.Store = store
	sc.addCleanup(func() {
		if err := store.Close(); err != nil {
			logger.Error("closing store", slog.String("error", err.Error()))
		}
	})
	if err := store.Migrate(ctx); err != nil {
		sc.Cleanup()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	logger.Debug("storage initialized", slog.String("driver", store.Driver()))

	// Security.
	mgr, err := initSecurity(cfg, store, obs, logger)
	if err != nil {
		sc.Cleanup()
		return nil, fmt.Errorf("initializing security: %w", err)
	}
	sc.Security = mgr
	sc.addCleanup(func() {
		if err := mgr.Close(); err != nil {
			logger.Error("closing audit log", slog.String("error", err.Error()))
		}
	})

	if obs != nil {
		obs.Health.AddPinger("storage", store)
	}
	return sc, nil
}

// initStore creates the storage backend selected by config.
func initStore(cfg *config.Config, logger *slog.Logger) (storage.Store, error) {
	switch cfg.StorageDriver() {
	case storage.DriverPostgres:
		pc := cfg.Storage.Postgres
		db, err := pgstore.Open(pgstore.Config{
			DSN:             pc.DSN,
			MaxOpenConns:    pc.MaxOpenConns,
			MaxIdleConns:    pc.MaxIdleConns,
			ConnMaxLifetime: time.Duration(pc.ConnMaxLifetimeS) * time.Second,
			SlowQuery:       time.Duration(pc.SlowQueryMS) * time.Millisecond,
			SkipMigrate:     pc.SkipMigrate,
		}, logger)
		if err != nil {
			return nil, err
		}
		return pgstore.NewStore(db), nil
	default:
		var journal string
		if cfg.Storage != nil {
			journal = cfg.Storage.SQLite.JournalMode
		}
		return sqlitestore.Open(sqlitestore.Config{
			Path:        cfg.DatabasePath(),
			JournalMode: journal,
		}, logger)
	}
}

// initSecurity builds the store-backed RBAC and the audit sink.
func initSecurity(cfg *config.Config, store storage.Store, obs *observability.Observability, logger *slog.Logger) (*security.Manager, error) {
	rbacCfg := cfg.Security.RBACConfig()
	if len(rbacCfg.Roles) == 0 {
		logger.Warn("no roles configured, using the demo roles")
		rbacCfg = demoRBAC()
	}
	if err := rbacCfg.Validate(); err != nil {
		return nil, err
	}

	storeRBAC := security.NewStoreRBAC(store.Roles(), rbacCfg, cfg.Security.RoleCacheTTL(), logger)
	if obs != nil {
		rolesReady := observability.RoleStoreCheck(store.Roles())
		obs.Health.AddCheck("roles", func(ctx context.Context) error {
			if err := storeRBAC.Ready(ctx); err != nil {
				return err
			}
			return rolesReady(ctx)
		})
	}

	var perms observability.PermissionChecker = storeRBAC
	if obs != nil && obs.Metrics != nil {
		perms = observability.NewInstrumentedPermissions(perms, obs.Metrics, obs.TracerOrNil())
	}

	if cfg.Security.AuditToStore {
		logger.Debug("audit log initialized", slog.String("sink", "store"))
		return security.NewManager(perms, security.NewStoreAuditLogger(store.Audit(), logger), logger), nil
	}

	path := cfg.AuditLogPath()
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return nil, fmt.Errorf("creating audit log directory: %w", err)
	}
	audit, err := security.NewAuditLogger(path, logger)
	if err != nil {
		return nil, err
	}
	logger.Debug("audit log initialized", slog.String("path", path))
	return security.NewManager(perms, audit, logger), nil
}
