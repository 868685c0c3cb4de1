package security

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jkaninda/signoffs/internal/signoff"
)

// DefaultCacheTTL is how long StoreRBAC keeps a loaded config.
const DefaultCacheTTL = 60 * time.Second

// StoreRBAC is a store-backed RBAC enforcer that caches RBACConfig in memory.
// It loads from the RoleStore on first access and refreshes after the cache TTL.
// On first startup with an empty store, it bootstraps from the fallback config.
type StoreRBAC struct {
	store       RoleStore
	fallbackCfg RBACConfig
	logger      *slog.Logger

	mu       sync.RWMutex
	cached   *RBAC
	loadedAt time.Time
	cacheTTL time.Duration
}

var _ signoff.Permissions = (*StoreRBAC)(nil)

// NewStoreRBAC creates a store-backed RBAC enforcer.
// fallbackCfg is used to bootstrap the store on first startup.
func NewStoreRBAC(store RoleStore, fallbackCfg RBACConfig, cacheTTL time.Duration, logger *slog.Logger) *StoreRBAC {
	if cacheTTL <= 0 {
		cacheTTL = DefaultCacheTTL
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &StoreRBAC{
		store:       store,
		fallbackCfg: fallbackCfg,
		logger:      logger,
		cacheTTL:    cacheTTL,
	}
}

// CheckPermission delegates to the cached in-memory RBAC after ensuring it's loaded.
func (p *StoreRBAC) CheckPermission(ctx context.Context, userID, perm string) error {
	rbac, err := p.ensureLoaded(ctx)
	if err != nil {
		return fmt.Errorf("loading RBAC config: %w", err)
	}
	return rbac.CheckPermission(ctx, userID, perm)
}

// HasPerm reports whether CheckPermission passes. Load failures deny.
func (p *StoreRBAC) HasPerm(ctx context.Context, userID, perm string) bool {
	err := p.CheckPermission(ctx, userID, perm)
	if err != nil && ctx.Err() == nil {
		p.logger.DebugContext(ctx, "permission check failed",
			slog.String("user_id", userID),
			slog.String("permission", perm),
			slog.String("error", err.Error()),
		)
	}
	return err == nil
}

// Invalidate drops the cached config so the next check reloads it.
func (p *StoreRBAC) Invalidate() {
	p.mu.Lock()
	p.cached = nil
	p.mu.Unlock()
}

// Ready loads the role config, bootstrapping an empty store from the
// fallback config, and reports any load error.
func (p *StoreRBAC) Ready(ctx context.Context) error {
	_, err := p.ensureLoaded(ctx)
	return err
}

// ensureLoaded returns the cached RBAC, refreshing if stale or unloaded.
func (p *StoreRBAC) ensureLoaded(ctx context.Context) (*RBAC, error) {
	p.mu.RLock()
	if p.cached != nil && time.Since(p.loadedAt) < p.cacheTTL {
		rbac := p.cached
		p.mu.RUnlock()
		return rbac, nil
	}
	p.mu.RUnlock()

	p.mu.Lock()
	defer p.mu.Unlock()

	// Double-check after acquiring write lock.
	if p.cached != nil && time.Since(p.loadedAt) < p.cacheTTL {
		return p.cached, nil
	}

	cfg, err := p.store.LoadRBACConfig(ctx)
	if err != nil {
		return nil, err
	}

	if len(cfg.Roles) == 0 && len(p.fallbackCfg.Roles) > 0 {
		p.logger.Info("bootstrapping RBAC from config file",
			slog.Int("roles", len(p.fallbackCfg.Roles)),
		)
		if err := p.bootstrap(ctx); err != nil {
			return nil, fmt.Errorf("bootstrapping RBAC: %w", err)
		}
		cfg, err = p.store.LoadRBACConfig(ctx)
		if err != nil {
			return nil, err
		}
	}

	if cfg.DefaultRole == "" {
		cfg.DefaultRole = p.fallbackCfg.DefaultRole
	}

	p.cached = NewRBAC(cfg, p.logger)
	p.loadedAt = time.Now()
	return p.cached, nil
}

// bootstrap seeds the store from the fallback config.
func (p *StoreRBAC) bootstrap(ctx context.Context) error {
	for name, role := range p.fallbackCfg.Roles {
		if role.Name == "" {
			role.Name = name
		}
		if err := p.store.SaveRole(ctx, role); err != nil {
			return fmt.Errorf("saving role %q: %w", role.Name, err)
		}
	}
	for userID, roleName := range p.fallbackCfg.UserRoles {
		if err := p.store.AssignUserRole(ctx, userID, roleName); err != nil {
			return fmt.Errorf("assigning user %q to role %q: %w", userID, roleName, err)
		}
	}
	return nil
}
