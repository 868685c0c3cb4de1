package observability

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/jkaninda/signoffs/internal/security"
)

// Readiness results.
const (
	StatusOK       = "ok"
	StatusDegraded = "degraded"
	StatusFail     = "fail"
)

const defaultCheckTimeout = 3 * time.Second

// HealthCheck is a named dependency check.
type HealthCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

// HealthStatus is the aggregate readiness of the signoffs dependencies.
type HealthStatus struct {
	Status string                 `json:"status"`
	Checks map[string]CheckResult `json:"checks,omitempty"`
}

// Ready reports whether every check passed.
func (s HealthStatus) Ready() bool { return s.Status == StatusOK }

// CheckResult is the outcome of one check.
type CheckResult struct {
	Status   string        `json:"status"`
	Message  string        `json:"message,omitempty"`
	Duration time.Duration `json:"duration_ns"`
}

// HealthChecker runs the registered checks concurrently, each bounded by
// the same timeout.
type HealthChecker struct {
	mu      sync.Mutex
	checks  []HealthCheck
	timeout time.Duration
	logger  *slog.Logger
}

// NewHealthChecker creates a HealthChecker with no checks registered.
func NewHealthChecker(logger *slog.Logger) *HealthChecker {
	return &HealthChecker{logger: logger, timeout: defaultCheckTimeout}
}

// SetTimeout changes the per-check timeout. Non-positive values are ignored.
func (h *HealthChecker) SetTimeout(d time.Duration) {
	if d > 0 {
		h.mu.Lock()
		h.timeout = d
		h.mu.Unlock()
	}
}

// AddCheck registers a named check. A later check with the same name
// replaces the earlier one.
func (h *HealthChecker) AddCheck(name string, check func(ctx context.Context) error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for i := range h.checks {
		if h.checks[i].Name == name {
			h.checks[i].Check = check
			return
		}
	}
	h.checks = append(h.checks, HealthCheck{Name: name, Check: check})
}

// Pinger is any dependency that can report reachability, such as a storage.Store.
type Pinger interface {
	Ping(ctx context.Context) error
}

// AddPinger registers p.Ping as a named check.
func (h *HealthChecker) AddPinger(name string, p Pinger) {
	h.AddCheck(name, p.Ping)
}

// ErrNoRoles is reported by RoleStoreCheck when the store holds no roles.
var ErrNoRoles = errors.New("no roles defined")

// RoleStoreCheck reports the role store ready when its RBAC config loads,
// defines at least one role and passes validation. Without roles every
// permission check is denied, so an empty store counts as not ready.
func RoleStoreCheck(store security.RoleStore) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		cfg, err := store.LoadRBACConfig(ctx)
		if err != nil {
			return err
		}
		if len(cfg.Roles) == 0 {
			return ErrNoRoles
		}
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid role assignments: %w", err)
		}
		return nil
	}
}

// CheckHealth reports liveness; it is ok whenever the process runs.
func (h *HealthChecker) CheckHealth() HealthStatus {
	return HealthStatus{Status: StatusOK}
}

// CheckReady runs every check and reports ok only when all of them pass.
func (h *HealthChecker) CheckReady(ctx context.Context) HealthStatus {
	h.mu.Lock()
	checks := append([]HealthCheck(nil), h.checks...)
	timeout := h.timeout
	h.mu.Unlock()

	if len(checks) == 0 {
		return HealthStatus{Status: StatusOK}
	}

	results := make([]CheckResult, len(checks))
	var g errgroup.Group
	for i, c := range checks {
		g.Go(func() error {
			results[i] = h.run(ctx, c, timeout)
			return nil
		})
	}
	_ = g.Wait()

	status := HealthStatus{Status: StatusOK, Checks: make(map[string]CheckResult, len(checks))}
	for i, c := range checks {
		status.Checks[c.Name] = results[i]
		if results[i].Status != StatusOK {
			status.Status = StatusDegraded
		}
	}
	return status
}

func (h *HealthChecker) run(ctx context.Context, c HealthCheck, timeout time.Duration) CheckResult {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	err := c.Check(ctx)
	res := CheckResult{Status: StatusOK, Duration: time.Since(start)}
	if err == nil {
		return res
	}
	res.Status, res.Message = StatusFail, err.Error()
	if h.logger != nil {
		h.logger.Warn("readiness check failed",
			slog.String("check", c.Name),
			slog.Duration("duration", res.Duration),
			slog.String("error", err.Error()),
		)
	}
	return res
}
