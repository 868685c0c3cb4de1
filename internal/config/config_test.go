package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/jkaninda/signoffs/internal/security"
	"github.com/jkaninda/signoffs/internal/storage"
)

const sampleYAML = `
log:
  level: debug
data_dir: /tmp/signoffs-data
security:
  default_role: staff
  role_cache_ttl_s: 30
  roles:
    staff:
      permissions: [sign_apply]
    inspector:
      permissions: [sign_electrical, sign_plumbing]
  user_roles:
    ivy: inspector
observability:
  anomaly:
    enabled: true
    error_rate_threshold: 0.5
processes:
  revoke_blocked_by_next_signoffs: true
`

// --- Loading ---

func TestLoad_YAML(t *testing.T) {
	t.Setenv("SIGNOFFS_DATA_DIR", "")
	t.Setenv("SIGNOFFS_DB_DSN", "")
	t.Setenv("SIGNOFFS_LOG_LEVEL", "")

	path := filepath.Join(t.TempDir(), "signoffs.yaml")
	if err := os.WriteFile(path, []byte(sampleYAML), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Log.SlogLevel() != slog.LevelDebug {
		t.Errorf("log level = %v, want debug", cfg.Log.SlogLevel())
	}
	if cfg.StorageDriver() != storage.DriverSQLite {
		t.Errorf("driver = %q, want sqlite", cfg.StorageDriver())
	}
	if got, want := cfg.DatabasePath(), filepath.Join("/tmp/signoffs-data", "signoffs.db"); got != want {
		t.Errorf("DatabasePath() = %q, want %q", got, want)
	}
	if got, want := cfg.AuditLogPath(), filepath.Join("/tmp/signoffs-data", "audit.jsonl"); got != want {
		t.Errorf("AuditLogPath() = %q, want %q", got, want)
	}
	if cfg.Security.RoleCacheTTL() != 30*time.Second {
		t.Errorf("RoleCacheTTL() = %v", cfg.Security.RoleCacheTTL())
	}
	if !cfg.Processes.RevokeBlockedByNextSignoffs {
		t.Error("processes.revoke_blocked_by_next_signoffs not decoded")
	}
	if cfg.Observability == nil || cfg.Observability.Anomaly == nil || !cfg.Observability.Anomaly.Enabled {
		t.Error("observability.anomaly not decoded")
	}

	want := security.RBACConfig{
		Roles: map[string]security.Role{
			"staff":     {Name: "staff", Permissions: []string{"sign_apply"}},
			"inspector": {Name: "inspector", Permissions: []string{"sign_electrical", "sign_plumbing"}},
		},
		UserRoles:   map[string]string{"ivy": "inspector"},
		DefaultRole: "staff",
	}
	if diff := cmp.Diff(want, cfg.Security.RBACConfig()); diff != "" {
		t.Errorf("RBACConfig() mismatch (-want +got):\n%s", diff)
	}
}

func TestParse_JSON(t *testing.T) {
	t.Setenv("SIGNOFFS_DB_DSN", "")
	cfg, err := Parse([]byte(`{"log":{"format":"json"},"storage":{"driver":"sqlite","sqlite":{"path":"/var/lib/signoffs/x.db"}}}`), ".json")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Log.Format != "json" {
		t.Errorf("format = %q", cfg.Log.Format)
	}
	if cfg.DatabasePath() != "/var/lib/signoffs/x.db" {
		t.Errorf("DatabasePath() = %q", cfg.DatabasePath())
	}
}

func TestParse_EnvOverrides(t *testing.T) {
	t.Setenv("SIGNOFFS_DATA_DIR", "/srv/signoffs")
	t.Setenv("SIGNOFFS_LOG_LEVEL", "warn")
	t.Setenv("SIGNOFFS_DB_DSN", "postgres://localhost/signoffs")

	cfg, err := Parse([]byte("log:\n  level: debug\n"), ".yaml")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.DataDir != "/srv/signoffs" {
		t.Errorf("DataDir = %q", cfg.DataDir)
	}
	if cfg.Log.SlogLevel() != slog.LevelWarn {
		t.Errorf("level = %v, want warn", cfg.Log.SlogLevel())
	}
	if cfg.StorageDriver() != storage.DriverPostgres || cfg.Storage.Postgres.DSN != "postgres://localhost/signoffs" {
		t.Errorf("storage = %+v", cfg.Storage)
	}
}

// --- Validation ---

func TestParse_ValidationErrorsAggregate(t *testing.T) {
	t.Setenv("SIGNOFFS_DB_DSN", "")
	t.Setenv("SIGNOFFS_LOG_LEVEL", "")
	doc := `
log:
  level: loud
storage:
  driver: postgres
security:
  default_role: ghost
observability:
  tracing:
    enabled: true
`
	_, err := Parse([]byte(doc), ".yaml")
	if err == nil {
		t.Fatal("expected validation error")
	}
	msg := err.Error()
	for _, want := range []string{
		"Config.Log.Level",
		"Config.Observability.Tracing.Endpoint",
		`security.default_role "ghost"`,
		"storage.postgres.dsn is required",
	} {
		if !strings.Contains(msg, want) {
			t.Errorf("error %q does not mention %q", msg, want)
		}
	}
}

func TestParse_UnknownUserRole(t *testing.T) {
	t.Setenv("SIGNOFFS_DB_DSN", "")
	_, err := Parse([]byte(`{"security":{"user_roles":{"bob":"manager"}}}`), ".json")
	if err == nil || !strings.Contains(err.Error(), `role "manager" not found`) {
		t.Errorf("err = %v, want unknown role", err)
	}
}

func TestParse_BadStorageDriver(t *testing.T) {
	t.Setenv("SIGNOFFS_DB_DSN", "")
	_, err := Parse([]byte(`{"storage":{"driver":"mysql"}}`), ".json")
	if err == nil || !strings.Contains(err.Error(), "Config.Storage.Driver") {
		t.Errorf("err = %v, want driver validation error", err)
	}
}

// --- Defaults ---

func TestDefault(t *testing.T) {
	t.Setenv("SIGNOFFS_DATA_DIR", "")
	t.Setenv("SIGNOFFS_DB_DSN", "")
	t.Setenv("SIGNOFFS_LOG_LEVEL", "")
	cfg := Default()
	if cfg.StorageDriver() != storage.DefaultDriver {
		t.Errorf("driver = %q", cfg.StorageDriver())
	}
	if cfg.Log.SlogLevel() != slog.LevelInfo {
		t.Errorf("level = %v", cfg.Log.SlogLevel())
	}
	if cfg.Security.RoleCacheTTL() != security.DefaultCacheTTL {
		t.Errorf("ttl = %v", cfg.Security.RoleCacheTTL())
	}
	if !strings.HasSuffix(cfg.DatabasePath(), "signoffs.db") {
		t.Errorf("DatabasePath() = %q", cfg.DatabasePath())
	}
}

func TestResolvePath_Home(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home dir")
	}
	got, err := resolvePath("~/x/config.yaml")
	if err != nil {
		t.Fatal(err)
	}
	if got != filepath.Join(home, "x", "config.yaml") {
		t.Errorf("resolvePath = %q", got)
	}
}

func TestLoad_ExampleConfig(t *testing.T) {
	t.Setenv("SIGNOFFS_DB_DSN", "")
	cfg, err := Load(filepath.Join("..", "..", "configs", "signoffs.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := cfg.Security.RBACConfig().Validate(); err != nil {
		t.Errorf("RBACConfig: %v", err)
	}
	if cfg.Security.RoleCacheTTL() != time.Minute {
		t.Errorf("RoleCacheTTL = %v, want 1m", cfg.Security.RoleCacheTTL())
	}
	if cfg.Observability == nil || cfg.Observability.Metrics == nil || !cfg.Observability.Metrics.Enabled {
		t.Error("metrics not enabled in example config")
	}
}
