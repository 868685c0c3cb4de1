// Package config handles loading and validating signoffs configuration.
package config

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"go.uber.org/multierr"
	"gopkg.in/yaml.v3"

	"github.com/jkaninda/signoffs/internal/security"
	"github.com/jkaninda/signoffs/internal/storage"
)

func init() {
	// Load .env file if it exists
	_ = godotenv.Load()
}

// Config is the root configuration for signoffs.
type Config struct {
	Log           LogConfig            `json:"log" yaml:"log"`
	DataDir       string               `json:"data_dir,omitempty" yaml:"data_dir,omitempty"` // Default: ~/.signoffs/data. Override: SIGNOFFS_DATA_DIR env var.
	Storage       *storage.Config      `json:"storage,omitempty" yaml:"storage,omitempty"`   // nil = SQLite under the data dir
	Security      SecurityConfig       `json:"security" yaml:"security"`
	Observability *ObservabilityConfig `json:"observability,omitempty" yaml:"observability,omitempty"` // nil = observability disabled
	Processes     ProcessesConfig      `json:"processes" yaml:"processes"`
}

// LogConfig controls the process-wide slog handler.
type LogConfig struct {
	Level  string `json:"level" yaml:"level" validate:"omitempty,oneof=debug info warn error"`  // Default: info. Override: SIGNOFFS_LOG_LEVEL.
	Format string `json:"format" yaml:"format" validate:"omitempty,oneof=text json"`           // Default: text
}

// SlogLevel maps the configured level onto slog.Level.
func (l LogConfig) SlogLevel() slog.Level {
	switch strings.ToLower(l.Level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// SecurityConfig declares roles and who holds them.
type SecurityConfig struct {
	AuditLogPath  string                `json:"audit_log_path" yaml:"audit_log_path"` // Default: <data_dir>/audit.jsonl
	AuditToStore  bool                  `json:"audit_to_store" yaml:"audit_to_store"` // Write audit events to the database instead of a file.
	Roles         map[string]RoleConfig `json:"roles" yaml:"roles" validate:"dive"`
	UserRoles     map[string]string     `json:"user_roles" yaml:"user_roles"`
	DefaultRole   string                `json:"default_role" yaml:"default_role"`
	RoleCacheTTLS int                   `json:"role_cache_ttl_s" yaml:"role_cache_ttl_s" validate:"gte=0"` // Default: 60
}

// RoleConfig defines a role's permissions.
type RoleConfig struct {
	Permissions []string `json:"permissions" yaml:"permissions" validate:"dive,required"`
}

// RBACConfig converts the role section into the security package's form.
func (s SecurityConfig) RBACConfig() security.RBACConfig {
	roles := make(map[string]security.Role, len(s.Roles))
	for name, rc := range s.Roles {
		roles[name] = security.Role{Name: name, Permissions: rc.Permissions}
	}
	return security.RBACConfig{
		Roles:       roles,
		UserRoles:   s.UserRoles,
		DefaultRole: s.DefaultRole,
	}
}

// RoleCacheTTL returns how long store-backed role data is cached.
func (s SecurityConfig) RoleCacheTTL() time.Duration {
	if s.RoleCacheTTLS <= 0 {
		return security.DefaultCacheTTL
	}
	return time.Duration(s.RoleCacheTTLS) * time.Second
}

// ObservabilityConfig configures metrics, tracing, health checks, and anomaly detection.
// When nil, all observability features are disabled with zero overhead.
type ObservabilityConfig struct {
	Metrics *MetricsConfig `json:"metrics,omitempty" yaml:"metrics,omitempty"`
	Tracing *TracingConfig `json:"tracing,omitempty" yaml:"tracing,omitempty"`
	Anomaly *AnomalyConfig `json:"anomaly,omitempty" yaml:"anomaly,omitempty"`
}

// MetricsConfig configures Prometheus metrics collection.
type MetricsConfig struct {
	Enabled bool `json:"enabled" yaml:"enabled"`
}

// TracingConfig configures OpenTelemetry distributed tracing.
type TracingConfig struct {
	Enabled     bool    `json:"enabled" yaml:"enabled"`
	Endpoint    string  `json:"endpoint" yaml:"endpoint" validate:"required_if=Enabled true"` // OTLP endpoint, e.g. "localhost:4317"
	Protocol    string  `json:"protocol" yaml:"protocol" validate:"omitempty,oneof=grpc http"` // Default: "grpc"
	ServiceName string  `json:"service_name" yaml:"service_name"`                              // Default: "signoffs"
	SampleRate  float64 `json:"sample_rate" yaml:"sample_rate" validate:"gte=0,lte=1"`         // Default: 1.0
	Insecure    bool    `json:"insecure" yaml:"insecure"`
}

// AnomalyConfig configures threshold-based anomaly detection.
type AnomalyConfig struct {
	Enabled            bool    `json:"enabled" yaml:"enabled"`
	ErrorRateThreshold float64 `json:"error_rate_threshold" yaml:"error_rate_threshold" validate:"gte=0,lte=1"` // e.g. 0.5 = 50% errors
	WindowSeconds      int     `json:"window_seconds" yaml:"window_seconds" validate:"gte=0"`                   // Default: 300
}

// ProcessesConfig holds defaults for the bundled demo processes.
type ProcessesConfig struct {
	RevokeBlockedByNextSignoffs bool `json:"revoke_blocked_by_next_signoffs" yaml:"revoke_blocked_by_next_signoffs"`
}

// DefaultConfigPath returns the default config file path (~/.signoffs/config.yaml).
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "configs/signoffs.yaml"
	}
	return filepath.Join(home, ".signoffs", "config.yaml")
}

// Load reads a JSON or YAML config file and returns a validated Config.
// The format is detected by file extension: .yml/.yaml for YAML, everything else for JSON.
// Environment variables take precedence over file values.
func Load(path string) (*Config, error) {
	resolved, err := resolvePath(path)
	if err != nil {
		return nil, fmt.Errorf("resolving config path %s: %w", path, err)
	}

	data, err := os.ReadFile(resolved)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", resolved, err)
	}

	cfg, err := Parse(data, filepath.Ext(resolved))
	if err != nil {
		return nil, fmt.Errorf("config %s: %w", resolved, err)
	}
	return cfg, nil
}

// Parse decodes a config document, applies env overrides and validates it.
// ext selects the format the same way Load does.
func Parse(data []byte, ext string) (*Config, error) {
	var cfg Config
	switch strings.ToLower(ext) {
	case ".yml", ".yaml":
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parsing YAML: %w", err)
		}
	default:
		if err := json.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parsing JSON: %w", err)
		}
	}

	cfg.applyEnv()

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	cfg := &Config{}
	cfg.applyEnv()
	return cfg
}

func (c *Config) applyEnv() {
	if v := os.Getenv("SIGNOFFS_DATA_DIR"); v != "" {
		c.DataDir = v
	}
	if v := os.Getenv("SIGNOFFS_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv("SIGNOFFS_DB_DSN"); v != "" {
		if c.Storage == nil {
			c.Storage = &storage.Config{}
		}
		c.Storage.Driver = storage.DriverPostgres
		c.Storage.Postgres.DSN = v
	}
}

// resolvePath expands ~ to the user home directory and returns an absolute path.
func resolvePath(path string) (string, error) {
	if strings.HasPrefix(path, "~/") || path == "~" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		path = filepath.Join(home, path[1:])
	}
	return filepath.Abs(path)
}

// ResolvedDataDir returns the data directory, resolving ~ if needed.
func (c *Config) ResolvedDataDir() string {
	if c.DataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "data"
		}
		return filepath.Join(home, ".signoffs", "data")
	}
	resolved, err := resolvePath(c.DataDir)
	if err != nil {
		return c.DataDir
	}
	return resolved
}

// DatabasePath returns the SQLite database path, defaulting to the data directory.
func (c *Config) DatabasePath() string {
	if c.Storage != nil && c.Storage.SQLite.Path != "" {
		if p, err := resolvePath(c.Storage.SQLite.Path); err == nil {
			return p
		}
		return c.Storage.SQLite.Path
	}
	return filepath.Join(c.ResolvedDataDir(), "signoffs.db")
}

// AuditLogPath returns the audit log path, defaulting to the data directory.
func (c *Config) AuditLogPath() string {
	if c.Security.AuditLogPath != "" {
		if p, err := resolvePath(c.Security.AuditLogPath); err == nil {
			return p
		}
		return c.Security.AuditLogPath
	}
	return filepath.Join(c.ResolvedDataDir(), "audit.jsonl")
}

// StorageDriver returns the effective storage driver name.
func (c *Config) StorageDriver() string {
	if c.Storage != nil && c.Storage.Driver != "" {
		return c.Storage.Driver
	}
	return storage.DefaultDriver
}

func (c *Config) validate() error {
	var errs error

	v := validator.New(validator.WithRequiredStructEnabled())
	if err := v.Struct(c); err != nil {
		if verrs, ok := err.(validator.ValidationErrors); ok {
			for _, fe := range verrs {
				errs = multierr.Append(errs, fmt.Errorf("%s: failed %q", fe.Namespace(), fe.Tag()))
			}
		} else {
			errs = multierr.Append(errs, err)
		}
	}

	if c.Security.DefaultRole != "" {
		if _, ok := c.Security.Roles[c.Security.DefaultRole]; !ok {
			errs = multierr.Append(errs, fmt.Errorf("security.default_role %q not found in roles", c.Security.DefaultRole))
		}
	}
	for user, role := range c.Security.UserRoles {
		if _, ok := c.Security.Roles[role]; !ok {
			errs = multierr.Append(errs, fmt.Errorf("security.user_roles.%s: role %q not found in roles", user, role))
		}
	}
	if c.StorageDriver() == storage.DriverPostgres && c.Storage.Postgres.DSN == "" {
		errs = multierr.Append(errs, fmt.Errorf("storage.postgres.dsn is required for the postgres driver (set SIGNOFFS_DB_DSN env var)"))
	}
	return errs
}
