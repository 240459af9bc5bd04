// Package config provides configuration loading and validation.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/westsidetechsolutions/meter/domain/entitlement"
)

// Storage drivers.
const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// DefaultSoftOverage is applied to plan rows that omit soft_overage_percent.
const DefaultSoftOverage = 0.8

// Config is the root configuration structure.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Auth    AuthConfig    `yaml:"auth"`
	Storage StorageConfig `yaml:"storage"`
	Cache   CacheConfig   `yaml:"cache"`
	Plans   []PlanConfig  `yaml:"plans"`

	// DefaultPlan is the row used for empty or unknown plan identifiers.
	// Setting it to anything but price_free means unknown plans no longer
	// get the free tier.
	DefaultPlan string `yaml:"default_plan"`

	Stripe  StripeConfig  `yaml:"stripe"`
	Logging LoggingConfig `yaml:"logging"`
	Metrics MetricsConfig `yaml:"metrics"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	RequestTimeout  time.Duration `yaml:"request_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// Addr returns host:port.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// AuthConfig configures API key issuance and verification.
type AuthConfig struct {
	KeyPrefix     string `yaml:"key_prefix"`
	HashAlgorithm string `yaml:"hash_algorithm"` // "sha256" or "sha3-256"
}

// StorageConfig configures persistence.
// Driver selects the store for keys, subscribers and usage. When Redis.URL
// is set, usage counters are kept in redis instead.
type StorageConfig struct {
	Driver   string         `yaml:"driver"` // "memory", "sqlite" or "postgres"
	DSN      string         `yaml:"dsn"`
	Postgres PostgresConfig `yaml:"postgres,omitempty"`
	Redis    RedisConfig    `yaml:"redis,omitempty"`
}

// PostgresConfig configures the postgres connection pool.
type PostgresConfig struct {
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

// RedisConfig configures the redis usage counter store.
type RedisConfig struct {
	URL          string        `yaml:"url"`
	PoolSize     int           `yaml:"pool_size"`
	MinIdleConns int           `yaml:"min_idle_conns"`
	DialTimeout  time.Duration `yaml:"dial_timeout"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// CacheConfig configures the subscriber read cache.
type CacheConfig struct {
	Disabled bool          `yaml:"disabled"`
	Size     int           `yaml:"size"`
	TTL      time.Duration `yaml:"ttl"`
}

// PlanConfig adds or replaces an entitlement catalog row.
// The free row (price_free) cannot be redefined. An omitted limit means unlimited.
type PlanConfig struct {
	ID                 string  `yaml:"id"`
	MaxItems           *int64  `yaml:"max_items"`
	MaxAPICalls        *int64  `yaml:"max_api_calls"`
	MaxStorageMB       *int64  `yaml:"max_storage_mb"`
	SoftOveragePercent float64 `yaml:"soft_overage_percent"`
}

// StripeConfig configures the Stripe subscriber sync.
type StripeConfig struct {
	SecretKey string `yaml:"secret_key,omitempty"`
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // "debug", "info", "warn", "error"
	Format string `yaml:"format"` // "json" or "console"
}

// MetricsConfig configures Prometheus metrics.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// Catalog builds the entitlement catalog: built-in rows overlaid with the
// configured plans.
func (c *Config) Catalog() *entitlement.Catalog {
	rows := make([]entitlement.Record, 0, len(c.Plans))
	for _, p := range c.Plans {
		rows = append(rows, entitlement.Record{
			PlanID:             p.ID,
			MaxItems:           p.MaxItems,
			MaxAPICalls:        p.MaxAPICalls,
			MaxStorageMB:       p.MaxStorageMB,
			SoftOveragePercent: p.SoftOveragePercent,
		})
	}
	return entitlement.NewCatalog(c.DefaultPlan, rows...)
}

// Load reads configuration from a YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	// Expand environment variables
	data = []byte(os.ExpandEnv(string(data)))

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	applyEnvOverrides(&cfg)
	setDefaults(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
}

// LoadFromEnv creates configuration entirely from environment variables.
//
// Environment variables:
//
//	METER_SERVER_HOST          - Server host (default: 0.0.0.0)
//	METER_SERVER_PORT          - Server port (default: 8080)
//	METER_AUTH_KEY_PREFIX      - API key prefix (default: wsts_live)
//	METER_AUTH_HASH_ALGORITHM  - sha256 or sha3-256 (default: sha256)
//	METER_STORAGE_DRIVER       - memory, sqlite or postgres (default: sqlite)
//	METER_STORAGE_DSN          - Database DSN (default: meter.db)
//	METER_REDIS_URL            - Keep usage counters in redis
//	METER_CACHE_DISABLED       - Disable the subscriber cache
//	METER_DEFAULT_PLAN         - Plan used for unknown plan ids (default: price_free)
//	METER_STRIPE_SECRET_KEY    - Stripe API key for subscriber sync
//	METER_LOG_LEVEL            - debug, info, warn, error (default: info)
//	METER_LOG_FORMAT           - json or console (default: json)
//	METER_METRICS_ENABLED      - Enable /metrics
func LoadFromEnv() (*Config, error) {
	var cfg Config

	applyEnvOverrides(&cfg)
	setDefaults(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
}

// LoadWithFallback loads from path when the file exists, otherwise from
// the environment.
func LoadWithFallback(path string) (*Config, error) {
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			return Load(path)
		}
	}
	return LoadFromEnv()
}

// applyEnvOverrides applies METER_* environment variables to the config.
// Environment variables always override file-based configuration.
func applyEnvOverrides(cfg *Config) {
	// Server configuration
	if v := os.Getenv("METER_SERVER_HOST"); v != "" {
		cfg.Server.Host = v
	}
	if v := os.Getenv("METER_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("METER_SERVER_READ_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Server.ReadTimeout = d
		}
	}
	if v := os.Getenv("METER_SERVER_WRITE_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Server.WriteTimeout = d
		}
	}

	// Auth configuration
	if v := os.Getenv("METER_AUTH_KEY_PREFIX"); v != "" {
		cfg.Auth.KeyPrefix = v
	}
	if v := os.Getenv("METER_AUTH_HASH_ALGORITHM"); v != "" {
		cfg.Auth.HashAlgorithm = v
	}

	// Storage configuration
	if v := os.Getenv("METER_STORAGE_DRIVER"); v != "" {
		cfg.Storage.Driver = v
	}
	if v := os.Getenv("METER_STORAGE_DSN"); v != "" {
		cfg.Storage.DSN = v
	}
	if v := os.Getenv("METER_REDIS_URL"); v != "" {
		cfg.Storage.Redis.URL = v
	}
	if v := os.Getenv("METER_REDIS_POOL_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Storage.Redis.PoolSize = n
		}
	}

	// Cache configuration
	if v := os.Getenv("METER_CACHE_DISABLED"); v != "" {
		cfg.Cache.Disabled = parseBool(v)
	}
	if v := os.Getenv("METER_CACHE_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Cache.TTL = d
		}
	}

	// Plans
	if v := os.Getenv("METER_DEFAULT_PLAN"); v != "" {
		cfg.DefaultPlan = v
	}

	// Stripe
	if v := os.Getenv("METER_STRIPE_SECRET_KEY"); v != "" {
		cfg.Stripe.SecretKey = v
	}

	// Logging configuration
	if v := os.Getenv("METER_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("METER_LOG_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}

	// Metrics configuration
	if v := os.Getenv("METER_METRICS_ENABLED"); v != "" {
		cfg.Metrics.Enabled = parseBool(v)
	}
	if v := os.Getenv("METER_METRICS_PATH"); v != "" {
		cfg.Metrics.Path = v
	}
}

// parseBool parses a boolean from common string values.
func parseBool(v string) bool {
	v = strings.ToLower(strings.TrimSpace(v))
	return v == "true" || v == "1" || v == "yes" || v == "on"
}

func setDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = 10 * time.Second
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = 30 * time.Second
	}
	if cfg.Server.RequestTimeout == 0 {
		cfg.Server.RequestTimeout = 15 * time.Second
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 30 * time.Second
	}

	if cfg.Auth.KeyPrefix == "" {
		cfg.Auth.KeyPrefix = "wsts_live"
	}
	if cfg.Auth.HashAlgorithm == "" {
		cfg.Auth.HashAlgorithm = "sha256"
	}

	if cfg.Storage.Driver == "" {
		cfg.Storage.Driver = DriverSQLite
	}
	if cfg.Storage.DSN == "" && cfg.Storage.Driver == DriverSQLite {
		cfg.Storage.DSN = "meter.db"
	}

	if cfg.Cache.Size == 0 {
		cfg.Cache.Size = 10000
	}
	if cfg.Cache.TTL == 0 {
		cfg.Cache.TTL = 30 * time.Second
	}

	for i := range cfg.Plans {
		if cfg.Plans[i].SoftOveragePercent == 0 {
			cfg.Plans[i].SoftOveragePercent = DefaultSoftOverage
		}
	}
	if cfg.DefaultPlan == "" {
		cfg.DefaultPlan = entitlement.PlanFree
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}

	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = "/metrics"
	}
}

func validate(cfg *Config) error {
	if cfg.Server.Port < 1 || cfg.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got %d", cfg.Server.Port)
	}

	switch cfg.Auth.HashAlgorithm {
	case "sha256", "sha3-256":
	default:
		return fmt.Errorf("auth.hash_algorithm must be 'sha256' or 'sha3-256', got %q", cfg.Auth.HashAlgorithm)
	}

	switch cfg.Storage.Driver {
	case DriverMemory:
	case DriverSQLite, DriverPostgres:
		if cfg.Storage.DSN == "" {
			return fmt.Errorf("storage.dsn is required for driver %q", cfg.Storage.Driver)
		}
	default:
		return fmt.Errorf("storage.driver must be one of: memory, sqlite, postgres, got %q", cfg.Storage.Driver)
	}

	if cfg.Cache.Size < 0 {
		return fmt.Errorf("cache.size must not be negative")
	}

	seen := make(map[string]bool, len(cfg.Plans))
	for i, p := range cfg.Plans {
		if p.ID == "" {
			return fmt.Errorf("plans[%d].id is required", i)
		}
		if p.ID == entitlement.PlanFree {
			return fmt.Errorf("plans[%d].id %q is built in and cannot be redefined", i, p.ID)
		}
		if seen[p.ID] {
			return fmt.Errorf("plans[%d].id %q is duplicated", i, p.ID)
		}
		seen[p.ID] = true
		for name, l := range map[string]*int64{
			"max_items":      p.MaxItems,
			"max_api_calls":  p.MaxAPICalls,
			"max_storage_mb": p.MaxStorageMB,
		} {
			if l != nil && *l < 0 {
				return fmt.Errorf("plans[%d].%s must not be negative", i, name)
			}
		}
		if p.SoftOveragePercent <= 0 || p.SoftOveragePercent > 1 {
			return fmt.Errorf("plans[%d].soft_overage_percent must be in (0, 1], got %v", i, p.SoftOveragePercent)
		}
	}
	if !seen[cfg.DefaultPlan] && !entitlement.Default().Known(cfg.DefaultPlan) {
		return fmt.Errorf("default_plan %q is not a known plan", cfg.DefaultPlan)
	}

	if _, err := zerolog.ParseLevel(cfg.Logging.Level); err != nil {
		return fmt.Errorf("logging.level: %w", err)
	}
	if cfg.Logging.Format != "json" && cfg.Logging.Format != "console" {
		return fmt.Errorf("logging.format must be 'json' or 'console', got %q", cfg.Logging.Format)
	}

	return nil
}
