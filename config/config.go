// Package config loads the scheduler configuration from a YAML file with
// environment-variable overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"center-scheduler/models"
)

// Data source and lock backend strategies. Selection is explicit
// configuration; implementations are never substituted for one another at
// runtime.
const (
	SourceMemory   = "memory"
	SourcePostgres = "postgres"

	LockLocal = "local"
	LockRedis = "redis"
)

// Config is the full scheduler configuration.
type Config struct {
	ListenAddr  string `yaml:"listen_addr"`
	MetricsAddr string `yaml:"metrics_addr"`
	APIToken    string `yaml:"api_token"`

	DataSource  string `yaml:"data_source"`
	PostgresURL string `yaml:"postgres_url"`

	LockBackend string        `yaml:"lock_backend"`
	RedisURL    string        `yaml:"redis_url"`
	LockTTL     time.Duration `yaml:"lock_ttl"`

	DefaultSlotCapacity int                       `yaml:"default_slot_capacity"`
	CenterCapacities    map[string]map[string]int `yaml:"center_capacities"` // centerId -> shift -> capacity

	AvgServiceMinutes int `yaml:"avg_service_minutes"`
}

// Defaults returns the configuration used when no file is given.
func Defaults() Config {
	return Config{
		ListenAddr:          ":8080",
		DataSource:          SourceMemory,
		LockBackend:         LockLocal,
		LockTTL:             10 * time.Second,
		DefaultSlotCapacity: 20,
		AvgServiceMinutes:   30,
	}
}

// Load reads the YAML file at path (skipped when empty), then applies
// SCHEDULER_-prefixed environment overrides.
func Load(path string) (Config, error) {
	cfg := Defaults()
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config: %w", err)
		}
	}

	env := NewLoader("SCHEDULER")
	cfg.ListenAddr = env.String("LISTEN_ADDR", cfg.ListenAddr)
	cfg.MetricsAddr = env.String("METRICS_ADDR", cfg.MetricsAddr)
	cfg.APIToken = env.String("API_TOKEN", cfg.APIToken)
	cfg.DataSource = env.String("DATA_SOURCE", cfg.DataSource)
	cfg.PostgresURL = env.String("POSTGRES_URL", cfg.PostgresURL)
	cfg.LockBackend = env.String("LOCK_BACKEND", cfg.LockBackend)
	cfg.RedisURL = env.String("REDIS_URL", cfg.RedisURL)
	cfg.LockTTL = env.Duration("LOCK_TTL", cfg.LockTTL)
	cfg.DefaultSlotCapacity = env.Int("DEFAULT_SLOT_CAPACITY", cfg.DefaultSlotCapacity)
	cfg.AvgServiceMinutes = env.Int("AVG_SERVICE_MINUTES", cfg.AvgServiceMinutes)

	return cfg, cfg.validate()
}

func (c Config) validate() error {
	switch c.DataSource {
	case SourceMemory, SourcePostgres:
	default:
		return fmt.Errorf("data_source must be %q or %q, got %q", SourceMemory, SourcePostgres, c.DataSource)
	}
	if c.DataSource == SourcePostgres && c.PostgresURL == "" {
		return fmt.Errorf("postgres_url is required for data_source %q", SourcePostgres)
	}
	switch c.LockBackend {
	case LockLocal, LockRedis:
	default:
		return fmt.Errorf("lock_backend must be %q or %q, got %q", LockLocal, LockRedis, c.LockBackend)
	}
	if c.LockBackend == LockRedis && c.RedisURL == "" {
		return fmt.Errorf("redis_url is required for lock_backend %q", LockRedis)
	}
	if c.DefaultSlotCapacity <= 0 {
		return fmt.Errorf("default_slot_capacity must be positive")
	}
	return nil
}

// CapacityFor returns the configured capacity of a center's shift, falling
// back to the default.
func (c Config) CapacityFor(centerID string, shift models.Shift) int {
	if shifts, ok := c.CenterCapacities[centerID]; ok {
		if cap, ok := shifts[string(shift)]; ok {
			return cap
		}
	}
	return c.DefaultSlotCapacity
}

// Loader provides convenient helpers for reading configuration values
// scoped by a common environment variable prefix.
type Loader struct {
	Prefix string
}

// NewLoader constructs a loader with the provided prefix. The prefix is
// automatically suffixed with an underscore when reading variables.
func NewLoader(prefix string) Loader {
	if prefix != "" && prefix[len(prefix)-1] != '_' {
		prefix += "_"
	}
	return Loader{Prefix: prefix}
}

// String returns the environment variable value or the provided default.
func (l Loader) String(key, def string) string {
	if val := os.Getenv(l.Prefix + key); val != "" {
		return val
	}
	return def
}

// Int returns an integer environment variable or the provided default.
func (l Loader) Int(key string, def int) int {
	if val := os.Getenv(l.Prefix + key); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil {
			return parsed
		}
	}
	return def
}

// Duration returns a duration environment variable (time.ParseDuration
// syntax, e.g. "30s") or the provided default.
func (l Loader) Duration(key string, def time.Duration) time.Duration {
	if val := os.Getenv(l.Prefix + key); val != "" {
		if parsed, err := time.ParseDuration(val); err == nil {
			return parsed
		}
	}
	return def
}

// Bool returns a boolean environment variable or the default.
func (l Loader) Bool(key string, def bool) bool {
	if val := os.Getenv(l.Prefix + key); val != "" {
		if parsed, err := strconv.ParseBool(val); err == nil {
			return parsed
		}
	}
	return def
}
