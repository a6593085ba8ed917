// Package config loads engine settings from YAML with ESENGINE_* environment
// overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/underthemoss/esengine/retry"
	"gopkg.in/yaml.v3"
)

// Store backends.
const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
	StoreSQLite   = "sqlite"
)

// Default configuration values.
const (
	DefaultStore      = StoreMemory
	DefaultSQLitePath = "esengine.db"
	DefaultLogMode    = "dev"
	DefaultWorkers    = -1
)

// Config holds everything needed to wire an engine.
type Config struct {
	// Store selects the event log backend: memory, postgres or sqlite.
	Store string `yaml:"store"`

	// DSN is the PostgreSQL connection string. Required for postgres.
	DSN string `yaml:"dsn"`

	// SQLitePath is the database file for the sqlite backend.
	SQLitePath string `yaml:"sqlite_path"`

	// LogMode is "prod" for JSON logs; anything else logs for development.
	LogMode string `yaml:"log_mode"`

	Retry RetryConfig `yaml:"retry"`

	// Workers sizes the River worker pool. Negative means NumCPU, zero
	// means insert-only.
	Workers *int `yaml:"workers"`
}

// RetryConfig mirrors retry.Policy. Zero attempts and durations take the
// retry.Default values. Multiplier and Jitter are pointers so an explicit
// zero survives; unset, they default too.
type RetryConfig struct {
	MaxAttempts  int           `yaml:"max_attempts"`
	MaxElapsed   time.Duration `yaml:"max_elapsed"`
	InitialDelay time.Duration `yaml:"initial_delay"`
	MaxDelay     time.Duration `yaml:"max_delay"`
	Multiplier   *float64      `yaml:"multiplier"`
	Jitter       *float64      `yaml:"jitter"`
}

// Load reads path, applies environment overrides and defaults, and
// validates the result. An empty path skips the file.
func Load(path string) (*Config, error) {
	return load(path, os.LookupEnv)
}

func load(path string, lookup func(string) (string, bool)) (*Config, error) {
	var cfg Config
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(lookup); err != nil {
		return nil, err
	}
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup("ESENGINE_STORE"); ok {
		c.Store = v
	}
	if v, ok := lookup("ESENGINE_DSN"); ok {
		c.DSN = v
	}
	if v, ok := lookup("ESENGINE_SQLITE_PATH"); ok {
		c.SQLitePath = v
	}
	if v, ok := lookup("ESENGINE_LOG_MODE"); ok {
		c.LogMode = v
	}
	if v, ok := lookup("ESENGINE_WORKERS"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("config: ESENGINE_WORKERS: %w", err)
		}
		c.Workers = &n
	}
	if v, ok := lookup("ESENGINE_RETRY_MAX_ATTEMPTS"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("config: ESENGINE_RETRY_MAX_ATTEMPTS: %w", err)
		}
		c.Retry.MaxAttempts = n
	}

	durations := []struct {
		key string
		dst *time.Duration
	}{
		{"ESENGINE_RETRY_MAX_ELAPSED", &c.Retry.MaxElapsed},
		{"ESENGINE_RETRY_INITIAL_DELAY", &c.Retry.InitialDelay},
		{"ESENGINE_RETRY_MAX_DELAY", &c.Retry.MaxDelay},
	}
	for _, d := range durations {
		v, ok := lookup(d.key)
		if !ok {
			continue
		}
		parsed, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("config: %s: %w", d.key, err)
		}
		*d.dst = parsed
	}

	floats := []struct {
		key string
		dst **float64
	}{
		{"ESENGINE_RETRY_MULTIPLIER", &c.Retry.Multiplier},
		{"ESENGINE_RETRY_JITTER", &c.Retry.Jitter},
	}
	for _, f := range floats {
		v, ok := lookup(f.key)
		if !ok {
			continue
		}
		parsed, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("config: %s: %w", f.key, err)
		}
		*f.dst = &parsed
	}
	return nil
}

// withDefaults returns a copy of the config with default values applied.
func (c Config) withDefaults() Config {
	cfg := c
	if cfg.Store == "" {
		cfg.Store = DefaultStore
	}
	if cfg.SQLitePath == "" {
		cfg.SQLitePath = DefaultSQLitePath
	}
	if cfg.LogMode == "" {
		cfg.LogMode = DefaultLogMode
	}
	if cfg.Workers == nil {
		n := DefaultWorkers
		cfg.Workers = &n
	}

	def := retry.Default()
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry.MaxAttempts = def.MaxAttempts
	}
	if cfg.Retry.MaxElapsed == 0 {
		cfg.Retry.MaxElapsed = def.MaxElapsed
	}
	if cfg.Retry.InitialDelay == 0 {
		cfg.Retry.InitialDelay = def.InitialDelay
	}
	if cfg.Retry.MaxDelay == 0 {
		cfg.Retry.MaxDelay = def.MaxDelay
	}
	if cfg.Retry.Multiplier == nil {
		cfg.Retry.Multiplier = &def.Multiplier
	}
	if cfg.Retry.Jitter == nil {
		cfg.Retry.Jitter = &def.Jitter
	}
	return cfg
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	switch c.Store {
	case StoreMemory:
	case StorePostgres:
		if c.DSN == "" {
			return errors.New("config: dsn is required for the postgres store")
		}
	case StoreSQLite:
		if c.SQLitePath == "" {
			return errors.New("config: sqlite_path is required for the sqlite store")
		}
	default:
		return fmt.Errorf("config: unknown store %q", c.Store)
	}

	if err := c.RetryPolicy().Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

// RetryPolicy converts the retry block into a retry.Policy.
func (c *Config) RetryPolicy() *retry.Policy {
	p := &retry.Policy{
		MaxAttempts:  c.Retry.MaxAttempts,
		MaxElapsed:   c.Retry.MaxElapsed,
		InitialDelay: c.Retry.InitialDelay,
		MaxDelay:     c.Retry.MaxDelay,
	}
	if c.Retry.Multiplier != nil {
		p.Multiplier = *c.Retry.Multiplier
	}
	if c.Retry.Jitter != nil {
		p.Jitter = *c.Retry.Jitter
	}
	return p
}

// WorkerCount returns the configured worker count.
func (c *Config) WorkerCount() int {
	if c.Workers == nil {
		return DefaultWorkers
	}
	return *c.Workers
}
