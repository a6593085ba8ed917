package river

import (
	"errors"
	"runtime"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/underthemoss/esengine/logger"
)

// Default configuration values.
const (
	// DefaultWorkers is the default number of worker goroutines.
	// Use -1 to auto-detect (runtime.NumCPU()), 0 for insert-only mode.
	DefaultWorkers = -1

	// DefaultJobTimeout is the default timeout for job execution.
	// It should exceed the executor's retry budget.
	DefaultJobTimeout = 30 * time.Second

	// DefaultShutdownTimeout is the default timeout for graceful shutdown.
	DefaultShutdownTimeout = 30 * time.Second

	// DefaultMaxAttempts is how many times River runs a command job before
	// discarding it.
	DefaultMaxAttempts = 5
)

// Config configures the Dispatcher.
type Config struct {
	// Pool is the PostgreSQL connection pool holding River's tables.
	// Required.
	Pool *pgxpool.Pool

	// Registry maps aggregate types to command handlers.
	// Required.
	Registry *Registry

	// Logger is the logging interface. If nil, a no-op logger is used.
	Logger logger.Logger

	// Workers is the number of worker goroutines for processing jobs.
	// If zero, runs in insert-only mode (no job processing).
	// If negative, defaults to runtime.NumCPU().
	Workers int

	// JobTimeout is the maximum duration for a single job execution.
	// If zero, defaults to DefaultJobTimeout (30s).
	JobTimeout time.Duration

	// ShutdownTimeout is the maximum duration to wait for graceful shutdown.
	// If zero, defaults to DefaultShutdownTimeout (30s).
	ShutdownTimeout time.Duration

	// MaxAttempts caps River-level retries of exhausted or failed commands.
	// If zero, defaults to DefaultMaxAttempts.
	MaxAttempts int
}

// Validate checks that the configuration is valid.
// Returns an error if any required fields are missing or invalid.
func (c *Config) Validate() error {
	if c.Pool == nil {
		return errors.New("river: Pool is required")
	}
	if c.Registry == nil {
		return errors.New("river: Registry is required")
	}
	if c.MaxAttempts < 0 {
		return errors.New("river: MaxAttempts must not be negative")
	}
	return nil
}

// withDefaults returns a copy of the config with default values applied.
// Note: Workers=0 means insert-only mode and is preserved.
func (c *Config) withDefaults() Config {
	cfg := *c

	if cfg.Workers < 0 {
		cfg.Workers = runtime.NumCPU()
	}
	if cfg.JobTimeout <= 0 {
		cfg.JobTimeout = DefaultJobTimeout
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = DefaultShutdownTimeout
	}
	if cfg.MaxAttempts == 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.Nop()
	}

	return cfg
}
