package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/underthemoss/esengine/command"
	"github.com/underthemoss/esengine/config"
	"github.com/underthemoss/esengine/event"
	"github.com/underthemoss/esengine/event/memory"
	"github.com/underthemoss/esengine/event/pgstore"
	"github.com/underthemoss/esengine/event/sqlitestore"
	"github.com/underthemoss/esengine/folder"
	"github.com/underthemoss/esengine/logger"
)

var errPostgresRequired = errors.New("this command needs the postgres store")

// engine is the wiring shared by every command.
type engine struct {
	cfg     *config.Config
	log     *logger.Zap
	store   event.EventStore
	pool    *pgxpool.Pool
	folders *command.Executor[folder.Command, folder.State]
	closers []func()
}

func openEngine(ctx context.Context, opts *RootOptions) (*engine, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, err
	}

	log, err := logger.New(cfg.LogMode)
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}

	e := &engine{cfg: cfg, log: log}
	e.closers = append(e.closers, log.Sync)

	switch cfg.Store {
	case config.StoreMemory:
		e.store = memory.New()
	case config.StoreSQLite:
		s, err := sqlitestore.Open(cfg.SQLitePath)
		if err != nil {
			e.Close()
			return nil, err
		}
		e.store = s
		e.closers = append(e.closers, func() { s.Close() })
	case config.StorePostgres:
		pool, err := pgxpool.New(ctx, cfg.DSN)
		if err != nil {
			e.Close()
			return nil, fmt.Errorf("connect to postgres: %w", err)
		}
		e.pool = pool
		e.store = pgstore.New(pool)
		e.closers = append(e.closers, pool.Close)
	}

	// Memory and SQLite logs are created on first use.
	if cfg.Store != config.StorePostgres {
		if err := e.store.Init(ctx); err != nil {
			e.Close()
			return nil, err
		}
	}

	e.folders, err = command.New(e.store, folder.Definition(),
		command.WithPolicy(cfg.RetryPolicy()),
		command.WithLogger(log.With("aggregate_type", folder.AggregateType)),
	)
	if err != nil {
		e.Close()
		return nil, err
	}

	log.Debug("engine opened", "store", cfg.Store)
	return e, nil
}

// requirePool returns the PostgreSQL pool or errPostgresRequired.
func (e *engine) requirePool() (*pgxpool.Pool, error) {
	if e.pool == nil {
		return nil, fmt.Errorf("%w (store is %q)", errPostgresRequired, e.cfg.Store)
	}
	return e.pool, nil
}

// Close releases resources in reverse order of acquisition.
func (e *engine) Close() {
	for i := len(e.closers) - 1; i >= 0; i-- {
		e.closers[i]()
	}
}
