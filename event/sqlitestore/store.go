// Package sqlitestore provides an embedded SQLite event store for single-node
// hosts and local tooling.
package sqlitestore

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/underthemoss/esengine/event"
	"github.com/underthemoss/esengine/query"
)

//go:embed schema.sql
var schemaSQL string

// Store implements event.EventStore with SQLite.
type Store struct {
	db *sql.DB
}

// Open creates or opens a SQLite database at the given path.
//
// The database is configured with:
//   - WAL mode for concurrent reads during writes
//   - 5-second busy timeout for lock contention
//   - a single connection, since SQLite has one writer at a time
//
// Call Init before serving traffic.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("execute %q: %w", pragma, err)
		}
	}

	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Init creates the events table and its constraints if they don't exist.
func (s *Store) Init(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Append adds a single event to the store.
// Returns a SequenceConflictError if e.Sequence != lastSequence + 1.
// Returns ErrDuplicateEvent if an event with the same ID already exists.
func (s *Store) Append(ctx context.Context, e event.Event) error {
	if e.AggregateID == "" {
		return event.ErrMissingAggregateID
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO es_events (id, aggregate_type, aggregate_id, type, sequence, data, timestamp, tenant_id, principal_id, correlation_id)
		SELECT ?1, ?2, ?3, ?4, ?5, ?6, ?7, ?8, ?9, ?10
		WHERE (SELECT COALESCE(MAX(sequence), 0) FROM es_events WHERE aggregate_id = ?3) = ?5 - 1
	`, e.ID, e.AggregateType, e.AggregateID, string(e.Type), e.Sequence, []byte(e.Data),
		e.Timestamp.UTC().Format(time.RFC3339Nano), e.TenantID, e.PrincipalID, e.CorrelationID)
	if err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) {
			switch sqliteErr.ExtendedCode {
			case sqlite3.ErrConstraintPrimaryKey:
				return event.ErrDuplicateEvent
			case sqlite3.ErrConstraintUnique:
				return &event.SequenceConflictError{AggregateID: e.AggregateID, Actual: e.Sequence}
			}
		}
		return fmt.Errorf("insert event: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	if n == 0 {
		var lastSeq int64
		if err := s.db.QueryRowContext(ctx,
			`SELECT COALESCE(MAX(sequence), 0) FROM es_events WHERE aggregate_id = ?`, e.AggregateID,
		).Scan(&lastSeq); err != nil {
			return fmt.Errorf("get last sequence: %w", err)
		}
		return &event.SequenceConflictError{
			AggregateID: e.AggregateID,
			Expected:    lastSeq + 1,
			Actual:      e.Sequence,
		}
	}

	return nil
}

// Load retrieves all events for an aggregate, ordered by sequence.
func (s *Store) Load(ctx context.Context, aggregateID string) ([]event.Event, error) {
	if aggregateID == "" {
		return []event.Event{}, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, aggregate_type, aggregate_id, type, sequence, data, timestamp, tenant_id, principal_id, correlation_id
		FROM es_events
		WHERE aggregate_id = ?
		ORDER BY sequence ASC
	`, aggregateID)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	events := []event.Event{}
	for rows.Next() {
		var e event.Event
		var eventType, ts string
		var data []byte
		if err := rows.Scan(&e.ID, &e.AggregateType, &e.AggregateID, &eventType, &e.Sequence, &data, &ts,
			&e.TenantID, &e.PrincipalID, &e.CorrelationID); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		e.Type = event.EventType(eventType)
		if len(data) > 0 {
			e.Data = data
		}
		if e.Timestamp, err = time.Parse(time.RFC3339Nano, ts); err != nil {
			return nil, fmt.Errorf("parse timestamp of %s: %w", e.ID, err)
		}
		events = append(events, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}

	return events, nil
}

// ListAggregates returns aggregate IDs whose first event matches filter.
func (s *Store) ListAggregates(ctx context.Context, filter query.Filter) ([]string, error) {
	limit := -1
	if filter.Limit > 0 {
		limit = filter.Limit
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT aggregate_id
		FROM es_events
		WHERE sequence = 1
		  AND (?1 = '' OR aggregate_type = ?1)
		  AND (?2 = '' OR tenant_id = ?2)
		ORDER BY aggregate_id ASC
		LIMIT ?3 OFFSET ?4
	`, filter.AggregateType, filter.TenantID, limit, max(filter.Offset, 0))
	if err != nil {
		return nil, fmt.Errorf("list aggregates: %w", err)
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan aggregate id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate aggregates: %w", err)
	}
	return ids, nil
}

var (
	_ event.EventStore      = (*Store)(nil)
	_ query.AggregateLister = (*Store)(nil)
)
