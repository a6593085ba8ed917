// Package pgstore provides a PostgreSQL-based event store implementation.
package pgstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/underthemoss/esengine/event"
	"github.com/underthemoss/esengine/query"
)

// Constraint names used to tell conflicts apart from duplicate IDs.
const (
	constraintSequence = "es_events_aggregate_sequence"
	constraintPrimary  = "es_events_pkey"
)

// Schema creates the events table. The UNIQUE (aggregate_id, sequence)
// constraint is the ordering primitive the engine relies on.
const Schema = `
CREATE TABLE IF NOT EXISTS es_events (
	id             TEXT NOT NULL,
	aggregate_type TEXT NOT NULL,
	aggregate_id   TEXT NOT NULL,
	type           TEXT NOT NULL,
	sequence       BIGINT NOT NULL CHECK (sequence > 0),
	data           JSONB,
	timestamp      TIMESTAMPTZ NOT NULL,
	tenant_id      TEXT NOT NULL,
	principal_id   TEXT NOT NULL,
	correlation_id TEXT NOT NULL,
	CONSTRAINT es_events_pkey PRIMARY KEY (id),
	CONSTRAINT es_events_aggregate_sequence UNIQUE (aggregate_id, sequence)
);
CREATE INDEX IF NOT EXISTS idx_es_events_type ON es_events (aggregate_type, aggregate_id);
CREATE INDEX IF NOT EXISTS idx_es_events_correlation ON es_events (correlation_id);
`

// Store implements event.EventStore with PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

// New creates a new PostgreSQL event store. The pool is owned by the caller.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Init creates the events table and its constraints if they don't exist.
func (s *Store) Init(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// querier is an interface satisfied by both pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Append adds a single event to the store.
func (s *Store) Append(ctx context.Context, e event.Event) error {
	return s.appendEvent(ctx, s.pool, e)
}

// AppendTx adds an event within the caller's transaction. The conflict
// semantics are the same as Append, but the event only becomes visible
// when the caller commits.
func (s *Store) AppendTx(ctx context.Context, tx pgx.Tx, e event.Event) error {
	return s.appendEvent(ctx, tx, e)
}

// appendEvent inserts e only if it directly follows the current last
// sequence. Two writers that both pass the predicate are serialized by the
// unique constraint; the loser sees a unique violation.
func (s *Store) appendEvent(ctx context.Context, q querier, e event.Event) error {
	if e.AggregateID == "" {
		return event.ErrMissingAggregateID
	}

	tag, err := q.Exec(ctx, `
		INSERT INTO es_events (id, aggregate_type, aggregate_id, type, sequence, data, timestamp, tenant_id, principal_id, correlation_id)
		SELECT $1::text, $2::text, $3::text, $4::text, $5::bigint, $6::jsonb, $7::timestamptz, $8::text, $9::text, $10::text
		WHERE (SELECT COALESCE(MAX(sequence), 0) FROM es_events WHERE aggregate_id = $3::text) = $5::bigint - 1
	`, e.ID, e.AggregateType, e.AggregateID, string(e.Type), e.Sequence, nullableJSON(e.Data), e.Timestamp,
		e.TenantID, e.PrincipalID, e.CorrelationID)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			if pgErr.ConstraintName == constraintPrimary {
				return event.ErrDuplicateEvent
			}
			return &event.SequenceConflictError{AggregateID: e.AggregateID, Actual: e.Sequence}
		}
		return fmt.Errorf("insert event: %w", err)
	}

	if tag.RowsAffected() == 0 {
		lastSeq, err := lastSequence(ctx, q, e.AggregateID)
		if err != nil {
			return err
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
	return loadEvents(ctx, s.pool, aggregateID)
}

// LoadTx loads events within the given transaction.
func (s *Store) LoadTx(ctx context.Context, tx pgx.Tx, aggregateID string) ([]event.Event, error) {
	return loadEvents(ctx, tx, aggregateID)
}

const selectColumns = `id, aggregate_type, aggregate_id, type, sequence, data, timestamp, tenant_id, principal_id, correlation_id`

func loadEvents(ctx context.Context, q querier, aggregateID string) ([]event.Event, error) {
	if aggregateID == "" {
		return []event.Event{}, nil
	}

	rows, err := q.Query(ctx, `
		SELECT `+selectColumns+`
		FROM es_events
		WHERE aggregate_id = $1
		ORDER BY sequence ASC
	`, aggregateID)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	return scanEvents(rows)
}

// scanEvents drains rows into events and closes them.
func scanEvents(rows pgx.Rows) ([]event.Event, error) {
	defer rows.Close()

	events := []event.Event{}
	for rows.Next() {
		var e event.Event
		var eventType string
		var data []byte
		if err := rows.Scan(&e.ID, &e.AggregateType, &e.AggregateID, &eventType, &e.Sequence, &data, &e.Timestamp,
			&e.TenantID, &e.PrincipalID, &e.CorrelationID); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		e.Type = event.EventType(eventType)
		if len(data) > 0 {
			e.Data = data
		}
		events = append(events, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}

	return events, nil
}

func lastSequence(ctx context.Context, q querier, aggregateID string) (int64, error) {
	var lastSeq int64
	err := q.QueryRow(ctx, `
		SELECT COALESCE(MAX(sequence), 0)
		FROM es_events
		WHERE aggregate_id = $1
	`, aggregateID).Scan(&lastSeq)
	if err != nil {
		return 0, fmt.Errorf("get last sequence: %w", err)
	}
	return lastSeq, nil
}

// ListAggregates returns aggregate IDs whose first event matches filter.
func (s *Store) ListAggregates(ctx context.Context, filter query.Filter) ([]string, error) {
	sql := `
		SELECT aggregate_id
		FROM es_events
		WHERE sequence = 1
		  AND ($1::text = '' OR aggregate_type = $1::text)
		  AND ($2::text = '' OR tenant_id = $2::text)
		ORDER BY aggregate_id ASC
		OFFSET $3
	`
	args := []any{filter.AggregateType, filter.TenantID, max(filter.Offset, 0)}
	if filter.Limit > 0 {
		sql += ` LIMIT $4`
		args = append(args, filter.Limit)
	}

	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("list aggregates: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("list aggregates: %w", err)
	}
	if ids == nil {
		ids = []string{}
	}
	return ids, nil
}

// EventsByCorrelation returns every event recorded under correlationID.
func (s *Store) EventsByCorrelation(ctx context.Context, correlationID string) ([]event.Event, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+selectColumns+`
		FROM es_events
		WHERE correlation_id = $1
		ORDER BY timestamp ASC, aggregate_id ASC, sequence ASC
	`, correlationID)
	if err != nil {
		return nil, fmt.Errorf("query events by correlation: %w", err)
	}
	return scanEvents(rows)
}

// nullableJSON maps an empty payload to SQL NULL.
func nullableJSON(data []byte) any {
	if len(data) == 0 {
		return nil
	}
	return string(data)
}

var (
	_ event.EventStore         = (*Store)(nil)
	_ query.AggregateLister    = (*Store)(nil)
	_ query.CorrelationQuerier = (*Store)(nil)
)
