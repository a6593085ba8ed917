package event

import (
	"context"
	"errors"
	"fmt"
)

// Common errors returned by EventStore implementations.
var (
	// ErrSequenceConflict indicates the event sequence number doesn't match
	// the expected next sequence (lastSequence + 1), usually because another
	// writer appended first.
	ErrSequenceConflict = errors.New("sequence conflict")

	// ErrDuplicateEvent indicates an event with the same ID already exists.
	ErrDuplicateEvent = errors.New("duplicate event ID")

	// ErrMissingAggregateID indicates an append without an aggregate ID.
	ErrMissingAggregateID = errors.New("missing aggregate ID")
)

// SequenceConflictError provides details about a sequence conflict.
type SequenceConflictError struct {
	AggregateID string
	Expected    int64
	Actual      int64
}

func (e *SequenceConflictError) Error() string {
	if e.Expected == 0 {
		return fmt.Sprintf("sequence conflict for aggregate %s: sequence %d already taken", e.AggregateID, e.Actual)
	}
	return fmt.Sprintf("sequence conflict for aggregate %s: expected %d, got %d", e.AggregateID, e.Expected, e.Actual)
}

func (e *SequenceConflictError) Unwrap() error {
	return ErrSequenceConflict
}

// IsConflict reports whether err means a concurrent writer won the race
// for the appended position. Conflicts are expected and recoverable.
func IsConflict(err error) bool {
	return errors.Is(err, ErrSequenceConflict) || errors.Is(err, ErrDuplicateEvent)
}

// EventStore defines the interface for event persistence.
// Implementations must be safe for concurrent use.
type EventStore interface {
	// Init prepares the underlying storage, establishing the uniqueness of
	// (aggregate_id, sequence). It is idempotent.
	Init(ctx context.Context) error

	// Load retrieves all events for an aggregate, ordered by sequence.
	// Returns an empty slice if the ID is empty or the aggregate has no events.
	Load(ctx context.Context, aggregateID string) ([]Event, error)

	// Append adds a single event to the store atomically.
	// Returns a SequenceConflictError if event.Sequence != lastSequence + 1.
	// Returns ErrDuplicateEvent if an event with the same ID already exists.
	Append(ctx context.Context, event Event) error
}
