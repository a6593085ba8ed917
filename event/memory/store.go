// Package memory provides an in-memory implementation of event.EventStore.
// This implementation is suitable for testing and development.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/underthemoss/esengine/event"
	"github.com/underthemoss/esengine/query"
)

// Store is a thread-safe in-memory implementation of event.EventStore.
// The zero value is ready for use.
type Store struct {
	mu     sync.RWMutex
	events map[string][]event.Event // aggregateID -> events (sorted by sequence)
	ids    map[string]struct{}      // set of all event IDs for duplicate detection
}

// New creates a new in-memory event store.
func New() *Store {
	return &Store{
		events: make(map[string][]event.Event),
		ids:    make(map[string]struct{}),
	}
}

// Init is a no-op; the in-memory layout enforces sequence uniqueness itself.
func (s *Store) Init(ctx context.Context) error {
	return nil
}

// Append adds a single event to the store.
// Returns a SequenceConflictError if e.Sequence != lastSequence + 1.
// Returns ErrDuplicateEvent if an event with the same ID already exists.
func (s *Store) Append(ctx context.Context, e event.Event) error {
	if e.AggregateID == "" {
		return event.ErrMissingAggregateID
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Initialize maps if nil (supports zero value)
	if s.events == nil {
		s.events = make(map[string][]event.Event)
	}
	if s.ids == nil {
		s.ids = make(map[string]struct{})
	}

	if _, exists := s.ids[e.ID]; exists {
		return event.ErrDuplicateEvent
	}

	aggEvents := s.events[e.AggregateID]
	expectedSeq := int64(len(aggEvents)) + 1
	if e.Sequence != expectedSeq {
		return &event.SequenceConflictError{
			AggregateID: e.AggregateID,
			Expected:    expectedSeq,
			Actual:      e.Sequence,
		}
	}

	s.events[e.AggregateID] = append(aggEvents, e)
	s.ids[e.ID] = struct{}{}

	return nil
}

// Load retrieves all events for an aggregate, ordered by sequence.
// Returns an empty slice if the aggregate doesn't exist or has no events.
func (s *Store) Load(ctx context.Context, aggregateID string) ([]event.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	aggEvents := s.events[aggregateID]
	if len(aggEvents) == 0 {
		return []event.Event{}, nil
	}

	// Return a copy to prevent external modification
	result := make([]event.Event, len(aggEvents))
	copy(result, aggEvents)
	return result, nil
}

// ListAggregates returns the IDs of aggregates whose first event matches filter.
func (s *Store) ListAggregates(ctx context.Context, filter query.Filter) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.events))
	for id, aggEvents := range s.events {
		if len(aggEvents) > 0 && filter.Matches(aggEvents[0]) {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return filter.Page(ids), nil
}

// EventsByCorrelation returns every event recorded under correlationID.
func (s *Store) EventsByCorrelation(ctx context.Context, correlationID string) ([]event.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := []event.Event{}
	for _, aggEvents := range s.events {
		for _, e := range aggEvents {
			if e.CorrelationID == correlationID {
				result = append(result, e)
			}
		}
	}
	sort.Slice(result, func(i, j int) bool {
		a, b := result[i], result[j]
		if !a.Timestamp.Equal(b.Timestamp) {
			return a.Timestamp.Before(b.Timestamp)
		}
		if a.AggregateID != b.AggregateID {
			return a.AggregateID < b.AggregateID
		}
		return a.Sequence < b.Sequence
	})
	return result, nil
}

// Len returns the number of events stored for an aggregate.
func (s *Store) Len(aggregateID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.events[aggregateID])
}

var (
	_ event.EventStore         = (*Store)(nil)
	_ query.AggregateLister    = (*Store)(nil)
	_ query.CorrelationQuerier = (*Store)(nil)
)
