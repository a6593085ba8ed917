// Package query defines optional interfaces for extending EventStore
// implementations with lookups that the engine itself never needs.
//
// Each interface has a single method, allowing stores to implement only what
// they support. Callers type-assert to check for a capability:
//
//	if lister, ok := store.(query.AggregateLister); ok {
//	    ids, err := lister.ListAggregates(ctx, query.Filter{AggregateType: "folder"})
//	    // ...
//	}
//
// None of these interfaces build state across aggregates; they only locate
// aggregate histories, which are then replayed one at a time.
package query

import (
	"context"

	"github.com/underthemoss/esengine/event"
)

// Filter specifies criteria for locating aggregates.
// All fields are optional; zero values mean "no filter".
type Filter struct {
	// AggregateType filters by aggregate type (e.g., "folder").
	AggregateType string

	// TenantID filters by the tenant recorded on the aggregate's events.
	TenantID string

	// Limit caps the number of results (0 means no limit).
	Limit int

	// Offset skips the first N results (for pagination).
	Offset int
}

// Matches reports whether e satisfies the type and tenant criteria.
func (f Filter) Matches(e event.Event) bool {
	if f.AggregateType != "" && e.AggregateType != f.AggregateType {
		return false
	}
	if f.TenantID != "" && e.TenantID != f.TenantID {
		return false
	}
	return true
}

// Page applies Offset and Limit to a sorted list of IDs.
func (f Filter) Page(ids []string) []string {
	if f.Offset > 0 {
		if f.Offset >= len(ids) {
			return []string{}
		}
		ids = ids[f.Offset:]
	}
	if f.Limit > 0 && len(ids) > f.Limit {
		ids = ids[:f.Limit]
	}
	return ids
}

// AggregateLister enables discovering aggregate IDs without knowing them
// up front. IDs are returned in ascending order.
type AggregateLister interface {
	ListAggregates(ctx context.Context, filter Filter) ([]string, error)
}

// CorrelationQuerier enables tracing every event produced by one logical
// request, across aggregates.
//
// Example:
//
//	events, err := querier.EventsByCorrelation(ctx, "req-42")
type CorrelationQuerier interface {
	// EventsByCorrelation returns matching events ordered by timestamp, then
	// aggregate ID and sequence. Returns an empty slice if nothing matches.
	EventsByCorrelation(ctx context.Context, correlationID string) ([]event.Event, error)
}
