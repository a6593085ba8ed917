// Package event provides the event record and storage contract for the
// event-sourced aggregate engine.
package event

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// EventType discriminates the kind of state change an event records.
// Event types are owned by an aggregate definition; the engine treats them
// as opaque tags.
type EventType string

// String returns the string representation of the event type.
func (t EventType) String() string {
	return string(t)
}

// Event is a single immutable entry in an aggregate's history.
// Events are the source of truth: aggregate state is always derived by
// replaying them in sequence order.
type Event struct {
	// ID is the unique identifier for this event record (UUID).
	ID string `json:"id"`

	// AggregateType identifies the aggregate definition that owns this event.
	AggregateType string `json:"aggregate_type"`

	// AggregateID identifies the aggregate instance.
	AggregateID string `json:"aggregate_id"`

	// Type classifies the event (e.g., "folder_created").
	Type EventType `json:"type"`

	// Sequence provides strict ordering within an aggregate (1, 2, 3, ...).
	// Sequences are gapless and monotonically increasing.
	Sequence int64 `json:"sequence"`

	// Data contains the type-specific event payload.
	Data json.RawMessage `json:"data,omitempty"`

	// Timestamp records when the event was generated.
	Timestamp time.Time `json:"timestamp"`

	// Provenance carried through from the calling context.
	TenantID      string `json:"tenant_id"`
	PrincipalID   string `json:"principal_id"`
	CorrelationID string `json:"correlation_id"`
}

// Metadata returns the provenance fields of the event.
func (e Event) Metadata() Metadata {
	return Metadata{
		TenantID:      e.TenantID,
		PrincipalID:   e.PrincipalID,
		CorrelationID: e.CorrelationID,
	}
}

// ErrMissingMetadata indicates a provenance field was not supplied.
var ErrMissingMetadata = errors.New("missing event metadata")

// Metadata is the execution context a caller supplies with every command.
// Every event carries all three fields.
type Metadata struct {
	TenantID      string `json:"tenant_id" yaml:"tenant_id"`
	PrincipalID   string `json:"principal_id" yaml:"principal_id"`
	CorrelationID string `json:"correlation_id" yaml:"correlation_id"`
}

// Validate reports ErrMissingMetadata if any field is empty.
func (m Metadata) Validate() error {
	switch {
	case m.TenantID == "":
		return fmt.Errorf("%w: tenant_id", ErrMissingMetadata)
	case m.PrincipalID == "":
		return fmt.Errorf("%w: principal_id", ErrMissingMetadata)
	case m.CorrelationID == "":
		return fmt.Errorf("%w: correlation_id", ErrMissingMetadata)
	}
	return nil
}
