// Package aggregate defines the contract between the command executor and
// the business rules of one aggregate type.
//
// A Definition is four pure functions with no I/O: a stable type tag, the
// initial state, a fold over events, and a command validator that produces a
// candidate event. Everything that varies between attempts (sequence number,
// time, IDs, provenance) arrives through Context, so the same inputs always
// yield the same outputs.
package aggregate

import (
	"errors"
	"fmt"
	"time"

	"github.com/underthemoss/esengine/event"
)

// Definition encapsulates the rules of one aggregate type.
// C is the aggregate's command union and S its state.
type Definition[C any, S any] interface {
	// AggregateType returns the tag recorded on every event of this aggregate.
	// It must never change once events have been stored.
	AggregateType() string

	// InitialState returns the state of an aggregate with no events.
	InitialState() S

	// ProcessEvent folds e onto state. It must handle every event type the
	// aggregate produces and return an UnknownEventError for anything else.
	ProcessEvent(state S, e event.Event) (S, error)

	// ProcessCommand validates cmd against state and returns the candidate
	// event, built with c.NewEvent. Business-rule violations are reported
	// as *ValidationError.
	ProcessCommand(cmd C, state S, c Context) (event.Event, error)
}

// Context carries everything ProcessCommand may stamp onto a new event.
type Context struct {
	AggregateType string
	AggregateID   string
	Sequence      int64
	Timestamp     time.Time
	EventID       string
	Metadata      event.Metadata
}

// NewEvent builds a candidate event of type t with the given payload.
func (c Context) NewEvent(t event.EventType, payload any) (event.Event, error) {
	data, err := event.MarshalData(payload)
	if err != nil {
		return event.Event{}, err
	}
	return event.Event{
		ID:            c.EventID,
		AggregateType: c.AggregateType,
		AggregateID:   c.AggregateID,
		Type:          t,
		Sequence:      c.Sequence,
		Data:          data,
		Timestamp:     c.Timestamp,
		TenantID:      c.Metadata.TenantID,
		PrincipalID:   c.Metadata.PrincipalID,
		CorrelationID: c.Metadata.CorrelationID,
	}, nil
}

var (
	// ErrValidation matches every *ValidationError.
	ErrValidation = errors.New("validation failed")

	// ErrOutOfOrder indicates a history that is not exactly 1..N.
	ErrOutOfOrder = errors.New("events out of order")

	// ErrUnknownEvent matches every *UnknownEventError.
	ErrUnknownEvent = errors.New("unknown event type")
)

// ValidationError is a business-rule rejection of a command.
// It is never retried.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return e.Reason
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// Rejectf returns a ValidationError with a formatted reason.
func Rejectf(format string, args ...any) error {
	return &ValidationError{Reason: fmt.Sprintf(format, args...)}
}

// UnknownEventError reports an event type a definition cannot fold.
type UnknownEventError struct {
	AggregateType string
	Type          event.EventType
}

func (e *UnknownEventError) Error() string {
	return fmt.Sprintf("%s: unknown event type %q", e.AggregateType, e.Type)
}

func (e *UnknownEventError) Unwrap() error {
	return ErrUnknownEvent
}

// Replay left-folds events onto the definition's initial state.
// Events must be ordered with sequences exactly 1..N.
func Replay[C any, S any](def Definition[C, S], events []event.Event) (S, error) {
	state := def.InitialState()
	for i, e := range events {
		if e.Sequence != int64(i+1) {
			var zero S
			return zero, fmt.Errorf("%w: position %d has sequence %d", ErrOutOfOrder, i+1, e.Sequence)
		}
		next, err := def.ProcessEvent(state, e)
		if err != nil {
			var zero S
			return zero, fmt.Errorf("replay sequence %d: %w", e.Sequence, err)
		}
		state = next
	}
	return state, nil
}
