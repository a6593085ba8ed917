// Package command executes commands against event-sourced aggregates under
// optimistic concurrency.
//
// Every attempt re-reads the aggregate's full history, replays it, validates
// the command and tries to append the resulting event at the next sequence.
// A concurrent writer that took that sequence first causes a conflict, and
// the whole cycle runs again on the fresh history. No state is cached between
// calls; the store's (aggregate_id, sequence) uniqueness is the only
// coordination between writers.
package command

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/underthemoss/esengine/aggregate"
	"github.com/underthemoss/esengine/event"
	"github.com/underthemoss/esengine/logger"
	"github.com/underthemoss/esengine/retry"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/underthemoss/esengine/command"

// ErrInvalidCandidate indicates a definition returned an event that does not
// match the context it was given.
var ErrInvalidCandidate = errors.New("candidate event does not match context")

// Executor runs commands for one aggregate type.
// It is safe for concurrent use.
type Executor[C any, S any] struct {
	store    event.EventStore
	def      aggregate.Definition[C, S]
	policy   *retry.Policy
	logger   logger.Logger
	now      func() time.Time
	newID    func() string
	failFast func(error) bool

	tracer    trace.Tracer
	attempts  metric.Int64Counter
	conflicts metric.Int64Counter
	outcomes  metric.Int64Counter
}

// New creates an Executor for def backed by store.
func New[C any, S any](store event.EventStore, def aggregate.Definition[C, S], opts ...Option) (*Executor[C, S], error) {
	if store == nil {
		return nil, errors.New("command: store is required")
	}
	if def == nil {
		return nil, errors.New("command: definition is required")
	}

	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if err := o.policy.Validate(); err != nil {
		return nil, fmt.Errorf("command: %w", err)
	}

	x := &Executor[C, S]{
		store:    store,
		def:      def,
		policy:   o.policy,
		logger:   o.logger,
		now:      o.now,
		newID:    o.newID,
		failFast: o.failFast,
		tracer:   o.tracerProvider.Tracer(instrumentationName),
	}

	meter := o.meterProvider.Meter(instrumentationName)
	var err error
	if x.attempts, err = meter.Int64Counter("esengine.command.attempts",
		metric.WithDescription("Read-fold-append cycles started")); err != nil {
		return nil, fmt.Errorf("command: create attempts counter: %w", err)
	}
	if x.conflicts, err = meter.Int64Counter("esengine.command.conflicts",
		metric.WithDescription("Appends that lost a sequence race")); err != nil {
		return nil, fmt.Errorf("command: create conflicts counter: %w", err)
	}
	if x.outcomes, err = meter.Int64Counter("esengine.command.outcomes",
		metric.WithDescription("Completed Execute calls by outcome")); err != nil {
		return nil, fmt.Errorf("command: create outcomes counter: %w", err)
	}

	return x, nil
}

// AggregateType returns the type of aggregate this executor serves.
func (x *Executor[C, S]) AggregateType() string {
	return x.def.AggregateType()
}

// Load replays the current state of an aggregate without executing anything.
func (x *Executor[C, S]) Load(ctx context.Context, aggregateID string) (S, error) {
	events, err := x.store.Load(ctx, aggregateID)
	if err != nil {
		var zero S
		return zero, fmt.Errorf("load events: %w", err)
	}
	return aggregate.Replay(x.def, events)
}

// Execute applies cmd to the aggregate identified by aggregateID. An empty
// aggregateID addresses a new aggregate; its ID is generated.
//
// Conflicts and storage errors are retried under the executor's policy and
// never surface individually; only the final outcome is returned.
func (x *Executor[C, S]) Execute(ctx context.Context, aggregateID string, cmd C, md event.Metadata) Result[S] {
	aggType := x.def.AggregateType()
	ctx, span := x.tracer.Start(ctx, "command.execute", trace.WithAttributes(
		attribute.String("aggregate.type", aggType),
		attribute.String("aggregate.id", aggregateID),
		attribute.String("correlation.id", md.CorrelationID),
	))
	defer span.End()

	res := x.execute(ctx, aggregateID, cmd, md)

	span.SetAttributes(
		attribute.String("command.outcome", res.Outcome.String()),
		attribute.Int("command.attempts", res.Attempts),
	)
	if res.Err != nil {
		span.RecordError(res.Err)
		if res.Outcome != OutcomeRejected {
			span.SetStatus(codes.Error, res.Err.Error())
		}
	}
	x.outcomes.Add(ctx, 1, metric.WithAttributes(
		attribute.String("aggregate.type", aggType),
		attribute.String("outcome", res.Outcome.String()),
	))

	return res
}

func (x *Executor[C, S]) execute(ctx context.Context, aggregateID string, cmd C, md event.Metadata) Result[S] {
	if err := md.Validate(); err != nil {
		return Result[S]{Outcome: OutcomeRejected, Err: err}
	}

	// A new aggregate keeps one ID across attempts, so an append that
	// committed before failing is seen by the retry.
	if aggregateID == "" {
		aggregateID = x.newID()
	}

	aggType := x.def.AggregateType()
	attrs := metric.WithAttributes(attribute.String("aggregate.type", aggType))
	start := time.Now()

	for attempt := 1; ; attempt++ {
		x.attempts.Add(ctx, 1, attrs)

		state, err := x.attempt(ctx, aggregateID, cmd, md)
		if err == nil {
			return Result[S]{Outcome: OutcomeSucceeded, State: state, Attempts: attempt}
		}

		var se *stepError
		if !errors.As(err, &se) {
			// Validation errors come back unwrapped.
			return Result[S]{Outcome: OutcomeRejected, Err: err, Attempts: attempt}
		}
		if !x.retryable(se) {
			x.logger.Error("command failed",
				"aggregate_type", aggType,
				"aggregate_id", aggregateID,
				"step", se.step,
				"error", se.err,
			)
			return Result[S]{Outcome: OutcomeFailed, Err: se, Attempts: attempt}
		}

		if event.IsConflict(se.err) {
			x.conflicts.Add(ctx, 1, attrs)
			x.logger.Debug("append conflict, retrying",
				"aggregate_type", aggType,
				"aggregate_id", aggregateID,
				"attempt", attempt,
			)
		} else {
			x.logger.Warn("attempt failed, retrying",
				"aggregate_type", aggType,
				"aggregate_id", aggregateID,
				"attempt", attempt,
				"step", se.step,
				"error", se.err,
			)
		}

		elapsed := time.Since(start)
		if !x.policy.ShouldRetry(attempt, elapsed) {
			return x.exhausted(aggregateID, attempt, elapsed, se)
		}
		if err := retry.Sleep(ctx, x.policy.Backoff(attempt, elapsed)); err != nil {
			return x.exhausted(aggregateID, attempt, time.Since(start), errors.Join(err, se))
		}
	}
}

func (x *Executor[C, S]) exhausted(aggregateID string, attempts int, elapsed time.Duration, last error) Result[S] {
	err := &ExhaustedError{Attempts: attempts, Elapsed: elapsed, Last: last}
	x.logger.Error("retry budget exhausted",
		"aggregate_type", x.def.AggregateType(),
		"aggregate_id", aggregateID,
		"attempts", attempts,
		"elapsed", elapsed,
		"error", last,
	)
	return Result[S]{Outcome: OutcomeExhausted, Err: err, Attempts: attempts}
}

// retryable reports whether a failed step warrants a fresh cycle.
func (x *Executor[C, S]) retryable(se *stepError) bool {
	switch se.step {
	case stepLoad, stepAppend:
		if event.IsConflict(se.err) {
			return true
		}
		return x.failFast == nil || !x.failFast(se.err)
	default:
		return false
	}
}

// attempt runs one read-fold-validate-append cycle.
func (x *Executor[C, S]) attempt(ctx context.Context, aggregateID string, cmd C, md event.Metadata) (S, error) {
	var zero S

	events, err := x.store.Load(ctx, aggregateID)
	if err != nil {
		return zero, &stepError{step: stepLoad, err: err}
	}

	state, err := aggregate.Replay(x.def, events)
	if err != nil {
		return zero, &stepError{step: stepReplay, err: err}
	}

	c := aggregate.Context{
		AggregateType: x.def.AggregateType(),
		AggregateID:   aggregateID,
		Sequence:      int64(len(events)) + 1,
		Timestamp:     x.now(),
		EventID:       x.newID(),
		Metadata:      md,
	}

	candidate, err := x.def.ProcessCommand(cmd, state, c)
	if err != nil {
		if errors.Is(err, aggregate.ErrValidation) {
			return zero, err
		}
		return zero, &stepError{step: stepProcess, err: err}
	}
	if candidate.AggregateID != c.AggregateID || candidate.Sequence != c.Sequence || candidate.AggregateType != c.AggregateType {
		return zero, &stepError{step: stepProcess, err: fmt.Errorf("%w: got %s/%s#%d, want %s/%s#%d", ErrInvalidCandidate,
			candidate.AggregateType, candidate.AggregateID, candidate.Sequence, c.AggregateType, c.AggregateID, c.Sequence)}
	}

	if err := x.store.Append(ctx, candidate); err != nil {
		return zero, &stepError{step: stepAppend, err: err}
	}

	next, err := x.def.ProcessEvent(state, candidate)
	if err != nil {
		return zero, &stepError{step: stepApply, err: err}
	}
	return next, nil
}

// Steps of an attempt, used to classify failures.
const (
	stepLoad    = "load"
	stepReplay  = "replay"
	stepProcess = "process"
	stepAppend  = "append"
	stepApply   = "apply"
)

type stepError struct {
	step string
	err  error
}

func (e *stepError) Error() string {
	return fmt.Sprintf("%s: %v", e.step, e.err)
}

func (e *stepError) Unwrap() error {
	return e.err
}

// Option configures an Executor.
type Option func(*options)

type options struct {
	policy         *retry.Policy
	logger         logger.Logger
	now            func() time.Time
	newID          func() string
	failFast       func(error) bool
	meterProvider  metric.MeterProvider
	tracerProvider trace.TracerProvider
}

func defaultOptions() options {
	return options{
		policy:         retry.Default(),
		logger:         logger.Nop(),
		now:            func() time.Time { return time.Now().UTC() },
		newID:          func() string { return uuid.NewString() },
		meterProvider:  otel.GetMeterProvider(),
		tracerProvider: otel.GetTracerProvider(),
	}
}

// WithPolicy sets the retry policy. Defaults to retry.Default().
func WithPolicy(p *retry.Policy) Option {
	return func(o *options) {
		if p != nil {
			o.policy = p
		}
	}
}

// WithLogger sets the logger. Defaults to a no-op logger.
func WithLogger(l logger.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithClock sets the source of event timestamps.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

// WithIDGenerator sets the source of event and aggregate IDs.
func WithIDGenerator(newID func() string) Option {
	return func(o *options) {
		if newID != nil {
			o.newID = newID
		}
	}
}

// WithFailFast makes storage errors matching fn terminal (OutcomeFailed)
// instead of retried. Conflicts are always retried.
func WithFailFast(fn func(error) bool) Option {
	return func(o *options) {
		o.failFast = fn
	}
}

// WithMeterProvider sets the meter provider. Defaults to the otel global.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(o *options) {
		if mp != nil {
			o.meterProvider = mp
		}
	}
}

// WithTracerProvider sets the tracer provider. Defaults to the otel global.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(o *options) {
		if tp != nil {
			o.tracerProvider = tp
		}
	}
}
