package command

import (
	"context"
	"encoding/json"

	"github.com/underthemoss/esengine/aggregate"
	"github.com/underthemoss/esengine/event"
)

// Request is a command in transport form, as carried by queues or RPC.
type Request struct {
	AggregateID string
	CommandType string
	Payload     json.RawMessage
	Metadata    event.Metadata
}

// Reply is the transport form of a Result.
type Reply struct {
	Outcome     Outcome
	AggregateID string
	State       json.RawMessage
	Err         error
}

// Handler executes transport-form commands for one aggregate type.
type Handler interface {
	AggregateType() string
	Handle(ctx context.Context, req Request) Reply
}

// Decoder turns a command type and payload into a typed command.
type Decoder[C any] func(commandType string, payload json.RawMessage) (C, error)

// IDer is implemented by states that know their own aggregate ID.
type IDer interface {
	ID() string
}

type jsonHandler[C any, S any] struct {
	x      *Executor[C, S]
	decode Decoder[C]
}

// NewJSONHandler adapts an Executor to the Handler interface. Payloads that
// cannot be decoded are rejected without touching the store.
func NewJSONHandler[C any, S any](x *Executor[C, S], decode Decoder[C]) Handler {
	return &jsonHandler[C, S]{x: x, decode: decode}
}

func (h *jsonHandler[C, S]) AggregateType() string {
	return h.x.AggregateType()
}

func (h *jsonHandler[C, S]) Handle(ctx context.Context, req Request) Reply {
	cmd, err := h.decode(req.CommandType, req.Payload)
	if err != nil {
		return Reply{Outcome: OutcomeRejected, AggregateID: req.AggregateID, Err: &aggregate.ValidationError{Reason: err.Error()}}
	}

	res := h.x.Execute(ctx, req.AggregateID, cmd, req.Metadata)
	reply := Reply{Outcome: res.Outcome, AggregateID: req.AggregateID, Err: res.Err}
	if res.Outcome != OutcomeSucceeded {
		return reply
	}

	if ider, ok := any(res.State).(IDer); ok {
		reply.AggregateID = ider.ID()
	}
	state, err := json.Marshal(res.State)
	if err != nil {
		// The event is stored; only the reply body is lost.
		reply.Err = err
		return reply
	}
	reply.State = state
	return reply
}
