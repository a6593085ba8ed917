package river

import (
	"encoding/json"
	"errors"

	"github.com/google/uuid"
	"github.com/riverqueue/river"
	"github.com/underthemoss/esengine/command"
	"github.com/underthemoss/esengine/event"
)

// JobKindCommand is the kind for command execution jobs.
const JobKindCommand = "esengine.command"

// ErrMissingCommandType is returned when a job names no command.
var ErrMissingCommandType = errors.New("command type is required")

// CommandJobArgs carries one command to an aggregate.
// An empty AggregateID addresses a new aggregate; the dispatcher fills it in
// before insert so every retry of the job targets the same aggregate.
type CommandJobArgs struct {
	AggregateType string          `json:"aggregate_type"`
	AggregateID   string          `json:"aggregate_id,omitempty"`
	CommandType   string          `json:"command_type"`
	Payload       json.RawMessage `json:"payload,omitempty"`

	TenantID      string `json:"tenant_id"`
	PrincipalID   string `json:"principal_id"`
	CorrelationID string `json:"correlation_id"`
}

// Kind implements river.JobArgs.
func (CommandJobArgs) Kind() string {
	return JobKindCommand
}

// InsertOpts implements river.JobArgsWithInsertOpts.
// MaxAttempts is left to the client so Config.MaxAttempts applies.
func (CommandJobArgs) InsertOpts() river.InsertOpts {
	return river.InsertOpts{
		Queue: river.QueueDefault,
	}
}

// Metadata returns the job's request metadata.
func (a CommandJobArgs) Metadata() event.Metadata {
	return event.Metadata{
		TenantID:      a.TenantID,
		PrincipalID:   a.PrincipalID,
		CorrelationID: a.CorrelationID,
	}
}

// Validate checks the fields every command job needs.
func (a CommandJobArgs) Validate() error {
	if a.AggregateType == "" {
		return errors.New("aggregate type is required")
	}
	if a.CommandType == "" {
		return ErrMissingCommandType
	}
	return a.Metadata().Validate()
}

// Request converts the job into a command request.
func (a CommandJobArgs) Request() command.Request {
	return command.Request{
		AggregateID: a.AggregateID,
		CommandType: a.CommandType,
		Payload:     a.Payload,
		Metadata:    a.Metadata(),
	}
}

// withAggregateID returns the args with a generated AggregateID when none is
// set.
func (a CommandJobArgs) withAggregateID(newID func() string) CommandJobArgs {
	if a.AggregateID == "" {
		a.AggregateID = newID()
	}
	return a
}

// Submission identifies an enqueued command job.
type Submission struct {
	JobID       int64
	AggregateID string
}

func newAggregateID() string {
	return uuid.NewString()
}
