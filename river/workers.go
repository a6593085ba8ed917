package river

import (
	"context"
	"fmt"

	"github.com/riverqueue/river"
	"github.com/underthemoss/esengine/command"
	"github.com/underthemoss/esengine/logger"
)

// commandWorker executes command jobs through the registered handler.
//
// Rejections are cancelled outright since the same command would be rejected
// again. Exhausted and failed commands return an error so River reschedules
// the job with its own backoff, up to the job's MaxAttempts.
type commandWorker struct {
	river.WorkerDefaults[CommandJobArgs]
	dispatcher *Dispatcher
}

// Work executes the command job.
func (w *commandWorker) Work(ctx context.Context, job *river.Job[CommandJobArgs]) error {
	args := job.Args
	log := w.dispatcher.logger

	log.Debug("executing command job",
		"job_id", job.ID,
		"aggregate_type", args.AggregateType,
		"aggregate_id", args.AggregateID,
		"command_type", args.CommandType,
		"correlation_id", args.CorrelationID,
	)

	if err := args.Validate(); err != nil {
		return river.JobCancel(fmt.Errorf("invalid command job: %w", err))
	}
	h, err := w.dispatcher.registry.Get(args.AggregateType)
	if err != nil {
		return river.JobCancel(err)
	}

	reply := h.Handle(ctx, args.Request())
	return replyError(args, reply, log)
}

// replyError maps a handler reply onto River's job semantics.
func replyError(args CommandJobArgs, reply command.Reply, log logger.Logger) error {
	switch reply.Outcome {
	case command.OutcomeSucceeded:
		log.Info("command succeeded",
			"aggregate_type", args.AggregateType,
			"aggregate_id", reply.AggregateID,
			"command_type", args.CommandType,
		)
		return nil
	case command.OutcomeRejected:
		log.Info("command rejected",
			"aggregate_type", args.AggregateType,
			"aggregate_id", reply.AggregateID,
			"command_type", args.CommandType,
			"reason", reply.Err,
		)
		return river.JobCancel(reply.Err)
	default:
		log.Warn("command did not complete",
			"aggregate_type", args.AggregateType,
			"aggregate_id", args.AggregateID,
			"command_type", args.CommandType,
			"outcome", reply.Outcome.String(),
			"error", reply.Err,
		)
		return fmt.Errorf("%s %s on %s: %w", args.CommandType, reply.Outcome, args.AggregateType, reply.Err)
	}
}
