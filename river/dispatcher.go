package river

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/riverdriver/riverpgxv5"
	"github.com/riverqueue/river/rivermigrate"
	"github.com/riverqueue/river/rivertype"
	"github.com/underthemoss/esengine/logger"
)

// ErrDispatcherAlreadyStarted indicates Start was called twice.
var ErrDispatcherAlreadyStarted = errors.New("dispatcher already started")

// Dispatcher enqueues command jobs and, unless insert-only, works them.
type Dispatcher struct {
	pool     *pgxpool.Pool
	registry *Registry
	logger   logger.Logger
	config   Config

	client  *river.Client[pgx.Tx]
	started bool
	mu      sync.Mutex
}

// NewDispatcher creates a Dispatcher with the given configuration.
// Jobs can be submitted before Start; they are worked once a started
// dispatcher with Workers > 0 picks them up.
func NewDispatcher(config Config) (*Dispatcher, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	cfg := config.withDefaults()
	d := &Dispatcher{
		pool:     cfg.Pool,
		registry: cfg.Registry,
		logger:   cfg.Logger,
		config:   cfg,
	}

	workers := river.NewWorkers()
	river.AddWorker(workers, &commandWorker{dispatcher: d})

	riverConfig := &river.Config{
		Workers:      workers,
		JobTimeout:   cfg.JobTimeout,
		MaxAttempts:  cfg.MaxAttempts,
		ErrorHandler: &errorHandler{logger: cfg.Logger},
	}
	if cfg.Workers > 0 {
		riverConfig.Queues = map[string]river.QueueConfig{
			river.QueueDefault: {MaxWorkers: cfg.Workers},
		}
	}

	client, err := river.NewClient(riverpgxv5.New(cfg.Pool), riverConfig)
	if err != nil {
		return nil, fmt.Errorf("create river client: %w", err)
	}
	d.client = client

	return d, nil
}

// Start begins working jobs. It is a no-op in insert-only mode.
func (d *Dispatcher) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.started {
		return ErrDispatcherAlreadyStarted
	}
	if d.config.Workers == 0 {
		d.logger.Info("dispatcher in insert-only mode")
		return nil
	}

	if err := d.client.Start(ctx); err != nil {
		return fmt.Errorf("start river client: %w", err)
	}

	d.started = true
	d.logger.Info("dispatcher started",
		"workers", d.config.Workers,
		"aggregate_types", d.registry.Types(),
	)

	return nil
}

// Stop gracefully shuts down the dispatcher.
// Waits for in-flight jobs up to ShutdownTimeout.
func (d *Dispatcher) Stop(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.started {
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, d.config.ShutdownTimeout)
	defer cancel()

	if err := d.client.Stop(shutdownCtx); err != nil {
		d.logger.Warn("river client stop error", "error", err)
	}

	d.started = false
	d.logger.Info("dispatcher stopped")

	return nil
}

// Submit enqueues a command job. A job for a new aggregate is assigned its
// aggregate ID here.
func (d *Dispatcher) Submit(ctx context.Context, args CommandJobArgs) (Submission, error) {
	if err := d.check(args); err != nil {
		return Submission{}, err
	}

	args = args.withAggregateID(newAggregateID)
	res, err := d.client.Insert(ctx, args, nil)
	if err != nil {
		return Submission{}, fmt.Errorf("insert command job: %w", err)
	}
	d.logSubmitted(args, res)
	return Submission{JobID: res.Job.ID, AggregateID: args.AggregateID}, nil
}

// SubmitTx enqueues a command job within an existing transaction, so the
// job exists only if the caller's transaction commits.
func (d *Dispatcher) SubmitTx(ctx context.Context, tx pgx.Tx, args CommandJobArgs) (Submission, error) {
	if err := d.check(args); err != nil {
		return Submission{}, err
	}

	args = args.withAggregateID(newAggregateID)
	res, err := d.client.InsertTx(ctx, tx, args, nil)
	if err != nil {
		return Submission{}, fmt.Errorf("insert command job: %w", err)
	}
	d.logSubmitted(args, res)
	return Submission{JobID: res.Job.ID, AggregateID: args.AggregateID}, nil
}

// check rejects jobs no worker could ever run.
func (d *Dispatcher) check(args CommandJobArgs) error {
	if err := args.Validate(); err != nil {
		return fmt.Errorf("invalid command job: %w", err)
	}
	if _, err := d.registry.Get(args.AggregateType); err != nil {
		return err
	}
	return nil
}

func (d *Dispatcher) logSubmitted(args CommandJobArgs, res *rivertype.JobInsertResult) {
	d.logger.Debug("command submitted",
		"job_id", res.Job.ID,
		"aggregate_type", args.AggregateType,
		"aggregate_id", args.AggregateID,
		"command_type", args.CommandType,
		"correlation_id", args.CorrelationID,
	)
}

// Migrate brings River's tables up to date.
func Migrate(ctx context.Context, pool *pgxpool.Pool, log logger.Logger) error {
	if log == nil {
		log = logger.Nop()
	}

	migrator, err := rivermigrate.New(riverpgxv5.New(pool), nil)
	if err != nil {
		return fmt.Errorf("create river migrator: %w", err)
	}

	res, err := migrator.Migrate(ctx, rivermigrate.DirectionUp, nil)
	if err != nil {
		return fmt.Errorf("run river migrations: %w", err)
	}
	for _, v := range res.Versions {
		log.Info("river migration applied", "version", v.Version)
	}
	return nil
}

// errorHandler handles River job errors.
type errorHandler struct {
	logger logger.Logger
}

func (h *errorHandler) HandleError(ctx context.Context, job *rivertype.JobRow, err error) *river.ErrorHandlerResult {
	h.logger.Error("job error",
		"job_kind", job.Kind,
		"job_id", job.ID,
		"attempt", job.Attempt,
		"error", err,
	)
	return nil
}

func (h *errorHandler) HandlePanic(ctx context.Context, job *rivertype.JobRow, panicVal any, trace string) *river.ErrorHandlerResult {
	h.logger.Error("job panic", "job_kind", job.Kind, "job_id", job.ID, "panic", panicVal, "trace", trace)
	return nil
}
