package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/underthemoss/esengine/command"
	"github.com/underthemoss/esengine/folder"
	"github.com/underthemoss/esengine/river"
	"golang.org/x/sync/errgroup"
)

func newDispatcher(e *engine, workers int) (*river.Dispatcher, error) {
	pool, err := e.requirePool()
	if err != nil {
		return nil, err
	}

	registry := river.NewRegistry()
	if err := registry.Register(command.NewJSONHandler(e.folders, folder.ParseCommand)); err != nil {
		return nil, err
	}

	return river.NewDispatcher(river.Config{
		Pool:     pool,
		Registry: registry,
		Logger:   e.log,
		Workers:  workers,
	})
}

// NewWorkerCommand creates the worker command.
func NewWorkerCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Work queued folder commands until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			e, err := openEngine(ctx, opts)
			if err != nil {
				return err
			}
			defer e.Close()

			workers := e.cfg.WorkerCount()
			if workers == 0 {
				return fmt.Errorf("workers is 0 (insert-only); nothing to run")
			}
			d, err := newDispatcher(e, workers)
			if err != nil {
				return err
			}

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				if err := d.Start(gctx); err != nil {
					return err
				}
				<-gctx.Done()
				e.log.Info("shutting down worker")
				return d.Stop(context.WithoutCancel(gctx))
			})
			return g.Wait()
		},
	}
}

// NewSubmitCommand creates the submit command.
func NewSubmitCommand(opts *RootOptions) *cobra.Command {
	var id, payload string

	cmd := &cobra.Command{
		Use:   "submit <command-type>",
		Short: "Queue a folder command for the worker",
		Long: `Queue a folder command as a River job.

Examples:
  esctl submit create_folder --payload '{"name":"docs"}'
  esctl submit rename_folder --id 1f0c... --payload '{"name":"archive"}'`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEngine(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer e.Close()

			if !json.Valid([]byte(payload)) {
				return fmt.Errorf("payload is not valid JSON")
			}

			d, err := newDispatcher(e, 0)
			if err != nil {
				return err
			}
			md := opts.Metadata()
			sub, err := d.Submit(cmd.Context(), river.CommandJobArgs{
				AggregateType: folder.AggregateType,
				AggregateID:   id,
				CommandType:   args[0],
				Payload:       json.RawMessage(payload),
				TenantID:      md.TenantID,
				PrincipalID:   md.PrincipalID,
				CorrelationID: md.CorrelationID,
			})
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			if opts.Format == "json" {
				return writeJSON(w, map[string]any{
					"job_id":         sub.JobID,
					"folder_id":      sub.AggregateID,
					"correlation_id": md.CorrelationID,
				})
			}
			fmt.Fprintf(w, "queued job %d for folder %s (correlation %s)\n", sub.JobID, sub.AggregateID, md.CorrelationID)
			return nil
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "folder id (empty creates a new folder)")
	cmd.Flags().StringVar(&payload, "payload", "{}", "command payload as JSON")
	return cmd
}

// NewMigrateCommand creates the migrate command.
func NewMigrateCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply River's queue schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEngine(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer e.Close()

			pool, err := e.requirePool()
			if err != nil {
				return err
			}
			if err := river.Migrate(cmd.Context(), pool, e.log); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "river schema is up to date")
			return nil
		},
	}
}
