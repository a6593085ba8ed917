package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"github.com/underthemoss/esengine/command"
	"github.com/underthemoss/esengine/folder"
	"github.com/underthemoss/esengine/project"
	"github.com/underthemoss/esengine/query"
)

// NewInitCommand creates the init command.
func NewInitCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create the event log schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEngine(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer e.Close()

			if err := e.store.Init(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "initialized %s store\n", e.cfg.Store)
			return nil
		},
	}
}

// NewCreateCommand creates the create command.
func NewCreateCommand(opts *RootOptions) *cobra.Command {
	var id string

	cmd := &cobra.Command{
		Use:   "create <name>",
		Short: "Create a folder",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFolderCommand(cmd, opts, id, folder.CreateFolder{Name: args[0]})
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "folder id (default: generated)")
	return cmd
}

// NewRenameCommand creates the rename command.
func NewRenameCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "rename <id> <name>",
		Short: "Rename a folder",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFolderCommand(cmd, opts, args[0], folder.RenameFolder{Name: args[1]})
		},
	}
}

func runFolderCommand(cmd *cobra.Command, opts *RootOptions, id string, c folder.Command) error {
	e, err := openEngine(cmd.Context(), opts)
	if err != nil {
		return err
	}
	defer e.Close()

	res := e.folders.Execute(cmd.Context(), id, c, opts.Metadata())
	if res.Outcome != command.OutcomeSucceeded {
		return fmt.Errorf("%s %s: %w", c.Kind(), res.Outcome, res.Err)
	}
	return printState(cmd.OutOrStdout(), opts.Format, res.State)
}

// NewShowCommand creates the show command.
func NewShowCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show a folder's current state",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEngine(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer e.Close()

			events, err := e.store.Load(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if len(events) == 0 {
				return fmt.Errorf("folder %s not found", args[0])
			}
			state, err := e.folders.Load(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			summary := project.Summarize(events)

			w := cmd.OutOrStdout()
			if opts.Format == "json" {
				return writeJSON(w, struct {
					State   folder.State    `json:"state"`
					Summary project.Summary `json:"summary"`
				}{state, summary})
			}
			fmt.Fprintf(w, "%s  %q\n", state.FolderID, state.Name)
			fmt.Fprintf(w, "events: %d  created: %s  updated: %s\n",
				summary.Events, summary.CreatedAt.Format(timeLayout), summary.UpdatedAt.Format(timeLayout))
			fmt.Fprintf(w, "contributors: %s\n", strings.Join(summary.Contributors, ", "))
			return nil
		},
	}
}

// NewHistoryCommand creates the history command.
func NewHistoryCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "history <id>",
		Short: "Print a folder's event timeline",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEngine(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer e.Close()

			events, err := e.store.Load(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			timeline := project.Timeline(events)

			w := cmd.OutOrStdout()
			if opts.Format == "json" {
				return writeJSON(w, timeline)
			}
			for _, entry := range timeline {
				fmt.Fprintf(w, "%s  %s  (correlation %s)\n", entry.Timestamp.Format(timeLayout), entry.Message, entry.CorrelationID)
			}
			return nil
		},
	}
}

// NewListCommand creates the list command.
func NewListCommand(opts *RootOptions) *cobra.Command {
	var limit, offset int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List folder ids for the current tenant",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEngine(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer e.Close()

			lister, ok := e.store.(query.AggregateLister)
			if !ok {
				return errors.New("store does not support listing")
			}
			ids, err := lister.ListAggregates(cmd.Context(), query.Filter{
				AggregateType: folder.AggregateType,
				TenantID:      opts.TenantID,
				Limit:         limit,
				Offset:        offset,
			})
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			if opts.Format == "json" {
				return writeJSON(w, ids)
			}
			for _, id := range ids {
				fmt.Fprintln(w, id)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum ids to print (0 = all)")
	cmd.Flags().IntVar(&offset, "offset", 0, "ids to skip")
	return cmd
}

const timeLayout = "2006-01-02T15:04:05Z07:00"

func printState(w io.Writer, format string, s folder.State) error {
	if format == "json" {
		return writeJSON(w, s)
	}
	_, err := fmt.Fprintf(w, "%s  %q\n", s.FolderID, s.Name)
	return err
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
