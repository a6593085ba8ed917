package main

import (
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/underthemoss/esengine/event"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	ConfigPath    string
	Format        string // "json" | "text"
	TenantID      string
	PrincipalID   string
	CorrelationID string
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// Metadata returns the request metadata carried by every command.
func (o *RootOptions) Metadata() event.Metadata {
	return event.Metadata{
		TenantID:      o.TenantID,
		PrincipalID:   o.PrincipalID,
		CorrelationID: o.CorrelationID,
	}
}

// NewRootCommand creates the root command for esctl.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:           "esctl",
		Short:         "Event-sourced folder engine",
		Long:          "Run folder commands against an event log and host the River command worker.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			if opts.CorrelationID == "" {
				opts.CorrelationID = uuid.NewString()
			}
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&opts.ConfigPath, "config", os.Getenv("ESENGINE_CONFIG"), "path to YAML config")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.TenantID, "tenant", "default", "tenant id")
	cmd.PersistentFlags().StringVar(&opts.PrincipalID, "principal", defaultPrincipal(), "acting principal id")
	cmd.PersistentFlags().StringVar(&opts.CorrelationID, "correlation", "", "correlation id (default: new UUID)")

	cmd.AddCommand(NewInitCommand(opts))
	cmd.AddCommand(NewCreateCommand(opts))
	cmd.AddCommand(NewRenameCommand(opts))
	cmd.AddCommand(NewShowCommand(opts))
	cmd.AddCommand(NewHistoryCommand(opts))
	cmd.AddCommand(NewListCommand(opts))
	cmd.AddCommand(NewSubmitCommand(opts))
	cmd.AddCommand(NewWorkerCommand(opts))
	cmd.AddCommand(NewMigrateCommand(opts))

	return cmd
}

func defaultPrincipal() string {
	if u := os.Getenv("USER"); u != "" {
		return u
	}
	return "esctl"
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}
