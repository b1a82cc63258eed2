// Package cli implements the procview command line: the projection daemon,
// journal ingestion, rebuilds and dead-letter administration.
package cli

import (
	"fmt"
	"slices"

	"github.com/spf13/cobra"

	"github.com/ripkitten-co/procview/internal/config"
)

// RootOptions holds global flags and the configuration every command shares.
type RootOptions struct {
	Format string // "json" | "text"
	Config config.Config
}

var validFormats = []string{"text", "json"}

// NewRootCommand creates the procview command tree.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "procview",
		Short: "Project BPMN process events into query and audit models",
		Long: `procview consumes process-engine events from a PostgreSQL journal and
keeps the query read model, the audit trail and message correlation up to
date. Settings come from PROCVIEW_* environment variables.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(validFormats, opts.Format) {
				return wrapExit(ExitCommandError, fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, validFormats), nil)
			}
			cfg, err := config.Load()
			if err != nil {
				return wrapExit(ExitCommandError, "load config", err)
			}
			opts.Config = cfg
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")

	cmd.AddCommand(NewServeCommand(opts))
	cmd.AddCommand(NewIngestCommand(opts))
	cmd.AddCommand(NewRebuildCommand(opts))
	cmd.AddCommand(NewDeadLettersCommand(opts))

	return cmd
}
