package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ripkitten-co/procview/internal/telemetry"
)

func NewServeCommand(root *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the projection daemon until interrupted",
		Long: `Run one worker per subscriber (query, audit, messages). Each worker holds
a PostgreSQL advisory lock, so running several instances is safe: only one
consumes a given subscriber at a time.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, root)
		},
	}
}

func runServe(cmd *cobra.Command, root *RootOptions) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := root.Config
	shutdown, err := telemetry.Setup(ctx, cfg.OTelEndpoint, cfg.ServiceName, cfg.ServiceVersion)
	if err != nil {
		return wrapExit(ExitCommandError, "telemetry", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdown(sctx)
	}()

	a, err := openApp(ctx, cfg, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer a.Close()

	d, err := a.daemon(ctx)
	if err != nil {
		return wrapExit(ExitCommandError, "start daemon", err)
	}
	a.logger.Info("daemon started",
		"message_store", cfg.MessageStore,
		"batch_size", cfg.BatchSize,
		"poll_interval", cfg.PollInterval,
	)
	d.Run(ctx)
	a.logger.Info("daemon stopped")
	return nil
}
