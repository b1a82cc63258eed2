package cli

import (
	"fmt"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/ripkitten-co/procview/deadletter"
	"github.com/ripkitten-co/procview/projections"
)

func NewDeadLettersCommand(root *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "deadletters",
		Aliases: []string{"dlq"},
		Short:   "Inspect and replay events that exhausted their retries",
	}
	cmd.AddCommand(newDeadLettersListCommand(root))
	cmd.AddCommand(newDeadLettersReplayCommand(root))
	cmd.AddCommand(newDeadLettersDeleteCommand(root))
	cmd.AddCommand(newDeadLettersPurgeCommand(root))
	return cmd
}

type entryView struct {
	ID         uint       `json:"id"`
	Subscriber string     `json:"subscriber"`
	EventID    string     `json:"eventId"`
	EventType  string     `json:"eventType"`
	Position   int64      `json:"position"`
	Error      string     `json:"error"`
	FailedAt   time.Time  `json:"failedAt"`
	ReplayedAt *time.Time `json:"replayedAt,omitempty"`
}

func viewOf(e deadletter.Entry) entryView {
	return entryView{
		ID:         e.ID,
		Subscriber: e.Subscriber,
		EventID:    e.EventID,
		EventType:  e.EventType,
		Position:   e.Position,
		Error:      e.Error,
		FailedAt:   e.FailedAt,
		ReplayedAt: e.ReplayedAt,
	}
}

func newDeadLettersListCommand(root *RootOptions) *cobra.Command {
	var opts deadletter.ListOpts
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List dead letters, oldest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := openApp(ctx, root.Config, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer a.Close()

			entries, err := a.ledger.List(ctx, opts)
			if err != nil {
				return wrapExit(ExitFailure, "list dead letters", err)
			}
			views := make([]entryView, len(entries))
			for i, e := range entries {
				views[i] = viewOf(e)
			}
			if root.Format == "json" {
				return newPrinter(cmd, root.Format).result(views, "")
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tSUBSCRIBER\tEVENT\tTYPE\tFAILED\tREPLAYED\tERROR")
			for _, v := range views {
				replayed := "-"
				if v.ReplayedAt != nil {
					replayed = v.ReplayedAt.Format(time.RFC3339)
				}
				fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\t%s\n",
					v.ID, v.Subscriber, v.EventID, v.EventType, v.FailedAt.Format(time.RFC3339), replayed, v.Error)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringVar(&opts.Subscriber, "subscriber", "", "only this subscriber")
	cmd.Flags().IntVar(&opts.Limit, "limit", 50, "maximum entries")
	cmd.Flags().IntVar(&opts.Offset, "offset", 0, "entries to skip")
	return cmd
}

func newDeadLettersReplayCommand(root *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "replay <id>",
		Short: "Run a dead letter through its subscriber again",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			a, err := openApp(ctx, root.Config, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer a.Close()

			entry, err := a.ledger.Get(ctx, id)
			if err != nil {
				return wrapExit(ExitFailure, "load dead letter", err)
			}
			subs, err := a.subscribers(ctx)
			if err != nil {
				return wrapExit(ExitCommandError, "build subscribers", err)
			}
			var sub projections.Subscriber
			for _, s := range subs {
				if s.Name() == entry.Subscriber {
					sub = s
				}
			}
			if sub == nil {
				return wrapExit(ExitFailure, fmt.Sprintf("unknown subscriber %q", entry.Subscriber), nil)
			}
			if err := a.ledger.Replay(ctx, id, sub); err != nil {
				return wrapExit(ExitFailure, "replay", err)
			}
			return newPrinter(cmd, root.Format).result(
				map[string]any{"replayed": id, "subscriber": entry.Subscriber},
				fmt.Sprintf("replayed %d through %s", id, entry.Subscriber),
			)
		},
	}
}

func newDeadLettersDeleteCommand(root *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Drop a dead letter",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			a, err := openApp(ctx, root.Config, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.ledger.Delete(ctx, id); err != nil {
				return wrapExit(ExitFailure, "delete", err)
			}
			return newPrinter(cmd, root.Format).result(map[string]uint{"deleted": id}, fmt.Sprintf("deleted %d", id))
		},
	}
}

func newDeadLettersPurgeCommand(root *RootOptions) *cobra.Command {
	var olderThan time.Duration
	cmd := &cobra.Command{
		Use:   "purge",
		Short: "Drop dead letters older than a cutoff",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if olderThan <= 0 {
				return wrapExit(ExitCommandError, "--older-than must be positive", nil)
			}
			ctx := cmd.Context()
			a, err := openApp(ctx, root.Config, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer a.Close()

			n, err := a.ledger.Purge(ctx, time.Now().Add(-olderThan))
			if err != nil {
				return wrapExit(ExitFailure, "purge", err)
			}
			return newPrinter(cmd, root.Format).result(map[string]int64{"purged": n}, fmt.Sprintf("purged %d dead letters", n))
		},
	}
	cmd.Flags().DurationVar(&olderThan, "older-than", 30*24*time.Hour, "age cutoff")
	return cmd
}

func parseID(s string) (uint, error) {
	id, err := strconv.ParseUint(s, 10, 64)
	if err != nil || id == 0 {
		return 0, wrapExit(ExitCommandError, fmt.Sprintf("invalid id %q", s), err)
	}
	return uint(id), nil
}
