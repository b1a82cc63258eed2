package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func NewRebuildCommand(root *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "rebuild <query|audit|messages>",
		Short: "Wipe a subscriber's model and replay the whole journal through it",
		Long: `Rebuild resets the named subscriber's read model and checkpoint and
replays the journal from the start. It fails when another process currently
holds the subscriber. The messages subscriber keeps its groups; replayed
events it already applied only re-emit outbound events the journal drops.`,
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"query", "audit", "messages"},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := openApp(ctx, root.Config, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer a.Close()

			d, err := a.daemon(ctx)
			if err != nil {
				return wrapExit(ExitCommandError, "build subscribers", err)
			}
			if err := d.Rebuild(ctx, args[0]); err != nil {
				return wrapExit(ExitFailure, "rebuild", err)
			}
			return newPrinter(cmd, root.Format).result(
				map[string]string{"rebuilt": args[0]},
				fmt.Sprintf("rebuilt %s", args[0]),
			)
		},
	}
}
