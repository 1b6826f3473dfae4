package commands

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"bookchain/pkg/ledger"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Refresh on every new block until interrupted",
	Long: `Follow the node's block stream (watchURL in the config) and refresh the
book list, the posts and the open book's reviews whenever a block is added.`,
	Args: cobra.NoArgs,
	RunE: withRuntime(func(ctx context.Context, cmd *cobra.Command, rt *runtime, args []string) error {
		if rt.cfg.WatchURL == "" {
			return errors.New("watchURL is not configured")
		}
		out := cmd.OutOrStdout()
		w := ledger.NewWatcher(rt.cfg.WatchURL, func(ctx context.Context, height int64) {
			rt.app.OnBlock(ctx, height)
			fmt.Fprintf(out, "block %d: %d books, %d posts\n", height, len(rt.app.Books()), len(rt.app.Posts()))
		}, rt.logger)
		err := w.Start(ctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	}),
}

func init() {
	rootCmd.AddCommand(watchCmd)
}
