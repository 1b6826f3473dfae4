package commands

import (
	"context"
	"strings"

	"github.com/spf13/cobra"

	"bookchain/pkg/domain"
)

var postsCmd = &cobra.Command{
	Use:   "posts",
	Short: "List posts",
	Args:  cobra.NoArgs,
	RunE: withRuntime(func(ctx context.Context, cmd *cobra.Command, rt *runtime, args []string) error {
		refreshOrWarn(ctx, cmd, rt)
		printPosts(cmd.OutOrStdout(), rt.app.Posts())
		return nil
	}),
}

var postsMakeCmd = &cobra.Command{
	Use:   "make CONTENT...",
	Short: "Publish a post (requires login)",
	Args:  cobra.MinimumNArgs(1),
	RunE: withRuntime(func(ctx context.Context, cmd *cobra.Command, rt *runtime, args []string) error {
		if _, err := rt.app.EnsureUser(ctx); err != nil {
			return err
		}
		if _, err := rt.app.MakePost(ctx, strings.Join(args, " ")); err != nil {
			return err
		}
		if err := rt.app.Refresh(domain.CollectionPosts).Wait(ctx); err != nil {
			warn(cmd, "refresh failed", err)
		}
		printPosts(cmd.OutOrStdout(), rt.app.Posts())
		return nil
	}),
}

func init() {
	postsCmd.AddCommand(postsMakeCmd)
	rootCmd.AddCommand(postsCmd)
}
