package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Start a session with the first configured wallet account",
	Long: `Log in with the first account listed under "accounts" in the config and
register it on the ledger if it has no user name yet. The session is kept
until it expires or "bookchain logout" is run.`,
	Args: cobra.NoArgs,
	RunE: withRuntime(func(ctx context.Context, cmd *cobra.Command, rt *runtime, args []string) error {
		sess, err := rt.app.Connect(ctx)
		if err != nil {
			return fmt.Errorf("login: %w", err)
		}
		name, err := rt.app.EnsureUser(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "logged in as %s (%s) until %s\n",
			name, sess.PublicKeyHex, sess.ExpiresAt.Local().Format(time.RFC3339))
		return nil
	}),
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "End the current session",
	Args:  cobra.NoArgs,
	RunE: withRuntime(func(ctx context.Context, cmd *cobra.Command, rt *runtime, args []string) error {
		if err := rt.app.Disconnect(ctx); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "logged out")
		return nil
	}),
}

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the current session",
	Args:  cobra.NoArgs,
	RunE: withRuntime(func(ctx context.Context, cmd *cobra.Command, rt *runtime, args []string) error {
		sess, ok := rt.app.Session()
		if !ok {
			fmt.Fprintln(cmd.OutOrStdout(), "not logged in")
			return nil
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s (expires %s, flags %v)\n",
			sess.PublicKeyHex, sess.ExpiresAt.Local().Format(time.RFC3339), sess.GrantedFlags)
		return nil
	}),
}

func init() {
	rootCmd.AddCommand(loginCmd, logoutCmd, whoamiCmd)
}
