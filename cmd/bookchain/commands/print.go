package commands

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"bookchain/internal/util"
	"bookchain/pkg/domain"
	"bookchain/pkg/optimistic"
)

var (
	yellow = color.New(color.FgYellow)
	red    = color.New(color.FgRed, color.Bold)
)

type runFunc func(ctx context.Context, cmd *cobra.Command, rt *runtime, args []string) error

func withRuntime(fn runFunc) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		ctx := commandContext(cmd)
		rt, err := openRuntime(ctx)
		if err != nil {
			return err
		}
		defer rt.Close()
		return fn(ctx, cmd, rt, args)
	}
}

// commandContext tags every ledger call made by one invocation with the same
// request id.
func commandContext(cmd *cobra.Command) context.Context {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	return util.WithRequestID(ctx, util.NewID())
}

// refreshOrWarn refreshes everything visible. Failures leave the previous
// data on screen, so they are reported but not fatal.
func refreshOrWarn(ctx context.Context, cmd *cobra.Command, rt *runtime) {
	if err := rt.app.RefreshAll(ctx); err != nil {
		warn(cmd, "showing cached data", err)
	}
}

func warn(cmd *cobra.Command, msg string, err error) {
	yellow.Fprintf(cmd.ErrOrStderr(), "warning: %s: %v\n", msg, err)
}

func itemState[T any](item optimistic.Item[T]) string {
	if !item.Pending() {
		return ""
	}
	if item.Err != nil {
		return red.Sprintf("%s: %v", item.Status, item.Err)
	}
	return yellow.Sprint(item.Status)
}

func printBooks(w io.Writer, items []optimistic.Item[domain.Book]) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ISBN\tTITLE\tAUTHOR\tSTATE")
	for _, item := range items {
		b := item.Value
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", b.ISBN, b.Title, b.Author, itemState(item))
	}
	tw.Flush()
}

func printReviews(w io.Writer, items []optimistic.Item[domain.Review]) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "RATING\tREVIEWER\tREVIEW\tSTATE")
	for _, item := range items {
		r := item.Value
		fmt.Fprintf(tw, "%d/5\t%s\t%s\t%s\n", r.Rating, r.ReviewerName, r.Review, itemState(item))
	}
	tw.Flush()
}

func printPosts(w io.Writer, items []optimistic.Item[domain.Post]) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tAUTHOR\tCONTENT\tSTATE")
	for _, item := range items {
		p := item.Value
		id := "-"
		if p.ID > 0 {
			id = strconv.FormatInt(p.ID, 10)
		}
		author := p.User.Name
		if author == "" {
			author = p.User.ID
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", id, author, p.Content, itemState(item))
	}
	tw.Flush()
}
