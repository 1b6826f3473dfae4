package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"bookchain/pkg/domain"
)

var (
	reviewRating   int
	reviewMessage  string
	reviewReviewer string
)

var reviewsCmd = &cobra.Command{
	Use:   "reviews [ISBN]",
	Short: "List reviews of a book (defaults to the open book)",
	Args:  cobra.MaximumNArgs(1),
	RunE: withRuntime(func(ctx context.Context, cmd *cobra.Command, rt *runtime, args []string) error {
		isbn, err := targetBook(rt, args)
		if err != nil {
			return err
		}
		if err := rt.app.Refresh(domain.ReviewsCollection(isbn)).Wait(ctx); err != nil {
			warn(cmd, "showing cached data", err)
		}
		printReviews(cmd.OutOrStdout(), rt.app.Reviews(isbn))
		return nil
	}),
}

var reviewsAddCmd = &cobra.Command{
	Use:   "add [ISBN]",
	Short: "Review a book (defaults to the open book)",
	Long: `Submit a review with a rating from 1 to 5. Without --reviewer the review
is signed with a prefix of the session's public key.`,
	Args: cobra.MaximumNArgs(1),
	RunE: withRuntime(func(ctx context.Context, cmd *cobra.Command, rt *runtime, args []string) error {
		isbn, err := targetBook(rt, args)
		if err != nil {
			return err
		}
		review := domain.Review{Rating: reviewRating, Review: reviewMessage, ReviewerName: reviewReviewer}
		if _, err := rt.app.AddReview(ctx, isbn, review); err != nil {
			return err
		}
		if err := rt.app.Refresh(domain.ReviewsCollection(isbn)).Wait(ctx); err != nil {
			warn(cmd, "refresh failed", err)
		}
		printReviews(cmd.OutOrStdout(), rt.app.Reviews(isbn))
		return nil
	}),
}

func targetBook(rt *runtime, args []string) (string, error) {
	if len(args) == 1 {
		return args[0], nil
	}
	if isbn := rt.app.Viewing(); isbn != "" {
		return isbn, nil
	}
	return "", fmt.Errorf("no book given and none open (see \"bookchain books view\")")
}

func init() {
	reviewsAddCmd.Flags().IntVarP(&reviewRating, "rating", "r", 0, "Rating from 1 to 5")
	reviewsAddCmd.Flags().StringVarP(&reviewMessage, "message", "m", "", "Review text")
	reviewsAddCmd.Flags().StringVar(&reviewReviewer, "reviewer", "", "Reviewer name")
	_ = reviewsAddCmd.MarkFlagRequired("rating")
	_ = reviewsAddCmd.MarkFlagRequired("message")

	reviewsCmd.AddCommand(reviewsAddCmd)
	rootCmd.AddCommand(reviewsCmd)
}
