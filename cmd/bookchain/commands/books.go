package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"bookchain/pkg/domain"
)

var (
	bookTitle  string
	bookAuthor string
	bookISBN   string
)

var booksCmd = &cobra.Command{
	Use:   "books",
	Short: "List books",
	Args:  cobra.NoArgs,
	RunE: withRuntime(func(ctx context.Context, cmd *cobra.Command, rt *runtime, args []string) error {
		refreshOrWarn(ctx, cmd, rt)
		printBooks(cmd.OutOrStdout(), rt.app.Books())
		return nil
	}),
}

var booksAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Add a book",
	Long: `Add a book to the ledger. Without --isbn a random identifier is
generated. The book is listed as pending until the ledger confirms it.`,
	Args: cobra.NoArgs,
	RunE: withRuntime(func(ctx context.Context, cmd *cobra.Command, rt *runtime, args []string) error {
		book, _, err := rt.app.CreateBook(ctx, domain.Book{Title: bookTitle, Author: bookAuthor, ISBN: bookISBN})
		if err != nil {
			return err
		}
		if err := rt.app.Refresh(domain.CollectionBooks).Wait(ctx); err != nil {
			warn(cmd, "refresh failed", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "submitted %s\n", book.ISBN)
		printBooks(cmd.OutOrStdout(), rt.app.Books())
		return nil
	}),
}

var booksViewCmd = &cobra.Command{
	Use:   "view ISBN",
	Short: "Show a book's reviews and remember it as the open book",
	Args:  cobra.ExactArgs(1),
	RunE: withRuntime(func(ctx context.Context, cmd *cobra.Command, rt *runtime, args []string) error {
		flight, err := rt.app.ViewBook(ctx, args[0])
		if err != nil {
			return err
		}
		if err := flight.Wait(ctx); err != nil {
			warn(cmd, "showing cached data", err)
		}
		printReviews(cmd.OutOrStdout(), rt.app.Reviews(args[0]))
		return nil
	}),
}

var booksBackCmd = &cobra.Command{
	Use:   "back",
	Short: "Close the open book and list all books",
	Args:  cobra.NoArgs,
	RunE: withRuntime(func(ctx context.Context, cmd *cobra.Command, rt *runtime, args []string) error {
		flight, err := rt.app.BackToBooks(ctx)
		if err != nil {
			return err
		}
		if err := flight.Wait(ctx); err != nil {
			warn(cmd, "showing cached data", err)
		}
		printBooks(cmd.OutOrStdout(), rt.app.Books())
		return nil
	}),
}

func init() {
	booksAddCmd.Flags().StringVar(&bookTitle, "title", "", "Book title")
	booksAddCmd.Flags().StringVar(&bookAuthor, "author", "", "Book author")
	booksAddCmd.Flags().StringVar(&bookISBN, "isbn", "", "Book identifier (generated when omitted)")
	_ = booksAddCmd.MarkFlagRequired("title")
	_ = booksAddCmd.MarkFlagRequired("author")

	booksCmd.AddCommand(booksAddCmd, booksViewCmd, booksBackCmd)
	rootCmd.AddCommand(booksCmd)
}
