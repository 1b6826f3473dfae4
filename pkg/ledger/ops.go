package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"bookchain/pkg/domain"
)

// Names of the queries and operations exposed by the dapp.
const (
	QueryAllBooks       = "get_all_books"
	QueryReviewsForBook = "get_all_reviews_for_book"
	QueryAllPosts       = "get_all_posts"
	QueryUserName       = "get_user_name"

	OpCreateBook   = "create_book"
	OpCreateReview = "create_book_review"
	OpMakePost     = "make_post"
	OpCreateUser   = "create_user"
)

// Books wraps the book queries and operations.
type Books struct{ Client Client }

func (b Books) All(ctx context.Context) ([]domain.Book, error) {
	var out []domain.Book
	if err := queryInto(ctx, b.Client, QueryAllBooks, map[string]any{}, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (b Books) Create(ctx context.Context, book domain.Book) (Ack, error) {
	return b.Client.Submit(ctx, OpCreateBook, CreateBookArgs(book))
}

// CreateBookArgs orders arguments as create_book expects them.
func CreateBookArgs(book domain.Book) []any {
	return []any{book.ISBN, book.Title, book.Author}
}

// Reviews wraps the review queries and operations.
type Reviews struct{ Client Client }

func (r Reviews) ForBook(ctx context.Context, isbn string) ([]domain.Review, error) {
	var out []domain.Review
	if err := queryInto(ctx, r.Client, QueryReviewsForBook, map[string]any{"isbn": isbn}, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (r Reviews) Create(ctx context.Context, isbn string, review domain.Review) (Ack, error) {
	return r.Client.Submit(ctx, OpCreateReview, CreateReviewArgs(isbn, review))
}

// CreateReviewArgs orders arguments as create_book_review expects them.
func CreateReviewArgs(isbn string, review domain.Review) []any {
	return []any{isbn, review.ReviewerName, review.Review, review.Rating}
}

// Posts wraps the post queries and operations.
type Posts struct{ Client Client }

// All lists posts. A positive pointer is sent as the paging cursor.
func (p Posts) All(ctx context.Context, pointer int64) ([]domain.Post, error) {
	args := map[string]any{}
	if pointer > 0 {
		args["pointer"] = pointer
	}
	var out struct {
		Posts []domain.Post `json:"posts"`
	}
	if err := queryInto(ctx, p.Client, QueryAllPosts, args, &out); err != nil {
		return nil, err
	}
	return out.Posts, nil
}

// Make submits a post. ctx must carry the author's signer.
func (p Posts) Make(ctx context.Context, content string) (Ack, error) {
	return p.Client.Submit(ctx, OpMakePost, []any{content})
}

// Users wraps the user registry.
type Users struct{ Client Client }

// Name resolves a user's display name, returning ErrNotFound when the ledger
// has no user for id.
func (u Users) Name(ctx context.Context, userID string) (string, error) {
	var name *string
	if err := queryInto(ctx, u.Client, QueryUserName, map[string]any{"user_id": userID}, &name); err != nil {
		return "", err
	}
	if name == nil || *name == "" {
		return "", ErrNotFound
	}
	return *name, nil
}

func (u Users) Create(ctx context.Context, name, pubkey string) (Ack, error) {
	return u.Client.Submit(ctx, OpCreateUser, []any{name, pubkey})
}

func queryInto(ctx context.Context, c Client, name string, args map[string]any, out any) error {
	raw, err := c.Query(ctx, name, args)
	if err != nil {
		return err
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		raw = json.RawMessage("null")
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return &QueryError{Name: name, Kind: KindDecode, Err: fmt.Errorf("decode %s: %w", name, err)}
	}
	return nil
}
