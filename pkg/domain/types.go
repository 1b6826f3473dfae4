package domain

import (
	"slices"
	"strconv"
	"strings"
	"time"
)

// Session is a time-boxed wallet grant bound to a public key.
type Session struct {
	PublicKeyHex string    `json:"publicKeyHex"`
	ExpiresAt    time.Time `json:"expiresAt"`
	GrantedFlags []string  `json:"grantedFlags,omitempty"`
}

// Expired reports whether the session is no longer valid at now.
func (s Session) Expired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}

// HasFlag reports whether flag was granted at login.
func (s Session) HasFlag(flag string) bool {
	return slices.Contains(s.GrantedFlags, flag)
}

type MutationStatus string

const (
	MutationInflight MutationStatus = "inflight"
	MutationAcked    MutationStatus = "acked"
	MutationFailed   MutationStatus = "failed"
)

type Book struct {
	Title  string `json:"title"`
	Author string `json:"author"`
	ISBN   string `json:"isbn"`
}

type Review struct {
	Rating       int    `json:"rating"`
	Review       string `json:"review"`
	ReviewerName string `json:"reviewer_name"`
}

type PostUser struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type Post struct {
	ID      int64    `json:"id"`
	Content string   `json:"content"`
	User    PostUser `json:"user"`
}

// BookKey is the natural key of a book.
func BookKey(b Book) string {
	return b.ISBN
}

// ReviewKey is the composite key of a review within one book's collection.
func ReviewKey(r Review) string {
	return compositeKey(r.ReviewerName, strconv.Itoa(r.Rating), r.Review)
}

// PostKey is the composite key of a post. Post ids are assigned by the ledger,
// so a locally created post can only be matched by author and content.
func PostKey(p Post) string {
	return compositeKey(strings.ToLower(p.User.ID), p.Content)
}

func compositeKey(parts ...string) string {
	return strings.Join(parts, "|")
}

const (
	CollectionBooks = "books"
	CollectionPosts = "posts"

	reviewsPrefix = "reviews:"
)

// ReviewsCollection names the review collection of one book.
func ReviewsCollection(isbn string) string {
	return reviewsPrefix + isbn
}

// ReviewsISBN extracts the book id from a review collection name.
func ReviewsISBN(collection string) (string, bool) {
	isbn, ok := strings.CutPrefix(collection, reviewsPrefix)
	if !ok || isbn == "" {
		return "", false
	}
	return isbn, true
}
