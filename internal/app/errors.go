package app

import "errors"

var (
	// ErrNotAuthenticated indicates an intent that needs an active session.
	ErrNotAuthenticated = errors.New("not authenticated")
	// ErrEmptyPost indicates a post without content.
	ErrEmptyPost = errors.New("post content required")
	// ErrPostTooLong indicates a post over MaxPostRunes.
	ErrPostTooLong = errors.New("post content too long")
	// ErrInvalidRating indicates a review rating outside 1..5.
	ErrInvalidRating = errors.New("rating must be between 1 and 5")
	// ErrEmptyReview indicates a review without a message.
	ErrEmptyReview = errors.New("review message required")
	// ErrInvalidBook indicates a book missing its title or author.
	ErrInvalidBook = errors.New("book title and author required")
)
