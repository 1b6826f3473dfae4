package session

import "errors"

var (
	// ErrNoSession indicates no session is active.
	ErrNoSession = errors.New("no active session")
	// ErrSessionExpired indicates a session's validity window has passed.
	ErrSessionExpired = errors.New("session expired")
	// ErrInvalidPointer indicates the persisted pointer could not be read.
	ErrInvalidPointer = errors.New("invalid session pointer")
)
