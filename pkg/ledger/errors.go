package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
)

// ErrNotFound indicates an optional query result was absent.
var ErrNotFound = errors.New("ledger: not found")

// ErrorKind classifies a ledger I/O failure.
type ErrorKind string

const (
	KindNetwork  ErrorKind = "network"
	KindTimeout  ErrorKind = "timeout"
	KindDecode   ErrorKind = "decode"
	KindNode     ErrorKind = "node"
	KindRejected ErrorKind = "rejected"
)

// QueryError reports a failed named query.
type QueryError struct {
	Name   string
	Kind   ErrorKind
	Status int
	Err    error
}

func (e *QueryError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("query %s: %s (status %d): %v", e.Name, e.Kind, e.Status, e.Err)
	}
	return fmt.Sprintf("query %s: %s: %v", e.Name, e.Kind, e.Err)
}

func (e *QueryError) Unwrap() error { return e.Err }

// Temporary reports whether repeating the query may succeed.
func (e *QueryError) Temporary() bool {
	switch e.Kind {
	case KindNetwork, KindTimeout:
		return true
	case KindNode:
		return e.Status == 0 || e.Status >= 500
	}
	return false
}

// SubmitError reports a failed transaction submission.
type SubmitError struct {
	Operation string
	Kind      ErrorKind
	Status    int
	Err       error
}

func (e *SubmitError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("submit %s: %s (status %d): %v", e.Operation, e.Kind, e.Status, e.Err)
	}
	return fmt.Sprintf("submit %s: %s: %v", e.Operation, e.Kind, e.Err)
}

func (e *SubmitError) Unwrap() error { return e.Err }

func transportKind(err error) ErrorKind {
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return KindTimeout
	}
	return KindNetwork
}

func statusKind(status int) ErrorKind {
	if status >= 400 && status < 500 {
		return KindRejected
	}
	return KindNode
}

func isDecodeError(err error) bool {
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	return errors.As(err, &syntaxErr) || errors.As(err, &typeErr)
}
