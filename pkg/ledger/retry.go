package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"
)

// MaxQueryRetries caps RetryingClient regardless of configuration.
const MaxQueryRetries = 5

// RetryingClient repeats temporary query failures a bounded number of times.
// Submit is passed through untouched: a repeated transaction could be applied
// twice by the node.
type RetryingClient struct {
	next    Client
	retries int
	delay   time.Duration
	logger  *slog.Logger
}

// NewRetryingClient wraps next. retries is clamped to [0, MaxQueryRetries].
func NewRetryingClient(next Client, retries int, delay time.Duration, logger *slog.Logger) *RetryingClient {
	if retries < 0 {
		retries = 0
	}
	if retries > MaxQueryRetries {
		retries = MaxQueryRetries
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RetryingClient{next: next, retries: retries, delay: delay, logger: logger}
}

func (c *RetryingClient) Query(ctx context.Context, name string, args map[string]any) (json.RawMessage, error) {
	var lastErr error
	for attempt := 0; attempt <= c.retries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, &QueryError{Name: name, Kind: transportKind(ctx.Err()), Err: ctx.Err()}
			case <-time.After(c.delay):
			}
		}
		out, err := c.next.Query(ctx, name, args)
		if err == nil {
			return out, nil
		}
		lastErr = err
		var qerr *QueryError
		if !errors.As(err, &qerr) || !qerr.Temporary() {
			return nil, err
		}
		c.logger.Warn("ledger query failed", "query", name, "attempt", attempt+1, "err", err)
	}
	return nil, lastErr
}

func (c *RetryingClient) Submit(ctx context.Context, operation string, args []any) (Ack, error) {
	return c.next.Submit(ctx, operation, args)
}
