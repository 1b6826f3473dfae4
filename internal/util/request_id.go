package util

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"net/http"
	"strings"
)

type requestIDContextKey string

const (
	RequestIDHeader = "X-Request-Id"
	requestIDCtxKey = requestIDContextKey("request_id")
)

// NewID returns a URL-safe hex string ID.
func NewID() string {
	b := make([]byte, 12)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}

// WithRequestID stores id in ctx so outgoing calls can be correlated in
// node logs.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDCtxKey, strings.TrimSpace(id))
}

// RequestIDFromContext returns request id from context.
func RequestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(requestIDCtxKey).(string)
	return id
}

// SetRequestID stamps req with the context's request id, generating one when
// the context has none. It returns the id used.
func SetRequestID(req *http.Request) string {
	id := strings.TrimSpace(req.Header.Get(RequestIDHeader))
	if id == "" {
		id = RequestIDFromContext(req.Context())
	}
	if id == "" {
		id = NewID()
	}
	req.Header.Set(RequestIDHeader, id)
	return id
}
