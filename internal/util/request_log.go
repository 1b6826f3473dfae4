package util

import (
	"log/slog"
	"net/http"
	"time"
)

// LoggingTransport stamps a request id on every outgoing request and emits a
// structured log line for it.
type LoggingTransport struct {
	Base    http.RoundTripper
	Service string
	Logger  *slog.Logger
}

func (t *LoggingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	base := t.Base
	if base == nil {
		base = http.DefaultTransport
	}
	logger := t.Logger
	if logger == nil {
		logger = slog.Default()
	}
	service := t.Service
	if service == "" {
		service = "unknown"
	}

	// RoundTrip must not modify the caller's request.
	req = req.Clone(req.Context())
	requestID := SetRequestID(req)
	start := time.Now()
	resp, err := base.RoundTrip(req)
	attrs := []any{
		"service", service,
		"method", req.Method,
		"path", req.URL.Path,
		"duration_ms", time.Since(start).Milliseconds(),
		"request_id", requestID,
	}
	if err != nil {
		logger.Warn("http_request", append(attrs, "err", err)...)
		return nil, err
	}
	logger.Debug("http_request", append(attrs, "status", resp.StatusCode)...)
	return resp, nil
}
