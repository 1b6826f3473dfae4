package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"bookchain/internal/util"
)

// Client is the capability the engine needs from a ledger node. Each call is
// exactly one round trip; nothing is cached and nothing is retried.
type Client interface {
	Query(ctx context.Context, name string, args map[string]any) (json.RawMessage, error)
	Submit(ctx context.Context, operation string, args []any) (Ack, error)
}

// Ack is the node's acknowledgement of an accepted transaction.
type Ack struct {
	TxRID  string `json:"txRid"`
	Status string `json:"status"`
}

type signerKey struct{}

// WithSigner attaches the session public key that signs transactions issued
// with ctx.
func WithSigner(ctx context.Context, publicKeyHex string) context.Context {
	return context.WithValue(ctx, signerKey{}, publicKeyHex)
}

// SignerFrom returns the signer attached by WithSigner.
func SignerFrom(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(signerKey{}).(string)
	return v, ok && v != ""
}

// HTTPClient talks to a node's REST endpoint for one blockchain.
type HTTPClient struct {
	baseURL       string
	blockchainRID string
	httpClient    *http.Client
}

// NewHTTPClient constructs a node client. A zero timeout means 10s.
func NewHTTPClient(baseURL, blockchainRID string, timeout time.Duration) *HTTPClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPClient{
		baseURL:       strings.TrimRight(baseURL, "/"),
		blockchainRID: strings.ToUpper(strings.TrimSpace(blockchainRID)),
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: &util.LoggingTransport{Service: "ledger"},
		},
	}
}

// Query runs a named read-only query.
func (c *HTTPClient) Query(ctx context.Context, name string, args map[string]any) (json.RawMessage, error) {
	payload := make(map[string]any, len(args)+1)
	for k, v := range args {
		payload[k] = v
	}
	payload["type"] = name

	var out json.RawMessage
	status, err := c.do(ctx, "/query/"+c.blockchainRID, payload, &out)
	if err != nil {
		return nil, &QueryError{Name: name, Kind: classify(status, err), Status: status, Err: err}
	}
	return out, nil
}

// Submit posts a single-operation transaction.
func (c *HTTPClient) Submit(ctx context.Context, operation string, args []any) (Ack, error) {
	if args == nil {
		args = []any{}
	}
	tx := txRequest{Operation: operation, Args: args}
	if signer, ok := SignerFrom(ctx); ok {
		tx.Signer = signer
	}

	var ack Ack
	status, err := c.do(ctx, "/tx/"+c.blockchainRID, tx, &ack)
	if err != nil {
		return Ack{}, &SubmitError{Operation: operation, Kind: classify(status, err), Status: status, Err: err}
	}
	return ack, nil
}

func (c *HTTPClient) do(ctx context.Context, path string, payload any, out any) (int, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return 0, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		var errResp struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&errResp)
		msg := errResp.Error
		if msg == "" {
			msg = resp.Status
		}
		return resp.StatusCode, errors.New(msg)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, err
	}
	if len(bytes.TrimSpace(data)) == 0 {
		data = []byte("null")
	}
	if err := json.Unmarshal(data, out); err != nil {
		return resp.StatusCode, fmt.Errorf("decode response: %w", err)
	}
	return resp.StatusCode, nil
}

func classify(status int, err error) ErrorKind {
	switch {
	case status >= 400:
		return statusKind(status)
	case isDecodeError(err):
		return KindDecode
	default:
		return transportKind(err)
	}
}

type txRequest struct {
	Operation string `json:"operation"`
	Args      []any  `json:"args"`
	Signer    string `json:"signer,omitempty"`
}
