package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/gorilla/websocket"
)

const defaultReconnectDelay = 5 * time.Second

// BlockFunc is called once per newly observed block height.
type BlockFunc func(ctx context.Context, height int64)

// Watcher follows a node's block stream and reports height increases. It
// never queries the ledger itself; callers decide what to refresh.
type Watcher struct {
	url            string
	onBlock        BlockFunc
	logger         *slog.Logger
	reconnectDelay time.Duration

	lastHeight int64
}

// NewWatcher creates a watcher for a websocket endpoint emitting
// {"height": n} messages.
func NewWatcher(url string, onBlock BlockFunc, logger *slog.Logger) *Watcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Watcher{
		url:            url,
		onBlock:        onBlock,
		logger:         logger,
		reconnectDelay: defaultReconnectDelay,
	}
}

// Start follows the stream until ctx is cancelled, reconnecting after
// transport errors.
func (w *Watcher) Start(ctx context.Context) error {
	for {
		if err := w.watch(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			w.logger.Error("block stream error, reconnecting", "err", err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(w.reconnectDelay):
		}
	}
}

func (w *Watcher) watch(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, w.url, nil)
	if err != nil {
		return fmt.Errorf("dial block stream: %w", err)
	}
	defer conn.Close()

	// ReadMessage does not observe ctx.
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	w.logger.Info("connected to block stream", "url", w.url)
	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read message: %w", err)
		}
		var event blockEvent
		if err := json.Unmarshal(message, &event); err != nil {
			w.logger.Warn("failed to parse block event", "err", err)
			continue
		}
		if event.Height <= w.lastHeight {
			continue
		}
		w.lastHeight = event.Height
		w.onBlock(ctx, event.Height)
	}
}

type blockEvent struct {
	Height int64 `json:"height"`
}
