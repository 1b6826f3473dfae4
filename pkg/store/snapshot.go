package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// SnapshotCache keeps the last confirmed snapshot of each collection so a
// restarted client can render something before its first query returns.
type SnapshotCache interface {
	SaveSnapshot(ctx context.Context, collection string, fetchedAt time.Time, items any) error
	// LoadSnapshot decodes the cached items into out. ok is false when
	// nothing is cached for collection.
	LoadSnapshot(ctx context.Context, collection string, out any) (fetchedAt time.Time, ok bool, err error)
}

type cachedSnapshot struct {
	FetchedAt time.Time       `json:"fetchedAt"`
	Items     json.RawMessage `json:"items"`
}

func encodeItems(items any) (json.RawMessage, error) {
	data, err := json.Marshal(items)
	if err != nil {
		return nil, fmt.Errorf("encode snapshot: %w", err)
	}
	return data, nil
}

func decodeItems(data []byte, out any) error {
	if len(data) == 0 {
		data = []byte("null")
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode snapshot: %w", err)
	}
	return nil
}
