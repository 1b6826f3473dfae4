package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisSnapshotCache stores snapshots as JSON strings in Redis.
type RedisSnapshotCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisSnapshotCache builds a Redis-backed snapshot cache. A zero ttl keeps
// entries until overwritten.
func NewRedisSnapshotCache(addr, password string, ttl time.Duration) *RedisSnapshotCache {
	return &RedisSnapshotCache{
		client: redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: password,
		}),
		ttl: ttl,
	}
}

func (c *RedisSnapshotCache) SaveSnapshot(ctx context.Context, collection string, fetchedAt time.Time, items any) error {
	raw, err := encodeItems(items)
	if err != nil {
		return err
	}
	data, err := json.Marshal(cachedSnapshot{FetchedAt: fetchedAt.UTC(), Items: raw})
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	return c.client.Set(ctx, snapshotRedisKey(collection), data, c.ttl).Err()
}

func (c *RedisSnapshotCache) LoadSnapshot(ctx context.Context, collection string, out any) (time.Time, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	data, err := c.client.Get(ctx, snapshotRedisKey(collection)).Bytes()
	if err == redis.Nil {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, err
	}
	var snap cachedSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return time.Time{}, false, fmt.Errorf("decode snapshot: %w", err)
	}
	if err := decodeItems(snap.Items, out); err != nil {
		return time.Time{}, false, err
	}
	return snap.FetchedAt, true, nil
}

// Close releases the Redis connection pool.
func (c *RedisSnapshotCache) Close() error {
	return c.client.Close()
}

func snapshotRedisKey(collection string) string {
	return fmt.Sprintf("bookchain:snapshot:%s", collection)
}
