package session

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisPointerPrefix = "bookchain:pointer:"

// RedisPointerStore keeps pointers in Redis, optionally expiring them.
type RedisPointerStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisPointerStore builds a Redis-backed pointer store. A zero ttl keeps
// keys until they are deleted.
func NewRedisPointerStore(addr, password string, ttl time.Duration) *RedisPointerStore {
	return &RedisPointerStore{
		client: redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: password,
		}),
		ttl: ttl,
	}
}

func (s *RedisPointerStore) Get(ctx context.Context, key string) (string, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	val, err := s.client.Get(ctx, redisPointerPrefix+key).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return val, true, nil
}

func (s *RedisPointerStore) Set(ctx context.Context, key, value string) error {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	return s.client.Set(ctx, redisPointerPrefix+key, value, s.ttl).Err()
}

func (s *RedisPointerStore) Delete(ctx context.Context, key string) error {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := s.client.Del(ctx, redisPointerPrefix+key).Err(); err != nil && err != redis.Nil {
		return err
	}
	return nil
}

// Close releases the Redis connection pool.
func (s *RedisPointerStore) Close() error {
	return s.client.Close()
}
