package events

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore implements ProcessedStore on Redis using SETNX with a TTL.
// Retention is enforced by Redis key expiry, so the window survives process
// restarts and is shared across instances.
type RedisStore struct {
	client    *redis.Client
	retention time.Duration
}

func NewRedisStore(client *redis.Client, retention time.Duration) *RedisStore {
	if client == nil {
		panic("events: redis client required")
	}
	if retention <= 0 {
		retention = 24 * time.Hour
	}
	return &RedisStore{client: client, retention: retention}
}

func (s *RedisStore) MarkProcessed(ctx context.Context, eventID string) (bool, error) {
	ok, err := s.client.SetNX(ctx, processedKey(eventID), 1, s.retention).Result()
	if err != nil {
		return false, fmt.Errorf("events: mark processed: %w", err)
	}
	return ok, nil
}

func (s *RedisStore) AlreadyProcessed(ctx context.Context, eventID string) (bool, error) {
	n, err := s.client.Exists(ctx, processedKey(eventID)).Result()
	if err != nil {
		return false, fmt.Errorf("events: check processed: %w", err)
	}
	return n > 0, nil
}

func processedKey(eventID string) string {
	return "processed:" + eventID
}
