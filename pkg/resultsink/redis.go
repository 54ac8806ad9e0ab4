package resultsink

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultObjectTTL = 24 * time.Hour

// RedisStore keeps oversized result payloads in Redis under a TTL.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisStore creates a RedisStore. ttl <= 0 applies the default of 24h.
func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = defaultObjectTTL
	}

	return &RedisStore{client: client, ttl: ttl}
}

// Store writes the payload and returns the key it can be fetched under.
func (s *RedisStore) Store(ctx context.Context, key string, payload []byte) (string, error) {
	ref := "probeflow:result:" + key

	if err := s.client.Set(ctx, ref, payload, s.ttl).Err(); err != nil {
		return "", fmt.Errorf("failed to store result object %s: %w", ref, err)
	}

	return ref, nil
}

// Fetch reads a previously stored payload by its reference.
func (s *RedisStore) Fetch(ctx context.Context, ref string) ([]byte, error) {
	payload, err := s.client.Get(ctx, ref).Bytes()
	if err != nil {
		return nil, fmt.Errorf("failed to fetch result object %s: %w", ref, err)
	}

	return payload, nil
}
