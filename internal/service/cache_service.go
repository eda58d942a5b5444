package service

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// CacheService is a thin JSON cache on Redis. Callers treat it as best-effort:
// a cache failure degrades to a repository read, never to a request failure.
type CacheService struct {
	client *redis.Client
	logger *zap.Logger
}

// NewCacheService constructs the cache wrapper.
func NewCacheService(client *redis.Client, logger *zap.Logger) *CacheService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CacheService{client: client, logger: logger}
}

// Get unmarshals the cached value into dest; the bool reports a hit.
func (s *CacheService) Get(ctx context.Context, key string, dest interface{}) (bool, error) {
	raw, err := s.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, err
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		return false, err
	}
	return true, nil
}

// Set stores a JSON-encoded value with a TTL.
func (s *CacheService) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, key, raw, ttl).Err()
}

// Delete drops one or more keys.
func (s *CacheService) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return s.client.Del(ctx, keys...).Err()
}
