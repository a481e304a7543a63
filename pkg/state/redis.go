package state

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
)

// RedisKeyPrefix prefixes every state key stored in Redis.
const RedisKeyPrefix = "sherpa:state"

// RedisKey builds the deterministic key holding the document for namespace.
//
// Example:
//
//	sherpa:state:production
func RedisKey(namespace string) string {
	namespace = strings.Trim(namespace, ": ")
	if namespace == "" {
		namespace = "default"
	}
	return RedisKeyPrefix + ":" + namespace
}

// RedisBackend stores the document as a single JSON value in Redis, so
// every flush replaces the whole state at once.
type RedisBackend struct {
	redis *redis.Client
	key   string
}

// NewRedisBackend creates a Redis backend for namespace.
func NewRedisBackend(redisClient *redis.Client, namespace string) (*RedisBackend, error) {
	if redisClient == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	return &RedisBackend{
		redis: redisClient,
		key:   RedisKey(namespace),
	}, nil
}

// Key returns the Redis key in use.
func (r *RedisBackend) Key() string {
	return r.key
}

// Read implements Backend. A missing key yields an empty document.
func (r *RedisBackend) Read(ctx context.Context) (*Document, error) {
	data, err := r.redis.Get(ctx, r.key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return NewDocument(), nil
		}
		return nil, fmt.Errorf("redis get: %w", err)
	}
	return Decode(data)
}

// Write implements Backend.
func (r *RedisBackend) Write(ctx context.Context, doc *Document) error {
	data, err := Encode(doc)
	if err != nil {
		return err
	}
	if err := r.redis.Set(ctx, r.key, data, 0).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// Close closes the Redis client.
func (r *RedisBackend) Close() error {
	return r.redis.Close()
}
