package config

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Sternrassler/sherpa-tap/pkg/state"
)

// OpenBackend creates the configured state backend. The redis backend is
// pinged before it is returned.
func (s StateConfig) OpenBackend(ctx context.Context) (state.Backend, error) {
	switch s.Backend {
	case BackendFile, "":
		return state.NewFileBackend(s.Path)
	case BackendMemory:
		return state.NewMemoryBackend(nil), nil
	case BackendRedis:
		client := redis.NewClient(&redis.Options{Addr: s.RedisAddr})

		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := client.Ping(pingCtx).Err(); err != nil {
			client.Close()
			return nil, fmt.Errorf("connect to redis %s: %w", s.RedisAddr, err)
		}
		return state.NewRedisBackend(client, s.Namespace)
	default:
		return nil, fmt.Errorf("%w: unknown state backend %q", ErrInvalid, s.Backend)
	}
}
