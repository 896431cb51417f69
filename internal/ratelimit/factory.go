package ratelimit

import (
	"context"
	"fmt"
	"strings"

	"github.com/answergrid/answergrid/internal/config"
)

// NewStore creates a counter store from configuration.
func NewStore(ctx context.Context, cfg config.RateLimitConfig) (Store, error) {
	switch strings.ToLower(cfg.Backend) {
	case "", "memory":
		return NewMemoryStore(), nil
	case "redis":
		if cfg.RedisURL == "" {
			return nil, fmt.Errorf("redis rate limit backend requires a redis url")
		}
		return NewRedisStore(ctx, cfg.RedisURL)
	default:
		return nil, fmt.Errorf("unsupported rate limit backend: %s", cfg.Backend)
	}
}
