package ratelimit

import (
	"fmt"

	"github.com/paulohenriquevn/analisaai-socialmedia-backend-sync/internal/shared"
)

// New builds the limiter selected by cfg.Backend. The returned close func releases any
// backend connection and is never nil.
func New(cfg shared.RateLimitConfig, opts ...Option) (Limiter, func(), error) {
	switch cfg.Backend {
	case "", "local":
		return NewTokenBucket(cfg.Rate, cfg.Burst, opts...), func() {}, nil
	case "redis":
		client, err := NewRedisClient(cfg.RedisAddr)
		if err != nil {
			return nil, nil, err
		}
		return NewRedisBucket(client, cfg.RedisKey, cfg.Rate, cfg.Burst, opts...), client.Close, nil
	}
	return nil, nil, fmt.Errorf("%w: unknown rate limit backend %q", shared.ErrInvalidConfig, cfg.Backend)
}
