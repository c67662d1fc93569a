package redis

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/dmitrymomot/searchkit/pkg/config"
	"github.com/dmitrymomot/searchkit/pkg/repository"
)

// Connect establishes a connection to a Redis server using the provided configuration.
// It pings the server up to RetryAttempts times, waiting RetryInterval between
// attempts, and gives up when ConnectTimeout elapses.
//
// Returns ErrFailedToParseRedisConnString if the connection URL is invalid and
// ErrRedisNotReady if all attempts fail.
func Connect(ctx context.Context, cfg Config) (*redis.Client, error) {
	ctx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()

	opts, err := redis.ParseURL(cfg.ConnectionURL)
	if err != nil {
		return nil, errors.Join(ErrFailedToParseRedisConnString, err)
	}

	var lastErr error
	for attempt := range max(cfg.RetryAttempts, 1) {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, errors.Join(ErrRedisNotReady, ctx.Err(), lastErr)
			case <-time.After(cfg.RetryInterval):
			}
		}

		client := redis.NewClient(opts)
		if lastErr = client.Ping(ctx).Err(); lastErr == nil {
			return client, nil
		}
		_ = client.Close()
	}

	return nil, errors.Join(ErrRedisNotReady, lastErr)
}

// ConnectFromEnv loads Config from REDIS_* variables, connects and wraps next
// in a read-through Cache.
func ConnectFromEnv(ctx context.Context, next repository.Client, opts ...CacheOption) (*Cache, *redis.Client, error) {
	var cfg Config
	if err := config.Load(&cfg); err != nil {
		return nil, nil, errors.Join(ErrFailedToParseRedisConnString, err)
	}
	client, err := Connect(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	opts = append([]CacheOption{
		WithTTL(cfg.CacheTTL),
		WithKeyPrefix(cfg.KeyPrefix),
	}, opts...)
	return NewCache(next, NewStorageWithConfig(client, cfg), opts...), client, nil
}

// Healthcheck pings Redis; suitable for readiness and liveness probes.
func Healthcheck(client redis.UniversalClient) func(context.Context) error {
	return func(ctx context.Context) error {
		if err := client.Ping(ctx).Err(); err != nil {
			return errors.Join(ErrHealthcheckFailed, err)
		}
		return nil
	}
}
