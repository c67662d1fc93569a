package pg

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dmitrymomot/searchkit/pkg/config"
)

// Connect opens a connection pool and pings the server, retrying with a
// linearly growing pause between attempts.
func Connect(ctx context.Context, cfg Config) (*pgxpool.Pool, error) {
	connConfig, err := pgxpool.ParseConfig(cfg.ConnectionString)
	if err != nil {
		return nil, errors.Join(ErrFailedToParseDBConfig, err)
	}
	connConfig.MaxConns = cfg.MaxOpenConns
	connConfig.MinConns = cfg.MaxIdleConns
	connConfig.HealthCheckPeriod = cfg.HealthCheckPeriod
	connConfig.MaxConnIdleTime = cfg.MaxConnIdleTime
	connConfig.MaxConnLifetime = cfg.MaxConnLifetime

	var lastErr error
	for i := range max(cfg.RetryAttempts, 1) {
		pool, err := pgxpool.NewWithConfig(ctx, connConfig)
		if err == nil {
			if err = pool.Ping(ctx); err == nil {
				return pool, nil
			}
			pool.Close()
		}
		lastErr = err

		select {
		case <-ctx.Done():
			return nil, errors.Join(ErrFailedToOpenDBConnection, ctx.Err())
		case <-time.After(time.Duration(i+1) * cfg.RetryInterval):
		}
	}

	return nil, errors.Join(ErrFailedToOpenDBConnection, lastErr)
}

// ConnectFromEnv loads Config from the environment, connects, applies the
// embedded migrations when AutoMigrate is set and returns a Store.
func ConnectFromEnv(ctx context.Context, log *slog.Logger) (*Store, *pgxpool.Pool, error) {
	var cfg Config
	if err := config.Load(&cfg); err != nil {
		return nil, nil, errors.Join(ErrFailedToParseDBConfig, err)
	}
	pool, err := Connect(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	if cfg.AutoMigrate {
		if log == nil {
			log = slog.New(slog.DiscardHandler)
		}
		if err := Migrate(ctx, pool, cfg, log); err != nil {
			pool.Close()
			return nil, nil, err
		}
	}
	return NewStore(pool), pool, nil
}
