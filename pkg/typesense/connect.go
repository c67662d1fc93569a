package typesense

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/typesense/typesense-go/v2/typesense"

	"github.com/dmitrymomot/searchkit/pkg/config"
)

// New creates a Typesense client and verifies the server is healthy.
func New(ctx context.Context, cfg Config) (*typesense.Client, error) {
	client := typesense.NewClient(
		typesense.WithServer(cfg.URL),
		typesense.WithAPIKey(cfg.APIKey),
		typesense.WithConnectionTimeout(cfg.ConnectionTimeout),
	)
	if err := Healthcheck(client, cfg.HealthTimeout)(ctx); err != nil {
		return nil, err
	}
	return client, nil
}

// NewFromEnv loads Config from the environment and returns a Store.
func NewFromEnv(ctx context.Context) (*Store, error) {
	var cfg Config
	if err := config.Load(&cfg); err != nil {
		return nil, errors.Join(ErrHealthcheckFailed, err)
	}
	client, err := New(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return NewStore(client), nil
}

// Healthcheck returns a function suitable for readiness/liveness probes.
func Healthcheck(client *typesense.Client, timeout time.Duration) func(context.Context) error {
	return func(ctx context.Context) error {
		ok, err := client.Health(ctx, timeout)
		if err != nil {
			return errors.Join(ErrHealthcheckFailed, err)
		}
		if !ok {
			return errors.Join(ErrHealthcheckFailed, fmt.Errorf("server reported unhealthy"))
		}
		return nil
	}
}
