package opensearch

import (
	"context"
	"errors"

	"github.com/opensearch-project/opensearch-go/v2"

	"github.com/dmitrymomot/searchkit/pkg/config"
)

// New creates an OpenSearch client and verifies the cluster is reachable.
func New(ctx context.Context, cfg Config) (*opensearch.Client, error) {
	client, err := opensearch.NewClient(opensearch.Config{
		Addresses:    cfg.Addresses,
		Username:     cfg.Username,
		Password:     cfg.Password,
		MaxRetries:   cfg.MaxRetries,
		DisableRetry: cfg.DisableRetry,
	})
	if err != nil {
		return nil, errors.Join(ErrConnectionFailed, err)
	}

	if err := Healthcheck(client)(ctx); err != nil {
		return nil, err
	}

	return client, nil
}

// NewFromEnv loads Config from the environment, connects and returns a Store
// ready to be used as a repository client.
func NewFromEnv(ctx context.Context) (*Store, error) {
	var cfg Config
	if err := config.Load(&cfg); err != nil {
		return nil, errors.Join(ErrConnectionFailed, err)
	}
	client, err := New(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return NewStore(client, WithRefresh(cfg.Refresh)), nil
}
