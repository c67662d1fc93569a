package instrumentation

import (
	"errors"
	"io"
	"log/slog"
	"os"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/dmitrymomot/searchkit/pkg/config"
	"github.com/dmitrymomot/searchkit/pkg/logger"
	"github.com/dmitrymomot/searchkit/pkg/repository"
)

// NewLogger builds the logger WrapFromEnv uses: per-environment level and
// format from cfg, service and env attributes, and trace ids on every record.
func NewLogger(cfg Config, w io.Writer) *slog.Logger {
	return logger.New(
		logger.WithEnvironment(cfg.Environment, cfg.Service),
		logger.WithOutput(w),
		logger.WithAttr(logger.Backend(cfg.Backend)),
		logger.WithContextExtractors(TraceContext),
	)
}

// WrapFromEnv loads Config from the environment and wraps next with a logger
// writing to stderr and, unless disabled, metrics registered with the default
// Prometheus registerer. Extra options are applied last.
func WrapFromEnv(next repository.Client, opts ...Option) (*Client, error) {
	var cfg Config
	if err := config.Load(&cfg); err != nil {
		return nil, errors.Join(ErrInvalidConfig, err)
	}

	base := []Option{
		WithBackend(cfg.Backend),
		withBaseLogger(NewLogger(cfg, os.Stderr)),
	}
	if cfg.Metrics {
		m, err := NewMetrics(prometheus.DefaultRegisterer)
		if err != nil {
			return nil, err
		}
		base = append(base, WithMetrics(m))
	}
	return Wrap(next, append(base, opts...)...), nil
}

// withBaseLogger installs a logger that already extracts trace ids.
func withBaseLogger(log *slog.Logger) Option {
	return func(c *Client) { c.log = log }
}
