package instrumentation

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/dmitrymomot/searchkit/pkg/logger"
	"github.com/dmitrymomot/searchkit/pkg/repository"
)

const tracerName = "github.com/dmitrymomot/searchkit/pkg/instrumentation"

// Outcomes reported in metrics, logs and spans.
const (
	OutcomeOK          = "ok"
	OutcomeNotFound    = "not_found"
	OutcomeUnsupported = "unsupported"
	OutcomeError       = "error"
)

// Client decorates a repository.Client. Every request is timed, logged,
// counted in Prometheus collectors, traced as an OpenTelemetry span and added
// to the Runtime carried by the context, if any.
//
// Client implements IndexManager, Counter and Updater; when the wrapped client
// lacks a capability the call returns repository.ErrUnsupported without
// reaching the backend.
type Client struct {
	next    repository.Client
	backend string
	log     *slog.Logger
	metrics *Metrics
	tracer  trace.Tracer
}

// Option configures a Client.
type Option func(*Client)

// WithBackend names the backend in logs, metrics and spans ("opensearch", "mongo", ...).
func WithBackend(name string) Option {
	return func(c *Client) { c.backend = name }
}

// WithLogger sets the logger. Successful requests are logged at debug level,
// failures at warn. Records carry the trace and span ids of the request span.
func WithLogger(log *slog.Logger) Option {
	return func(c *Client) {
		if log != nil {
			c.log = slog.New(logger.NewLogHandlerDecorator(log.Handler(), TraceContext))
		}
	}
}

// TraceContext is a logger.ContextExtractor adding the trace and span ids of
// the span active in ctx.
func TraceContext(ctx context.Context) (slog.Attr, bool) {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.IsValid() {
		return slog.Attr{}, false
	}
	return logger.Group("trace",
		slog.String("trace_id", sc.TraceID().String()),
		slog.String("span_id", sc.SpanID().String()),
	), true
}

// WithMetrics enables Prometheus metrics.
func WithMetrics(m *Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// WithTracerProvider sets the tracer provider. The global provider is used by default.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(c *Client) {
		if tp != nil {
			c.tracer = tp.Tracer(tracerName)
		}
	}
}

// Wrap decorates next.
func Wrap(next repository.Client, opts ...Option) *Client {
	c := &Client{
		next:    next,
		backend: "unknown",
		log:     slog.New(slog.DiscardHandler),
		tracer:  otel.GetTracerProvider().Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Unwrap returns the decorated client.
func (c *Client) Unwrap() repository.Client { return c.next }

func observe[R any](c *Client, ctx context.Context, op, index, id string, fn func(context.Context) (R, error)) (R, error) {
	attrs := []attribute.KeyValue{
		attribute.String("db.system", c.backend),
		attribute.String("db.operation", op),
		attribute.String("searchkit.index", index),
	}
	if id != "" {
		attrs = append(attrs, attribute.String("searchkit.document_id", id))
	}
	ctx, span := c.tracer.Start(ctx, "searchkit."+op,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attrs...),
	)
	defer span.End()

	start := time.Now()
	res, err := fn(ctx)
	elapsed := time.Since(start)

	outcome := outcomeOf(err)
	span.SetAttributes(attribute.String("searchkit.outcome", outcome))
	if outcome == OutcomeError {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}

	c.metrics.observe(c.backend, op, index, outcome, elapsed.Seconds())
	RuntimeFrom(ctx).add(elapsed)

	level := slog.LevelDebug
	if outcome == OutcomeError {
		level = slog.LevelWarn
	}
	logAttrs := []slog.Attr{
		logger.Backend(c.backend),
		logger.Operation(op),
		logger.Index(index),
		logger.DocumentID(id),
		slog.String("outcome", outcome),
		logger.DurationMS(elapsed),
		logger.Error(err),
	}
	if sr, ok := any(res).(*repository.SearchResult); ok && sr != nil {
		logAttrs = append(logAttrs, logger.Hits(len(sr.Hits)))
	}
	c.log.LogAttrs(ctx, level, "backend request", logAttrs...)
	return res, err
}

func outcomeOf(err error) string {
	switch {
	case err == nil:
		return OutcomeOK
	case errors.Is(err, repository.ErrUnsupported):
		return OutcomeUnsupported
	case repository.IsNotFound(err):
		return OutcomeNotFound
	default:
		return OutcomeError
	}
}

func (c *Client) IndexExists(ctx context.Context, index string) (bool, error) {
	return observe(c, ctx, "index_exists", index, "", func(ctx context.Context) (bool, error) {
		return c.next.IndexExists(ctx, index)
	})
}

func (c *Client) Get(ctx context.Context, index, id string) (*repository.Document, error) {
	return observe(c, ctx, "get", index, id, func(ctx context.Context) (*repository.Document, error) {
		return c.next.Get(ctx, index, id)
	})
}

func (c *Client) Index(ctx context.Context, index, id string, body map[string]any) (repository.PersistResult, error) {
	return observe(c, ctx, "index", index, id, func(ctx context.Context) (repository.PersistResult, error) {
		res, err := c.next.Index(ctx, index, id, body)
		if err == nil && id == "" {
			trace.SpanFromContext(ctx).SetAttributes(attribute.String("searchkit.document_id", res.ID))
		}
		return res, err
	})
}

func (c *Client) Delete(ctx context.Context, index, id string) (bool, error) {
	return observe(c, ctx, "delete", index, id, func(ctx context.Context) (bool, error) {
		return c.next.Delete(ctx, index, id)
	})
}

func (c *Client) Search(ctx context.Context, index string, query any) (*repository.SearchResult, error) {
	return observe(c, ctx, "search", index, "", func(ctx context.Context) (*repository.SearchResult, error) {
		res, err := c.next.Search(ctx, index, query)
		if err == nil && res != nil {
			trace.SpanFromContext(ctx).SetAttributes(
				attribute.Int("searchkit.hits", len(res.Hits)),
				attribute.Int64("searchkit.total", res.Total),
			)
		}
		return res, err
	})
}

func (c *Client) PutMapping(ctx context.Context, index string, mapping map[string]any) error {
	_, err := observe(c, ctx, "put_mapping", index, "", func(ctx context.Context) (struct{}, error) {
		return struct{}{}, c.next.PutMapping(ctx, index, mapping)
	})
	return err
}

func (c *Client) PutSettings(ctx context.Context, index string, settings map[string]any) error {
	_, err := observe(c, ctx, "put_settings", index, "", func(ctx context.Context) (struct{}, error) {
		return struct{}{}, c.next.PutSettings(ctx, index, settings)
	})
	return err
}

func (c *Client) Count(ctx context.Context, index string, query any) (int64, error) {
	counter, ok := c.next.(repository.Counter)
	if !ok {
		return 0, repository.ErrUnsupported
	}
	return observe(c, ctx, "count", index, "", func(ctx context.Context) (int64, error) {
		return counter.Count(ctx, index, query)
	})
}

func (c *Client) Update(ctx context.Context, index, id string, partial map[string]any) (repository.PersistResult, error) {
	u, ok := c.next.(repository.Updater)
	if !ok {
		return repository.PersistResult{}, repository.ErrUnsupported
	}
	return observe(c, ctx, "update", index, id, func(ctx context.Context) (repository.PersistResult, error) {
		return u.Update(ctx, index, id, partial)
	})
}

func (c *Client) CreateIndex(ctx context.Context, index string, body map[string]any) error {
	im, ok := c.next.(repository.IndexManager)
	if !ok {
		return repository.ErrUnsupported
	}
	_, err := observe(c, ctx, "create_index", index, "", func(ctx context.Context) (struct{}, error) {
		return struct{}{}, im.CreateIndex(ctx, index, body)
	})
	return err
}

func (c *Client) DeleteIndex(ctx context.Context, index string) (bool, error) {
	im, ok := c.next.(repository.IndexManager)
	if !ok {
		return false, repository.ErrUnsupported
	}
	return observe(c, ctx, "delete_index", index, "", func(ctx context.Context) (bool, error) {
		return im.DeleteIndex(ctx, index)
	})
}

func (c *Client) Refresh(ctx context.Context, index string) error {
	im, ok := c.next.(repository.IndexManager)
	if !ok {
		return repository.ErrUnsupported
	}
	_, err := observe(c, ctx, "refresh", index, "", func(ctx context.Context) (struct{}, error) {
		return struct{}{}, im.Refresh(ctx, index)
	})
	return err
}
