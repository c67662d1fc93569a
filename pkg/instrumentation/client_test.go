package instrumentation_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/dmitrymomot/searchkit/pkg/instrumentation"
	"github.com/dmitrymomot/searchkit/pkg/memstore"
	"github.com/dmitrymomot/searchkit/pkg/repository"
)

type fixture struct {
	client   *instrumentation.Client
	store    *memstore.Store
	registry *prometheus.Registry
	spans    *tracetest.SpanRecorder
	logs     *bytes.Buffer
}

func newFixture(t *testing.T, next repository.Client) fixture {
	t.Helper()
	reg := prometheus.NewRegistry()
	metrics, err := instrumentation.NewMetrics(reg)
	require.NoError(t, err)

	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	logs := &bytes.Buffer{}
	log := slog.New(slog.NewJSONHandler(logs, &slog.HandlerOptions{Level: slog.LevelDebug}))

	store, _ := next.(*memstore.Store)
	return fixture{
		client: instrumentation.Wrap(next,
			instrumentation.WithBackend("memory"),
			instrumentation.WithLogger(log),
			instrumentation.WithMetrics(metrics),
			instrumentation.WithTracerProvider(tp),
		),
		store:    store,
		registry: reg,
		spans:    recorder,
		logs:     logs,
	}
}

func spanAttr(span sdktrace.ReadOnlySpan, key string) (attribute.Value, bool) {
	for _, kv := range span.Attributes() {
		if string(kv.Key) == key {
			return kv.Value, true
		}
	}
	return attribute.Value{}, false
}

func TestClientRecordsRequests(t *testing.T) {
	t.Parallel()
	f := newFixture(t, memstore.New())
	ctx := context.Background()

	res, err := f.client.Index(ctx, "notes", "", map[string]any{"title": "A"})
	require.NoError(t, err)
	_, err = f.client.Get(ctx, "notes", res.ID)
	require.NoError(t, err)
	_, err = f.client.Get(ctx, "notes", "missing")
	require.ErrorIs(t, err, repository.ErrNotFound)
	_, err = f.client.Search(ctx, "notes", nil)
	require.NoError(t, err)

	series, err := testutil.GatherAndCount(f.registry, "searchkit_backend_requests_total")
	require.NoError(t, err)
	assert.Equal(t, 4, series)
	assert.Equal(t, 1, f.store.Calls("index"))

	spans := f.spans.Ended()
	require.Len(t, spans, 4)
	assert.Equal(t, "searchkit.index", spans[0].Name())
	id, ok := spanAttr(spans[0], "searchkit.document_id")
	require.True(t, ok)
	assert.Equal(t, res.ID, id.AsString())

	assert.Equal(t, "searchkit.get", spans[2].Name())
	outcome, _ := spanAttr(spans[2], "searchkit.outcome")
	assert.Equal(t, instrumentation.OutcomeNotFound, outcome.AsString())
	assert.NotEqual(t, codes.Error, spans[2].Status().Code)

	hits, ok := spanAttr(spans[3], "searchkit.hits")
	require.True(t, ok)
	assert.Equal(t, int64(1), hits.AsInt64())

	lines := strings.Split(strings.TrimSpace(f.logs.String()), "\n")
	require.Len(t, lines, 4)
	assert.Contains(t, lines[0], `"operation":"index"`)
	assert.Contains(t, lines[0], `"duration_ms"`)
	assert.Contains(t, lines[0], `"backend":"memory"`)
	assert.Contains(t, lines[2], `"outcome":"not_found"`)
	assert.Contains(t, lines[3], `"hits":1`)
	assert.NotContains(t, lines[0], `"hits"`)
	for i, line := range lines {
		assert.Contains(t, line, `"trace_id":"`+spans[i].SpanContext().TraceID().String()+`"`)
		assert.Contains(t, line, `"span_id":"`+spans[i].SpanContext().SpanID().String()+`"`)
	}
}

func TestNewLogger(t *testing.T) {
	t.Parallel()
	out := &bytes.Buffer{}
	log := instrumentation.NewLogger(instrumentation.Config{
		Environment: "production",
		Service:     "search-api",
		Backend:     "opensearch",
	}, out)

	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })
	ctx, span := tp.Tracer("test").Start(context.Background(), "op")

	log.DebugContext(ctx, "hidden")
	log.InfoContext(ctx, "visible")
	span.End()

	line := strings.TrimSpace(out.String())
	assert.NotContains(t, line, "hidden")
	assert.Contains(t, line, `"service":"search-api"`)
	assert.Contains(t, line, `"env":"production"`)
	assert.Contains(t, line, `"backend":"opensearch"`)
	assert.Contains(t, line, span.SpanContext().TraceID().String())

	_, ok := instrumentation.TraceContext(context.Background())
	assert.False(t, ok)
}

func TestWrapFromEnv(t *testing.T) {
	t.Setenv("SEARCHKIT_BACKEND", "memory")
	t.Setenv("SEARCHKIT_METRICS", "false")
	store := memstore.New()

	client, err := instrumentation.WrapFromEnv(store)
	require.NoError(t, err)

	_, err = client.Index(context.Background(), "notes", "n1", map[string]any{"title": "A"})
	require.NoError(t, err)
	assert.Equal(t, 1, store.Calls("index"))
	assert.Same(t, repository.Client(store), client.Unwrap())
}

func TestClientMetricsLabels(t *testing.T) {
	t.Parallel()
	f := newFixture(t, memstore.New())
	ctx := context.Background()

	_, err := f.client.Index(ctx, "notes", "n1", map[string]any{"title": "A"})
	require.NoError(t, err)
	_, err = f.client.Search(ctx, "notes", "{not json")
	require.Error(t, err)

	expected := `
# HELP searchkit_backend_requests_total Total number of backend requests
# TYPE searchkit_backend_requests_total counter
searchkit_backend_requests_total{backend="memory",index="notes",operation="index",outcome="ok"} 1
searchkit_backend_requests_total{backend="memory",index="notes",operation="search",outcome="error"} 1
`
	require.NoError(t, testutil.GatherAndCompare(f.registry, strings.NewReader(expected), "searchkit_backend_requests_total"))
	series, err := testutil.GatherAndCount(f.registry, "searchkit_backend_request_duration_seconds")
	require.NoError(t, err)
	assert.Equal(t, 2, series)

	spans := f.spans.Ended()
	require.Len(t, spans, 2)
	assert.Equal(t, codes.Error, spans[1].Status().Code)
	assert.Contains(t, f.logs.String(), `"level":"WARN"`)
}

func TestNewMetricsReusesCollectors(t *testing.T) {
	t.Parallel()
	reg := prometheus.NewRegistry()
	_, err := instrumentation.NewMetrics(reg)
	require.NoError(t, err)
	_, err = instrumentation.NewMetrics(reg)
	require.NoError(t, err)

	conflicting := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "searchkit", Subsystem: "backend", Name: "requests_total", Help: "other",
	})
	other := prometheus.NewRegistry()
	require.NoError(t, other.Register(conflicting))
	_, err = instrumentation.NewMetrics(other)
	assert.ErrorIs(t, err, instrumentation.ErrMetricsRegistration)
}

func TestRuntimeAccumulates(t *testing.T) {
	t.Parallel()
	f := newFixture(t, memstore.New())
	ctx, rt := instrumentation.WithRuntime(context.Background())
	assert.Same(t, rt, instrumentation.RuntimeFrom(ctx))

	for range 3 {
		_, err := f.client.Index(ctx, "notes", "", map[string]any{"title": "A"})
		require.NoError(t, err)
	}
	_, err := f.client.Get(context.Background(), "notes", "other")
	require.Error(t, err)

	assert.Equal(t, int64(3), rt.Requests())
	assert.Positive(t, rt.Duration())

	d := rt.Reset()
	assert.Positive(t, d)
	assert.Zero(t, rt.Requests())
	assert.Zero(t, rt.Duration())

	var nilRuntime *instrumentation.Runtime
	assert.Zero(t, nilRuntime.Duration())
	assert.Nil(t, instrumentation.RuntimeFrom(context.Background()))
}

type bareClient struct{ repository.Client }

func TestClientUnsupportedCapabilities(t *testing.T) {
	t.Parallel()
	f := newFixture(t, bareClient{memstore.New()})
	ctx := context.Background()

	_, err := f.client.Count(ctx, "notes", nil)
	assert.ErrorIs(t, err, repository.ErrUnsupported)
	_, err = f.client.Update(ctx, "notes", "n1", nil)
	assert.ErrorIs(t, err, repository.ErrUnsupported)
	assert.ErrorIs(t, f.client.CreateIndex(ctx, "notes", nil), repository.ErrUnsupported)
	_, err = f.client.DeleteIndex(ctx, "notes")
	assert.ErrorIs(t, err, repository.ErrUnsupported)
	assert.ErrorIs(t, f.client.Refresh(ctx, "notes"), repository.ErrUnsupported)
	assert.Empty(t, f.spans.Ended())
}

func TestClientThroughRepository(t *testing.T) {
	t.Parallel()
	store := memstore.New()
	f := newFixture(t, store)
	ctx, rt := instrumentation.WithRuntime(context.Background())

	notes := repository.New[repository.Source](repository.Options{Client: f.client, IndexName: "notes"})
	require.NoError(t, notes.CreateIndex(ctx, false))
	res, err := notes.Save(ctx, "", map[string]any{"title": "A"})
	require.NoError(t, err)
	_, err = notes.Update(ctx, res.ID, map[string]any{"title": "B"})
	require.NoError(t, err)
	n, err := notes.Count(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	require.NoError(t, notes.RefreshIndex(ctx))

	assert.Equal(t, 1, store.Calls("update"))
	assert.Equal(t, int64(len(f.spans.Ended())), rt.Requests())
	assert.Same(t, repository.Client(store), f.client.Unwrap())
}

func TestOutcomeOfMissingIndex(t *testing.T) {
	t.Parallel()
	f := newFixture(t, memstore.New())
	err := f.client.PutSettings(context.Background(), "missing", map[string]any{"a": 1})
	require.Error(t, err)
	assert.True(t, errors.Is(err, repository.ErrNotFound))

	spans := f.spans.Ended()
	require.Len(t, spans, 1)
	outcome, _ := spanAttr(spans[0], "searchkit.outcome")
	assert.Equal(t, instrumentation.OutcomeNotFound, outcome.AsString())
}
