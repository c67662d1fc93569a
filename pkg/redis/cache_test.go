package redis_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/searchkit/pkg/memstore"
	"github.com/dmitrymomot/searchkit/pkg/redis"
	"github.com/dmitrymomot/searchkit/pkg/repository"
)

// mapKV is an in-memory redis.KV.
type mapKV struct {
	mu   sync.Mutex
	data map[string][]byte
	ttls map[string]time.Duration
	err  error
}

func newMapKV() *mapKV {
	return &mapKV{data: map[string][]byte{}, ttls: map[string]time.Duration{}}
}

func (m *mapKV) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	return m.data[key], nil
}

func (m *mapKV) Set(_ context.Context, key string, val []byte, exp time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.data[key] = val
	m.ttls[key] = exp
	return nil
}

func (m *mapKV) Delete(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		delete(m.data, k)
	}
	return m.err
}

func (m *mapKV) DeletePrefix(_ context.Context, prefix string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for k := range m.data {
		if strings.HasPrefix(k, prefix) {
			delete(m.data, k)
		}
	}
	return m.err
}

func (m *mapKV) keys() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.data))
	for k := range m.data {
		out = append(out, k)
	}
	return out
}

func TestCacheReadThrough(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := memstore.New()
	kv := newMapKV()
	cache := redis.NewCache(store, kv, redis.WithTTL(time.Minute), redis.WithKeyPrefix("test:"))

	_, err := cache.Index(ctx, "notes", "n1", map[string]any{"title": "A", "views": 3})
	require.NoError(t, err)

	doc, err := cache.Get(ctx, "notes", "n1")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"title": "A", "views": int64(3)}, doc.Source)
	assert.Equal(t, 1, store.Calls("get"))
	assert.Equal(t, []string{"test:doc:5:notes:n1"}, kv.keys())
	assert.Equal(t, time.Minute, kv.ttls["test:doc:5:notes:n1"])

	doc, err = cache.Get(ctx, "notes", "n1")
	require.NoError(t, err)
	assert.Equal(t, 1, store.Calls("get"), "second read is served from the cache")
	assert.Equal(t, "n1", doc.ID)
	assert.Equal(t, "notes", doc.Index)
	assert.Equal(t, int64(1), doc.Version)
	assert.Equal(t, map[string]any{"title": "A", "views": int64(3)}, doc.Source)
}

func TestCacheInvalidation(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := memstore.New()
	kv := newMapKV()
	cache := redis.NewCache(store, kv)

	_, err := cache.Index(ctx, "notes", "n1", map[string]any{"title": "A"})
	require.NoError(t, err)
	_, err = cache.Get(ctx, "notes", "n1")
	require.NoError(t, err)
	require.Len(t, kv.keys(), 1)

	_, err = cache.Index(ctx, "notes", "n1", map[string]any{"title": "B"})
	require.NoError(t, err)
	assert.Empty(t, kv.keys())

	doc, err := cache.Get(ctx, "notes", "n1")
	require.NoError(t, err)
	assert.Equal(t, "B", doc.Source["title"])
	assert.Equal(t, int64(2), doc.Version)

	_, err = cache.Update(ctx, "notes", "n1", map[string]any{"views": 1})
	require.NoError(t, err)
	assert.Empty(t, kv.keys())

	_, err = cache.Get(ctx, "notes", "n1")
	require.NoError(t, err)
	deleted, err := cache.Delete(ctx, "notes", "n1")
	require.NoError(t, err)
	assert.True(t, deleted)
	assert.Empty(t, kv.keys())

	_, err = cache.Get(ctx, "notes", "n1")
	assert.ErrorIs(t, err, repository.ErrNotFound)
	assert.Empty(t, kv.keys(), "misses are not cached")
}

func TestCacheDeleteIndexDropsEntries(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := memstore.New()
	kv := newMapKV()
	cache := redis.NewCache(store, kv)

	for _, id := range []string{"a", "b"} {
		_, err := cache.Index(ctx, "notes", id, map[string]any{"title": id})
		require.NoError(t, err)
		_, err = cache.Get(ctx, "notes", id)
		require.NoError(t, err)
	}
	_, err := cache.Index(ctx, "other", "c", map[string]any{"title": "c"})
	require.NoError(t, err)
	_, err = cache.Get(ctx, "other", "c")
	require.NoError(t, err)
	require.Len(t, kv.keys(), 3)

	deleted, err := cache.DeleteIndex(ctx, "notes")
	require.NoError(t, err)
	assert.True(t, deleted)
	assert.Equal(t, []string{"searchkit:doc:5:other:c"}, kv.keys())
}

func TestCacheFailuresFallBackToClient(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := memstore.New()
	kv := newMapKV()
	cache := redis.NewCache(store, kv)

	_, err := store.Index(ctx, "notes", "n1", map[string]any{"title": "A"})
	require.NoError(t, err)

	kv.err = errors.New("connection refused")
	doc, err := cache.Get(ctx, "notes", "n1")
	require.NoError(t, err)
	assert.Equal(t, "A", doc.Source["title"])

	kv.err = nil
	kv.data["searchkit:doc:5:notes:n1"] = []byte("{not json")
	doc, err = cache.Get(ctx, "notes", "n1")
	require.NoError(t, err)
	assert.Equal(t, "A", doc.Source["title"])
	assert.Equal(t, 2, store.Calls("get"))
}

func TestCacheThroughRepository(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := memstore.New()
	notes := repository.New[repository.Source](repository.Options{
		Client:    redis.NewCache(store, newMapKV()),
		IndexName: "notes",
	})

	res, err := notes.Save(ctx, "n1", map[string]any{"title": "A"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.Version)

	for range 3 {
		doc, err := notes.Find(ctx, "n1")
		require.NoError(t, err)
		assert.Equal(t, "A", doc["title"])
		assert.Equal(t, int64(1), doc[repository.MetaVersion])
	}
	assert.Equal(t, 1, store.Calls("get"))

	n, err := notes.Count(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	require.NoError(t, notes.CreateIndex(ctx, true))
	exists, err := notes.Exists(ctx, "n1")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestCacheKeysSeparateIndices(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := memstore.New()
	kv := newMapKV()
	cache := redis.NewCache(store, kv)

	_, err := store.Index(ctx, "a:b", "c", map[string]any{"title": "nested"})
	require.NoError(t, err)
	_, err = cache.Get(ctx, "a:b", "c")
	require.NoError(t, err)

	notes := repository.New[repository.Source](repository.Options{Client: cache, IndexName: "a"})
	_, err = notes.Find(ctx, "b:c")
	assert.ErrorIs(t, err, repository.ErrNotFound)

	_, err = store.Index(ctx, "a", "b:c", map[string]any{"title": "flat"})
	require.NoError(t, err)
	doc, err := notes.Find(ctx, "b:c")
	require.NoError(t, err)
	assert.Equal(t, "flat", doc["title"])
	require.Len(t, kv.keys(), 2)

	_, err = cache.DeleteIndex(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, []string{"searchkit:doc:3:a:b:c"}, kv.keys())

	doc2, err := cache.Get(ctx, "a:b", "c")
	require.NoError(t, err)
	assert.Equal(t, "nested", doc2.Source["title"])
}

func TestCacheIgnoresEntryOfAnotherDocument(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := memstore.New()
	kv := newMapKV()
	cache := redis.NewCache(store, kv)

	_, err := store.Index(ctx, "notes", "n1", map[string]any{"title": "A"})
	require.NoError(t, err)
	kv.data["searchkit:doc:5:notes:n1"] = []byte(`{"id":"n9","index":"other","source":{"title":"X"}}`)

	doc, err := cache.Get(ctx, "notes", "n1")
	require.NoError(t, err)
	assert.Equal(t, "A", doc.Source["title"])
	assert.Equal(t, 1, store.Calls("get"))
}

// racingClient runs onGet after reading from the wrapped store and before
// returning, simulating a write that lands while a cache miss is in flight.
type racingClient struct {
	*memstore.Store
	onGet func()
}

func (r *racingClient) Get(ctx context.Context, index, id string) (*repository.Document, error) {
	doc, err := r.Store.Get(ctx, index, id)
	if r.onGet != nil {
		fn := r.onGet
		r.onGet = nil
		fn()
	}
	return doc, err
}

func TestCacheSkipsStaleReadThrough(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := memstore.New()
	client := &racingClient{Store: store}
	kv := newMapKV()
	cache := redis.NewCache(client, kv)

	_, err := store.Index(ctx, "notes", "n1", map[string]any{"title": "old"})
	require.NoError(t, err)

	client.onGet = func() {
		_, err := cache.Index(ctx, "notes", "n1", map[string]any{"title": "new"})
		require.NoError(t, err)
	}
	doc, err := cache.Get(ctx, "notes", "n1")
	require.NoError(t, err)
	assert.Equal(t, "old", doc.Source["title"])
	assert.Empty(t, kv.keys(), "stale read is not cached")

	doc, err = cache.Get(ctx, "notes", "n1")
	require.NoError(t, err)
	assert.Equal(t, "new", doc.Source["title"])
	assert.Len(t, kv.keys(), 1)
}

func TestCacheSkipsReadThroughAfterIndexInvalidation(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := memstore.New()
	client := &racingClient{Store: store}
	kv := newMapKV()
	cache := redis.NewCache(client, kv)

	_, err := store.Index(ctx, "notes", "n1", map[string]any{"title": "old"})
	require.NoError(t, err)

	client.onGet = func() {
		_, err := cache.DeleteIndex(ctx, "notes")
		require.NoError(t, err)
	}
	_, err = cache.Get(ctx, "notes", "n1")
	require.NoError(t, err)
	assert.Empty(t, kv.keys())
}

// bareClient hides the optional capabilities of the wrapped store.
type bareClient struct{ repository.Client }

func TestCacheUnsupportedCapabilities(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	cache := redis.NewCache(bareClient{memstore.New()}, newMapKV())

	_, err := cache.Count(ctx, "notes", nil)
	assert.ErrorIs(t, err, repository.ErrUnsupported)
	_, err = cache.Update(ctx, "notes", "n1", map[string]any{})
	assert.ErrorIs(t, err, repository.ErrUnsupported)
	assert.ErrorIs(t, cache.CreateIndex(ctx, "notes", nil), repository.ErrUnsupported)
	_, err = cache.DeleteIndex(ctx, "notes")
	assert.ErrorIs(t, err, repository.ErrUnsupported)
	assert.ErrorIs(t, cache.Refresh(ctx, "notes"), repository.ErrUnsupported)
}
