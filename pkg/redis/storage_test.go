package redis_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/searchkit/pkg/memstore"
	"github.com/dmitrymomot/searchkit/pkg/redis"
)

func liveStorage(t *testing.T) *redis.Storage {
	t.Helper()
	url := os.Getenv("REDIS_URL")
	if url == "" {
		t.Skip("REDIS_URL is not set")
	}
	client, err := redis.Connect(t.Context(), redis.Config{
		ConnectionURL:  url,
		RetryAttempts:  1,
		ConnectTimeout: 5 * time.Second,
	})
	require.NoError(t, err)
	storage := redis.NewStorage(client)
	t.Cleanup(func() { _ = storage.Close() })
	return storage
}

func TestConnectInvalidURL(t *testing.T) {
	t.Parallel()
	_, err := redis.Connect(context.Background(), redis.Config{
		ConnectionURL:  "://bad",
		ConnectTimeout: time.Second,
	})
	assert.ErrorIs(t, err, redis.ErrFailedToParseRedisConnString)
}

func TestConnectUnreachable(t *testing.T) {
	t.Parallel()
	_, err := redis.Connect(context.Background(), redis.Config{
		ConnectionURL:  "redis://127.0.0.1:1/0",
		RetryAttempts:  2,
		RetryInterval:  10 * time.Millisecond,
		ConnectTimeout: 2 * time.Second,
	})
	assert.ErrorIs(t, err, redis.ErrRedisNotReady)
}

func TestStorage(t *testing.T) {
	storage := liveStorage(t)
	ctx := t.Context()
	prefix := "searchkit-test:" + uuid.NewString() + ":"

	val, err := storage.Get(ctx, prefix+"missing")
	require.NoError(t, err)
	assert.Nil(t, val)

	require.NoError(t, storage.Set(ctx, prefix+"a", []byte("1"), time.Minute))
	require.NoError(t, storage.Set(ctx, prefix+"b", []byte("2"), time.Minute))
	val, err = storage.Get(ctx, prefix+"a")
	require.NoError(t, err)
	assert.Equal(t, []byte("1"), val)

	require.NoError(t, storage.Delete(ctx, prefix+"a", ""))
	val, err = storage.Get(ctx, prefix+"a")
	require.NoError(t, err)
	assert.Nil(t, val)

	require.NoError(t, storage.DeletePrefix(ctx, prefix))
	val, err = storage.Get(ctx, prefix+"b")
	require.NoError(t, err)
	assert.Nil(t, val)

	require.NoError(t, redis.Healthcheck(storage.Conn())(ctx))
}

func TestCacheLive(t *testing.T) {
	storage := liveStorage(t)
	ctx := t.Context()
	prefix := "searchkit-test:" + uuid.NewString() + ":"
	t.Cleanup(func() { _ = storage.DeletePrefix(context.Background(), prefix) })

	store := memstore.New()
	cache := redis.NewCache(store, storage, redis.WithKeyPrefix(prefix))

	_, err := cache.Index(ctx, "notes", "n1", map[string]any{"title": "A", "views": 2})
	require.NoError(t, err)
	for range 2 {
		doc, err := cache.Get(ctx, "notes", "n1")
		require.NoError(t, err)
		assert.Equal(t, int64(2), doc.Source["views"])
	}
	assert.Equal(t, 1, store.Calls("get"))
}
