package mongo_test

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/dmitrymomot/searchkit/pkg/mongo"
	"github.com/dmitrymomot/searchkit/pkg/repository"
)

type article struct {
	ID      string   `json:"-"`
	Version int64    `json:"-"`
	Title   string   `json:"title"`
	Tags    []string `json:"tags"`
	Views   int64    `json:"views"`
}

func (a *article) SetMeta(m repository.Meta) {
	a.ID = m.ID
	a.Version = m.Version
}

func newLiveStore(t *testing.T) *mongo.Store {
	t.Helper()
	url := os.Getenv("MONGODB_URL")
	if url == "" {
		t.Skip("MONGODB_URL is not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	db, err := mongo.NewWithDatabase(ctx, mongo.Config{
		ConnectionURL:  url,
		ConnectTimeout: 5 * time.Second,
		MaxPoolSize:    10,
		RetryAttempts:  1,
	}, fmt.Sprintf("searchkit_test_%d", time.Now().UnixNano()))
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = db.Drop(context.Background())
		_ = db.Client().Disconnect(context.Background())
	})
	return mongo.NewStore(db)
}

func TestStoreRoundTrip(t *testing.T) {
	store := newLiveStore(t)
	ctx := t.Context()
	articles := repository.New[article](repository.Options{Client: store, IndexName: "articles"})

	res, err := articles.Save(ctx, "", article{Title: "Go", Tags: []string{"lang"}, Views: 1})
	require.NoError(t, err)
	assert.NotEmpty(t, res.ID)
	assert.Equal(t, int64(1), res.Version)
	assert.Equal(t, "created", res.Result)

	res, err = articles.Save(ctx, res.ID, article{Title: "Go 1.24", Tags: []string{"lang"}, Views: 2})
	require.NoError(t, err)
	assert.Equal(t, int64(2), res.Version)

	got, err := articles.Find(ctx, res.ID)
	require.NoError(t, err)
	assert.Equal(t, article{ID: res.ID, Version: 2, Title: "Go 1.24", Tags: []string{"lang"}, Views: 2}, got)

	_, err = articles.Find(ctx, "missing")
	assert.ErrorIs(t, err, repository.ErrNotFound)

	upd, err := articles.Update(ctx, res.ID, map[string]any{"views": 10})
	require.NoError(t, err)
	assert.Equal(t, int64(3), upd.Version)

	_, err = articles.Update(ctx, "missing", map[string]any{"views": 10})
	assert.ErrorIs(t, err, repository.ErrNotFound)

	deleted, err := articles.Delete(ctx, res.ID)
	require.NoError(t, err)
	assert.True(t, deleted)
	deleted, err = articles.Delete(ctx, res.ID)
	require.NoError(t, err)
	assert.False(t, deleted)
}

func TestStoreSearch(t *testing.T) {
	store := newLiveStore(t)
	ctx := t.Context()
	articles := repository.New[repository.Source](repository.Options{Client: store, IndexName: "articles"})

	for i, tag := range []string{"go", "go", "rust"} {
		_, err := articles.Save(ctx, fmt.Sprintf("a%d", i), map[string]any{"tag": tag, "rank": i})
		require.NoError(t, err)
	}

	res, err := articles.Search(ctx, mongo.Query{
		Filter: bson.D{{Key: "tag", Value: "go"}},
		Sort:   bson.D{{Key: "rank", Value: -1}},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), res.Total())
	docs, err := res.Collect()
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "a1", docs[0][repository.MetaID])
	assert.Equal(t, int64(1), docs[0]["rank"])

	n, err := articles.Count(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	found, err := articles.FindMany(ctx, "a2", "nope", "a0")
	require.NoError(t, err)
	require.Len(t, found, 2)
	assert.Equal(t, "a2", found[0][repository.MetaID])
}

func TestStoreIndexManagement(t *testing.T) {
	store := newLiveStore(t)
	ctx := t.Context()
	articles := repository.New[repository.Source](repository.Options{Client: store, IndexName: "articles"},
		func(r *repository.Repository[repository.Source]) {
			r.Mapping().Indexes("title", map[string]any{"type": "text"})
			r.Settings().Set("number_of_shards", 1)
		})

	exists, err := articles.IndexExists(ctx)
	require.NoError(t, err)
	assert.False(t, exists)

	require.NoError(t, articles.CreateIndex(ctx, false))
	require.NoError(t, articles.CreateIndex(ctx, false))

	mapping, settings, err := store.Schema(ctx, "articles")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"properties": map[string]any{"title": map[string]any{"type": "text"}}}, mapping)
	assert.Equal(t, map[string]any{"number_of_shards": int64(1)}, settings)

	articles.Mapping().Indexes("tags", map[string]any{"type": "keyword"})
	require.NoError(t, articles.PutMapping(ctx))
	mapping, _, err = store.Schema(ctx, "articles")
	require.NoError(t, err)
	assert.Len(t, mapping["properties"], 2)

	deleted, err := articles.DeleteIndex(ctx)
	require.NoError(t, err)
	assert.True(t, deleted)
	deleted, err = articles.DeleteIndex(ctx)
	require.NoError(t, err)
	assert.False(t, deleted)
}
