package redis

import (
	"context"
	"encoding/json"
	"errors"
	"hash/fnv"
	"log/slog"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/dmitrymomot/searchkit/pkg/logger"
	"github.com/dmitrymomot/searchkit/pkg/repository"
)

// KV is the key/value contract the cache needs. *Storage implements it.
type KV interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, val []byte, exp time.Duration) error
	Delete(ctx context.Context, keys ...string) error
	DeletePrefix(ctx context.Context, prefix string) error
}

// Cache is a read-through repository.Client decorator. Get results are cached
// per index and id; writes and deletes through the cache invalidate the entry
// and DeleteIndex drops every entry of the index. Search, Count and index
// management always reach the wrapped client.
//
// Cache failures never fail a request: they are logged and the wrapped client
// answers instead.
//
// A Get that misses does not store its result when a write through the same
// Cache invalidated the key while the backend was being read. Writes made by
// other processes or other Cache values are only seen after the TTL expires.
type Cache struct {
	next   repository.Client
	kv     KV
	ttl    time.Duration
	prefix string
	log    *slog.Logger

	// gens counts invalidations per key stripe; indexGen counts index-wide ones.
	gens     [genStripes]atomic.Uint64
	indexGen atomic.Uint64
}

const genStripes = 256

// CacheOption configures a Cache.
type CacheOption func(*Cache)

// WithTTL sets the lifetime of cached documents. Zero keeps them until invalidated.
func WithTTL(ttl time.Duration) CacheOption {
	return func(c *Cache) { c.ttl = ttl }
}

// WithKeyPrefix namespaces cache keys.
func WithKeyPrefix(prefix string) CacheOption {
	return func(c *Cache) { c.prefix = prefix }
}

// WithLogger sets the logger used to report cache failures.
func WithLogger(log *slog.Logger) CacheOption {
	return func(c *Cache) {
		if log != nil {
			c.log = log
		}
	}
}

// NewCache wraps next with a read-through cache stored in kv.
func NewCache(next repository.Client, kv KV, opts ...CacheOption) *Cache {
	c := &Cache{
		next:   next,
		kv:     kv,
		ttl:    5 * time.Minute,
		prefix: "searchkit:",
		log:    slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type cachedDoc struct {
	ID          string         `json:"id"`
	Index       string         `json:"index"`
	Source      map[string]any `json:"source"`
	Version     int64          `json:"version,omitempty"`
	SeqNo       int64          `json:"seq_no,omitempty"`
	PrimaryTerm int64          `json:"primary_term,omitempty"`
}

// indexPrefix length-prefixes the index name so that index "a" with id "b:c"
// and index "a:b" with id "c" never share a key.
func (c *Cache) indexPrefix(index string) string {
	return c.prefix + "doc:" + strconv.Itoa(len(index)) + ":" + index + ":"
}

func (c *Cache) key(index, id string) string {
	return c.indexPrefix(index) + id
}

func (c *Cache) Get(ctx context.Context, index, id string) (*repository.Document, error) {
	key := c.key(index, id)
	if doc, err := c.lookup(ctx, key, index, id); err != nil {
		c.log.WarnContext(ctx, "cache read failed",
			logger.Component("redis_cache"), logger.Index(index), logger.DocumentID(id), logger.Error(err))
	} else if doc != nil {
		return doc, nil
	}

	gen := c.generation(key)
	doc, err := c.next.Get(ctx, index, id)
	if err != nil {
		return nil, err
	}
	if c.generation(key) != gen {
		return doc, nil
	}
	c.store(ctx, key, doc)
	if c.generation(key) != gen {
		// An invalidation raced with the write above.
		_ = c.kv.Delete(ctx, key)
	}
	return doc, nil
}

func (c *Cache) stripe(key string) *atomic.Uint64 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return &c.gens[h.Sum32()%genStripes]
}

func (c *Cache) generation(key string) uint64 {
	return c.stripe(key).Load() + c.indexGen.Load()
}

func (c *Cache) lookup(ctx context.Context, key, index, id string) (*repository.Document, error) {
	raw, err := c.kv.Get(ctx, key)
	if err != nil || raw == nil {
		return nil, err
	}
	var cd struct {
		cachedDoc
		Source json.RawMessage `json:"source"`
	}
	if err := json.Unmarshal(raw, &cd); err != nil {
		_ = c.kv.Delete(ctx, key)
		return nil, errors.Join(ErrCacheCorrupted, err)
	}
	if cd.Index != index || cd.ID != id {
		return nil, nil
	}
	source := map[string]any{}
	if len(cd.Source) > 0 && string(cd.Source) != "null" {
		if source, err = repository.DecodeBody(cd.Source); err != nil {
			_ = c.kv.Delete(ctx, key)
			return nil, errors.Join(ErrCacheCorrupted, err)
		}
	}
	return &repository.Document{
		ID:          cd.ID,
		Index:       cd.Index,
		Source:      source,
		Version:     cd.Version,
		SeqNo:       cd.SeqNo,
		PrimaryTerm: cd.PrimaryTerm,
	}, nil
}

func (c *Cache) store(ctx context.Context, key string, doc *repository.Document) {
	raw, err := json.Marshal(cachedDoc{
		ID:          doc.ID,
		Index:       doc.Index,
		Source:      doc.Source,
		Version:     doc.Version,
		SeqNo:       doc.SeqNo,
		PrimaryTerm: doc.PrimaryTerm,
	})
	if err == nil {
		err = c.kv.Set(ctx, key, raw, c.ttl)
	}
	if err != nil {
		c.log.WarnContext(ctx, "cache write failed",
			logger.Component("redis_cache"), logger.Index(doc.Index), logger.DocumentID(doc.ID), logger.Error(err))
	}
}

func (c *Cache) invalidate(ctx context.Context, index, id string) {
	if id == "" {
		return
	}
	key := c.key(index, id)
	c.stripe(key).Add(1)
	if err := c.kv.Delete(ctx, key); err != nil {
		c.log.WarnContext(ctx, "cache invalidation failed",
			logger.Component("redis_cache"), logger.Index(index), logger.DocumentID(id), logger.Error(err))
	}
}

func (c *Cache) invalidateIndex(ctx context.Context, index string) {
	c.indexGen.Add(1)
	if err := c.kv.DeletePrefix(ctx, c.indexPrefix(index)); err != nil {
		c.log.WarnContext(ctx, "cache invalidation failed",
			logger.Component("redis_cache"), logger.Index(index), logger.Error(err))
	}
}

func (c *Cache) Index(ctx context.Context, index, id string, body map[string]any) (repository.PersistResult, error) {
	res, err := c.next.Index(ctx, index, id, body)
	c.invalidate(ctx, index, id)
	return res, err
}

func (c *Cache) Delete(ctx context.Context, index, id string) (bool, error) {
	deleted, err := c.next.Delete(ctx, index, id)
	c.invalidate(ctx, index, id)
	return deleted, err
}

// Update uses the wrapped client's Updater and returns repository.ErrUnsupported
// when it has none, leaving the merge to the repository.
func (c *Cache) Update(ctx context.Context, index, id string, partial map[string]any) (repository.PersistResult, error) {
	u, ok := c.next.(repository.Updater)
	if !ok {
		return repository.PersistResult{}, repository.ErrUnsupported
	}
	res, err := u.Update(ctx, index, id, partial)
	c.invalidate(ctx, index, id)
	return res, err
}

func (c *Cache) IndexExists(ctx context.Context, index string) (bool, error) {
	return c.next.IndexExists(ctx, index)
}

func (c *Cache) Search(ctx context.Context, index string, query any) (*repository.SearchResult, error) {
	return c.next.Search(ctx, index, query)
}

func (c *Cache) PutMapping(ctx context.Context, index string, mapping map[string]any) error {
	return c.next.PutMapping(ctx, index, mapping)
}

func (c *Cache) PutSettings(ctx context.Context, index string, settings map[string]any) error {
	return c.next.PutSettings(ctx, index, settings)
}

func (c *Cache) Count(ctx context.Context, index string, query any) (int64, error) {
	if counter, ok := c.next.(repository.Counter); ok {
		return counter.Count(ctx, index, query)
	}
	return 0, repository.ErrUnsupported
}

func (c *Cache) CreateIndex(ctx context.Context, index string, body map[string]any) error {
	im, ok := c.next.(repository.IndexManager)
	if !ok {
		return repository.ErrUnsupported
	}
	c.invalidateIndex(ctx, index)
	return im.CreateIndex(ctx, index, body)
}

func (c *Cache) DeleteIndex(ctx context.Context, index string) (bool, error) {
	im, ok := c.next.(repository.IndexManager)
	if !ok {
		return false, repository.ErrUnsupported
	}
	deleted, err := im.DeleteIndex(ctx, index)
	c.invalidateIndex(ctx, index)
	return deleted, err
}

func (c *Cache) Refresh(ctx context.Context, index string) error {
	if im, ok := c.next.(repository.IndexManager); ok {
		return im.Refresh(ctx, index)
	}
	return repository.ErrUnsupported
}
