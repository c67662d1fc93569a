package repository

import (
	"context"
	"errors"
	"maps"
	"strings"

	"github.com/dmitrymomot/searchkit/pkg/logger"
)

// Repository binds the domain type T to one backend index. Use Repository[Source]
// to work with raw mappings.
type Repository[T any] struct {
	cfg   *Config
	codec Codec[T]
}

// New creates a repository and runs setup functions against it, which is the
// place to declare mapping and settings. New never talks to the backend.
func New[T any](opts Options, setup ...func(*Repository[T])) *Repository[T] {
	r := &Repository[T]{cfg: newConfig(opts)}
	for _, fn := range setup {
		if fn != nil {
			fn(r)
		}
	}
	return r
}

// Config returns the resolved configuration.
func (r *Repository[T]) Config() *Config { return r.cfg }

// Client returns the resolved client.
func (r *Repository[T]) Client() Client { return r.cfg.Client() }

// IndexName returns the resolved index name.
func (r *Repository[T]) IndexName() string { return r.cfg.IndexName() }

// DocumentType returns the resolved document type.
func (r *Repository[T]) DocumentType() string { return r.cfg.DocumentType() }

// Mapping returns the resolved mapping for inspection or declaration.
func (r *Repository[T]) Mapping() *Mapping { return r.cfg.Mapping() }

// Settings returns the resolved settings for inspection or declaration.
func (r *Repository[T]) Settings() *Settings { return r.cfg.Settings() }

// Serialize converts v to a document body.
func (r *Repository[T]) Serialize(v any) (map[string]any, error) { return r.codec.Serialize(v) }

// Deserialize converts a document to T.
func (r *Repository[T]) Deserialize(doc Document) (T, error) { return r.codec.Deserialize(doc) }

func (r *Repository[T]) client() (Client, error) {
	c := r.cfg.Client()
	if c == nil {
		return nil, errors.Join(ErrConfig, errors.New("no client configured for index "+r.IndexName()))
	}
	return c, nil
}

// IndexExists reports whether the index exists.
func (r *Repository[T]) IndexExists(ctx context.Context) (bool, error) {
	c, err := r.client()
	if err != nil {
		return false, err
	}
	return c.IndexExists(ctx, r.IndexName())
}

// Save creates or replaces a document. With an empty id the id is taken from
// v when it implements Identifier, otherwise the backend assigns one.
func (r *Repository[T]) Save(ctx context.Context, id string, v any) (PersistResult, error) {
	c, err := r.client()
	if err != nil {
		return PersistResult{}, err
	}
	body, err := r.codec.Serialize(v)
	if err != nil {
		return PersistResult{}, err
	}
	if id == "" {
		if ident, ok := v.(Identifier); ok {
			id = ident.DocumentID()
		}
	}

	res, err := c.Index(ctx, r.IndexName(), id, body)
	if err != nil {
		r.cfg.Logger().DebugContext(ctx, "save failed",
			logger.Index(r.IndexName()), logger.DocumentID(id), logger.Error(err))
		return PersistResult{}, storeError(err)
	}
	return res, nil
}

// Find fetches one document. It returns ErrNotFound when the document is absent.
func (r *Repository[T]) Find(ctx context.Context, id string) (T, error) {
	var zero T
	c, err := r.client()
	if err != nil {
		return zero, err
	}
	doc, err := c.Get(ctx, r.IndexName(), id)
	if err != nil {
		return zero, notFound(err)
	}
	return r.codec.Deserialize(*doc)
}

// FindMany fetches documents in the order of ids. Ids that do not exist are
// omitted from the result; any other failure aborts the call.
func (r *Repository[T]) FindMany(ctx context.Context, ids ...string) ([]T, error) {
	c, err := r.client()
	if err != nil {
		return nil, err
	}
	out := make([]T, 0, len(ids))
	for _, id := range ids {
		doc, err := c.Get(ctx, r.IndexName(), id)
		if err != nil {
			if IsNotFound(err) {
				r.cfg.Logger().DebugContext(ctx, "document omitted from bulk find",
					logger.Index(r.IndexName()), logger.DocumentID(id))
				continue
			}
			return nil, err
		}
		v, err := r.codec.Deserialize(*doc)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// Exists reports whether a document with the given id exists.
func (r *Repository[T]) Exists(ctx context.Context, id string) (bool, error) {
	c, err := r.client()
	if err != nil {
		return false, err
	}
	if _, err := c.Get(ctx, r.IndexName(), id); err != nil {
		if IsNotFound(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// Delete removes a document. It returns false when the document was already absent.
func (r *Repository[T]) Delete(ctx context.Context, id string) (bool, error) {
	c, err := r.client()
	if err != nil {
		return false, err
	}
	deleted, err := c.Delete(ctx, r.IndexName(), id)
	if err != nil {
		if IsNotFound(err) {
			return false, nil
		}
		return false, err
	}
	return deleted, nil
}

// Update merges partial into the stored document. Clients implementing Updater
// perform the merge server side; otherwise the document is read, merged and
// written back, which is not atomic.
func (r *Repository[T]) Update(ctx context.Context, id string, partial any) (PersistResult, error) {
	c, err := r.client()
	if err != nil {
		return PersistResult{}, err
	}
	body, err := r.codec.Serialize(partial)
	if err != nil {
		return PersistResult{}, err
	}

	if u, ok := c.(Updater); ok {
		res, err := u.Update(ctx, r.IndexName(), id, body)
		switch {
		case err == nil:
			return res, nil
		case IsNotFound(err):
			return PersistResult{}, notFound(err)
		case !errors.Is(err, ErrUnsupported):
			return PersistResult{}, storeError(err)
		}
	}

	doc, err := c.Get(ctx, r.IndexName(), id)
	if err != nil {
		return PersistResult{}, notFound(err)
	}
	merged := maps.Clone(doc.Source)
	if merged == nil {
		merged = make(map[string]any, len(body))
	}
	maps.Copy(merged, body)
	res, err := c.Index(ctx, r.IndexName(), id, merged)
	if err != nil {
		return PersistResult{}, storeError(err)
	}
	return res, nil
}

// Search submits query to the backend as is and wraps the hits in a lazy sequence.
func (r *Repository[T]) Search(ctx context.Context, query any) (*Results[T], error) {
	c, err := r.client()
	if err != nil {
		return nil, err
	}
	res, err := c.Search(ctx, r.IndexName(), query)
	if err != nil {
		return nil, err
	}
	return newResults[T](res), nil
}

// Count returns the number of documents matching query. Clients without the
// Counter capability are asked to search and the reported total is used.
func (r *Repository[T]) Count(ctx context.Context, query any) (int64, error) {
	c, err := r.client()
	if err != nil {
		return 0, err
	}
	if counter, ok := c.(Counter); ok {
		n, err := counter.Count(ctx, r.IndexName(), query)
		if !errors.Is(err, ErrUnsupported) {
			return n, err
		}
	}
	res, err := c.Search(ctx, r.IndexName(), query)
	if err != nil {
		return 0, err
	}
	return res.Total, nil
}

// CreateIndex creates the index with the resolved mapping and settings. With
// force an existing index is deleted first; without it an existing index is left
// untouched.
func (r *Repository[T]) CreateIndex(ctx context.Context, force bool) error {
	c, err := r.client()
	if err != nil {
		return err
	}
	im, ok := c.(IndexManager)
	if !ok {
		return errors.Join(ErrUnsupported, errors.New("client cannot create indices"))
	}

	if force {
		if _, err := im.DeleteIndex(ctx, r.IndexName()); err != nil && !IsNotFound(err) {
			return err
		}
	} else {
		exists, err := c.IndexExists(ctx, r.IndexName())
		if err != nil {
			return err
		}
		if exists {
			return nil
		}
	}

	body := map[string]any{}
	if s := r.Settings(); !s.IsEmpty() {
		body["settings"] = s.Body()
	}
	if m := r.Mapping(); !m.IsEmpty() {
		body["mappings"] = m.Body()
	}
	if err := im.CreateIndex(ctx, r.IndexName(), body); err != nil {
		return storeError(err)
	}
	r.cfg.Logger().InfoContext(ctx, "index created",
		logger.Index(r.IndexName()), logger.Operation("create_index"))
	return nil
}

// DeleteIndex drops the index. It returns false when the index did not exist.
func (r *Repository[T]) DeleteIndex(ctx context.Context) (bool, error) {
	c, err := r.client()
	if err != nil {
		return false, err
	}
	im, ok := c.(IndexManager)
	if !ok {
		return false, errors.Join(ErrUnsupported, errors.New("client cannot delete indices"))
	}
	deleted, err := im.DeleteIndex(ctx, r.IndexName())
	if err != nil {
		if IsNotFound(err) {
			return false, nil
		}
		return false, err
	}
	return deleted, nil
}

// RefreshIndex makes recent writes visible to search on backends with
// near-real-time search.
func (r *Repository[T]) RefreshIndex(ctx context.Context) error {
	c, err := r.client()
	if err != nil {
		return err
	}
	im, ok := c.(IndexManager)
	if !ok {
		return nil
	}
	if err := im.Refresh(ctx, r.IndexName()); err != nil && !errors.Is(err, ErrUnsupported) {
		return err
	}
	return nil
}

// PutMapping sends the resolved mapping to the backend.
func (r *Repository[T]) PutMapping(ctx context.Context) error {
	c, err := r.client()
	if err != nil {
		return err
	}
	m := r.Mapping()
	if m.IsEmpty() {
		return errors.Join(ErrConfig, errors.New("no mapping declared for index "+r.IndexName()))
	}
	if err := c.PutMapping(ctx, r.IndexName(), m.Body()); err != nil {
		return storeError(err)
	}
	return nil
}

// PutSettings sends the resolved settings to the backend.
func (r *Repository[T]) PutSettings(ctx context.Context) error {
	c, err := r.client()
	if err != nil {
		return err
	}
	s := r.Settings()
	if s.IsEmpty() {
		return errors.Join(ErrConfig, errors.New("no settings declared for index "+r.IndexName()))
	}
	if err := c.PutSettings(ctx, r.IndexName(), s.Body()); err != nil {
		return storeError(err)
	}
	return nil
}

// String identifies the repository in logs.
func (r *Repository[T]) String() string {
	var b strings.Builder
	b.WriteString("repository(")
	b.WriteString(r.IndexName())
	if dt := r.DocumentType(); dt != "" {
		b.WriteString("/")
		b.WriteString(dt)
	}
	b.WriteString(")")
	return b.String()
}
