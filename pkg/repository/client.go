package repository

import "context"

// Client is the transport capability a repository delegates to. Implementations
// live next to their drivers (pkg/opensearch, pkg/mongo, pkg/pg, pkg/typesense,
// pkg/memstore) and must be safe for concurrent use.
//
// Get returns an error matching ErrNotFound when the document is absent. Writes
// rejected by the backend return *BackendError. Transport failures are joined
// with ErrBackendUnavailable.
type Client interface {
	IndexExists(ctx context.Context, index string) (bool, error)
	Get(ctx context.Context, index, id string) (*Document, error)
	// Index creates or replaces a document. An empty id asks the backend to
	// assign one.
	Index(ctx context.Context, index, id string, body map[string]any) (PersistResult, error)
	// Delete reports false when the document did not exist.
	Delete(ctx context.Context, index, id string) (bool, error)
	// Search submits a backend-native query object as is.
	Search(ctx context.Context, index string, query any) (*SearchResult, error)
	PutMapping(ctx context.Context, index string, mapping map[string]any) error
	PutSettings(ctx context.Context, index string, settings map[string]any) error
}

// IndexManager is implemented by clients able to create, drop and refresh indices.
type IndexManager interface {
	CreateIndex(ctx context.Context, index string, body map[string]any) error
	DeleteIndex(ctx context.Context, index string) (bool, error)
	Refresh(ctx context.Context, index string) error
}

// Counter is implemented by clients able to count documents matching a query.
type Counter interface {
	Count(ctx context.Context, index string, query any) (int64, error)
}

// Updater is implemented by clients supporting partial document updates.
type Updater interface {
	Update(ctx context.Context, index, id string, partial map[string]any) (PersistResult, error)
}

// Document is the stored representation of a domain object.
type Document struct {
	ID          string
	Index       string
	Source      map[string]any
	Version     int64
	Score       *float64
	SeqNo       int64
	PrimaryTerm int64
}

// PersistResult describes the outcome of a write.
type PersistResult struct {
	ID      string
	Version int64
	// Result is the backend's verdict, e.g. "created" or "updated".
	Result string
}

// SearchResult is the raw response of a search request.
type SearchResult struct {
	Hits         []Document
	Total        int64
	Aggregations map[string]any
}
