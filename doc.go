// Package searchkit is a repository-pattern persistence layer over document
// stores and search engines.
//
// The core lives in pkg/repository: a generic Repository[T] binds a Go type to
// one index and delegates transport to an injected repository.Client. Clients
// are provided for OpenSearch (pkg/opensearch), MongoDB (pkg/mongo),
// PostgreSQL JSONB (pkg/pg), Typesense (pkg/typesense) and an in-process store
// (pkg/memstore). Clients can be decorated with a Redis read-through cache
// (pkg/redis) and with logging, metrics and tracing (pkg/instrumentation).
//
// Basic usage:
//
//	type Note struct {
//		ID    string `json:"-"`
//		Title string `json:"title"`
//	}
//
//	func (n *Note) SetMeta(m repository.Meta) { n.ID = m.ID }
//
//	store, err := opensearch.NewFromEnv(ctx)
//	if err != nil {
//		return err
//	}
//	notes := repository.New[Note](repository.Options{
//		Client:    instrumentation.Wrap(store, instrumentation.WithBackend("opensearch")),
//		IndexName: "notes",
//	})
//
//	res, err := notes.Save(ctx, "", Note{Title: "hello"})
//	note, err := notes.Find(ctx, res.ID)
//
// Configuration for every backend is read from the environment through
// pkg/config, and structured logging uses log/slog loggers built by pkg/logger.
package searchkit
