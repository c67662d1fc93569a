// Package repository implements the repository pattern over document stores.
// A Repository binds a Go type to one backend index and exposes save, find,
// delete and search operations while the actual transport is delegated to an
// injected Client.
//
// The package is built from three cooperating parts:
//
//   - Config – resolves the client, index name, document type, mapping and
//     settings from instance Options, then from the owning type's declared
//     defaults (optional *Declarer interfaces), then from built-in fallbacks.
//     Each value is resolved once and cached.
//
//   - Codec – turns domain values into document bodies and documents back into
//     values. Repository[Source] returns raw mappings merged with the document
//     id and version; any other type parameter gets typed values.
//
//   - Repository – the façade. Every call is one synchronous request to the
//     client; nothing is retried or batched.
//
// Clients for OpenSearch, MongoDB, PostgreSQL, Typesense and an in-memory store
// live in sibling packages. pkg/redis and pkg/instrumentation provide Client
// decorators for caching and observability.
//
// # Usage
//
//	type Note struct {
//	    ID    string `json:"-"`
//	    Title string `json:"title"`
//	}
//
//	func (n *Note) SetMeta(m repository.Meta) { n.ID = m.ID }
//
//	notes := repository.New[Note](repository.Options{
//	    Client:    client,
//	    IndexName: "notes",
//	}, func(r *repository.Repository[Note]) {
//	    r.Mapping().Indexes("title", map[string]any{"type": "text"})
//	})
//
//	if err := notes.CreateIndex(ctx, false); err != nil {
//	    // handle error
//	}
//
//	res, err := notes.Save(ctx, "", Note{Title: "A"})
//	note, err := notes.Find(ctx, res.ID)
//
//	results, err := notes.Search(ctx, map[string]any{
//	    "query": map[string]any{"match": map[string]any{"title": "a"}},
//	})
//	for note, err := range results.All() {
//	    // ...
//	}
//
// # Declared defaults
//
// Options.Defaults accepts any value. Implementing ClientDeclarer,
// IndexNameDeclarer, DocumentTypeDeclarer, MappingDeclarer or SettingsDeclarer
// lets a type carry defaults shared by every repository created for it:
//
//	type noteDefaults struct{}
//
//	func (noteDefaults) DeclaredIndexName() string { return "notes" }
//
// # Error Handling
//
// Errors can be inspected with errors.Is:
//
//   - ErrConfig – no client, mapping or settings where one is required.
//   - ErrNotFound – Find on a missing id.
//   - ErrStore – the backend rejected a write; errors.As with *BackendError
//     exposes the backend status and reason.
//   - ErrBackendUnavailable – transport failure reported by the client.
//
// FindMany omits missing ids instead of failing and Delete reports false for
// missing documents.
//
// # Search Results
//
// Search returns *Results, a single-pass sequence decoding hits on demand.
// Iterating it a second time yields ErrResultsConsumed. No further backend
// requests are made while iterating.
package repository
