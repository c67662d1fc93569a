// Package typesense exposes Typesense collections as a repository client.
//
// New builds a *typesense.Client from Config and checks /health. NewStore
// adapts the client to repository.Client, IndexManager and Counter:
//
//	client, err := typesense.New(ctx, typesense.Config{
//	    URL:    "http://localhost:8108",
//	    APIKey: "xyz",
//	})
//	products := repository.New[Product](repository.Options{
//	    Client:    typesense.NewStore(client),
//	    IndexName: "products",
//	})
//
// Search takes *api.SearchCollectionParams; a nil query is a wildcard search.
// Typesense does not version documents, so versions are always zero.
//
// CreateIndex derives collection fields from the mapping properties, mapping
// common types (text, keyword, long, double, boolean) to their Typesense
// equivalents. Collection settings cannot be changed after creation, so
// PutSettings returns repository.ErrUnsupported.
package typesense
