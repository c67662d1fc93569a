// Package opensearch connects to OpenSearch and exposes the cluster as a
// repository client.
//
// New builds a *opensearch.Client from Config and performs an initial
// Healthcheck. NewStore adapts any opensearchapi.Transport (the client itself)
// to repository.Client together with the optional IndexManager, Counter and
// Updater capabilities:
//
//	client, err := opensearch.New(ctx, opensearch.Config{
//	    Addresses: []string{"https://localhost:9200"},
//	    Username:  "admin",
//	    Password:  "admin",
//	})
//	if err != nil {
//	    // errors.Is(err, opensearch.ErrConnectionFailed) or ErrHealthcheckFailed
//	}
//
//	notes := repository.New[Note](repository.Options{
//	    Client:    opensearch.NewStore(client, opensearch.WithRefresh("wait_for")),
//	    IndexName: "notes",
//	})
//
// NewFromEnv does the same from OPENSEARCH_* environment variables.
//
// # Error Handling
//
// Error responses become *repository.BackendError values carrying the HTTP
// status and the type and reason reported by the cluster. Missing documents and
// indices are additionally joined with repository.ErrNotFound; transport
// failures are joined with repository.ErrBackendUnavailable.
//
// Queries are sent as is. Strings, byte slices and readers are used verbatim,
// anything else is JSON encoded. Count strips everything but the query clause.
package opensearch
