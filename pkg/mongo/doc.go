// Package mongo connects to MongoDB and exposes a database as a repository
// client.
//
// New connects with retries and pings the server; NewWithDatabase returns a
// *mongo.Database directly. Config is populated from MONGODB_* environment
// variables through pkg/config.
//
// # Store
//
// NewStore adapts a database to repository.Client. Every index is a
// collection; documents keep their source fields at the top level next to _id
// and a _version counter incremented on every write:
//
//	db, err := mongo.NewWithDatabase(ctx, cfg, "app")
//	if err != nil {
//		return err
//	}
//	notes := repository.New[Note](repository.Options{
//		Client:    mongo.NewStore(db),
//		IndexName: "notes",
//	})
//
// Save replaces the document and bumps its version in a single
// FindOneAndUpdate with upsert. Update sets individual fields.
//
// Search takes a Query (filter, sort, skip, limit) or a bare filter document.
// Mappings and settings have no server side meaning in MongoDB; they are
// recorded per index in the _indices collection and can be read back with
// Store.Schema.
//
// # Error Handling
//
// Network errors and timeouts are joined with repository.ErrBackendUnavailable.
// Server rejections become *repository.BackendError; duplicate keys report
// status 409.
package mongo
