// Package pg stores repository documents in PostgreSQL as JSONB rows.
//
// Connect opens a pgx connection pool with retries; Healthcheck returns a
// probe function. Migrate applies the embedded goose migrations, which create
// two tables:
//
//   - searchkit_indices – one row per index with its mapping and settings.
//   - searchkit_documents – (index_name, id) keyed rows holding the JSONB
//     source and a version counter.
//
// # Usage
//
//	pool, err := pg.Connect(ctx, cfg)
//	if err != nil {
//		return err
//	}
//	if err := pg.Migrate(ctx, pool, cfg, log); err != nil {
//		return err
//	}
//
//	notes := repository.New[Note](repository.Options{
//		Client:    pg.NewStore(pool),
//		IndexName: "notes",
//	})
//
// ConnectFromEnv performs the same steps from PG_* environment variables.
//
// # Queries
//
// Search and Count accept a Query or a plain map. The map is matched with JSONB
// containment, so {"tag": "go"} selects documents whose tag is "go" and
// {"tags": ["go"]} those whose tags array contains "go". A GIN index on source
// backs containment lookups.
//
// # Error Handling
//
// Server errors become *repository.BackendError with the SQLSTATE in Type;
// unique violations report status 409. Connection failures and timeouts are
// joined with repository.ErrBackendUnavailable.
package pg
