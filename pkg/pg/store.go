package pg

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/dmitrymomot/searchkit/pkg/repository"
)

// DB is the subset of *pgxpool.Pool used by Store.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Query selects documents of one index. Contains is matched with JSONB
// containment (source @> Contains). OrderBy names a top-level source field;
// without it documents come back in insertion order.
type Query struct {
	Contains map[string]any
	OrderBy  string
	Desc     bool
	Limit    int
	Offset   int
}

const (
	sqlIndexExists = `SELECT EXISTS (SELECT 1 FROM searchkit_indices WHERE name = $1)`

	sqlGet = `SELECT source, version FROM searchkit_documents WHERE index_name = $1 AND id = $2`

	sqlIndex = `WITH idx AS (
    INSERT INTO searchkit_indices (name) VALUES ($1) ON CONFLICT (name) DO NOTHING
)
INSERT INTO searchkit_documents (index_name, id, source) VALUES ($1, $2, $3::jsonb)
ON CONFLICT (index_name, id) DO UPDATE
SET source = EXCLUDED.source, version = searchkit_documents.version + 1, updated_at = now()
RETURNING version`

	sqlUpdate = `UPDATE searchkit_documents
SET source = source || $3::jsonb, version = version + 1, updated_at = now()
WHERE index_name = $1 AND id = $2
RETURNING version`

	sqlDelete = `DELETE FROM searchkit_documents WHERE index_name = $1 AND id = $2`

	sqlCreateIndex = `INSERT INTO searchkit_indices (name, mapping, settings) VALUES ($1, $2::jsonb, $3::jsonb)`

	sqlDeleteIndex = `WITH docs AS (
    DELETE FROM searchkit_documents WHERE index_name = $1
)
DELETE FROM searchkit_indices WHERE name = $1`

	sqlPutMapping = `UPDATE searchkit_indices
SET mapping = jsonb_set(mapping || $2::jsonb, '{properties}',
    COALESCE(mapping->'properties', '{}'::jsonb) || COALESCE($2::jsonb->'properties', '{}'::jsonb))
WHERE name = $1`

	sqlPutSettings = `UPDATE searchkit_indices SET settings = settings || $2::jsonb WHERE name = $1`

	sqlSchema = `SELECT mapping, settings FROM searchkit_indices WHERE name = $1`
)

// Store keeps documents as JSONB rows and implements repository.Client,
// IndexManager, Counter and Updater. Run Migrate before using it.
type Store struct {
	db    DB
	newID func() string
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithIDGenerator replaces the uuid based id generator.
func WithIDGenerator(fn func() string) StoreOption {
	return func(s *Store) {
		if fn != nil {
			s.newID = fn
		}
	}
}

// NewStore returns a Store over db, usually a *pgxpool.Pool.
func NewStore(db DB, opts ...StoreOption) *Store {
	s := &Store{db: db, newID: uuid.NewString}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) IndexExists(ctx context.Context, index string) (bool, error) {
	var exists bool
	if err := s.db.QueryRow(ctx, sqlIndexExists, index).Scan(&exists); err != nil {
		return false, mapError(err)
	}
	return exists, nil
}

func (s *Store) Get(ctx context.Context, index, id string) (*repository.Document, error) {
	var (
		raw     []byte
		version int64
	)
	if err := s.db.QueryRow(ctx, sqlGet, index, id).Scan(&raw, &version); err != nil {
		if IsNotFoundError(err) {
			return nil, fmt.Errorf("%w: %s/%s", repository.ErrNotFound, index, id)
		}
		return nil, mapError(err)
	}
	source, err := repository.DecodeBody(raw)
	if err != nil {
		return nil, err
	}
	return &repository.Document{ID: id, Index: index, Source: source, Version: version}, nil
}

// Index inserts the document or replaces its source, creating the index on
// first write.
func (s *Store) Index(ctx context.Context, index, id string, body map[string]any) (repository.PersistResult, error) {
	if id == "" {
		id = s.newID()
	}
	source, err := encode(body)
	if err != nil {
		return repository.PersistResult{}, err
	}
	var version int64
	if err := s.db.QueryRow(ctx, sqlIndex, index, id, source).Scan(&version); err != nil {
		return repository.PersistResult{}, mapError(err)
	}
	result := "updated"
	if version == 1 {
		result = "created"
	}
	return repository.PersistResult{ID: id, Version: version, Result: result}, nil
}

// Update merges partial into the stored source with the jsonb || operator.
func (s *Store) Update(ctx context.Context, index, id string, partial map[string]any) (repository.PersistResult, error) {
	patch, err := encode(partial)
	if err != nil {
		return repository.PersistResult{}, err
	}
	var version int64
	if err := s.db.QueryRow(ctx, sqlUpdate, index, id, patch).Scan(&version); err != nil {
		if IsNotFoundError(err) {
			return repository.PersistResult{}, fmt.Errorf("%w: %s/%s", repository.ErrNotFound, index, id)
		}
		return repository.PersistResult{}, mapError(err)
	}
	return repository.PersistResult{ID: id, Version: version, Result: "updated"}, nil
}

func (s *Store) Delete(ctx context.Context, index, id string) (bool, error) {
	tag, err := s.db.Exec(ctx, sqlDelete, index, id)
	if err != nil {
		return false, mapError(err)
	}
	return tag.RowsAffected() > 0, nil
}

// Search accepts nil, a Query or *Query, or a map used as Contains.
func (s *Store) Search(ctx context.Context, index string, query any) (*repository.SearchResult, error) {
	q, err := parseQuery(query)
	if err != nil {
		return nil, err
	}
	where, args, err := q.where(index)
	if err != nil {
		return nil, err
	}

	out := &repository.SearchResult{}
	if err := s.db.QueryRow(ctx, "SELECT count(*) FROM searchkit_documents WHERE "+where, args...).Scan(&out.Total); err != nil {
		return nil, mapError(err)
	}

	sql, args := q.selectSQL(where, args)
	rows, err := s.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			id      string
			raw     []byte
			version int64
		)
		if err := rows.Scan(&id, &raw, &version); err != nil {
			return nil, mapError(err)
		}
		source, err := repository.DecodeBody(raw)
		if err != nil {
			return nil, err
		}
		out.Hits = append(out.Hits, repository.Document{ID: id, Index: index, Source: source, Version: version})
	}
	if err := rows.Err(); err != nil {
		return nil, mapError(err)
	}
	return out, nil
}

func (s *Store) Count(ctx context.Context, index string, query any) (int64, error) {
	q, err := parseQuery(query)
	if err != nil {
		return 0, err
	}
	where, args, err := q.where(index)
	if err != nil {
		return 0, err
	}
	var n int64
	if err := s.db.QueryRow(ctx, "SELECT count(*) FROM searchkit_documents WHERE "+where, args...).Scan(&n); err != nil {
		return 0, mapError(err)
	}
	return n, nil
}

func (s *Store) CreateIndex(ctx context.Context, index string, body map[string]any) error {
	mapping, _ := body["mappings"].(map[string]any)
	settings, _ := body["settings"].(map[string]any)
	m, err := encode(mapping)
	if err != nil {
		return err
	}
	st, err := encode(settings)
	if err != nil {
		return err
	}
	if _, err := s.db.Exec(ctx, sqlCreateIndex, index, m, st); err != nil {
		if IsDuplicateKeyError(err) {
			return &repository.BackendError{
				Status: http.StatusBadRequest,
				Type:   "resource_already_exists_exception",
				Reason: "index [" + index + "] already exists",
			}
		}
		return mapError(err)
	}
	return nil
}

// DeleteIndex drops the index together with its documents.
func (s *Store) DeleteIndex(ctx context.Context, index string) (bool, error) {
	tag, err := s.db.Exec(ctx, sqlDeleteIndex, index)
	if err != nil {
		return false, mapError(err)
	}
	return tag.RowsAffected() > 0, nil
}

// Refresh is a no-op: committed rows are visible immediately.
func (s *Store) Refresh(context.Context, string) error { return nil }

// PutMapping merges mapping into the recorded one; properties are merged field
// by field.
func (s *Store) PutMapping(ctx context.Context, index string, mapping map[string]any) error {
	return s.putSchema(ctx, sqlPutMapping, index, mapping)
}

// PutSettings merges settings into the recorded ones.
func (s *Store) PutSettings(ctx context.Context, index string, settings map[string]any) error {
	return s.putSchema(ctx, sqlPutSettings, index, settings)
}

func (s *Store) putSchema(ctx context.Context, sql, index string, body map[string]any) error {
	raw, err := encode(body)
	if err != nil {
		return err
	}
	tag, err := s.db.Exec(ctx, sql, index, raw)
	if err != nil {
		return mapError(err)
	}
	if tag.RowsAffected() == 0 {
		return errors.Join(repository.ErrNotFound, &repository.BackendError{
			Status: http.StatusNotFound,
			Type:   "index_not_found_exception",
			Reason: "no such index [" + index + "]",
		})
	}
	return nil
}

// Schema returns the mapping and settings recorded for index.
func (s *Store) Schema(ctx context.Context, index string) (mapping, settings map[string]any, err error) {
	var rawMapping, rawSettings []byte
	if err := s.db.QueryRow(ctx, sqlSchema, index).Scan(&rawMapping, &rawSettings); err != nil {
		if IsNotFoundError(err) {
			return nil, nil, fmt.Errorf("%w: schema of %s", repository.ErrNotFound, index)
		}
		return nil, nil, mapError(err)
	}
	if mapping, err = repository.DecodeBody(rawMapping); err != nil {
		return nil, nil, err
	}
	if settings, err = repository.DecodeBody(rawSettings); err != nil {
		return nil, nil, err
	}
	return mapping, settings, nil
}

func parseQuery(query any) (Query, error) {
	switch q := query.(type) {
	case nil:
		return Query{}, nil
	case Query:
		return q, nil
	case *Query:
		if q == nil {
			return Query{}, nil
		}
		return *q, nil
	case map[string]any:
		return Query{Contains: q}, nil
	default:
		return Query{}, errors.Join(ErrInvalidQuery, &repository.BackendError{
			Status: http.StatusBadRequest,
			Type:   "parsing_exception",
			Reason: fmt.Sprintf("unsupported query type %T", query),
		})
	}
}

func (q Query) where(index string) (string, []any, error) {
	if len(q.Contains) == 0 {
		return "index_name = $1", []any{index}, nil
	}
	raw, err := encode(q.Contains)
	if err != nil {
		return "", nil, err
	}
	return "index_name = $1 AND source @> $2::jsonb", []any{index, raw}, nil
}

func (q Query) selectSQL(where string, args []any) (string, []any) {
	var b strings.Builder
	b.WriteString("SELECT id, source, version FROM searchkit_documents WHERE ")
	b.WriteString(where)

	dir := "ASC"
	if q.Desc {
		dir = "DESC"
	}
	if q.OrderBy != "" {
		args = append(args, q.OrderBy)
		fmt.Fprintf(&b, " ORDER BY source->($%d::text) %s, id", len(args), dir)
	} else {
		fmt.Fprintf(&b, " ORDER BY created_at %s, id", dir)
	}
	if q.Limit > 0 {
		args = append(args, q.Limit)
		b.WriteString(" LIMIT $" + strconv.Itoa(len(args)))
	}
	if q.Offset > 0 {
		args = append(args, q.Offset)
		b.WriteString(" OFFSET $" + strconv.Itoa(len(args)))
	}
	return b.String(), args
}

func encode(v map[string]any) (string, error) {
	if v == nil {
		return "{}", nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return "", errors.Join(repository.ErrInvalidDocument, err)
	}
	return string(raw), nil
}
