package typesense

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"

	"github.com/google/uuid"
	"github.com/typesense/typesense-go/v2/typesense"
	"github.com/typesense/typesense-go/v2/typesense/api"
	"github.com/typesense/typesense-go/v2/typesense/api/pointer"

	"github.com/dmitrymomot/searchkit/pkg/repository"
)

const fieldID = "id"

// Store implements repository.Client, IndexManager and Counter on Typesense
// collections. Typesense keeps no document versions, so persist results and
// documents report version 0. Partial updates go through the repository's
// read-merge-write path.
type Store struct {
	client *typesense.Client
	newID  func() string
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

// NewStore wraps a Typesense client.
func NewStore(client *typesense.Client, opts ...StoreOption) *Store {
	s := &Store{client: client, newID: uuid.NewString}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) IndexExists(ctx context.Context, index string) (bool, error) {
	if _, err := s.client.Collection(index).Retrieve(ctx); err != nil {
		if isStatus(err, http.StatusNotFound) {
			return false, nil
		}
		return false, mapError(err)
	}
	return true, nil
}

func (s *Store) Get(ctx context.Context, index, id string) (*repository.Document, error) {
	doc, err := s.client.Collection(index).Document(id).Retrieve(ctx)
	if err != nil {
		return nil, mapError(err)
	}
	source, err := normalize(doc)
	if err != nil {
		return nil, err
	}
	delete(source, fieldID)
	return &repository.Document{ID: id, Index: index, Source: source}, nil
}

func (s *Store) Index(ctx context.Context, index, id string, body map[string]any) (repository.PersistResult, error) {
	if id == "" {
		id = s.newID()
	}
	doc := make(map[string]any, len(body)+1)
	for k, v := range body {
		doc[k] = v
	}
	doc[fieldID] = id

	if _, err := s.client.Collection(index).Documents().Upsert(ctx, doc); err != nil {
		return repository.PersistResult{}, mapError(err)
	}
	return repository.PersistResult{ID: id, Result: "updated"}, nil
}

func (s *Store) Delete(ctx context.Context, index, id string) (bool, error) {
	if _, err := s.client.Collection(index).Document(id).Delete(ctx); err != nil {
		if isStatus(err, http.StatusNotFound) {
			return false, nil
		}
		return false, mapError(err)
	}
	return true, nil
}

// Search accepts *api.SearchCollectionParams or api.SearchCollectionParams;
// nil runs a wildcard query. Facet counts are returned as the "facet_counts"
// aggregation and the text match score as the hit score.
func (s *Store) Search(ctx context.Context, index string, query any) (*repository.SearchResult, error) {
	params, err := searchParams(query)
	if err != nil {
		return nil, err
	}
	res, err := s.client.Collection(index).Documents().Search(ctx, params)
	if err != nil {
		return nil, mapError(err)
	}

	out := &repository.SearchResult{}
	if res.Found != nil {
		out.Total = int64(*res.Found)
	}
	if res.FacetCounts != nil && len(*res.FacetCounts) > 0 {
		if out.Aggregations, err = normalize(map[string]any{"facet_counts": *res.FacetCounts}); err != nil {
			return nil, err
		}
	}
	if res.Hits == nil {
		return out, nil
	}
	for _, hit := range *res.Hits {
		if hit.Document == nil {
			continue
		}
		source, err := normalize(*hit.Document)
		if err != nil {
			return nil, err
		}
		id, _ := source[fieldID].(string)
		delete(source, fieldID)
		doc := repository.Document{ID: id, Index: index, Source: source}
		if hit.TextMatch != nil {
			score := float64(*hit.TextMatch)
			doc.Score = &score
		}
		out.Hits = append(out.Hits, doc)
	}
	return out, nil
}

// Count reports the number of documents in the collection. Filtered counts are
// left to Search.
func (s *Store) Count(ctx context.Context, index string, query any) (int64, error) {
	if query != nil {
		return 0, repository.ErrUnsupported
	}
	res, err := s.client.Collection(index).Retrieve(ctx)
	if err != nil {
		return 0, mapError(err)
	}
	if res.NumDocuments == nil {
		return 0, nil
	}
	return *res.NumDocuments, nil
}

// PutMapping adds the mapping properties as collection fields.
func (s *Store) PutMapping(ctx context.Context, index string, mapping map[string]any) error {
	fields := fieldsOf(mapping)
	if len(fields) == 0 {
		return nil
	}
	if _, err := s.client.Collection(index).Update(ctx, &api.CollectionUpdateSchema{Fields: fields}); err != nil {
		return mapError(err)
	}
	return nil
}

// PutSettings is not supported: collection settings are fixed at creation.
func (s *Store) PutSettings(context.Context, string, map[string]any) error {
	return errors.Join(repository.ErrUnsupported, errors.New("typesense collection settings are immutable"))
}

// CreateIndex creates a collection. Without declared properties the collection
// uses automatic schema detection. The default_sorting_field setting is honored.
func (s *Store) CreateIndex(ctx context.Context, index string, body map[string]any) error {
	mapping, _ := body["mappings"].(map[string]any)
	settings, _ := body["settings"].(map[string]any)

	schema := &api.CollectionSchema{Name: index, Fields: fieldsOf(mapping)}
	if len(schema.Fields) == 0 {
		schema.Fields = []api.Field{{Name: ".*", Type: "auto"}}
	}
	if field, ok := settings["default_sorting_field"].(string); ok && field != "" {
		schema.DefaultSortingField = pointer.String(field)
	}

	if _, err := s.client.Collections().Create(ctx, schema); err != nil {
		if isStatus(err, http.StatusConflict) {
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

func (s *Store) DeleteIndex(ctx context.Context, index string) (bool, error) {
	if _, err := s.client.Collection(index).Delete(ctx); err != nil {
		if isStatus(err, http.StatusNotFound) {
			return false, nil
		}
		return false, mapError(err)
	}
	return true, nil
}

// Refresh is a no-op: Typesense indexes synchronously.
func (s *Store) Refresh(context.Context, string) error { return nil }

func searchParams(query any) (*api.SearchCollectionParams, error) {
	switch q := query.(type) {
	case nil:
		return &api.SearchCollectionParams{Q: pointer.String("*")}, nil
	case *api.SearchCollectionParams:
		if q == nil {
			return &api.SearchCollectionParams{Q: pointer.String("*")}, nil
		}
		return q, nil
	case api.SearchCollectionParams:
		return &q, nil
	default:
		return nil, errors.Join(ErrInvalidQuery, &repository.BackendError{
			Status: http.StatusBadRequest,
			Type:   "parsing_exception",
			Reason: fmt.Sprintf("unsupported query type %T", query),
		})
	}
}

// fieldsOf converts mapping properties into collection fields, sorted by name.
func fieldsOf(mapping map[string]any) []api.Field {
	props, _ := mapping["properties"].(map[string]any)
	names := make([]string, 0, len(props))
	for name := range props {
		names = append(names, name)
	}
	sort.Strings(names)

	fields := make([]api.Field, 0, len(names))
	for _, name := range names {
		p, _ := props[name].(map[string]any)
		f := api.Field{Name: name, Type: fieldType(p["type"])}
		if v, ok := p["facet"].(bool); ok {
			f.Facet = &v
		}
		if v, ok := p["optional"].(bool); ok {
			f.Optional = &v
		}
		if v, ok := p["sort"].(bool); ok {
			f.Sort = &v
		}
		fields = append(fields, f)
	}
	return fields
}

// fieldType maps common mapping types to Typesense types. Unknown values
// such as "string[]" are passed through.
func fieldType(v any) string {
	t, _ := v.(string)
	switch t {
	case "", "auto":
		return "auto"
	case "text", "keyword":
		return "string"
	case "integer", "short", "byte":
		return "int32"
	case "long":
		return "int64"
	case "double", "half_float", "scaled_float":
		return "float"
	case "boolean":
		return "bool"
	case "geo_point":
		return "geopoint"
	default:
		return t
	}
}

// normalize re-encodes v so numbers come back as int64 or float64.
func normalize(v any) (map[string]any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, errors.Join(repository.ErrInvalidDocument, err)
	}
	return repository.DecodeBody(raw)
}

func isStatus(err error, status int) bool {
	var httpErr *typesense.HTTPError
	return errors.As(err, &httpErr) && httpErr.Status == status
}

func mapError(err error) error {
	var httpErr *typesense.HTTPError
	if !errors.As(err, &httpErr) {
		return errors.Join(repository.ErrBackendUnavailable, err)
	}

	var body struct {
		Message string `json:"message"`
	}
	reason := string(httpErr.Body)
	if json.Unmarshal(httpErr.Body, &body) == nil && body.Message != "" {
		reason = body.Message
	}
	be := &repository.BackendError{Status: httpErr.Status, Type: errorType(httpErr.Status), Reason: reason}
	if httpErr.Status == http.StatusNotFound {
		return errors.Join(repository.ErrNotFound, be)
	}
	return be
}

func errorType(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusUnauthorized:
		return "unauthorized"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "conflict"
	case http.StatusUnprocessableEntity:
		return "unprocessable_entity"
	case http.StatusServiceUnavailable:
		return "service_unavailable"
	default:
		return "http_" + fmt.Sprint(status)
	}
}
