package mongo

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/dmitrymomot/searchkit/pkg/repository"
)

const (
	fieldID      = "_id"
	fieldVersion = "_version"

	// DefaultSchemaCollection stores mappings and settings, one document per index.
	DefaultSchemaCollection = "_indices"

	codeNamespaceExists = 48
)

// Query is a find request. Filter, Sort and Projection accept anything the
// driver encodes as a document.
type Query struct {
	Filter any
	Sort   any
	Skip   int64
	Limit  int64
}

// Store implements repository.Client and the optional IndexManager, Counter and
// Updater capabilities with one collection per index. Documents keep their
// source fields at the top level next to _id and _version.
type Store struct {
	db     *mongo.Database
	schema string
	newID  func() string
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithSchemaCollection overrides DefaultSchemaCollection.
func WithSchemaCollection(name string) StoreOption {
	return func(s *Store) {
		if name != "" {
			s.schema = name
		}
	}
}

// WithIDGenerator replaces the uuid based id generator.
func WithIDGenerator(fn func() string) StoreOption {
	return func(s *Store) {
		if fn != nil {
			s.newID = fn
		}
	}
}

// NewStore returns a Store over db.
func NewStore(db *mongo.Database, opts ...StoreOption) *Store {
	s := &Store{db: db, schema: DefaultSchemaCollection, newID: uuid.NewString}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) IndexExists(ctx context.Context, index string) (bool, error) {
	names, err := s.db.ListCollectionNames(ctx, bson.D{{Key: "name", Value: index}})
	if err != nil {
		return false, mapError(err)
	}
	return len(names) > 0, nil
}

func (s *Store) Get(ctx context.Context, index, id string) (*repository.Document, error) {
	raw, err := s.db.Collection(index).FindOne(ctx, bson.D{{Key: fieldID, Value: id}}).Raw()
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("%w: %s/%s", repository.ErrNotFound, index, id)
		}
		return nil, mapError(err)
	}
	return toDocument(index, raw)
}

// Index replaces the document and increments its version in one round trip.
func (s *Store) Index(ctx context.Context, index, id string, body map[string]any) (repository.PersistResult, error) {
	if id == "" {
		id = s.newID()
	}
	source := make(bson.M, len(body))
	for k, v := range body {
		if k != fieldID && k != fieldVersion {
			source[k] = v
		}
	}

	nextVersion := bson.D{{Key: "$add", Value: bson.A{
		bson.D{{Key: "$ifNull", Value: bson.A{"$" + fieldVersion, 0}}},
		1,
	}}}
	update := mongo.Pipeline{
		{{Key: "$replaceWith", Value: bson.D{{Key: "$mergeObjects", Value: bson.A{
			bson.D{{Key: "$literal", Value: source}},
			bson.D{{Key: fieldID, Value: id}, {Key: fieldVersion, Value: nextVersion}},
		}}}}},
	}

	version, err := s.findAndUpdate(ctx, index, id, update, true)
	if err != nil {
		return repository.PersistResult{}, err
	}
	result := "updated"
	if version == 1 {
		result = "created"
	}
	return repository.PersistResult{ID: id, Version: version, Result: result}, nil
}

// Update sets the fields of partial on an existing document.
func (s *Store) Update(ctx context.Context, index, id string, partial map[string]any) (repository.PersistResult, error) {
	set := make(bson.M, len(partial))
	for k, v := range partial {
		if k != fieldID && k != fieldVersion {
			set[k] = v
		}
	}
	update := bson.D{{Key: "$inc", Value: bson.D{{Key: fieldVersion, Value: 1}}}}
	if len(set) > 0 {
		update = append(update, bson.E{Key: "$set", Value: set})
	}

	version, err := s.findAndUpdate(ctx, index, id, update, false)
	if err != nil {
		return repository.PersistResult{}, err
	}
	return repository.PersistResult{ID: id, Version: version, Result: "updated"}, nil
}

func (s *Store) findAndUpdate(ctx context.Context, index, id string, update any, upsert bool) (int64, error) {
	opts := options.FindOneAndUpdate().
		SetUpsert(upsert).
		SetReturnDocument(options.After).
		SetProjection(bson.D{{Key: fieldVersion, Value: 1}})

	var out struct {
		Version int64 `bson:"_version"`
	}
	err := s.db.Collection(index).
		FindOneAndUpdate(ctx, bson.D{{Key: fieldID, Value: id}}, update, opts).
		Decode(&out)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return 0, fmt.Errorf("%w: %s/%s", repository.ErrNotFound, index, id)
		}
		return 0, mapError(err)
	}
	return out.Version, nil
}

func (s *Store) Delete(ctx context.Context, index, id string) (bool, error) {
	res, err := s.db.Collection(index).DeleteOne(ctx, bson.D{{Key: fieldID, Value: id}})
	if err != nil {
		return false, mapError(err)
	}
	return res.DeletedCount > 0, nil
}

// Search accepts nil (all documents), a Query or *Query, or a filter document
// (bson.D, bson.M or map[string]any). Hits carry no score.
func (s *Store) Search(ctx context.Context, index string, query any) (*repository.SearchResult, error) {
	q, err := parseQuery(query)
	if err != nil {
		return nil, err
	}
	coll := s.db.Collection(index)

	total, err := coll.CountDocuments(ctx, q.Filter)
	if err != nil {
		return nil, mapError(err)
	}

	opts := options.Find()
	if q.Sort != nil {
		opts.SetSort(q.Sort)
	}
	if q.Skip > 0 {
		opts.SetSkip(q.Skip)
	}
	if q.Limit > 0 {
		opts.SetLimit(q.Limit)
	}
	cur, err := coll.Find(ctx, q.Filter, opts)
	if err != nil {
		return nil, mapError(err)
	}
	defer cur.Close(ctx)

	out := &repository.SearchResult{Total: total}
	for cur.Next(ctx) {
		doc, err := toDocument(index, cur.Current)
		if err != nil {
			return nil, err
		}
		out.Hits = append(out.Hits, *doc)
	}
	if err := cur.Err(); err != nil {
		return nil, mapError(err)
	}
	return out, nil
}

func (s *Store) Count(ctx context.Context, index string, query any) (int64, error) {
	q, err := parseQuery(query)
	if err != nil {
		return 0, err
	}
	n, err := s.db.Collection(index).CountDocuments(ctx, q.Filter)
	if err != nil {
		return 0, mapError(err)
	}
	return n, nil
}

// PutMapping records the mapping in the schema collection. Properties are
// merged field by field with what was recorded before.
func (s *Store) PutMapping(ctx context.Context, index string, mapping map[string]any) error {
	set := bson.M{}
	for k, v := range mapping {
		if props, ok := v.(map[string]any); ok && k == "properties" {
			for field, p := range props {
				set["mapping.properties."+field] = p
			}
			continue
		}
		set["mapping."+k] = v
	}
	return s.recordSchema(ctx, index, set)
}

// PutSettings records settings in the schema collection.
func (s *Store) PutSettings(ctx context.Context, index string, settings map[string]any) error {
	set := bson.M{}
	for k, v := range settings {
		set["settings."+k] = v
	}
	return s.recordSchema(ctx, index, set)
}

func (s *Store) recordSchema(ctx context.Context, index string, set bson.M) error {
	if len(set) == 0 {
		return nil
	}
	_, err := s.db.Collection(s.schema).UpdateOne(ctx,
		bson.D{{Key: fieldID, Value: index}},
		bson.D{{Key: "$set", Value: set}},
		options.UpdateOne().SetUpsert(true),
	)
	return mapError(err)
}

// Schema returns the mapping and settings recorded for index.
func (s *Store) Schema(ctx context.Context, index string) (mapping, settings map[string]any, err error) {
	raw, err := s.db.Collection(s.schema).FindOne(ctx, bson.D{{Key: fieldID, Value: index}}).Raw()
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil, fmt.Errorf("%w: schema of %s", repository.ErrNotFound, index)
		}
		return nil, nil, mapError(err)
	}
	doc, err := decodeRaw(raw)
	if err != nil {
		return nil, nil, err
	}
	mapping, _ = doc["mapping"].(map[string]any)
	settings, _ = doc["settings"].(map[string]any)
	return mapping, settings, nil
}

func (s *Store) CreateIndex(ctx context.Context, index string, body map[string]any) error {
	if err := s.db.CreateCollection(ctx, index); err != nil {
		var cmd mongo.CommandError
		if errors.As(err, &cmd) && cmd.Code == codeNamespaceExists {
			return &repository.BackendError{
				Status: http.StatusBadRequest,
				Type:   "resource_already_exists_exception",
				Reason: "index [" + index + "] already exists",
			}
		}
		return mapError(err)
	}
	if m, ok := body["mappings"].(map[string]any); ok {
		if err := s.PutMapping(ctx, index, m); err != nil {
			return err
		}
	}
	if st, ok := body["settings"].(map[string]any); ok {
		if err := s.PutSettings(ctx, index, st); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) DeleteIndex(ctx context.Context, index string) (bool, error) {
	exists, err := s.IndexExists(ctx, index)
	if err != nil || !exists {
		return false, err
	}
	if err := s.db.Collection(index).Drop(ctx); err != nil {
		return false, mapError(err)
	}
	if _, err := s.db.Collection(s.schema).DeleteOne(ctx, bson.D{{Key: fieldID, Value: index}}); err != nil {
		return true, mapError(err)
	}
	return true, nil
}

// Refresh is a no-op: MongoDB reads observe acknowledged writes.
func (s *Store) Refresh(context.Context, string) error { return nil }

func parseQuery(query any) (Query, error) {
	switch q := query.(type) {
	case nil:
		return Query{Filter: bson.D{}}, nil
	case Query:
		if q.Filter == nil {
			q.Filter = bson.D{}
		}
		return q, nil
	case *Query:
		if q == nil {
			return Query{Filter: bson.D{}}, nil
		}
		return parseQuery(*q)
	case bson.D, bson.M, map[string]any:
		return Query{Filter: q}, nil
	default:
		return Query{}, errors.Join(ErrInvalidQuery, &repository.BackendError{
			Status: http.StatusBadRequest,
			Type:   "parsing_exception",
			Reason: fmt.Sprintf("unsupported query type %T", query),
		})
	}
}

func toDocument(index string, raw bson.Raw) (*repository.Document, error) {
	source, err := decodeRaw(raw)
	if err != nil {
		return nil, err
	}
	doc := &repository.Document{Index: index}
	switch id := source[fieldID].(type) {
	case string:
		doc.ID = id
	case nil:
	default:
		doc.ID = fmt.Sprint(id)
	}
	if v, ok := source[fieldVersion].(int64); ok {
		doc.Version = v
	}
	delete(source, fieldID)
	delete(source, fieldVersion)
	doc.Source = source
	return doc, nil
}

func decodeRaw(raw bson.Raw) (map[string]any, error) {
	var d bson.D
	if err := bson.Unmarshal(raw, &d); err != nil {
		return nil, errors.Join(repository.ErrInvalidDocument, err)
	}
	m, _ := normalize(d).(map[string]any)
	return m, nil
}

// normalize converts driver types into the plain maps, slices and int64 or
// float64 numbers the repository codec works with.
func normalize(v any) any {
	switch t := v.(type) {
	case bson.D:
		m := make(map[string]any, len(t))
		for _, e := range t {
			m[e.Key] = normalize(e.Value)
		}
		return m
	case bson.M:
		m := make(map[string]any, len(t))
		for k, e := range t {
			m[k] = normalize(e)
		}
		return m
	case map[string]any:
		return normalize(bson.M(t))
	case bson.A:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = normalize(e)
		}
		return out
	case []any:
		return normalize(bson.A(t))
	case int32:
		return int64(t)
	case int:
		return int64(t)
	case float32:
		return float64(t)
	case bson.ObjectID:
		return t.Hex()
	case bson.DateTime:
		return t.Time().UTC()
	case bson.Decimal128:
		return t.String()
	default:
		return v
	}
}

func mapError(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case mongo.IsNetworkError(err), mongo.IsTimeout(err):
		return errors.Join(repository.ErrBackendUnavailable, err)
	case mongo.IsDuplicateKeyError(err):
		return &repository.BackendError{Status: http.StatusConflict, Type: "duplicate_key", Reason: err.Error()}
	}

	var cmd mongo.CommandError
	if errors.As(err, &cmd) {
		kind := cmd.Name
		if kind == "" {
			kind = fmt.Sprintf("code_%d", cmd.Code)
		}
		return &repository.BackendError{Status: http.StatusBadRequest, Type: kind, Reason: cmd.Message}
	}
	var we mongo.WriteException
	if errors.As(err, &we) && len(we.WriteErrors) > 0 {
		return &repository.BackendError{
			Status: http.StatusBadRequest,
			Type:   fmt.Sprintf("code_%d", we.WriteErrors[0].Code),
			Reason: we.WriteErrors[0].Message,
		}
	}
	return err
}
