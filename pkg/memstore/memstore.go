package memstore

import (
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/google/uuid"

	"github.com/dmitrymomot/searchkit/pkg/repository"
)

// Filter is the Go-native query object: documents for which it returns true match.
type Filter func(source map[string]any) bool

type storedDoc struct {
	seq     int64
	version int64
	source  map[string]any
}

type index struct {
	docs     map[string]*storedDoc
	mapping  map[string]any
	settings map[string]any
}

// Store is an in-process document store implementing repository.Client,
// IndexManager, Counter and Updater. Indices are created on first write.
type Store struct {
	mu      sync.RWMutex
	indices map[string]*index
	seq     int64
	calls   map[string]int
	newID   func() string
}

// Option configures a Store.
type Option func(*Store)

// WithIDGenerator replaces the uuid based id generator.
func WithIDGenerator(fn func() string) Option {
	return func(s *Store) {
		if fn != nil {
			s.newID = fn
		}
	}
}

// New creates an empty store.
func New(opts ...Option) *Store {
	s := &Store{
		indices: make(map[string]*index),
		calls:   make(map[string]int),
		newID:   uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Calls returns how many times op was invoked, e.g. "search" or "get".
func (s *Store) Calls(op string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.calls[op]
}

// lock acquires the write lock and counts the call.
func (s *Store) lock(op string) func() {
	s.mu.Lock()
	s.calls[op]++
	return s.mu.Unlock
}

func (s *Store) IndexExists(_ context.Context, name string) (bool, error) {
	defer s.lock("index_exists")()
	_, ok := s.indices[name]
	return ok, nil
}

func (s *Store) Get(_ context.Context, name, id string) (*repository.Document, error) {
	defer s.lock("get")()
	idx, ok := s.indices[name]
	if !ok {
		return nil, fmt.Errorf("%w: index %q", repository.ErrNotFound, name)
	}
	d, ok := idx.docs[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s/%s", repository.ErrNotFound, name, id)
	}
	return toDocument(name, id, d), nil
}

func (s *Store) Index(_ context.Context, name, id string, body map[string]any) (repository.PersistResult, error) {
	defer s.lock("index")()
	source, err := deepCopy(body)
	if err != nil {
		return repository.PersistResult{}, &repository.BackendError{Status: 400, Type: "mapper_parsing_exception", Reason: err.Error()}
	}
	idx := s.ensureIndex(name)
	if id == "" {
		id = s.newID()
	}

	result := "created"
	version := int64(1)
	seq := s.nextSeq()
	if cur, ok := idx.docs[id]; ok {
		result = "updated"
		version = cur.version + 1
		seq = cur.seq
	}
	idx.docs[id] = &storedDoc{seq: seq, version: version, source: source}
	return repository.PersistResult{ID: id, Version: version, Result: result}, nil
}

func (s *Store) Update(_ context.Context, name, id string, partial map[string]any) (repository.PersistResult, error) {
	defer s.lock("update")()
	idx, ok := s.indices[name]
	if !ok {
		return repository.PersistResult{}, fmt.Errorf("%w: index %q", repository.ErrNotFound, name)
	}
	cur, ok := idx.docs[id]
	if !ok {
		return repository.PersistResult{}, fmt.Errorf("%w: %s/%s", repository.ErrNotFound, name, id)
	}
	patch, err := deepCopy(partial)
	if err != nil {
		return repository.PersistResult{}, &repository.BackendError{Status: 400, Type: "mapper_parsing_exception", Reason: err.Error()}
	}
	source := maps.Clone(cur.source)
	maps.Copy(source, patch)
	idx.docs[id] = &storedDoc{seq: cur.seq, version: cur.version + 1, source: source}
	return repository.PersistResult{ID: id, Version: cur.version + 1, Result: "updated"}, nil
}

func (s *Store) Delete(_ context.Context, name, id string) (bool, error) {
	defer s.lock("delete")()
	idx, ok := s.indices[name]
	if !ok {
		return false, nil
	}
	if _, ok := idx.docs[id]; !ok {
		return false, nil
	}
	delete(idx.docs, id)
	return true, nil
}

func (s *Store) Search(_ context.Context, name string, query any) (*repository.SearchResult, error) {
	defer s.lock("search")()
	q, err := parseQuery(query)
	if err != nil {
		return nil, err
	}
	idx, ok := s.indices[name]
	if !ok {
		return nil, &repository.BackendError{Status: 404, Type: "index_not_found_exception", Reason: "no such index [" + name + "]"}
	}

	ids := s.matching(idx, q.match)
	res := &repository.SearchResult{Total: int64(len(ids))}
	ids = page(ids, q.from, q.size)
	score := 1.0
	for _, id := range ids {
		doc := toDocument(name, id, idx.docs[id])
		doc.Score = &score
		res.Hits = append(res.Hits, *doc)
	}
	return res, nil
}

func (s *Store) Count(_ context.Context, name string, query any) (int64, error) {
	defer s.lock("count")()
	q, err := parseQuery(query)
	if err != nil {
		return 0, err
	}
	idx, ok := s.indices[name]
	if !ok {
		return 0, &repository.BackendError{Status: 404, Type: "index_not_found_exception", Reason: "no such index [" + name + "]"}
	}
	return int64(len(s.matching(idx, q.match))), nil
}

func (s *Store) PutMapping(_ context.Context, name string, mapping map[string]any) error {
	defer s.lock("put_mapping")()
	idx := s.ensureIndex(name)
	if idx.mapping == nil {
		idx.mapping = make(map[string]any)
	}
	maps.Copy(idx.mapping, mapping)
	return nil
}

func (s *Store) PutSettings(_ context.Context, name string, settings map[string]any) error {
	defer s.lock("put_settings")()
	idx, ok := s.indices[name]
	if !ok {
		return fmt.Errorf("%w: index %q", repository.ErrNotFound, name)
	}
	if idx.settings == nil {
		idx.settings = make(map[string]any)
	}
	maps.Copy(idx.settings, settings)
	return nil
}

func (s *Store) CreateIndex(_ context.Context, name string, body map[string]any) error {
	defer s.lock("create_index")()
	if _, ok := s.indices[name]; ok {
		return &repository.BackendError{Status: 400, Type: "resource_already_exists_exception", Reason: "index [" + name + "] already exists"}
	}
	idx := s.ensureIndex(name)
	if m, ok := body["mappings"].(map[string]any); ok {
		idx.mapping = maps.Clone(m)
	}
	if st, ok := body["settings"].(map[string]any); ok {
		idx.settings = maps.Clone(st)
	}
	return nil
}

func (s *Store) DeleteIndex(_ context.Context, name string) (bool, error) {
	defer s.lock("delete_index")()
	if _, ok := s.indices[name]; !ok {
		return false, nil
	}
	delete(s.indices, name)
	return true, nil
}

// Refresh is a no-op: writes are visible immediately.
func (s *Store) Refresh(context.Context, string) error {
	defer s.lock("refresh")()
	return nil
}

// Mapping returns the mapping stored for an index.
func (s *Store) Mapping(name string) map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if idx, ok := s.indices[name]; ok {
		return maps.Clone(idx.mapping)
	}
	return nil
}

// Settings returns the settings stored for an index.
func (s *Store) Settings(name string) map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if idx, ok := s.indices[name]; ok {
		return maps.Clone(idx.settings)
	}
	return nil
}

func (s *Store) ensureIndex(name string) *index {
	idx, ok := s.indices[name]
	if !ok {
		idx = &index{docs: make(map[string]*storedDoc)}
		s.indices[name] = idx
	}
	return idx
}

func (s *Store) nextSeq() int64 {
	s.seq++
	return s.seq
}

// matching returns ids of matching documents in insertion order.
func (s *Store) matching(idx *index, match predicate) []string {
	ids := make([]string, 0, len(idx.docs))
	for id, d := range idx.docs {
		if match == nil || match(id, d.source) {
			ids = append(ids, id)
		}
	}
	slices.SortFunc(ids, func(a, b string) int {
		return int(idx.docs[a].seq - idx.docs[b].seq)
	})
	return ids
}

func page(ids []string, from, size int) []string {
	if from >= len(ids) {
		return nil
	}
	ids = ids[from:]
	if size >= 0 && size < len(ids) {
		ids = ids[:size]
	}
	return ids
}

func toDocument(name, id string, d *storedDoc) *repository.Document {
	source, _ := deepCopy(d.source)
	return &repository.Document{
		ID:      id,
		Index:   name,
		Source:  source,
		Version: d.version,
		SeqNo:   d.seq,
	}
}

// deepCopy detaches stored bodies from caller-owned maps.
func deepCopy(body map[string]any) (map[string]any, error) {
	if body == nil {
		return map[string]any{}, nil
	}
	raw, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	return repository.DecodeBody(raw)
}

func queryError(format string, args ...any) error {
	return &repository.BackendError{
		Status: 400,
		Type:   "parsing_exception",
		Reason: fmt.Sprintf(format, args...),
	}
}
