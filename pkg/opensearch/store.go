package opensearch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/opensearch-project/opensearch-go/v2/opensearchapi"

	"github.com/dmitrymomot/searchkit/pkg/repository"
)

// Store implements repository.Client, IndexManager, Counter and Updater on
// top of the OpenSearch REST API.
type Store struct {
	transport opensearchapi.Transport
	refresh   string
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithRefresh sets the refresh parameter sent with write requests.
func WithRefresh(refresh string) StoreOption {
	return func(s *Store) {
		s.refresh = refresh
	}
}

// NewStore wraps a transport, usually an *opensearch.Client.
func NewStore(transport opensearchapi.Transport, opts ...StoreOption) *Store {
	s := &Store{transport: transport}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) IndexExists(ctx context.Context, index string) (bool, error) {
	res, err := s.do(ctx, opensearchapi.IndicesExistsRequest{Index: []string{index}})
	if err != nil {
		return false, err
	}
	defer res.Body.Close()
	switch {
	case res.StatusCode == http.StatusNotFound:
		return false, nil
	case res.IsError():
		return false, backendError(res)
	}
	return true, nil
}

type getResponse struct {
	Index       string          `json:"_index"`
	ID          string          `json:"_id"`
	Version     int64           `json:"_version"`
	SeqNo       int64           `json:"_seq_no"`
	PrimaryTerm int64           `json:"_primary_term"`
	Found       bool            `json:"found"`
	Source      json.RawMessage `json:"_source"`
}

func (s *Store) Get(ctx context.Context, index, id string) (*repository.Document, error) {
	res, err := s.do(ctx, opensearchapi.GetRequest{Index: index, DocumentID: id})
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	if res.StatusCode == http.StatusNotFound {
		// A missing index reports an error body, a missing document {"found": false}.
		if be := backendError(res); be.Type != "" {
			return nil, errors.Join(repository.ErrNotFound, be)
		}
		return nil, fmt.Errorf("%w: %s/%s", repository.ErrNotFound, index, id)
	}
	if res.IsError() {
		return nil, backendError(res)
	}

	var body getResponse
	if err := decode(res.Body, &body); err != nil {
		return nil, err
	}
	if !body.Found {
		return nil, fmt.Errorf("%w: %s/%s", repository.ErrNotFound, index, id)
	}
	source, err := decodeSource(body.Source)
	if err != nil {
		return nil, err
	}
	return &repository.Document{
		ID:          body.ID,
		Index:       body.Index,
		Source:      source,
		Version:     body.Version,
		SeqNo:       body.SeqNo,
		PrimaryTerm: body.PrimaryTerm,
	}, nil
}

type writeResponse struct {
	ID      string `json:"_id"`
	Version int64  `json:"_version"`
	Result  string `json:"result"`
}

func (s *Store) Index(ctx context.Context, index, id string, body map[string]any) (repository.PersistResult, error) {
	reader, err := encode(body)
	if err != nil {
		return repository.PersistResult{}, err
	}
	return s.write(ctx, opensearchapi.IndexRequest{
		Index:      index,
		DocumentID: id,
		Body:       reader,
		Refresh:    s.refresh,
	})
}

// Update performs a partial document update with doc semantics.
func (s *Store) Update(ctx context.Context, index, id string, partial map[string]any) (repository.PersistResult, error) {
	reader, err := encode(map[string]any{"doc": partial})
	if err != nil {
		return repository.PersistResult{}, err
	}
	res, err := s.write(ctx, opensearchapi.UpdateRequest{
		Index:      index,
		DocumentID: id,
		Body:       reader,
		Refresh:    s.refresh,
	})
	if repository.IsNotFound(err) {
		return res, errors.Join(repository.ErrNotFound, err)
	}
	return res, err
}

func (s *Store) write(ctx context.Context, req opensearchapi.Request) (repository.PersistResult, error) {
	res, err := s.do(ctx, req)
	if err != nil {
		return repository.PersistResult{}, err
	}
	defer res.Body.Close()
	if res.IsError() {
		return repository.PersistResult{}, backendError(res)
	}
	var body writeResponse
	if err := decode(res.Body, &body); err != nil {
		return repository.PersistResult{}, err
	}
	return repository.PersistResult{ID: body.ID, Version: body.Version, Result: body.Result}, nil
}

func (s *Store) Delete(ctx context.Context, index, id string) (bool, error) {
	res, err := s.do(ctx, opensearchapi.DeleteRequest{Index: index, DocumentID: id, Refresh: s.refresh})
	if err != nil {
		return false, err
	}
	defer res.Body.Close()
	switch {
	case res.StatusCode == http.StatusNotFound:
		return false, nil
	case res.IsError():
		return false, backendError(res)
	}
	return true, nil
}

type searchResponse struct {
	Hits struct {
		Total json.RawMessage `json:"total"`
		Hits  []struct {
			Index   string          `json:"_index"`
			ID      string          `json:"_id"`
			Score   *float64        `json:"_score"`
			Version int64           `json:"_version"`
			Source  json.RawMessage `json:"_source"`
		} `json:"hits"`
	} `json:"hits"`
	Aggregations json.RawMessage `json:"aggregations"`
}

func (s *Store) Search(ctx context.Context, index string, query any) (*repository.SearchResult, error) {
	reader, err := queryBody(query)
	if err != nil {
		return nil, err
	}
	res, err := s.do(ctx, opensearchapi.SearchRequest{Index: []string{index}, Body: reader})
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()
	if res.IsError() {
		return nil, backendError(res)
	}

	var body searchResponse
	if err := decode(res.Body, &body); err != nil {
		return nil, err
	}
	out := &repository.SearchResult{Hits: make([]repository.Document, 0, len(body.Hits.Hits))}
	if out.Total, err = parseTotal(body.Hits.Total); err != nil {
		return nil, err
	}
	if len(body.Aggregations) > 0 {
		if out.Aggregations, err = decodeSource(body.Aggregations); err != nil {
			return nil, err
		}
	}
	for _, hit := range body.Hits.Hits {
		source, err := decodeSource(hit.Source)
		if err != nil {
			return nil, err
		}
		out.Hits = append(out.Hits, repository.Document{
			ID:      hit.ID,
			Index:   hit.Index,
			Source:  source,
			Version: hit.Version,
			Score:   hit.Score,
		})
	}
	return out, nil
}

func (s *Store) Count(ctx context.Context, index string, query any) (int64, error) {
	reader, err := countBody(query)
	if err != nil {
		return 0, err
	}
	res, err := s.do(ctx, opensearchapi.CountRequest{Index: []string{index}, Body: reader})
	if err != nil {
		return 0, err
	}
	defer res.Body.Close()
	if res.IsError() {
		return 0, backendError(res)
	}
	var body struct {
		Count int64 `json:"count"`
	}
	if err := decode(res.Body, &body); err != nil {
		return 0, err
	}
	return body.Count, nil
}

func (s *Store) PutMapping(ctx context.Context, index string, mapping map[string]any) error {
	reader, err := encode(mapping)
	if err != nil {
		return err
	}
	return s.acknowledge(ctx, opensearchapi.IndicesPutMappingRequest{Index: []string{index}, Body: reader})
}

func (s *Store) PutSettings(ctx context.Context, index string, settings map[string]any) error {
	reader, err := encode(map[string]any{"index": settings})
	if err != nil {
		return err
	}
	return s.acknowledge(ctx, opensearchapi.IndicesPutSettingsRequest{Index: []string{index}, Body: reader})
}

func (s *Store) CreateIndex(ctx context.Context, index string, body map[string]any) error {
	var reader io.Reader
	if len(body) > 0 {
		var err error
		if reader, err = encode(body); err != nil {
			return err
		}
	}
	return s.acknowledge(ctx, opensearchapi.IndicesCreateRequest{Index: index, Body: reader})
}

func (s *Store) DeleteIndex(ctx context.Context, index string) (bool, error) {
	res, err := s.do(ctx, opensearchapi.IndicesDeleteRequest{Index: []string{index}})
	if err != nil {
		return false, err
	}
	defer res.Body.Close()
	switch {
	case res.StatusCode == http.StatusNotFound:
		return false, nil
	case res.IsError():
		return false, backendError(res)
	}
	return true, nil
}

func (s *Store) Refresh(ctx context.Context, index string) error {
	return s.acknowledge(ctx, opensearchapi.IndicesRefreshRequest{Index: []string{index}})
}

func (s *Store) acknowledge(ctx context.Context, req opensearchapi.Request) error {
	res, err := s.do(ctx, req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.IsError() {
		return backendError(res)
	}
	_, _ = io.Copy(io.Discard, res.Body)
	return nil
}

// do performs req. Transport failures are joined with
// repository.ErrBackendUnavailable; HTTP errors are left to the caller.
func (s *Store) do(ctx context.Context, req opensearchapi.Request) (*opensearchapi.Response, error) {
	res, err := req.Do(ctx, s.transport)
	if err != nil {
		return nil, errors.Join(repository.ErrBackendUnavailable, err)
	}
	return res, nil
}

type errorResponse struct {
	Status int             `json:"status"`
	Error  json.RawMessage `json:"error"`
}

// backendError reads an error response into a *repository.BackendError.
func backendError(res *opensearchapi.Response) *repository.BackendError {
	be := &repository.BackendError{Status: res.StatusCode}
	raw, err := io.ReadAll(res.Body)
	if err != nil || len(raw) == 0 {
		be.Reason = http.StatusText(res.StatusCode)
		return be
	}

	var body errorResponse
	if err := json.Unmarshal(raw, &body); err != nil || len(body.Error) == 0 {
		be.Reason = strings.TrimSpace(string(raw))
		return be
	}
	var detail struct {
		Type   string `json:"type"`
		Reason string `json:"reason"`
	}
	if err := json.Unmarshal(body.Error, &detail); err != nil {
		// Older endpoints report the error as a plain string.
		var msg string
		_ = json.Unmarshal(body.Error, &msg)
		be.Reason = msg
		return be
	}
	be.Type, be.Reason = detail.Type, detail.Reason
	return be
}

func decode(r io.Reader, v any) error {
	dec := json.NewDecoder(r)
	if err := dec.Decode(v); err != nil {
		return errors.Join(ErrInvalidResponse, err)
	}
	return nil
}

func decodeSource(raw json.RawMessage) (map[string]any, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return map[string]any{}, nil
	}
	m, err := repository.DecodeBody(raw)
	if err != nil {
		return nil, errors.Join(ErrInvalidResponse, err)
	}
	return m, nil
}

// parseTotal accepts both {"value": n, "relation": "eq"} and a bare number.
func parseTotal(raw json.RawMessage) (int64, error) {
	if len(raw) == 0 {
		return 0, nil
	}
	var obj struct {
		Value int64 `json:"value"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil {
		return obj.Value, nil
	}
	var n int64
	if err := json.Unmarshal(raw, &n); err != nil {
		return 0, errors.Join(ErrInvalidResponse, err)
	}
	return n, nil
}

func encode(v any) (io.Reader, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, errors.Join(repository.ErrInvalidDocument, err)
	}
	return bytes.NewReader(raw), nil
}

// queryBody renders a backend-native query: a JSON string or []byte, an
// io.Reader, or any value encoding to the search request body.
func queryBody(query any) (io.Reader, error) {
	switch q := query.(type) {
	case nil:
		return nil, nil
	case string:
		return strings.NewReader(q), nil
	case []byte:
		return bytes.NewReader(q), nil
	case io.Reader:
		return q, nil
	default:
		raw, err := json.Marshal(q)
		if err != nil {
			return nil, &repository.BackendError{Status: http.StatusBadRequest, Type: "parsing_exception", Reason: err.Error()}
		}
		return bytes.NewReader(raw), nil
	}
}

// countBody keeps only the query clause: the count API rejects from, size,
// sort and aggregations.
func countBody(query any) (io.Reader, error) {
	body, ok := query.(map[string]any)
	if !ok {
		return queryBody(query)
	}
	clause, ok := body["query"]
	if !ok {
		return nil, nil
	}
	return queryBody(map[string]any{"query": clause})
}
