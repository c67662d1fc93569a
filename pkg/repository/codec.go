package repository

import (
	"bytes"
	"encoding/json"
	"errors"
	"maps"
	"strconv"
)

// Source is a raw document body. Repository[Source] returns raw mappings
// merged with metadata instead of typed values.
type Source = map[string]any

// Metadata keys merged into raw results.
const (
	MetaID      = "id"
	MetaVersion = "_version"
	MetaScore   = "_score"
)

// Serializer is implemented by domain objects controlling their stored form.
type Serializer interface {
	ToDocument() (map[string]any, error)
}

// Identifier is implemented by domain objects that know their document id.
type Identifier interface {
	DocumentID() string
}

// Meta is the store-assigned metadata of a document.
type Meta struct {
	ID      string
	Index   string
	Version int64
	Score   *float64
}

// MetaSetter is implemented by domain objects accepting store metadata.
type MetaSetter interface {
	SetMeta(Meta)
}

// Codec converts between domain values and documents.
type Codec[T any] struct{}

// Serialize flattens v into a document body.
func (Codec[T]) Serialize(v any) (map[string]any, error) {
	switch val := v.(type) {
	case nil:
		return nil, errors.Join(ErrInvalidDocument, errors.New("nil value"))
	case Serializer:
		body, err := val.ToDocument()
		if err != nil {
			return nil, errors.Join(ErrInvalidDocument, err)
		}
		return body, nil
	case map[string]any:
		return val, nil
	}

	raw, err := json.Marshal(v)
	if err != nil {
		return nil, errors.Join(ErrInvalidDocument, err)
	}
	body, err := decodeBody(raw)
	if err != nil {
		return nil, err
	}
	return body, nil
}

// Deserialize builds a T from doc. For Source the result is a copy of the
// source merged with metadata; doc.Source itself is left untouched.
func (Codec[T]) Deserialize(doc Document) (T, error) {
	var out T
	if raw, ok := any(&out).(*Source); ok {
		*raw = mergeMeta(doc)
		return out, nil
	}

	data, err := json.Marshal(doc.Source)
	if err != nil {
		return out, errors.Join(ErrInvalidDocument, err)
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return out, errors.Join(ErrInvalidDocument, err)
	}

	meta := Meta{ID: doc.ID, Index: doc.Index, Version: doc.Version, Score: doc.Score}
	if s, ok := any(&out).(MetaSetter); ok {
		s.SetMeta(meta)
	} else if s, ok := any(out).(MetaSetter); ok {
		s.SetMeta(meta)
	}
	return out, nil
}

func mergeMeta(doc Document) Source {
	out := make(Source, len(doc.Source)+3)
	maps.Copy(out, doc.Source)
	if doc.ID != "" {
		out[MetaID] = doc.ID
	}
	if doc.Version > 0 {
		out[MetaVersion] = doc.Version
	}
	if doc.Score != nil {
		out[MetaScore] = *doc.Score
	}
	return out
}

// decodeBody decodes a JSON object keeping integers exact.
func decodeBody(raw []byte) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var body map[string]any
	if err := dec.Decode(&body); err != nil {
		return nil, errors.Join(ErrInvalidDocument, err)
	}
	if body == nil {
		return nil, errors.Join(ErrInvalidDocument, errors.New("value does not encode to an object"))
	}
	return normalize(body).(map[string]any), nil
}

// normalize replaces json.Number values with int64 or float64.
func normalize(v any) any {
	switch val := v.(type) {
	case map[string]any:
		for k, item := range val {
			val[k] = normalize(item)
		}
		return val
	case []any:
		for i, item := range val {
			val[i] = normalize(item)
		}
		return val
	case json.Number:
		if i, err := strconv.ParseInt(val.String(), 10, 64); err == nil {
			return i
		}
		f, _ := val.Float64()
		return f
	default:
		return v
	}
}

// DecodeBody decodes a JSON object into a document body with exact integers.
// Clients use it to decode _source payloads.
func DecodeBody(raw []byte) (map[string]any, error) {
	return decodeBody(raw)
}
