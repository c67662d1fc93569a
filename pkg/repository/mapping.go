package repository

import (
	"errors"
	"io"
	"maps"
	"sync"

	"gopkg.in/yaml.v3"
)

// Mapping describes the document schema of an index. The repository does not
// interpret it; it is handed to the backend on index creation or PutMapping.
type Mapping struct {
	mu           sync.RWMutex
	documentType string
	properties   map[string]map[string]any
	options      map[string]any
}

// NewMapping returns an empty mapping.
func NewMapping() *Mapping {
	return &Mapping{
		properties: make(map[string]map[string]any),
		options:    make(map[string]any),
	}
}

// Indexes declares a field. Properties are merged into any previous declaration
// of the same field.
func (m *Mapping) Indexes(field string, props map[string]any) *Mapping {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.properties[field]
	if !ok {
		cur = make(map[string]any, len(props))
		m.properties[field] = cur
	}
	maps.Copy(cur, props)
	return m
}

// Option sets a top-level mapping option such as "dynamic" or "_source".
func (m *Mapping) Option(key string, value any) *Mapping {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.options[key] = value
	return m
}

// DocumentType returns the document type the mapping was annotated with.
func (m *Mapping) DocumentType() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.documentType
}

// Fields returns the declared field names.
func (m *Mapping) Fields() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.properties))
	for name := range m.properties {
		out = append(out, name)
	}
	return out
}

// Body renders the mapping as a request body fragment.
func (m *Mapping) Body() map[string]any {
	m.mu.RLock()
	defer m.mu.RUnlock()
	body := make(map[string]any, len(m.options)+1)
	for k, v := range m.options {
		body[k] = v
	}
	if len(m.properties) > 0 {
		props := make(map[string]any, len(m.properties))
		for name, p := range m.properties {
			props[name] = maps.Clone(p)
		}
		body["properties"] = props
	}
	return body
}

// IsEmpty reports whether nothing was declared.
func (m *Mapping) IsEmpty() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.properties) == 0 && len(m.options) == 0
}

func (m *Mapping) annotated(documentType string) *Mapping {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := NewMapping()
	out.documentType = documentType
	maps.Copy(out.options, m.options)
	for name, p := range m.properties {
		out.properties[name] = maps.Clone(p)
	}
	return out
}

// Settings holds index settings such as shard counts or analyzers.
type Settings struct {
	mu     sync.RWMutex
	values map[string]any
}

// NewSettings returns empty settings.
func NewSettings() *Settings {
	return &Settings{values: make(map[string]any)}
}

// Set assigns a setting.
func (s *Settings) Set(key string, value any) *Settings {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
	return s
}

// Merge copies every entry of values into the settings.
func (s *Settings) Merge(values map[string]any) *Settings {
	s.mu.Lock()
	defer s.mu.Unlock()
	maps.Copy(s.values, values)
	return s
}

// Body renders the settings as a request body fragment.
func (s *Settings) Body() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return maps.Clone(s.values)
}

// IsEmpty reports whether no setting was assigned.
func (s *Settings) IsEmpty() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.values) == 0
}

func (s *Settings) clone() *Settings {
	return NewSettings().Merge(s.Body())
}

// Schema is a mapping and settings pair loaded from a definition file.
type Schema struct {
	Mapping  *Mapping
	Settings *Settings
}

type schemaFile struct {
	Settings map[string]any `yaml:"settings"`
	Mappings struct {
		Options    map[string]any            `yaml:",inline"`
		Properties map[string]map[string]any `yaml:"properties"`
	} `yaml:"mappings"`
}

// LoadSchema reads a YAML index definition:
//
//	settings:
//	  number_of_shards: 1
//	mappings:
//	  dynamic: strict
//	  properties:
//	    title: {type: text, analyzer: snowball}
func LoadSchema(r io.Reader) (Schema, error) {
	var f schemaFile
	if err := yaml.NewDecoder(r).Decode(&f); err != nil && !errors.Is(err, io.EOF) {
		return Schema{}, errors.Join(ErrConfig, err)
	}

	mapping := NewMapping()
	for name, props := range f.Mappings.Properties {
		mapping.Indexes(name, props)
	}
	for k, v := range f.Mappings.Options {
		mapping.Option(k, v)
	}

	return Schema{
		Mapping:  mapping,
		Settings: NewSettings().Merge(f.Settings),
	}, nil
}
