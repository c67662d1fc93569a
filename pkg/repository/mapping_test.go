package repository_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/searchkit/pkg/repository"
)

func TestMappingBuilder(t *testing.T) {
	t.Parallel()
	m := repository.NewMapping().
		Indexes("title", map[string]any{"type": "text"}).
		Indexes("title", map[string]any{"analyzer": "snowball"}).
		Indexes("created_at", map[string]any{"type": "date"}).
		Option("dynamic", "strict")

	assert.False(t, m.IsEmpty())
	assert.ElementsMatch(t, []string{"title", "created_at"}, m.Fields())
	assert.Equal(t, map[string]any{
		"dynamic": "strict",
		"properties": map[string]any{
			"title":      map[string]any{"type": "text", "analyzer": "snowball"},
			"created_at": map[string]any{"type": "date"},
		},
	}, m.Body())

	body := m.Body()
	body["properties"].(map[string]any)["title"].(map[string]any)["type"] = "keyword"
	assert.Equal(t, "text", m.Body()["properties"].(map[string]any)["title"].(map[string]any)["type"])
}

func TestSettingsBuilder(t *testing.T) {
	t.Parallel()
	s := repository.NewSettings()
	assert.True(t, s.IsEmpty())

	s.Set("number_of_shards", 1).Merge(map[string]any{"number_of_replicas": 0})
	assert.Equal(t, map[string]any{"number_of_shards": 1, "number_of_replicas": 0}, s.Body())
}

func TestLoadSchema(t *testing.T) {
	t.Parallel()
	src := `
settings:
  number_of_shards: 1
  analysis:
    analyzer:
      folding:
        tokenizer: standard
mappings:
  dynamic: strict
  properties:
    title:
      type: text
      analyzer: folding
    views:
      type: long
`
	schema, err := repository.LoadSchema(strings.NewReader(src))
	require.NoError(t, err)

	assert.Equal(t, 1, schema.Settings.Body()["number_of_shards"])
	assert.Contains(t, schema.Settings.Body(), "analysis")
	assert.Equal(t, map[string]any{
		"dynamic": "strict",
		"properties": map[string]any{
			"title": map[string]any{"type": "text", "analyzer": "folding"},
			"views": map[string]any{"type": "long"},
		},
	}, schema.Mapping.Body())
}

func TestLoadSchemaEmpty(t *testing.T) {
	t.Parallel()
	schema, err := repository.LoadSchema(strings.NewReader(""))
	require.NoError(t, err)
	assert.True(t, schema.Mapping.IsEmpty())
	assert.True(t, schema.Settings.IsEmpty())
}

func TestLoadSchemaInvalid(t *testing.T) {
	t.Parallel()
	_, err := repository.LoadSchema(strings.NewReader("mappings: [unclosed"))
	assert.ErrorIs(t, err, repository.ErrConfig)
}
