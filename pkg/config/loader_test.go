package config_test

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/searchkit/pkg/config"
)

type indexConfig struct {
	Index   string   `env:"SEARCHKIT_TEST_INDEX" envDefault:"notes"`
	Hosts   []string `env:"SEARCHKIT_TEST_HOSTS" envSeparator:","`
	Retries int      `env:"SEARCHKIT_TEST_RETRIES" envDefault:"3"`
}

type requiredConfig struct {
	URL string `env:"SEARCHKIT_TEST_REQUIRED_URL,required"`
}

type fileConfig struct {
	Index  string `env:"SEARCHKIT_TEST_FILE_INDEX"`
	Shards int    `env:"SEARCHKIT_TEST_FILE_SHARDS"`
}

func TestLoad(t *testing.T) {
	config.ResetCache()
	t.Setenv("SEARCHKIT_TEST_HOSTS", "http://a:9200,http://b:9200")

	var cfg indexConfig
	require.NoError(t, config.Load(&cfg))
	assert.Equal(t, "notes", cfg.Index)
	assert.Equal(t, []string{"http://a:9200", "http://b:9200"}, cfg.Hosts)
	assert.Equal(t, 3, cfg.Retries)
}

func TestLoadIsCached(t *testing.T) {
	config.ResetCache()
	t.Setenv("SEARCHKIT_TEST_INDEX", "first")

	var cfg indexConfig
	require.NoError(t, config.Load(&cfg))
	assert.Equal(t, "first", cfg.Index)

	t.Setenv("SEARCHKIT_TEST_INDEX", "second")
	var again indexConfig
	require.NoError(t, config.Load(&again))
	assert.Equal(t, "first", again.Index)

	require.NoError(t, config.ForceReload(&again))
	assert.Equal(t, "second", again.Index)
}

func TestLoadNilPointer(t *testing.T) {
	var cfg *indexConfig
	assert.ErrorIs(t, config.Load(cfg), config.ErrNilPointer)
}

func TestLoadRequiredMissing(t *testing.T) {
	config.ResetCache()
	os.Unsetenv("SEARCHKIT_TEST_REQUIRED_URL")

	var cfg requiredConfig
	err := config.Load(&cfg)
	require.Error(t, err)
	assert.ErrorIs(t, err, config.ErrParsingConfig)

	t.Setenv("SEARCHKIT_TEST_REQUIRED_URL", "http://localhost:9200")
	require.NoError(t, config.Load(&cfg), "failed parses must not be cached")
	assert.Equal(t, "http://localhost:9200", cfg.URL)
}

func TestGet(t *testing.T) {
	config.ResetCache()
	t.Setenv("SEARCHKIT_TEST_RETRIES", "7")

	cfg, err := config.Get[indexConfig]()
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.Retries)
}

func TestMustLoadPanics(t *testing.T) {
	config.ResetCache()
	os.Unsetenv("SEARCHKIT_TEST_REQUIRED_URL")

	assert.Panics(t, func() {
		var cfg requiredConfig
		config.MustLoad(&cfg)
	})
}

func TestLoadEnv(t *testing.T) {
	config.ResetCache()
	os.Unsetenv("SEARCHKIT_TEST_FILE_INDEX")
	os.Unsetenv("SEARCHKIT_TEST_FILE_SHARDS")
	t.Cleanup(func() {
		os.Unsetenv("SEARCHKIT_TEST_FILE_INDEX")
		os.Unsetenv("SEARCHKIT_TEST_FILE_SHARDS")
	})

	require.NoError(t, config.LoadEnv("testdata/.env.test"))

	var cfg fileConfig
	require.NoError(t, config.Load(&cfg))
	assert.Equal(t, "from_file", cfg.Index)
	assert.Equal(t, 3, cfg.Shards)
}

func TestLoadEnvMissingFile(t *testing.T) {
	err := config.LoadEnv("testdata/does-not-exist.env")
	assert.ErrorIs(t, err, config.ErrLoadingEnvFile)

	assert.Panics(t, func() {
		config.MustLoadEnv("testdata/does-not-exist.env")
	})
}
