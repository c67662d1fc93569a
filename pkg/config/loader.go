package config

import (
	"errors"
	"fmt"
	"reflect"
	"sync"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// entry holds one parsed configuration type.
type entry struct {
	once  sync.Once
	value any
	err   error
}

type registry struct {
	mu      sync.Mutex
	entries map[string]*entry
}

func (r *registry) get(key string) *entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[key]
	if !ok {
		e = &entry{}
		r.entries[key] = e
	}
	return e
}

func (r *registry) reset(key string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if key == "" {
		r.entries = make(map[string]*entry)
		return
	}
	delete(r.entries, key)
}

var (
	cache = &registry{entries: make(map[string]*entry)}

	dotenvOnce sync.Once
)

// Load parses environment variables into v using `env` struct tags. Each
// configuration type is parsed once per process; later calls copy the cached
// value into v. The default .env file is loaded on first use if present.
//
//	type Config struct {
//	    Addresses []string `env:"OPENSEARCH_ADDRESSES,required"`
//	}
//
//	var cfg Config
//	if err := config.Load(&cfg); err != nil {
//	    // handle error
//	}
func Load[T any](v *T) error {
	if v == nil {
		return ErrNilPointer
	}
	dotenvOnce.Do(func() {
		// A missing .env file is not an error.
		_ = godotenv.Load()
	})

	e := cache.get(typeKey[T]())
	e.once.Do(func() {
		var parsed T
		if err := env.Parse(&parsed); err != nil {
			e.err = errors.Join(ErrParsingConfig, err)
			return
		}
		e.value = parsed
	})
	if e.err != nil {
		// Parsing failures are not cached so a corrected environment can be retried.
		cache.reset(typeKey[T]())
		return e.err
	}

	parsed, ok := e.value.(T)
	if !ok {
		return ErrConfigNotLoaded
	}
	*v = parsed
	return nil
}

// Get is Load returning the value.
func Get[T any]() (T, error) {
	var v T
	err := Load(&v)
	return v, err
}

// MustLoad is Load panicking on failure, for configuration a service cannot
// start without.
func MustLoad[T any](v *T) {
	if err := Load(v); err != nil {
		panic(fmt.Sprintf("failed to load required configuration: %v", err))
	}
}

// LoadEnv loads the given .env files into the process environment. Variables
// already set are not overridden. Without arguments the default .env is read.
func LoadEnv(files ...string) error {
	if err := godotenv.Load(files...); err != nil {
		return errors.Join(ErrLoadingEnvFile, err)
	}
	return nil
}

// MustLoadEnv is LoadEnv panicking on failure.
func MustLoadEnv(files ...string) {
	if err := LoadEnv(files...); err != nil {
		panic(err)
	}
}

// ForceReload drops the cached value of T and parses the environment again.
func ForceReload[T any](v *T) error {
	cache.reset(typeKey[T]())
	return Load(v)
}

// ResetCache drops every cached configuration.
func ResetCache() {
	cache.reset("")
}

func typeKey[T any]() string {
	t := reflect.TypeFor[T]()
	if t.PkgPath() == "" {
		return t.String()
	}
	return t.PkgPath() + "." + t.Name()
}
