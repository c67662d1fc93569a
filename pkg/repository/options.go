package repository

import (
	"log/slog"
	"sync"
)

// DefaultIndexName is used when neither the options nor the owning type declare an index name.
const DefaultIndexName = "repository"

// Options holds instance-level settings. Zero fields fall through to the
// declared defaults of Options.Defaults and then to built-in fallbacks.
type Options struct {
	Client       Client
	IndexName    string
	DocumentType string
	Mapping      *Mapping
	Settings     *Settings

	// Defaults is the owning type. It may implement any of the *Declarer
	// interfaces to provide type-level defaults.
	Defaults any

	Logger *slog.Logger
}

// ClientDeclarer provides a type-level default client.
type ClientDeclarer interface {
	DeclaredClient() Client
}

// IndexNameDeclarer provides a type-level default index name.
type IndexNameDeclarer interface {
	DeclaredIndexName() string
}

// DocumentTypeDeclarer provides a type-level default document type.
type DocumentTypeDeclarer interface {
	DeclaredDocumentType() string
}

// MappingDeclarer provides a type-level mapping.
type MappingDeclarer interface {
	DeclaredMapping() *Mapping
}

// SettingsDeclarer provides type-level settings.
type SettingsDeclarer interface {
	DeclaredSettings() *Settings
}

// lazy memoizes a single resolved value.
type lazy[V any] struct {
	once  sync.Once
	value V
}

func (l *lazy[V]) get(resolve func() V) V {
	l.once.Do(func() { l.value = resolve() })
	return l.value
}

// Config is the resolved configuration of a repository. Every accessor resolves
// its value on first call and returns the cached value afterwards, even if the
// declared defaults change later.
type Config struct {
	opts Options

	client       lazy[Client]
	indexName    lazy[string]
	documentType lazy[string]
	mapping      lazy[*Mapping]
	settings     lazy[*Settings]
}

func newConfig(opts Options) *Config {
	return &Config{opts: opts}
}

// Client returns the resolved client or nil.
func (c *Config) Client() Client {
	return c.client.get(func() Client {
		if c.opts.Client != nil {
			return c.opts.Client
		}
		if d, ok := c.opts.Defaults.(ClientDeclarer); ok {
			return d.DeclaredClient()
		}
		return nil
	})
}

// IndexName returns the resolved index name. It is never empty.
func (c *Config) IndexName() string {
	return c.indexName.get(func() string {
		if c.opts.IndexName != "" {
			return c.opts.IndexName
		}
		if d, ok := c.opts.Defaults.(IndexNameDeclarer); ok {
			if name := d.DeclaredIndexName(); name != "" {
				return name
			}
		}
		return DefaultIndexName
	})
}

// DocumentType returns the resolved document type or "".
func (c *Config) DocumentType() string {
	return c.documentType.get(func() string {
		if c.opts.DocumentType != "" {
			return c.opts.DocumentType
		}
		if d, ok := c.opts.Defaults.(DocumentTypeDeclarer); ok {
			return d.DeclaredDocumentType()
		}
		return ""
	})
}

// Mapping returns the resolved mapping. A type-level mapping is copied and
// annotated with the effective document type; without any declaration a new
// empty mapping is returned.
func (c *Config) Mapping() *Mapping {
	return c.mapping.get(func() *Mapping {
		if c.opts.Mapping != nil {
			return c.opts.Mapping
		}
		if d, ok := c.opts.Defaults.(MappingDeclarer); ok {
			if m := d.DeclaredMapping(); m != nil {
				return m.annotated(c.DocumentType())
			}
		}
		m := NewMapping()
		m.documentType = c.DocumentType()
		return m
	})
}

// Settings returns the resolved settings, falling back to empty settings.
func (c *Config) Settings() *Settings {
	return c.settings.get(func() *Settings {
		if c.opts.Settings != nil {
			return c.opts.Settings
		}
		if d, ok := c.opts.Defaults.(SettingsDeclarer); ok {
			if s := d.DeclaredSettings(); s != nil {
				return s.clone()
			}
		}
		return NewSettings()
	})
}

// Logger returns the configured logger or a logger discarding everything.
func (c *Config) Logger() *slog.Logger {
	if c.opts.Logger != nil {
		return c.opts.Logger
	}
	return discardLogger
}

var discardLogger = slog.New(slog.DiscardHandler)
