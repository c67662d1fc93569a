package opensearch

// Config holds OpenSearch connection parameters with environment variable mapping.
// Load it with github.com/dmitrymomot/searchkit/pkg/config.
type Config struct {
	Addresses    []string `env:"OPENSEARCH_ADDRESSES,required"`
	Username     string   `env:"OPENSEARCH_USERNAME"`
	Password     string   `env:"OPENSEARCH_PASSWORD"`
	MaxRetries   int      `env:"OPENSEARCH_MAX_RETRIES" envDefault:"3"`
	DisableRetry bool     `env:"OPENSEARCH_DISABLE_RETRY" envDefault:"false"`

	// Refresh is passed as the refresh parameter of write requests:
	// "true", "false" or "wait_for". Empty leaves the cluster default.
	Refresh string `env:"OPENSEARCH_REFRESH"`
}
