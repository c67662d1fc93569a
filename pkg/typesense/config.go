package typesense

import "time"

// Config holds Typesense connection parameters.
type Config struct {
	URL               string        `env:"TYPESENSE_URL,required"`
	APIKey            string        `env:"TYPESENSE_API_KEY,required"`
	ConnectionTimeout time.Duration `env:"TYPESENSE_CONNECTION_TIMEOUT" envDefault:"5s"`
	HealthTimeout     time.Duration `env:"TYPESENSE_HEALTH_TIMEOUT" envDefault:"5s"`
}
