package instrumentation

// Config configures WrapFromEnv.
type Config struct {
	Environment string `env:"APP_ENV" envDefault:"development"`
	Service     string `env:"SERVICE_NAME" envDefault:"searchkit"`
	Backend     string `env:"SEARCHKIT_BACKEND" envDefault:"unknown"`
	Metrics     bool   `env:"SEARCHKIT_METRICS" envDefault:"true"`
}
