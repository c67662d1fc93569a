// Package config loads typed configuration from environment variables.
//
// It combines github.com/joho/godotenv (.env files) with
// github.com/caarlos0/env/v11 (struct tag parsing). Every backend package in
// this module declares a Config struct with `env` tags and a constructor
// reading it through Load, for example opensearch.NewFromEnv.
//
// # Usage
//
//	if err := config.LoadEnv(".env.local"); err != nil {
//	    // handle error
//	}
//
//	var cfg opensearch.Config
//	if err := config.Load(&cfg); err != nil {
//	    // errors.Is(err, config.ErrParsingConfig)
//	}
//
// Each configuration type is parsed once per process and cached; ForceReload
// and ResetCache drop cached values, which is mostly useful in tests.
package config
