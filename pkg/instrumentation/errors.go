package instrumentation

import "errors"

var (
	ErrMetricsRegistration = errors.New("failed to register backend metrics")
	ErrInvalidConfig       = errors.New("invalid instrumentation config")
)
