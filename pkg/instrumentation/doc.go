// Package instrumentation observes backend traffic of repository clients.
//
// Wrap decorates any repository.Client. Each request produces a structured log
// record, increments Prometheus counters and histograms, starts an
// OpenTelemetry client span and adds its duration to the Runtime attached to
// the context:
//
//	metrics, err := instrumentation.NewMetrics(prometheus.DefaultRegisterer)
//	client := instrumentation.Wrap(store,
//	    instrumentation.WithBackend("opensearch"),
//	    instrumentation.WithLogger(log),
//	    instrumentation.WithMetrics(metrics),
//	)
//
//	ctx, rt := instrumentation.WithRuntime(r.Context())
//	// ... repository calls with ctx ...
//	log.InfoContext(ctx, "request done", logger.DurationMS(rt.Duration()))
//
// WrapFromEnv does the same from APP_ENV, SERVICE_NAME, SEARCHKIT_BACKEND and
// SEARCHKIT_METRICS, logging to stderr through NewLogger.
//
// Requests are classified as ok, not_found, unsupported or error. Only error
// is logged at warn level and marks the span as failed.
package instrumentation
