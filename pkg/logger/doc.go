// Package logger builds *slog.Logger instances with functional options and
// provides attribute helpers so that repositories, clients and decorators log
// with consistent keys (index, document_id, operation, duration_ms, error).
//
// # Usage
//
//	log := logger.New(
//	    logger.WithEnvironment("production", "search-api"),
//	    logger.WithContextValue("request_id", ctxKeyRequestID),
//	)
//	logger.SetAsDefault(log)
//
//	log.InfoContext(ctx, "search",
//	    logger.Index("notes"),
//	    logger.Hits(3),
//	    logger.DurationMS(elapsed),
//	)
//
// Error and DocumentID return an empty attribute for zero values, so they can be
// passed unconditionally.
package logger
