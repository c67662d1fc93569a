package logger

import (
	"log/slog"
	"strconv"
	"time"
)

// Group creates a slog group attribute from the provided attributes.
func Group(name string, attrs ...slog.Attr) slog.Attr {
	return slog.Attr{Key: name, Value: slog.GroupValue(attrs...)}
}

// Errors groups multiple non-nil errors under the key "errors".
// If all errors are nil, it returns an empty Attr.
func Errors(errs ...error) slog.Attr {
	as := make([]slog.Attr, 0, len(errs))
	for i, err := range errs {
		if err != nil {
			as = append(as, slog.Any(strconv.Itoa(i), err))
		}
	}
	if len(as) == 0 {
		return slog.Attr{}
	}
	return slog.Attr{Key: "errors", Value: slog.GroupValue(as...)}
}

// Error creates an attribute for a single error under the key "error".
// If err is nil, it returns an empty Attr.
func Error(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.Any("error", err)
}

// Index records the index or collection name under the key "index".
func Index(name string) slog.Attr {
	return slog.String("index", name)
}

// DocumentID records a document identifier under the key "document_id".
// An empty id yields an empty Attr.
func DocumentID(id string) slog.Attr {
	if id == "" {
		return slog.Attr{}
	}
	return slog.String("document_id", id)
}

// Operation records the backend operation under the key "operation".
func Operation(name string) slog.Attr {
	return slog.String("operation", name)
}

// Backend records the backend kind under the key "backend".
func Backend(name string) slog.Attr {
	return slog.String("backend", name)
}

// Hits records the number of search hits under the key "hits".
func Hits(n int) slog.Attr {
	return slog.Int("hits", n)
}

// Duration records a duration under the key "duration".
func Duration(d time.Duration) slog.Attr {
	return slog.Duration("duration", d)
}

// DurationMS records a duration in milliseconds with one decimal under the key
// "duration_ms", the format request logs use.
func DurationMS(d time.Duration) slog.Attr {
	return slog.String("duration_ms", strconv.FormatFloat(float64(d.Microseconds())/1000, 'f', 1, 64))
}

// Component records the component name under the key "component".
func Component(name string) slog.Attr {
	return slog.String("component", name)
}
