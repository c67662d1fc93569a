package instrumentation

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus collectors updated by the Client decorator.
// Labels: backend, operation, index, outcome (ok, not_found, unsupported, error).
type Metrics struct {
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

var metricLabels = []string{"backend", "operation", "index", "outcome"}

// NewMetrics creates the collectors and registers them with reg. Collectors
// already registered under the same names are reused, so several clients may
// share one registry.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	requests := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "searchkit",
			Subsystem: "backend",
			Name:      "requests_total",
			Help:      "Total number of backend requests",
		},
		metricLabels,
	)
	duration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "searchkit",
			Subsystem: "backend",
			Name:      "request_duration_seconds",
			Help:      "Duration of backend requests in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		metricLabels,
	)

	var err error
	if requests, err = register(reg, requests); err != nil {
		return nil, err
	}
	if duration, err = register(reg, duration); err != nil {
		return nil, err
	}
	return &Metrics{requests: requests, duration: duration}, nil
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if reg == nil {
		return c, nil
	}
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		var zero C
		return zero, errors.Join(ErrMetricsRegistration, err)
	}
	return c, nil
}

func (m *Metrics) observe(backend, op, index, outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(backend, op, index, outcome).Inc()
	m.duration.WithLabelValues(backend, op, index, outcome).Observe(seconds)
}
