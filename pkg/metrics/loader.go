package metrics

import (
	"github.com/lhorie/fusion-cli/pkg/loader"
)

// NewLoaderMetrics creates a new Prometheus-backed loader.Metrics instance.
//
// Returns nil if metrics are not enabled (InitRegistry not called).
// When nil is returned, callers should pass nil to loader.New, which
// results in zero overhead.
//
// Example usage:
//
//	// With metrics enabled
//	metrics.InitRegistry()
//	ld := loader.New(fetcher, metrics.NewLoaderMetrics())
//
//	// Without metrics (zero overhead)
//	ld := loader.New(fetcher, nil)
func NewLoaderMetrics() loader.Metrics {
	if !IsEnabled() || newPrometheusLoaderMetrics == nil {
		return nil
	}

	return newPrometheusLoaderMetrics()
}

// newPrometheusLoaderMetrics is implemented in pkg/metrics/prometheus/loader.go
// This indirection avoids import cycles while keeping the API clean
var newPrometheusLoaderMetrics func() loader.Metrics

// RegisterLoaderMetricsConstructor registers the Prometheus loader metrics
// constructor. Called by pkg/metrics/prometheus/loader.go during package
// initialization.
func RegisterLoaderMetricsConstructor(constructor func() loader.Metrics) {
	newPrometheusLoaderMetrics = constructor
}
