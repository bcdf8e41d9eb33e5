// Package metrics provides the Prometheus registry gate and metric
// constructors for fusion components.
//
// Metrics are opt-in: nothing is collected until InitRegistry is called.
// Constructors return nil when metrics are disabled, and all consumers
// accept a nil metrics instance for zero overhead.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

var (
	mu       sync.Mutex
	registry *prometheus.Registry
)

// InitRegistry creates the global metrics registry and enables collection.
//
// Must be called before any metric constructor for metrics to be recorded.
// Calling it more than once is safe; subsequent calls keep the existing
// registry.
//
// The registry includes the standard Go runtime and process collectors.
func InitRegistry() {
	mu.Lock()
	defer mu.Unlock()

	if registry != nil {
		return
	}

	registry = prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
}

// IsEnabled returns whether metrics collection is enabled.
func IsEnabled() bool {
	mu.Lock()
	defer mu.Unlock()
	return registry != nil
}

// GetRegistry returns the global metrics registry.
//
// Returns nil if InitRegistry has not been called.
func GetRegistry() *prometheus.Registry {
	mu.Lock()
	defer mu.Unlock()
	return registry
}

// ResetRegistry discards the global registry and disables collection.
//
// Intended for tests that need a fresh registry; production code never
// calls this.
func ResetRegistry() {
	mu.Lock()
	defer mu.Unlock()
	registry = nil
}
