package loader

import "time"

// Metrics provides observability for loader operations.
//
// Optional - pass nil to New for zero overhead. Implementations must be
// safe for concurrent use.
//
// Example implementations:
//   - Prometheus metrics (pkg/metrics/prometheus)
//   - In-memory counters for testing
type Metrics interface {
	// ObserveFetchStart records that a fetch was started for a chunk.
	ObserveFetchStart(id string)

	// ObserveDedup records a request served by an existing entry
	// (pending handle reuse or settled cache hit).
	ObserveDedup(id string)

	// ObserveResolve records a successful settle. duration is zero for
	// out-of-band deliveries, where the loader did not time the fetch.
	ObserveResolve(id string, bytes int, duration time.Duration)

	// ObserveReject records a handle rejection.
	ObserveReject(id string)

	// ObserveEvict records an entry eviction after failure.
	ObserveEvict(id string)

	// ObservePreload records preload registrations actually created
	// (already-tracked ids are not counted).
	ObservePreload(count int)
}
