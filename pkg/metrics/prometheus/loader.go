// Package prometheus contains the Prometheus-backed implementations of the
// metric interfaces consumed by fusion components.
package prometheus

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/lhorie/fusion-cli/pkg/loader"
	"github.com/lhorie/fusion-cli/pkg/metrics"
)

func init() {
	metrics.RegisterLoaderMetricsConstructor(NewLoaderMetrics)
}

// loaderMetrics is the Prometheus implementation of loader.Metrics.
type loaderMetrics struct {
	fetchesStarted *prometheus.CounterVec
	dedupHits      *prometheus.CounterVec
	resolves       *prometheus.CounterVec
	resolveBytes   prometheus.Histogram
	fetchDuration  prometheus.Histogram
	rejections     *prometheus.CounterVec
	evictions      *prometheus.CounterVec
	preloads       prometheus.Counter
}

var (
	instanceMu  sync.Mutex
	instance    *loaderMetrics
	instanceReg *prometheus.Registry
)

// NewLoaderMetrics returns the Prometheus-backed loader.Metrics instance.
//
// Returns nil if metrics are not enabled (InitRegistry not called).
// Collectors can only be registered once per registry, so repeated calls
// return the same instance; watch-mode rebuilds construct a loader per
// build and share these collectors.
func NewLoaderMetrics() loader.Metrics {
	if !metrics.IsEnabled() {
		return nil
	}

	instanceMu.Lock()
	defer instanceMu.Unlock()

	reg := metrics.GetRegistry()
	if instance != nil && instanceReg == reg {
		return instance
	}

	instance = newLoaderMetrics(reg)
	instanceReg = reg
	return instance
}

func newLoaderMetrics(reg *prometheus.Registry) *loaderMetrics {
	return &loaderMetrics{
		fetchesStarted: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "fusion_loader_fetches_started_total",
				Help: "Total number of chunk fetches started, by chunk id",
			},
			[]string{"chunk"},
		),
		dedupHits: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "fusion_loader_dedup_hits_total",
				Help: "Total number of requests served by an existing entry instead of a new fetch",
			},
			[]string{"chunk"},
		),
		resolves: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "fusion_loader_resolves_total",
				Help: "Total number of chunks settled successfully",
			},
			[]string{"chunk"},
		),
		resolveBytes: promauto.With(reg).NewHistogram(
			prometheus.HistogramOpts{
				Name: "fusion_loader_resolve_bytes",
				Help: "Distribution of resolved chunk sizes in bytes",
				Buckets: []float64{
					1024,    // 1KB - tiny chunks
					4096,    // 4KB
					16384,   // 16KB
					65536,   // 64KB
					262144,  // 256KB
					1048576, // 1MB - large vendor chunks
					4194304, // 4MB
				},
			},
		),
		fetchDuration: promauto.With(reg).NewHistogram(
			prometheus.HistogramOpts{
				Name: "fusion_loader_fetch_duration_milliseconds",
				Help: "Duration of chunk fetches in milliseconds",
				Buckets: []float64{
					0.5,  // local disk reads
					1,    // 1ms
					5,    // 5ms
					10,   // 10ms
					50,   // 50ms
					100,  // 100ms
					500,  // 500ms - slow network fetches
					1000, // 1s
					5000, // 5s
				},
			},
		),
		rejections: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "fusion_loader_rejections_total",
				Help: "Total number of handle rejections",
			},
			[]string{"chunk"},
		),
		evictions: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "fusion_loader_evictions_total",
				Help: "Total number of entries evicted after a failure",
			},
			[]string{"chunk"},
		),
		preloads: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "fusion_loader_preloads_total",
				Help: "Total number of preload placeholders registered",
			},
		),
	}
}

func (m *loaderMetrics) ObserveFetchStart(id string) {
	if m == nil {
		return
	}
	m.fetchesStarted.WithLabelValues(id).Inc()
}

func (m *loaderMetrics) ObserveDedup(id string) {
	if m == nil {
		return
	}
	m.dedupHits.WithLabelValues(id).Inc()
}

func (m *loaderMetrics) ObserveResolve(id string, bytes int, duration time.Duration) {
	if m == nil {
		return
	}
	m.resolves.WithLabelValues(id).Inc()
	if bytes > 0 {
		m.resolveBytes.Observe(float64(bytes))
	}
	// Out-of-band deliveries are not timed by the loader.
	if duration > 0 {
		m.fetchDuration.Observe(duration.Seconds() * 1000)
	}
}

func (m *loaderMetrics) ObserveReject(id string) {
	if m == nil {
		return
	}
	m.rejections.WithLabelValues(id).Inc()
}

func (m *loaderMetrics) ObserveEvict(id string) {
	if m == nil {
		return
	}
	m.evictions.WithLabelValues(id).Inc()
}

func (m *loaderMetrics) ObservePreload(count int) {
	if m == nil {
		return
	}
	m.preloads.Add(float64(count))
}
