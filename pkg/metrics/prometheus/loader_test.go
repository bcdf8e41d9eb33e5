package prometheus

import (
	"testing"
	"time"

	"github.com/lhorie/fusion-cli/pkg/metrics"
)

func TestNewLoaderMetrics_NilWhenDisabled(t *testing.T) {
	metrics.ResetRegistry()

	if m := NewLoaderMetrics(); m != nil {
		t.Fatal("expected nil metrics when registry is not initialized")
	}
}

func TestLoaderMetrics_Observations(t *testing.T) {
	metrics.ResetRegistry()
	metrics.InitRegistry()
	defer metrics.ResetRegistry()

	m := NewLoaderMetrics()
	if m == nil {
		t.Fatal("expected metrics instance when registry is initialized")
	}

	m.ObserveFetchStart("math")
	m.ObserveDedup("math")
	m.ObserveResolve("math", 2048, 5*time.Millisecond)
	m.ObserveReject("broken")
	m.ObserveEvict("broken")
	m.ObservePreload(3)

	families, err := metrics.GetRegistry().Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}

	values := map[string]float64{}
	for _, mf := range families {
		for _, metric := range mf.GetMetric() {
			if c := metric.GetCounter(); c != nil {
				values[mf.GetName()] += c.GetValue()
			}
		}
	}

	checks := map[string]float64{
		"fusion_loader_fetches_started_total": 1,
		"fusion_loader_dedup_hits_total":      1,
		"fusion_loader_resolves_total":        1,
		"fusion_loader_rejections_total":      1,
		"fusion_loader_evictions_total":       1,
		"fusion_loader_preloads_total":        3,
	}
	for name, want := range checks {
		if got := values[name]; got != want {
			t.Errorf("%s = %v, want %v", name, got, want)
		}
	}
}

func TestNewLoaderMetrics_RepeatedCallsShareCollectors(t *testing.T) {
	metrics.ResetRegistry()
	metrics.InitRegistry()
	defer metrics.ResetRegistry()

	first := NewLoaderMetrics()
	if first == nil {
		t.Fatal("expected metrics instance when registry is initialized")
	}

	// A second construction must not register the collectors again;
	// promauto panics on duplicate registration.
	second := NewLoaderMetrics()
	if second != first {
		t.Fatal("expected repeated construction to return the same instance")
	}

	// A fresh registry gets fresh collectors.
	metrics.ResetRegistry()
	metrics.InitRegistry()

	third := NewLoaderMetrics()
	if third == nil {
		t.Fatal("expected metrics instance after registry reset")
	}
	if third == first {
		t.Fatal("expected new collectors for a new registry")
	}
}

func TestFacadeUsesRegisteredConstructor(t *testing.T) {
	metrics.ResetRegistry()
	metrics.InitRegistry()
	defer metrics.ResetRegistry()

	if m := metrics.NewLoaderMetrics(); m == nil {
		t.Fatal("expected facade to return Prometheus-backed metrics")
	}
}
