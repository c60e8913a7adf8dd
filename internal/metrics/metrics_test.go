package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestObserveOperation(t *testing.T) {
	m, err := New(prometheus.NewRegistry())
	if err != nil {
		t.Fatalf("New() returned unexpected error: %v", err)
	}

	m.ObserveOperation("fetch", "", time.Second)
	m.ObserveOperation("fetch", "NetworkTimeoutError", 2*time.Second)
	m.ObserveOperation("fetch", "NetworkTimeoutError", time.Second)
	m.ObserveOperation("analyze", "", time.Second)

	tests := []struct {
		name string
		got  float64
		want float64
	}{
		{"fetch success", testutil.ToFloat64(m.operations.WithLabelValues("fetch", OutcomeSuccess)), 1},
		{"fetch failure", testutil.ToFloat64(m.operations.WithLabelValues("fetch", OutcomeFailure)), 2},
		{"fetch timeout kind", testutil.ToFloat64(m.errors.WithLabelValues("fetch", "NetworkTimeoutError")), 2},
		{"analyze success", testutil.ToFloat64(m.operations.WithLabelValues("analyze", OutcomeSuccess)), 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("%s = %v, want %v", tt.name, tt.got, tt.want)
			}
		})
	}

	if n := testutil.CollectAndCount(m.duration); n != 2 {
		t.Errorf("duration series = %d, want 2", n)
	}
}

func TestCacheLookup(t *testing.T) {
	m, err := New(prometheus.NewRegistry())
	if err != nil {
		t.Fatal(err)
	}

	m.CacheLookup(CacheHit)
	m.CacheLookup(CacheHit)
	m.CacheLookup(CacheStale)

	if got := testutil.ToFloat64(m.cacheLookups.WithLabelValues(CacheHit)); got != 2 {
		t.Errorf("hits = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.cacheLookups.WithLabelValues(CacheMiss)); got != 0 {
		t.Errorf("misses = %v, want 0", got)
	}
}

func TestNew_DuplicateRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	if _, err := New(reg); err != nil {
		t.Fatal(err)
	}
	if _, err := New(reg); err == nil {
		t.Error("second New() on the same registry expected error, got nil")
	}
}

func TestNilMetrics(t *testing.T) {
	var m *Metrics
	m.ObserveOperation("fetch", "", time.Second)
	m.CacheLookup(CacheMiss)
}
