// Package metrics exposes Prometheus collectors for the orchestrators.
// A nil *Metrics records nothing, so callers never need to check.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Outcome labels
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// Cache lookup labels
const (
	CacheHit   = "hit"
	CacheMiss  = "miss"
	CacheStale = "stale"
)

// Metrics holds the collectors registered by New
type Metrics struct {
	operations   *prometheus.CounterVec
	errors       *prometheus.CounterVec
	cacheLookups *prometheus.CounterVec
	duration     *prometheus.HistogramVec
}

// New creates the collectors and registers them on reg
func New(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "stocktrader",
			Name:      "operations_total",
			Help:      "Long-running operations by outcome.",
		}, []string{"operation", "outcome"}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "stocktrader",
			Name:      "operation_errors_total",
			Help:      "Failed operations by error kind.",
		}, []string{"operation", "kind"}),
		cacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "stocktrader",
			Name:      "cache_lookups_total",
			Help:      "History cache lookups made before analysis.",
		}, []string{"result"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "stocktrader",
			Name:      "operation_duration_seconds",
			Help:      "Wall time of long-running operations.",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}, []string{"operation"}),
	}

	for _, c := range []prometheus.Collector{m.operations, m.errors, m.cacheLookups, m.duration} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// ObserveOperation records one finished operation. kind is empty on success.
func (m *Metrics) ObserveOperation(operation, kind string, elapsed time.Duration) {
	if m == nil {
		return
	}
	outcome := OutcomeSuccess
	if kind != "" {
		outcome = OutcomeFailure
		m.errors.WithLabelValues(operation, kind).Inc()
	}
	m.operations.WithLabelValues(operation, outcome).Inc()
	m.duration.WithLabelValues(operation).Observe(elapsed.Seconds())
}

// CacheLookup records the result of resolving a cached history
func (m *Metrics) CacheLookup(result string) {
	if m == nil {
		return
	}
	m.cacheLookups.WithLabelValues(result).Inc()
}
