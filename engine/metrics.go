package engine

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	cacheHit   = "hit"
	cacheMiss  = "miss"
	cacheError = "error"
)

// Metrics holds the engine's Prometheus collectors. A nil *Metrics records nothing.
type Metrics struct {
	calls    *prometheus.CounterVec
	cache    *prometheus.CounterVec
	retries  prometheus.Counter
	inflight prometheus.Gauge
	duration prometheus.Histogram
}

// NewMetrics creates the collectors and registers them with reg.
// A nil reg creates unregistered collectors. Panics on duplicate registration.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		calls: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "chatcall",
			Subsystem: "engine",
			Name:      "calls_total",
			Help:      "Executed calls by outcome (success, error, canceled).",
		}, []string{"outcome"}),
		cache: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "chatcall",
			Subsystem: "engine",
			Name:      "cache_total",
			Help:      "Cache lookups by result (hit, miss, error).",
		}, []string{"result"}),
		retries: f.NewCounter(prometheus.CounterOpts{
			Namespace: "chatcall",
			Subsystem: "engine",
			Name:      "retries_total",
			Help:      "Retried attempts.",
		}),
		inflight: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "chatcall",
			Subsystem: "engine",
			Name:      "inflight",
			Help:      "Attempts currently running.",
		}),
		duration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: "chatcall",
			Subsystem: "engine",
			Name:      "call_duration_seconds",
			Help:      "Call duration including retries and cache lookups.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}),
	}
}

func (m *Metrics) observeCall(err error, d time.Duration) {
	if m == nil {
		return
	}
	outcome := "success"
	switch {
	case err == nil:
	case isContextErr(err):
		outcome = "canceled"
	default:
		outcome = "error"
	}
	m.calls.WithLabelValues(outcome).Inc()
	m.duration.Observe(d.Seconds())
}

func (m *Metrics) observeCache(result string) {
	if m == nil {
		return
	}
	m.cache.WithLabelValues(result).Inc()
}

func (m *Metrics) observeRetry() {
	if m == nil {
		return
	}
	m.retries.Inc()
}

func (m *Metrics) inflightAdd(delta float64) {
	if m == nil {
		return
	}
	m.inflight.Add(delta)
}
