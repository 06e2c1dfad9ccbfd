package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain repository.Metrics using Prometheus.
type Recorder struct {
	validations  *prometheus.CounterVec
	cacheHits    *prometheus.CounterVec
	cacheMisses  *prometheus.CounterVec
	fetchLatency *prometheus.HistogramVec
	errorsTotal  *prometheus.CounterVec
}

// New creates a Prometheus metrics recorder.
func New() *Recorder {
	return &Recorder{
		validations: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "trendgate_validations_total",
				Help: "Signal validations by verdict",
			},
			[]string{"verdict"},
		),
		cacheHits: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "trendgate_cache_hits_total",
				Help: "Timeframe cache hits",
			},
			[]string{"timeframe"},
		),
		cacheMisses: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "trendgate_cache_misses_total",
				Help: "Timeframe cache misses",
			},
			[]string{"timeframe"},
		),
		fetchLatency: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "trendgate_fetch_duration_seconds",
				Help:    "Upstream bar fetch latency",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"timeframe"},
		),
		errorsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "trendgate_errors_total",
				Help: "Errors by kind",
			},
			[]string{"kind"},
		),
	}
}

// RecordValidation counts a validation by verdict (approved, rejected,
// queued, errored).
func (r *Recorder) RecordValidation(verdict string) {
	r.validations.WithLabelValues(verdict).Inc()
}

// RecordCacheHit counts a timeframe cache hit.
func (r *Recorder) RecordCacheHit(tf string) {
	r.cacheHits.WithLabelValues(tf).Inc()
}

// RecordCacheMiss counts a timeframe cache miss.
func (r *Recorder) RecordCacheMiss(tf string) {
	r.cacheMisses.WithLabelValues(tf).Inc()
}

// RecordFetchLatency observes one upstream fetch duration.
func (r *Recorder) RecordFetchLatency(tf string, seconds float64) {
	r.fetchLatency.WithLabelValues(tf).Observe(seconds)
}

// RecordError counts an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}
