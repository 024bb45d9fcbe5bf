package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	forecasts   *prometheus.CounterVec
	forecastDur *prometheus.HistogramVec
	droppedRows *prometheus.CounterVec
	segments    *prometheus.CounterVec
	cache       *prometheus.CounterVec
	errorsTotal *prometheus.CounterVec
	latency     *prometheus.HistogramVec
}

// New creates a recorder registered on the default Prometheus registry.
func New() *Recorder {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry creates a recorder registered on reg.
func NewWithRegistry(reg prometheus.Registerer) *Recorder {
	f := promauto.With(reg)
	return &Recorder{
		forecasts: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "salescast_forecasts_total",
				Help: "Total number of forecasts computed",
			},
			[]string{"granularity", "strategy"},
		),
		forecastDur: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "salescast_forecast_duration_seconds",
				Help:    "Time spent training and predicting per forecast",
				Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
			},
			[]string{"granularity", "strategy"},
		),
		droppedRows: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "salescast_dropped_rows_total",
				Help: "Sales rows dropped during preprocessing",
			},
			[]string{"reason"},
		),
		segments: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "salescast_segments_total",
				Help: "Trained segments by outcome",
			},
			[]string{"status"},
		),
		cache: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "salescast_cache_requests_total",
				Help: "Cache lookups by layer and result",
			},
			[]string{"layer", "result"},
		),
		errorsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "salescast_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"type"},
		),
		latency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "salescast_operation_duration_seconds",
				Help:    "Duration of operations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
	}
}

// RecordForecast records one computed forecast and its duration.
func (r *Recorder) RecordForecast(granularity, strategy string, seconds float64) {
	r.forecasts.WithLabelValues(granularity, strategy).Inc()
	r.forecastDur.WithLabelValues(granularity, strategy).Observe(seconds)
}

// RecordDroppedRows adds n dropped rows for reason.
func (r *Recorder) RecordDroppedRows(reason string, n int) {
	if n > 0 {
		r.droppedRows.WithLabelValues(reason).Add(float64(n))
	}
}

// RecordSegment counts a segment outcome.
func (r *Recorder) RecordSegment(status string) {
	r.segments.WithLabelValues(status).Inc()
}

// RecordCache counts a cache lookup.
func (r *Recorder) RecordCache(layer, result string) {
	r.cache.WithLabelValues(layer, result).Inc()
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}
