// Package metrics holds the Prometheus collectors for the yield-curve service.
// All recording methods are safe to call on a nil *Metrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus metrics for the service
type Metrics struct {
	requestCounter   *prometheus.CounterVec
	requestDuration  *prometheus.HistogramVec
	yieldPoints      *prometheus.CounterVec
	skippedPoints    *prometheus.CounterVec
	entriesSubmitted *prometheus.CounterVec
	publishers       prometheus.Gauge
	curveExports     *prometheus.CounterVec
}

// New registers all collectors with reg. Pass prometheus.DefaultRegisterer in production
// and a fresh prometheus.NewRegistry() in tests.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		requestCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "yieldcurve_requests_total",
				Help: "Total number of requests processed",
			},
			[]string{"endpoint", "status"},
		),
		requestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "yieldcurve_request_duration_seconds",
				Help:    "Request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"endpoint"},
		),
		yieldPoints: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "yieldcurve_points_total",
				Help: "Total number of yield points computed",
			},
			[]string{"source"},
		),
		skippedPoints: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "yieldcurve_skipped_points_total",
				Help: "Yield points excluded from a curve",
			},
			[]string{"reason"},
		),
		entriesSubmitted: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "oracle_entries_submitted_total",
				Help: "Entry submissions by outcome",
			},
			[]string{"status"},
		),
		publishers: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "oracle_publishers",
				Help: "Number of registered publishers",
			},
		),
		curveExports: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "yieldcurve_exports_total",
				Help: "Curve snapshot exports by outcome",
			},
			[]string{"status"},
		),
	}
}

// ObserveRequest records one request
func (m *Metrics) ObserveRequest(endpoint, status string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.requestCounter.WithLabelValues(endpoint, status).Inc()
	m.requestDuration.WithLabelValues(endpoint).Observe(elapsed.Seconds())
}

// YieldPoint counts a computed point
func (m *Metrics) YieldPoint(source string) {
	if m == nil {
		return
	}
	m.yieldPoints.WithLabelValues(source).Inc()
}

// SkippedPoint counts a point excluded from the curve
func (m *Metrics) SkippedPoint(reason string) {
	if m == nil {
		return
	}
	m.skippedPoints.WithLabelValues(reason).Inc()
}

// EntrySubmitted counts a submission outcome
func (m *Metrics) EntrySubmitted(status string) {
	if m == nil {
		return
	}
	m.entriesSubmitted.WithLabelValues(status).Inc()
}

// SetPublishers updates the registered publisher gauge
func (m *Metrics) SetPublishers(n int) {
	if m == nil {
		return
	}
	m.publishers.Set(float64(n))
}

// CurveExport counts an export attempt
func (m *Metrics) CurveExport(status string) {
	if m == nil {
		return
	}
	m.curveExports.WithLabelValues(status).Inc()
}
