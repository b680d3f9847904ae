// Package metrics holds the Prometheus collectors for emojidash.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "emojidash"

// Metrics holds all collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	// Uploads counts workbook uploads. Labels: result ("ok", "cached", "rejected", "error")
	Uploads *prometheus.CounterVec
	// Skipped counts derivations left out of a dashboard. Labels: derivation, reason
	Skipped *prometheus.CounterVec
	// Dashboards counts built dashboards.
	Dashboards prometheus.Counter
	// BuildDuration observes how long a dashboard build takes.
	BuildDuration prometheus.Histogram
	// CachedDatasets reports the number of datasets held in the session cache.
	CachedDatasets prometheus.Gauge

	// HTTP metrics
	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec

	gatherer prometheus.Gatherer
}

// New creates the collectors and registers them with reg.
func New(reg *prometheus.Registry) *Metrics {
	m := &Metrics{
		Uploads: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "uploads_total",
				Help:      "Total number of workbook uploads",
			},
			[]string{"result"},
		),
		Skipped: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "derivations_skipped_total",
				Help:      "Derivations skipped while building a dashboard",
			},
			[]string{"derivation", "reason"},
		),
		Dashboards: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dashboards_total",
			Help:      "Total number of dashboards built",
		}),
		BuildDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "dashboard_build_seconds",
			Help:      "Dashboard build duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}),
		CachedDatasets: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "cached_datasets",
			Help:      "Number of normalized datasets in the session cache",
		}),
		httpRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "endpoint", "status"},
		),
		httpDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "endpoint"},
		),
		gatherer: reg,
	}

	reg.MustRegister(
		m.Uploads,
		m.Skipped,
		m.Dashboards,
		m.BuildDuration,
		m.CachedDatasets,
		m.httpRequests,
		m.httpDuration,
	)
	return m
}

// IncUpload records one upload outcome.
func (m *Metrics) IncUpload(result string) {
	if m == nil {
		return
	}
	m.Uploads.WithLabelValues(result).Inc()
}

// ObserveDashboard records a finished build and the derivations it skipped.
func (m *Metrics) ObserveDashboard(elapsed time.Duration, skipped map[string]string) {
	if m == nil {
		return
	}
	m.Dashboards.Inc()
	m.BuildDuration.Observe(elapsed.Seconds())
	for derivation, reason := range skipped {
		m.Skipped.WithLabelValues(derivation, reason).Inc()
	}
}

// SetCachedDatasets updates the cache size gauge.
func (m *Metrics) SetCachedDatasets(n int) {
	if m == nil {
		return
	}
	m.CachedDatasets.Set(float64(n))
}

// Middleware returns gin middleware that records request counts and latency.
func (m *Metrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if m == nil {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()

		endpoint := c.FullPath()
		if endpoint == "" {
			endpoint = "unknown"
		}
		status := strconv.Itoa(c.Writer.Status())
		m.httpRequests.WithLabelValues(c.Request.Method, endpoint, status).Inc()
		m.httpDuration.WithLabelValues(c.Request.Method, endpoint).Observe(time.Since(start).Seconds())
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
