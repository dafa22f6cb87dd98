package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics. A nil *Metrics is valid and records
// nothing.
type Metrics struct {
	// Store metrics
	IngestTotal        *prometheus.CounterVec
	EvictedEventsTotal prometheus.Counter
	EvictionDuration   prometheus.Histogram

	// Query metrics
	QueriesTotal  *prometheus.CounterVec
	QueryDuration *prometheus.HistogramVec

	// Report metrics
	ReportsTotal     *prometheus.CounterVec
	ReportCacheTotal *prometheus.CounterVec

	// Transfer metrics
	ImportedEventsTotal *prometheus.CounterVec
	ExportsTotal        *prometheus.CounterVec

	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
}

// NewMetrics creates and registers all metrics on registry.
func NewMetrics(registry prometheus.Registerer) *Metrics {
	m := &Metrics{
		IngestTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "analytica_ingest_total",
				Help: "Total number of recorded events by outcome",
			},
			[]string{"status"},
		),
		EvictedEventsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "analytica_evicted_events_total",
				Help: "Total number of events removed by retention",
			},
		),
		EvictionDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "analytica_eviction_duration_seconds",
				Help:    "Retention pass duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
			},
		),
		QueriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "analytica_queries_total",
				Help: "Total number of queries by planned index and outcome",
			},
			[]string{"index", "status"},
		),
		QueryDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "analytica_query_duration_seconds",
				Help:    "Query duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"index"},
		),
		ReportsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "analytica_reports_total",
				Help: "Total number of report operations",
			},
			[]string{"operation", "status"},
		),
		ReportCacheTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "analytica_report_cache_total",
				Help: "Report cache lookups by result",
			},
			[]string{"result"},
		),
		ImportedEventsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "analytica_imported_events_total",
				Help: "Imported events by result",
			},
			[]string{"result"},
		),
		ExportsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "analytica_exports_total",
				Help: "Total number of exports by sink and outcome",
			},
			[]string{"sink", "status"},
		),
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "analytica_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "analytica_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
	}

	registry.MustRegister(
		m.IngestTotal,
		m.EvictedEventsTotal,
		m.EvictionDuration,
		m.QueriesTotal,
		m.QueryDuration,
		m.ReportsTotal,
		m.ReportCacheTotal,
		m.ImportedEventsTotal,
		m.ExportsTotal,
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
	)

	return m
}

func (m *Metrics) IncIngest(status string) {
	if m != nil {
		m.IngestTotal.WithLabelValues(status).Inc()
	}
}

func (m *Metrics) ObserveEviction(deleted int, d time.Duration) {
	if m == nil {
		return
	}
	m.EvictedEventsTotal.Add(float64(deleted))
	m.EvictionDuration.Observe(d.Seconds())
}

func (m *Metrics) ObserveQuery(index, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.QueriesTotal.WithLabelValues(index, status).Inc()
	m.QueryDuration.WithLabelValues(index).Observe(d.Seconds())
}

func (m *Metrics) IncReport(operation, status string) {
	if m != nil {
		m.ReportsTotal.WithLabelValues(operation, status).Inc()
	}
}

func (m *Metrics) IncReportCache(hit bool) {
	if m == nil {
		return
	}
	if hit {
		m.ReportCacheTotal.WithLabelValues("hit").Inc()
	} else {
		m.ReportCacheTotal.WithLabelValues("miss").Inc()
	}
}

func (m *Metrics) AddImported(added, skipped int) {
	if m == nil {
		return
	}
	m.ImportedEventsTotal.WithLabelValues("added").Add(float64(added))
	m.ImportedEventsTotal.WithLabelValues("skipped").Add(float64(skipped))
}

func (m *Metrics) IncExport(sink, status string) {
	if m != nil {
		m.ExportsTotal.WithLabelValues(sink, status).Inc()
	}
}

// statusRecorder captures the response status for instrumentation.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// HTTPMetricsMiddleware instruments requests. route names the handler so
// path parameters do not explode label cardinality.
func HTTPMetricsMiddleware(m *Metrics, route func(*http.Request) string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if m == nil {
				next.ServeHTTP(w, r)
				return
			}
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

			next.ServeHTTP(rec, r)

			name := route(r)
			m.HTTPRequestsTotal.WithLabelValues(r.Method, name, strconv.Itoa(rec.status)).Inc()
			m.HTTPRequestDuration.WithLabelValues(r.Method, name).Observe(time.Since(start).Seconds())
		})
	}
}

// Handler serves the registry in the Prometheus exposition format.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
