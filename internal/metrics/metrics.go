package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Registry holds all Prometheus metrics.
type Registry struct {
	*prometheus.Registry

	// HTTP metrics
	httpRequestsTotal    *prometheus.CounterVec
	httpRequestDuration  *prometheus.HistogramVec
	httpRequestsInFlight prometheus.Gauge

	// Comps metrics
	analysesTotal    *prometheus.CounterVec
	analysisDuration prometheus.Histogram
	streamFailures   *prometheus.CounterVec
	companyErrors    prometheus.Counter
	marketCache      *prometheus.CounterVec
	jobsActive       prometheus.Gauge
}

// NewRegistry creates a new metrics registry with all metrics registered.
func NewRegistry() *Registry {
	reg := prometheus.NewRegistry()

	// Register Go runtime metrics
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	r := &Registry{
		Registry: reg,

		httpRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),

		httpRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),

		httpRequestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "http_requests_in_flight",
				Help: "Number of HTTP requests currently in flight",
			},
		),
	}

	reg.MustRegister(r.httpRequestsTotal)
	reg.MustRegister(r.httpRequestDuration)
	reg.MustRegister(r.httpRequestsInFlight)

	r.analysesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "comps_analyses_total",
			Help: "Total number of company analyses produced",
		},
		[]string{"status"},
	)
	r.analysisDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "comps_analysis_duration_seconds",
			Help:    "Duration of a full comps run in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		},
	)
	r.streamFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "comps_stream_failures_total",
			Help: "Total number of failed data fetch streams",
		},
		[]string{"stream"},
	)
	r.companyErrors = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "comps_company_errors_total",
			Help: "Total number of errors recorded on company analyses",
		},
	)
	r.marketCache = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "comps_market_cache_total",
			Help: "Market data cache lookups by result",
		},
		[]string{"result"},
	)
	r.jobsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "comps_jobs_active",
			Help: "Number of comps jobs currently running",
		},
	)

	reg.MustRegister(r.analysesTotal)
	reg.MustRegister(r.analysisDuration)
	reg.MustRegister(r.streamFailures)
	reg.MustRegister(r.companyErrors)
	reg.MustRegister(r.marketCache)
	reg.MustRegister(r.jobsActive)

	return r
}

// RecordRequest records metrics for an HTTP request.
func (r *Registry) RecordRequest(method, path string, status int, duration float64) {
	statusStr := statusToString(status)
	r.httpRequestsTotal.WithLabelValues(method, path, statusStr).Inc()
	r.httpRequestDuration.WithLabelValues(method, path).Observe(duration)
}

// InFlightInc increments in-flight requests.
func (r *Registry) InFlightInc() {
	r.httpRequestsInFlight.Inc()
}

// InFlightDec decrements in-flight requests.
func (r *Registry) InFlightDec() {
	r.httpRequestsInFlight.Dec()
}

// RecordRun records a completed comps run over n companies, of which
// degraded carried at least one error.
func (r *Registry) RecordRun(duration float64, n, degraded int) {
	r.analysisDuration.Observe(duration)
	r.analysesTotal.WithLabelValues("ok").Add(float64(n - degraded))
	r.analysesTotal.WithLabelValues("degraded").Add(float64(degraded))
}

// RecordStreamFailure records a failed or timed-out fetch stream.
func (r *Registry) RecordStreamFailure(stream string) {
	r.streamFailures.WithLabelValues(stream).Inc()
}

// RecordCompanyErrors adds errors recorded on a company analysis.
func (r *Registry) RecordCompanyErrors(n int) {
	r.companyErrors.Add(float64(n))
}

// RecordCacheLookup records a market data cache hit or miss.
func (r *Registry) RecordCacheLookup(hit bool) {
	if hit {
		r.marketCache.WithLabelValues("hit").Inc()
		return
	}
	r.marketCache.WithLabelValues("miss").Inc()
}

// SetJobsActive sets the number of running jobs.
func (r *Registry) SetJobsActive(count int) {
	r.jobsActive.Set(float64(count))
}

func statusToString(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	case status >= 200:
		return "2xx"
	default:
		return "1xx"
	}
}
