package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpDurationBuckets  = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10}
	storeDurationBuckets = []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5}
	evalDurationBuckets  = []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1}
	bodySizeBuckets      = []float64{100, 1024, 10240, 102400, 1048576}
)

// Metrics holds all Prometheus instruments. A nil *Metrics records nothing.
type Metrics struct {
	// HTTP
	HTTPRequestsTotal     *prometheus.CounterVec
	HTTPRequestDuration   *prometheus.HistogramVec
	HTTPRequestSizeBytes  *prometheus.HistogramVec
	HTTPResponseSizeBytes *prometheus.HistogramVec
	RateLimitedTotal      prometheus.Counter

	// Evaluation
	EvaluationsTotal     *prometheus.CounterVec
	EvaluationDuration   prometheus.Histogram
	EvaluationCacheTotal *prometheus.CounterVec

	// Configuration lifecycle
	MutationsTotal      *prometheus.CounterVec
	ImportFailuresTotal *prometheus.CounterVec
	StoreDuration       *prometheus.HistogramVec
	StoreErrorsTotal    *prometheus.CounterVec

	// Templates
	TemplateReloadTotal *prometheus.CounterVec
	TemplatesLoaded     prometheus.Gauge
}

// InitMetrics creates and registers all Prometheus metric instruments.
func InitMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "quotecfg_http_requests_total",
			Help: "Total number of HTTP requests.",
		}, []string{"method", "path_pattern", "status"}),
		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "quotecfg_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: httpDurationBuckets,
		}, []string{"method", "path_pattern"}),
		HTTPRequestSizeBytes: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "quotecfg_http_request_size_bytes",
			Help:    "HTTP request body size in bytes.",
			Buckets: bodySizeBuckets,
		}, []string{"method", "path_pattern"}),
		HTTPResponseSizeBytes: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "quotecfg_http_response_size_bytes",
			Help:    "HTTP response body size in bytes.",
			Buckets: bodySizeBuckets,
		}, []string{"method", "path_pattern"}),
		RateLimitedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "quotecfg_http_rate_limited_total",
			Help: "Total number of requests rejected by the rate limiter.",
		}),

		EvaluationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "quotecfg_evaluations_total",
			Help: "Total number of availability evaluations.",
		}, []string{"status"}),
		EvaluationDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "quotecfg_evaluation_duration_seconds",
			Help:    "Rule evaluation duration in seconds, excluding cache hits.",
			Buckets: evalDurationBuckets,
		}),
		EvaluationCacheTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "quotecfg_evaluation_cache_total",
			Help: "Evaluation cache lookups by result.",
		}, []string{"result"}),

		MutationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "quotecfg_config_mutations_total",
			Help: "Total configuration mutations by operation and outcome.",
		}, []string{"operation", "status"}),
		ImportFailuresTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "quotecfg_import_failures_total",
			Help: "Total rejected configuration imports by reason.",
		}, []string{"reason"}),
		StoreDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "quotecfg_store_operation_duration_seconds",
			Help:    "Configuration store call duration in seconds.",
			Buckets: storeDurationBuckets,
		}, []string{"operation"}),
		StoreErrorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "quotecfg_store_errors_total",
			Help: "Total configuration store errors by operation and code.",
		}, []string{"operation", "code"}),

		TemplateReloadTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "quotecfg_template_reload_total",
			Help: "Total template catalog reloads.",
		}, []string{"status"}),
		TemplatesLoaded: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "quotecfg_templates_loaded",
			Help: "Number of calculator templates in the catalog.",
		}),
	}

	reg.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPRequestSizeBytes,
		m.HTTPResponseSizeBytes,
		m.RateLimitedTotal,
		m.EvaluationsTotal,
		m.EvaluationDuration,
		m.EvaluationCacheTotal,
		m.MutationsTotal,
		m.ImportFailuresTotal,
		m.StoreDuration,
		m.StoreErrorsTotal,
		m.TemplateReloadTotal,
		m.TemplatesLoaded,
	)

	return m
}

// RecordHTTPRequest records HTTP request metrics.
func (m *Metrics) RecordHTTPRequest(method, pathPattern string, status int, duration time.Duration, reqSize, respSize int) {
	if m == nil {
		return
	}
	m.HTTPRequestsTotal.WithLabelValues(method, pathPattern, strconv.Itoa(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, pathPattern).Observe(duration.Seconds())
	m.HTTPRequestSizeBytes.WithLabelValues(method, pathPattern).Observe(float64(reqSize))
	m.HTTPResponseSizeBytes.WithLabelValues(method, pathPattern).Observe(float64(respSize))
}

// RecordRateLimited counts a request rejected by the rate limiter.
func (m *Metrics) RecordRateLimited() {
	if m == nil {
		return
	}
	m.RateLimitedTotal.Inc()
}

// RecordEvaluation records a computed (uncached) evaluation.
func (m *Metrics) RecordEvaluation(status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.EvaluationsTotal.WithLabelValues(status).Inc()
	if duration > 0 {
		m.EvaluationDuration.Observe(duration.Seconds())
	}
}

// RecordEvaluationCache records a cache lookup; result is "hit", "miss" or "error".
func (m *Metrics) RecordEvaluationCache(result string) {
	if m == nil {
		return
	}
	m.EvaluationCacheTotal.WithLabelValues(result).Inc()
}

// RecordMutation records a configuration mutation outcome.
func (m *Metrics) RecordMutation(operation, status string) {
	if m == nil {
		return
	}
	m.MutationsTotal.WithLabelValues(operation, status).Inc()
}

// RecordImportFailure records a rejected import.
func (m *Metrics) RecordImportFailure(reason string) {
	if m == nil {
		return
	}
	m.ImportFailuresTotal.WithLabelValues(reason).Inc()
}

// RecordStoreCall records a store call's duration and, when code is
// non-empty, an error.
func (m *Metrics) RecordStoreCall(operation string, duration time.Duration, code string) {
	if m == nil {
		return
	}
	m.StoreDuration.WithLabelValues(operation).Observe(duration.Seconds())
	if code != "" {
		m.StoreErrorsTotal.WithLabelValues(operation, code).Inc()
	}
}

// RecordTemplateReload records a template catalog reload.
func (m *Metrics) RecordTemplateReload(status string) {
	if m == nil {
		return
	}
	m.TemplateReloadTotal.WithLabelValues(status).Inc()
}

// SetTemplatesLoaded sets the number of loaded templates.
func (m *Metrics) SetTemplatesLoaded(count int) {
	if m == nil {
		return
	}
	m.TemplatesLoaded.Set(float64(count))
}

// MetricsMiddleware returns HTTP middleware that records request metrics
// labelled by chi's route pattern rather than the raw path.
func (m *Metrics) MetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &metricsResponseWriter{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(sw, r)

		reqSize := 0
		if r.ContentLength > 0 {
			reqSize = int(r.ContentLength)
		}
		m.RecordHTTPRequest(r.Method, routePattern(r), sw.status, time.Since(start), reqSize, sw.bytes)
	})
}

// Handler returns the Prometheus HTTP handler for the given gatherer.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

// routePattern extracts chi's route pattern, falling back to the raw path.
func routePattern(r *http.Request) string {
	rctx := chi.RouteContext(r.Context())
	if rctx == nil {
		return r.URL.Path
	}
	pattern := rctx.RoutePattern()
	if pattern == "" {
		return r.URL.Path
	}
	return pattern
}

type metricsResponseWriter struct {
	http.ResponseWriter
	status  int
	bytes   int
	written bool
}

func (w *metricsResponseWriter) WriteHeader(code int) {
	if !w.written {
		w.status = code
		w.written = true
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *metricsResponseWriter) Write(b []byte) (int, error) {
	w.written = true
	n, err := w.ResponseWriter.Write(b)
	w.bytes += n
	return n, err
}
