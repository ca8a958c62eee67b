package monitoring

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector handles Prometheus metrics collection.
// Each collector owns its registry so several can coexist in one process.
type MetricsCollector struct {
	serviceName string
	registry    *prometheus.Registry

	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	storageOpsTotal     *prometheus.CounterVec
	storageOpDuration   *prometheus.HistogramVec
	aiCallsTotal        *prometheus.CounterVec
	aiCallDuration      *prometheus.HistogramVec
	qrScansTotal        *prometheus.CounterVec
	dispenseTotal       *prometheus.CounterVec
	systemErrors        *prometheus.CounterVec
}

// NewMetricsCollector creates a new metrics collector
func NewMetricsCollector(serviceName string) *MetricsCollector {
	m := &MetricsCollector{
		serviceName: serviceName,
		registry:    prometheus.NewRegistry(),

		// HTTP request metrics
		httpRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "endpoint", "status_code", "service"},
		),
		httpRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Duration of HTTP requests in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "endpoint", "service"},
		),

		// Key-value backend metrics
		storageOpsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "storage_operations_total",
				Help: "Total number of key-value backend operations",
			},
			[]string{"backend", "operation", "status", "service"},
		),
		storageOpDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "storage_operation_duration_seconds",
				Help:    "Duration of key-value backend operations in seconds",
				Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0},
			},
			[]string{"backend", "operation", "service"},
		),

		// Generative model metrics
		aiCallsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ai_calls_total",
				Help: "Total number of generative model calls by outcome",
			},
			[]string{"operation", "outcome", "service"},
		),
		aiCallDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ai_call_duration_seconds",
				Help:    "Duration of generative model calls in seconds",
				Buckets: []float64{0.25, 0.5, 1.0, 2.0, 5.0, 10.0, 30.0},
			},
			[]string{"operation", "service"},
		),

		// Verification metrics
		qrScansTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "qr_scans_total",
				Help: "Total number of QR scan and verification attempts by outcome",
			},
			[]string{"outcome", "service"},
		),
		dispenseTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "prescriptions_dispensed_total",
				Help: "Total number of dispense attempts by outcome",
			},
			[]string{"outcome", "service"},
		),

		// System metrics
		systemErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "system_errors_total",
				Help: "Total number of system errors",
			},
			[]string{"error_type", "service", "component"},
		),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.httpRequestsTotal,
		m.httpRequestDuration,
		m.storageOpsTotal,
		m.storageOpDuration,
		m.aiCallsTotal,
		m.aiCallDuration,
		m.qrScansTotal,
		m.dispenseTotal,
		m.systemErrors,
	)

	return m
}

// Registry exposes the collector's registry
func (m *MetricsCollector) Registry() *prometheus.Registry {
	return m.registry
}

// RecordHTTPRequest records HTTP request metrics
func (m *MetricsCollector) RecordHTTPRequest(method, endpoint, statusCode string, duration time.Duration) {
	m.httpRequestsTotal.WithLabelValues(method, endpoint, statusCode, m.serviceName).Inc()
	m.httpRequestDuration.WithLabelValues(method, endpoint, m.serviceName).Observe(duration.Seconds())
}

// RecordStorageOperation records a key-value backend call
func (m *MetricsCollector) RecordStorageOperation(backend, operation string, duration time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	m.storageOpsTotal.WithLabelValues(backend, operation, status, m.serviceName).Inc()
	m.storageOpDuration.WithLabelValues(backend, operation, m.serviceName).Observe(duration.Seconds())
}

// RecordAICall records a generative model call
func (m *MetricsCollector) RecordAICall(operation, outcome string, duration time.Duration) {
	m.aiCallsTotal.WithLabelValues(operation, outcome, m.serviceName).Inc()
	if duration > 0 {
		m.aiCallDuration.WithLabelValues(operation, m.serviceName).Observe(duration.Seconds())
	}
}

// RecordQRScan records a scan or verification outcome
func (m *MetricsCollector) RecordQRScan(outcome string) {
	m.qrScansTotal.WithLabelValues(outcome, m.serviceName).Inc()
}

// RecordDispense records a dispense attempt
func (m *MetricsCollector) RecordDispense(outcome string) {
	m.dispenseTotal.WithLabelValues(outcome, m.serviceName).Inc()
}

// RecordSystemError records system error metrics
func (m *MetricsCollector) RecordSystemError(errorType, component string) {
	m.systemErrors.WithLabelValues(errorType, m.serviceName, component).Inc()
}

// Handler returns the Prometheus metrics HTTP handler
func (m *MetricsCollector) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// HTTPMiddleware records request metrics without tracing or logging
func (m *MetricsCollector) HTTPMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapper := &monitoringResponseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapper, r)

		m.RecordHTTPRequest(r.Method, routeTemplate(r), strconv.Itoa(wrapper.statusCode), time.Since(start))
	})
}
