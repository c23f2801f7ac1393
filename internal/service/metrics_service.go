package service

import (
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsService encapsulates Prometheus instrumentation for the scheduling
// engine.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec

	lessonsCreated   *prometheus.CounterVec
	lessonsCancelled prometheus.Counter
	requestsCreated  *prometheus.CounterVec
	requestsDecided  *prometheus.CounterVec
	notifyFailures   prometheus.Counter
	auditCacheHits   prometheus.Counter
	auditCacheMisses prometheus.Counter
}

// NewMetricsService registers the engine's Prometheus collectors.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	lessonsCreated := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "lessons_created_total",
		Help: "Lessons created, by status",
	}, []string{"status"})

	lessonsCancelled := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "lessons_cancelled_total",
		Help: "Lessons transitioned to cancelled",
	})

	requestsCreated := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "lesson_requests_created_total",
		Help: "Change requests created, by type",
	}, []string{"type"})

	requestsDecided := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "lesson_requests_decided_total",
		Help: "Change request decisions, by outcome",
	}, []string{"outcome"})

	notifyFailures := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "notification_failures_total",
		Help: "Notification deliveries that failed (logged and swallowed)",
	})

	auditCacheHits := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "audit_cache_hits_total",
		Help: "Weekly audit report cache hits",
	})

	auditCacheMisses := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "audit_cache_misses_total",
		Help: "Weekly audit report cache misses",
	})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, lessonsCreated, lessonsCancelled,
		requestsCreated, requestsDecided, notifyFailures, auditCacheHits, auditCacheMisses, goroutines)

	return &MetricsService{
		registry:         registry,
		handler:          promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestDuration:  requestDuration,
		requestTotal:     requestTotal,
		lessonsCreated:   lessonsCreated,
		lessonsCancelled: lessonsCancelled,
		requestsCreated:  requestsCreated,
		requestsDecided:  requestsDecided,
		notifyFailures:   notifyFailures,
		auditCacheHits:   auditCacheHits,
		auditCacheMisses: auditCacheMisses,
	}
}

// Handler exposes the Prometheus HTTP handler.
func (m *MetricsService) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// ObserveHTTPRequest records request metrics.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := fmt.Sprintf("%d", status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
}

// LessonCreated counts a created lesson by status.
func (m *MetricsService) LessonCreated(status string) {
	if m == nil {
		return
	}
	m.lessonsCreated.WithLabelValues(status).Inc()
}

// LessonCancelled counts a cancellation transition.
func (m *MetricsService) LessonCancelled() {
	if m == nil {
		return
	}
	m.lessonsCancelled.Inc()
}

// RequestCreated counts a created change request by type.
func (m *MetricsService) RequestCreated(requestType string) {
	if m == nil {
		return
	}
	m.requestsCreated.WithLabelValues(requestType).Inc()
}

// RequestDecided counts a decision outcome.
func (m *MetricsService) RequestDecided(outcome string) {
	if m == nil {
		return
	}
	m.requestsDecided.WithLabelValues(outcome).Inc()
}

// NotificationFailure counts a swallowed delivery failure.
func (m *MetricsService) NotificationFailure() {
	if m == nil {
		return
	}
	m.notifyFailures.Inc()
}

// AuditCache records a cache lookup outcome for the weekly report.
func (m *MetricsService) AuditCache(hit bool) {
	if m == nil {
		return
	}
	if hit {
		m.auditCacheHits.Inc()
	} else {
		m.auditCacheMisses.Inc()
	}
}
