package service

import (
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Outcome labels shared by the registration counters.
const (
	outcomeSuccess = "success"
	outcomeFailed  = "failed"
	outcomeDropped = "dropped"
)

// MetricsService encapsulates Prometheus instrumentation for the API and the approval pipeline.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec

	operationDuration *prometheus.HistogramVec
	operationTotal    *prometheus.CounterVec
	compensations     *prometheus.CounterVec
	externalCalls     *prometheus.CounterVec
	notifications     *prometheus.CounterVec
	sessionsIssued    *prometheus.CounterVec
}

// NewMetricsService registers core Prometheus collectors.
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

	operationDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "registration_operation_duration_seconds",
		Help:    "Duration of approval orchestrator operations",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation"})

	operationTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "registration_operations_total",
		Help: "Approval orchestrator operations by outcome",
	}, []string{"operation", "outcome"})

	compensations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "registration_compensation_total",
		Help: "Compensating rollbacks by outcome; failed means a record needs manual cleanup",
	}, []string{"outcome"})

	externalCalls := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "registration_external_calls_total",
		Help: "Calls to the payment and email providers by outcome",
	}, []string{"service", "operation", "outcome"})

	notifications := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "registration_notifications_total",
		Help: "Guardian notifications by kind and outcome",
	}, []string{"kind", "outcome"})

	sessionsIssued := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "registration_payment_sessions_total",
		Help: "Payment sessions issued per track and discount flag",
	}, []string{"track", "discount"})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, operationDuration, operationTotal, compensations, externalCalls, notifications, sessionsIssued, goroutines)

	return &MetricsService{
		registry:          registry,
		handler:           promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestDuration:   requestDuration,
		requestTotal:      requestTotal,
		operationDuration: operationDuration,
		operationTotal:    operationTotal,
		compensations:     compensations,
		externalCalls:     externalCalls,
		notifications:     notifications,
		sessionsIssued:    sessionsIssued,
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

// ObserveOperation records one orchestrator call.
func (m *MetricsService) ObserveOperation(operation string, err error, duration time.Duration) {
	if m == nil {
		return
	}
	outcome := outcomeSuccess
	if err != nil {
		outcome = outcomeFailed
	}
	m.operationDuration.WithLabelValues(operation).Observe(duration.Seconds())
	m.operationTotal.WithLabelValues(operation, outcome).Inc()
}

// RecordCompensation counts a rollback attempt.
func (m *MetricsService) RecordCompensation(err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.compensations.WithLabelValues(outcomeFailed).Inc()
		return
	}
	m.compensations.WithLabelValues(outcomeSuccess).Inc()
}

// RecordExternalCall counts a payment or email provider call.
func (m *MetricsService) RecordExternalCall(service, operation string, err error) {
	if m == nil {
		return
	}
	outcome := outcomeSuccess
	if err != nil {
		outcome = outcomeFailed
	}
	m.externalCalls.WithLabelValues(service, operation, outcome).Inc()
}

// RecordNotification counts a notification by kind and outcome label.
func (m *MetricsService) RecordNotification(kind, outcome string) {
	if m == nil {
		return
	}
	m.notifications.WithLabelValues(kind, outcome).Inc()
}

// RegisterQueueDepth exposes the backlog of a background queue as a gauge.
func (m *MetricsService) RegisterQueueDepth(queue string, depth func() int) error {
	if m == nil {
		return nil
	}
	gauge := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name:        "registration_queue_depth",
		Help:        "Jobs waiting for a worker",
		ConstLabels: prometheus.Labels{"queue": queue},
	}, func() float64 {
		return float64(depth())
	})
	return m.registry.Register(gauge)
}

// RecordPaymentSession counts an issued checkout.
func (m *MetricsService) RecordPaymentSession(track string, discount bool) {
	if m == nil {
		return
	}
	m.sessionsIssued.WithLabelValues(track, fmt.Sprintf("%t", discount)).Inc()
}
