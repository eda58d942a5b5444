package service

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/noah-isme/messhall-api/internal/models"
)

// MetricsService encapsulates Prometheus instrumentation for HTTP traffic and
// the attendance domain.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	checkInTotal    *prometheus.CounterVec
	markTotal       *prometheus.CounterVec
	bulkSize        prometheus.Histogram
}

// NewMetricsService registers the collectors.
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

	checkInTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "checkin_total",
		Help: "QR check-in attempts by meal and outcome",
	}, []string{"meal", "outcome"})

	markTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "attendance_marks_total",
		Help: "Attendance flag writes by meal and source",
	}, []string{"meal", "source"})

	bulkSize := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "attendance_bulk_batch_size",
		Help:    "Number of students per bulk mark request",
		Buckets: []float64{1, 5, 10, 25, 50, 100, 250},
	})

	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		requestDuration,
		requestTotal,
		checkInTotal,
		markTotal,
		bulkSize,
	)

	return &MetricsService{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestDuration: requestDuration,
		requestTotal:    requestTotal,
		checkInTotal:    checkInTotal,
		markTotal:       markTotal,
		bulkSize:        bulkSize,
	}
}

// Handler serves the Prometheus scrape endpoint.
func (s *MetricsService) Handler() http.Handler {
	return s.handler
}

// ObserveHTTPRequest records one request.
func (s *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	code := strconv.Itoa(status)
	s.requestDuration.WithLabelValues(method, path, code).Observe(duration.Seconds())
	s.requestTotal.WithLabelValues(method, path, code).Inc()
}

// ObserveCheckIn records a check-in attempt. Outcome is "marked",
// "already_marked", or the error code of the rejection.
func (s *MetricsService) ObserveCheckIn(meal models.Meal, outcome string) {
	label := string(meal)
	if label == "" {
		label = "none"
	}
	s.checkInTotal.WithLabelValues(label, outcome).Inc()
}

// ObserveMark records a single attendance flag write.
func (s *MetricsService) ObserveMark(meal models.Meal, source models.MarkSource) {
	s.markTotal.WithLabelValues(string(meal), string(source)).Inc()
}

// ObserveBulk records the size of a bulk mark batch.
func (s *MetricsService) ObserveBulk(size int) {
	s.bulkSize.Observe(float64(size))
}
