package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type ServerMetrics struct {
	Requests  *prometheus.CounterVec
	LatencyMS *prometheus.HistogramVec
}

func NewServerMetrics(service string) *ServerMetrics {
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tolerancia",
		Subsystem: service,
		Name:      "http_requests_total",
		Help:      "Total number of HTTP requests.",
	}, []string{"handler", "status"})
	latency := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "tolerancia",
		Subsystem: service,
		Name:      "http_request_duration_ms",
		Help:      "HTTP request latency in milliseconds.",
		Buckets:   []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000, 25000},
	}, []string{"handler"})

	prometheus.MustRegister(requests, latency)
	return &ServerMetrics{Requests: requests, LatencyMS: latency}
}

// WorkflowMetrics covers the reservation core: breaker state, persistence
// retry attempts and terminal workflow outcomes.
type WorkflowMetrics struct {
	BreakerState  prometheus.Gauge
	RetryAttempts prometheus.Counter
	Outcomes      *prometheus.CounterVec
}

func NewWorkflowMetrics(service string) *WorkflowMetrics {
	breakerState := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "tolerancia",
		Subsystem: service,
		Name:      "breaker_state",
		Help:      "Circuit breaker state (0=closed, 1=half-open, 2=open).",
	})
	retryAttempts := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "tolerancia",
		Subsystem: service,
		Name:      "persistence_write_attempts_total",
		Help:      "Total persistence write attempts, including retries.",
	})
	outcomes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tolerancia",
		Subsystem: service,
		Name:      "reservation_outcomes_total",
		Help:      "Terminal reservation workflow outcomes.",
	}, []string{"outcome"})

	prometheus.MustRegister(breakerState, retryAttempts, outcomes)
	return &WorkflowMetrics{BreakerState: breakerState, RetryAttempts: retryAttempts, Outcomes: outcomes}
}

func Handler() http.Handler {
	return promhttp.Handler()
}
