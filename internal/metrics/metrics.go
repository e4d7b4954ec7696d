package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

var (
	// Registry is the dedicated Prometheus registry for the API.
	Registry = prometheus.NewRegistry()
	// HTTPRequests counts requests by method, path, and status.
	HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "http_requests_total", Help: "Total HTTP requests."},
		[]string{"method", "path", "status"},
	)
	// HTTPDuration records request durations in seconds.
	HTTPDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "http_request_duration_seconds", Help: "HTTP request duration in seconds.", Buckets: prometheus.DefBuckets},
		[]string{"method", "path", "status"},
	)

	// SolveDuration tracks end-to-end schedule generation time per strategy.
	SolveDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "schedule_solve_duration_seconds", Help: "Schedule generation duration by strategy.", Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10}},
		[]string{"strategy"},
	)
	// SolverFallbacks counts exact-solver degradations to the greedy path.
	SolverFallbacks = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "schedule_solver_fallbacks_total", Help: "Exact solver runs that fell back to greedy."},
	)
	// ScheduleCoverage is the coverage percentage of the most recent schedule.
	ScheduleCoverage = prometheus.NewGauge(
		prometheus.GaugeOpts{Name: "schedule_coverage_percent", Help: "Coverage of the latest generated schedule."},
	)

	// WebhookDeliveries counts webhook delivery outcomes by event type and status.
	WebhookDeliveries = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "webhook_deliveries_total", Help: "Webhook deliveries by event type and status."},
		[]string{"event_type", "status"},
	)
)

// RegisterDefault registers collectors to the package registry.
func RegisterDefault() {
	regOnce.Do(func() {
		Registry.MustRegister(HTTPRequests)
		Registry.MustRegister(HTTPDuration)
		Registry.MustRegister(SolveDuration)
		Registry.MustRegister(SolverFallbacks)
		Registry.MustRegister(ScheduleCoverage)
		Registry.MustRegister(WebhookDeliveries)
		Registry.MustRegister(collectors.NewGoCollector())
		Registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	})
}

var regOnce sync.Once
