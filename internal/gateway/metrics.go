package gateway

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics are the gateway's Prometheus collectors, exposed at /metrics.
type Metrics struct {
	registry *prometheus.Registry

	// HTTPRequestCounter counts HTTP requests.
	// Labels: method, path, status_code
	HTTPRequestCounter *prometheus.CounterVec

	// TurnCounter counts processed turns by outcome.
	// Labels: status (completed|failed)
	TurnCounter *prometheus.CounterVec

	// TurnDuration measures end-to-end turn latency in seconds.
	TurnDuration prometheus.Histogram

	// EventCounter counts streamed turn events by type.
	EventCounter *prometheus.CounterVec
}

// NewMetrics creates the collectors on a private registry so repeated
// construction (tests, restarts in-process) never double-registers.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)
	return &Metrics{
		registry: registry,
		HTTPRequestCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "steward_http_requests_total",
				Help: "Total number of HTTP requests by method, path, and status",
			},
			[]string{"method", "path", "status_code"},
		),
		TurnCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "steward_turns_total",
				Help: "Total number of processed turns by outcome",
			},
			[]string{"status"},
		),
		TurnDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "steward_turn_duration_seconds",
				Help:    "End-to-end turn processing latency in seconds",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
			},
		),
		EventCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "steward_turn_events_total",
				Help: "Total number of streamed turn events by type",
			},
			[]string{"type"},
		),
	}
}

// Registry exposes the backing registry for the /metrics handler.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }
