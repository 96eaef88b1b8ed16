package http

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the contextify gateway.
// Pass to components that need to record metrics.
type Metrics struct {
	RequestsTotal    *prometheus.CounterVec
	RequestDuration  *prometheus.HistogramVec
	ToolExecutions   *prometheus.CounterVec
	CatalogTools     prometheus.Gauge
	GatewayTools     prometheus.Gauge
	HealthyUpstreams prometheus.Gauge
}

// NewMetrics creates and registers all metrics with the given registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	return &Metrics{
		RequestsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "contextify",
				Name:      "requests_total",
				Help:      "Total number of JSON-RPC requests processed",
			},
			[]string{"method", "status"}, // method=tools/call, status=ok/error
		),
		RequestDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "contextify",
				Name:      "request_duration_seconds",
				Help:      "Request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method"},
		),
		ToolExecutions: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "contextify",
				Name:      "tool_executions_total",
				Help:      "Total tool executions by outcome",
			},
			[]string{"outcome"}, // outcome=success or the error code
		),
		CatalogTools: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Namespace: "contextify",
				Name:      "catalog_tools",
				Help:      "Number of tools in the current catalog snapshot",
			},
		),
		GatewayTools: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Namespace: "contextify",
				Name:      "gateway_tools",
				Help:      "Number of aggregated tools in the current gateway snapshot",
			},
		),
		HealthyUpstreams: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Namespace: "contextify",
				Name:      "healthy_upstreams",
				Help:      "Number of healthy upstream MCP servers",
			},
		),
	}
}
