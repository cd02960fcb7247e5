// ABOUTME: Prometheus metrics for MCP requests by method and outcome
// ABOUTME: A nil *Metrics is valid and records nothing

package mcp

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the MCP server's collectors.
type Metrics struct {
	Requests *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them with reg when reg is non-nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "prompt_gateway",
				Subsystem: "mcp",
				Name:      "requests_total",
				Help:      "MCP requests by method and outcome",
			},
			[]string{"method", "outcome"},
		),
	}
	if reg != nil {
		reg.MustRegister(m.Requests)
	}
	return m
}

func (m *Metrics) observe(method, outcome string) {
	if m == nil {
		return
	}
	if method == "" {
		method = "none"
	}
	m.Requests.WithLabelValues(method, outcome).Inc()
}
