// ABOUTME: Prometheus metrics for push stream connections and broadcast delivery
// ABOUTME: A nil *Metrics is valid and records nothing

package realtime

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the registry's collectors.
type Metrics struct {
	OpenConnections   prometheus.Gauge
	EventsDelivered   *prometheus.CounterVec
	DeliveryFailures  prometheus.Counter
	HeartbeatFailures prometheus.Counter
}

// NewMetrics creates the collectors and registers them with reg when reg is non-nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		OpenConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "prompt_gateway",
			Subsystem: "stream",
			Name:      "open_connections",
			Help:      "Number of registered push stream connections",
		}),
		EventsDelivered: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "prompt_gateway",
				Subsystem: "stream",
				Name:      "events_delivered_total",
				Help:      "Broadcast events written to a connection",
			},
			[]string{"type"},
		),
		DeliveryFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "prompt_gateway",
			Subsystem: "stream",
			Name:      "delivery_failures_total",
			Help:      "Broadcast writes that failed and pruned their connection",
		}),
		HeartbeatFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "prompt_gateway",
			Subsystem: "stream",
			Name:      "heartbeat_failures_total",
			Help:      "Heartbeat writes that failed and pruned their connection",
		}),
	}

	if reg != nil {
		reg.MustRegister(m.OpenConnections, m.EventsDelivered, m.DeliveryFailures, m.HeartbeatFailures)
	}
	return m
}

func (m *Metrics) connectionOpened() {
	if m != nil {
		m.OpenConnections.Inc()
	}
}

func (m *Metrics) connectionClosed() {
	if m != nil {
		m.OpenConnections.Dec()
	}
}

func (m *Metrics) delivered(eventType string) {
	if m != nil {
		m.EventsDelivered.WithLabelValues(eventType).Inc()
	}
}

func (m *Metrics) deliveryFailed() {
	if m != nil {
		m.DeliveryFailures.Inc()
	}
}

func (m *Metrics) heartbeatFailed() {
	if m != nil {
		m.HeartbeatFailures.Inc()
	}
}
