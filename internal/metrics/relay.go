package metrics

import "github.com/prometheus/client_golang/prometheus"

// RelayMetrics holds the collectors updated by the broadcast engine and the
// WebSocket handling loops.
type RelayMetrics struct {
	ActiveConnections prometheus.Gauge
	BroadcastsTotal   *prometheus.CounterVec
	DeliveriesTotal   prometheus.Counter
	DeliveryFailures  prometheus.Counter
	MalformedPayloads prometheus.Counter
	RateLimited       prometheus.Counter
}

// NewRelayMetrics creates and registers relay metrics on the given registry.
func NewRelayMetrics(reg prometheus.Registerer) *RelayMetrics {
	m := &RelayMetrics{
		ActiveConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_connections",
			Help:      "Number of connections currently in the registry.",
		}),
		BroadcastsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "broadcasts_total",
			Help:      "Total number of broadcasts, by message type.",
		}, []string{"type"}),
		DeliveriesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "deliveries_total",
			Help:      "Total number of successful per-recipient sends.",
		}),
		DeliveryFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "delivery_failures_total",
			Help:      "Total number of per-recipient sends that failed.",
		}),
		MalformedPayloads: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "malformed_payloads_total",
			Help:      "Total number of inbound payloads rejected as malformed.",
		}),
		RateLimited: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limited_total",
			Help:      "Total number of inbound messages dropped by the per-connection rate limit.",
		}),
	}

	reg.MustRegister(
		m.ActiveConnections,
		m.BroadcastsTotal,
		m.DeliveriesTotal,
		m.DeliveryFailures,
		m.MalformedPayloads,
		m.RateLimited,
	)
	return m
}
