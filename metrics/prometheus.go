package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Prometheus records engine events and latencies under the x402 namespace.
type Prometheus struct {
	events    *prometheus.CounterVec
	latencies *prometheus.HistogramVec
}

// NewPrometheus registers the collectors on the given registerer. Pass
// prometheus.DefaultRegisterer for the usual global registry.
func NewPrometheus(reg prometheus.Registerer) *Prometheus {
	events := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "x402",
			Name:      "events_total",
			Help:      "x402 payment lifecycle events",
		},
		[]string{"event", "network"},
	)

	latencies := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "x402",
			Name:      "operation_seconds",
			Help:      "x402 facilitator and RPC operation latency",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"operation", "network"},
	)

	reg.MustRegister(events, latencies)

	return &Prometheus{events: events, latencies: latencies}
}

func (p *Prometheus) IncEvent(event, network string) {
	p.events.WithLabelValues(event, network).Inc()
}

func (p *Prometheus) ObserveLatency(operation, network string, d time.Duration) {
	p.latencies.WithLabelValues(operation, network).Observe(d.Seconds())
}
