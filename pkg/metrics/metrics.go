package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains the gateway's Prometheus collectors.
type Metrics struct {
	// Upstream calls by outcome (success/error), counted per attempt group.
	UpstreamCalls *prometheus.CounterVec

	// Credential rotations triggered by retryable upstream failures.
	KeyRotations prometheus.Counter

	// Credentials currently outside cooldown.
	KeysAvailable prometheus.Gauge

	// Tokens reported by upstream usage blocks, by model and kind
	// (prompt/completion).
	Tokens *prometheus.CounterVec

	// Handled requests by endpoint and HTTP status class.
	Requests *prometheus.CounterVec
}

func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		UpstreamCalls: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gembridge_upstream_calls_total",
				Help: "Total upstream call groups by outcome",
			},
			[]string{"outcome"},
		),
		KeyRotations: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "gembridge_key_rotations_total",
				Help: "Total credential rotations caused by retryable upstream failures",
			},
		),
		KeysAvailable: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "gembridge_keys_available",
				Help: "Credentials currently outside cooldown",
			},
		),
		Tokens: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gembridge_tokens_total",
				Help: "Tokens reported by upstream usage blocks",
			},
			[]string{"model", "kind"},
		),
		Requests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gembridge_requests_total",
				Help: "Handled requests by endpoint and status class",
			},
			[]string{"endpoint", "status"},
		),
	}
}
