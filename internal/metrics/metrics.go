// Package metrics exposes the process counters served on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ActiveSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "signal",
		Name:      "active_sessions",
		Help:      "Currently connected signaling sessions.",
	})

	TransportsCreated = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "signal",
		Name:      "transports_created_total",
		Help:      "Transports allocated by the media engine.",
	}, []string{"direction"})

	ProducersCreated = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "signal",
		Name:      "producers_created_total",
		Help:      "Producers created.",
	}, []string{"kind"})

	ConsumersCreated = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "signal",
		Name:      "consumers_created_total",
		Help:      "Consumers created.",
	}, []string{"kind"})

	RequestErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "signal",
		Name:      "request_errors_total",
		Help:      "Signaling requests answered with an error payload.",
	}, []string{"kind"})

	SignalRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "signal",
		Name:      "requests_total",
		Help:      "Signaling requests received.",
	}, []string{"type"})
)
