// Package metrics exposes the server's Prometheus instrumentation.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the collectors for the realtime endpoint. Each server gets
// its own registry so tests can build isolated instances.
type Metrics struct {
	registry *prometheus.Registry

	ActiveConnections prometheus.Gauge
	MessagesTotal     *prometheus.CounterVec
	VotesTotal        *prometheus.CounterVec
	AIRepliesTotal    *prometheus.CounterVec
	ProtocolErrors    prometheus.Counter
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		ActiveConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "spotchat",
			Name:      "active_connections",
			Help:      "Websocket members currently registered in a room.",
		}),
		MessagesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "spotchat",
			Name:      "messages_total",
			Help:      "Messages accepted and broadcast, by room.",
		}, []string{"room"}),
		VotesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "spotchat",
			Name:      "votes_total",
			Help:      "Votes accepted, by room.",
		}, []string{"room"}),
		AIRepliesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "spotchat",
			Name:      "ai_replies_total",
			Help:      "AI replies generated for thread starters, by room.",
		}, []string{"room"}),
		ProtocolErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "spotchat",
			Name:      "protocol_errors_total",
			Help:      "Error events pushed to clients.",
		}),
	}
	m.registry.MustRegister(
		m.ActiveConnections,
		m.MessagesTotal,
		m.VotesTotal,
		m.AIRepliesTotal,
		m.ProtocolErrors,
	)
	return m
}

// Handler serves the registry for the /metrics route.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
