// Package metrics provides Prometheus instrumentation for the chat server:
// gauges for connections, queue depth and active chats, and counters for
// message and match throughput.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// ConnectionsTotal tracks the current number of live WebSocket connections.
	ConnectionsTotal = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "anonchat_connections_total",
		Help: "Current number of active WebSocket connections",
	})

	// WaitingUsers tracks the current waiting-queue depth.
	WaitingUsers = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "anonchat_waiting_users",
		Help: "Current number of users waiting for a partner",
	})

	// ActiveChats tracks the current number of established chat pairs.
	ActiveChats = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "anonchat_active_chats",
		Help: "Current number of active chat pairs",
	})

	// MatchesTotal counts established matches.
	MatchesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "anonchat_matches_total",
		Help: "Total number of matches established",
	})

	// MessagesTotal counts message routing outcomes, labeled by type:
	// "relayed", "blocked" (word filter / spam) or "rejected" (policy).
	MessagesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "anonchat_messages_total",
		Help: "Total number of messages processed",
	}, []string{"type"})

	// ReportsTotal counts filed abuse reports.
	ReportsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "anonchat_reports_total",
		Help: "Total number of abuse reports filed",
	})
)

func init() {
	prometheus.MustRegister(
		ConnectionsTotal,
		WaitingUsers,
		ActiveChats,
		MatchesTotal,
		MessagesTotal,
		ReportsTotal,
	)
}

// Handler returns the Prometheus metrics HTTP handler for the /metrics route.
func Handler() http.Handler {
	return promhttp.Handler()
}
