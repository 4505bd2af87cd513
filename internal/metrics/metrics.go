package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Hub metrics
var (
	// HubActiveFestivals tracks festivals with at least one live session
	HubActiveFestivals = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "hub_active_festivals",
			Help: "Number of festivals with at least one connected session",
		},
	)

	// HubConnectedClients tracks currently connected WebSocket sessions
	HubConnectedClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "hub_connected_clients",
			Help: "Currently connected WebSocket sessions across all festivals",
		},
	)

	// HubConnectionsTotal tracks connections ever accepted
	HubConnectionsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "hub_connections_total",
			Help: "Total WebSocket sessions ever registered",
		},
	)

	// HubBroadcastsTotal tracks broadcasts submitted by message type
	HubBroadcastsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hub_broadcasts_total",
			Help: "Broadcasts submitted to the hub by message type",
		},
		[]string{"type"},
	)

	// HubSlowSessionsEvicted tracks sessions evicted because their send queue overflowed
	HubSlowSessionsEvicted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "hub_slow_sessions_evicted_total",
			Help: "Sessions evicted due to a full send queue",
		},
	)
)

// Session metrics
var (
	// SessionSendDuration tracks WebSocket write latency in seconds
	SessionSendDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "session_send_duration_seconds",
			Help:    "WebSocket message write duration in seconds",
			Buckets: []float64{.0005, .001, .005, .01, .05, .1, .5, 1, 5},
		},
	)

	// SessionPingFailures tracks idle pings that failed to write
	SessionPingFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "session_ping_failures_total",
			Help: "Idle ping writes that failed, closing the session",
		},
	)
)

// Server metrics
var (
	// ConnectionsRejectedTotal tracks upgrade requests refused by the connection limits
	ConnectionsRejectedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "connections_rejected_total",
			Help: "Upgrade requests rejected by connection limiting, by reason",
		},
		[]string{"reason"},
	)
)
