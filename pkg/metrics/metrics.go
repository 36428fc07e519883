package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Stream metrics
	ReconnectAttempts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "deskd_stream_reconnect_attempts_total",
			Help: "Total stream reconnect attempts after a session error",
		},
	)

	SessionsStarted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "deskd_stream_sessions_total",
			Help: "Total stream sessions attempted",
		},
	)

	FramesReceived = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "deskd_stream_frames_received_total",
			Help: "Total websocket frames received",
		},
		[]string{"kind"}, // "text", "ping", "pong", "other"
	)

	LivenessPings = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "deskd_stream_liveness_pings_total",
			Help: "Total liveness probes sent after idle periods",
		},
	)

	// Message metrics
	MessagesReceived = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "deskd_messages_received_total",
			Help: "Total messages received on the stream",
		},
	)

	MessagesDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "deskd_messages_dropped_total",
			Help: "Total inbound frames dropped due to decode failures",
		},
	)

	CacheSize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "deskd_cache_messages",
			Help: "Current number of messages in the cache",
		},
	)

	// Reconciliation metrics
	SyncRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "deskd_sync_runs_total",
			Help: "Total snapshot reconciliation runs",
		},
		[]string{"result"}, // "changed", "unchanged", "error"
	)
)
