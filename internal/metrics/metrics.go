package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Process-wide counters. The connection manager, event pipeline, game-end
// processor and anti-cheat validator all report through these.
var (
	ConnectionsCurrent = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "headball_connections_current",
		Help: "Currently authenticated WebSocket connections.",
	})

	ConnectionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "headball_connections_total",
		Help: "Total accepted WebSocket connections.",
	})

	ConnectionsTimedOut = promauto.NewCounter(prometheus.CounterOpts{
		Name: "headball_connections_timed_out_total",
		Help: "Connections force-closed after heartbeat timeout.",
	})

	ConnectionsReconnected = promauto.NewCounter(prometheus.CounterOpts{
		Name: "headball_connections_reconnected_total",
		Help: "Sockets replaced by an authenticated reconnect.",
	})

	EventsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "headball_events_processed_total",
		Help: "Events drained from the pipeline, by priority.",
	}, []string{"priority"})

	EventsRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "headball_events_rejected_total",
		Help: "Events rejected before enqueue, by reason.",
	}, []string{"reason"})

	EventsDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "headball_events_dropped_total",
		Help: "Events dropped by backpressure, by priority.",
	}, []string{"priority"})

	RoomsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "headball_rooms_active",
		Help: "Rooms currently registered with the manager.",
	})

	MatchesPersisted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "headball_matches_persisted_total",
		Help: "Match results written to the games table.",
	})

	PersistFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "headball_persist_failures_total",
		Help: "Match writes abandoned after the retry budget.",
	})

	AnticheatRejections = promauto.NewCounter(prometheus.CounterOpts{
		Name: "headball_anticheat_rejections_total",
		Help: "Result submissions rejected by the anti-cheat validator.",
	})
)
