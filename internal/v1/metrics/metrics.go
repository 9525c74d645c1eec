package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics for the realtime collaboration hub.
// Declared in one package so handlers and transport share the same
// registrations without coupling to each other.
//
// Naming convention: namespace_subsystem_name
// - namespace: realtime (application-level grouping)
// - subsystem: websocket, room, board, pairing (feature-level grouping)
// - name: specific metric (connections_active, events_total, etc.)

var (
	// ActiveWebSocketConnections tracks the current number of active WebSocket connections
	ActiveWebSocketConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "realtime",
		Subsystem: "websocket",
		Name:      "connections_active",
		Help:      "Current number of active WebSocket connections",
	})

	// ActiveRooms tracks the current number of active rooms
	ActiveRooms = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "realtime",
		Subsystem: "room",
		Name:      "rooms_active",
		Help:      "Current number of active rooms",
	})

	// RoomParticipants tracks the number of members in each room
	RoomParticipants = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "realtime",
		Subsystem: "room",
		Name:      "participants_count",
		Help:      "Number of members in each room",
	}, []string{"room_id"})

	// WebsocketEvents tracks the total number of WebSocket envelopes processed
	WebsocketEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "realtime",
		Subsystem: "websocket",
		Name:      "events_total",
		Help:      "Total WebSocket envelopes processed",
	}, []string{"event_type", "status"})

	// MalformedFrames counts inbound frames dropped before dispatch
	MalformedFrames = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "realtime",
		Subsystem: "websocket",
		Name:      "malformed_frames_total",
		Help:      "Total inbound frames dropped as malformed",
	})

	// DroppedMessages counts outbound messages dropped because a client's
	// send queue was full
	DroppedMessages = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "realtime",
		Subsystem: "websocket",
		Name:      "dropped_messages_total",
		Help:      "Total outbound messages dropped due to full send queues",
	})

	// BoardSaves tracks debounced board persistence attempts
	BoardSaves = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "realtime",
		Subsystem: "board",
		Name:      "saves_total",
		Help:      "Total board save attempts",
	}, []string{"status"})

	// PairClaims tracks pairing token claim outcomes
	PairClaims = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "realtime",
		Subsystem: "pairing",
		Name:      "claims_total",
		Help:      "Total pairing token claims",
	}, []string{"status"})

	// RateLimitRequests tracks requests that passed rate limiting
	RateLimitRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "realtime",
		Subsystem: "ratelimit",
		Name:      "requests_total",
		Help:      "Total requests checked against rate limits",
	}, []string{"endpoint"})

	// RateLimitExceeded tracks requests rejected by rate limiting
	RateLimitExceeded = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "realtime",
		Subsystem: "ratelimit",
		Name:      "exceeded_total",
		Help:      "Total requests rejected by rate limits",
	}, []string{"endpoint", "limit_type"})

	// MessageProcessingDuration tracks the time spent processing WebSocket messages
	MessageProcessingDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "realtime",
		Subsystem: "websocket",
		Name:      "message_processing_seconds",
		Help:      "Time spent processing WebSocket messages",
		Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
	}, []string{"event_type"})
)

func IncConnection() {
	ActiveWebSocketConnections.Inc()
}

func DecConnection() {
	ActiveWebSocketConnections.Dec()
}
