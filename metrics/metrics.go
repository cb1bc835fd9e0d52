// Package metrics defines the Prometheus collectors for chat business
// operations. HTTP-level metrics are left to the deployment's ingress.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	WebsocketConnectionsActive = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "chat_websocket_connections_active",
		Help: "Number of active WebSocket connections",
	}, []string{"conversation_id"})

	WebsocketConnectionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chat_websocket_connections_total",
		Help: "Total number of WebSocket connections established",
	}, []string{"conversation_id"})

	WebsocketDisconnectionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chat_websocket_disconnections_total",
		Help: "Total number of WebSocket disconnections",
	}, []string{"conversation_id", "reason"})

	WebsocketBroadcastTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chat_websocket_messages_broadcast_total",
		Help: "Total number of events broadcast via WebSocket",
	}, []string{"conversation_id"})

	WebsocketBroadcastErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chat_websocket_broadcast_errors_total",
		Help: "Total number of WebSocket broadcast failures",
	}, []string{"conversation_id"})

	MessagesCreatedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chat_messages_created_total",
		Help: "Total number of messages created",
	}, []string{"conversation_id"})

	MessagesUpdatedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chat_messages_updated_total",
		Help: "Total number of messages updated",
	}, []string{"conversation_id"})

	MessagesDeletedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chat_messages_deleted_total",
		Help: "Total number of messages soft-deleted",
	}, []string{"conversation_id"})

	// CircuitBreakerState is 0 for closed, 1 for open, 2 for half-open.
	CircuitBreakerState = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "chat_auth_circuit_breaker_state",
		Help: "Current circuit breaker state (0=closed, 1=open, 2=half_open)",
	})

	CircuitBreakerTransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chat_auth_circuit_breaker_transitions_total",
		Help: "Total number of circuit breaker state transitions",
	}, []string{"from", "to"})

	AuthCacheHitsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chat_auth_cache_hits_total",
		Help: "Total number of authorization cache hits",
	}, []string{"outcome"})
)
