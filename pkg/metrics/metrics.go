// Package metrics provides Prometheus metrics for the Aster service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// MessagesSentTotal tracks messages accepted by the gate and persisted
	MessagesSentTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "aster",
			Subsystem: "messaging",
			Name:      "messages_sent_total",
			Help:      "Total number of messages sent by chat type",
		},
		[]string{"chat_type"},
	)

	// GateDenialsTotal tracks messages blocked by the gating engine
	GateDenialsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "aster",
			Subsystem: "messaging",
			Name:      "gate_denials_total",
			Help:      "Total number of messages denied by the gate, by reason",
		},
		[]string{"reason"},
	)

	// ConversationsStartedTotal tracks conversations created by find-or-create
	ConversationsStartedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "aster",
			Subsystem: "messaging",
			Name:      "conversations_started_total",
			Help:      "Total number of conversations created by chat type",
		},
		[]string{"chat_type"},
	)

	// NotificationsEmittedTotal tracks chat event emission attempts
	NotificationsEmittedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "aster",
			Subsystem: "events",
			Name:      "notifications_emitted_total",
			Help:      "Total number of chat notification events by type and status",
		},
		[]string{"event_type", "status"},
	)

	// ConnectionRequestsTotal tracks connection request outcomes
	ConnectionRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "aster",
			Subsystem: "connections",
			Name:      "requests_total",
			Help:      "Total number of connection request operations by outcome",
		},
		[]string{"outcome"},
	)
)

// RecordGateDecision records a gate evaluation outcome
func RecordGateDecision(allowed bool, reason, chatType string) {
	if allowed {
		MessagesSentTotal.WithLabelValues(chatType).Inc()
		return
	}
	GateDenialsTotal.WithLabelValues(reason).Inc()
}

// RecordNotification records a chat event emission attempt
func RecordNotification(eventType string, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	NotificationsEmittedTotal.WithLabelValues(eventType, status).Inc()
}
