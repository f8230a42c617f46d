// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "docconnect"

var (
	Connections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "ws",
		Name:      "connections",
		Help:      "Open websocket connections.",
	})

	OnlineUsers = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "presence",
		Name:      "online_users",
		Help:      "Users with at least one live connection.",
	})

	EventsReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "ws",
		Name:      "events_received_total",
		Help:      "Inbound realtime events by name and outcome.",
	}, []string{"event", "outcome"})

	EventsDropped = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "ws",
		Name:      "events_dropped_total",
		Help:      "Outbound events dropped because a client send buffer was full.",
	})

	MessagesSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "messaging",
		Name:      "messages_sent_total",
		Help:      "Persisted messages by transport.",
	}, []string{"transport"})

	Notifications = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "notification",
		Name:      "sent_total",
		Help:      "Notifications by route (pushed, queued, failed).",
	}, []string{"route"})

	QueueDropped = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "offline_queue",
		Name:      "dropped_total",
		Help:      "Oldest entries evicted from full offline queues.",
	})
)

// Handler serves the default registry
func Handler() gin.HandlerFunc {
	return gin.WrapH(promhttp.Handler())
}
