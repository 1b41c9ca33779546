// Package metrics provides Prometheus instrumentation for famchat.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Connections tracks the current number of open WebSocket connections.
	Connections = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "famchat_connections",
		Help: "Current number of open WebSocket connections",
	})

	// OnlineUsers tracks the number of usernames with at least one bound session.
	OnlineUsers = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "famchat_online_users",
		Help: "Current number of distinct online users",
	})

	// MessagesTotal counts persisted messages by scope ("general", "private")
	// and kind ("text", "file").
	MessagesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "famchat_messages_total",
		Help: "Total number of persisted messages",
	}, []string{"scope", "kind"})

	// DeletionsTotal counts hard-deleted messages.
	DeletionsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "famchat_message_deletions_total",
		Help: "Total number of deleted messages",
	})

	// DroppedEventsTotal counts broadcast events dropped because a client buffer was full.
	DroppedEventsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "famchat_dropped_events_total",
		Help: "Broadcast events dropped for slow consumers",
	})

	// StorageErrorsTotal counts failed storage operations by operation name.
	StorageErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "famchat_storage_errors_total",
		Help: "Storage operations that failed",
	}, []string{"op"})

	// RateLimitedTotal counts commands rejected by the rate limiter.
	RateLimitedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "famchat_rate_limited_total",
		Help: "Commands rejected by the rate limiter",
	})

	// StorageLatency records storage call latency in seconds.
	StorageLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "famchat_storage_latency_seconds",
		Help:    "Storage call latency in seconds",
		Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
	}, []string{"op"})

	// UploadBytes records accepted upload sizes.
	UploadBytes = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "famchat_upload_bytes",
		Help:    "Size of accepted uploads in bytes",
		Buckets: prometheus.ExponentialBuckets(1024, 4, 10),
	})
)

func init() {
	prometheus.MustRegister(
		Connections,
		OnlineUsers,
		MessagesTotal,
		DeletionsTotal,
		DroppedEventsTotal,
		StorageErrorsTotal,
		RateLimitedTotal,
		StorageLatency,
		UploadBytes,
	)
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
