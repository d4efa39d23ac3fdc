// Package metrics provides Prometheus metrics for the chat-client service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ActiveStreams tracks the number of open token streams.
	ActiveStreams = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "chatclient_active_streams",
			Help: "Number of currently open token streams",
		},
	)

	// StreamEvents tracks decoded stream events by kind.
	StreamEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatclient_stream_events_total",
			Help: "Total number of decoded stream events",
		},
		[]string{"kind"},
	)

	// PushEvents tracks decoded push-channel events by kind.
	PushEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatclient_push_events_total",
			Help: "Total number of decoded push-channel events",
		},
		[]string{"kind"},
	)

	// MalformedEvents tracks dropped unparseable payloads by channel.
	MalformedEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatclient_malformed_events_total",
			Help: "Total number of malformed payloads dropped",
		},
		[]string{"channel"},
	)

	// PushReconnects tracks push-channel reconnect attempts.
	PushReconnects = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chatclient_push_reconnects_total",
			Help: "Total number of push-channel reconnect attempts",
		},
	)

	// PersistenceSaves tracks fire-and-forget saves by outcome.
	PersistenceSaves = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatclient_persistence_saves_total",
			Help: "Total number of persistence API save calls",
		},
		[]string{"outcome"},
	)

	// HTTPRequestDuration tracks latency of the rendering-layer surface.
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chatclient_http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
