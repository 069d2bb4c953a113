/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "receiver_portal"

// HTTP API metrics.
var (
	APIRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "api",
		Name:      "request_duration_seconds",
		Help:      "HTTP request latency by method, route and status.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "endpoint", "status"})

	APIRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "api",
		Name:      "requests_total",
		Help:      "HTTP requests by method, route and status.",
	}, []string{"method", "endpoint", "status"})

	APIActiveConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "api",
		Name:      "active_connections",
		Help:      "In-flight HTTP requests.",
	})

	APIWebSocketConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "api",
		Name:      "websocket_connections",
		Help:      "Open session WebSocket connections.",
	})
)

// Session and flow metrics.
var (
	SessionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "session",
		Name:      "active",
		Help:      "Portal sessions currently running.",
	})

	SessionTickDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "session",
		Name:      "tick_duration_seconds",
		Help:      "Time spent evaluating one playback sample.",
		Buckets:   []float64{.0001, .0005, .001, .005, .01, .05},
	})

	FlowTransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "flow",
		Name:      "transitions_total",
		Help:      "Phase transitions by source and destination phase.",
	}, []string{"from", "to"})

	FlowActionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "flow",
		Name:      "actions_total",
		Help:      "Overlay actions by action and result.",
	}, []string{"action", "result"})

	CheckpointEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "timeline",
		Name:      "checkpoint_events_total",
		Help:      "Scheduler events by kind and checkpoint.",
	}, []string{"kind", "checkpoint"})

	AudioRejectionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "audio",
		Name:      "rejections_total",
		Help:      "Audio channel start rejections by channel.",
	}, []string{"channel"})

	BridgeOutcomesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "bridge",
		Name:      "outcomes_total",
		Help:      "Bridge clip completions by kind and outcome (ended, error, timeout).",
	}, []string{"kind", "outcome"})
)

// Integration metrics.
var (
	EventsExportedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "events",
		Name:      "exported_total",
		Help:      "Portal events forwarded to external brokers by broker and outcome (published, failed, skipped).",
	}, []string{"broker", "outcome"})

	AssetsMissing = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "assets",
		Name:      "missing",
		Help:      "Catalog assets not found in media storage at the last preflight.",
	})
)

// Handler exposes the metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
