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

var (
	// APIRequestsTotal counts HTTP requests by method, endpoint, and status.
	APIRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "jukebox_api_requests_total",
		Help: "Total HTTP API requests.",
	}, []string{"method", "endpoint", "status"})

	// APIRequestDuration observes HTTP request latency.
	APIRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "jukebox_api_request_duration_seconds",
		Help:    "HTTP API request duration.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "endpoint", "status"})

	// APIWebSocketConnections tracks currently connected event observers.
	APIWebSocketConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "jukebox_websocket_connections",
		Help: "Currently connected websocket observers.",
	})

	// CommandsEnqueuedTotal counts transport commands placed on the queue.
	CommandsEnqueuedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "jukebox_commands_enqueued_total",
		Help: "Transport commands enqueued for the device.",
	}, []string{"verb"})

	// CommandsAcknowledgedTotal counts device acknowledgements.
	CommandsAcknowledgedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "jukebox_commands_acknowledged_total",
		Help: "Commands acknowledged by the device.",
	})

	// CommandsGCTotal counts commands removed by queue garbage collection.
	CommandsGCTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "jukebox_commands_gc_total",
		Help: "Acknowledged commands deleted by the GC loop.",
	})

	// StateReportsTotal counts device state reports by resulting state.
	StateReportsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "jukebox_state_reports_total",
		Help: "Playback state reports received from the device.",
	}, []string{"state"})

	// TrackPlaysTotal counts recorded track-play events.
	TrackPlaysTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "jukebox_track_plays_total",
		Help: "Track play events recorded.",
	})

	// ScrobblesTotal counts scrobble scheduler outcomes.
	ScrobblesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "jukebox_scrobbles_total",
		Help: "Scrobble scheduler outcomes.",
	}, []string{"outcome"}) // scheduled, submitted, cancelled, failed
)

// Handler exposes the Prometheus metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
