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
	// API metrics
	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "onair_api_request_duration_seconds",
			Help:    "Duration of API requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint", "status"},
	)

	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "onair_api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	APIActiveConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "onair_api_active_connections",
			Help: "Number of in-flight API requests",
		},
	)

	APIWebSocketConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "onair_api_websocket_connections",
			Help: "Number of open event websocket connections",
		},
	)

	// Queue metrics
	QueueLength = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "onair_queue_length",
			Help: "Number of pending items in the playback queue",
		},
	)

	QueueOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "onair_queue_operations_total",
			Help: "Total number of queue mutations by operation",
		},
		[]string{"op"},
	)

	TracksStartedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "onair_tracks_started_total",
			Help: "Total number of track-started callbacks by category",
		},
		[]string{"category"},
	)

	// Rotation metrics
	RotationTicksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "onair_rotation_ticks_total",
			Help: "Total number of rotation evaluations by trigger",
		},
		[]string{"trigger"},
	)

	RotationInsertionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "onair_rotation_insertions_total",
			Help: "Total number of items inserted by the rotation engine",
		},
		[]string{"category", "reason"},
	)

	RotationEmptyPoolTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "onair_rotation_empty_pool_total",
			Help: "Total number of rule firings skipped because the category pool was empty",
		},
		[]string{"category"},
	)

	// Show metrics
	ShowMode = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "onair_show_mode",
			Help: "1 while a show drives the queue, 0 in automation",
		},
	)

	ShowTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "onair_show_transitions_total",
			Help: "Total number of show mode transitions",
		},
		[]string{"transition"},
	)

	ScheduleDeferralsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "onair_schedule_deferrals_total",
			Help: "Total number of schedule firings deferred because a show was running",
		},
	)

	// Leadership metrics
	LeaderStatus = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "onair_leader",
			Help: "1 while this instance holds the playout lease",
		},
	)

	LeaderChangesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "onair_leader_changes_total",
			Help: "Total number of leadership transitions",
		},
		[]string{"transition"},
	)

	// Mix metrics
	MixGain = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "onair_mix_gain",
			Help: "Effective gain sent to the engine per channel",
		},
		[]string{"channel"},
	)

	JinglesFiredTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "onair_jingles_fired_total",
			Help: "Total number of instant jingles fired by slot",
		},
		[]string{"slot"},
	)

	// Engine metrics
	EngineCommandsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "onair_engine_commands_total",
			Help: "Total number of engine commands by command and result",
		},
		[]string{"command", "result"},
	)

	EngineCommandDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "onair_engine_command_duration_seconds",
			Help:    "Round trip time of engine control commands",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		},
		[]string{"command"},
	)

	EngineBreakerState = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "onair_engine_breaker_state",
			Help: "Engine circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
	)

	EngineErrorsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "onair_engine_errors_total",
			Help: "Total number of errors reported by the engine",
		},
	)

	// Health
	PlayoutStalled = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "onair_playout_stalled",
			Help: "1 when no track started within the expected duration plus margin",
		},
	)

	SecondsSinceTrackStart = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "onair_seconds_since_track_start",
			Help: "Seconds since the engine last reported a track start",
		},
	)

	// Database
	DatabaseQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "onair_database_query_duration_seconds",
			Help:    "Database operation duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation", "table"},
	)

	DatabaseErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "onair_database_errors_total",
			Help: "Total number of failed database operations",
		},
		[]string{"operation", "error_type"},
	)

	DatabaseConnectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "onair_database_connections_active",
			Help: "Open database connections",
		},
	)
)

// Handler exposes the metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
