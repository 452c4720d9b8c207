/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package telemetry

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// StreamStartTotal counts transcoder launches.
	StreamStartTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bragi_stream_start_total",
		Help: "Total number of transcoder launches",
	})

	// StreamExitTotal counts transcoder exits by outcome.
	StreamExitTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bragi_stream_exit_total",
		Help: "Total number of transcoder exits by outcome",
	}, []string{"outcome"})

	// FailureTotal counts failures by kind (crash, listing, launch).
	FailureTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bragi_failure_total",
		Help: "Total number of transient failures by kind",
	}, []string{"kind"})

	// BackoffSeconds is the most recent reconnect delay.
	BackoffSeconds = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "bragi_backoff_seconds",
		Help: "Most recent reconnect backoff delay",
	})

	// ItemsPlayedTotal counts items streamed to completion.
	ItemsPlayedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bragi_items_played_total",
		Help: "Items streamed to completion",
	})

	// PlaylistSize is the size of the current deck.
	PlaylistSize = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "bragi_playlist_size",
		Help: "Number of items in the current playlist deck",
	})

	// StreamDuration observes how long each item streamed before exit.
	StreamDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "bragi_stream_duration_seconds",
		Help:    "Wall-clock streaming time per item by outcome",
		Buckets: []float64{1, 5, 15, 60, 300, 900, 1800, 3600, 7200},
	}, []string{"outcome"})

	// HTTPRequestTotal counts API requests.
	HTTPRequestTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bragi_http_requests_total",
		Help: "Total HTTP requests by path and status",
	}, []string{"path", "status"})

	// HTTPRequestDuration observes API latency.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "bragi_http_request_duration_seconds",
		Help:    "HTTP request latency by path",
		Buckets: prometheus.DefBuckets,
	}, []string{"path"})
)

// RecordStreamExit records one transcoder exit and its streaming time.
func RecordStreamExit(outcome string, ran time.Duration) {
	StreamExitTotal.WithLabelValues(outcome).Inc()
	StreamDuration.WithLabelValues(outcome).Observe(ran.Seconds())
}

// RecordFailure counts a transient failure.
func RecordFailure(kind string) {
	FailureTotal.WithLabelValues(kind).Inc()
}

// RecordHTTPRequest counts one API request.
func RecordHTTPRequest(path string, status int, duration time.Duration) {
	HTTPRequestTotal.WithLabelValues(path, strconv.Itoa(status)).Inc()
	HTTPRequestDuration.WithLabelValues(path).Observe(duration.Seconds())
}
