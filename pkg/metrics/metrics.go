/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package metrics provides Prometheus metrics for portal-sync.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// FetchTotal counts backend fetches by resource and outcome.
	FetchTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "portalsync",
			Name:      "fetch_total",
			Help:      "Total number of backend fetches",
		},
		[]string{"resource", "status"},
	)

	// FetchDuration measures backend fetch duration, retries included.
	FetchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "portalsync",
			Name:      "fetch_duration_seconds",
			Help:      "Duration of backend fetches in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"resource"},
	)

	// PollInterval observes the interval recommended before each cycle.
	PollInterval = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "portalsync",
			Name:      "poll_interval_seconds",
			Help:      "Recommended poll interval per cycle",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600},
		},
		[]string{"resource"},
	)

	// PausedTotal counts cycles skipped because the view was hidden.
	PausedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "portalsync",
			Name:      "paused_total",
			Help:      "Total number of poll cycles paused while hidden",
		},
		[]string{"resource"},
	)

	// ActiveViews tracks running view refreshers.
	ActiveViews = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "portalsync",
			Name:      "active_views",
			Help:      "Number of running view refreshers",
		},
	)

	// ActiveSessions tracks open dashboard sessions.
	ActiveSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "portalsync",
			Name:      "active_sessions",
			Help:      "Number of open dashboard sessions",
		},
	)
)

// RecordFetch records a fetch outcome.
func RecordFetch(resource, status string, duration float64) {
	FetchTotal.WithLabelValues(resource, status).Inc()
	FetchDuration.WithLabelValues(resource).Observe(duration)
}

// RecordInterval records the interval chosen for the next cycle.
func RecordInterval(resource string, seconds float64) {
	PollInterval.WithLabelValues(resource).Observe(seconds)
}

// RecordPaused records a paused cycle.
func RecordPaused(resource string) {
	PausedTotal.WithLabelValues(resource).Inc()
}
