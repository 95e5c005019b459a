// UCServer - Universal Control Protocol Engine for Media Devices
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ucserver

// Package metrics provides Prometheus instrumentation for the UC server:
// request latency and status, parked long-poll waiters, notification
// traffic, and authentication outcomes.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestDuration observes end-to-end handling time per method and
	// status code.
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ucserver_request_duration_seconds",
			Help:    "Duration of UC requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "status"},
	)

	// ActiveRequests tracks requests currently in flight.
	ActiveRequests = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "ucserver_active_requests",
			Help: "Number of UC requests currently being handled",
		},
	)

	// LongPollWaiters tracks clients parked on uc/events.
	LongPollWaiters = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "ucserver_longpoll_waiters",
			Help: "Number of clients parked on the uc/events long-poll",
		},
	)

	// NotificationsTotal counts notifiable changes by resource.
	NotificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ucserver_notifications_total",
			Help: "Total notifiable changes recorded, by resource",
		},
		[]string{"resource"},
	)

	// AuthFailures counts failed authentication checks by scheme.
	AuthFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ucserver_auth_failures_total",
			Help: "Total failed authentication checks, by scheme",
		},
		[]string{"scheme"},
	)

	// PairingsTotal counts pairing handshakes served.
	PairingsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ucserver_pairings_total",
			Help: "Total pairing key exchanges served",
		},
	)
)

// TrackActiveRequest adjusts the in-flight request gauge.
func TrackActiveRequest(start bool) {
	if start {
		ActiveRequests.Inc()
	} else {
		ActiveRequests.Dec()
	}
}

// RecordRequest records a completed request.
func RecordRequest(method, status string, duration time.Duration) {
	RequestDuration.WithLabelValues(method, status).Observe(duration.Seconds())
}
