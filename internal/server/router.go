// UCServer - Universal Control Protocol Engine for Media Devices
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ucserver

package server

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tomtom215/ucserver/internal/middleware"
)

// RouterConfig tunes the outer router.
type RouterConfig struct {
	// RateLimitRequests per RateLimitWindow per client IP; zero disables
	// rate limiting.
	RateLimitRequests int
	RateLimitWindow   time.Duration

	// Metrics exposes /metrics when set.
	Metrics bool
}

// Router mounts the UC dispatcher behind the global middleware stack.
// Chi carries the middleware composition; the UC resource trie does its
// own routing under the catch-all mount.
func Router(s *Server, cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.PrometheusMetrics)
	if cfg.RateLimitRequests > 0 {
		window := cfg.RateLimitWindow
		if window <= 0 {
			window = time.Minute
		}
		r.Use(httprate.LimitByIP(cfg.RateLimitRequests, window))
	}

	if cfg.Metrics {
		r.Handle("/metrics", promhttp.Handler())
	}

	// The UC tree is case-sensitive and verb-dispatched internally, so
	// everything else funnels into the dispatcher.
	r.Handle("/*", s)

	return r
}
