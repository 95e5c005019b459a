// UCServer - Universal Control Protocol Engine for Media Devices
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ucserver

// Package middleware provides the HTTP middleware applied on the outer
// router: request identification and Prometheus instrumentation.
package middleware

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/tomtom215/ucserver/internal/logging"
)

// RequestID generates a unique ID for each request and adds it to both
// the response header and the request context, preserving an ID supplied
// by an upstream proxy.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.New().String()
		}

		w.Header().Set("X-Request-ID", requestID)
		ctx := logging.ContextWithRequestID(r.Context(), requestID)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
