// UCServer - Universal Control Protocol Engine for Media Devices
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ucserver

package server

import (
	"net/http"
	"strconv"
)

// CORSConfig controls the cross-origin layer applied to every response.
type CORSConfig struct {
	// AllowOrigins is the origin allow-list; "*" admits any origin.
	AllowOrigins []string
	// AllowMethods is advertised on preflight responses.
	AllowMethods []string
	// MaxAge is the preflight cache lifetime in seconds.
	MaxAge int
	// AllowCredentials enables credentialed cross-origin requests.
	AllowCredentials bool
}

// DefaultCORSMethods is the method set advertised when none is
// configured.
var DefaultCORSMethods = []string{"GET", "PUT", "POST", "DELETE"}

// requestOrigin extracts the request origin, falling back to Referer for
// clients that omit Origin on cross-origin requests.
func requestOrigin(r *http.Request) string {
	if origin := r.Header.Get("Origin"); origin != "" {
		return origin
	}
	return r.Header.Get("Referer")
}

// originAllowed reports whether an origin passes the allow-list. The
// empty origin passes only a wildcard list.
func (c *CORSConfig) originAllowed(origin string) bool {
	for _, allowed := range c.AllowOrigins {
		if allowed == "*" || (origin != "" && allowed == origin) {
			return true
		}
	}
	return false
}

func (c *CORSConfig) wildcard() bool {
	for _, allowed := range c.AllowOrigins {
		if allowed == "*" {
			return true
		}
	}
	return false
}

// apply injects the CORS headers carried on every non-preflight
// response: an exact echo of an allowed origin, or "*" when the request
// carried none and the list is wildcarded.
func (c *CORSConfig) apply(header http.Header, r *http.Request) {
	origin := requestOrigin(r)

	switch {
	case origin != "" && c.originAllowed(origin):
		header.Set("Access-Control-Allow-Origin", origin)
	case origin == "" && c.wildcard():
		header.Set("Access-Control-Allow-Origin", "*")
	}
	if c.AllowCredentials {
		header.Set("Access-Control-Allow-Credentials", "true")
	}
}

// preflight answers a CORS OPTIONS request: 200 with the access-control
// headers for an allowed origin, 403 with none otherwise.
func (c *CORSConfig) preflight(w http.ResponseWriter, r *http.Request) {
	origin := requestOrigin(r)

	headers := r.Header.Get("Access-Control-Request-Headers")
	if headers == "" {
		headers = "Origin"
	} else {
		headers += ", Origin"
	}

	switch {
	case origin != "" && c.originAllowed(origin):
		w.Header().Set("Access-Control-Allow-Origin", origin)
	case origin == "" && c.wildcard():
		w.Header().Set("Access-Control-Allow-Origin", "*")
	default:
		http.Error(w, "origin not allowed", http.StatusForbidden)
		return
	}

	if c.AllowCredentials {
		w.Header().Set("Access-Control-Allow-Credentials", "true")
	}

	methods := c.AllowMethods
	if len(methods) == 0 {
		methods = DefaultCORSMethods
	}
	w.Header().Set("Access-Control-Max-Age", strconv.Itoa(c.MaxAge))
	w.Header().Set("Access-Control-Allow-Methods", joinMethods(methods))
	w.Header().Set("Access-Control-Allow-Headers", headers)
	w.WriteHeader(http.StatusOK)
}

func joinMethods(methods []string) string {
	out := ""
	for i, m := range methods {
		if i > 0 {
			out += ", "
		}
		out += m
	}
	return out
}

// corsWriter injects the CORS headers just before the first WriteHeader,
// so every handler response carries them without each handler knowing.
type corsWriter struct {
	http.ResponseWriter
	cfg   *CORSConfig
	req   *http.Request
	wrote bool
}

func (w *corsWriter) WriteHeader(code int) {
	if !w.wrote {
		w.wrote = true
		w.cfg.apply(w.Header(), w.req)
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *corsWriter) Write(data []byte) (int, error) {
	if !w.wrote {
		w.WriteHeader(http.StatusOK)
	}
	return w.ResponseWriter.Write(data)
}
