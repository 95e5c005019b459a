// UCServer - Universal Control Protocol Engine for Media Devices
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ucserver

// Package server is the HTTP shell of the UC protocol engine: it captures
// the receive timestamp, runs the CORS layer, walks the resource trie,
// dispatches to the handler capability matching the (possibly overridden)
// method, and translates typed handler errors into the XML error body.
package server

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/tomtom215/ucserver/internal/auth"
	"github.com/tomtom215/ucserver/internal/backend"
	"github.com/tomtom215/ucserver/internal/handlers"
	"github.com/tomtom215/ucserver/internal/logging"
	"github.com/tomtom215/ucserver/internal/notify"
	"github.com/tomtom215/ucserver/internal/resource"
	"github.com/tomtom215/ucserver/internal/ucerr"
)

// Version is the protocol engine version reported by GET uc and the
// Server header.
const Version = "0.6.0"

// crossdomainXML is the static policy body served at /crossdomain.xml
// regardless of authentication.
const crossdomainXML = `<?xml version="1.0"?><!DOCTYPE cross-domain-policy SYSTEM "http://www.adobe.com/xml/dtds/cross-domain-policy.dtd"><cross-domain-policy><site-control permitted-cross-domain-policies="master-only"/><allow-access-from domain="*"/></cross-domain-policy>
`

// Options configures a Server.
type Options struct {
	Name     string
	UUID     string
	LogoHref string

	// Resources lists the optional resources to enable.
	Resources []string

	// AuthRequired enables the UC security scheme.
	AuthRequired bool
	// PIN keys the restriction authorisation flow.
	PIN string
	// ConfirmStorageDelete gates storage deletion behind confirmation.
	ConfirmStorageDelete bool

	CORS CORSConfig

	// PairRate and PairBurst bound pairing key generation; a zero PairRate
	// disables the limiter, and a PairBurst below 1 counts as 1.
	PairRate  rate.Limit
	PairBurst int
}

// Server binds the protocol engine together. It implements http.Handler;
// the surrounding router provides listener lifecycle and middleware.
type Server struct {
	opts  Options
	store *notify.Store

	Auth     *auth.Engine
	Digest   *auth.DigestAuth
	Restrict *auth.Restrictor
	Device   *backend.Device

	tree *resource.Tree

	standby atomic.Bool

	sssMu sync.Mutex
	sss   *byte

	// CPUsed is invoked whenever a pending client becomes permanent,
	// mirroring the pairing-screen dismissal hook of the protocol.
	CPUsed func()
}

// New assembles a server from its collaborators. The engine's
// authenticated callback is replaced with the server's own, so that
// promotions surface on uc/credentials.
func New(opts Options, store *notify.Store, engine *auth.Engine, device *backend.Device) (*Server, error) {
	s := &Server{
		opts:     opts,
		store:    store,
		Auth:     engine,
		Digest:   auth.NewDigestAuth(opts.UUID),
		Restrict: auth.NewRestrictor(engine),
		Device:   device,
		tree:     resource.NewTree(),
	}

	engine.OnAuthenticated = s.authenticated
	device.SetNotifier(store.Notify)

	var limiter *rate.Limiter
	if opts.PairRate > 0 {
		limiter = rate.NewLimiter(opts.PairRate, max(opts.PairBurst, 1))
	}

	ctx := &handlers.Context{
		Name:                 opts.Name,
		ServerID:             opts.UUID,
		Version:              Version,
		LogoHref:             opts.LogoHref,
		AuthRequired:         opts.AuthRequired,
		Options:              opts.Resources,
		PIN:                  opts.PIN,
		ConfirmStorageDelete: opts.ConfirmStorageDelete,
		Notify:               store,
		Auth:                 engine,
		Restrict:             s.Restrict,
		Device:               device,
		Standby:              s.Standby,
		SetStandby:           s.SetStandby,
		SSS:                  s.currentSSS,
		PairLimit:            limiter,
	}

	if err := handlers.Install(s.tree, ctx, opts.Resources); err != nil {
		return nil, err
	}

	// The box announces its own arrival.
	store.Notify("uc/power")

	return s, nil
}

// authenticated runs when a pending client is promoted.
func (s *Server) authenticated(clientID string) {
	s.store.Notify("uc/credentials")
	if s.CPUsed != nil {
		s.CPUsed()
	}
}

// Standby reports whether the box is in standby.
func (s *Server) Standby() bool {
	return s.standby.Load()
}

// SetStandby drives a standby transition through the backend callback.
// It returns false when the backend refuses; the state only changes on
// success. No-op transitions succeed without consulting the backend.
func (s *Server) SetStandby(standby bool) bool {
	if standby == s.standby.Load() {
		return true
	}
	if s.Device.Standby != nil && !s.Device.Standby(standby) {
		return false
	}
	if standby {
		logging.Info().Msg("Going into standby mode")
	} else {
		logging.Info().Msg("Leaving standby mode")
	}
	s.standby.Store(standby)
	return true
}

// SetSSS opens pairing with the given single shared secret.
func (s *Server) SetSSS(sss byte) {
	s.sssMu.Lock()
	defer s.sssMu.Unlock()
	s.sss = &sss
}

// ClearSSS closes pairing.
func (s *Server) ClearSSS() {
	s.sssMu.Lock()
	defer s.sssMu.Unlock()
	s.sss = nil
}

func (s *Server) currentSSS() (byte, bool) {
	s.sssMu.Lock()
	defer s.sssMu.Unlock()
	if s.sss == nil {
		return 0, false
	}
	return *s.sss, true
}

// Notify records a notifiable change; device code calls it for resources
// without registry setters.
func (s *Server) Notify(rref string) {
	s.store.Notify(rref)
}

// ServeHTTP handles one request end to end.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	received := time.Now().UTC()

	w.Header().Set("Server", "UCServer/"+Version)

	if r.Method == http.MethodOptions {
		s.opts.CORS.preflight(w, r)
		return
	}

	cw := &corsWriter{ResponseWriter: w, cfg: &s.opts.CORS, req: r}

	if r.Method == http.MethodGet && r.URL.Path == "/crossdomain.xml" {
		cw.Header().Set("Content-Type", "text/xml")
		cw.WriteHeader(http.StatusOK)
		_, _ = cw.Write([]byte(crossdomainXML))
		return
	}

	path, query, params, err := processPath(r)
	if err != nil {
		ucerr.WriteError(cw, http.StatusBadRequest, err.Error())
		return
	}

	method := r.Method
	if override := params.Get("method_"); override != "" {
		method = override
		params.Del("method_")
	}
	head := false
	if method == http.MethodHead {
		head = true
		method = http.MethodGet
	}

	handler := s.tree.Lookup(path)
	if handler == nil {
		ucerr.WriteError(cw, http.StatusMethodNotAllowed, "")
		return
	}

	req := &resource.Request{
		W:        cw,
		R:        r,
		Path:     path,
		Query:    query,
		Params:   params,
		Head:     head,
		Received: received,
	}

	if err := s.dispatch(handler, method, req); err != nil {
		code := ucerr.CodeOf(err)
		if code == http.StatusInternalServerError {
			logging.Error().Err(err).Str("path", r.URL.Path).Str("method", method).Msg("Request failed")
		}
		ucerr.WriteError(cw, code, err.Error())
	}
}

// dispatch routes the request to the handler capability for the method.
// In standby the standby capability is preferred where the handler
// implements one; otherwise the normal capability runs.
func (s *Server) dispatch(h resource.Handler, method string, req *resource.Request) error {
	if any, ok := h.(resource.AnyMethod); ok {
		return any.Do(method, req)
	}

	standby := s.standby.Load()

	switch method {
	case http.MethodGet:
		if standby {
			if sg, ok := h.(resource.StandbyGetter); ok {
				return sg.StandbyGet(req)
			}
		}
		if g, ok := h.(resource.Getter); ok {
			return g.Get(req)
		}
	case http.MethodPut:
		if standby {
			if sp, ok := h.(resource.StandbyPutter); ok {
				return sp.StandbyPut(req)
			}
		}
		if p, ok := h.(resource.Putter); ok {
			return p.Put(req)
		}
	case http.MethodPost:
		if p, ok := h.(resource.Poster); ok {
			return p.Post(req)
		}
	case http.MethodDelete:
		if d, ok := h.(resource.Deleter); ok {
			return d.Delete(req)
		}
	}
	return ucerr.NotImplemented(fmt.Sprintf("%s is not supported on this resource", method))
}

// processPath splits and decodes the request path and query. The query
// string is echoed into response resource attributes in its decoded
// form.
func processPath(r *http.Request) ([]string, string, url.Values, error) {
	raw := strings.Trim(r.URL.EscapedPath(), "/")
	segments := strings.Split(raw, "/")

	path := make([]string, 0, len(segments))
	for _, seg := range segments {
		decoded, err := url.PathUnescape(seg)
		if err != nil {
			return nil, "", nil, fmt.Errorf("malformed path segment %q", seg)
		}
		path = append(path, decoded)
	}

	query := ""
	if r.URL.RawQuery != "" {
		decoded, err := url.QueryUnescape(r.URL.RawQuery)
		if err != nil {
			return nil, "", nil, fmt.Errorf("malformed query")
		}
		query = "?" + decoded
	}

	params, err := url.ParseQuery(r.URL.RawQuery)
	if err != nil {
		return nil, "", nil, fmt.Errorf("malformed query")
	}

	return path, query, params, nil
}
