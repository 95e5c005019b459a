// UCServer - Universal Control Protocol Engine for Media Devices
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ucserver

// Package handlers implements the UC resource handlers: one handler value
// per URI pattern, installed into the resource trie by Install. Handlers
// are stateless; everything they need arrives through the shared Context,
// which the server wires at startup.
package handlers

import (
	"fmt"

	"golang.org/x/time/rate"

	"github.com/tomtom215/ucserver/internal/auth"
	"github.com/tomtom215/ucserver/internal/backend"
	"github.com/tomtom215/ucserver/internal/metrics"
	"github.com/tomtom215/ucserver/internal/notify"
	"github.com/tomtom215/ucserver/internal/resource"
)

// Context carries the registries and state machines the handlers share.
// It replaces the class-level mutable state of older UC servers with
// explicit dependency injection.
type Context struct {
	// Server identity, reported by GET uc.
	Name     string
	ServerID string
	Version  string
	LogoHref string

	// AuthRequired enables the UC security scheme. With it off every
	// authentication check passes without consulting the engine.
	AuthRequired bool

	// Options lists the enabled optional resources, in install order.
	Options []string

	// PIN keys the restriction authorisation flow.
	PIN string

	// ConfirmStorageDelete gates stored-item deletion behind the
	// restriction confirmation flow.
	ConfirmStorageDelete bool

	Notify   *notify.Store
	Auth     *auth.Engine
	Restrict *auth.Restrictor
	Device   *backend.Device

	// Standby reports and SetStandby drives the box's standby state.
	// SetStandby returns false when the backend refuses the transition.
	Standby    func() bool
	SetStandby func(standby bool) bool

	// SSS returns the current single shared secret, if pairing is open.
	SSS func() (byte, bool)

	// PairLimit throttles pairing key generation.
	PairLimit *rate.Limiter
}

// checkAuth validates the request's UC credentials against the given
// body, writing the 402 challenge itself on failure. With the security
// scheme off it always passes.
func (c *Context) checkAuth(req *resource.Request, body []byte) bool {
	if !c.AuthRequired {
		return true
	}
	return c.Auth.CheckAuthentication(req.W, req.R, body)
}

// authValid evaluates the request's credentials without writing a
// challenge. Used by the app-extension proxy, which forwards the auth
// outcome instead of failing the request.
func (c *Context) authValid(req *resource.Request, body []byte) bool {
	if !c.AuthRequired {
		return true
	}
	return c.Auth.Authenticated(req.R, body)
}

// notifyChange records a notifiable change on a resource.
func (c *Context) notifyChange(rref string) {
	metrics.NotificationsTotal.WithLabelValues(rref).Inc()
	c.Notify.Notify(rref)
}

// option binds an optional resource name to the trie paths it installs.
type option struct {
	install func(t *resource.Tree, c *Context)
	// rref is the resource listed by GET uc, empty for resources outside
	// the uc tree.
	rref string
}

// optionTable enumerates the optional resources the server can enable.
var optionTable = map[string]option{
	"power": {rref: "uc/power", install: func(t *resource.Tree, c *Context) {
		t.Register([]string{"uc", "power"}, &powerHandler{ctx: c})
	}},
	"time": {rref: "uc/time", install: func(t *resource.Tree, c *Context) {
		t.Register([]string{"uc", "time"}, &timeHandler{ctx: c})
	}},
	"events": {rref: "uc/events", install: func(t *resource.Tree, c *Context) {
		t.Register([]string{"uc", "events"}, &eventsHandler{ctx: c})
	}},
	"outputs": {rref: "uc/outputs", install: func(t *resource.Tree, c *Context) {
		t.Register([]string{"uc", "outputs"}, &outputsHandler{ctx: c})
		t.Register([]string{"uc", "outputs", "*"}, &outputHandler{ctx: c})
		t.Register([]string{"uc", "outputs", "*", "settings"}, &outputSettingsHandler{ctx: c})
		t.Register([]string{"uc", "outputs", "*", "playhead"}, &outputPlayheadHandler{ctx: c})
	}},
	"remote": {rref: "uc/remote", install: func(t *resource.Tree, c *Context) {
		t.Register([]string{"uc", "remote"}, &remoteHandler{ctx: c})
	}},
	"feedback": {rref: "uc/feedback", install: func(t *resource.Tree, c *Context) {
		t.Register([]string{"uc", "feedback"}, &feedbackHandler{ctx: c})
	}},
	"source-lists": {rref: "uc/source-lists", install: func(t *resource.Tree, c *Context) {
		t.Register([]string{"uc", "source-lists"}, &sourceListsHandler{ctx: c})
		t.Register([]string{"uc", "source-lists", "*"}, &sourceListHandler{ctx: c})
	}},
	"sources": {rref: "uc/sources", install: func(t *resource.Tree, c *Context) {
		t.Register([]string{"uc", "sources"}, &sourcesHandler{ctx: c})
		t.Register([]string{"uc", "sources", "*"}, &sourceHandler{ctx: c})
	}},
	"search": {rref: "uc/search", install: func(t *resource.Tree, c *Context) {
		t.Register([]string{"uc", "search"}, &get204Handler{ctx: c})
		for _, sub := range []string{"outputs", "sources", "source-lists", "text", "categories", "global-content-id", "global-series-id", "global-app-id"} {
			t.Register([]string{"uc", "search", sub}, &get204Handler{ctx: c})
		}
		t.Register([]string{"uc", "search", "outputs", "*"}, &searchOutputHandler{ctx: c})
		t.Register([]string{"uc", "search", "sources", "*"}, &searchSourcesHandler{ctx: c})
		t.Register([]string{"uc", "search", "source-lists", "*"}, &searchSourceListsHandler{ctx: c})
		t.Register([]string{"uc", "search", "text", "*"}, &searchTextHandler{ctx: c})
		t.Register([]string{"uc", "search", "categories", "*"}, &searchCategoriesHandler{ctx: c})
		t.Register([]string{"uc", "search", "global-content-id", "*"}, &searchGlobalIDHandler{ctx: c, kind: searchGCID})
		t.Register([]string{"uc", "search", "global-series-id", "*"}, &searchGlobalIDHandler{ctx: c, kind: searchGSID})
		t.Register([]string{"uc", "search", "global-app-id", "*"}, &searchGlobalIDHandler{ctx: c, kind: searchGAID})
	}},
	"acquisitions": {rref: "uc/acquisitions", install: func(t *resource.Tree, c *Context) {
		t.Register([]string{"uc", "acquisitions"}, &acquisitionsHandler{ctx: c})
		t.Register([]string{"uc", "acquisitions", "*"}, &acquisitionHandler{ctx: c})
	}},
	"storage": {rref: "uc/storage", install: func(t *resource.Tree, c *Context) {
		t.Register([]string{"uc", "storage"}, &storageHandler{ctx: c})
		t.Register([]string{"uc", "storage", "*"}, &storedItemHandler{ctx: c})
	}},
	"credentials": {rref: "uc/credentials", install: func(t *resource.Tree, c *Context) {
		t.Register([]string{"uc", "credentials"}, &credentialsHandler{ctx: c})
		t.Register([]string{"uc", "credentials", "*"}, &credentialHandler{ctx: c})
	}},
	"categories": {rref: "uc/categories", install: func(t *resource.Tree, c *Context) {
		t.Register([]string{"uc", "categories"}, &categoriesHandler{ctx: c})
	}},
	"apps": {rref: "uc/apps", install: func(t *resource.Tree, c *Context) {
		t.Register([]string{"uc", "apps"}, &appsHandler{ctx: c})
		t.Register([]string{"uc", "apps", "*"}, &appHandler{ctx: c})
		t.Register([]string{"uc", "apps", "*", "**"}, newAppExtHandler(c))
	}},
	"images": {install: func(t *resource.Tree, c *Context) {
		t.Register([]string{"images"}, &fileHandler{ctx: c})
		t.Register([]string{"images", "**"}, &fileHandler{ctx: c})
	}},
}

// ValidOption reports whether name is a known optional resource.
func ValidOption(name string) bool {
	_, ok := optionTable[name]
	return ok
}

// Install builds the resource trie: the mandatory uc and uc/security
// resources plus every requested option.
func Install(t *resource.Tree, c *Context, options []string) error {
	t.Register([]string{"uc"}, &baseHandler{ctx: c})
	t.Register([]string{"uc", "security"}, &securityHandler{ctx: c})

	for _, name := range options {
		opt, ok := optionTable[name]
		if !ok {
			return fmt.Errorf("invalid option %q", name)
		}
		opt.install(t, c)
	}
	return nil
}

// ucResources returns the rrefs GET uc advertises for the enabled
// options, preserving option order.
func (c *Context) ucResources() []string {
	var out []string
	for _, name := range c.Options {
		if opt, ok := optionTable[name]; ok && opt.rref != "" {
			out = append(out, opt.rref)
		}
	}
	return out
}
