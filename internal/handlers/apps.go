// UCServer - Universal Control Protocol Engine for Media Devices
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ucserver

package handlers

import (
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/sony/gobreaker/v2"

	"github.com/tomtom215/ucserver/internal/backend"
	"github.com/tomtom215/ucserver/internal/logging"
	"github.com/tomtom215/ucserver/internal/resource"
	"github.com/tomtom215/ucserver/internal/ucerr"
	"github.com/tomtom215/ucserver/internal/xmlenc"
)

func renderApp(app *backend.App) string {
	return fmt.Sprintf(`<app sid="%s" id="%s" global-app-id="%s" remote-enabled="%s"/>`,
		xmlenc.EscapeAttr(app.SID), xmlenc.EscapeAttr(app.CID),
		xmlenc.EscapeAttr(app.AID), xmlenc.Bool(app.Extension != nil))
}

// appsHandler serves uc/apps: the activated apps on GET, activation on
// POST.
type appsHandler struct {
	ctx *Context
}

func (h *appsHandler) Get(req *resource.Request) error {
	c := h.ctx
	if !c.checkAuth(req, nil) {
		return nil
	}

	content := "/"
	if apps := c.Device.AppsSorted(); len(apps) != 0 {
		var inner strings.Builder
		for _, app := range apps {
			inner.WriteString(renderApp(app))
		}
		content = ">" + inner.String() + "</apps"
	}

	body := fmt.Sprintf("<response resource=\"%s\"><apps%s></response>\n",
		xmlenc.EscapeAttr("uc/apps"+req.Query), content)
	return req.RespondXML(body)
}

func (h *appsHandler) Post(req *resource.Request) error {
	c := h.ctx

	body, err := req.Body()
	if err != nil {
		return err
	}
	if !c.checkAuth(req, body) {
		return nil
	}

	if c.Device.Installer == nil {
		return ucerr.NotImplemented("no application installer")
	}

	if len(req.Params["sid"]) != 1 {
		return ucerr.Invalid("sid is required")
	}
	sid := req.Params.Get("sid")

	cid := ""
	if req.Params.Has("cid") {
		if len(req.Params["cid"]) != 1 {
			return ucerr.Invalid("cid given more than once")
		}
		cid = req.Params.Get("cid")
	}

	aid, err := c.Device.Installer.Activate(sid, cid)
	if err != nil {
		return ucerr.Failed(err.Error())
	}

	app, ok := c.Device.App(aid)
	if !ok {
		return ucerr.Failed("installer did not record the app")
	}

	respBody := fmt.Sprintf("<response resource=\"%s\">%s</response>\n",
		xmlenc.EscapeAttr(fmt.Sprintf("uc/apps/%s", aid))+req.EscapedQuery(), renderApp(app))
	return req.RespondXML(respBody)
}

// appHandler serves uc/apps/{aid}.
type appHandler struct {
	ctx *Context
}

func (h *appHandler) Get(req *resource.Request) error {
	c := h.ctx
	if !c.checkAuth(req, nil) {
		return nil
	}

	aid := req.Path[2]
	app, ok := c.Device.App(aid)
	if !ok {
		return ucerr.NotFound("invalid app-id")
	}

	body := fmt.Sprintf("<response resource=\"%s\">%s</response>\n",
		xmlenc.EscapeAttr(fmt.Sprintf("uc/apps/%s", aid))+req.EscapedQuery(), renderApp(app))
	return req.RespondXML(body)
}

func (h *appHandler) Delete(req *resource.Request) error {
	c := h.ctx
	if !c.checkAuth(req, nil) {
		return nil
	}

	if c.Device.Installer == nil {
		return ucerr.NotImplemented("no application installer")
	}

	aid := req.Path[2]
	if _, ok := c.Device.App(aid); !ok {
		return ucerr.NotFound("invalid app-id")
	}

	if err := c.Device.Installer.Deactivate(aid); err != nil {
		return ucerr.Failed(err.Error())
	}
	return req.RespondNoContent()
}

// appExtHandler reverse-proxies the uc/apps/{aid}/ext/** subtree into
// the app's extension. Calls run through a per-app circuit breaker with
// default settings, which stops calling an app after repeated errors; a
// call that hangs is not cut short.
type appExtHandler struct {
	ctx *Context

	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker[backend.ExtensionResponse]
}

func newAppExtHandler(c *Context) *appExtHandler {
	return &appExtHandler{
		ctx:      c,
		breakers: make(map[string]*gobreaker.CircuitBreaker[backend.ExtensionResponse]),
	}
}

func (h *appExtHandler) breaker(aid string) *gobreaker.CircuitBreaker[backend.ExtensionResponse] {
	h.mu.Lock()
	defer h.mu.Unlock()

	cb, ok := h.breakers[aid]
	if !ok {
		cb = gobreaker.NewCircuitBreaker[backend.ExtensionResponse](gobreaker.Settings{
			Name: "app-ext:" + aid,
		})
		h.breakers[aid] = cb
	}
	return cb
}

// Do handles every verb on the ext subtree.
func (h *appExtHandler) Do(method string, req *resource.Request) error {
	c := h.ctx

	aid := req.Path[2]
	app, ok := c.Device.App(aid)
	if !ok {
		return ucerr.NotFound("invalid app-id")
	}
	if app.Extension == nil {
		return ucerr.NotImplemented("app has no extension")
	}

	body, err := req.Body()
	if err != nil {
		return err
	}

	// Credentials are evaluated here and forwarded as a boolean; the
	// headers that carried them never reach the extension.
	authOK := c.authValid(req, body)

	headers := make(map[string]string, len(req.R.Header))
	for name, values := range req.R.Header {
		if len(values) != 0 {
			headers[name] = values[0]
		}
	}
	delete(headers, "Authorization")
	delete(headers, "X-Ucclientauthorisation")
	delete(headers, "X-UCClientAuthorisation")

	var extPath []string
	if len(req.Path) > 4 {
		extPath = req.Path[4:]
	}

	resp, err := h.breaker(aid).Execute(func() (backend.ExtensionResponse, error) {
		return app.Extension.Request(extPath, method, headers, req.Params, authOK, body)
	})
	if err != nil {
		logging.Error().Err(err).Str("aid", aid).Msg("App extension request failed")
		return ucerr.Failed("app extension request failed")
	}

	if resp.Status == 401 || resp.Status == 402 {
		return ucerr.Failed("application returned an authentication status")
	}
	for name := range resp.Headers {
		if strings.EqualFold(name, "WWW-Authenticate") || strings.EqualFold(name, "X-UCClientAuthenticate") {
			return ucerr.Failed("application returned an authentication challenge")
		}
	}

	for name, value := range resp.Headers {
		req.W.Header().Set(name, value)
	}
	if _, ok := resp.Headers["Content-Length"]; !ok {
		req.W.Header().Set("Content-Length", strconv.Itoa(len(resp.Body)))
	}
	req.W.WriteHeader(resp.Status)
	if !req.Head {
		_, _ = req.W.Write(resp.Body)
	}
	return nil
}
