// UCServer - Universal Control Protocol Engine for Media Devices
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ucserver

package handlers

import (
	"fmt"

	"github.com/tomtom215/ucserver/internal/resource"
	"github.com/tomtom215/ucserver/internal/ucerr"
	"github.com/tomtom215/ucserver/internal/xmlenc"
)

// powerHandler serves uc/power. PUT transitions run through the backend's
// standby callback; a refused transition reports as a 500, a no-op
// transition succeeds silently, and a real transition notifies uc/power.
type powerHandler struct {
	ctx *Context
}

func (h *powerHandler) render(req *resource.Request, state string) error {
	body := fmt.Sprintf("<response resource=\"%s\"><power state=\"%s\"/></response>\n",
		xmlenc.EscapeAttr("uc/power"+req.Query), state)
	return req.RespondXML(body)
}

func (h *powerHandler) Get(req *resource.Request) error {
	if !h.ctx.checkAuth(req, nil) {
		return nil
	}
	return h.render(req, "on")
}

func (h *powerHandler) StandbyGet(req *resource.Request) error {
	if !h.ctx.checkAuth(req, nil) {
		return nil
	}
	return h.render(req, "standby")
}

func (h *powerHandler) Put(req *resource.Request) error {
	c := h.ctx

	body, err := req.Body()
	if err != nil {
		return err
	}
	if !c.checkAuth(req, body) {
		return nil
	}

	dom, err := parseBody(body)
	if err != nil {
		return err
	}
	elems := dom.find("power")
	if len(elems) != 1 {
		return ucerr.Invalid("expected a single power element")
	}
	state, _ := elems[0].attr("state")

	switch state {
	case "on":
		if !c.Standby() {
			return req.RespondNoContent()
		}
		if !c.SetStandby(false) {
			return ucerr.Failed("could not leave standby")
		}
	case "standby":
		if c.Standby() {
			return req.RespondNoContent()
		}
		if !c.SetStandby(true) {
			return ucerr.Failed("could not enter standby")
		}
	case "off":
		return ucerr.Failed("off is not supported")
	default:
		return ucerr.Failed(fmt.Sprintf("unknown power state %q", state))
	}

	c.notifyChange("uc/power")
	return req.RespondNoContent()
}

func (h *powerHandler) StandbyPut(req *resource.Request) error {
	return h.Put(req)
}
