// UCServer - Universal Control Protocol Engine for Media Devices
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ucserver

package handlers

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/tomtom215/ucserver/internal/metrics"
	"github.com/tomtom215/ucserver/internal/notify"
	"github.com/tomtom215/ucserver/internal/resource"
	"github.com/tomtom215/ucserver/internal/ucerr"
	"github.com/tomtom215/ucserver/internal/xmlenc"
)

// eventsHandler serves the GET uc/events long-poll. It works identically
// in standby, but the change set is filtered there to uc and uc/power.
type eventsHandler struct {
	ctx *Context
}

func (h *eventsHandler) Get(req *resource.Request) error {
	c := h.ctx

	if !c.checkAuth(req, nil) {
		return nil
	}

	since, hasSince, err := parseSince(req, c.Notify.Current())
	if err != nil {
		return err
	}

	if !hasSince {
		return h.respond(req, c.Notify.Current(), nil)
	}

	metrics.LongPollWaiters.Inc()
	id, changed := c.Notify.Wait(since, c.Standby)
	metrics.LongPollWaiters.Dec()

	return h.respond(req, id, changed)
}

func (h *eventsHandler) StandbyGet(req *resource.Request) error {
	return h.Get(req)
}

// parseSince extracts and validates the since parameter. A missing
// parameter is not an error; it yields an immediate empty response. A
// malformed value, or one ahead of the current counter under wrap-aware
// ordering, is a 400.
func parseSince(req *resource.Request, current uint64) (uint64, bool, error) {
	raw := req.Params.Get("since")
	if raw == "" {
		return 0, false, nil
	}
	since, err := strconv.ParseUint(raw, 16, 64)
	if err != nil {
		return 0, false, ucerr.Invalid("since is not a 64-bit hex value")
	}
	if notify.GreaterThan(since, current) {
		return 0, false, ucerr.Invalid("since is ahead of the notification counter")
	}
	return since, true, nil
}

func (h *eventsHandler) respond(req *resource.Request, id uint64, changed []string) error {
	content := "/"
	if len(changed) != 0 {
		var inner strings.Builder
		for _, rref := range changed {
			fmt.Fprintf(&inner, `<resource rref="%s"/>`, xmlenc.EscapeAttr(rref))
		}
		content = ">" + inner.String() + "</events"
	}

	body := fmt.Sprintf("<response resource=\"%s\"><events notification-id=\"%016x\"%s></response>\n",
		xmlenc.EscapeAttr("uc/events"+req.Query), id, content)
	return req.RespondXML(body)
}
