// UCServer - Universal Control Protocol Engine for Media Devices
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ucserver

package handlers

import (
	"fmt"
	"time"

	"github.com/tomtom215/ucserver/internal/resource"
	"github.com/tomtom215/ucserver/internal/xmlenc"
)

// timeHandler serves uc/time: the receive timestamp captured before
// dispatch paired with the reply timestamp. uc/time is not notifiable.
type timeHandler struct {
	ctx *Context
}

func (h *timeHandler) Get(req *resource.Request) error {
	if !h.ctx.checkAuth(req, nil) {
		return nil
	}

	body := fmt.Sprintf("<response resource=\"%s\"><time rcvdtime=\"%s\" replytime=\"%s\"/></response>\n",
		xmlenc.EscapeAttr("uc/time"+req.Query),
		xmlenc.FormatISO(req.Received),
		xmlenc.FormatISO(time.Now()))
	return req.RespondXML(body)
}
