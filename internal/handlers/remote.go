// UCServer - Universal Control Protocol Engine for Media Devices
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ucserver

package handlers

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/tomtom215/ucserver/internal/resource"
	"github.com/tomtom215/ucserver/internal/ucerr"
	"github.com/tomtom215/ucserver/internal/xmlenc"
)

var (
	// controlProfileRe matches a control profile reference: an optional
	// dotted namespace, a colon, and an id-component.
	controlProfileRe = regexp.MustCompile(`^(\w+(\-+\w+)*(\.\w+(\-+\w+)*)*)?:([a-zA-Z0-9_\-\.~]|%[0-9a-fA-F]{2})+$`)

	// buttonRe matches a button reference: a profile reference or the
	// bare default-profile colon, another colon, and the button code.
	buttonRe = regexp.MustCompile(`^(((\w+(\-+\w+)*(\.\w+(\-+\w+)*)*)?:([a-zA-Z0-9_\-\.~]|%[0-9a-fA-F]{2})+)|:):([a-zA-Z0-9_\-\.~]|%[0-9a-fA-F]{2})+$`)
)

// remoteHandler serves uc/remote: the supported control profiles on GET
// and simulated button presses on POST.
type remoteHandler struct {
	ctx *Context
}

func (h *remoteHandler) Get(req *resource.Request) error {
	c := h.ctx
	if !c.checkAuth(req, nil) {
		return nil
	}

	var controls strings.Builder
	for _, profile := range c.Device.Controls() {
		if controlProfileRe.MatchString(profile) {
			fmt.Fprintf(&controls, `<controls profile="%s"/>`, profile)
		}
	}

	content := "/"
	if controls.Len() != 0 {
		content = ">" + controls.String() + "</remote"
	}

	body := fmt.Sprintf("<response resource=\"%s\"><remote%s></response>\n",
		xmlenc.EscapeAttr("uc/remote"+req.Query), content)
	return req.RespondXML(body)
}

func (h *remoteHandler) Post(req *resource.Request) error {
	c := h.ctx

	body, err := req.Body()
	if err != nil {
		return err
	}
	if !c.checkAuth(req, body) {
		return nil
	}

	buttons := req.Params["button"]
	if len(buttons) != 1 {
		return ucerr.Invalid("button missing")
	}
	button := buttons[0]
	if !buttonRe.MatchString(button) {
		return ucerr.Invalid("malformed button reference")
	}

	output := ""
	if req.Params.Has("output") {
		if len(req.Params["output"]) != 1 {
			return ucerr.Invalid("output given more than once")
		}
		output = req.Params.Get("output")
	}

	if c.Device.Buttons == nil {
		return ucerr.Failed("no button handler")
	}
	if err := c.Device.Buttons.Press(button, output); err != nil {
		return ucerr.Failed(err.Error())
	}

	return req.RespondNoContent()
}

// feedbackHandler serves uc/feedback: free-text user feedback supplied by
// the device backend.
type feedbackHandler struct {
	ctx *Context
}

func (h *feedbackHandler) Get(req *resource.Request) error {
	c := h.ctx
	if !c.checkAuth(req, nil) {
		return nil
	}

	content := "/"
	if feedback := c.Device.Feedback(); feedback != "" {
		content = ">" + xmlenc.EscapeText(feedback) + "</feedback"
	}

	body := fmt.Sprintf("<response resource=\"%s\"><feedback%s></response>\n",
		xmlenc.EscapeAttr("uc/feedback"+req.Query), content)
	return req.RespondXML(body)
}
