// UCServer - Universal Control Protocol Engine for Media Devices
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ucserver

package handlers

import (
	"fmt"
	"strings"

	"github.com/tomtom215/ucserver/internal/backend"
	"github.com/tomtom215/ucserver/internal/resource"
	"github.com/tomtom215/ucserver/internal/ucerr"
	"github.com/tomtom215/ucserver/internal/xmlenc"
)

func renderContentAcquisition(a *backend.ContentAcquisition) string {
	var attrs strings.Builder

	if a.GlobalContentID != "" {
		fmt.Fprintf(&attrs, ` global-content-id="%s"`, xmlenc.EscapeAttr(a.GlobalContentID))
	}
	if a.SeriesID != "" {
		fmt.Fprintf(&attrs, ` series-id="%s"`, xmlenc.EscapeAttr(a.SeriesID))
	}
	if a.Start != nil {
		fmt.Fprintf(&attrs, ` start="%s"`, xmlenc.FormatISO(*a.Start))
	}
	if a.End != nil {
		fmt.Fprintf(&attrs, ` end="%s"`, xmlenc.FormatISO(*a.End))
	}
	boolAttr := func(name string, v *bool) {
		if v != nil {
			fmt.Fprintf(&attrs, ` %s="%s"`, name, xmlenc.Bool(*v))
		}
	}
	boolAttr("series-linked", a.SeriesLinked)
	boolAttr("priority", a.Priority)
	boolAttr("speculative", a.Speculative)
	boolAttr("active", a.Active)

	return fmt.Sprintf(`<content-acquisition acquisition-id="%s" sid="%s" cid="%s" interactive="%s"%s/>`,
		xmlenc.EscapeAttr(a.AID), xmlenc.EscapeAttr(a.SID), xmlenc.EscapeAttr(a.CID),
		xmlenc.Bool(a.Interactive), attrs.String())
}

func renderSeriesAcquisition(a *backend.SeriesAcquisition) string {
	attrs := ""
	if a.Speculative != nil {
		attrs = fmt.Sprintf(` speculative="%s"`, xmlenc.Bool(*a.Speculative))
	}
	return fmt.Sprintf(`<series-acquisition acquisition-id="%s" series-id="%s"%s/>`,
		xmlenc.EscapeAttr(a.AID), xmlenc.EscapeAttr(a.SeriesID), attrs)
}

// acquisitionsHandler serves uc/acquisitions: the booking tables on GET
// and new bookings on POST.
type acquisitionsHandler struct {
	ctx *Context
}

func (h *acquisitionsHandler) Get(req *resource.Request) error {
	c := h.ctx
	if !c.checkAuth(req, nil) {
		return nil
	}

	contents := c.Device.ContentAcquisitions()
	series := c.Device.SeriesAcquisitions()

	content := "/"
	if len(contents) != 0 || len(series) != 0 {
		var inner strings.Builder
		for _, a := range contents {
			inner.WriteString(renderContentAcquisition(a))
		}
		for _, a := range series {
			inner.WriteString(renderSeriesAcquisition(a))
		}
		content = ">" + inner.String() + "</acquisitions"
	}

	body := fmt.Sprintf("<response resource=\"%s\"><acquisitions%s></response>\n",
		xmlenc.EscapeAttr("uc/acquisitions"+req.Query), content)
	return req.RespondXML(body)
}

// Post books an acquisition. Exactly one of the parameter groups
// (sid, content-id), (global-content-id) or (series-id) must be present,
// with an optional priority flag. The response mirrors the created
// record at its uc/acquisitions/{aid} URI.
func (h *acquisitionsHandler) Post(req *resource.Request) error {
	c := h.ctx
	if !c.checkAuth(req, nil) {
		return nil
	}

	priority := false
	if req.Params.Has("priority") {
		if len(req.Params["priority"]) != 1 {
			return ucerr.Invalid("priority given more than once")
		}
		p, err := xmlenc.ParseBool(req.Params.Get("priority"))
		if err != nil {
			return ucerr.Invalid("priority is not a boolean")
		}
		priority = p
	}

	hasSID := req.Params.Has("sid")
	hasCID := req.Params.Has("content-id")
	hasGCID := req.Params.Has("global-content-id")
	hasSeries := req.Params.Has("series-id")

	var acquire backend.AcquireRequest
	switch {
	case hasSID && hasCID && !hasGCID && !hasSeries &&
		len(req.Params["sid"]) == 1 && len(req.Params["content-id"]) == 1:
		acquire = backend.AcquireRequest{
			SID:      req.Params.Get("sid"),
			CID:      req.Params.Get("content-id"),
			Priority: priority,
		}

	case !hasSID && !hasCID && hasGCID && !hasSeries && len(req.Params["global-content-id"]) == 1:
		gcid, err := xmlenc.PercentDecode(req.Params.Get("global-content-id"))
		if err != nil {
			return ucerr.Invalid("global-content-id is not decodable")
		}
		acquire = backend.AcquireRequest{GlobalContentID: gcid, Priority: priority}

	case !hasSID && !hasCID && !hasGCID && hasSeries && len(req.Params["series-id"]) == 1:
		acquire = backend.AcquireRequest{SeriesID: req.Params.Get("series-id"), Priority: priority}

	default:
		return ucerr.Invalid("exactly one acquisition parameter group is required")
	}

	if c.Device.Acquirer == nil {
		return ucerr.Failed("no acquirer")
	}
	aid, err := c.Device.Acquirer.Acquire(acquire)
	if err != nil {
		return ucerr.Failed(err.Error())
	}
	if aid == "" {
		return ucerr.Failed("acquisition refused")
	}

	var content string
	if a, ok := c.Device.ContentAcquisition(aid); ok {
		content = renderContentAcquisition(a)
	} else if a, ok := c.Device.SeriesAcquisition(aid); ok {
		content = renderSeriesAcquisition(a)
	} else {
		return ucerr.Failed("acquirer did not record the booking")
	}

	body := fmt.Sprintf("<response resource=\"%s\">%s</response>\n",
		xmlenc.EscapeAttr(fmt.Sprintf("uc/acquisitions/%s", aid)), content)
	return req.RespondXML(body)
}

// acquisitionHandler serves uc/acquisitions/{aid}.
type acquisitionHandler struct {
	ctx *Context
}

func (h *acquisitionHandler) Get(req *resource.Request) error {
	c := h.ctx
	if !c.checkAuth(req, nil) {
		return nil
	}

	aid := req.Path[len(req.Path)-1]

	var content string
	if a, ok := c.Device.ContentAcquisition(aid); ok {
		content = renderContentAcquisition(a)
	} else if a, ok := c.Device.SeriesAcquisition(aid); ok {
		content = renderSeriesAcquisition(a)
	} else {
		return ucerr.NotFound(fmt.Sprintf("no acquisition %q", aid))
	}

	body := fmt.Sprintf("<response resource=\"%s\">%s</response>\n",
		xmlenc.EscapeAttr(fmt.Sprintf("uc/acquisitions/%s", aid))+req.EscapedQuery(), content)
	return req.RespondXML(body)
}

// Delete cancels a booking through the acquirer. Success is judged by
// the record being gone afterwards.
func (h *acquisitionHandler) Delete(req *resource.Request) error {
	c := h.ctx
	if !c.checkAuth(req, nil) {
		return nil
	}

	aid := req.Path[len(req.Path)-1]

	if c.Device.Acquirer != nil {
		if err := c.Device.Acquirer.Cancel(aid); err != nil {
			return ucerr.Failed(err.Error())
		}
	}

	_, inContent := c.Device.ContentAcquisition(aid)
	_, inSeries := c.Device.SeriesAcquisition(aid)
	if inContent || inSeries {
		return ucerr.Failed("acquisition was not cancelled")
	}
	return req.RespondNoContent()
}
