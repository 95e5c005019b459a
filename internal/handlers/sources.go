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

// renderSource renders the full source element used by uc/source-lists/
// {id} and uc/sources/{sid}.
func renderSource(src *backend.Source) string {
	var attrs strings.Builder

	stringAttr := func(name, value string) {
		if value != "" {
			fmt.Fprintf(&attrs, ` %s="%s"`, name, xmlenc.EscapeAttr(value))
		}
	}
	boolAttr := func(name string, value *bool) {
		if value != nil {
			fmt.Fprintf(&attrs, ` %s="%s"`, name, xmlenc.Bool(*value))
		}
	}

	stringAttr("sref", src.Sref)
	stringAttr("owner", src.Owner)
	stringAttr("default-content-id", src.DefaultContentID)
	stringAttr("logo-href", src.LogoHref)
	stringAttr("owner-logo-href", src.OwnerLogoHref)
	boolAttr("live", src.Live)
	boolAttr("linear", src.Linear)
	boolAttr("follow-on", src.FollowOn)
	if src.LCN != nil {
		fmt.Fprintf(&attrs, ` lcn="%03d"`, *src.LCN)
	}

	content := "/"
	if len(src.Links) != 0 {
		var links strings.Builder
		for _, link := range src.Links {
			fmt.Fprintf(&links, `<link href="%s" description="%s"/>`,
				xmlenc.EscapeAttr(link.Href), xmlenc.EscapeAttr(link.Description))
		}
		content = ">" + links.String() + "</source"
	}

	return fmt.Sprintf(`<source sid="%s" name="%s"%s%s>`,
		xmlenc.EscapeAttr(src.SID), xmlenc.EscapeAttr(src.Name), attrs.String(), content)
}

// sourcesHandler serves GET uc/sources with a 204; individual sources are
// addressed by sid below it.
type sourcesHandler struct {
	ctx *Context
}

func (h *sourcesHandler) Get(req *resource.Request) error {
	if !h.ctx.checkAuth(req, nil) {
		return nil
	}
	return req.RespondNoContent()
}

// sourceHandler serves GET uc/sources/{sid}. The echoed resource is the
// source's own rref.
type sourceHandler struct {
	ctx *Context
}

func (h *sourceHandler) Get(req *resource.Request) error {
	c := h.ctx
	if !c.checkAuth(req, nil) {
		return nil
	}

	sid := req.Path[len(req.Path)-1]
	src, ok := c.Device.Source(sid)
	if !ok {
		return ucerr.NotFound(fmt.Sprintf("no source %q", sid))
	}

	body := fmt.Sprintf("<response resource=\"%s\">%s</response>\n",
		xmlenc.EscapeAttr(src.Rref), renderSource(src))
	return req.RespondXML(body)
}

// sourceListsHandler serves GET uc/source-lists: every list with its
// descriptive attributes, uc_* lists ahead of vendor lists.
type sourceListsHandler struct {
	ctx *Context
}

func (h *sourceListsHandler) Get(req *resource.Request) error {
	c := h.ctx
	if !c.checkAuth(req, nil) {
		return nil
	}

	lists := c.Device.SourceLists()
	content := "/"
	if len(lists) != 0 {
		var inner strings.Builder
		for _, list := range lists {
			fmt.Fprintf(&inner, `<list list-id="%s" name="%s"`,
				xmlenc.EscapeAttr(list.ID), xmlenc.EscapeAttr(list.Name))
			if list.LogoHref != "" {
				fmt.Fprintf(&inner, ` logo-href="%s"`, xmlenc.EscapeAttr(list.LogoHref))
			}
			if list.Description != "" {
				fmt.Fprintf(&inner, ` description="%s"`, xmlenc.EscapeAttr(list.Description))
			}
			inner.WriteString("/>")
		}
		content = ">" + inner.String() + "</source-lists"
	}

	body := fmt.Sprintf("<response resource=\"%s\"><source-lists%s></response>\n",
		xmlenc.EscapeAttr("uc/source-lists"+req.Query), content)
	return req.RespondXML(body)
}

// sourceListHandler serves GET uc/source-lists/{list-id}: the member
// sources in lcn order.
type sourceListHandler struct {
	ctx *Context
}

func (h *sourceListHandler) Get(req *resource.Request) error {
	c := h.ctx
	if !c.checkAuth(req, nil) {
		return nil
	}

	listID := req.Path[len(req.Path)-1]
	list, ok := c.Device.SourceList(listID)
	if !ok {
		return ucerr.NotFound(fmt.Sprintf("no source list %q", listID))
	}

	content := "/"
	if srcs := c.Device.SourcesByLCN(list.Sources); len(srcs) != 0 {
		var inner strings.Builder
		for _, src := range srcs {
			inner.WriteString(renderSource(src))
		}
		content = ">" + inner.String() + "</sources"
	}

	body := fmt.Sprintf("<response resource=\"%s\"><sources%s></response>\n",
		xmlenc.EscapeAttr(fmt.Sprintf("uc/source-lists/%s", listID))+req.EscapedQuery(), content)
	return req.RespondXML(body)
}
