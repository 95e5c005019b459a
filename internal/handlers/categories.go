// UCServer - Universal Control Protocol Engine for Media Devices
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ucserver

package handlers

import (
	"fmt"
	"strings"

	"github.com/tomtom215/ucserver/internal/resource"
	"github.com/tomtom215/ucserver/internal/xmlenc"
)

// categoriesHandler serves GET uc/categories: the category hierarchy
// rendered recursively from the root.
type categoriesHandler struct {
	ctx *Context
}

func (h *categoriesHandler) Get(req *resource.Request) error {
	c := h.ctx
	if !c.checkAuth(req, nil) {
		return nil
	}

	var renderBranch func(parent string) string
	renderBranch = func(parent string) string {
		var inner strings.Builder
		for _, id := range c.Device.CategoryChildren(parent) {
			cat, ok := c.Device.Category(id)
			if !ok {
				continue
			}

			var attrs strings.Builder
			if cat.LogoHref != "" {
				fmt.Fprintf(&attrs, ` logo-href="%s"`, xmlenc.EscapeAttr(cat.LogoHref))
			}
			if cat.CategoryID != "" {
				fmt.Fprintf(&attrs, ` category-id="%s"`, xmlenc.EscapeAttr(cat.CategoryID))
			}

			content := "/"
			if branch := renderBranch(id); branch != "" {
				content = ">" + branch + "</category"
			}

			fmt.Fprintf(&inner, `<category name="%s"%s%s>`,
				xmlenc.EscapeAttr(cat.Name), attrs.String(), content)
		}
		return inner.String()
	}

	content := "/"
	if tree := renderBranch(""); tree != "" {
		content = ">" + tree + "</categories"
	}

	body := fmt.Sprintf("<response resource=\"%s\"><categories%s></response>\n",
		xmlenc.EscapeAttr("uc/categories"+req.Query), content)
	return req.RespondXML(body)
}
