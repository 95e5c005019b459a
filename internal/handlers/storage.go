// UCServer - Universal Control Protocol Engine for Media Devices
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ucserver

package handlers

import (
	"errors"
	"fmt"
	"strings"

	"github.com/tomtom215/ucserver/internal/auth"
	"github.com/tomtom215/ucserver/internal/backend"
	"github.com/tomtom215/ucserver/internal/resource"
	"github.com/tomtom215/ucserver/internal/ucerr"
	"github.com/tomtom215/ucserver/internal/xmlenc"
)

func renderStoredItem(item *backend.StoredItem) string {
	var attrs strings.Builder

	if item.SID != "" {
		fmt.Fprintf(&attrs, ` sid="%s"`, xmlenc.EscapeAttr(item.SID))
	}
	if item.GlobalContentID != "" {
		fmt.Fprintf(&attrs, ` global-content-id="%s"`, xmlenc.EscapeAttr(item.GlobalContentID))
	}
	if item.CreatedTime != "" {
		fmt.Fprintf(&attrs, ` created-time="%s"`, xmlenc.EscapeAttr(item.CreatedTime))
	}
	if item.Size != nil {
		fmt.Fprintf(&attrs, ` size="%d"`, *item.Size)
	}

	return fmt.Sprintf(`<stored-content cid="%s"%s/>`, xmlenc.EscapeAttr(item.CID), attrs.String())
}

// storageHandler serves GET uc/storage: the stored items sorted by
// (sid, cid) with the byte counters.
type storageHandler struct {
	ctx *Context
}

func (h *storageHandler) Get(req *resource.Request) error {
	c := h.ctx
	if !c.checkAuth(req, nil) {
		return nil
	}

	var attrs strings.Builder
	size, free := c.Device.StorageCounters()
	if size != nil && *size >= 0 {
		fmt.Fprintf(&attrs, ` size="%09d"`, *size)
	}
	if free != nil && *free >= 0 {
		fmt.Fprintf(&attrs, ` free="%09d"`, *free)
	}

	content := "/"
	if items := c.Device.StoredItems(); len(items) != 0 {
		var inner strings.Builder
		for _, item := range items {
			inner.WriteString(renderStoredItem(item))
		}
		content = ">" + inner.String() + "</storage"
	}

	body := fmt.Sprintf("<response resource=\"%s\"><storage%s%s></response>\n",
		xmlenc.EscapeAttr("uc/storage"+req.Query), attrs.String(), content)
	return req.RespondXML(body)
}

// storedItemHandler serves uc/storage/{cid}.
type storedItemHandler struct {
	ctx *Context
}

func (h *storedItemHandler) Get(req *resource.Request) error {
	c := h.ctx
	if !c.checkAuth(req, nil) {
		return nil
	}

	cid := req.Path[len(req.Path)-1]
	item, ok := c.Device.StoredItem(cid)
	if !ok {
		return ucerr.NotFound(fmt.Sprintf("no stored item %q", cid))
	}

	body := fmt.Sprintf("<response resource=\"%s\">%s</response>\n",
		xmlenc.EscapeAttr(fmt.Sprintf("uc/storage/%s", cid))+req.EscapedQuery(), renderStoredItem(item))
	return req.RespondXML(body)
}

// Delete removes a stored item through the backend deleter.
func (h *storedItemHandler) Delete(req *resource.Request) error {
	c := h.ctx
	if !c.checkAuth(req, nil) {
		return nil
	}

	cid := req.Path[len(req.Path)-1]
	if _, ok := c.Device.StoredItem(cid); !ok {
		return ucerr.NotFound(fmt.Sprintf("no stored item %q", cid))
	}

	if c.ConfirmStorageDelete {
		if c.Restrict.CheckConfirmation(req.W, req.R, "Delete recorded item?") != auth.Passed {
			return nil
		}
	}

	if err := c.Device.DeleteStored(cid); err != nil {
		var uce *ucerr.Error
		if errors.As(err, &uce) {
			return uce
		}
		return ucerr.Failed(err.Error())
	}

	if _, ok := c.Device.StoredItem(cid); ok {
		return ucerr.Failed("item was not deleted")
	}
	return req.RespondNoContent()
}
