// UCServer - Universal Control Protocol Engine for Media Devices
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ucserver

package handlers

import (
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/tomtom215/ucserver/internal/resource"
	"github.com/tomtom215/ucserver/internal/ucerr"
)

// fileHandler serves the images subtree outside the uc tree: GET requests
// are answered from the device's path-to-file table, so logo-href URIs
// elsewhere in the protocol can point back at the server.
type fileHandler struct {
	ctx *Context
}

func (h *fileHandler) Get(req *resource.Request) error {
	c := h.ctx
	if !c.checkAuth(req, nil) {
		return nil
	}

	entry, ok := c.Device.File(strings.Join(req.Path, "/"))
	if !ok {
		return ucerr.NotFound("no such image")
	}

	data, err := os.ReadFile(entry.Filename)
	if err != nil {
		return ucerr.NotFound("no such image")
	}

	req.W.Header().Set("Content-Type", entry.MimeType)
	req.W.Header().Set("Content-Length", strconv.Itoa(len(data)))
	req.W.WriteHeader(http.StatusOK)
	if !req.Head {
		_, _ = req.W.Write(data)
	}
	return nil
}
