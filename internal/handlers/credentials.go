// UCServer - Universal Control Protocol Engine for Media Devices
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ucserver

package handlers

import (
	"fmt"
	"strings"

	"github.com/tomtom215/ucserver/internal/logging"
	"github.com/tomtom215/ucserver/internal/resource"
	"github.com/tomtom215/ucserver/internal/ucerr"
	"github.com/tomtom215/ucserver/internal/xmlenc"
)

// credentialsHandler serves GET uc/credentials: the confirmed clients.
type credentialsHandler struct {
	ctx *Context
}

func (h *credentialsHandler) Get(req *resource.Request) error {
	c := h.ctx
	if !c.checkAuth(req, nil) {
		return nil
	}

	clients := c.Auth.Clients()
	content := "/"
	if len(clients) != 0 {
		var inner strings.Builder
		for _, client := range clients {
			fmt.Fprintf(&inner, `<client CID="%s" name="%s"/>`,
				xmlenc.EscapeAttr(client.ClientID), xmlenc.EscapeAttr(client.Name))
		}
		content = ">" + inner.String() + "</credentials"
	}

	body := fmt.Sprintf("<response resource=\"%s\"><credentials%s></response>\n",
		xmlenc.EscapeAttr("uc/credentials"+req.Query), content)
	return req.RespondXML(body)
}

// credentialHandler serves DELETE uc/credentials/{cid}: revoking one
// paired client.
type credentialHandler struct {
	ctx *Context
}

func (h *credentialHandler) Delete(req *resource.Request) error {
	c := h.ctx
	if !c.checkAuth(req, nil) {
		return nil
	}

	clientID := req.Path[len(req.Path)-1]
	if !c.Auth.HasClient(clientID) {
		return ucerr.NotFound(fmt.Sprintf("no client %q", clientID))
	}

	c.Auth.RemoveClientID(clientID)
	c.notifyChange("uc/credentials")
	logging.Info().Str("client_id", clientID).Msg("Client credentials revoked")

	return req.RespondNoContent()
}
