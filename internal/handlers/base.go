// UCServer - Universal Control Protocol Engine for Media Devices
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ucserver

package handlers

import (
	"crypto/rand"
	"fmt"
	"regexp"
	"strings"

	"github.com/tomtom215/ucserver/internal/logging"
	"github.com/tomtom215/ucserver/internal/metrics"
	"github.com/tomtom215/ucserver/internal/resource"
	"github.com/tomtom215/ucserver/internal/ucerr"
	"github.com/tomtom215/ucserver/internal/xmlenc"
)

var clientIDRe = regexp.MustCompile(`^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}$`)

// baseHandler serves GET uc: the server description with one resource
// element per enabled option inside the uc tree. It never requires
// authentication and answers identically in standby.
type baseHandler struct {
	ctx *Context
}

func (h *baseHandler) Get(req *resource.Request) error {
	c := h.ctx

	var attrs strings.Builder
	fmt.Fprintf(&attrs, ` name="%s" security-scheme="%s" server-id="%s" version="%s"`,
		xmlenc.EscapeAttr(c.Name), xmlenc.Bool(c.AuthRequired),
		xmlenc.EscapeAttr(c.ServerID), xmlenc.EscapeAttr(c.Version))
	if c.LogoHref != "" {
		fmt.Fprintf(&attrs, ` logo-href="%s"`, xmlenc.EscapeAttr(c.LogoHref))
	}

	content := "/"
	if rrefs := c.ucResources(); len(rrefs) != 0 {
		var inner strings.Builder
		for _, rref := range rrefs {
			fmt.Fprintf(&inner, `<resource rref="%s"/>`, xmlenc.EscapeAttr(rref))
		}
		content = ">" + inner.String() + "</ucserver"
	}

	body := fmt.Sprintf("<response resource=\"%s\"><ucserver%s%s></response>\n",
		xmlenc.EscapeAttr("uc"+req.Query), attrs.String(), content)
	return req.RespondXML(body)
}

func (h *baseHandler) StandbyGet(req *resource.Request) error {
	return h.Get(req)
}

// securityHandler serves uc/security: a 204 probe for authenticated
// clients, and the pairing key exchange on POST.
type securityHandler struct {
	ctx *Context
}

func (h *securityHandler) Get(req *resource.Request) error {
	if !h.ctx.checkAuth(req, nil) {
		return nil
	}
	return req.RespondNoContent()
}

// Post runs the pairing handshake: it generates a 64-byte LSGS, stores it
// as the pending credential for the supplied client-id, and returns the
// key XOR-ed with the out-of-band SSS byte.
func (h *securityHandler) Post(req *resource.Request) error {
	c := h.ctx

	sss, ok := c.SSS()
	if !ok {
		return ucerr.NotFound("no pairing secret is active")
	}

	if c.PairLimit != nil && !c.PairLimit.Allow() {
		return ucerr.Failed("pairing attempts exceeded")
	}

	clientID := req.Params.Get("client-id")
	clientName := req.Params.Get("client-name")
	if clientID == "" || clientName == "" {
		return ucerr.Invalid("client-id and client-name are required")
	}
	if !clientIDRe.MatchString(clientID) {
		return ucerr.Invalid("client-id is not a valid UUID")
	}
	name, err := xmlenc.PercentDecode(clientName)
	if err != nil {
		return ucerr.Invalid("client-name is not decodable")
	}

	lsgs := make([]byte, 64)
	if _, err := rand.Read(lsgs); err != nil {
		return ucerr.Failed("could not generate key")
	}

	c.Auth.AddClientID(clientID, string(lsgs), name, false)
	metrics.PairingsTotal.Inc()
	logging.Info().Str("client_id", clientID).Str("client_name", name).Msg("Pairing key issued")

	var key strings.Builder
	for _, b := range lsgs {
		fmt.Fprintf(&key, "%02x", b^sss)
	}

	body := fmt.Sprintf("<response resource=\"%s\"><security key=\"%s\"/></response>",
		xmlenc.EscapeAttr("uc/security"+req.Query), key.String())
	return req.RespondXML(body)
}
