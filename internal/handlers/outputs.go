// UCServer - Universal Control Protocol Engine for Media Devices
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ucserver

package handlers

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/tomtom215/ucserver/internal/backend"
	"github.com/tomtom215/ucserver/internal/resource"
	"github.com/tomtom215/ucserver/internal/ucerr"
	"github.com/tomtom215/ucserver/internal/xmlenc"
)

// outputsHandler serves GET uc/outputs: the outputs nested parent/child.
type outputsHandler struct {
	ctx *Context
}

func (h *outputsHandler) Get(req *resource.Request) error {
	c := h.ctx
	if !c.checkAuth(req, nil) {
		return nil
	}

	var renderOutput func(oid string) string
	renderOutput = func(oid string) string {
		out, ok := c.Device.Output(oid)
		if !ok {
			return ""
		}
		s := fmt.Sprintf(`<output name="%s" oid="%s"`, xmlenc.EscapeAttr(out.Name), xmlenc.EscapeAttr(oid))
		if out.Main {
			s += ` main="true"`
		}
		children := c.Device.OutputChildren(oid)
		if len(children) == 0 {
			return s + "/>"
		}
		s += ">"
		for _, child := range children {
			s += renderOutput(child)
		}
		return s + "</output>"
	}

	content := "/"
	if top := c.Device.TopLevelOutputs(); len(top) != 0 {
		var inner strings.Builder
		for _, oid := range top {
			inner.WriteString(renderOutput(oid))
		}
		content = ">" + inner.String() + "</outputs"
	}

	body := fmt.Sprintf("<response resource=\"%s\"><outputs%s></response>\n",
		xmlenc.EscapeAttr("uc/outputs"+req.Query), content)
	return req.RespondXML(body)
}

// resolveOutputID maps a path segment to an output id, handling the
// "main" alias and validating the id-component grammar.
func resolveOutputID(c *Context, seg string) (string, error) {
	if seg == "main" {
		return c.Device.MainOutputID(), nil
	}
	if !xmlenc.IsIDComponent(seg) {
		return "", ucerr.Invalid(fmt.Sprintf("the given id (%s) is not a valid id-component", seg))
	}
	return seg, nil
}

// renderSettingsAttrs renders the settings attribute string shared by the
// output and settings representations.
func renderSettingsAttrs(s backend.Settings) string {
	var attrs strings.Builder
	if s.Volume != nil && *s.Volume >= 0 && *s.Volume <= 10000 {
		fmt.Fprintf(&attrs, ` volume="%s"`, xmlenc.FormatVolume(*s.Volume))
	}
	if s.Mute != nil {
		fmt.Fprintf(&attrs, ` mute="%s"`, xmlenc.Bool(*s.Mute))
	}
	if backend.IsValidAspect(s.Aspect) {
		fmt.Fprintf(&attrs, ` aspect="%s"`, xmlenc.EscapeAttr(s.Aspect))
	}
	return attrs.String()
}

// outputHandler serves uc/outputs/{oid}: the selection state on GET and
// content selection on POST.
type outputHandler struct {
	ctx *Context
}

func (h *outputHandler) Get(req *resource.Request) error {
	c := h.ctx
	if !c.checkAuth(req, nil) {
		return nil
	}

	oid, err := resolveOutputID(c, req.Path[len(req.Path)-1])
	if err != nil {
		return err
	}
	out, ok := c.Device.Output(oid)
	if !ok {
		return ucerr.NotFound(fmt.Sprintf("no output %q", oid))
	}

	var name, settings, programme, app, playback string
	c.Device.View(func() {
		name = out.Name
		settings = renderSettingsAttrs(out.Settings)

		if out.Programme != nil {
			programme = fmt.Sprintf(`<programme sid="%s" cid="%s"`,
				xmlenc.EscapeAttr(out.Programme.SID), xmlenc.EscapeAttr(out.Programme.CID))
			if len(out.Programme.Components) != 0 {
				programme += ">"
				for _, comp := range out.Programme.Components {
					programme += fmt.Sprintf(`<component-override type="%s" mcid="%s"/>`,
						xmlenc.EscapeAttr(comp.Type), xmlenc.EscapeAttr(comp.MCID))
				}
				programme += "</programme>"
			} else {
				programme += "/>"
			}
		}

		if out.App != nil {
			app = fmt.Sprintf(`<app sid="%s" cid="%s"`,
				xmlenc.EscapeAttr(out.App.SID), xmlenc.EscapeAttr(out.App.CID))
			if len(out.App.Controls) != 0 {
				app += ">"
				for _, profile := range out.App.Controls {
					if controlProfileRe.MatchString(profile) {
						app += fmt.Sprintf(`<controls profile="%s"/>`, profile)
					}
				}
				app += "</app>"
			} else {
				app += "/>"
			}
		}

		if programme != "" && out.Speed != nil {
			playback = fmt.Sprintf(`<playback speed="%s"/>`, xmlenc.EscapeAttr(fmt.Sprintf("%01.2f", *out.Speed)))
		}
	})

	body := fmt.Sprintf("<response resource=\"%s\"><output name=\"%s\"><settings%s/>%s%s%s</output></response>\n",
		xmlenc.EscapeAttr(fmt.Sprintf("uc/outputs/%s", oid))+req.EscapedQuery(),
		xmlenc.EscapeAttr(name), settings, programme, app, playback)
	return req.RespondXML(body)
}

// Post selects content on the output, through either the sid/cid query
// form or an XML body carrying exactly one programme or app element.
func (h *outputHandler) Post(req *resource.Request) error {
	c := h.ctx

	body, err := req.Body()
	if err != nil {
		return err
	}
	if !c.checkAuth(req, body) {
		return nil
	}

	oid, err := resolveOutputID(c, req.Path[len(req.Path)-1])
	if err != nil {
		return err
	}
	out, ok := c.Device.Output(oid)
	if !ok {
		return ucerr.NotFound(fmt.Sprintf("no output %q", oid))
	}

	var kind, sid, cid string
	var components []backend.ComponentOverride

	switch {
	case req.Params.Has("sid"):
		if len(req.Params["sid"]) != 1 {
			return ucerr.Invalid("sid given more than once")
		}
		sid = req.Params.Get("sid")
		if req.Params.Has("cid") {
			if len(req.Params["cid"]) != 1 {
				return ucerr.Invalid("cid given more than once")
			}
			cid = req.Params.Get("cid")
		}

	case len(body) == 0:
		return ucerr.Invalid("no selection given")

	default:
		dom, perr := parseBody(body)
		if perr != nil {
			return perr
		}
		programmes := dom.find("programme")
		apps := dom.find("app")

		var op *element
		switch {
		case len(apps) == 0 && len(programmes) == 1:
			kind, op = "programme", programmes[0]
		case len(programmes) == 0 && len(apps) == 1:
			kind, op = "app", apps[0]
		default:
			return ucerr.Invalid("expected exactly one of programme or app")
		}

		if sid, ok = op.attr("sid"); !ok {
			return ucerr.Invalid("sid missing")
		}
		if cid, ok = op.attr("cid"); !ok {
			return ucerr.Invalid("cid missing")
		}

		if kind == "programme" {
			for _, comp := range op.find("component-override") {
				mcid, hasMCID := comp.attr("mcid")
				ctype, hasType := comp.attr("type")
				if !hasMCID || !hasType {
					return ucerr.Invalid("component-override requires mcid and type")
				}
				components = append(components, backend.ComponentOverride{MCID: mcid, Type: ctype})
			}
		}
	}

	if !c.Device.HasSource(sid) {
		return ucerr.NotFound(fmt.Sprintf("no source %q", sid))
	}
	if out.Selector == nil {
		return ucerr.Failed("output has no selector")
	}

	switch kind {
	case "programme":
		err = out.Selector.SelectProgramme(sid, cid, components)
	case "app":
		err = out.Selector.SelectApp(sid, cid)
	default:
		err = out.Selector.SelectContent(sid, cid)
	}
	if err != nil {
		var uce *ucerr.Error
		if errors.As(err, &uce) {
			return uce
		}
		return ucerr.Failed(err.Error())
	}

	return req.RespondNoContent()
}

// outputSettingsHandler serves uc/outputs/{oid}/settings.
type outputSettingsHandler struct {
	ctx *Context
}

func (h *outputSettingsHandler) oid(req *resource.Request) (string, error) {
	return resolveOutputID(h.ctx, req.Path[len(req.Path)-2])
}

func (h *outputSettingsHandler) Get(req *resource.Request) error {
	c := h.ctx
	if !c.checkAuth(req, nil) {
		return nil
	}

	oid, err := h.oid(req)
	if err != nil {
		return err
	}
	out, ok := c.Device.Output(oid)
	if !ok {
		return ucerr.NotFound(fmt.Sprintf("no output %q", oid))
	}

	var attrs string
	c.Device.View(func() { attrs = renderSettingsAttrs(out.Settings) })

	body := fmt.Sprintf("<response resource=\"%s\"><settings%s/></response>\n",
		xmlenc.EscapeAttr(fmt.Sprintf("uc/outputs/%s/settings", oid))+req.EscapedQuery(), attrs)
	return req.RespondXML(body)
}

func (h *outputSettingsHandler) Put(req *resource.Request) error {
	c := h.ctx

	body, err := req.Body()
	if err != nil {
		return err
	}
	if !c.checkAuth(req, body) {
		return nil
	}

	oid, err := h.oid(req)
	if err != nil {
		return err
	}
	out, ok := c.Device.Output(oid)
	if !ok {
		return ucerr.NotFound(fmt.Sprintf("no output %q", oid))
	}

	dom, err := parseBody(body)
	if err != nil {
		return err
	}
	elems := dom.find("settings")
	if len(elems) != 1 {
		return ucerr.Invalid("expected a single settings element")
	}
	settings := elems[0]

	var volume *int
	var mute *bool
	var aspect string

	if raw, has := settings.attr("volume"); has {
		v, verr := xmlenc.ParseVolume(raw)
		if verr != nil {
			return ucerr.Invalid("volume is not a decimal value")
		}
		if v < 0 || v > 10000 {
			return ucerr.Invalid("volume out of range")
		}
		volume = &v
	}
	if raw, has := settings.attr("mute"); has {
		m, berr := xmlenc.ParseBool(raw)
		if berr != nil {
			return ucerr.Invalid("mute is not a boolean")
		}
		mute = &m
	}
	if raw, has := settings.attr("aspect"); has {
		if !backend.IsValidAspect(raw) {
			return ucerr.Invalid("unknown aspect")
		}
		aspect = raw
	}

	changed := false
	c.Device.Mutate(func() {
		if volume != nil && (out.Settings.Volume == nil || *out.Settings.Volume != *volume) {
			out.Settings.Volume = volume
			changed = true
		}
		if mute != nil && (out.Settings.Mute == nil || *out.Settings.Mute != *mute) {
			out.Settings.Mute = mute
			changed = true
		}
		if aspect != "" && out.Settings.Aspect != aspect {
			out.Settings.Aspect = aspect
			changed = true
		}
	})

	if changed {
		c.notifyChange(fmt.Sprintf("uc/outputs/%s", oid))
	}
	return req.RespondNoContent()
}

// outputPlayheadHandler serves uc/outputs/{oid}/playhead.
type outputPlayheadHandler struct {
	ctx *Context
}

func (h *outputPlayheadHandler) oid(req *resource.Request) (string, error) {
	return resolveOutputID(h.ctx, req.Path[len(req.Path)-2])
}

func (h *outputPlayheadHandler) Get(req *resource.Request) error {
	c := h.ctx
	if !c.checkAuth(req, nil) {
		return nil
	}

	oid, err := h.oid(req)
	if err != nil {
		return err
	}
	out, ok := c.Device.Output(oid)
	if !ok {
		return ucerr.NotFound(fmt.Sprintf("no output %q", oid))
	}

	now := time.Now().UTC()
	var attrs, aposition, rposition, playback string
	var missing bool

	c.Device.View(func() {
		if out.Playhead == nil {
			missing = true
			return
		}
		ph := out.Playhead

		if ph.Length != nil {
			attrs = fmt.Sprintf(` length="%s"`, xmlenc.EscapeAttr(fmt.Sprintf("%01.3f", *ph.Length)))
		}

		speed := 0.0
		if out.Speed != nil {
			speed = *out.Speed
			playback = fmt.Sprintf(`<playback speed="%s"/>`, xmlenc.EscapeAttr(fmt.Sprintf("%01.2f", speed)))
		}

		if ap := ph.Absolute; ap != nil {
			// The stored position was correct at its timestamp; advance it
			// by the elapsed wall-clock scaled by the playback speed.
			pos := ap.Position + speed*now.Sub(ap.Timestamp).Seconds()
			aposition = fmt.Sprintf(`<aposition position="%.*f"`, ap.Precision, pos)
			if ap.SeekStart != nil {
				aposition += fmt.Sprintf(` seek-start="%.*f"`, ap.Precision, *ap.SeekStart)
			}
			if ap.SeekEnd != nil {
				aposition += fmt.Sprintf(` seek-end="%.*f"`, ap.Precision, *ap.SeekEnd)
			}
			aposition += "/>"
		}

		if rp := ph.Relative; rp != nil {
			rposition = fmt.Sprintf(`<rposition position="%.*f"`, rp.Precision, rp.Position)
			if rp.SeekStart != nil {
				rposition += fmt.Sprintf(` seek-start="%.*f"`, rp.Precision, *rp.SeekStart)
			}
			if rp.SeekEnd != nil {
				rposition += fmt.Sprintf(` seek-end="%.*f"`, rp.Precision, *rp.SeekEnd)
			}
			rposition += "/>"
		}
	})

	if missing {
		return ucerr.Invalid("no playhead for this output")
	}

	body := fmt.Sprintf("<response resource=\"%s\"><playhead timestamp=\"%s\"%s>%s%s%s</playhead></response>\n",
		xmlenc.EscapeAttr(fmt.Sprintf("uc/outputs/%s/playhead", oid))+req.EscapedQuery(),
		xmlenc.FormatISO(now), attrs, aposition, rposition, playback)
	return req.RespondXML(body)
}

func (h *outputPlayheadHandler) Put(req *resource.Request) error {
	c := h.ctx

	timestamp := time.Now().UTC()

	body, err := req.Body()
	if err != nil {
		return err
	}
	if !c.checkAuth(req, body) {
		return nil
	}

	oid, err := h.oid(req)
	if err != nil {
		return err
	}
	out, ok := c.Device.Output(oid)
	if !ok {
		return ucerr.NotFound(fmt.Sprintf("no output %q", oid))
	}

	var hasPlayhead bool
	c.Device.View(func() { hasPlayhead = out.Playhead != nil })
	if !hasPlayhead {
		return ucerr.Invalid("no playhead for this output")
	}

	dom, err := parseBody(body)
	if err != nil {
		return err
	}
	elems := dom.find("playhead")
	if len(elems) != 1 {
		return ucerr.Invalid("expected a single playhead element")
	}
	ph := elems[0]

	if raw, has := ph.attr("timestamp"); has {
		if ts, terr := xmlenc.ParseISO(raw); terr == nil {
			timestamp = ts
		}
	}

	var position *backend.Position
	apositions := ph.find("aposition")
	rpositions := ph.find("rposition")
	switch {
	case len(apositions) > 1 || len(rpositions) > 1:
		return ucerr.Invalid("failed to parse position")
	case len(apositions) == 1:
		pos, perr := parsePosition(apositions[0], timestamp)
		if perr != nil {
			return perr
		}
		position = pos
	case len(rpositions) == 1:
		pos, perr := parsePosition(rpositions[0], timestamp)
		if perr != nil {
			return perr
		}
		position = pos
	}

	var speed *float64
	playbacks := ph.find("playback")
	if len(playbacks) > 1 {
		return ucerr.Invalid("too many playbacks")
	}
	if len(playbacks) == 1 {
		if raw, has := playbacks[0].attr("speed"); has {
			var v float64
			if _, serr := fmt.Sscanf(raw, "%g", &v); serr != nil {
				return ucerr.Invalid("invalid speed")
			}
			speed = &v
		}
	}

	if position == nil && speed == nil {
		return ucerr.Invalid("nothing to update")
	}

	c.Device.Mutate(func() {
		if speed != nil {
			out.Speed = speed
		}
		if position != nil {
			out.Playhead = &backend.Playhead{Absolute: position, Length: out.Playhead.Length}
		}
	})

	return req.RespondNoContent()
}

func parsePosition(e *element, timestamp time.Time) (*backend.Position, error) {
	raw, has := e.attr("position")
	if !has {
		return nil, ucerr.Invalid("failed to parse position")
	}
	var v float64
	if _, err := fmt.Sscanf(raw, "%g", &v); err != nil {
		return nil, ucerr.Invalid("failed to parse position")
	}
	return &backend.Position{Position: v, Timestamp: timestamp}, nil
}
