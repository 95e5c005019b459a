// UCServer - Universal Control Protocol Engine for Media Devices
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ucserver

package handlers

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/tomtom215/ucserver/internal/backend"
	"github.com/tomtom215/ucserver/internal/resource"
	"github.com/tomtom215/ucserver/internal/ucerr"
	"github.com/tomtom215/ucserver/internal/xmlenc"
)

// searchParamKind describes how one query parameter is typed and whether
// it may repeat.
type searchParamKind struct {
	repeated bool
	kind     string // "int", "int>=1", "id", "%", "bool", "iso"
}

// searchParams is the master grammar of recognised search parameters.
var searchParams = map[string]searchParamKind{
	"results":     {false, "int>=1"},
	"offset":      {false, "int"},
	"sid":         {true, "id"},
	"cid":         {true, "id"},
	"series-id":   {true, "id"},
	"gcid":        {true, "%"},
	"gsid":        {true, "%"},
	"gaid":        {true, "%"},
	"category":    {true, "id"},
	"text":        {true, "%"},
	"field":       {true, "%"},
	"interactive": {false, "bool"},
	"AV":          {false, "bool"},
	"start":       {false, "iso"},
	"end":         {false, "iso"},
	"days":        {false, "int>=1"},
}

// parseSearchQuery parses the query parameters against the subset a
// given search resource accepts. A parameter outside the accepted subset
// is a syntax error. Defaults: results=1, offset=0, interactive=true,
// AV=true, start=now, field=title+synopsis; days computes end as
// midnight(start)+days and is mutually exclusive with end.
func parseSearchQuery(req *resource.Request, valid []string) (backend.Query, error) {
	q := backend.Query{
		Results:     1,
		Offset:      0,
		Interactive: true,
		AV:          true,
	}

	validSet := make(map[string]bool, len(valid))
	for _, v := range valid {
		validSet[v] = true
	}

	var days int
	var hasDays, hasEnd, hasStart bool

	for key, values := range req.Params {
		param, known := searchParams[key]
		if !known || !validSet[key] {
			return q, ucerr.Invalid(fmt.Sprintf("unknown parameter %q", key))
		}
		if !param.repeated && len(values) > 1 {
			return q, ucerr.Invalid(fmt.Sprintf("parameter %q given more than once", key))
		}

		switch key {
		case "results":
			n, err := parseSearchInt(values[0], true)
			if err != nil {
				return q, err
			}
			q.Results = n
		case "offset":
			n, err := parseSearchInt(values[0], false)
			if err != nil {
				return q, err
			}
			q.Offset = n
		case "days":
			n, err := parseSearchInt(values[0], true)
			if err != nil {
				return q, err
			}
			days, hasDays = n, true
		case "interactive":
			b, err := xmlenc.ParseBool(values[0])
			if err != nil {
				return q, ucerr.Invalid("interactive is not a boolean")
			}
			q.Interactive = b
		case "AV":
			b, err := xmlenc.ParseBool(values[0])
			if err != nil {
				return q, ucerr.Invalid("AV is not a boolean")
			}
			q.AV = b
		case "start":
			t, err := xmlenc.ParseISO(values[0])
			if err != nil {
				return q, ucerr.Invalid("start is not a timestamp")
			}
			q.Start, hasStart = t, true
		case "end":
			t, err := xmlenc.ParseISO(values[0])
			if err != nil {
				return q, ucerr.Invalid("end is not a timestamp")
			}
			q.End, hasEnd = &t, true
		default:
			decoded, err := parseSearchStrings(values, param.kind)
			if err != nil {
				return q, err
			}
			switch key {
			case "sid":
				q.SIDs = decoded
			case "cid":
				q.CIDs = decoded
			case "series-id":
				q.SeriesIDs = decoded
			case "gcid":
				q.GCIDs = decoded
			case "gsid":
				q.GSIDs = decoded
			case "gaid":
				q.GAIDs = decoded
			case "category":
				q.Categories = decoded
			case "text":
				q.Text = decoded
			case "field":
				q.Fields = decoded
			}
		}
	}

	if hasDays && hasEnd {
		return q, ucerr.Invalid("days and end are mutually exclusive")
	}
	if !hasStart {
		q.Start = time.Now().UTC()
	}
	if len(q.Fields) == 0 {
		q.Fields = []string{"title", "synopsis"}
	} else {
		for _, f := range q.Fields {
			if f != "title" && f != "synopsis" {
				return q, ucerr.Invalid("field must be title or synopsis")
			}
		}
	}
	if hasDays {
		midnight := time.Date(q.Start.Year(), q.Start.Month(), q.Start.Day(), 0, 0, 0, 0, time.UTC)
		end := midnight.AddDate(0, 0, days)
		q.End = &end
	}

	return q, nil
}

func parseSearchInt(raw string, atLeastOne bool) (int, error) {
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, ucerr.Invalid(fmt.Sprintf("%q is not an integer", raw))
	}
	if n < 0 || (atLeastOne && n < 1) {
		return 0, ucerr.Invalid(fmt.Sprintf("%d out of range", n))
	}
	return n, nil
}

func parseSearchStrings(values []string, kind string) ([]string, error) {
	out := make([]string, 0, len(values))
	for _, raw := range values {
		switch kind {
		case "id":
			if !xmlenc.IsIDComponent(raw) {
				return nil, ucerr.Invalid(fmt.Sprintf("%q is not a valid id", raw))
			}
			out = append(out, raw)
		default:
			decoded, err := xmlenc.PercentDecode(raw)
			if err != nil {
				return nil, ucerr.Invalid(fmt.Sprintf("%q is not decodable", raw))
			}
			out = append(out, decoded)
		}
	}
	return out, nil
}

// encodeContent renders one content item. Attribute and child ordering
// are part of the wire contract.
func encodeContent(item backend.ContentItem) string {
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
	timeAttr := func(name string, value *time.Time) {
		if value != nil {
			fmt.Fprintf(&attrs, ` %s="%s"`, name, xmlenc.FormatISO(*value))
		}
	}

	stringAttr("global-content-id", item.GlobalContentID)
	stringAttr("global-series-id", item.GlobalSeriesID)
	stringAttr("global-app-id", item.GlobalAppID)
	stringAttr("series-id", item.SeriesID)
	stringAttr("title", item.Title)
	stringAttr("cref", item.Cref)
	stringAttr("logo-href", item.LogoHref)
	stringAttr("associated-sid", item.AssociatedSID)
	stringAttr("associated-id", item.AssociatedCID)

	boolAttr("interactive", item.Interactive)
	boolAttr("presentable", item.Presentable)
	boolAttr("acquirable", item.Acquirable)
	boolAttr("extension", item.Extension)

	if item.Duration != nil {
		fmt.Fprintf(&attrs, ` duration="%s"`, xmlenc.Duration(*item.Duration))
	}

	timeAttr("start", item.Start)
	timeAttr("acquirable-from", item.AcquirableFrom)
	timeAttr("acquirable-until", item.AcquirableUntil)
	timeAttr("presentable-from", item.PresentableFrom)
	timeAttr("presentable-until", item.PresentableUntil)
	timeAttr("last-presented", item.LastPresented)

	if item.PresentationCount != nil {
		fmt.Fprintf(&attrs, ` presentation-count="%d"`, *item.PresentationCount)
	}

	content := "/"
	if item.Synopsis != "" || len(item.Categories) != 0 || len(item.Links) != 0 ||
		len(item.MediaComponents) != 0 || len(item.Controls) != 0 {
		var inner strings.Builder

		if item.Synopsis != "" {
			fmt.Fprintf(&inner, "<synopsis>%s</synopsis>", xmlenc.EscapeText(item.Synopsis))
		}
		for _, category := range item.Categories {
			fmt.Fprintf(&inner, `<category category-id="%s"/>`, xmlenc.EscapeAttr(category))
		}
		for _, comp := range item.MediaComponents {
			inner.WriteString(encodeMediaComponent(comp))
		}
		for _, profile := range item.Controls {
			fmt.Fprintf(&inner, `<controls profile="%s"/>`, profile)
		}
		for _, link := range item.Links {
			fmt.Fprintf(&inner, `<link href="%s" description="%s"/>`,
				xmlenc.EscapeAttr(link.Href), xmlenc.EscapeAttr(link.Description))
		}

		content = ">" + inner.String() + "</content"
	}

	return fmt.Sprintf(`<content sid="%s" cid="%s"%s%s>`,
		xmlenc.EscapeAttr(item.SID), xmlenc.EscapeAttr(item.CID), attrs.String(), content)
}

// Constrained media component vocabularies. Values outside them are
// omitted rather than rejected.
var (
	validIntents    = map[string]bool{"admix": true, "hhsubs": true, "signed": true, "iimix": true, "commentary": true}
	validVidFormats = map[string]bool{"SD": true, "HD": true, "S3D": true}
)

func encodeMediaComponent(comp backend.MediaComponent) string {
	var attrs strings.Builder

	if comp.Name != "" {
		fmt.Fprintf(&attrs, ` name="%s"`, xmlenc.EscapeAttr(comp.Name))
	}
	if comp.Lang != "" {
		fmt.Fprintf(&attrs, ` lang="%s"`, xmlenc.EscapeAttr(comp.Lang))
	}
	if validIntents[comp.Intent] {
		fmt.Fprintf(&attrs, ` intent="%s"`, comp.Intent)
	}
	if comp.Aspect != "" && backend.IsValidAspect(comp.Aspect) && comp.Aspect != "source" {
		fmt.Fprintf(&attrs, ` aspect="%s"`, comp.Aspect)
	}
	if validVidFormats[comp.VidFormat] {
		fmt.Fprintf(&attrs, ` vidformat="%s"`, comp.VidFormat)
	}
	if comp.Colour != nil {
		fmt.Fprintf(&attrs, ` colour="%s"`, xmlenc.Bool(*comp.Colour))
	}
	if comp.Default != nil {
		fmt.Fprintf(&attrs, ` default="%s"`, xmlenc.Bool(*comp.Default))
	}

	return fmt.Sprintf(`<media-component mcid="%s" type="%s"%s/>`,
		xmlenc.EscapeAttr(comp.MCID), xmlenc.EscapeAttr(comp.Type), attrs.String())
}

// respondResults renders the results blocks of a search response.
func respondResults(req *resource.Request, rref string, results []backend.ResultSet) error {
	var blocks strings.Builder
	for _, rs := range results {
		var items strings.Builder
		for _, item := range rs.Items {
			items.WriteString(encodeContent(item))
		}
		if items.Len() == 0 {
			fmt.Fprintf(&blocks, `<results more="%s"/>`, xmlenc.Bool(rs.More))
		} else {
			fmt.Fprintf(&blocks, `<results more="%s">%s</results>`, xmlenc.Bool(rs.More), items.String())
		}
	}

	body := fmt.Sprintf("<response resource=\"%s\">%s</response>\n",
		xmlenc.EscapeAttr(rref)+req.EscapedQuery(), blocks.String())
	return req.RespondXML(body)
}

func metadataOf(c *Context) (backend.Metadata, error) {
	if c.Device.Metadata == nil {
		return nil, ucerr.NotImplemented("no metadata provider")
	}
	return c.Device.Metadata, nil
}

// get204Handler answers authenticated GETs with 204. It backs uc/search
// and the intermediate search nodes.
type get204Handler struct {
	ctx *Context
}

func (h *get204Handler) Get(req *resource.Request) error {
	if !h.ctx.checkAuth(req, nil) {
		return nil
	}
	return req.RespondNoContent()
}

// searchOutputHandler serves uc/search/outputs/{oid}.
type searchOutputHandler struct {
	ctx *Context
}

func (h *searchOutputHandler) Get(req *resource.Request) error {
	c := h.ctx
	if !c.checkAuth(req, nil) {
		return nil
	}

	term := req.Path[len(req.Path)-1]
	if term == "main" {
		term = c.Device.MainOutputID()
	}
	if _, ok := c.Device.Output(term); !ok {
		return ucerr.NotFound(fmt.Sprintf("no output %q", term))
	}

	q, err := parseSearchQuery(req, []string{"results", "offset", "interactive", "AV", "start", "end", "days"})
	if err != nil {
		return err
	}
	md, err := metadataOf(c)
	if err != nil {
		return err
	}
	results, err := md.GetOutput(term, q)
	if err != nil {
		return err
	}
	return respondResults(req, fmt.Sprintf("uc/search/outputs/%s", term), results)
}

// searchSourcesHandler serves uc/search/sources/{sid;sid;...}.
type searchSourcesHandler struct {
	ctx *Context
}

var sourcesSearchParams = []string{"results", "offset", "cid", "series-id", "gcid", "gsid", "gaid", "category", "text", "field", "interactive", "AV", "start", "end", "days"}

func (h *searchSourcesHandler) Get(req *resource.Request) error {
	c := h.ctx
	if !c.checkAuth(req, nil) {
		return nil
	}

	terms := req.Path[len(req.Path)-1]
	sids := strings.Split(terms, ";")
	for _, sid := range sids {
		if !c.Device.HasSource(sid) {
			return ucerr.NotFound(fmt.Sprintf("no source %q", sid))
		}
	}

	q, err := parseSearchQuery(req, sourcesSearchParams)
	if err != nil {
		return err
	}
	md, err := metadataOf(c)
	if err != nil {
		return err
	}
	results, err := md.GetSources(sids, q)
	if err != nil {
		return err
	}
	return respondResults(req, fmt.Sprintf("uc/search/sources/%s", terms), results)
}

// searchSourceListsHandler serves uc/search/source-lists/{id;id;...}:
// the member sources of the named lists in lcn order, deduplicated, fed
// to the sources query.
type searchSourceListsHandler struct {
	ctx *Context
}

func (h *searchSourceListsHandler) Get(req *resource.Request) error {
	c := h.ctx
	if !c.checkAuth(req, nil) {
		return nil
	}

	terms := req.Path[len(req.Path)-1]
	listIDs := strings.Split(terms, ";")

	var sids []string
	seen := make(map[string]bool)
	for _, listID := range listIDs {
		list, ok := c.Device.SourceList(listID)
		if !ok {
			return ucerr.NotFound(fmt.Sprintf("no source list %q", listID))
		}
		for _, src := range c.Device.SourcesByLCN(list.Sources) {
			if !seen[src.SID] {
				seen[src.SID] = true
				sids = append(sids, src.SID)
			}
		}
	}

	q, err := parseSearchQuery(req, sourcesSearchParams)
	if err != nil {
		return err
	}
	md, err := metadataOf(c)
	if err != nil {
		return err
	}
	results, err := md.GetSources(sids, q)
	if err != nil {
		return err
	}
	return respondResults(req, fmt.Sprintf("uc/search/source-lists/%s", terms), results)
}

// searchTextHandler serves uc/search/text/{word+word+...}.
type searchTextHandler struct {
	ctx *Context
}

func (h *searchTextHandler) Get(req *resource.Request) error {
	c := h.ctx
	if !c.checkAuth(req, nil) {
		return nil
	}

	terms := req.Path[len(req.Path)-1]
	var words []string
	for _, raw := range strings.Split(terms, "+") {
		word, err := xmlenc.PercentDecode(raw)
		if err != nil {
			return ucerr.Invalid("search text is not decodable")
		}
		words = append(words, word)
	}

	q, err := parseSearchQuery(req, []string{"results", "offset", "sid", "cid", "series-id", "gcid", "gsid", "gaid", "category", "field", "interactive", "AV", "start", "end", "days"})
	if err != nil {
		return err
	}
	md, err := metadataOf(c)
	if err != nil {
		return err
	}
	results, err := md.GetText(words, q)
	if err != nil {
		return err
	}
	return respondResults(req, fmt.Sprintf("uc/search/text/%s", terms), results)
}

// searchCategoriesHandler serves uc/search/categories/{category-id}. The
// category expands to its leaf descendants before the query runs.
type searchCategoriesHandler struct {
	ctx *Context
}

func (h *searchCategoriesHandler) Get(req *resource.Request) error {
	c := h.ctx
	if !c.checkAuth(req, nil) {
		return nil
	}

	term := req.Path[len(req.Path)-1]
	if !c.Device.HasAPICategory(term) {
		return ucerr.NotFound(fmt.Sprintf("no category %q", term))
	}
	leaves := c.Device.LeafCategories(term)

	q, err := parseSearchQuery(req, []string{"results", "offset", "sid", "cid", "series-id", "gcid", "gsid", "gaid", "text", "field", "interactive", "AV", "start", "end", "days"})
	if err != nil {
		return err
	}
	md, err := metadataOf(c)
	if err != nil {
		return err
	}
	results, err := md.GetCategories(leaves, q)
	if err != nil {
		return err
	}
	return respondResults(req, fmt.Sprintf("uc/search/categories/%s", term), results)
}

// searchGlobalKind selects which global identifier a searchGlobalIDHandler
// resolves.
type searchGlobalKind int

const (
	searchGCID searchGlobalKind = iota
	searchGSID
	searchGAID
)

// searchGlobalIDHandler serves the three global-id search resources,
// which share their shape and accepted parameters.
type searchGlobalIDHandler struct {
	ctx  *Context
	kind searchGlobalKind
}

func (h *searchGlobalIDHandler) Get(req *resource.Request) error {
	c := h.ctx
	if !c.checkAuth(req, nil) {
		return nil
	}

	raw := req.Path[len(req.Path)-1]
	term, err := xmlenc.PercentDecode(raw)
	if err != nil {
		return ucerr.Invalid("identifier is not decodable")
	}

	q, err := parseSearchQuery(req, []string{"results", "offset", "sid", "start", "end", "days"})
	if err != nil {
		return err
	}
	md, err := metadataOf(c)
	if err != nil {
		return err
	}

	var results []backend.ResultSet
	var rref string
	switch h.kind {
	case searchGCID:
		results, err = md.GetGCID(term, q)
		rref = fmt.Sprintf("uc/search/global-content-id/%s", raw)
	case searchGSID:
		results, err = md.GetGSID(term, q)
		rref = fmt.Sprintf("uc/search/global-series-id/%s", raw)
	default:
		results, err = md.GetGAID(term, q)
		rref = fmt.Sprintf("uc/search/global-app-id/%s", raw)
	}
	if err != nil {
		return err
	}
	return respondResults(req, rref, results)
}
