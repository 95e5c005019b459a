// UCServer - Universal Control Protocol Engine for Media Devices
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ucserver

// Package resource provides the path-pattern trie the dispatcher routes
// through and the request/handler contracts the resource handlers
// implement.
//
// A handler is an object implementing some subset of the capability
// interfaces below. Capabilities it does not implement answer 405, which
// the dispatcher raises on its behalf. Handlers are shared, stateless
// values; all per-request state travels in the Request.
package resource

import (
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/tomtom215/ucserver/internal/ucerr"
	"github.com/tomtom215/ucserver/internal/xmlenc"
)

// Request carries one dispatched request into a handler.
type Request struct {
	W http.ResponseWriter
	R *http.Request

	// Path holds the decoded path segments of the request.
	Path []string
	// Query is the decoded query string including its leading "?", or
	// empty when the request carried none. It is echoed into the
	// resource attribute of responses.
	Query string
	// Params holds the parsed query parameters.
	Params url.Values
	// Head suppresses the response body while keeping all headers.
	Head bool
	// Received is the timestamp captured before dispatch.
	Received time.Time

	body []byte
	read bool
}

// Body reads and caches the request body.
func (req *Request) Body() ([]byte, error) {
	if req.read {
		return req.body, nil
	}
	data, err := io.ReadAll(req.R.Body)
	if err != nil {
		return nil, ucerr.Invalid("could not read body")
	}
	req.body = data
	req.read = true
	return data, nil
}

// EscapedQuery returns the query string escaped for embedding in the
// echoed resource attribute.
func (req *Request) EscapedQuery() string {
	return xmlenc.EscapeText(req.Query)
}

// RespondXML writes a 200 response with the given XML body, or headers
// only for a HEAD request.
func (req *Request) RespondXML(body string) error {
	req.W.Header().Set("Content-Length", strconv.Itoa(len(body)))
	req.W.Header().Set("Cache-Control", "no-cache")
	req.W.Header().Set("Content-Type", "application/xml")
	req.W.WriteHeader(http.StatusOK)

	if !req.Head {
		if _, err := req.W.Write([]byte(body)); err != nil {
			return fmt.Errorf("write response: %w", err)
		}
	}
	return nil
}

// RespondNoContent writes a 204 response.
func (req *Request) RespondNoContent() error {
	req.W.Header().Set("Cache-Control", "no-cache")
	req.W.WriteHeader(http.StatusNoContent)
	return nil
}

// Handler marks a resource handler. Capabilities are added by also
// implementing the interfaces below.
type Handler interface{}

// Getter handles GET.
type Getter interface {
	Get(*Request) error
}

// Putter handles PUT.
type Putter interface {
	Put(*Request) error
}

// Poster handles POST.
type Poster interface {
	Post(*Request) error
}

// Deleter handles DELETE.
type Deleter interface {
	Delete(*Request) error
}

// StandbyGetter handles GET while the server is in standby, taking
// precedence over Getter there.
type StandbyGetter interface {
	StandbyGet(*Request) error
}

// StandbyPutter handles PUT while the server is in standby.
type StandbyPutter interface {
	StandbyPut(*Request) error
}

// AnyMethod handles every verb itself, bypassing per-verb dispatch. Used
// by the app-extension reverse proxy.
type AnyMethod interface {
	Do(method string, req *Request) error
}

// Tree is the resource trie. Segments are literal strings plus the two
// wildcards: "*" matches exactly one segment, "**" matches the remainder
// of the path including the empty remainder.
type Tree struct {
	root node
}

type node struct {
	handler  Handler
	children map[string]*node
}

// NewTree creates an empty trie.
func NewTree() *Tree {
	return &Tree{root: node{children: make(map[string]*node)}}
}

// Register binds a handler to a path pattern, creating intermediate nodes
// without handlers as needed. Registering an already-bound path replaces
// the handler and keeps the subtree.
func (t *Tree) Register(path []string, h Handler) {
	n := &t.root
	for _, seg := range path {
		child, ok := n.children[seg]
		if !ok {
			child = &node{children: make(map[string]*node)}
			n.children[seg] = child
		}
		n = child
	}
	n.handler = h
}

// Lookup walks the trie for the given path, preferring literal matches,
// then "*", then "**" (which terminates the walk). It returns nil when no
// handler is bound.
func (t *Tree) Lookup(path []string) Handler {
	return lookup(&t.root, path)
}

func lookup(n *node, path []string) Handler {
	if len(path) == 0 {
		if n.handler == nil {
			if child, ok := n.children["**"]; ok {
				return child.handler
			}
		}
		return n.handler
	}

	if child, ok := n.children[path[0]]; ok {
		return lookup(child, path[1:])
	}
	if child, ok := n.children["*"]; ok {
		return lookup(child, path[1:])
	}
	if child, ok := n.children["**"]; ok {
		return child.handler
	}
	return nil
}
