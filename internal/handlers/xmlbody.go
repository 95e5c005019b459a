// UCServer - Universal Control Protocol Engine for Media Devices
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ucserver

package handlers

import (
	"bytes"
	"encoding/xml"
	"io"

	"github.com/tomtom215/ucserver/internal/ucerr"
)

// element is one node of a parsed request body. Request bodies are small
// and searched by element name the way a DOM would be, so a tiny generic
// tree beats per-body unmarshal types.
type element struct {
	name     string
	attrs    map[string]string
	children []*element
}

// attr returns the attribute value and whether it was present.
func (e *element) attr(name string) (string, bool) {
	v, ok := e.attrs[name]
	return v, ok
}

// find returns all descendant elements with the given name, in document
// order.
func (e *element) find(name string) []*element {
	var out []*element
	for _, child := range e.children {
		if child.name == name {
			out = append(out, child)
		}
		out = append(out, child.find(name)...)
	}
	return out
}

// parseBody parses a request body into an element tree rooted at a
// synthetic document node. A body that is not well-formed XML is a 400.
func parseBody(body []byte) (*element, error) {
	decoder := xml.NewDecoder(bytes.NewReader(body))
	root := &element{name: "", attrs: map[string]string{}}
	stack := []*element{root}

	for {
		tok, err := decoder.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, ucerr.Invalid("could not parse XML")
		}

		switch t := tok.(type) {
		case xml.StartElement:
			e := &element{name: t.Name.Local, attrs: make(map[string]string, len(t.Attr))}
			for _, a := range t.Attr {
				e.attrs[a.Name.Local] = a.Value
			}
			parent := stack[len(stack)-1]
			parent.children = append(parent.children, e)
			stack = append(stack, e)
		case xml.EndElement:
			if len(stack) > 1 {
				stack = stack[:len(stack)-1]
			}
		}
	}

	if len(root.children) == 0 {
		return nil, ucerr.Invalid("could not parse XML")
	}
	return root, nil
}
