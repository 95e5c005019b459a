// UCServer - Universal Control Protocol Engine for Media Devices
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ucserver

// Package ucerr defines the error taxonomy shared by the resource handlers
// and the dispatcher. Handlers return these typed errors; the dispatcher is
// the single point that translates them into HTTP statuses and the XML
// error body. Anything that is not a ucerr.Error reports as a 500.
package ucerr

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/tomtom215/ucserver/internal/xmlenc"
)

// Error is a protocol error carrying the HTTP status it maps to.
type Error struct {
	Code    int
	Name    string
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Name, e.Message)
}

// Invalid reports a malformed request (400).
func Invalid(message string) *Error {
	return &Error{Code: http.StatusBadRequest, Name: "Invalid Syntax", Message: message}
}

// NotFound reports an unknown identifier (404).
func NotFound(message string) *Error {
	return &Error{Code: http.StatusNotFound, Name: "Not Found", Message: message}
}

// NotImplemented reports an unmapped path or method, or an absent backend
// feature (405).
func NotImplemented(message string) *Error {
	return &Error{Code: http.StatusMethodNotAllowed, Name: "Not Implemented", Message: message}
}

// Failed reports a backend or internal failure (500).
func Failed(message string) *Error {
	return &Error{Code: http.StatusInternalServerError, Name: "Failed", Message: message}
}

// Forbidden reports a disallowed cross-origin request (403).
func Forbidden(message string) *Error {
	return &Error{Code: http.StatusForbidden, Name: "Forbidden", Message: message}
}

// Aborted reports a restriction exchange aborted by the user (410).
func Aborted(message string) *Error {
	return &Error{Code: http.StatusGone, Name: "Aborted", Message: message}
}

// CodeOf returns the HTTP status an error maps to. Unclassified errors
// report as 500.
func CodeOf(err error) int {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return http.StatusInternalServerError
}

// explanations carries the long-form phrases appended to error bodies,
// keyed by status code.
var explanations = map[int]string{
	http.StatusBadRequest:          "Bad request syntax or unsupported method",
	http.StatusUnauthorized:        "No permission -- see authorization schemes",
	http.StatusPaymentRequired:     "No payment -- see charging schemes",
	http.StatusForbidden:           "Request forbidden -- authorization will not help",
	http.StatusNotFound:            "Nothing matches the given URI",
	http.StatusMethodNotAllowed:    "Specified method is invalid for this resource",
	http.StatusGone:                "URI no longer exists and has been permanently removed",
	http.StatusInternalServerError: "Server got itself in trouble",
}

// WriteError emits the protocol XML error body for the given status and
// message. The body form is <error code="NNN">message : explain.</error>.
func WriteError(w http.ResponseWriter, code int, message string) {
	if message == "" {
		message = http.StatusText(code)
	}
	explain, ok := explanations[code]
	if !ok {
		explain = http.StatusText(code)
	}
	body := fmt.Sprintf("<error code=\"%d\">%s : %s.</error>\n",
		code, xmlenc.EscapeText(message), xmlenc.EscapeText(explain))

	w.Header().Set("Content-Type", "application/xml")
	w.Header().Set("Content-Length", strconv.Itoa(len(body)))
	w.WriteHeader(code)
	_, _ = w.Write([]byte(body))
}
