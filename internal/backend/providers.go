// UCServer - Universal Control Protocol Engine for Media Devices
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ucserver

package backend

import "net/url"

// Selector drives content selection on an output. Implementations signal
// protocol-classified failures by returning ucerr errors; anything else
// reports as a 500.
type Selector interface {
	SelectContent(sid, cid string) error
	SelectProgramme(sid, cid string, components []ComponentOverride) error
	SelectApp(sid, cid string) error
}

// ButtonHandler delivers simulated remote-control button presses. The
// output is empty when the press is not targeted.
type ButtonHandler interface {
	Press(code, output string) error
}

// AcquireRequest carries the parameters of one acquisition booking.
// Exactly one of GlobalContentID, (SID, CID) or SeriesID is set.
type AcquireRequest struct {
	GlobalContentID string
	CID             string
	SID             string
	SeriesID        string
	Priority        bool
}

// Acquirer books and cancels acquisitions. Acquire returns the minted
// acquisition id, or an empty string when the booking could not be made.
type Acquirer interface {
	Acquire(req AcquireRequest) (string, error)
	Cancel(aid string) error
}

// Metadata answers the seven content search queries. Each call returns
// one or more result pages with their more flags.
type Metadata interface {
	GetOutput(oid string, q Query) ([]ResultSet, error)
	GetSources(sids []string, q Query) ([]ResultSet, error)
	GetText(words []string, q Query) ([]ResultSet, error)
	GetCategories(categories []string, q Query) ([]ResultSet, error)
	GetGCID(id string, q Query) ([]ResultSet, error)
	GetGSID(id string, q Query) ([]ResultSet, error)
	GetGAID(id string, q Query) ([]ResultSet, error)
}

// AppInstaller activates and deactivates applications.
type AppInstaller interface {
	Activate(sid, cid string) (string, error)
	Deactivate(aid string) error
}

// ExtensionResponse is what an app extension returns for a proxied
// request.
type ExtensionResponse struct {
	Status  int
	Headers map[string]string
	Body    []byte
}

// Extension handles requests proxied into an app through the
// uc/apps/{aid}/ext/** subtree. The path excludes the uc/apps/{aid}/ext
// prefix; auth reports whether valid credentials accompanied the request
// (always true when the security scheme is off).
type Extension interface {
	Request(path []string, verb string, headers map[string]string, params url.Values, auth bool, body []byte) (ExtensionResponse, error)
}

// StorageDeleter removes stored items.
type StorageDeleter interface {
	Delete(cid string) error
}
