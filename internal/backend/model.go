// UCServer - Universal Control Protocol Engine for Media Devices
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ucserver

// Package backend defines the data model the UC resource tree renders and
// the pluggable provider contracts the device implementation satisfies.
// The core never talks to a tuner, a PVR database or an app runtime
// directly; it reads the registries held by Device and invokes providers,
// and the device announces every mutation through the notification store.
package backend

import "time"

// Link is a supplementary hyperlink attached to sources and content.
type Link struct {
	Href        string
	Description string
}

// Source is one selectable content source: a TV or radio channel, a
// storage group, a menu root, a game catalogue, or a similar pseudo-source.
type Source struct {
	SID  string
	Name string
	// Rref is the source's own relative resource URI.
	Rref string
	// Sref is an optional external address for the source.
	Sref             string
	Owner            string
	LogoHref         string
	OwnerLogoHref    string
	DefaultContentID string
	Live             *bool
	Linear           *bool
	FollowOn         *bool
	LCN              *int
	Links            []Link
}

// SourceList is an ordered, possibly overlapping grouping of sources.
type SourceList struct {
	ID          string
	Name        string
	Description string
	LogoHref    string
	Sources     []string
}

// Aspect ratios accepted by output settings.
var ValidAspects = []string{"source", "4:3", "14:9", "16:9", "16:10", "21:9"}

// IsValidAspect reports whether s is an accepted aspect value.
func IsValidAspect(s string) bool {
	for _, a := range ValidAspects {
		if a == s {
			return true
		}
	}
	return false
}

// Settings are the mutable settings of an output.
type Settings struct {
	// Volume is stored scaled by 10000, range 0..10000.
	Volume *int
	Mute   *bool
	Aspect string
}

// ComponentOverride selects a specific media component of a programme.
type ComponentOverride struct {
	MCID string
	Type string
}

// ProgrammeSelection is the programme currently selected on an output.
type ProgrammeSelection struct {
	SID        string
	CID        string
	Components []ComponentOverride
}

// AppSelection is the application currently selected on an output.
type AppSelection struct {
	SID      string
	CID      string
	Controls []string
}

// Position is one playhead position, absolute or relative.
type Position struct {
	Position  float64
	Precision int
	Timestamp time.Time
	SeekStart *float64
	SeekEnd   *float64
}

// Playhead is the playhead state of an output. It is nil exactly when
// nothing with a playhead is selected.
type Playhead struct {
	Absolute *Position
	Relative *Position
	Length   *float64
}

// Output is a display or audio sink. At any time at most one of Programme
// and App is set.
type Output struct {
	OID      string
	Name     string
	Main     bool
	Parent   string
	Settings Settings

	Programme *ProgrammeSelection
	App       *AppSelection
	// Speed is the playback speed, nil when no speed applies.
	Speed    *float64
	Playhead *Playhead

	// Selector drives content selection for this output.
	Selector Selector
}

// MediaComponent describes one component of a content item.
type MediaComponent struct {
	MCID      string
	Type      string
	Name      string
	Aspect    string
	Lang      string
	VidFormat string
	Intent    string
	Default   *bool
	Colour    *bool
}

// ContentItem is one piece of content returned by metadata queries.
type ContentItem struct {
	SID string
	CID string

	Title    string
	Synopsis string
	Cref     string
	LogoHref string

	GlobalContentID string
	GlobalSeriesID  string
	GlobalAppID     string
	SeriesID        string
	AssociatedSID   string
	AssociatedCID   string

	Interactive *bool
	Presentable *bool
	Acquirable  *bool
	Extension   *bool

	Start             *time.Time
	AcquirableFrom    *time.Time
	AcquirableUntil   *time.Time
	PresentableFrom   *time.Time
	PresentableUntil  *time.Time
	LastPresented     *time.Time
	// Duration is stored in units of 100 microseconds.
	Duration          *int64
	PresentationCount *int

	MediaComponents []MediaComponent
	Controls        []string
	Links           []Link
	Categories      []string
}

// ResultSet is one page of metadata results plus the more flag.
type ResultSet struct {
	Items []ContentItem
	More  bool
}

// Query carries the parsed search query grammar.
type Query struct {
	Results int
	Offset  int

	SIDs       []string
	CIDs       []string
	SeriesIDs  []string
	GCIDs      []string
	GSIDs      []string
	GAIDs      []string
	Categories []string
	Text       []string
	Fields     []string

	Interactive bool
	AV          bool

	Start time.Time
	End   *time.Time
}

// ContentAcquisition is a booking of one specific broadcast.
type ContentAcquisition struct {
	AID         string
	SID         string
	CID         string
	Interactive bool

	GlobalContentID string
	SeriesID        string
	SeriesLinked    *bool
	Priority        *bool
	Speculative     *bool
	Active          *bool
	Start           *time.Time
	End             *time.Time
}

// SeriesAcquisition is a booking of a whole series.
type SeriesAcquisition struct {
	AID         string
	SeriesID    string
	Speculative *bool
}

// StoredItem is one item in device storage.
type StoredItem struct {
	CID             string
	SID             string
	GlobalContentID string
	CreatedTime     string
	Size            *int64
}

// Category is one node of the category hierarchy. Only nodes whose
// CategoryID is set are addressable through the API.
type Category struct {
	ID         string
	Parent     string
	Name       string
	CategoryID string
	LogoHref   string
}

// App is one activated application. Apps carrying an Extension are
// remote-enabled.
type App struct {
	AID       string
	SID       string
	CID       string
	Extension Extension
}

// FileEntry maps an images path to a local file.
type FileEntry struct {
	Filename string
	MimeType string
}
