// UCServer - Universal Control Protocol Engine for Media Devices
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ucserver

package backend

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/tomtom215/ucserver/internal/logging"
)

// Memory is a self-contained device backend over the in-process
// registries: selection mutates the output table, acquisitions mint
// sequential ids into the booking tables, and metadata queries run over
// a static content schedule. It backs the reference binary and the
// package tests; a real device replaces it provider by provider.
type Memory struct {
	device *Device

	mu        sync.Mutex
	nextAcqID int
	nextAppID int
	schedule  []ContentItem
}

// NewMemory wires a memory backend into the device registry.
func NewMemory(device *Device) *Memory {
	m := &Memory{device: device, nextAcqID: 1, nextAppID: 1}
	device.Buttons = m
	device.Acquirer = m
	device.Metadata = m
	device.Installer = m
	device.Deleter = m
	device.Standby = func(bool) bool { return true }
	return m
}

// SetSchedule replaces the content schedule metadata queries run over.
func (m *Memory) SetSchedule(items []ContentItem) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.schedule = items
}

// Selector returns a selector bound to one output.
func (m *Memory) Selector(oid string) Selector {
	return &memorySelector{device: m.device, oid: oid}
}

type memorySelector struct {
	device *Device
	oid    string
}

func (s *memorySelector) apply(f func(out *Output)) error {
	out, ok := s.device.Output(s.oid)
	if !ok {
		return fmt.Errorf("no output %q", s.oid)
	}
	s.device.Mutate(func() { f(out) })
	return nil
}

func (s *memorySelector) SelectContent(sid, cid string) error {
	return s.SelectProgramme(sid, cid, nil)
}

func (s *memorySelector) SelectProgramme(sid, cid string, components []ComponentOverride) error {
	return s.apply(func(out *Output) {
		out.Programme = &ProgrammeSelection{SID: sid, CID: cid, Components: components}
		out.App = nil
		speed := 1.0
		out.Speed = &speed
	})
}

func (s *memorySelector) SelectApp(sid, cid string) error {
	return s.apply(func(out *Output) {
		out.App = &AppSelection{SID: sid, CID: cid}
		out.Programme = nil
		out.Speed = nil
		out.Playhead = nil
	})
}

// Press implements ButtonHandler by logging the press.
func (m *Memory) Press(code, output string) error {
	logging.Info().Str("button", code).Str("output", output).Msg("Button press")
	return nil
}

// Acquire implements Acquirer: it mints an id and records the booking.
func (m *Memory) Acquire(req AcquireRequest) (string, error) {
	m.mu.Lock()
	aid := fmt.Sprintf("%d", m.nextAcqID)
	m.nextAcqID++
	m.mu.Unlock()

	if req.SeriesID != "" {
		m.device.AddSeriesAcquisition(&SeriesAcquisition{AID: aid, SeriesID: req.SeriesID})
		return aid, nil
	}

	var priority *bool
	if req.Priority {
		priority = &req.Priority
	}
	m.device.AddContentAcquisition(&ContentAcquisition{
		AID:             aid,
		SID:             req.SID,
		CID:             req.CID,
		GlobalContentID: req.GlobalContentID,
		Interactive:     false,
		Priority:        priority,
	})
	return aid, nil
}

// Cancel implements Acquirer.
func (m *Memory) Cancel(aid string) error {
	m.device.RemoveAcquisition(aid)
	return nil
}

// Activate implements AppInstaller.
func (m *Memory) Activate(sid, cid string) (string, error) {
	m.mu.Lock()
	aid := fmt.Sprintf("app%d", m.nextAppID)
	m.nextAppID++
	m.mu.Unlock()

	m.device.AddApp(&App{AID: aid, SID: sid, CID: cid})
	return aid, nil
}

// Deactivate implements AppInstaller.
func (m *Memory) Deactivate(aid string) error {
	m.device.RemoveApp(aid)
	return nil
}

// Delete implements StorageDeleter; the registry removal happens in the
// device.
func (m *Memory) Delete(string) error {
	return nil
}

// --- metadata queries ---

func (m *Memory) items() []ContentItem {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]ContentItem(nil), m.schedule...)
}

// matchQuery applies the common filters of the query grammar.
func matchQuery(item ContentItem, q Query) bool {
	if len(q.SIDs) != 0 && !containsString(q.SIDs, item.SID) {
		return false
	}
	if len(q.CIDs) != 0 && !containsString(q.CIDs, item.CID) {
		return false
	}
	if len(q.SeriesIDs) != 0 && !containsString(q.SeriesIDs, item.SeriesID) {
		return false
	}
	if len(q.GCIDs) != 0 && !containsString(q.GCIDs, item.GlobalContentID) {
		return false
	}
	if len(q.GSIDs) != 0 && !containsString(q.GSIDs, item.GlobalSeriesID) {
		return false
	}
	if len(q.GAIDs) != 0 && !containsString(q.GAIDs, item.GlobalAppID) {
		return false
	}
	if len(q.Categories) != 0 && !intersects(q.Categories, item.Categories) {
		return false
	}

	if !q.Interactive && item.Interactive != nil && *item.Interactive {
		return false
	}
	if !q.AV && (item.Interactive == nil || !*item.Interactive) {
		return false
	}

	if item.Start != nil {
		end := item.Start
		if item.Duration != nil {
			t := item.Start.Add(time.Duration(*item.Duration) * 100 * time.Microsecond)
			end = &t
		}
		if end.Before(q.Start) {
			return false
		}
		if q.End != nil && item.Start.After(*q.End) {
			return false
		}
	}

	if len(q.Text) != 0 && !matchText(item, q.Text, q.Fields) {
		return false
	}
	return true
}

// matchText requires every word to occur, case-insensitively, in one of
// the selected fields.
func matchText(item ContentItem, words, fields []string) bool {
	var haystack strings.Builder
	for _, field := range fields {
		switch field {
		case "title":
			haystack.WriteString(item.Title)
		case "synopsis":
			haystack.WriteString(item.Synopsis)
		}
		haystack.WriteString("\n")
	}
	text := strings.ToLower(haystack.String())
	for _, word := range words {
		if !strings.Contains(text, strings.ToLower(word)) {
			return false
		}
	}
	return true
}

func containsString(haystack []string, needle string) bool {
	for _, s := range haystack {
		if s == needle {
			return true
		}
	}
	return false
}

func intersects(a, b []string) bool {
	for _, s := range a {
		if containsString(b, s) {
			return true
		}
	}
	return false
}

// page applies results/offset pagination and computes the more flag.
func page(matched []ContentItem, q Query) []ResultSet {
	if q.Offset >= len(matched) {
		return []ResultSet{{More: false}}
	}
	end := q.Offset + q.Results
	more := end < len(matched)
	if end > len(matched) {
		end = len(matched)
	}
	return []ResultSet{{Items: matched[q.Offset:end], More: more}}
}

func (m *Memory) query(q Query, extra func(ContentItem) bool) ([]ResultSet, error) {
	var matched []ContentItem
	for _, item := range m.items() {
		if extra != nil && !extra(item) {
			continue
		}
		if matchQuery(item, q) {
			matched = append(matched, item)
		}
	}
	return page(matched, q), nil
}

// GetOutput implements Metadata: what is on the given output now.
func (m *Memory) GetOutput(oid string, q Query) ([]ResultSet, error) {
	out, ok := m.device.Output(oid)
	if !ok {
		return []ResultSet{{More: false}}, nil
	}

	var sid, cid string
	m.device.View(func() {
		switch {
		case out.Programme != nil:
			sid, cid = out.Programme.SID, out.Programme.CID
		case out.App != nil:
			sid, cid = out.App.SID, out.App.CID
		}
	})
	if sid == "" && cid == "" {
		return []ResultSet{{More: false}}, nil
	}

	return m.query(q, func(item ContentItem) bool {
		return item.SID == sid && (cid == "" || item.CID == cid)
	})
}

// GetSources implements Metadata.
func (m *Memory) GetSources(sids []string, q Query) ([]ResultSet, error) {
	return m.query(q, func(item ContentItem) bool {
		return containsString(sids, item.SID)
	})
}

// GetText implements Metadata.
func (m *Memory) GetText(words []string, q Query) ([]ResultSet, error) {
	fields := q.Fields
	return m.query(q, func(item ContentItem) bool {
		return matchText(item, words, fields)
	})
}

// GetCategories implements Metadata.
func (m *Memory) GetCategories(categories []string, q Query) ([]ResultSet, error) {
	return m.query(q, func(item ContentItem) bool {
		return intersects(categories, item.Categories)
	})
}

// GetGCID implements Metadata.
func (m *Memory) GetGCID(id string, q Query) ([]ResultSet, error) {
	return m.query(q, func(item ContentItem) bool {
		return item.GlobalContentID == id
	})
}

// GetGSID implements Metadata.
func (m *Memory) GetGSID(id string, q Query) ([]ResultSet, error) {
	return m.query(q, func(item ContentItem) bool {
		return item.GlobalSeriesID == id
	})
}

// GetGAID implements Metadata.
func (m *Memory) GetGAID(id string, q Query) ([]ResultSet, error) {
	return m.query(q, func(item ContentItem) bool {
		return item.GlobalAppID == id
	})
}
