// UCServer - Universal Control Protocol Engine for Media Devices
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ucserver

package backend

import (
	"reflect"
	"testing"
	"time"
)

func intPtr(v int) *int { return &v }

func TestSourcesByLCN(t *testing.T) {
	d := NewDevice()
	d.SetSources(map[string]*Source{
		"a": {SID: "a", LCN: intPtr(7)},
		"b": {SID: "b"}, // no lcn sorts first as -1
		"c": {SID: "c", LCN: intPtr(2)},
	})

	got := d.SourcesByLCN([]string{"a", "b", "c"})
	var ids []string
	for _, s := range got {
		ids = append(ids, s.SID)
	}
	if !reflect.DeepEqual(ids, []string{"b", "c", "a"}) {
		t.Errorf("order = %v", ids)
	}
}

func TestSourceListOrdering(t *testing.T) {
	d := NewDevice()
	d.SetSourceLists(map[string]*SourceList{
		"vendor_b":  {ID: "vendor_b"},
		"uc_all":    {ID: "uc_all"},
		"uc_radio":  {ID: "uc_radio"},
		"vendor_a":  {ID: "vendor_a"},
	})

	var ids []string
	for _, l := range d.SourceLists() {
		ids = append(ids, l.ID)
	}
	if !reflect.DeepEqual(ids, []string{"uc_all", "uc_radio", "vendor_a", "vendor_b"}) {
		t.Errorf("list order = %v", ids)
	}
}

func TestSettersAnnounce(t *testing.T) {
	d := NewDevice()

	var announced []string
	d.SetNotifier(func(rref string) { announced = append(announced, rref) })

	d.SetSources(nil)
	d.SetSourceLists(nil)
	d.SetOutputs(nil)
	d.SetStorage(nil, nil, nil)
	d.SetFeedback("hi")

	want := []string{"uc/sources", "uc/source-lists", "uc/outputs", "uc/storage", "uc/feedback"}
	if !reflect.DeepEqual(announced, want) {
		t.Errorf("announced = %v, want %v", announced, want)
	}
}

func TestMainOutputDesignation(t *testing.T) {
	d := NewDevice()
	d.SetOutputs(map[string]*Output{
		"0": {OID: "0", Main: true},
		"1": {OID: "1"},
	})
	if d.MainOutputID() != "0" {
		t.Fatalf("main = %q", d.MainOutputID())
	}

	d.SetMainOutput("1")
	if d.MainOutputID() != "1" {
		t.Errorf("main after change = %q", d.MainOutputID())
	}
	if out, _ := d.Output("0"); out.Main {
		t.Error("old main output kept its flag")
	}
}

func TestLeafCategories(t *testing.T) {
	d := NewDevice()
	d.SetCategories(map[string]*Category{
		"root":     {ID: "root", Parent: "", Name: "Root", CategoryID: "root"},
		"mid":      {ID: "mid", Parent: "root", Name: "Mid"},
		"leaf-a":   {ID: "leaf-a", Parent: "mid", Name: "A"},
		"leaf-b":   {ID: "leaf-b", Parent: "root", Name: "B"},
		"orphaned": {ID: "orphaned", Parent: "elsewhere", Name: "X"},
	})

	got := d.LeafCategories("root")
	if !reflect.DeepEqual(got, []string{"leaf-a", "leaf-b"}) {
		t.Errorf("leaves = %v", got)
	}
}

func TestMemoryAcquirer(t *testing.T) {
	d := NewDevice()
	m := NewMemory(d)

	aid1, err := m.Acquire(AcquireRequest{GlobalContentID: "crid://x/1"})
	if err != nil {
		t.Fatal(err)
	}
	aid2, err := m.Acquire(AcquireRequest{SeriesID: "series1"})
	if err != nil {
		t.Fatal(err)
	}
	if aid1 == aid2 {
		t.Error("acquisition ids collide")
	}

	if _, ok := d.ContentAcquisition(aid1); !ok {
		t.Error("content booking not recorded")
	}
	if _, ok := d.SeriesAcquisition(aid2); !ok {
		t.Error("series booking not recorded")
	}

	if err := m.Cancel(aid1); err != nil {
		t.Fatal(err)
	}
	if _, ok := d.ContentAcquisition(aid1); ok {
		t.Error("cancelled booking survived")
	}
}

func TestMemoryTextSearch(t *testing.T) {
	d := NewDevice()
	m := NewMemory(d)

	m.SetSchedule([]ContentItem{
		{SID: "s1", CID: "a", Title: "Morning News"},
		{SID: "s1", CID: "b", Title: "Film Night", Synopsis: "A classic western"},
	})

	q := Query{Results: 10, Interactive: true, AV: true, Start: time.Now(), Fields: []string{"title", "synopsis"}}
	results, err := m.GetText([]string{"classic", "western"}, q)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 || len(results[0].Items) != 1 || results[0].Items[0].CID != "b" {
		t.Errorf("results = %+v", results)
	}

	// Restricting to the title field loses the synopsis match.
	q.Fields = []string{"title"}
	results, _ = m.GetText([]string{"classic"}, q)
	if len(results[0].Items) != 0 {
		t.Errorf("title-only search matched synopsis: %+v", results)
	}
}
