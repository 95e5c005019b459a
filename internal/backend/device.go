// UCServer - Universal Control Protocol Engine for Media Devices
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ucserver

package backend

import (
	"sort"
	"strings"
	"sync"
)

// Device is the registry of everything the resource tree renders. The
// device implementation populates it at startup and mutates it over the
// box's lifetime; every mutation made through the setters is announced on
// the notifier so uc/events clients observe it.
//
// All traversals resolve through ids rather than pointers; parent/child
// relationships between outputs and membership of sources in lists are
// stored as id references and looked up on read.
type Device struct {
	mu sync.RWMutex

	sources     map[string]*Source
	sourceLists map[string]*SourceList
	outputs     map[string]*Output
	mainOutput  string
	categories  map[string]*Category
	controls    []string

	contentAcqs map[string]*ContentAcquisition
	seriesAcqs  map[string]*SeriesAcquisition

	storage     map[string]*StoredItem
	storageSize *int64
	storageFree *int64

	apps map[string]*App

	feedback string
	files    map[string]FileEntry

	notify func(resource string)

	// Providers. Nil providers make the corresponding operations report
	// NotImplemented or ProcessingFailed per the protocol.
	Buttons   ButtonHandler
	Acquirer  Acquirer
	Metadata  Metadata
	Installer AppInstaller
	Deleter   StorageDeleter

	// Standby is consulted on power transitions; returning false refuses
	// the transition. A nil callback accepts every transition.
	Standby func(standby bool) bool
}

// NewDevice creates an empty device registry.
func NewDevice() *Device {
	return &Device{
		sources:     make(map[string]*Source),
		sourceLists: make(map[string]*SourceList),
		outputs:     make(map[string]*Output),
		categories:  make(map[string]*Category),
		contentAcqs: make(map[string]*ContentAcquisition),
		seriesAcqs:  make(map[string]*SeriesAcquisition),
		storage:     make(map[string]*StoredItem),
		apps:        make(map[string]*App),
		files:       make(map[string]FileEntry),
	}
}

// SetNotifier wires the notification store. Mutating setters announce on
// it; a nil notifier silences announcements.
func (d *Device) SetNotifier(f func(resource string)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.notify = f
}

// --- sources ---

// SetSources replaces the source table.
func (d *Device) SetSources(sources map[string]*Source) {
	d.mu.Lock()
	d.sources = sources
	notify := d.notify
	d.mu.Unlock()
	if notify != nil {
		notify("uc/sources")
	}
}

// Source returns the source with the given sid.
func (d *Device) Source(sid string) (*Source, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	s, ok := d.sources[sid]
	return s, ok
}

// HasSource reports whether a sid is known.
func (d *Device) HasSource(sid string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, ok := d.sources[sid]
	return ok
}

// SourcesByLCN returns the sources with the given ids ordered by lcn
// ascending; sources without an lcn sort first as -1.
func (d *Device) SourcesByLCN(sids []string) []*Source {
	d.mu.RLock()
	defer d.mu.RUnlock()

	out := make([]*Source, 0, len(sids))
	for _, sid := range sids {
		if s, ok := d.sources[sid]; ok {
			out = append(out, s)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return lcnOf(out[i]) < lcnOf(out[j]) })
	return out
}

func lcnOf(s *Source) int {
	if s.LCN == nil {
		return -1
	}
	return *s.LCN
}

// --- source lists ---

// SetSourceLists replaces the source-list table.
func (d *Device) SetSourceLists(lists map[string]*SourceList) {
	d.mu.Lock()
	d.sourceLists = lists
	notify := d.notify
	d.mu.Unlock()
	if notify != nil {
		notify("uc/source-lists")
	}
}

// SourceList returns the list with the given id.
func (d *Device) SourceList(id string) (*SourceList, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	l, ok := d.sourceLists[id]
	return l, ok
}

// SourceLists returns every list, uc_* lists first, each group sorted by
// id.
func (d *Device) SourceLists() []*SourceList {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var ucLists, vendor []*SourceList
	for _, l := range d.sourceLists {
		if strings.HasPrefix(l.ID, "uc") {
			ucLists = append(ucLists, l)
		} else {
			vendor = append(vendor, l)
		}
	}
	byID := func(ls []*SourceList) {
		sort.Slice(ls, func(i, j int) bool { return ls[i].ID < ls[j].ID })
	}
	byID(ucLists)
	byID(vendor)
	return append(ucLists, vendor...)
}

// --- outputs ---

// SetOutputs replaces the output table and designates the main output.
func (d *Device) SetOutputs(outputs map[string]*Output) {
	d.mu.Lock()
	d.outputs = outputs
	d.mainOutput = ""
	for oid, out := range outputs {
		if out.Main {
			d.mainOutput = oid
		}
	}
	notify := d.notify
	d.mu.Unlock()
	if notify != nil {
		notify("uc/outputs")
	}
}

// SetMainOutput designates the main output, clearing the flag elsewhere.
func (d *Device) SetMainOutput(oid string) {
	d.mu.Lock()
	for id, out := range d.outputs {
		out.Main = id == oid
	}
	d.mainOutput = oid
	notify := d.notify
	d.mu.Unlock()
	if notify != nil {
		notify("uc/outputs")
	}
}

// MainOutputID returns the id of the designated main output.
func (d *Device) MainOutputID() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.mainOutput
}

// Output returns the output with the given oid.
func (d *Device) Output(oid string) (*Output, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	o, ok := d.outputs[oid]
	return o, ok
}

// OutputIDs returns all output ids sorted.
func (d *Device) OutputIDs() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()

	out := make([]string, 0, len(d.outputs))
	for oid := range d.outputs {
		out = append(out, oid)
	}
	sort.Strings(out)
	return out
}

// OutputChildren returns the ids of outputs whose parent is oid, sorted.
func (d *Device) OutputChildren(oid string) []string {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var out []string
	for id, o := range d.outputs {
		if o.Parent == oid {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out
}

// TopLevelOutputs returns the ids of outputs without a parent, sorted.
func (d *Device) TopLevelOutputs() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var out []string
	for id, o := range d.outputs {
		if o.Parent == "" {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out
}

// Mutate runs f with the write lock held. Handlers use it for read-modify
// -write updates of output state.
func (d *Device) Mutate(f func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	f()
}

// View runs f with the read lock held.
func (d *Device) View(f func()) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	f()
}

// --- categories and controls ---

// SetCategories replaces the category hierarchy.
func (d *Device) SetCategories(categories map[string]*Category) {
	d.mu.Lock()
	d.categories = categories
	notify := d.notify
	d.mu.Unlock()
	if notify != nil {
		notify("uc/categories")
	}
}

// Category returns the category node with the given internal id.
func (d *Device) Category(id string) (*Category, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	c, ok := d.categories[id]
	return c, ok
}

// CategoryChildren returns the ids of categories whose parent is id,
// sorted.
func (d *Device) CategoryChildren(id string) []string {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var out []string
	for cid, c := range d.categories {
		if c.Parent == id {
			out = append(out, cid)
		}
	}
	sort.Strings(out)
	return out
}

// HasAPICategory reports whether id names a category addressable through
// the API.
func (d *Device) HasAPICategory(id string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	c, ok := d.categories[id]
	return ok && c.CategoryID != ""
}

// LeafCategories expands a category to the set of leaf descendants used
// for metadata queries, sorted by id.
func (d *Device) LeafCategories(id string) []string {
	children := d.CategoryChildren(id)
	if len(children) == 0 {
		return []string{id}
	}
	var out []string
	for _, child := range children {
		out = append(out, d.LeafCategories(child)...)
	}
	sort.Strings(out)
	return out
}

// SetControls replaces the list of control profiles the box answers to.
func (d *Device) SetControls(controls []string) {
	d.mu.Lock()
	d.controls = controls
	notify := d.notify
	d.mu.Unlock()
	if notify != nil {
		notify("uc/remote")
	}
}

// Controls returns the control profiles.
func (d *Device) Controls() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return append([]string(nil), d.controls...)
}

// --- acquisitions ---

// SetAcquisitions replaces both acquisition tables.
func (d *Device) SetAcquisitions(content map[string]*ContentAcquisition, series map[string]*SeriesAcquisition) {
	d.mu.Lock()
	d.contentAcqs = content
	d.seriesAcqs = series
	notify := d.notify
	d.mu.Unlock()
	if notify != nil {
		notify("uc/acquisitions")
	}
}

// ContentAcquisition returns the content acquisition with the given aid.
func (d *Device) ContentAcquisition(aid string) (*ContentAcquisition, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	a, ok := d.contentAcqs[aid]
	return a, ok
}

// SeriesAcquisition returns the series acquisition with the given aid.
func (d *Device) SeriesAcquisition(aid string) (*SeriesAcquisition, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	a, ok := d.seriesAcqs[aid]
	return a, ok
}

// ContentAcquisitions returns all content acquisitions sorted by aid.
func (d *Device) ContentAcquisitions() []*ContentAcquisition {
	d.mu.RLock()
	defer d.mu.RUnlock()

	out := make([]*ContentAcquisition, 0, len(d.contentAcqs))
	for _, a := range d.contentAcqs {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AID < out[j].AID })
	return out
}

// SeriesAcquisitions returns all series acquisitions sorted by aid.
func (d *Device) SeriesAcquisitions() []*SeriesAcquisition {
	d.mu.RLock()
	defer d.mu.RUnlock()

	out := make([]*SeriesAcquisition, 0, len(d.seriesAcqs))
	for _, a := range d.seriesAcqs {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AID < out[j].AID })
	return out
}

// AddContentAcquisition records a booking made by the acquirer.
func (d *Device) AddContentAcquisition(a *ContentAcquisition) {
	d.mu.Lock()
	d.contentAcqs[a.AID] = a
	notify := d.notify
	d.mu.Unlock()
	if notify != nil {
		notify("uc/acquisitions")
	}
}

// AddSeriesAcquisition records a series booking made by the acquirer.
func (d *Device) AddSeriesAcquisition(a *SeriesAcquisition) {
	d.mu.Lock()
	d.seriesAcqs[a.AID] = a
	notify := d.notify
	d.mu.Unlock()
	if notify != nil {
		notify("uc/acquisitions")
	}
}

// RemoveAcquisition drops an acquisition from either table.
func (d *Device) RemoveAcquisition(aid string) {
	d.mu.Lock()
	delete(d.contentAcqs, aid)
	delete(d.seriesAcqs, aid)
	notify := d.notify
	d.mu.Unlock()
	if notify != nil {
		notify("uc/acquisitions")
	}
}

// --- storage ---

// SetStorage replaces the stored-item table and the size counters.
func (d *Device) SetStorage(items map[string]*StoredItem, size, free *int64) {
	d.mu.Lock()
	d.storage = items
	d.storageSize = size
	d.storageFree = free
	notify := d.notify
	d.mu.Unlock()
	if notify != nil {
		notify("uc/storage")
	}
}

// StorageCounters returns the total and free byte counters.
func (d *Device) StorageCounters() (size, free *int64) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.storageSize, d.storageFree
}

// StoredItem returns the item with the given cid.
func (d *Device) StoredItem(cid string) (*StoredItem, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	item, ok := d.storage[cid]
	return item, ok
}

// StoredItems returns every item sorted by (sid, cid).
func (d *Device) StoredItems() []*StoredItem {
	d.mu.RLock()
	defer d.mu.RUnlock()

	out := make([]*StoredItem, 0, len(d.storage))
	for _, item := range d.storage {
		out = append(out, item)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].SID != out[j].SID {
			return out[i].SID < out[j].SID
		}
		return out[i].CID < out[j].CID
	})
	return out
}

// DeleteStored removes an item through the storage deleter and drops it
// from the table. The deleter's error propagates untouched.
func (d *Device) DeleteStored(cid string) error {
	d.mu.Lock()
	deleter := d.Deleter
	d.mu.Unlock()

	if deleter != nil {
		if err := deleter.Delete(cid); err != nil {
			return err
		}
	}

	d.mu.Lock()
	delete(d.storage, cid)
	notify := d.notify
	d.mu.Unlock()
	if notify != nil {
		notify("uc/storage")
	}
	return nil
}

// --- apps ---

// SetApps replaces the activated-app table.
func (d *Device) SetApps(apps map[string]*App) {
	d.mu.Lock()
	d.apps = apps
	notify := d.notify
	d.mu.Unlock()
	if notify != nil {
		notify("uc/apps")
	}
}

// App returns the app with the given aid.
func (d *Device) App(aid string) (*App, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	a, ok := d.apps[aid]
	return a, ok
}

// AppsSorted returns every app sorted by aid.
func (d *Device) AppsSorted() []*App {
	d.mu.RLock()
	defer d.mu.RUnlock()

	out := make([]*App, 0, len(d.apps))
	for _, a := range d.apps {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AID < out[j].AID })
	return out
}

// AddApp records an activated app.
func (d *Device) AddApp(a *App) {
	d.mu.Lock()
	d.apps[a.AID] = a
	notify := d.notify
	d.mu.Unlock()
	if notify != nil {
		notify("uc/apps")
	}
}

// RemoveApp drops an app.
func (d *Device) RemoveApp(aid string) {
	d.mu.Lock()
	delete(d.apps, aid)
	notify := d.notify
	d.mu.Unlock()
	if notify != nil {
		notify("uc/apps")
	}
}

// --- feedback and files ---

// SetFeedback replaces the feedback string.
func (d *Device) SetFeedback(feedback string) {
	d.mu.Lock()
	d.feedback = feedback
	notify := d.notify
	d.mu.Unlock()
	if notify != nil {
		notify("uc/feedback")
	}
}

// Feedback returns the feedback string.
func (d *Device) Feedback() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.feedback
}

// SetFiles replaces the images file table. Keys are slash-joined path
// tuples such as "images/channels/one". The images tree lies outside uc,
// so this setter announces nothing.
func (d *Device) SetFiles(files map[string]FileEntry) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.files = files
}

// File looks up an images path.
func (d *Device) File(path string) (FileEntry, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	f, ok := d.files[path]
	return f, ok
}
