// UCServer - Universal Control Protocol Engine for Media Devices
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ucserver

package server

import (
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/tomtom215/ucserver/internal/auth"
	"github.com/tomtom215/ucserver/internal/backend"
	"github.com/tomtom215/ucserver/internal/notify"
)

const testUUID = "11111111-2222-3333-4444-555555555555"

var allOptions = []string{"power", "time", "events", "outputs", "source-lists", "sources", "search", "acquisitions", "storage", "credentials", "categories", "apps", "remote", "feedback", "images"}

// testFixture bundles a server with its collaborators.
type testFixture struct {
	srv    *Server
	store  *notify.Store
	device *backend.Device
	mem    *backend.Memory
}

// newFixture builds a server over the in-memory backend with a seeded
// registry. The notification counter starts at 1 so tests can reason
// about exact counter values.
func newFixture(t *testing.T, mutate func(*Options)) *testFixture {
	t.Helper()

	nidPath := filepath.Join(t.TempDir(), "notification_id.dat")
	if err := os.WriteFile(nidPath, []byte("0000000000000001\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	store := notify.Open(nidPath, 250*time.Millisecond)

	engine, err := auth.NewEngine(testUUID, nil)
	if err != nil {
		t.Fatal(err)
	}

	device := backend.NewDevice()
	mem := backend.NewMemory(device)
	seedDevice(device, mem)

	opts := Options{
		Name:      "Test UC Server",
		UUID:      testUUID,
		Resources: allOptions,
		CORS: CORSConfig{
			AllowOrigins: []string{"*"},
			AllowMethods: DefaultCORSMethods,
			MaxAge:       2700,
		},
	}
	if mutate != nil {
		mutate(&opts)
	}

	srv, err := New(opts, store, engine, device)
	if err != nil {
		t.Fatal(err)
	}
	return &testFixture{srv: srv, store: store, device: device, mem: mem}
}

func seedDevice(device *backend.Device, mem *backend.Memory) {
	lcn1, lcn3 := 1, 3
	live := true
	device.SetSources(map[string]*backend.Source{
		"s1": {SID: "s1", Name: "BBC One", Rref: "uc/sources/s1", LCN: &lcn1, Live: &live},
		"s3": {SID: "s3", Name: "BBC Three", Rref: "uc/sources/s3", LCN: &lcn3},
		"sx": {SID: "sx", Name: "Archive", Rref: "uc/sources/sx"},
	})
	device.SetSourceLists(map[string]*backend.SourceList{
		"uc_default": {ID: "uc_default", Name: "All Channels", Sources: []string{"s3", "s1", "sx"}},
		"favourites": {ID: "favourites", Name: "Favourites", Description: "User favourites", Sources: []string{"s1"}},
	})

	volume := 2500
	mute := false
	speed := 1.0
	length := 3600.0
	device.SetOutputs(map[string]*backend.Output{
		"0": {
			OID:       "0",
			Name:      "Main Display",
			Main:      true,
			Settings:  backend.Settings{Volume: &volume, Mute: &mute, Aspect: "16:9"},
			Programme: &backend.ProgrammeSelection{SID: "s1", CID: "prog1"},
			Speed:     &speed,
			Playhead: &backend.Playhead{
				Absolute: &backend.Position{Position: 10, Precision: 3, Timestamp: time.Now().UTC()},
				Length:   &length,
			},
			Selector: mem.Selector("0"),
		},
		"1": {OID: "1", Name: "Second Room", Parent: "0", Selector: mem.Selector("1")},
	})

	device.SetControls([]string{"uc:basic"})

	size := int64(1000000000)
	free := int64(400000000)
	device.SetStorage(map[string]*backend.StoredItem{
		"rec1": {CID: "rec1", SID: "s1", CreatedTime: "2011-06-01T12:00:00Z"},
		"rec2": {CID: "rec2", SID: "s1"},
	}, &size, &free)

	device.SetCategories(map[string]*backend.Category{
		"films":     {ID: "films", Parent: "", Name: "Films", CategoryID: "films"},
		"films.sci": {ID: "films.sci", Parent: "films", Name: "Science Fiction", CategoryID: "films.sci"},
	})

	start := time.Now().UTC().Add(time.Hour)
	duration := int64(18000000) // half an hour
	interactive := false
	mem.SetSchedule([]backend.ContentItem{
		{SID: "s1", CID: "prog1", Title: "Evening News", Synopsis: "The day's events", Start: &start, Duration: &duration, Interactive: &interactive},
		{SID: "s1", CID: "prog2", Title: "Late Film", Synopsis: "A science fiction classic", Categories: []string{"films.sci"}, GlobalSeriesID: "crid://example.com/series1"},
		{SID: "s3", CID: "prog3", Title: "News Extra", GlobalContentID: "crid://example.com/abc"},
	})
}

// do runs one request through the full dispatcher.
func (f *testFixture) do(method, target string, body string, header map[string]string) *httptest.ResponseRecorder {
	var r *http.Request
	if body == "" {
		r = httptest.NewRequest(method, target, nil)
	} else {
		r = httptest.NewRequest(method, target, strings.NewReader(body))
	}
	for k, v := range header {
		r.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	f.srv.ServeHTTP(w, r)
	return w
}

func TestGetBase(t *testing.T) {
	f := newFixture(t, nil)

	w := f.do(http.MethodGet, "/uc", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	body := w.Body.String()

	if !strings.Contains(body, `<ucserver name="Test UC Server" security-scheme="false" server-id="`+testUUID+`" version="`+Version+`"`) {
		t.Errorf("ucserver element wrong: %s", body)
	}
	for _, rref := range []string{"uc/power", "uc/events", "uc/search", "uc/apps"} {
		if !strings.Contains(body, `<resource rref="`+rref+`"/>`) {
			t.Errorf("missing resource %s in %s", rref, body)
		}
	}
	// images lives outside the uc tree and is not advertised.
	if strings.Contains(body, `rref="images"`) {
		t.Error("images advertised under uc")
	}

	// Byte-identical on repeat while the backend is unchanged.
	if again := f.do(http.MethodGet, "/uc", "", nil).Body.String(); again != body {
		t.Error("GET /uc not idempotent")
	}
}

func TestUnknownPathIs405(t *testing.T) {
	f := newFixture(t, nil)

	w := f.do(http.MethodGet, "/uc/nonexistent", "", nil)
	if w.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d, want 405", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/xml" {
		t.Errorf("error Content-Type = %q", ct)
	}
	if !strings.Contains(w.Body.String(), `<error code="405">`) {
		t.Errorf("error body = %s", w.Body.String())
	}
}

func TestUnknownMethodIs405(t *testing.T) {
	f := newFixture(t, nil)

	if w := f.do(http.MethodDelete, "/uc/time", "", nil); w.Code != http.StatusMethodNotAllowed {
		t.Errorf("DELETE /uc/time = %d, want 405", w.Code)
	}
}

func TestCrossdomainXML(t *testing.T) {
	f := newFixture(t, nil)

	w := f.do(http.MethodGet, "/crossdomain.xml", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "cross-domain-policy") {
		t.Errorf("body = %s", w.Body.String())
	}
}

func TestMethodOverrideAndHead(t *testing.T) {
	f := newFixture(t, nil)

	// A POST carrying method_=GET behaves as the GET.
	w := f.do(http.MethodPost, "/uc/time?method_=GET", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("override status = %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "<time ") {
		t.Errorf("override body = %s", w.Body.String())
	}

	// HEAD is a GET without the body.
	w = f.do(http.MethodHead, "/uc/time", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("HEAD status = %d", w.Code)
	}
	if w.Body.Len() != 0 {
		t.Error("HEAD response carried a body")
	}
	if w.Header().Get("Content-Length") == "" {
		t.Error("HEAD response missing Content-Length")
	}
}

func TestTimeResource(t *testing.T) {
	f := newFixture(t, nil)

	w := f.do(http.MethodGet, "/uc/time", "", nil)
	body := w.Body.String()
	if !strings.Contains(body, `resource="uc/time"`) {
		t.Errorf("resource echo wrong: %s", body)
	}
	if !strings.Contains(body, "rcvdtime=") || !strings.Contains(body, "replytime=") {
		t.Errorf("time attributes missing: %s", body)
	}
}

// Scenario: CORS preflight.
func TestPreflight(t *testing.T) {
	f := newFixture(t, nil)

	w := f.do(http.MethodOptions, "/uc/power", "", map[string]string{
		"Origin":                         "http://a.example",
		"Access-Control-Request-Headers": "X-UCClientAuthorisation",
	})

	if w.Code != http.StatusOK {
		t.Fatalf("preflight status = %d", w.Code)
	}
	checks := map[string]string{
		"Access-Control-Allow-Origin":  "http://a.example",
		"Access-Control-Allow-Methods": "GET, PUT, POST, DELETE",
		"Access-Control-Allow-Headers": "X-UCClientAuthorisation, Origin",
		"Access-Control-Max-Age":       "2700",
	}
	for header, want := range checks {
		if got := w.Header().Get(header); got != want {
			t.Errorf("%s = %q, want %q", header, got, want)
		}
	}
}

func TestPreflightDisallowedOrigin(t *testing.T) {
	f := newFixture(t, func(o *Options) {
		o.CORS.AllowOrigins = []string{"http://only.example"}
	})

	w := f.do(http.MethodOptions, "/uc/power", "", map[string]string{"Origin": "http://evil.example"})
	if w.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", w.Code)
	}
	if w.Header().Get("Access-Control-Allow-Origin") != "" {
		t.Error("403 preflight carried CORS headers")
	}
}

func TestCORSEchoOnResponses(t *testing.T) {
	f := newFixture(t, nil)

	w := f.do(http.MethodGet, "/uc", "", map[string]string{"Origin": "http://a.example"})
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "http://a.example" {
		t.Errorf("Allow-Origin = %q", got)
	}

	// Referer works around clients that omit Origin.
	w = f.do(http.MethodGet, "/uc", "", map[string]string{"Referer": "http://b.example"})
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "http://b.example" {
		t.Errorf("Referer fallback Allow-Origin = %q", got)
	}

	// No origin with a wildcard list echoes the wildcard.
	w = f.do(http.MethodGet, "/uc", "", nil)
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("wildcard Allow-Origin = %q", got)
	}
}

// Scenario: events long-poll woken by a notification.
func TestEventsLongPoll(t *testing.T) {
	f := newFixture(t, nil)

	type result struct {
		code int
		body string
	}
	done := make(chan result, 1)
	go func() {
		w := f.do(http.MethodGet, "/uc/events?since=0000000000000001", "", nil)
		done <- result{w.Code, w.Body.String()}
	}()

	// Let the poll park, then notify.
	for i := 0; i < 200 && f.store.Waiters() == 0; i++ {
		time.Sleep(time.Millisecond)
	}
	if f.store.Waiters() == 0 {
		t.Fatal("long-poll never parked")
	}
	f.srv.Notify("uc/power")

	r := <-done
	if r.code != http.StatusOK {
		t.Fatalf("status = %d", r.code)
	}
	want := `<response resource="uc/events?since=0000000000000001"><events notification-id="0000000000000002"><resource rref="uc/power"/></events></response>` + "\n"
	if r.body != want {
		t.Errorf("body = %q, want %q", r.body, want)
	}
}

func TestEventsTimeoutReturnsEmpty(t *testing.T) {
	f := newFixture(t, nil)

	w := f.do(http.MethodGet, "/uc/events?since=0000000000000001", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	want := `<response resource="uc/events?since=0000000000000001"><events notification-id="0000000000000001"/></response>` + "\n"
	if w.Body.String() != want {
		t.Errorf("body = %q, want %q", w.Body.String(), want)
	}
}

func TestEventsSinceValidation(t *testing.T) {
	f := newFixture(t, nil)

	if w := f.do(http.MethodGet, "/uc/events?since=zzzz", "", nil); w.Code != http.StatusBadRequest {
		t.Errorf("malformed since = %d, want 400", w.Code)
	}
	// Ahead of the counter under wrap-aware ordering.
	if w := f.do(http.MethodGet, "/uc/events?since=0000000000000005", "", nil); w.Code != http.StatusBadRequest {
		t.Errorf("future since = %d, want 400", w.Code)
	}
	// Absent since answers immediately with the current counter.
	w := f.do(http.MethodGet, "/uc/events", "", nil)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `notification-id="0000000000000001"`) {
		t.Errorf("absent since: %d %s", w.Code, w.Body.String())
	}
}

// Scenario: standby filters event reporting.
func TestStandbyEventFilter(t *testing.T) {
	f := newFixture(t, nil)

	if w := f.do(http.MethodPut, "/uc/power", `<power state="standby"/>`, nil); w.Code != http.StatusNoContent {
		t.Fatalf("standby PUT = %d", w.Code)
	}
	// The transition notified uc/power with nobody parked: counter still 1.
	since := "0000000000000001"

	type result struct{ body string }
	done := make(chan result, 1)
	go func() {
		w := f.do(http.MethodGet, "/uc/events?since="+since, "", nil)
		done <- result{w.Body.String()}
	}()
	for i := 0; i < 200 && f.store.Waiters() == 0; i++ {
		time.Sleep(time.Millisecond)
	}

	// uc/power was recorded at counter 1, not after it, so the poll
	// parks. An output change must not be reported in standby.
	f.srv.Notify("uc/outputs/0")
	r := <-done
	if strings.Contains(r.body, "uc/outputs/0") {
		t.Fatalf("standby poll leaked output change: %s", r.body)
	}

	// A power change is reported even in standby.
	done2 := make(chan string, 1)
	go func() {
		w := f.do(http.MethodGet, "/uc/events?since=0000000000000002", "", nil)
		done2 <- w.Body.String()
	}()
	for i := 0; i < 200 && f.store.Waiters() == 0; i++ {
		time.Sleep(time.Millisecond)
	}
	f.srv.Notify("uc/power")
	if body := <-done2; !strings.Contains(body, `<resource rref="uc/power"/>`) {
		t.Errorf("standby poll missed power change: %s", body)
	}
}

func TestPowerTransitions(t *testing.T) {
	f := newFixture(t, nil)

	w := f.do(http.MethodGet, "/uc/power", "", nil)
	if !strings.Contains(w.Body.String(), `<power state="on"/>`) {
		t.Errorf("initial state: %s", w.Body.String())
	}

	if w := f.do(http.MethodPut, "/uc/power", `<power state="standby"/>`, nil); w.Code != http.StatusNoContent {
		t.Fatalf("to standby = %d", w.Code)
	}
	w = f.do(http.MethodGet, "/uc/power", "", nil)
	if !strings.Contains(w.Body.String(), `<power state="standby"/>`) {
		t.Errorf("standby state: %s", w.Body.String())
	}

	// No-op transition succeeds without another notification.
	before := f.store.Current()
	if w := f.do(http.MethodPut, "/uc/power", `<power state="standby"/>`, nil); w.Code != http.StatusNoContent {
		t.Fatalf("no-op standby = %d", w.Code)
	}
	if f.store.Current() != before {
		t.Error("no-op transition moved the counter")
	}

	// off is refused.
	if w := f.do(http.MethodPut, "/uc/power", `<power state="off"/>`, nil); w.Code != http.StatusInternalServerError {
		t.Errorf("off = %d, want 500", w.Code)
	}

	// Refused transitions leave the state alone.
	f.device.Standby = func(bool) bool { return false }
	if w := f.do(http.MethodPut, "/uc/power", `<power state="on"/>`, nil); w.Code != http.StatusInternalServerError {
		t.Errorf("refused transition = %d, want 500", w.Code)
	}
}

// Scenario: a fresh UC-Auth challenge.
func TestAuthChallenge(t *testing.T) {
	f := newFixture(t, func(o *Options) { o.AuthRequired = true })

	w := f.do(http.MethodGet, "/uc/outputs/0", "", nil)
	if w.Code != http.StatusPaymentRequired {
		t.Fatalf("status = %d, want 402", w.Code)
	}
	header := w.Header().Get("X-UCClientAuthenticate")
	if !authChallengeRe.MatchString(header) {
		t.Errorf("challenge header = %q", header)
	}
	if !strings.Contains(header, `iteration="0000000a"`) || !strings.Contains(header, `stale="false"`) {
		t.Errorf("challenge parameters wrong: %q", header)
	}
	if w.Body.String() != auth.ChallengeBody {
		t.Error("challenge body mismatch")
	}

	// GET uc stays reachable without credentials.
	if w := f.do(http.MethodGet, "/uc", "", nil); w.Code != http.StatusOK {
		t.Errorf("GET /uc with auth on = %d", w.Code)
	}
}

// Scenario: pairing followed by a first authenticated request.
func TestPairingFlow(t *testing.T) {
	f := newFixture(t, func(o *Options) { o.AuthRequired = true })
	f.srv.SetSSS(0xA5)

	clientID := "550e8400-e29b-41d4-a716-446655440000"
	w := f.do(http.MethodPost, "/uc/security?client-id="+clientID+"&client-name=Tablet", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("pairing status = %d: %s", w.Code, w.Body.String())
	}
	body := w.Body.String()
	if !strings.Contains(body, `<response resource="uc/security?client-id=`+clientID+`&amp;client-name=Tablet">`) {
		t.Errorf("pairing resource echo wrong: %s", body)
	}

	m := securityKeyRe.FindStringSubmatch(body)
	if m == nil {
		t.Fatalf("no 128-hex key in %s", body)
	}

	// Undo the SSS XOR to recover the LSGS, then authenticate with it:
	// the pending client must be promoted.
	keyBytes, err := hex.DecodeString(m[1])
	if err != nil {
		t.Fatal(err)
	}
	for i := range keyBytes {
		keyBytes[i] ^= 0xA5
	}

	nonceW := f.do(http.MethodGet, "/uc/power", "", nil)
	nm := authChallengeRe.FindStringSubmatch(nonceW.Header().Get("X-UCClientAuthenticate"))
	if nm == nil {
		t.Fatal("no challenge before authenticated request")
	}

	header := buildAuthHeader(string(keyBytes), "GET", "/uc/power", nm[1], 1, clientID, "aa", nil, 10)
	w = f.do(http.MethodGet, "/uc/power", "", map[string]string{"X-UCClientAuthorisation": header})
	if w.Code != http.StatusOK {
		t.Fatalf("authenticated request = %d: %q", w.Code, w.Header().Get("X-UCClientAuthenticate"))
	}

	// Promotion surfaced the client in uc/credentials.
	w = f.do(http.MethodGet, "/uc/credentials", "", map[string]string{
		"X-UCClientAuthorisation": buildAuthHeaderFor(t, f, string(keyBytes), "GET", "/uc/credentials", clientID),
	})
	if w.Code != http.StatusOK {
		t.Fatalf("credentials status = %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `<client CID="`+clientID+`" name="Tablet"/>`) {
		t.Errorf("credentials body = %s", w.Body.String())
	}
}

func TestPairingWithoutSSSIs404(t *testing.T) {
	f := newFixture(t, func(o *Options) { o.AuthRequired = true })

	w := f.do(http.MethodPost, "/uc/security?client-id=550e8400-e29b-41d4-a716-446655440000&client-name=T", "", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

func TestPairingParameterValidation(t *testing.T) {
	f := newFixture(t, func(o *Options) { o.AuthRequired = true })
	f.srv.SetSSS(0x01)

	if w := f.do(http.MethodPost, "/uc/security?client-id=not-a-uuid&client-name=T", "", nil); w.Code != http.StatusBadRequest {
		t.Errorf("bad uuid = %d, want 400", w.Code)
	}
	if w := f.do(http.MethodPost, "/uc/security?client-name=T", "", nil); w.Code != http.StatusBadRequest {
		t.Errorf("missing client-id = %d, want 400", w.Code)
	}
}

// Scenario: acquisition by global content id.
func TestAcquisitionByGlobalContentID(t *testing.T) {
	f := newFixture(t, nil)

	w := f.do(http.MethodPost, "/uc/acquisitions?global-content-id=crid%3A//example.com/abc", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	want := `<response resource="uc/acquisitions/1"><content-acquisition acquisition-id="1" sid="" cid="" interactive="false" global-content-id="crid://example.com/abc"/></response>` + "\n"
	if w.Body.String() != want {
		t.Errorf("body = %q, want %q", w.Body.String(), want)
	}

	// The booking notified uc/acquisitions.
	changed := f.store.ChangedSince(0, false)
	found := false
	for _, rref := range changed {
		if rref == "uc/acquisitions" {
			found = true
		}
	}
	if !found {
		t.Errorf("no uc/acquisitions notification in %v", changed)
	}
}

func TestAcquisitionsAreNotDeduplicated(t *testing.T) {
	f := newFixture(t, nil)

	first := f.do(http.MethodPost, "/uc/acquisitions?sid=s1&content-id=prog1", "", nil)
	second := f.do(http.MethodPost, "/uc/acquisitions?sid=s1&content-id=prog1", "", nil)
	if first.Code != http.StatusOK || second.Code != http.StatusOK {
		t.Fatalf("statuses = %d, %d", first.Code, second.Code)
	}
	if first.Body.String() == second.Body.String() {
		t.Error("identical bookings returned the same aid")
	}
}

func TestAcquisitionParameterGroups(t *testing.T) {
	f := newFixture(t, nil)

	bad := []string{
		"/uc/acquisitions",
		"/uc/acquisitions?sid=s1",
		"/uc/acquisitions?sid=s1&content-id=c&series-id=x",
		"/uc/acquisitions?global-content-id=a&series-id=b",
	}
	for _, target := range bad {
		if w := f.do(http.MethodPost, target, "", nil); w.Code != http.StatusBadRequest {
			t.Errorf("POST %s = %d, want 400", target, w.Code)
		}
	}

	w := f.do(http.MethodPost, "/uc/acquisitions?series-id=series9", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("series booking = %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `<series-acquisition acquisition-id="1" series-id="series9"/>`) {
		t.Errorf("series body = %s", w.Body.String())
	}
}

func TestAcquisitionDelete(t *testing.T) {
	f := newFixture(t, nil)

	f.do(http.MethodPost, "/uc/acquisitions?series-id=series9", "", nil)
	if w := f.do(http.MethodDelete, "/uc/acquisitions/1", "", nil); w.Code != http.StatusNoContent {
		t.Errorf("delete = %d, want 204", w.Code)
	}
	if w := f.do(http.MethodGet, "/uc/acquisitions/1", "", nil); w.Code != http.StatusNotFound {
		t.Errorf("get after delete = %d, want 404", w.Code)
	}
}
