// UCServer - Universal Control Protocol Engine for Media Devices
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ucserver

package server

import (
	"crypto/sha1" //nolint:gosec // SHA-1 is mandated by the UC wire protocol
	"encoding/hex"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"testing"

	"golang.org/x/crypto/pbkdf2"

	"github.com/tomtom215/ucserver/internal/backend"
)

var (
	authChallengeRe = regexp.MustCompile(`Authenticate nonce="([0-9a-f]{56})", iteration="([0-9a-f]{8})", stale="(true|false)"`)
	securityKeyRe   = regexp.MustCompile(`<security key="([0-9a-f]{128})"/>`)
)

// buildAuthHeader assembles a valid X-UCClientAuthorisation header from
// scratch, the way a paired client would.
func buildAuthHeader(key, method, uri, nonce string, nc uint64, clientID, cnonce string, body []byte, iteration int) string {
	salt := fmt.Sprintf("%s:%s:%s:%s:%08x:%s", method, uri, nonce, body, nc, cnonce)
	digest := hex.EncodeToString(pbkdf2.Key([]byte(key), []byte(salt), iteration, sha1.Size, sha1.New))
	return fmt.Sprintf(`Authenticate nonce="%s", iteration="%08x", uri="%s", digest="%s", nc="%08x", client-id="%s", cnonce="%s"`,
		nonce, iteration, uri, digest, nc, clientID, cnonce)
}

// buildAuthHeaderFor provokes a fresh challenge on the target and builds
// the matching credentials.
func buildAuthHeaderFor(t *testing.T, f *testFixture, key, method, uri, clientID string) string {
	t.Helper()

	w := f.do(method, uri, "", nil)
	m := authChallengeRe.FindStringSubmatch(w.Header().Get("X-UCClientAuthenticate"))
	if m == nil {
		t.Fatalf("no challenge on %s %s", method, uri)
	}
	return buildAuthHeader(key, method, uri, m[1], 1, clientID, "bb", nil, 10)
}

func TestOutputsNesting(t *testing.T) {
	f := newFixture(t, nil)

	w := f.do(http.MethodGet, "/uc/outputs", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	want := `<outputs><output name="Main Display" oid="0" main="true"><output name="Second Room" oid="1"/></output></outputs>`
	if !strings.Contains(w.Body.String(), want) {
		t.Errorf("body = %s", w.Body.String())
	}
}

func TestOutputRepresentation(t *testing.T) {
	f := newFixture(t, nil)

	w := f.do(http.MethodGet, "/uc/outputs/0", "", nil)
	body := w.Body.String()

	if !strings.Contains(body, `<settings volume="0.2500" mute="false" aspect="16:9"/>`) {
		t.Errorf("settings wrong: %s", body)
	}
	if !strings.Contains(body, `<programme sid="s1" cid="prog1"/>`) {
		t.Errorf("programme wrong: %s", body)
	}
	if !strings.Contains(body, `<playback speed="1.00"/>`) {
		t.Errorf("playback wrong: %s", body)
	}

	// The main alias resolves to the designated output.
	alias := f.do(http.MethodGet, "/uc/outputs/main", "", nil)
	if !strings.Contains(alias.Body.String(), `resource="uc/outputs/0"`) {
		t.Errorf("main alias body = %s", alias.Body.String())
	}

	if w := f.do(http.MethodGet, "/uc/outputs/99", "", nil); w.Code != http.StatusNotFound {
		t.Errorf("unknown output = %d, want 404", w.Code)
	}
	if w := f.do(http.MethodGet, "/uc/outputs/bad|id", "", nil); w.Code != http.StatusBadRequest {
		t.Errorf("invalid id characters = %d, want 400", w.Code)
	}
}

func TestOutputSelection(t *testing.T) {
	f := newFixture(t, nil)

	// Query form.
	if w := f.do(http.MethodPost, "/uc/outputs/0?sid=s3&cid=prog3", "", nil); w.Code != http.StatusNoContent {
		t.Fatalf("query select = %d", w.Code)
	}
	w := f.do(http.MethodGet, "/uc/outputs/0", "", nil)
	if !strings.Contains(w.Body.String(), `<programme sid="s3" cid="prog3"/>`) {
		t.Errorf("selection not applied: %s", w.Body.String())
	}

	// XML body form with component overrides.
	body := `<programme sid="s1" cid="prog1"><component-override mcid="a1" type="audio"/></programme>`
	if w := f.do(http.MethodPost, "/uc/outputs/0", body, nil); w.Code != http.StatusNoContent {
		t.Fatalf("body select = %d", w.Code)
	}

	// App selection flips the mutually exclusive state.
	if w := f.do(http.MethodPost, "/uc/outputs/0", `<app sid="s1" cid="game1"/>`, nil); w.Code != http.StatusNoContent {
		t.Fatalf("app select = %d", w.Code)
	}
	w = f.do(http.MethodGet, "/uc/outputs/0", "", nil)
	if strings.Contains(w.Body.String(), "<programme") {
		t.Errorf("programme survived app selection: %s", w.Body.String())
	}

	// Unknown source, both selections, and empty input are rejected.
	if w := f.do(http.MethodPost, "/uc/outputs/0?sid=unknown", "", nil); w.Code != http.StatusNotFound {
		t.Errorf("unknown sid = %d, want 404", w.Code)
	}
	both := `<sel><programme sid="s1" cid="c"/><app sid="s1" cid="c"/></sel>`
	if w := f.do(http.MethodPost, "/uc/outputs/0", both, nil); w.Code != http.StatusBadRequest {
		t.Errorf("both selections = %d, want 400", w.Code)
	}
	if w := f.do(http.MethodPost, "/uc/outputs/0", "", nil); w.Code != http.StatusBadRequest {
		t.Errorf("empty selection = %d, want 400", w.Code)
	}
}

func TestSettingsPut(t *testing.T) {
	f := newFixture(t, nil)

	if w := f.do(http.MethodPut, "/uc/outputs/0/settings", `<settings volume="0.5000" mute="true"/>`, nil); w.Code != http.StatusNoContent {
		t.Fatalf("put = %d", w.Code)
	}
	w := f.do(http.MethodGet, "/uc/outputs/0/settings", "", nil)
	if !strings.Contains(w.Body.String(), `volume="0.5000" mute="true"`) {
		t.Errorf("settings not applied: %s", w.Body.String())
	}

	// A no-op write does not notify.
	before := f.store.ChangedSince(0, false)
	if w := f.do(http.MethodPut, "/uc/outputs/0/settings", `<settings volume="0.5000" mute="true"/>`, nil); w.Code != http.StatusNoContent {
		t.Fatalf("no-op put = %d", w.Code)
	}
	after := f.store.ChangedSince(0, false)
	if len(after) != len(before) {
		t.Errorf("no-op settings write notified: %v -> %v", before, after)
	}

	// Range and syntax validation.
	if w := f.do(http.MethodPut, "/uc/outputs/0/settings", `<settings volume="1.5000"/>`, nil); w.Code != http.StatusBadRequest {
		t.Errorf("volume out of range = %d, want 400", w.Code)
	}
	if w := f.do(http.MethodPut, "/uc/outputs/0/settings", `<settings mute="maybe"/>`, nil); w.Code != http.StatusBadRequest {
		t.Errorf("bad mute = %d, want 400", w.Code)
	}
	if w := f.do(http.MethodPut, "/uc/outputs/0/settings", `<settings aspect="2:1"/>`, nil); w.Code != http.StatusBadRequest {
		t.Errorf("bad aspect = %d, want 400", w.Code)
	}
}

func TestPlayhead(t *testing.T) {
	f := newFixture(t, nil)

	w := f.do(http.MethodGet, "/uc/outputs/0/playhead", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("get = %d", w.Code)
	}
	body := w.Body.String()
	if !strings.Contains(body, `length="3600.000"`) {
		t.Errorf("length missing: %s", body)
	}
	if !strings.Contains(body, "<aposition position=") {
		t.Errorf("aposition missing: %s", body)
	}

	// Seek by absolute position.
	if w := f.do(http.MethodPut, "/uc/outputs/0/playhead", `<playhead><aposition position="120.5"/></playhead>`, nil); w.Code != http.StatusNoContent {
		t.Fatalf("seek = %d", w.Code)
	}

	// Speed-only update.
	if w := f.do(http.MethodPut, "/uc/outputs/0/playhead", `<playhead><playback speed="2.0"/></playhead>`, nil); w.Code != http.StatusNoContent {
		t.Fatalf("speed update = %d", w.Code)
	}
	w = f.do(http.MethodGet, "/uc/outputs/0/playhead", "", nil)
	if !strings.Contains(w.Body.String(), `<playback speed="2.00"/>`) {
		t.Errorf("speed not applied: %s", w.Body.String())
	}

	// Outputs without a playhead answer 400.
	if w := f.do(http.MethodGet, "/uc/outputs/1/playhead", "", nil); w.Code != http.StatusBadRequest {
		t.Errorf("no playhead = %d, want 400", w.Code)
	}
}

func TestSourcesAndLists(t *testing.T) {
	f := newFixture(t, nil)

	if w := f.do(http.MethodGet, "/uc/sources", "", nil); w.Code != http.StatusNoContent {
		t.Errorf("GET uc/sources = %d, want 204", w.Code)
	}

	w := f.do(http.MethodGet, "/uc/sources/s1", "", nil)
	body := w.Body.String()
	if !strings.Contains(body, `resource="uc/sources/s1"`) {
		t.Errorf("source rref echo wrong: %s", body)
	}
	if !strings.Contains(body, `<source sid="s1" name="BBC One" live="true" lcn="001"/>`) {
		t.Errorf("source body = %s", body)
	}

	// uc_* lists sort ahead of vendor lists.
	w = f.do(http.MethodGet, "/uc/source-lists", "", nil)
	body = w.Body.String()
	ucIdx := strings.Index(body, `list-id="uc_default"`)
	favIdx := strings.Index(body, `list-id="favourites"`)
	if ucIdx < 0 || favIdx < 0 || ucIdx > favIdx {
		t.Errorf("list ordering wrong: %s", body)
	}

	// Within a list sources order by lcn; the lcn-less source sorts
	// first as -1.
	w = f.do(http.MethodGet, "/uc/source-lists/uc_default", "", nil)
	body = w.Body.String()
	posX := strings.Index(body, `sid="sx"`)
	pos1 := strings.Index(body, `sid="s1"`)
	pos3 := strings.Index(body, `sid="s3"`)
	if !(posX < pos1 && pos1 < pos3) {
		t.Errorf("lcn ordering wrong: %s", body)
	}

	if w := f.do(http.MethodGet, "/uc/source-lists/none", "", nil); w.Code != http.StatusNotFound {
		t.Errorf("unknown list = %d, want 404", w.Code)
	}
}

func TestSearchText(t *testing.T) {
	f := newFixture(t, nil)

	w := f.do(http.MethodGet, "/uc/search/text/science+fiction?results=5", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	body := w.Body.String()
	if !strings.Contains(body, `cid="prog2"`) {
		t.Errorf("text match missing: %s", body)
	}
	if strings.Contains(body, `cid="prog1"`) {
		t.Errorf("unmatched item returned: %s", body)
	}
}

func TestSearchPaginationAndMore(t *testing.T) {
	f := newFixture(t, nil)

	w := f.do(http.MethodGet, "/uc/search/sources/s1?results=1&offset=0", "", nil)
	body := w.Body.String()
	if strings.Count(body, "<content ") != 1 {
		t.Errorf("results=1 returned more than one item: %s", body)
	}
	if !strings.Contains(body, `more="true"`) {
		t.Errorf("more flag wrong: %s", body)
	}

	w = f.do(http.MethodGet, "/uc/search/sources/s1?results=5&offset=1", "", nil)
	body = w.Body.String()
	if !strings.Contains(body, `more="false"`) {
		t.Errorf("offset page more flag wrong: %s", body)
	}
}

func TestSearchValidation(t *testing.T) {
	f := newFixture(t, nil)

	cases := []struct {
		target string
		want   int
	}{
		{"/uc/search", http.StatusNoContent},
		{"/uc/search/text", http.StatusNoContent},
		{"/uc/search/sources/s1?text=x&days=2&end=2026-08-02T00:00:00Z", http.StatusBadRequest},
		{"/uc/search/sources/s1?results=0", http.StatusBadRequest},
		{"/uc/search/sources/s1?field=author", http.StatusBadRequest},
		// sid is not accepted on the sources search.
		{"/uc/search/sources/s1?sid=s1", http.StatusBadRequest},
		{"/uc/search/sources/nosuch", http.StatusNotFound},
		{"/uc/search/outputs/main", http.StatusOK},
		{"/uc/search/outputs/99", http.StatusNotFound},
		{"/uc/search/categories/films", http.StatusOK},
		{"/uc/search/categories/unknown", http.StatusNotFound},
	}
	for _, tc := range cases {
		if w := f.do(http.MethodGet, tc.target, "", nil); w.Code != tc.want {
			t.Errorf("GET %s = %d, want %d", tc.target, w.Code, tc.want)
		}
	}
}

func TestSearchGlobalIDs(t *testing.T) {
	f := newFixture(t, nil)

	w := f.do(http.MethodGet, "/uc/search/global-content-id/crid%3A%2F%2Fexample.com%2Fabc", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("gcid search = %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `cid="prog3"`) {
		t.Errorf("gcid match missing: %s", w.Body.String())
	}

	w = f.do(http.MethodGet, "/uc/search/global-series-id/crid%3A%2F%2Fexample.com%2Fseries1", "", nil)
	if !strings.Contains(w.Body.String(), `cid="prog2"`) {
		t.Errorf("gsid match missing: %s", w.Body.String())
	}
}

func TestRemote(t *testing.T) {
	f := newFixture(t, nil)

	w := f.do(http.MethodGet, "/uc/remote", "", nil)
	if !strings.Contains(w.Body.String(), `<controls profile="uc:basic"/>`) {
		t.Errorf("controls missing: %s", w.Body.String())
	}

	if w := f.do(http.MethodPost, "/uc/remote?button=uc:basic:up", "", nil); w.Code != http.StatusNoContent {
		t.Errorf("valid button = %d", w.Code)
	}
	if w := f.do(http.MethodPost, "/uc/remote?button=::up", "", nil); w.Code != http.StatusNoContent {
		t.Errorf("default-profile button = %d", w.Code)
	}
	if w := f.do(http.MethodPost, "/uc/remote?button=no-colons", "", nil); w.Code != http.StatusBadRequest {
		t.Errorf("bad button = %d, want 400", w.Code)
	}
	if w := f.do(http.MethodPost, "/uc/remote", "", nil); w.Code != http.StatusBadRequest {
		t.Errorf("missing button = %d, want 400", w.Code)
	}

	f.device.Buttons = nil
	if w := f.do(http.MethodPost, "/uc/remote?button=uc:basic:up", "", nil); w.Code != http.StatusInternalServerError {
		t.Errorf("no handler = %d, want 500", w.Code)
	}
}

func TestStorage(t *testing.T) {
	f := newFixture(t, nil)

	w := f.do(http.MethodGet, "/uc/storage", "", nil)
	body := w.Body.String()
	if !strings.Contains(body, `size="1000000000" free="400000000"`) {
		t.Errorf("counters wrong: %s", body)
	}
	// Items sort by (sid, cid).
	if strings.Index(body, `cid="rec1"`) > strings.Index(body, `cid="rec2"`) {
		t.Errorf("item ordering wrong: %s", body)
	}

	if w := f.do(http.MethodDelete, "/uc/storage/rec1", "", nil); w.Code != http.StatusNoContent {
		t.Fatalf("delete = %d", w.Code)
	}
	if w := f.do(http.MethodGet, "/uc/storage/rec1", "", nil); w.Code != http.StatusNotFound {
		t.Errorf("get after delete = %d, want 404", w.Code)
	}
	if w := f.do(http.MethodDelete, "/uc/storage/rec1", "", nil); w.Code != http.StatusNotFound {
		t.Errorf("double delete = %d, want 404", w.Code)
	}
}

func TestStorageDeleteConfirmation(t *testing.T) {
	f := newFixture(t, func(o *Options) { o.ConfirmStorageDelete = true })

	// First attempt is challenged.
	w := f.do(http.MethodDelete, "/uc/storage/rec1", "", nil)
	if w.Code != http.StatusPaymentRequired {
		t.Fatalf("unconfirmed delete = %d, want 402", w.Code)
	}
	m := regexp.MustCompile(`Confirm nonce="([0-9a-f]{56})"`).FindStringSubmatch(w.Header().Get("X-UCRestriction-Challenge"))
	if m == nil {
		t.Fatalf("no confirmation challenge: %q", w.Header().Get("X-UCRestriction-Challenge"))
	}

	// Confirming completes the deletion.
	w = f.do(http.MethodDelete, "/uc/storage/rec1", "", map[string]string{
		"X-UCRestriction-Credentials": fmt.Sprintf(`Confirm nonce="%s"`, m[1]),
	})
	if w.Code != http.StatusNoContent {
		t.Fatalf("confirmed delete = %d", w.Code)
	}
}

func TestAppsAndExtension(t *testing.T) {
	f := newFixture(t, nil)

	w := f.do(http.MethodPost, "/uc/apps?sid=s1&cid=game1", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("activate = %d: %s", w.Code, w.Body.String())
	}
	if !strings.Contains(w.Body.String(), `<app sid="s1" id="game1" global-app-id="app1" remote-enabled="false"/>`) {
		t.Errorf("activation body = %s", w.Body.String())
	}

	// Attach an extension and drive the ext subtree through it.
	ext := &recordingExtension{status: 200, body: []byte("hello from app")}
	app, _ := f.device.App("app1")
	app.Extension = ext

	w = f.do(http.MethodPost, "/uc/apps/app1/ext/game/state?level=2", "payload", map[string]string{
		"Authorization":           "Digest should-not-cross",
		"X-UCClientAuthorisation": "should-not-cross-either",
		"X-Custom":                "passes",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("ext status = %d", w.Code)
	}
	if w.Body.String() != "hello from app" {
		t.Errorf("ext body = %q", w.Body.String())
	}
	if got := strings.Join(ext.path, "/"); got != "game/state" {
		t.Errorf("ext path = %q", got)
	}
	if ext.verb != http.MethodPost {
		t.Errorf("ext verb = %q", ext.verb)
	}
	if ext.params.Get("level") != "2" {
		t.Errorf("ext params = %v", ext.params)
	}
	if string(ext.body) != "payload" {
		t.Errorf("ext request body = %q", ext.body)
	}
	for _, header := range []string{"Authorization", "X-Ucclientauthorisation", "X-UCClientAuthorisation"} {
		if _, present := ext.headers[header]; present {
			t.Errorf("credential header %s leaked into the extension", header)
		}
	}
	if _, present := ext.headers["X-Custom"]; !present {
		t.Error("ordinary header stripped")
	}

	// Extensions answering with auth statuses are downgraded to 500.
	ext.status = 402
	if w := f.do(http.MethodGet, "/uc/apps/app1/ext/game", "", nil); w.Code != http.StatusInternalServerError {
		t.Errorf("402 from extension = %d, want 500", w.Code)
	}
	ext.status = 200
	ext.headers2 = map[string]string{"X-UCClientAuthenticate": "nope"}
	if w := f.do(http.MethodGet, "/uc/apps/app1/ext/game", "", nil); w.Code != http.StatusInternalServerError {
		t.Errorf("challenge header from extension = %d, want 500", w.Code)
	}

	// Deactivation removes the app.
	if w := f.do(http.MethodDelete, "/uc/apps/app1", "", nil); w.Code != http.StatusNoContent {
		t.Fatalf("deactivate = %d", w.Code)
	}
	if w := f.do(http.MethodGet, "/uc/apps/app1", "", nil); w.Code != http.StatusNotFound {
		t.Errorf("get after deactivate = %d, want 404", w.Code)
	}
}

// recordingExtension captures what the proxy forwards and answers with a
// canned response.
type recordingExtension struct {
	path     []string
	verb     string
	headers  map[string]string
	params   url.Values
	auth     bool
	body     []byte
	status   int
	headers2 map[string]string
	respBody []byte
}

func (e *recordingExtension) Request(path []string, verb string, headers map[string]string, params url.Values, auth bool, body []byte) (backend.ExtensionResponse, error) {
	e.path = path
	e.verb = verb
	e.headers = headers
	e.params = params
	e.auth = auth
	e.body = body

	respBody := e.respBody
	if respBody == nil {
		respBody = []byte("hello from app")
	}
	return backend.ExtensionResponse{Status: e.status, Headers: e.headers2, Body: respBody}, nil
}

func TestFeedback(t *testing.T) {
	f := newFixture(t, nil)

	w := f.do(http.MethodGet, "/uc/feedback", "", nil)
	if !strings.Contains(w.Body.String(), "<feedback/>") {
		t.Errorf("empty feedback body = %s", w.Body.String())
	}

	f.device.SetFeedback("All <well> & good")
	w = f.do(http.MethodGet, "/uc/feedback", "", nil)
	if !strings.Contains(w.Body.String(), "<feedback>All &lt;well&gt; &amp; good</feedback>") {
		t.Errorf("feedback body = %s", w.Body.String())
	}
}

func TestCategoriesTree(t *testing.T) {
	f := newFixture(t, nil)

	w := f.do(http.MethodGet, "/uc/categories", "", nil)
	body := w.Body.String()
	if !strings.Contains(body, `<category name="Films" category-id="films">`) {
		t.Errorf("root category wrong: %s", body)
	}
	if !strings.Contains(body, `<category name="Science Fiction" category-id="films.sci"/>`) {
		t.Errorf("leaf category wrong: %s", body)
	}
}

func TestCredentialDelete(t *testing.T) {
	f := newFixture(t, nil)
	f.srv.Auth.AddClientID("550e8400-e29b-41d4-a716-446655440000", "key", "Tablet", true)

	if w := f.do(http.MethodDelete, "/uc/credentials/550e8400-e29b-41d4-a716-446655440000", "", nil); w.Code != http.StatusNoContent {
		t.Fatalf("delete = %d", w.Code)
	}
	if w := f.do(http.MethodDelete, "/uc/credentials/550e8400-e29b-41d4-a716-446655440000", "", nil); w.Code != http.StatusNotFound {
		t.Errorf("double delete = %d, want 404", w.Code)
	}

	changed := f.store.ChangedSince(0, false)
	found := false
	for _, rref := range changed {
		if rref == "uc/credentials" {
			found = true
		}
	}
	if !found {
		t.Errorf("no uc/credentials notification in %v", changed)
	}
}
