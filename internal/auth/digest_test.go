// UCServer - Universal Control Protocol Engine for Media Devices
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ucserver

package auth

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"regexp"
	"testing"
)

const digestRealm = "UCSecurity@00000000-0000-0000-0000-000000000000"

var digestChallengeRe = regexp.MustCompile(`Digest realm="([^"]*)", qop="([^"]*)", nonce="([0-9a-f]{32})", opaque="(0{34})", stale="(true|false)", algorithm="MD5"`)

// digestChallenge provokes a 401 and returns the nonce and stale flag.
func digestChallenge(t *testing.T, d *DigestAuth, path string) (string, string) {
	t.Helper()

	r := httptest.NewRequest(http.MethodGet, path, nil)
	r.RemoteAddr = "10.0.0.1:5000"
	w := httptest.NewRecorder()

	if _, ok := d.CheckAuthentication(w, r, digestRealm); ok {
		t.Fatal("unauthenticated request passed")
	}
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("challenge status = %d, want 401", w.Code)
	}

	m := digestChallengeRe.FindStringSubmatch(w.Header().Get("WWW-Authenticate"))
	if m == nil {
		t.Fatalf("malformed WWW-Authenticate %q", w.Header().Get("WWW-Authenticate"))
	}
	if m[1] != digestRealm {
		t.Fatalf("realm = %q", m[1])
	}
	return m[3], m[5]
}

// digestAuthorization builds a valid Authorization header.
func digestAuthorization(username, password, realm, method, uri, nonce string) string {
	ha1 := md5hex(username + ":" + realm + ":" + password)
	ha2 := md5hex(method + ":" + uri)
	response := md5hex(ha1 + ":" + nonce + ":00000001:cafe:auth:" + ha2)

	return fmt.Sprintf(`Digest username="%s", realm="%s", nonce="%s", uri="%s", qop=auth, nc=00000001, cnonce="cafe", response="%s", opaque="%s"`,
		username, realm, nonce, uri, response, opaqueValue)
}

func TestDigestSuccess(t *testing.T) {
	d := NewDigestAuth("instance-1")
	d.AddUser(digestRealm, "alice", "secret")

	nonce, stale := digestChallenge(t, d, "/uc/extra")
	if stale != "false" {
		t.Errorf("fresh challenge stale = %s", stale)
	}

	r := httptest.NewRequest(http.MethodGet, "/uc/extra", nil)
	r.RemoteAddr = "10.0.0.1:5000"
	r.Header.Set("Authorization", digestAuthorization("alice", "secret", digestRealm, "GET", "/uc/extra", nonce))
	w := httptest.NewRecorder()

	username, ok := d.CheckAuthentication(w, r, digestRealm)
	if !ok {
		t.Fatal("valid digest rejected")
	}
	if username != "alice" {
		t.Errorf("username = %q", username)
	}
}

func TestDigestWrongPassword(t *testing.T) {
	d := NewDigestAuth("instance-1")
	d.AddUser(digestRealm, "alice", "secret")

	nonce, _ := digestChallenge(t, d, "/uc/extra")

	r := httptest.NewRequest(http.MethodGet, "/uc/extra", nil)
	r.RemoteAddr = "10.0.0.1:5000"
	r.Header.Set("Authorization", digestAuthorization("alice", "wrong", digestRealm, "GET", "/uc/extra", nonce))

	if _, ok := d.CheckAuthentication(httptest.NewRecorder(), r, digestRealm); ok {
		t.Fatal("wrong password accepted")
	}
}

func TestDigestStaleNonce(t *testing.T) {
	d := NewDigestAuth("instance-1")
	d.AddUser(digestRealm, "alice", "secret")

	// A digest computed against a nonce minted for a different client
	// address fails with stale=true: the credentials were right but the
	// nonce was not the server's current one.
	otherNonce := md5hex(digestRealm + ":192.0.2.7:instance-1")

	r := httptest.NewRequest(http.MethodGet, "/uc/extra", nil)
	r.RemoteAddr = "10.0.0.1:5000"
	r.Header.Set("Authorization", digestAuthorization("alice", "secret", digestRealm, "GET", "/uc/extra", otherNonce))
	w := httptest.NewRecorder()

	if _, ok := d.CheckAuthentication(w, r, digestRealm); ok {
		t.Fatal("stale nonce accepted")
	}
	m := digestChallengeRe.FindStringSubmatch(w.Header().Get("WWW-Authenticate"))
	if m == nil || m[5] != "true" {
		t.Errorf("expected stale=true challenge, got %q", w.Header().Get("WWW-Authenticate"))
	}
}

func TestDigestPendingPasswordPromotion(t *testing.T) {
	d := NewDigestAuth("instance-1")

	bound := ""
	d.AddPendingPassword(digestRealm, "pairing-pass", func(username string) { bound = username })

	nonce, _ := digestChallenge(t, d, "/uc/extra")

	r := httptest.NewRequest(http.MethodGet, "/uc/extra", nil)
	r.RemoteAddr = "10.0.0.1:5000"
	r.Header.Set("Authorization", digestAuthorization("newuser", "pairing-pass", digestRealm, "GET", "/uc/extra", nonce))

	username, ok := d.CheckAuthentication(httptest.NewRecorder(), r, digestRealm)
	if !ok {
		t.Fatal("pending password rejected")
	}
	if username != "newuser" || bound != "newuser" {
		t.Errorf("binding: username=%q callback=%q", username, bound)
	}

	// The password is consumed: a different username cannot reuse it.
	nonce, _ = digestChallenge(t, d, "/uc/extra")
	r = httptest.NewRequest(http.MethodGet, "/uc/extra", nil)
	r.RemoteAddr = "10.0.0.1:5000"
	r.Header.Set("Authorization", digestAuthorization("otheruser", "pairing-pass", digestRealm, "GET", "/uc/extra", nonce))

	if _, ok := d.CheckAuthentication(httptest.NewRecorder(), r, digestRealm); ok {
		t.Fatal("consumed pending password accepted for another username")
	}
}

func TestDigestUnsupportedQop(t *testing.T) {
	d := NewDigestAuth("instance-1")
	d.AddUser(digestRealm, "alice", "secret")

	nonce, _ := digestChallenge(t, d, "/uc/extra")

	header := digestAuthorization("alice", "secret", digestRealm, "GET", "/uc/extra", nonce)
	header = regexp.MustCompile(`qop=auth`).ReplaceAllString(header, "qop=auth-int")

	r := httptest.NewRequest(http.MethodGet, "/uc/extra", nil)
	r.RemoteAddr = "10.0.0.1:5000"
	r.Header.Set("Authorization", header)

	if _, ok := d.CheckAuthentication(httptest.NewRecorder(), r, digestRealm); ok {
		t.Fatal("unsupported qop accepted")
	}
}
