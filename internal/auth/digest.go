// UCServer - Universal Control Protocol Engine for Media Devices
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ucserver

package auth

import (
	"crypto/md5" //nolint:gosec // MD5 is mandated by RFC 2617 Digest
	"encoding/hex"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"

	"github.com/tomtom215/ucserver/internal/metrics"
)

// opaqueValue is the fixed opaque emitted with every Digest challenge.
const opaqueValue = "0000000000000000000000000000000000"

// DigestAuth is the RFC 2617 Digest state machine, with per-realm
// credential tables and a pending-password flow: a pending password is
// accepted for any yet-unknown username, and on first success the
// username is permanently bound to it and the pending entry consumed.
type DigestAuth struct {
	// Algorithm is advertised in challenges. Only MD5 is implemented.
	Algorithm string
	// Qop lists the supported quality-of-protection values.
	Qop []string

	instanceID string

	mu               sync.Mutex
	passwordHashes   map[string]map[string]string              // realm -> username -> HA1
	pendingPasswords map[string]map[string]func(username string) // realm -> password -> callback
}

// NewDigestAuth creates a Digest authenticator. The instanceID is the
// per-boot private value mixed into nonces.
func NewDigestAuth(instanceID string) *DigestAuth {
	return &DigestAuth{
		Algorithm:        "MD5",
		Qop:              []string{"auth"},
		instanceID:       instanceID,
		passwordHashes:   make(map[string]map[string]string),
		pendingPasswords: make(map[string]map[string]func(string)),
	}
}

func md5hex(data string) string {
	sum := md5.Sum([]byte(data)) //nolint:gosec // RFC 2617
	return hex.EncodeToString(sum[:])
}

// nonce derives the deterministic challenge nonce for a realm and client.
func (d *DigestAuth) nonce(realm, clientAddr string) string {
	host := clientAddr
	if h, _, err := net.SplitHostPort(clientAddr); err == nil {
		host = h
	}
	return md5hex(realm + ":" + host + ":" + d.instanceID)
}

// parseDigestHeader splits an Authorization: Digest header into its
// key/value parameters, unquoting values.
func parseDigestHeader(header string) (map[string]string, bool) {
	if !strings.HasPrefix(header, "Digest") {
		return nil, false
	}
	params := make(map[string]string)
	for _, part := range strings.Split(header[len("Digest"):], ",") {
		kv := strings.SplitN(part, "=", 2)
		if len(kv) != 2 {
			return nil, false
		}
		key := strings.TrimSpace(kv[0])
		value := strings.TrimSpace(kv[1])
		value = strings.Trim(value, `"`)
		params[key] = value
	}
	return params, true
}

// CheckAuthentication validates the request against the realm's
// credential table. On failure it writes a 401 challenge (stale=true when
// the client's nonce did not match the freshly computed one) and returns
// false. On success the bound username is returned.
func (d *DigestAuth) CheckAuthentication(w http.ResponseWriter, r *http.Request, realm string) (string, bool) {
	nonce := d.nonce(realm, r.RemoteAddr)
	stale := false

	username, ok := d.validate(r, realm, nonce, &stale)
	if ok {
		return username, true
	}

	metrics.AuthFailures.WithLabelValues("digest").Inc()

	challenge := fmt.Sprintf(`Digest realm="%s", qop="%s", nonce="%s", opaque="%s", stale="%s", algorithm="%s"`,
		realm, strings.Join(d.Qop, " "), nonce, opaqueValue, boolWord(stale), d.Algorithm)

	w.Header().Set("Content-Type", "text/html")
	w.Header().Set("WWW-Authenticate", challenge)
	w.WriteHeader(http.StatusUnauthorized)
	return "", false
}

func (d *DigestAuth) validate(r *http.Request, realm, nonce string, stale *bool) (string, bool) {
	params, ok := parseDigestHeader(r.Header.Get("Authorization"))
	if !ok {
		return "", false
	}

	if params["realm"] != realm {
		return "", false
	}
	if params["opaque"] != opaqueValue {
		return "", false
	}

	qop := params["qop"]
	supported := false
	for _, q := range d.Qop {
		if q == qop {
			supported = true
			break
		}
	}
	if !supported || qop != "auth" {
		return "", false
	}

	uri := params["uri"]
	if uri == "" {
		uri = r.URL.Path
	}
	ha2 := md5hex(r.Method + ":" + uri)

	username := params["username"]
	if username == "" {
		return "", false
	}

	response := func(ha1 string) string {
		return md5hex(strings.Join([]string{ha1, params["nonce"], params["nc"], params["cnonce"], qop, ha2}, ":"))
	}

	d.mu.Lock()

	if ha1, found := d.passwordHashes[realm][username]; found {
		if response(ha1) == params["response"] {
			if params["nonce"] != nonce {
				*stale = true
				d.mu.Unlock()
				return "", false
			}
			d.mu.Unlock()
			return username, true
		}
		d.mu.Unlock()
		return "", false
	}

	for password, callback := range d.pendingPasswords[realm] {
		ha1 := md5hex(username + ":" + realm + ":" + password)
		if response(ha1) != params["response"] {
			continue
		}
		if params["nonce"] != nonce {
			*stale = true
			d.mu.Unlock()
			return "", false
		}

		if d.passwordHashes[realm] == nil {
			d.passwordHashes[realm] = make(map[string]string)
		}
		d.passwordHashes[realm][username] = ha1
		delete(d.pendingPasswords[realm], password)
		d.mu.Unlock()

		if callback != nil {
			callback(username)
		}
		return username, true
	}

	d.mu.Unlock()
	return "", false
}

// AddUser binds a username and password in the realm.
func (d *DigestAuth) AddUser(realm, username, password string) {
	d.AddUserHash(realm, username, md5hex(username+":"+realm+":"+password))
}

// AddUserHash binds a username to a precomputed HA1 hash in the realm.
func (d *DigestAuth) AddUserHash(realm, username, hash string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.passwordHashes[realm] == nil {
		d.passwordHashes[realm] = make(map[string]string)
	}
	d.passwordHashes[realm][username] = hash
}

// AddPendingPassword registers a password accepted for any yet-unknown
// username in the realm. The callback fires when the password is bound.
func (d *DigestAuth) AddPendingPassword(realm, password string, callback func(username string)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.pendingPasswords[realm] == nil {
		d.pendingPasswords[realm] = make(map[string]func(string))
	}
	d.pendingPasswords[realm][password] = callback
}

// DelPendingPassword removes a pending password from the realm.
func (d *DigestAuth) DelPendingPassword(realm, password string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.pendingPasswords[realm], password)
}

// DelUser removes a username from the realm.
func (d *DigestAuth) DelUser(realm, username string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.passwordHashes[realm], username)
}
