// UCServer - Universal Control Protocol Engine for Media Devices
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ucserver

package auth

import (
	"crypto/sha1" //nolint:gosec // SHA-1 is mandated by the UC wire protocol
	"encoding/hex"
	"fmt"
	"net/http"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/pbkdf2"

	"github.com/tomtom215/ucserver/internal/logging"
	"github.com/tomtom215/ucserver/internal/metrics"
)

// Defaults for the UC authentication scheme.
const (
	DefaultIteration    = 10
	DefaultNcLimit      = 10
	DefaultNonceTimeout = 5 * time.Second
)

// Credential is one paired client.
type Credential struct {
	ClientID string `json:"client_id"`
	Key      string `json:"key"`
	Name     string `json:"name"`
}

// CredentialsStore persists confirmed client credentials across restarts.
type CredentialsStore interface {
	Load() ([]Credential, error)
	Put(Credential) error
	Delete(clientID string) error
}

var (
	authorisationRe = regexp.MustCompile(`Authenticate\s+nonce="([0-9a-fA-F]+)",\s*iteration="([0-9a-fA-F]+)",\s*uri="([^"]*)",\s*digest="([0-9a-fA-F]+)",\s*nc="([0-9a-fA-F]+)",\s*client-id="([0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12})",\s*cnonce="([0-9a-fA-F]+)"`)

	nonceRe = regexp.MustCompile(`^[0-9a-fA-F]{56}$`)

	pathSplitRe = regexp.MustCompile(`/+`)
)

// Engine is the UC authentication state machine. One instance serves the
// whole server.
type Engine struct {
	// Iteration is the PBKDF2 iteration count clients must use.
	Iteration int
	// NcLimit is the number of uses after which a nonce is retired.
	NcLimit uint64
	// NonceTimeout is the validity window of a minted nonce.
	NonceTimeout time.Duration

	// OnAuthenticated is invoked, outside the credential lock, whenever a
	// pending client becomes permanent.
	OnAuthenticated func(clientID string)

	secret string

	noncesMu sync.Mutex
	nonces   map[string]uint64 // nonce -> highest nc seen

	credsMu sync.RWMutex
	clients map[string]Credential
	pending *Credential

	store CredentialsStore
}

// NewEngine creates the authentication engine. The secret is private
// per-instance data mixed into every nonce; the store may be nil for a
// purely in-memory engine (tests), otherwise confirmed clients are loaded
// from it at construction.
func NewEngine(secret string, store CredentialsStore) (*Engine, error) {
	e := &Engine{
		Iteration:    DefaultIteration,
		NcLimit:      DefaultNcLimit,
		NonceTimeout: DefaultNonceTimeout,
		secret:       secret,
		nonces:       make(map[string]uint64),
		clients:      make(map[string]Credential),
		store:        store,
	}

	if store != nil {
		creds, err := store.Load()
		if err != nil {
			return nil, fmt.Errorf("load credentials: %w", err)
		}
		for _, c := range creds {
			e.clients[c.ClientID] = c
		}
		if len(creds) > 0 {
			logging.Info().Int("clients", len(creds)).Msg("Loaded paired client credentials")
		}
	}

	return e, nil
}

// nowMicro returns microseconds since the epoch modulo 2^64.
func nowMicro() uint64 {
	return uint64(time.Now().UnixMicro())
}

// digestHex runs the protocol digest: PBKDF2-HMAC-SHA1 over the salt with
// the given key and iteration count, rendered as lowercase hex.
func digestHex(key, salt string, iteration int) string {
	return hex.EncodeToString(pbkdf2.Key([]byte(key), []byte(salt), iteration, sha1.Size, sha1.New))
}

// sweepLocked drops expired nonces. Callers hold noncesMu.
func (e *Engine) sweepLocked() {
	now := nowMicro()
	for n := range e.nonces {
		if expiry, err := strconv.ParseUint(n[:16], 16, 64); err != nil || now > expiry {
			delete(e.nonces, n)
		}
	}
}

// FormNonce mints a fresh nonce bound to the request's method and path
// and registers it in the nonce table with a zero count.
func (e *Engine) FormNonce(method, path string) string {
	e.noncesMu.Lock()
	defer e.noncesMu.Unlock()
	e.sweepLocked()

	expiry := (nowMicro() + uint64(e.NonceTimeout.Microseconds()))
	sum := sha1.Sum([]byte(fmt.Sprintf("%016x:%s:%s:%s", expiry, method, path, e.secret))) //nolint:gosec // protocol
	nonce := fmt.Sprintf("%016x%s", expiry, hex.EncodeToString(sum[:]))

	e.nonces[nonce] = 0
	return nonce
}

// nonceIsValid checks a presented nonce against the table and the nc
// ordering rule. It returns (true, _) when the request may proceed,
// (false, true) when the nonce is syntactically sound but stale or
// replayed, and (false, false) when it was never valid. A nonce whose
// count reaches NcLimit is retired after this use.
func (e *Engine) nonceIsValid(method, path, nonce string, nc uint64) (bool, bool) {
	e.noncesMu.Lock()
	defer e.noncesMu.Unlock()
	e.sweepLocked()

	if !nonceRe.MatchString(nonce) {
		return false, false
	}

	expiry := nonce[:16]
	sum := sha1.Sum([]byte(fmt.Sprintf("%s:%s:%s:%s", expiry, method, path, e.secret))) //nolint:gosec // protocol
	if !strings.EqualFold(nonce[16:], hex.EncodeToString(sum[:])) {
		return false, false
	}

	stored, ok := e.nonces[nonce]
	if !ok {
		return false, true
	}
	if nc < stored {
		delete(e.nonces, nonce)
		return false, true
	}

	if nc >= e.NcLimit {
		delete(e.nonces, nonce)
	} else {
		e.nonces[nonce] = nc
	}
	return true, false
}

// checkURI verifies that the uri presented in the header names the same
// resource as the request path, segment-wise.
func checkURI(uri, path string) bool {
	a := pathSplitRe.Split(strings.Trim(uri, "/"), -1)
	b := pathSplitRe.Split(strings.Trim(path, "/"), -1)
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// validate checks the X-UCClientAuthorisation header for the request.
// It returns (true, _) on success and (false, stale) otherwise.
func (e *Engine) validate(r *http.Request, body []byte) (bool, bool) {
	header := r.Header.Get("X-UCClientAuthorisation")
	if header == "" {
		return false, false
	}

	m := authorisationRe.FindStringSubmatch(header)
	if m == nil {
		return false, false
	}

	nonce := m[1]
	citeration, err := strconv.ParseUint(m[2], 16, 32)
	if err != nil {
		return false, false
	}
	uri := m[3]
	digest := m[4]
	nc, err := strconv.ParseUint(m[5], 16, 64)
	if err != nil {
		return false, false
	}
	clientID := m[6]
	cnonce := m[7]

	if !checkURI(uri, r.URL.Path) {
		return false, false
	}

	e.credsMu.Lock()
	var key string
	var pending bool
	switch {
	case e.pending != nil && e.pending.ClientID == clientID:
		key = e.pending.Key
		pending = true
	default:
		cred, ok := e.clients[clientID]
		if !ok {
			e.credsMu.Unlock()
			return false, false
		}
		key = cred.Key
	}

	ok, stale := e.nonceIsValid(r.Method, r.URL.Path, nonce, nc)
	if !ok {
		e.credsMu.Unlock()
		return false, stale
	}

	if int(citeration) != e.Iteration {
		e.credsMu.Unlock()
		return false, false
	}

	salt := fmt.Sprintf("%s:%s:%s:%s:%08x:%s", r.Method, uri, nonce, body, nc, cnonce)
	if digestHex(key, salt, e.Iteration) != strings.ToLower(digest) {
		e.credsMu.Unlock()
		return false, false
	}

	var promoted string
	if pending {
		cred := *e.pending
		e.clients[clientID] = cred
		e.pending = nil
		if e.store != nil {
			if err := e.store.Put(cred); err != nil {
				logging.Error().Err(err).Str("client_id", clientID).Msg("Failed to persist client credential")
			}
		}
		promoted = clientID
	}
	e.credsMu.Unlock()

	if promoted != "" {
		logging.Info().Str("client_id", promoted).Msg("Pending client promoted to permanent")
		if e.OnAuthenticated != nil {
			e.OnAuthenticated(promoted)
		}
	}

	return true, false
}

// Authenticated evaluates the request's credentials without writing a
// challenge. The app-extension proxy uses it to forward the auth outcome
// rather than fail the request.
func (e *Engine) Authenticated(r *http.Request, body []byte) bool {
	ok, _ := e.validate(r, body)
	return ok
}

// CheckAuthentication validates the request's UC credentials against the
// given body. On failure it writes a 402 challenge carrying a freshly
// minted nonce and returns false.
func (e *Engine) CheckAuthentication(w http.ResponseWriter, r *http.Request, body []byte) bool {
	ok, stale := e.validate(r, body)
	if ok {
		return true
	}

	metrics.AuthFailures.WithLabelValues("uc").Inc()

	nonce := e.FormNonce(r.Method, r.URL.Path)
	challenge := fmt.Sprintf(`Authenticate nonce="%s", iteration="%08x", stale="%s"`,
		nonce, e.Iteration, boolWord(stale))

	w.Header().Set("Content-Type", ChallengeType)
	w.Header().Set("Content-Length", strconv.Itoa(len(ChallengeBody)))
	w.Header().Set("X-UCClientAuthenticate", challenge)
	w.WriteHeader(http.StatusPaymentRequired)
	_, _ = w.Write([]byte(ChallengeBody))
	return false
}

func boolWord(v bool) string {
	if v {
		return "true"
	}
	return "false"
}

// AddClientID registers credentials for a client. Permanent credentials
// replace any existing entry for the same client and are persisted;
// otherwise the credentials become the single pending entry, replacing
// any pending entry currently stored.
func (e *Engine) AddClientID(clientID, key, name string, permanent bool) {
	e.credsMu.Lock()
	defer e.credsMu.Unlock()

	cred := Credential{ClientID: clientID, Key: key, Name: name}
	if permanent {
		e.clients[clientID] = cred
		if e.pending != nil && e.pending.ClientID == clientID {
			e.pending = nil
		}
		if e.store != nil {
			if err := e.store.Put(cred); err != nil {
				logging.Error().Err(err).Str("client_id", clientID).Msg("Failed to persist client credential")
			}
		}
		return
	}

	delete(e.clients, clientID)
	e.pending = &cred
}

// RemoveClientID removes a client from both the confirmed table and the
// pending slot.
func (e *Engine) RemoveClientID(clientID string) {
	e.credsMu.Lock()
	defer e.credsMu.Unlock()

	if e.pending != nil && e.pending.ClientID == clientID {
		e.pending = nil
	}
	if _, ok := e.clients[clientID]; ok {
		delete(e.clients, clientID)
		if e.store != nil {
			if err := e.store.Delete(clientID); err != nil {
				logging.Error().Err(err).Str("client_id", clientID).Msg("Failed to delete client credential")
			}
		}
	}
}

// ClearPending discards any pending credentials.
func (e *Engine) ClearPending() {
	e.credsMu.Lock()
	defer e.credsMu.Unlock()
	e.pending = nil
}

// HasClient reports whether the client is confirmed.
func (e *Engine) HasClient(clientID string) bool {
	e.credsMu.RLock()
	defer e.credsMu.RUnlock()
	_, ok := e.clients[clientID]
	return ok
}

// ClientKey returns the confirmed client's key.
func (e *Engine) ClientKey(clientID string) (string, bool) {
	e.credsMu.RLock()
	defer e.credsMu.RUnlock()
	cred, ok := e.clients[clientID]
	return cred.Key, ok
}

// Clients returns all confirmed clients sorted by client-id.
func (e *Engine) Clients() []Credential {
	e.credsMu.RLock()
	defer e.credsMu.RUnlock()

	out := make([]Credential, 0, len(e.clients))
	for _, c := range e.clients {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ClientID < out[j].ClientID })
	return out
}
