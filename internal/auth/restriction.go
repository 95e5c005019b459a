// UCServer - Universal Control Protocol Engine for Media Devices
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ucserver

package auth

import (
	"crypto/rand"
	"crypto/sha1" //nolint:gosec // SHA-1 is mandated by the UC wire protocol
	"encoding/hex"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"sync"
	"time"
)

// Defaults for the restriction flows.
const (
	DefaultConfirmationTimeout    = 5 * time.Second
	DefaultAuthorisationIteration = 5000
)

// Outcome is the result of a restriction check.
type Outcome int

const (
	// Passed means the operation may proceed; the response has not been
	// written.
	Passed Outcome = iota
	// Challenged means a 402 challenge was written; the operation is
	// blocked pending a retry with credentials.
	Challenged
	// RestrictionFailed means a 402 without challenge was written.
	RestrictionFailed
	// RestrictionAborted means a 410 abort was written.
	RestrictionAborted
)

var (
	confirmRe = regexp.MustCompile(`(Confirm|Abort)\s+nonce="([0-9a-fA-F]+)"`)

	abortRe = regexp.MustCompile(`Abort\s+nonce="([0-9a-fA-F]+)"`)

	authoriseRe = regexp.MustCompile(`Authorise\s+nonce="([0-9a-fA-F]+)",\s*iteration="([0-9a-fA-F]+)",\s*uri="([^"]*)",\s*digest="([0-9a-fA-F]+)"(?:,\s*client-id="([0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12})")?`)
)

// Restrictor implements the confirmation and authorisation flows. The two
// nonce tables are independent; nonces are one-shot and consumed on every
// outcome that reaches validation, and expire by the TTL embedded in
// their first 16 hex digits.
type Restrictor struct {
	// Timeout is the validity window of minted restriction nonces.
	Timeout time.Duration
	// AuthorisationIteration is the PBKDF2 iteration count for the
	// authorisation digest.
	AuthorisationIteration int

	engine *Engine

	confirmMu     sync.Mutex
	confirmNonces map[string]struct{}

	authoriseMu     sync.Mutex
	authoriseNonces map[string]struct{}
}

// NewRestrictor creates a restriction state machine. The engine supplies
// client keys for client-bound authorisation digests.
func NewRestrictor(engine *Engine) *Restrictor {
	return &Restrictor{
		Timeout:                DefaultConfirmationTimeout,
		AuthorisationIteration: DefaultAuthorisationIteration,
		engine:                 engine,
		confirmNonces:          make(map[string]struct{}),
		authoriseNonces:        make(map[string]struct{}),
	}
}

func sweepNonceSet(set map[string]struct{}) {
	now := nowMicro()
	for n := range set {
		if expiry, err := strconv.ParseUint(n[:16], 16, 64); err != nil || now > expiry {
			delete(set, n)
		}
	}
}

// formNonce mints a one-shot nonce bound to the request with 40 random
// bytes of private data.
func (rs *Restrictor) formNonce(set map[string]struct{}, method, path string) string {
	sweepNonceSet(set)

	private := make([]byte, 40)
	_, _ = rand.Read(private)

	expiry := nowMicro() + uint64(rs.Timeout.Microseconds())
	sum := sha1.Sum([]byte(fmt.Sprintf("%016x:%s:%s:%s", expiry, method, path, hex.EncodeToString(private)))) //nolint:gosec // protocol
	nonce := fmt.Sprintf("%016x%s", expiry, hex.EncodeToString(sum[:]))

	set[nonce] = struct{}{}
	return nonce
}

// consumeNonce reports whether the nonce was valid, removing it either
// way.
func consumeNonce(set map[string]struct{}, nonce string) bool {
	sweepNonceSet(set)
	if _, ok := set[nonce]; !ok {
		return false
	}
	delete(set, nonce)
	return true
}

// CancelExchange invalidates an outstanding confirmation nonce, aborting
// the exchange from the server side.
func (rs *Restrictor) CancelExchange(nonce string) {
	rs.confirmMu.Lock()
	defer rs.confirmMu.Unlock()
	sweepNonceSet(rs.confirmNonces)
	delete(rs.confirmNonces, nonce)
}

// CheckConfirmation runs the confirmation flow for the request. Passed
// means the operation proceeds; every other outcome has already written
// the response.
func (rs *Restrictor) CheckConfirmation(w http.ResponseWriter, r *http.Request, message string) Outcome {
	header := r.Header.Get("X-UCRestriction-Credentials")
	if header == "" {
		rs.confirmMu.Lock()
		nonce := rs.formNonce(rs.confirmNonces, r.Method, r.URL.Path)
		rs.confirmMu.Unlock()

		challenge := fmt.Sprintf(`Confirm nonce="%s", message="%s"`, nonce, message)
		writeRestriction(w, http.StatusPaymentRequired, ChallengeBody, challenge)
		return Challenged
	}

	m := confirmRe.FindStringSubmatch(header)
	if m == nil {
		writeRestriction(w, http.StatusPaymentRequired, ChallengeBody, "")
		return RestrictionFailed
	}

	rs.confirmMu.Lock()
	valid := consumeNonce(rs.confirmNonces, m[2])
	rs.confirmMu.Unlock()

	if !valid {
		writeRestriction(w, http.StatusPaymentRequired, ChallengeBody, "")
		return RestrictionFailed
	}

	if m[1] == "Confirm" {
		return Passed
	}

	writeRestriction(w, http.StatusGone, AbortBody, "")
	return RestrictionAborted
}

// CheckAuthorisation runs the PIN-keyed authorisation flow for the
// request. The digest key is the PIN alone, or "PIN:clientKey" when the
// header names a client-id.
func (rs *Restrictor) CheckAuthorisation(w http.ResponseWriter, r *http.Request, message string, body []byte, pin string) Outcome {
	header := r.Header.Get("X-UCRestriction-Credentials")
	if header == "" {
		rs.authoriseMu.Lock()
		nonce := rs.formNonce(rs.authoriseNonces, r.Method, r.URL.Path)
		rs.authoriseMu.Unlock()

		challenge := fmt.Sprintf(`Authorise nonce="%s", message="%s", iteration="%08x"`,
			nonce, message, rs.AuthorisationIteration)
		writeRestriction(w, http.StatusPaymentRequired, ChallengeBody, challenge)
		return Challenged
	}

	outcome := rs.validateAuthorisation(r, header, body, pin)
	switch outcome {
	case Passed:
		return Passed
	case RestrictionAborted:
		writeRestriction(w, http.StatusGone, AbortBody, "")
		return RestrictionAborted
	default:
		writeRestriction(w, http.StatusPaymentRequired, ChallengeBody, "")
		return RestrictionFailed
	}
}

func (rs *Restrictor) validateAuthorisation(r *http.Request, header string, body []byte, pin string) Outcome {
	if m := abortRe.FindStringSubmatch(header); m != nil {
		rs.authoriseMu.Lock()
		valid := consumeNonce(rs.authoriseNonces, m[1])
		rs.authoriseMu.Unlock()
		if !valid {
			return RestrictionFailed
		}
		return RestrictionAborted
	}

	m := authoriseRe.FindStringSubmatch(header)
	if m == nil {
		return RestrictionFailed
	}

	nonce := m[1]
	citeration, err := strconv.ParseUint(m[2], 16, 32)
	if err != nil {
		return RestrictionFailed
	}
	uri := m[3]
	digest := m[4]
	clientID := m[5]

	rs.authoriseMu.Lock()
	valid := consumeNonce(rs.authoriseNonces, nonce)
	rs.authoriseMu.Unlock()
	if !valid {
		return RestrictionFailed
	}

	if int(citeration) != rs.AuthorisationIteration {
		return RestrictionFailed
	}
	if !checkURI(uri, r.URL.Path) {
		return RestrictionFailed
	}

	key := pin
	if clientID != "" {
		clientKey, ok := rs.engine.ClientKey(clientID)
		if !ok {
			return RestrictionFailed
		}
		key = pin + ":" + clientKey
	}

	salt := fmt.Sprintf("%s:%s:%s:%s", r.Method, uri, nonce, body)
	if digestHex(key, salt, rs.AuthorisationIteration) != digest {
		return RestrictionFailed
	}
	return Passed
}

func writeRestriction(w http.ResponseWriter, status int, body, challenge string) {
	w.Header().Set("Content-Type", ChallengeType)
	w.Header().Set("Content-Length", strconv.Itoa(len(body)))
	if challenge != "" {
		w.Header().Set("X-UCRestriction-Challenge", challenge)
	}
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}
