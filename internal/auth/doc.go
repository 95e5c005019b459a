// UCServer - Universal Control Protocol Engine for Media Devices
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ucserver

/*
Package auth implements the security state machines of the UC protocol.

Key Components:

  - Engine: the per-request UC authentication scheme carried on the
    X-UCClientAuthorisation header, built on PBKDF2-HMAC-SHA1 with
    server-minted expiring nonces, nonce-count tracking, and promotion of
    a pending client at pairing time.
  - DigestAuth: RFC 2617 HTTP Digest (qop=auth, algorithm=MD5) with a
    pending-password flow that binds a password to the first username
    that successfully authenticates with it.
  - Restrictor: the short-lived confirmation and authorisation flows
    carried on X-UCRestriction-Credentials, keyed by one-shot nonces.

Nonces of the Engine and the Restrictor share the 56-hex-character
format: a 16-hex expiry timestamp (microseconds since epoch, modulo 2^64)
followed by a 40-hex SHA-1. Their tables are swept on every access, so
expired nonces never validate. DigestAuth instead derives a deterministic
32-hex MD5 nonce per realm and client address and keeps no nonce table.

Paired client credentials survive restarts through the CredentialsStore
interface; the production implementation is backed by BadgerDB.

Thread Safety:

All components are safe for concurrent use. The nonce tables and the
credential tables are guarded by separate locks; Engine request
validation holds the credential lock while it checks the nonce.
*/
package auth
