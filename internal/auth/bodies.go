// UCServer - Universal Control Protocol Engine for Media Devices
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ucserver

package auth

// ChallengeType is the Content-Type of authentication and restriction
// failure bodies.
const ChallengeType = "text/html"

// ChallengeBody is the body returned with every 402, whether an
// authentication challenge, a restriction challenge or a restriction
// failure.
const ChallengeBody = `<html>
  <head>
    <title>Not Authenticated</title>
  </head>
  <body>
    <h1>Not Authenticated</h1>
    <p>Error code 402.</p>
    <p>Message: Not Authenticated.</p>
  </body>
</html>` + "\r\n"

// AbortBody is the body returned with a 410 when a restriction exchange
// is aborted.
const AbortBody = `<html>
  <head>
    <title>Aborted</title>
  </head>
  <body>
    <h1>Aborted</h1>
    <p>Error code 410.</p>
    <p>Message: This action has been aborted.</p>
  </body>
</html>` + "\r\n"
