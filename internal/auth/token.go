// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package auth implements API token extraction and constant-time
// verification for the control surface.
package auth

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/ManuGH/refcap/internal/log"
)

// SessionCookie is the cookie that may carry the API token for
// browser-based clients.
const SessionCookie = "refcap_session"

// ExtractToken retrieves the API token from the request. Sources in
// priority order:
//  1. Authorization: Bearer <token>
//  2. Cookie: refcap_session
//  3. Header: X-API-Token
//  4. Query: ?token= (only if allowQuery)
func ExtractToken(r *http.Request, allowQuery bool) string {
	if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimSpace(auth[7:])
	}

	if c, err := r.Cookie(SessionCookie); err == nil && c.Value != "" {
		return c.Value
	}

	if t := r.Header.Get("X-API-Token"); t != "" {
		return t
	}

	if allowQuery {
		if t := r.URL.Query().Get("token"); t != "" {
			l := log.L()
			l.Warn().
				Str("path", r.URL.Path).
				Str("remote_addr", r.RemoteAddr).
				Msg("DEPRECATED: query parameter authentication is insecure (tokens land in proxy logs); use the Authorization header instead")
			return t
		}
	}

	return ""
}

// AuthorizeToken returns true if got matches expected using constant-time
// comparison. Empty tokens are always treated as unauthorized.
func AuthorizeToken(got, expected string) bool {
	if strings.TrimSpace(expected) == "" || got == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(got), []byte(expected)) == 1
}

// AuthorizeRequest extracts a token from r and validates it against
// expectedToken.
func AuthorizeRequest(r *http.Request, expectedToken string, allowQuery bool) bool {
	if r == nil {
		return false
	}
	return AuthorizeToken(ExtractToken(r, allowQuery), expectedToken)
}
