// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package api

import (
	"net/http"

	"github.com/ManuGH/refcap/internal/auth"
	"github.com/ManuGH/refcap/internal/log"
)

// authMiddleware enforces API token authentication on mutating routes.
// An empty configured token disables the check; the daemon then trusts
// its network boundary, which is the norm for lab bench deployments.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.token == "" {
			next.ServeHTTP(w, r)
			return
		}

		// Header or cookie only; query-parameter tokens leak into logs.
		reqToken := auth.ExtractToken(r, false)

		logger := log.WithComponentFromContext(r.Context(), "auth")

		if reqToken == "" {
			logger.Warn().Str(log.FieldEvent, "auth.missing_token").Msg("authorization header/cookie missing")
			respondError(w, r, http.StatusUnauthorized, ErrUnauthorized)
			return
		}

		if !auth.AuthorizeToken(reqToken, s.token) {
			logger.Warn().Str(log.FieldEvent, "auth.invalid_token").Msg("invalid api token")
			respondError(w, r, http.StatusUnauthorized, ErrUnauthorized)
			return
		}

		next.ServeHTTP(w, r)
	})
}
