// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package api

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/ManuGH/refcap/internal/log"
)

const (
	// HeaderRequestID carries the request correlation ID on every response.
	HeaderRequestID = "X-Request-ID"
	// JSONKeyRequestID is the request-ID key in problem bodies.
	JSONKeyRequestID = "requestId"
)

// APIError pairs a stable machine-readable code with a human-readable
// message.
type APIError struct {
	Code    string
	Message string
}

func (e *APIError) Error() string {
	return e.Message
}

var (
	ErrUnauthorized = &APIError{
		Code:    "UNAUTHORIZED",
		Message: "Authentication required",
	}
	ErrInvalidInput = &APIError{
		Code:    "INVALID_INPUT",
		Message: "Invalid request payload",
	}
	ErrCaptureActive = &APIError{
		Code:    "CAPTURE_ACTIVE",
		Message: "A capture session is already running",
	}
	ErrNoActiveCapture = &APIError{
		Code:    "NO_ACTIVE_CAPTURE",
		Message: "No capture session is running",
	}
	ErrReferenceMissing = &APIError{
		Code:    "REFERENCE_MISSING",
		Message: "No reference clip is set",
	}
	ErrReferenceInvalid = &APIError{
		Code:    "REFERENCE_INVALID",
		Message: "Reference clip is not usable",
	}
	ErrRunNotFound = &APIError{
		Code:    "RUN_NOT_FOUND",
		Message: "Run not found",
	}
	ErrProbeUnavailable = &APIError{
		Code:    "PROBE_UNAVAILABLE",
		Message: "Device diagnostics are not configured",
	}
	ErrDeviceQueryFailed = &APIError{
		Code:    "DEVICE_QUERY_FAILED",
		Message: "Device enumeration failed",
	}
	ErrInternalServer = &APIError{
		Code:    "INTERNAL_SERVER_ERROR",
		Message: "An internal error occurred",
	}
)

// writeJSON writes a JSON response with the given status code. If
// encoding fails, headers are already sent so we can't change the
// status code, but we log the error for debugging.
func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		l := log.L()
		l.Error().
			Err(err).
			Int("status", code).
			Msg("failed to encode JSON response - client may receive partial data")
	}
}

// respondError sends an RFC 7807 problem response for apiErr. The
// optional first detail becomes the "detail" member.
func respondError(w http.ResponseWriter, r *http.Request, statusCode int, apiErr *APIError, details ...string) {
	detail := ""
	if len(details) > 0 {
		detail = details[0]
	}
	problemType := "error/" + strings.ToLower(apiErr.Code)
	writeProblem(w, r, statusCode, problemType, apiErr.Message, apiErr.Code, detail)
}

// writeProblem writes an RFC 7807 problem details response.
//
// Semantics:
//   - type: canonical machine identifier (e.g. "error/capture_active").
//   - title: human-readable short label.
//   - code: stable machine-readable short code (e.g. "CAPTURE_ACTIVE").
//   - detail: human-readable explanation of the specific error.
func writeProblem(w http.ResponseWriter, r *http.Request, status int, problemType, title, code, detail string) {
	instance := ""
	if r != nil {
		instance = r.URL.EscapedPath()
	}

	reqID := ""
	if r != nil {
		reqID = log.RequestIDFromContext(r.Context())
	}
	if reqID == "" {
		reqID = w.Header().Get(HeaderRequestID)
	}

	res := map[string]any{
		"type":           problemType,
		"title":          title,
		"status":         status,
		"code":           code,
		JSONKeyRequestID: reqID,
	}
	if detail != "" {
		res["detail"] = detail
	}
	if instance != "" {
		res["instance"] = instance
	}

	w.Header().Set(HeaderRequestID, reqID)
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(res); err != nil {
		l := log.L()
		l.Error().
			Err(err).
			Str("type", problemType).
			Int("status", status).
			Msg("failed to encode problem response")
	}
}
