// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/refcap/internal/log"
)

func TestRecovererConvertsPanicTo500(t *testing.T) {
	inner := http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	})

	rr := httptest.NewRecorder()
	Recoverer(inner).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/panic", nil))

	require.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))

	var body map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "Internal server error", body["error"])
}

func TestRequestIDGeneratesAndEchoes(t *testing.T) {
	var gotCtxID string
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotCtxID = log.RequestIDFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	})

	rr := httptest.NewRecorder()
	RequestID(inner).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/x", nil))

	require.NotEmpty(t, gotCtxID)
	assert.Equal(t, gotCtxID, rr.Header().Get(HeaderRequestID))
	_, err := uuid.Parse(gotCtxID)
	assert.NoError(t, err, "generated request IDs are UUIDs")
}

func TestRequestIDPassthrough(t *testing.T) {
	var gotCtxID string
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotCtxID = log.RequestIDFromContext(r.Context())
	})

	r := httptest.NewRequest(http.MethodGet, "/x", nil)
	r.Header.Set(HeaderRequestID, "client-supplied-id")
	rr := httptest.NewRecorder()
	RequestID(inner).ServeHTTP(rr, r)

	assert.Equal(t, "client-supplied-id", gotCtxID)
	assert.Equal(t, "client-supplied-id", rr.Header().Get(HeaderRequestID))
}

func durationSampleCount(t *testing.T, method, path, status string) uint64 {
	t.Helper()
	obs, err := httpRequestDuration.GetMetricWithLabelValues(method, path, status)
	require.NoError(t, err)
	m, ok := obs.(prometheus.Metric)
	require.True(t, ok)
	pb := &dto.Metric{}
	require.NoError(t, m.Write(pb))
	return pb.GetHistogram().GetSampleCount()
}

func TestMetricsMiddlewareObservesRequests(t *testing.T) {
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("pong"))
	})
	h := Metrics()(inner)

	before := durationSampleCount(t, http.MethodGet, "/ping", "200")

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/ping", nil))
	require.Equal(t, http.StatusOK, rr.Code)

	after := durationSampleCount(t, http.MethodGet, "/ping", "200")
	assert.Equal(t, before+1, after)
}

func TestOTelHTTPMiddlewareWrapsHandler(t *testing.T) {
	// The global tracer provider defaults to noop in tests; the
	// middleware must still pass requests through untouched.
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	rr := httptest.NewRecorder()
	OTelHTTP("test")(inner).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/steep", nil))

	assert.Equal(t, http.StatusTeapot, rr.Code)
}

func TestShouldTraceFiltersOperationalEndpoints(t *testing.T) {
	assert.False(t, shouldTrace(httptest.NewRequest(http.MethodGet, "/healthz", nil)))
	assert.False(t, shouldTrace(httptest.NewRequest(http.MethodGet, "/metrics", nil)))
	assert.True(t, shouldTrace(httptest.NewRequest(http.MethodGet, "/api/v1/session", nil)))
}

func TestResponseWriterCapturesFirstStatus(t *testing.T) {
	rr := httptest.NewRecorder()
	rw := &responseWriter{ResponseWriter: rr, statusCode: http.StatusOK}

	rw.WriteHeader(http.StatusConflict)
	rw.WriteHeader(http.StatusOK) // first write wins
	_, _ = rw.Write([]byte("x"))

	assert.Equal(t, http.StatusConflict, rw.statusCode)
	assert.Equal(t, 1, rw.bytesWritten)
}
