package main

import (
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

// MockRoundTripper allows us to mock HTTP responses
type MockRoundTripper struct {
	RoundTripFunc func(req *http.Request) *http.Response
}

func (m *MockRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	return m.RoundTripFunc(req), nil
}

func TestProbeCleanup_Hardened(t *testing.T) {
	// Swap global client
	origClient := httpClient
	defer func() { httpClient = origClient }()

	mockRT := &MockRoundTripper{}
	httpClient = &http.Client{Transport: mockRT}

	// State tracking
	startedID := "test-session-123"
	cancelCalled := false

	// Mock Logic
	mockRT.RoundTripFunc = func(req *http.Request) *http.Response {
		// 1. Identity check
		if req.URL.Path == "/healthz" {
			return &http.Response{
				StatusCode: 200,
				Body:       io.NopCloser(strings.NewReader(`{"status":"ok","version":"test","uptime_s":1}`)),
				Header:     make(http.Header),
			}
		}
		// 2. Metrics
		if req.URL.Path == "/metrics" {
			return &http.Response{
				StatusCode: 200,
				Body:       io.NopCloser(strings.NewReader("# TYPE refcap_capture_sessions_total counter\nrefcap_capture_sessions_total 0\n")),
				Header:     make(http.Header),
			}
		}
		// 3. Idle session snapshot (the lifecycle read-back never runs
		// because the panic fires first)
		if req.URL.Path == "/api/v1/session" {
			return &http.Response{
				StatusCode: 200,
				Body:       io.NopCloser(strings.NewReader(`{"sessionId":"","state":"IDLE","reason":"R_NONE","percent":0}`)),
				Header:     make(http.Header),
			}
		}
		// 4. Router Checks (404/405 - simulate RFC7807)
		if strings.Contains(req.URL.Path, "non-existent") {
			return &http.Response{
				StatusCode: 404,
				Body:       io.NopCloser(strings.NewReader(`{"status":404,"type":"system/not_found","title":"Not Found","code":"NOT_FOUND","instance":"` + req.URL.Path + `"}`)),
				Header:     http.Header{"Content-Type": []string{"application/problem+json"}},
			}
		}
		if req.Method == "GET" && req.URL.Path == "/api/v1/captures" {
			return &http.Response{
				StatusCode: 405,
				Body:       io.NopCloser(strings.NewReader(`{"status":405,"type":"system/method_not_allowed","title":"Method Not Allowed","code":"METHOD_NOT_ALLOWED","instance":"` + req.URL.Path + `"}`)),
				Header:     http.Header{"Content-Type": []string{"application/problem+json"}},
			}
		}
		// 5. Run listing
		if req.URL.Path == "/api/v1/runs" {
			return &http.Response{
				StatusCode: 200,
				Body:       io.NopCloser(strings.NewReader(`{"runs":[],"pagination":{"offset":0,"limit":1,"total":0,"count":0}}`)),
				Header:     make(http.Header),
			}
		}
		// 6. Device probe verdict
		if req.Method == "POST" && req.URL.Path == "/api/v1/devices/probe" {
			return &http.Response{
				StatusCode: 200,
				Body:       io.NopCloser(strings.NewReader(`{"state":"available","reason":"","ok":true}`)),
				Header:     make(http.Header),
			}
		}

		// 7. Capture start
		if req.Method == "POST" && req.URL.Path == "/api/v1/captures" {
			return &http.Response{
				StatusCode: 202,
				Body:       io.NopCloser(strings.NewReader(`{"sessionId":"` + startedID + `","state":"INITIALIZING","reason":"R_NONE","percent":0}`)),
				Header:     make(http.Header),
			}
		}

		// 8. Cancel (The Assert Target)
		if req.Method == "DELETE" && req.URL.Path == "/api/v1/captures/active" {
			cancelCalled = true
			return &http.Response{
				StatusCode: 200,
				Body:       io.NopCloser(strings.NewReader(`{"sessionId":"` + startedID + `","state":"COMPLETED","reason":"R_CANCELLED","percent":100}`)),
				Header:     make(http.Header),
			}
		}

		// Fallback
		return &http.Response{
			StatusCode: 500,
			Body:       io.NopCloser(strings.NewReader(`{"error":"mock unhandled path ` + req.URL.Path + `"}`)),
		}
	}

	cfg := ProbeConfig{
		BaseURL:          "http://test-mock",
		FailAfterStart:   "panic",
		CaptureLifecycle: true,
	}

	// Expect Panic
	assert.PanicsWithValue(t, "simulated panic after start", func() {
		_ = run(cfg)
	})

	// Assert Cleanup
	assert.True(t, cancelCalled, "Cleanup DELETE must be called after panic")
}
