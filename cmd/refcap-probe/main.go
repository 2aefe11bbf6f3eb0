package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/ManuGH/refcap/internal/config"
)

type ProbeReport struct {
	Timestamp   time.Time         `json:"timestamp"`
	BaseURL     string            `json:"base_url"`
	Checks      []CheckResult     `json:"checks"`
	Environment map[string]string `json:"environment"`
}

type CheckResult struct {
	Name      string `json:"name"`
	Passed    bool   `json:"passed"`
	LatencyMs int64  `json:"latency_ms"`
	Details   string `json:"details,omitempty"`
	Body      string `json:"body,omitempty"` // Captured body on failure
}

var httpClient = &http.Client{
	Timeout: 5 * time.Second,
}

var (
	failAfterStart   = flag.String("fail-after-start", "", "Inject failure after capture start: 'panic' or 'error'")
	baseURLFlag      = flag.String("base-url", "", "Override REFCAP_BASE_URL")
	captureLifecycle = flag.Bool("capture-lifecycle", false, "Run the invasive capture start/cancel round trip (occupies the device)")
)

func main() {
	flag.Parse()
	cfg := ProbeConfig{
		BaseURL:          *baseURLFlag,
		FailAfterStart:   *failAfterStart,
		CaptureLifecycle: *captureLifecycle,
	}

	if err := run(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Probe failed: %v\n", err)
		os.Exit(1)
	}
}

type ProbeConfig struct {
	BaseURL          string
	FailAfterStart   string
	CaptureLifecycle bool
}

func run(cfg ProbeConfig) error {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = config.ParseString("REFCAP_BASE_URL", "")
	}
	if baseURL == "" {
		baseURL = "http://localhost:8484"
	}

	report := ProbeReport{
		Timestamp: time.Now(),
		BaseURL:   baseURL,
		Checks:    make([]CheckResult, 0),
		Environment: map[string]string{
			"USER": config.ParseString("USER", ""),
		},
	}

	// Helper to capture body in error
	runCheck := func(name string, fn func() (string, error)) {
		start := time.Now()
		bodyCaptured, err := fn()
		latency := time.Since(start).Milliseconds()

		res := CheckResult{
			Name:      name,
			Passed:    err == nil,
			LatencyMs: latency,
			Body:      bodyCaptured,
		}
		if err != nil {
			res.Details = err.Error()
		}
		report.Checks = append(report.Checks, res)
		if err != nil {
			fmt.Printf("FAIL: %s (%s)\n", name, err)
		} else {
			fmt.Printf("PASS: %s (%dms)\n", name, latency)
		}
	}

	// 0. Server Identity (Check the daemon is awake before anything else)
	runCheck("Server_Identity", func() (string, error) {
		code, _, bodyBytes, err := doRequest("GET", baseURL+"/healthz", nil)
		if err != nil {
			return "", fmt.Errorf("net error: %v", err)
		}

		// /healthz is unauthenticated, anything but 200 means the
		// daemon is missing or broken.
		if code == http.StatusNotFound {
			return string(bodyBytes), fmt.Errorf("server returned 404 (Not Found) - refcap API likely not mounted")
		}
		if code != http.StatusOK {
			return string(bodyBytes), fmt.Errorf("unexpected status: %d", code)
		}

		var health struct {
			Status string `json:"status"`
		}
		if err := json.Unmarshal(bodyBytes, &health); err != nil {
			return string(bodyBytes), fmt.Errorf("invalid json body: %v", err)
		}
		if health.Status != "ok" {
			return string(bodyBytes), fmt.Errorf("health status mismatch: got %q want %q", health.Status, "ok")
		}
		return "", nil
	})

	// 1. Metrics endpoint serves our own series
	runCheck("Metrics_Exposed", func() (string, error) {
		code, _, bodyBytes, err := doRequest("GET", baseURL+"/metrics", nil)
		if err != nil {
			return "", fmt.Errorf("net error: %v", err)
		}
		if code != http.StatusOK {
			return string(bodyBytes), fmt.Errorf("failed status: %d", code)
		}
		if !strings.Contains(string(bodyBytes), "refcap_") {
			return "", fmt.Errorf("no refcap_ series in metrics output")
		}
		return "", nil
	})

	// 2. Session snapshot always has a state, even when idle
	runCheck("Session_Snapshot", func() (string, error) {
		code, _, bodyBytes, err := doRequest("GET", baseURL+"/api/v1/session", nil)
		if err != nil {
			return "", fmt.Errorf("net error: %v", err)
		}
		if code != http.StatusOK {
			return string(bodyBytes), fmt.Errorf("failed status: %d", code)
		}

		var snap struct {
			State string `json:"state"`
		}
		if err := json.Unmarshal(bodyBytes, &snap); err != nil {
			return string(bodyBytes), fmt.Errorf("invalid json body: %v", err)
		}
		if snap.State == "" {
			return string(bodyBytes), fmt.Errorf("session state is empty")
		}
		return "", nil
	})

	// 3. System / Router Checks
	runCheck("Router_404_RFC7807", func() (string, error) {
		return checkRFC7807(baseURL+"/api/v1/non-existent-route", http.StatusNotFound, "NOT_FOUND")
	})

	runCheck("Router_405_RFC7807", func() (string, error) {
		// Captures are POST only, GET should be 405
		return checkRFC7807(baseURL+"/api/v1/captures", http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED")
	})

	// 4. Run history with pagination
	runCheck("Runs_Listing", func() (string, error) {
		code, _, bodyBytes, err := doRequest("GET", baseURL+"/api/v1/runs?limit=1", nil)
		if err != nil {
			return "", fmt.Errorf("net error: %v", err)
		}
		if code != http.StatusOK {
			return string(bodyBytes), fmt.Errorf("failed status: %d", code)
		}

		var listing struct {
			Runs       []json.RawMessage `json:"runs"`
			Pagination *struct {
				Limit int `json:"limit"`
			} `json:"pagination"`
		}
		if err := json.Unmarshal(bodyBytes, &listing); err != nil {
			return string(bodyBytes), fmt.Errorf("invalid json body: %v", err)
		}
		if listing.Pagination == nil {
			return string(bodyBytes), fmt.Errorf("pagination block missing")
		}
		if listing.Pagination.Limit != 1 {
			return string(bodyBytes), fmt.Errorf("limit not honored: got %d want 1", listing.Pagination.Limit)
		}
		return "", nil
	})

	// 5. On-demand device probe (requires the API token)
	runCheck("Device_Probe", func() (string, error) {
		code, _, bodyBytes, err := doRequest("POST", baseURL+"/api/v1/devices/probe", bytes.NewBufferString("{}"))
		if err != nil {
			return "", fmt.Errorf("net error: %v", err)
		}

		if code == http.StatusUnauthorized || code == http.StatusForbidden {
			return string(bodyBytes), fmt.Errorf("auth rejected (%d) - set REFCAP_API_TOKEN", code)
		}
		if code == http.StatusServiceUnavailable {
			return string(bodyBytes), fmt.Errorf("prober unavailable (503)")
		}
		if code != http.StatusOK {
			return string(bodyBytes), fmt.Errorf("failed status: %d", code)
		}

		// A busy or absent device is a valid verdict, not a probe failure.
		var verdict struct {
			State string `json:"state"`
		}
		if err := json.Unmarshal(bodyBytes, &verdict); err != nil {
			return string(bodyBytes), fmt.Errorf("invalid json body: %v", err)
		}
		if verdict.State == "" {
			return string(bodyBytes), fmt.Errorf("probe verdict has no state")
		}
		return "", nil
	})

	// 6. Capture Lifecycle (opt-in: starts a real capture on the device)
	if cfg.CaptureLifecycle {
		var startedSessionID string
		runCheck("Capture_Lifecycle", func() (string, error) {
			// A. Start
			startPayload := map[string]any{}
			if dev := config.ParseString("REFCAP_PROBE_DEVICE", ""); dev != "" {
				startPayload["device_id"] = dev
			}
			body, _ := json.Marshal(startPayload)
			code, _, bodyBytes, err := doRequest("POST", baseURL+"/api/v1/captures", bytes.NewReader(body))
			if err != nil {
				return "", err
			}

			if code == http.StatusConflict {
				return string(bodyBytes), fmt.Errorf("start rejected (409) - set a reference clip and make sure no capture is active")
			}
			if code != http.StatusAccepted {
				return string(bodyBytes), fmt.Errorf("start failed: %d", code)
			}

			var started struct {
				SessionID string `json:"sessionId"`
			}
			if err := json.Unmarshal(bodyBytes, &started); err != nil {
				return string(bodyBytes), fmt.Errorf("decode start response failed: %v", err)
			}
			startedSessionID = started.SessionID

			if startedSessionID == "" {
				return string(bodyBytes), fmt.Errorf("started session ID is empty")
			}

			// --- PROBE HARDENING: IMMEDIATE CLEANUP REGISTRATION ---
			// Invariant: Once a capture runs, we MUST attempt to cancel it.
			// This defer handles panics and early returns.
			defer func() {
				// Best-effort cleanup
				fmt.Printf("CLEANUP: Attempting to cancel session %s\n", startedSessionID)
				delCode, _, _, delErr := doRequest("DELETE", baseURL+"/api/v1/captures/active", nil)
				if delErr != nil {
					fmt.Printf("CLEANUP FAIL: net error %v\n", delErr)
				} else if delCode != http.StatusOK && delCode != http.StatusNotFound {
					fmt.Printf("CLEANUP FAIL: status %d\n", delCode)
				} else {
					fmt.Printf("CLEANUP SUCCESS: Session %s cancelled\n", startedSessionID)
				}
			}()

			// --- PROBE HARDENING: FAILURE INJECTION ---
			if cfg.FailAfterStart != "" {
				fmt.Printf("INJECTING FAILURE: %s\n", cfg.FailAfterStart)
				if cfg.FailAfterStart == "panic" {
					panic("simulated panic after start")
				}
				return "", fmt.Errorf("simulated error after start")
			}

			// B. Read Back (the snapshot must show our session)
			getCode, _, getBody, err := doRequest("GET", baseURL+"/api/v1/session", nil)
			if err != nil {
				return "", fmt.Errorf("read-back net error: %v", err)
			}
			if getCode != http.StatusOK {
				return string(getBody), fmt.Errorf("read-back status error: %d", getCode)
			}

			var snap struct {
				SessionID string `json:"sessionId"`
			}
			if err := json.Unmarshal(getBody, &snap); err != nil {
				return string(getBody), fmt.Errorf("decode snapshot failed: %v", err)
			}
			if snap.SessionID != startedSessionID {
				return string(getBody), fmt.Errorf("snapshot session mismatch: got %s want %s", snap.SessionID, startedSessionID)
			}

			// C. Cancel - explicit to assert the 200 path; the deferred
			// cancel then sees 404, which is fine.
			delCode, _, delBody, err := doRequest("DELETE", baseURL+"/api/v1/captures/active", nil)
			if err != nil {
				return "", fmt.Errorf("cancel net error: %v", err)
			}
			if delCode != http.StatusOK {
				return string(delBody), fmt.Errorf("cancel status error: %d", delCode)
			}

			return "", nil
		})
	} else {
		fmt.Println("SKIP: Capture_Lifecycle (enable with --capture-lifecycle)")
	}

	// Output Report
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(report); err != nil {
		return err
	}

	// Fail if any checks failed
	for _, c := range report.Checks {
		if !c.Passed {
			return fmt.Errorf("one or more checks failed")
		}
	}
	return nil
}

// Wraps http.NewRequest + Auth Injection + Client.Do + Body Read
func doRequest(method, urlStr string, body io.Reader) (int, http.Header, []byte, error) {
	req, err := http.NewRequest(method, urlStr, body)
	if err != nil {
		return 0, nil, nil, err
	}

	// Apply Auth
	if token := config.ParseString("REFCAP_API_TOKEN", ""); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	} // else: no token configured, try anonymous

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		return 0, nil, nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	bodyBytes, err := io.ReadAll(resp.Body)
	return resp.StatusCode, resp.Header, bodyBytes, err
}

func checkRFC7807(urlStr string, expectedStatus int, expectedCode string) (string, error) {
	code, header, bodyBytes, err := doRequest("GET", urlStr, nil)
	if err != nil {
		return "", err
	}

	if code != expectedStatus {
		return string(bodyBytes), fmt.Errorf("status mismatch: got %d want %d", code, expectedStatus)
	}

	contentType := header.Get("Content-Type")
	if !strings.HasPrefix(contentType, "application/problem+json") {
		return string(bodyBytes), fmt.Errorf("content-type mismatch: got %s", contentType)
	}

	var prob struct {
		Code     string `json:"code"`
		Title    string `json:"title"`
		Status   int    `json:"status"`
		Instance string `json:"instance"`
	}
	if err := json.Unmarshal(bodyBytes, &prob); err != nil {
		return string(bodyBytes), fmt.Errorf("invalid json body: %v", err)
	}

	if prob.Code != expectedCode {
		return string(bodyBytes), fmt.Errorf("code mismatch: got %s want %s", prob.Code, expectedCode)
	}
	if prob.Status != expectedStatus {
		return string(bodyBytes), fmt.Errorf("body status mismatch: got %d want %d", prob.Status, expectedStatus)
	}

	// Check instance contains path
	u, _ := url.Parse(urlStr)
	if !strings.Contains(prob.Instance, u.Path) {
		return string(bodyBytes), fmt.Errorf("instance path mismatch: got %s, expected to contain %s", prob.Instance, u.Path)
	}

	return string(bodyBytes), nil
}
