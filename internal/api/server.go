// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package api exposes the daemon's HTTP control surface: session
// lifecycle, reference management, run history and device diagnostics.
package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// tracerService names the tracer used for API spans.
const tracerService = "refcap-api"

// Server is the HTTP API server for the capture daemon.
type Server struct {
	manager CaptureController
	prober  DeviceInspector
	runs    RunStore

	token         string
	ratePerMin    int
	dataDir       string
	device        string
	probeAttempts int
	probeDelay    time.Duration
	version       string
	startTime     time.Time
}

// NewServer validates deps and builds a server. Prober may be nil, in
// which case the device diagnostic endpoints answer 503.
func NewServer(d Deps) (*Server, error) {
	if d.Manager == nil {
		return nil, fmt.Errorf("api: capture controller is required")
	}
	if d.Runs == nil {
		return nil, fmt.Errorf("api: run store is required")
	}
	if d.Config == nil {
		return nil, fmt.Errorf("api: config is required")
	}

	return &Server{
		manager:       d.Manager,
		prober:        d.Prober,
		runs:          d.Runs,
		token:         d.Config.API.Token,
		ratePerMin:    d.Config.API.RateLimitPerMin,
		dataDir:       d.Config.DataDir,
		device:        d.Config.Capture.Device,
		probeAttempts: d.Config.Probe.Attempts,
		probeDelay:    time.Second,
		version:       d.Version,
		startTime:     time.Now(),
	}, nil
}

// Handler returns the configured HTTP handler with all routes and
// middleware applied.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	applyStack(r, tracerService, s.ratePerMin)

	// RFC 7807 compliant 404/405 handlers
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeProblem(w, r, http.StatusNotFound, "system/not_found", "Not Found", "NOT_FOUND", "The requested resource was not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeProblem(w, r, http.StatusMethodNotAllowed, "system/method_not_allowed", "Method Not Allowed", "METHOD_NOT_ALLOWED", "The requested method is not allowed for this resource")
	})

	r.Get("/healthz", s.handleHealthz)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		// Read surface stays open; state snapshots carry no secrets.
		r.Get("/session", s.handleSession)
		r.Get("/runs", s.handleRuns)
		r.Get("/runs/{id}", s.handleRun)
		r.Get("/devices", s.handleDevices)
		r.Get("/devices/formats", s.handleDeviceFormats)

		// Everything that touches hardware or state requires the token.
		rw := r.With(s.authMiddleware)
		rw.Post("/captures", s.handleStartCapture)
		rw.Delete("/captures/active", s.handleCancelCapture)
		rw.Put("/reference", s.handleSetReference)
		rw.Post("/devices/probe", s.handleProbe)
	})

	return r
}
