// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"path/filepath"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel/trace"

	"github.com/ManuGH/refcap/internal/capture"
	"github.com/ManuGH/refcap/internal/device"
	"github.com/ManuGH/refcap/internal/history"
	"github.com/ManuGH/refcap/internal/model"
	"github.com/ManuGH/refcap/internal/platform/fs"
	"github.com/ManuGH/refcap/internal/telemetry"
)

// handleHealthz reports liveness. It never touches the capture pipeline
// so a wedged encoder cannot take the health endpoint down with it.
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":   "ok",
		"version":  s.version,
		"uptime_s": int(time.Since(s.startTime).Seconds()),
	})
}

type startCaptureRequest struct {
	DeviceID string `json:"device_id"`
}

// handleStartCapture starts a capture session. The body is optional;
// an empty body selects the configured default device.
func (s *Server) handleStartCapture(w http.ResponseWriter, r *http.Request) {
	var req startCaptureRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		respondError(w, r, http.StatusBadRequest, ErrInvalidInput, err.Error())
		return
	}

	rec, err := s.manager.Start(r.Context(), req.DeviceID)
	if err != nil {
		span := trace.SpanFromContext(r.Context())
		span.SetAttributes(telemetry.ErrorAttributes(err, "capture_start")...)

		switch {
		case errors.Is(err, model.ErrConcurrentCapture):
			respondError(w, r, http.StatusConflict, ErrCaptureActive, err.Error())
		case errors.Is(err, model.ErrMissingReference):
			respondError(w, r, http.StatusConflict, ErrReferenceMissing, err.Error())
		default:
			respondError(w, r, http.StatusInternalServerError, ErrInternalServer, err.Error())
		}
		return
	}

	span := trace.SpanFromContext(r.Context())
	span.SetAttributes(telemetry.SessionAttributes(rec.SessionID, string(rec.State), string(rec.Reason))...)

	writeJSON(w, http.StatusAccepted, rec)
}

// handleCancelCapture cancels the active session and waits until it
// reached a terminal state, so the response carries the final record.
func (s *Server) handleCancelCapture(w http.ResponseWriter, r *http.Request) {
	if err := s.manager.Cancel(r.Context()); err != nil {
		if errors.Is(err, capture.ErrNoActiveSession) {
			respondError(w, r, http.StatusNotFound, ErrNoActiveCapture)
			return
		}
		respondError(w, r, http.StatusInternalServerError, ErrInternalServer, err.Error())
		return
	}

	snap := s.manager.Snapshot()
	if snap == nil {
		writeJSON(w, http.StatusOK, map[string]string{"status": "cancelled"})
		return
	}

	span := trace.SpanFromContext(r.Context())
	span.SetAttributes(telemetry.SessionAttributes(snap.SessionID, string(snap.State), string(snap.Reason))...)

	writeJSON(w, http.StatusOK, snap)
}

// handleSession returns the current session snapshot. Without an active
// or finished session it synthesizes an idle one so clients always get
// the same shape.
func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	snap := s.manager.Snapshot()
	if snap == nil {
		writeJSON(w, http.StatusOK, model.SessionRecord{State: model.SessionIdle})
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

type setReferenceRequest struct {
	Path string `json:"path"`
}

// handleSetReference registers the reference clip for subsequent
// captures. Paths are confined to the data directory; relative paths
// resolve against it.
func (s *Server) handleSetReference(w http.ResponseWriter, r *http.Request) {
	var req setReferenceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, r, http.StatusBadRequest, ErrInvalidInput, err.Error())
		return
	}
	if req.Path == "" {
		respondError(w, r, http.StatusBadRequest, ErrInvalidInput, "path is required")
		return
	}

	var (
		path string
		err  error
	)
	if filepath.IsAbs(req.Path) {
		path, err = fs.ConfineAbsPath(s.dataDir, req.Path)
	} else {
		path, err = fs.ConfineRelPath(s.dataDir, req.Path)
	}
	if err != nil {
		respondError(w, r, http.StatusBadRequest, ErrInvalidInput, err.Error())
		return
	}
	if err := fs.IsRegularFile(path); err != nil {
		respondError(w, r, http.StatusBadRequest, ErrInvalidInput, err.Error())
		return
	}

	info, err := s.manager.SetReference(r.Context(), path)
	if err != nil {
		span := trace.SpanFromContext(r.Context())
		span.SetAttributes(telemetry.ErrorAttributes(err, "set_reference")...)

		if errors.Is(err, model.ErrValidation) || errors.Is(err, model.ErrMissingReference) {
			respondError(w, r, http.StatusUnprocessableEntity, ErrReferenceInvalid, err.Error())
			return
		}
		respondError(w, r, http.StatusInternalServerError, ErrInternalServer, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, info)
}

// handleRuns lists recorded runs, newest first. Supports offset/limit
// pagination and an optional state filter.
func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	offset, limit := parsePaginationParams(r)

	q := history.ListQuery{Limit: limit, Offset: offset}
	if st := r.URL.Query().Get("state"); st != "" {
		q.State = model.SessionState(st)
	}

	runs, total, err := s.runs.List(r.Context(), q)
	if err != nil {
		respondError(w, r, http.StatusInternalServerError, ErrInternalServer, err.Error())
		return
	}
	if runs == nil {
		runs = []*model.SessionRecord{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"runs": runs,
		"pagination": map[string]int{
			"offset": offset,
			"limit":  limit,
			"total":  total,
			"count":  len(runs),
		},
	})
}

// handleRun returns a single run by ID.
func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	rec, err := s.runs.Get(r.Context(), id)
	if err != nil {
		respondError(w, r, http.StatusInternalServerError, ErrInternalServer, err.Error())
		return
	}
	if rec == nil {
		respondError(w, r, http.StatusNotFound, ErrRunNotFound)
		return
	}

	writeJSON(w, http.StatusOK, rec)
}

// handleProbe runs an on-demand device probe and returns the verdict.
// A non-capturable device is data, not an HTTP error.
func (s *Server) handleProbe(w http.ResponseWriter, r *http.Request) {
	if s.prober == nil {
		respondError(w, r, http.StatusServiceUnavailable, ErrProbeUnavailable)
		return
	}

	res := s.prober.ProbeWithRetry(r.Context(), s.probeAttempts, s.probeDelay)

	span := trace.SpanFromContext(r.Context())
	span.SetAttributes(telemetry.ProbeAttributes(s.device, string(res.State))...)

	writeJSON(w, http.StatusOK, map[string]any{
		"state":  res.State,
		"reason": res.Reason,
		"ok":     res.OK(),
	})
}

// handleDevices enumerates capture devices visible to the encoder.
func (s *Server) handleDevices(w http.ResponseWriter, r *http.Request) {
	if s.prober == nil {
		respondError(w, r, http.StatusServiceUnavailable, ErrProbeUnavailable)
		return
	}

	names, err := s.prober.ListDevices(r.Context())
	if err != nil {
		respondError(w, r, http.StatusBadGateway, ErrDeviceQueryFailed, err.Error())
		return
	}
	if names == nil {
		names = []string{}
	}

	writeJSON(w, http.StatusOK, map[string]any{"devices": names})
}

// handleDeviceFormats lists the capture modes the device advertises.
func (s *Server) handleDeviceFormats(w http.ResponseWriter, r *http.Request) {
	if s.prober == nil {
		respondError(w, r, http.StatusServiceUnavailable, ErrProbeUnavailable)
		return
	}

	formats, err := s.prober.ListFormats(r.Context())
	if err != nil {
		respondError(w, r, http.StatusBadGateway, ErrDeviceQueryFailed, err.Error())
		return
	}
	if formats == nil {
		formats = []device.Format{}
	}

	writeJSON(w, http.StatusOK, map[string]any{"formats": formats})
}

// parsePaginationParams extracts offset and limit from query
// parameters. Defaults: offset=0, limit=100. Max limit: 1000.
func parsePaginationParams(r *http.Request) (offset int, limit int) {
	offset = 0
	limit = 100

	if offsetStr := r.URL.Query().Get("offset"); offsetStr != "" {
		if val, err := strconv.Atoi(offsetStr); err == nil && val >= 0 {
			offset = val
		}
	}

	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if val, err := strconv.Atoi(limitStr); err == nil && val > 0 {
			limit = val
			if limit > 1000 {
				limit = 1000
			}
		}
	}

	return offset, limit
}
