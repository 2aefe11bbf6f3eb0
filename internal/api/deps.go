// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package api

import (
	"context"
	"time"

	"github.com/ManuGH/refcap/internal/config"
	"github.com/ManuGH/refcap/internal/device"
	"github.com/ManuGH/refcap/internal/history"
	"github.com/ManuGH/refcap/internal/model"
)

// CaptureController drives capture sessions on behalf of HTTP clients.
type CaptureController interface {
	Start(ctx context.Context, deviceID string) (model.SessionRecord, error)
	Cancel(ctx context.Context) error
	Snapshot() *model.SessionRecord
	SetReference(ctx context.Context, path string) (*model.VideoInfo, error)
	Reference() *model.VideoInfo
}

// DeviceInspector answers on-demand questions about the capture card.
type DeviceInspector interface {
	ProbeWithRetry(ctx context.Context, attempts int, delay time.Duration) device.Result
	ListDevices(ctx context.Context) ([]string, error)
	ListFormats(ctx context.Context) ([]device.Format, error)
}

// RunStore reads finished and in-flight runs from the history store.
type RunStore interface {
	Get(ctx context.Context, id string) (*model.SessionRecord, error)
	List(ctx context.Context, q history.ListQuery) ([]*model.SessionRecord, int, error)
}

// Deps holds all dependencies for the API server.
type Deps struct {
	Manager CaptureController
	Prober  DeviceInspector
	Runs    RunStore
	Config  *config.Config
	Version string
}
