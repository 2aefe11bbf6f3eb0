// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package metrics holds the Prometheus instrumentation for the daemon.
// All metrics register themselves via promauto at package init.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SessionsStartedTotal counts accepted capture sessions.
	SessionsStartedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "refcap_sessions_started_total",
		Help: "Total number of capture sessions accepted",
	})

	// SessionsFinishedTotal counts terminal sessions by outcome reason.
	SessionsFinishedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "refcap_sessions_finished_total",
		Help: "Total number of capture sessions reaching a terminal state, by reason",
	}, []string{"reason"})

	// SessionsRejectedTotal counts start requests refused while another
	// session held the device.
	SessionsRejectedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "refcap_sessions_rejected_total",
		Help: "Total number of capture start requests rejected (session already active)",
	})

	// CaptureDuration tracks wall-clock encoder runtime.
	CaptureDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "refcap_capture_duration_seconds",
		Help:    "Wall-clock duration of the encoder phase",
		Buckets: []float64{5, 10, 20, 30, 45, 60, 90, 120, 180, 300},
	})

	// CaptureProgress mirrors the most recent progress percentage.
	CaptureProgress = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "refcap_capture_progress_percent",
		Help: "Progress of the active capture session (0-100)",
	})

	// WatchdogFiredTotal counts captures cut off by the runtime watchdog.
	WatchdogFiredTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "refcap_watchdog_fired_total",
		Help: "Total number of captures terminated by the runtime watchdog",
	})
)

// IncSessionFinished records a terminal session outcome.
func IncSessionFinished(reason string) {
	if reason == "" {
		reason = "unknown"
	}
	SessionsFinishedTotal.WithLabelValues(reason).Inc()
}

// ObserveCaptureDuration records the encoder phase runtime.
func ObserveCaptureDuration(d time.Duration) {
	CaptureDuration.Observe(d.Seconds())
}
