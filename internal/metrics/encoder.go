// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// EncoderStartsTotal counts encoder process launches by purpose.
	EncoderStartsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "refcap_encoder_starts_total",
		Help: "Total number of encoder process launches by purpose",
	}, []string{"purpose"})

	// EncoderExitsTotal counts encoder exits by reason.
	EncoderExitsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "refcap_encoder_exits_total",
		Help: "Total number of encoder process exits by reason",
	}, []string{"purpose", "reason"})

	// EncoderStopDuration tracks how long a requested stop took until
	// the process was confirmed dead, across all escalation steps.
	EncoderStopDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "refcap_encoder_stop_duration_seconds",
		Help:    "Time from stop request to confirmed process exit",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 3, 5, 8, 13},
	})

	// EncoderStopEscalationsTotal counts stops that needed a kill after
	// the graceful step expired.
	EncoderStopEscalationsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "refcap_encoder_stop_escalations_total",
		Help: "Total number of encoder stops escalated to SIGKILL",
	})
)

// IncEncoderStart records a process launch.
func IncEncoderStart(purpose string) {
	EncoderStartsTotal.WithLabelValues(purpose).Inc()
}

// IncEncoderExit records a process exit with its reason.
func IncEncoderExit(purpose, reason string) {
	if reason == "" {
		reason = "unknown"
	}
	EncoderExitsTotal.WithLabelValues(purpose, reason).Inc()
}

// ObserveEncoderStop records the stop-to-dead latency.
func ObserveEncoderStop(d time.Duration) {
	EncoderStopDuration.Observe(d.Seconds())
}
