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
	// ProbeStepsTotal counts individual probe steps by step name and result.
	ProbeStepsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "refcap_probe_steps_total",
		Help: "Total number of device probe steps by step and result",
	}, []string{"step", "result"})

	// ProbeDuration tracks the full probe sequence runtime.
	ProbeDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "refcap_probe_duration_seconds",
		Help:    "Wall-clock duration of the full device probe sequence",
		Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 3, 5, 8, 13, 20},
	})

	// RecoveryRunsTotal counts recovery attempts by result.
	RecoveryRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "refcap_recovery_runs_total",
		Help: "Total number of device recovery attempts by result",
	}, []string{"result"})
)

// IncProbeStep records the outcome of one probe step.
func IncProbeStep(step string, ok bool) {
	result := "fail"
	if ok {
		result = "ok"
	}
	ProbeStepsTotal.WithLabelValues(step, result).Inc()
}

// ObserveProbeDuration records the full probe sequence runtime.
func ObserveProbeDuration(d time.Duration) {
	ProbeDuration.Observe(d.Seconds())
}

// IncRecoveryRun records a recovery attempt outcome
// (recovered, unrecovered, aborted).
func IncRecoveryRun(result string) {
	if result == "" {
		result = "unknown"
	}
	RecoveryRunsTotal.WithLabelValues(result).Inc()
}
