// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// AlignRunsTotal counts alignment passes by result.
	AlignRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "refcap_align_runs_total",
		Help: "Total number of alignment passes by result",
	}, []string{"result"})

	// BookendIntervalsFound tracks how many white intervals each scan found.
	BookendIntervalsFound = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "refcap_bookend_intervals_found",
		Help:    "Number of white bookend intervals detected per scan",
		Buckets: []float64{0, 1, 2, 3, 4, 6, 8, 11, 15},
	})

	// RepairAttemptsTotal counts container repair attempts by result.
	RepairAttemptsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "refcap_repair_attempts_total",
		Help: "Total number of capture container repair attempts by result",
	}, []string{"result"})

	// VMAFRunsTotal counts quality analysis passes by result.
	VMAFRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "refcap_vmaf_runs_total",
		Help: "Total number of VMAF analysis passes by result",
	}, []string{"result"})

	// VMAFScore mirrors the most recent VMAF score.
	VMAFScore = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "refcap_vmaf_score",
		Help: "VMAF score of the most recent completed analysis",
	})
)

// IncAlignRun records an alignment pass outcome.
func IncAlignRun(success bool) {
	result := "failure"
	if success {
		result = "success"
	}
	AlignRunsTotal.WithLabelValues(result).Inc()
}

// IncRepairAttempt records a container repair attempt outcome.
func IncRepairAttempt(success bool) {
	result := "failure"
	if success {
		result = "success"
	}
	RepairAttemptsTotal.WithLabelValues(result).Inc()
}

// IncVMAFRun records a quality analysis outcome.
func IncVMAFRun(success bool) {
	result := "failure"
	if success {
		result = "success"
	}
	VMAFRunsTotal.WithLabelValues(result).Inc()
}
