// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package align

import (
	"errors"
	"io"
	"math"

	"github.com/ManuGH/refcap/internal/metrics"
	"github.com/ManuGH/refcap/internal/model"
)

// DetectorConfig tunes the white-run scan.
type DetectorConfig struct {
	// WhiteThreshold on the 0-255 luminance scale. A sample is white
	// only when its mean exceeds this strictly; a mean equal to the
	// threshold is non-white.
	WhiteThreshold float64
	// Stride is the frame decimation the source was sampled at.
	Stride int
	// MinRunSeconds rejects white flickers shorter than this.
	MinRunSeconds float64
	// FPS is the source video's native rate.
	FPS float64
	// TotalSamples sizes scan progress reporting; zero disables it.
	TotalSamples int64
}

// MinRunSamples converts the minimum bookend duration into a sample
// count at the configured stride.
func (c DetectorConfig) MinRunSamples() int {
	if c.FPS <= 0 || c.Stride < 1 {
		return 1
	}
	n := int(math.Ceil(c.MinRunSeconds / (float64(c.Stride) / c.FPS)))
	if n < 1 {
		n = 1
	}
	return n
}

// sampler yields luminance samples until io.EOF.
type sampler interface {
	Next() (Sample, error)
}

// DetectBookends scans the sample stream for runs of white frames and
// returns one interval per run that meets the minimum length,
// including a final run still open when the stream ends. Fewer than
// two intervals is a hard failure: alignment needs a bracketing pair.
func DetectBookends(src sampler, cfg DetectorConfig, onProgress func(pct int)) ([]model.BookendInterval, error) {
	minRun := cfg.MinRunSamples()

	var (
		intervals []model.BookendInterval
		inRun     bool
		runStart  int64
		runEnd    int64
		runCount  int
		seen      int64
	)

	endRun := func() {
		if inRun && runCount >= minRun {
			intervals = append(intervals, model.BookendInterval{
				StartFrame: runStart,
				EndFrame:   runEnd,
				StartTime:  float64(runStart) / cfg.FPS,
				EndTime:    float64(runEnd) / cfg.FPS,
				FrameCount: int64(runCount),
			})
		}
		inRun = false
		runCount = 0
	}

	for {
		sample, err := src.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, err
		}
		seen++

		if sample.Mean > cfg.WhiteThreshold {
			if !inRun {
				inRun = true
				runStart = sample.Index
			}
			runEnd = sample.Index
			runCount++
		} else {
			endRun()
		}

		if onProgress != nil && cfg.TotalSamples > 0 {
			onProgress(int(seen * 100 / cfg.TotalSamples))
		}
	}
	endRun()

	metrics.BookendIntervalsFound.Observe(float64(len(intervals)))
	if len(intervals) < 2 {
		return nil, &model.InsufficientBookendsError{Found: len(intervals)}
	}
	return intervals, nil
}
