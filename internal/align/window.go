// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package align

import (
	"math"

	"github.com/ManuGH/refcap/internal/model"
)

// DurationTolerance is how far the content window may drift from the
// reference duration before the result is flagged.
const DurationTolerance = 0.5

// multiLoopFactor decides when a bracketing window is treated as
// spanning several playback loops rather than one long one.
const multiLoopFactor = 1.5

// ComputeWindow derives the content trim from the bracketing bookends:
// one frame of buffer after the first run ends and before the last run
// starts. Only the first and last interval matter; anything between
// them is repeated content.
func ComputeWindow(first, last model.BookendInterval, fps float64) (model.ContentWindow, error) {
	buffer := 0.0
	if fps > 0 {
		buffer = 1.0 / fps
	}

	start := first.EndTime + buffer
	end := last.StartTime - buffer
	duration := end - start

	if duration <= 0 {
		return model.ContentWindow{}, &model.InvalidTimingError{Start: start, End: end}
	}
	return model.ContentWindow{
		Start:    start,
		End:      end,
		Duration: duration,
	}, nil
}

// DurationMismatch reports how far the window drifts from the
// reference duration and whether that exceeds the tolerance. A
// mismatch is a warning, not a failure: trimming proceeds and the
// consumer is told.
func DurationMismatch(window model.ContentWindow, refDuration float64) (float64, bool) {
	delta := math.Abs(window.Duration - refDuration)
	return delta, delta > DurationTolerance
}

// closestLoop picks, among consecutive bookend pairs, the window whose
// duration is nearest the reference duration. Pairs too tight to hold
// a window are skipped.
func closestLoop(intervals []model.BookendInterval, fps, refDuration float64) (model.ContentWindow, bool) {
	var best model.ContentWindow
	bestDiff := math.Inf(1)
	found := false
	for i := 0; i+1 < len(intervals); i++ {
		w, err := ComputeWindow(intervals[i], intervals[i+1], fps)
		if err != nil {
			continue
		}
		diff := math.Abs(w.Duration - refDuration)
		if diff < bestDiff {
			bestDiff = diff
			best = w
			found = true
		}
	}
	return best, found
}
