// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package capture

import (
	"fmt"
	"math"

	"github.com/ManuGH/refcap/internal/config"
	"github.com/ManuGH/refcap/internal/model"
)

// planMargin pads the minimum capture length so clock skew between the
// player and the encoder cannot shave off the last loop.
const planMargin = 1.2

// PlanCapture derives the capture timing from the reference length and
// the loop planning config. One loop is the reference plus the white
// gap on each side; the planned duration covers at least MinLoops full
// loops with margin, clamped to the MaxLoops/MaxDuration ceiling, and
// rounds up to a whole second.
func PlanCapture(refDuration float64, cfg config.CaptureConfig) (model.CapturePlan, error) {
	if refDuration <= 0 {
		return model.CapturePlan{}, fmt.Errorf("%w: reference duration %.3fs", model.ErrMissingReference, refDuration)
	}

	loop := refDuration + 2*cfg.BookendDuration
	minDur := math.Max(loop*float64(cfg.MinLoops), cfg.MinDuration)
	maxDur := math.Min(loop*float64(cfg.MaxLoops), cfg.MaxDuration)

	planned := int(math.Ceil(math.Min(minDur*planMargin, maxDur)))
	if planned < 1 {
		planned = 1
	}

	loops := int(float64(planned) / loop)
	if loops < 1 {
		loops = 1
	}

	return model.CapturePlan{
		LoopDuration:    loop,
		MinDuration:     minDur,
		MaxDuration:     maxDur,
		PlannedDuration: planned,
		Loops:           loops,
	}, nil
}
