// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package ffmpeg

import (
	"regexp"
	"strconv"
	"time"

	"golang.org/x/time/rate"
)

// Progress is one parsed encoder status line.
type Progress struct {
	Frame   int64
	FPS     float64
	OutTime time.Duration

	HasFrame bool
	HasFPS   bool
	HasTime  bool
}

var (
	frameRe = regexp.MustCompile(`frame=\s*(\d+)`)
	fpsRe   = regexp.MustCompile(`fps=\s*([\d.]+)`)
	timeRe  = regexp.MustCompile(`time=(\d+):(\d+):(\d+(?:\.\d+)?)`)
)

// ParseProgressLine extracts frame counter, encode fps and output
// timestamp from an ffmpeg status line. ok is false for lines carrying
// none of those fields (banners, stream mappings, warnings).
func ParseProgressLine(line string) (Progress, bool) {
	var p Progress

	if m := frameRe.FindStringSubmatch(line); m != nil {
		if v, err := strconv.ParseInt(m[1], 10, 64); err == nil {
			p.Frame = v
			p.HasFrame = true
		}
	}
	if m := fpsRe.FindStringSubmatch(line); m != nil {
		if v, err := strconv.ParseFloat(m[1], 64); err == nil {
			p.FPS = v
			p.HasFPS = true
		}
	}
	if m := timeRe.FindStringSubmatch(line); m != nil {
		h, _ := strconv.Atoi(m[1])
		min, _ := strconv.Atoi(m[2])
		sec, err := strconv.ParseFloat(m[3], 64)
		if err == nil {
			p.OutTime = time.Duration(h)*time.Hour +
				time.Duration(min)*time.Minute +
				time.Duration(sec*float64(time.Second))
			p.HasTime = true
		}
	}

	return p, p.HasFrame || p.HasTime || p.HasFPS
}

// Progress emission policy: percentages never decrease, stay below 100
// while the encoder runs, and are published at most emitRate per second.
// The terminal 100 is emitted once by the session owner, not here.
const (
	emitRate         = rate.Limit(4)
	syntheticCeiling = 95
	// syntheticWindow spans the frame-modulo fallback when no duration
	// is known (10 seconds at the default rate).
	syntheticWindow = 300

	defaultFPS = 30.0
)

// ProgressTracker folds parsed status lines into a rate-capped,
// monotonic percentage. Estimate preference: frame count against the
// expected total (planned duration times the stream's reported fps,
// 30 until reported), then encoder out-time against planned duration,
// then wall clock, then a bounded frame-modulo fallback that keeps
// progress off zero once frames are flowing.
type ProgressTracker struct {
	plannedSeconds float64
	fps            float64
	lastFrame      int64
	startedAt      time.Time
	now            func() time.Time
	limiter        *rate.Limiter
	last           int
}

// NewProgressTracker builds a tracker for a run planned to last
// plannedSeconds. Zero means unknown; only the fallback estimates
// apply then.
func NewProgressTracker(plannedSeconds float64) *ProgressTracker {
	return &ProgressTracker{
		plannedSeconds: plannedSeconds,
		fps:            defaultFPS,
		startedAt:      time.Now(),
		now:            time.Now,
		limiter:        rate.NewLimiter(emitRate, 1),
	}
}

// Current returns the last emitted percentage.
func (t *ProgressTracker) Current() int {
	return t.last
}

// LastFrame returns the highest frame counter observed so far.
func (t *ProgressTracker) LastFrame() int64 {
	return t.lastFrame
}

// FPS returns the stream-reported rate, or the default until one is
// reported.
func (t *ProgressTracker) FPS() float64 {
	return t.fps
}

// ExpectedFrames returns the derived total frame count, zero when the
// planned duration is unknown.
func (t *ProgressTracker) ExpectedFrames() int64 {
	if t.plannedSeconds <= 0 {
		return 0
	}
	return int64(t.plannedSeconds * t.fps)
}

// Observe folds one parsed status line. It returns the percentage to
// publish and whether to publish it; suppressed observations leave the
// emitted state untouched so the next allowed emission catches up.
func (t *ProgressTracker) Observe(p Progress) (int, bool) {
	if p.HasFPS && p.FPS > 0 {
		t.fps = p.FPS
	}
	if p.HasFrame && p.Frame > t.lastFrame {
		t.lastFrame = p.Frame
	}

	expected := t.ExpectedFrames()

	var pct int
	switch {
	case p.HasFrame && expected > 0:
		pct = int(float64(p.Frame) / float64(expected) * 100)
	case p.HasTime && t.plannedSeconds > 0:
		pct = int(p.OutTime.Seconds() / t.plannedSeconds * 100)
	case t.plannedSeconds > 0:
		pct = int(t.now().Sub(t.startedAt).Seconds() / t.plannedSeconds * 100)
	case p.HasFrame:
		// No duration at all: ratchet over a fixed frame window so the
		// bar moves once frames flow, bounded away from done.
		pct = int(p.Frame%syntheticWindow) * 100 / syntheticWindow
		if pct < 1 {
			pct = 1
		}
		if pct > syntheticCeiling {
			pct = syntheticCeiling
		}
	default:
		return t.last, false
	}

	if pct > 99 {
		pct = 99
	}
	if pct <= t.last {
		return t.last, false
	}
	if !t.limiter.Allow() {
		return t.last, false
	}

	t.last = pct
	return pct, true
}
