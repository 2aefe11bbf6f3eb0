// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package ffmpeg

import (
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

func TestParseProgressLine(t *testing.T) {
	p, ok := ParseProgressLine("frame=  163 fps= 30 q=28.0 size=     512KiB time=00:00:05.43 bitrate= 771.8kbits/s speed=1.01x")
	require.True(t, ok)
	assert.Equal(t, int64(163), p.Frame)
	assert.True(t, p.HasFrame)
	assert.InDelta(t, 30.0, p.FPS, 0.001)
	assert.True(t, p.HasFPS)
	assert.InDelta(t, 5.43, p.OutTime.Seconds(), 0.001)
	assert.True(t, p.HasTime)
}

func TestParseProgressLineTimeOnly(t *testing.T) {
	p, ok := ParseProgressLine("size=    2048KiB time=00:01:02.50 bitrate= 268.4kbits/s speed=   1x")
	require.True(t, ok)
	assert.False(t, p.HasFrame)
	assert.InDelta(t, 62.5, p.OutTime.Seconds(), 0.001)
}

func TestParseProgressLineIgnoresBanners(t *testing.T) {
	for _, line := range []string{
		"Press [q] to stop, [?] for help",
		"Stream mapping:",
		"  Stream #0:0 -> #0:0 (rawvideo (native) -> h264 (libx264))",
		"[decklink @ 0x55d] Found Decklink mode 1920 x 1080",
	} {
		_, ok := ParseProgressLine(line)
		assert.False(t, ok, "line should not parse: %q", line)
	}
}

// uncapped removes the emission rate limit so tracker tests are
// deterministic.
func uncapped(t *ProgressTracker) *ProgressTracker {
	t.limiter = rate.NewLimiter(rate.Inf, 1)
	return t
}

func TestTrackerFrameRatio(t *testing.T) {
	// 30s at the default 30 fps: 900 expected frames.
	tr := uncapped(NewProgressTracker(30))
	require.Equal(t, int64(900), tr.ExpectedFrames())

	steps := []struct {
		frame int64
		want  int
	}{
		{90, 10},
		{225, 25},
		{450, 50},
		{891, 99},
	}
	for _, s := range steps {
		pct, emit := tr.Observe(Progress{Frame: s.frame, HasFrame: true})
		require.True(t, emit, "frame %d", s.frame)
		assert.Equal(t, s.want, pct)
	}

	// The full frame count still reads 99; the session owner publishes 100.
	pct, emit := tr.Observe(Progress{Frame: 900, HasFrame: true})
	assert.False(t, emit)
	assert.Equal(t, 99, pct)
	assert.Equal(t, int64(900), tr.LastFrame())
}

func TestTrackerLearnsReportedRate(t *testing.T) {
	tr := uncapped(NewProgressTracker(30))

	pct, emit := tr.Observe(Progress{Frame: 900, HasFrame: true, FPS: 60, HasFPS: true})
	require.True(t, emit)
	assert.Equal(t, 50, pct)
	assert.InDelta(t, 60.0, tr.FPS(), 0.001)
	assert.Equal(t, int64(1800), tr.ExpectedFrames())
}

func TestTrackerNeverRegresses(t *testing.T) {
	tr := uncapped(NewProgressTracker(30))

	_, emit := tr.Observe(Progress{Frame: 450, HasFrame: true})
	require.True(t, emit)

	pct, emit := tr.Observe(Progress{Frame: 360, HasFrame: true})
	assert.False(t, emit)
	assert.Equal(t, 50, pct)
	assert.Equal(t, 50, tr.Current())
}

func TestTrackerFollowsFrameRatioClosely(t *testing.T) {
	const total = 900
	tr := uncapped(NewProgressTracker(30))

	for frame := int64(1); frame <= total; frame++ {
		line := fmt.Sprintf("frame=%5d fps= 30 q=28.0 time=00:00:%05.2f bitrate=N/A", frame, float64(frame)/30)
		p, ok := ParseProgressLine(line)
		require.True(t, ok)

		pct, emit := tr.Observe(p)
		if !emit {
			continue
		}
		exact := float64(frame) / total * 100
		assert.LessOrEqualf(t, math.Abs(float64(pct)-exact), 1.0,
			"frame %d: emitted %d, exact %.2f", frame, pct, exact)
	}
	assert.Equal(t, 99, tr.Current())
}

func TestTrackerTimeFallback(t *testing.T) {
	tr := uncapped(NewProgressTracker(30))

	pct, emit := tr.Observe(Progress{OutTime: 15 * time.Second, HasTime: true})
	require.True(t, emit)
	assert.Equal(t, 50, pct)
}

func TestTrackerWallClockFallback(t *testing.T) {
	tr := uncapped(NewProgressTracker(100))
	t0 := time.Now()
	tr.startedAt = t0
	tr.now = func() time.Time { return t0.Add(25 * time.Second) }

	// A line with neither frame nor out-time falls back to wall clock.
	pct, emit := tr.Observe(Progress{FPS: 29.9, HasFPS: true})
	require.True(t, emit)
	assert.Equal(t, 25, pct)
}

func TestTrackerFrameWindowFallback(t *testing.T) {
	tr := uncapped(NewProgressTracker(0))

	// First frame lifts progress off zero immediately.
	pct, emit := tr.Observe(Progress{Frame: 1, HasFrame: true})
	require.True(t, emit)
	assert.Equal(t, 1, pct)

	pct, emit = tr.Observe(Progress{Frame: 150, HasFrame: true})
	require.True(t, emit)
	assert.Equal(t, 50, pct)

	// The window peak is bounded away from done.
	pct, emit = tr.Observe(Progress{Frame: 299, HasFrame: true})
	require.True(t, emit)
	assert.Equal(t, syntheticCeiling, pct)

	// Wraparound readings never move the bar backwards.
	_, emit = tr.Observe(Progress{Frame: 301, HasFrame: true})
	assert.False(t, emit)
	assert.Equal(t, syntheticCeiling, tr.Current())
}

func TestTrackerNoEstimateWithoutSignals(t *testing.T) {
	tr := uncapped(NewProgressTracker(0))

	pct, emit := tr.Observe(Progress{FPS: 30, HasFPS: true})
	assert.False(t, emit)
	assert.Equal(t, 0, pct)
}

func TestTrackerRateLimitSuppressesBursts(t *testing.T) {
	tr := NewProgressTracker(30)

	_, emit := tr.Observe(Progress{Frame: 90, HasFrame: true})
	require.True(t, emit)

	// The burst token is spent; an immediate higher reading must wait.
	pct, emit := tr.Observe(Progress{Frame: 180, HasFrame: true})
	assert.False(t, emit)
	assert.Equal(t, 10, pct)
	assert.Equal(t, 10, tr.Current())
}
