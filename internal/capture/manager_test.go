// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package capture

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/ManuGH/refcap/internal/config"
	"github.com/ManuGH/refcap/internal/device"
	"github.com/ManuGH/refcap/internal/history"
	"github.com/ManuGH/refcap/internal/model"
	"github.com/ManuGH/refcap/internal/pipeline/bus"
	"github.com/ManuGH/refcap/internal/pipeline/exec/ffmpeg"
)

func requirePOSIX(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("test drives a POSIX shell")
	}
}

func writeScript(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o755))
	return path
}

// encoderOK emits two parseable status lines and exits cleanly, like a
// capture that ran to its -t limit.
const encoderOK = `for last; do :; done
echo "frame=   30 fps= 30 q=20.0 size=     256kB time=00:00:01.00 bitrate=2097.2kbits/s speed=1.0x" >&2
echo "frame=   60 fps= 30 q=20.0 size=     512kB time=00:00:02.00 bitrate=2097.2kbits/s speed=1.0x" >&2
printf CAPTURED > "$last"
`

// encoderBlocking holds the device until the quit token arrives.
const encoderBlocking = `read line
exit 0
`

func testReference(dir string) model.VideoInfo {
	return model.VideoInfo{
		Path:       filepath.Join(dir, "reference.mp4"),
		Duration:   1.0,
		FPS:        30,
		Width:      4,
		Height:     2,
		Codec:      "h264",
		FrameCount: 30,
	}
}

// newTestManager builds a manager around the given encoder stub, with
// real bus and history plumbing and fakes for the processing stages.
func newTestManager(t *testing.T, encoderBin string) *Manager {
	t.Helper()
	dir := t.TempDir()

	store, err := history.NewStore(filepath.Join(dir, "runs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	ref := testReference(dir)
	m := &Manager{
		encoder: config.EncoderConfig{Bin: encoderBin, Preset: "fast", CRF: 18},
		capture: config.CaptureConfig{
			Device:          "Test Device",
			OutputDir:       filepath.Join(dir, "captures"),
			MinLoops:        1,
			MaxLoops:        2,
			MinDuration:     0.5,
			MaxDuration:     2,
			BookendDuration: 0.1,
		},
		recoveryEnabled: false,
		reportDir:       filepath.Join(dir, "reports"),
		bus:             bus.NewMemoryBus(),
		store:           store,
		newRunner: func() *ffmpeg.Runner {
			return ffmpeg.NewRunner(encoderBin, "capture")
		},
		probeFn: func(ctx context.Context) device.Result {
			return device.Result{State: device.StateAvailable}
		},
		recoverFn: func(ctx context.Context) device.Result {
			return device.Result{State: device.StateAvailable}
		},
		alignFn: func(ctx context.Context, referencePath, capturePath string, onScanProgress func(pct int)) (*model.AlignmentResult, error) {
			onScanProgress(50)
			onScanProgress(100)
			return &model.AlignmentResult{
				Window:               model.ContentWindow{Start: 0.2333, End: 1.2333, Duration: 1.0},
				AlignedReferencePath: filepath.Join(dir, "aligned_reference.mp4"),
				AlignedCapturedPath:  filepath.Join(dir, "aligned_capture.mp4"),
				Confidence:           0.95,
				RefDuration:          1.0,
			}, nil
		},
		scoreFn: func(ctx context.Context, distorted, reference string) (*model.Scores, error) {
			return &model.Scores{VMAF: 87.3}, nil
		},
		killFn: func(ctx context.Context, processName string) error { return nil },
		now:    time.Now,
	}
	m.reference = &ref
	return m
}

// waitDone blocks until the active session's worker finished and
// returns the terminal record.
func waitDone(t *testing.T, m *Manager) model.SessionRecord {
	t.Helper()
	m.mu.Lock()
	s := m.session
	m.mu.Unlock()
	require.NotNil(t, s, "no session started")

	select {
	case <-s.Done():
	case <-time.After(30 * time.Second):
		t.Fatal("session did not reach a terminal state in time")
	}
	return s.Record()
}

func waitState(t *testing.T, m *Manager, want model.SessionState) {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		if rec := m.Snapshot(); rec != nil && rec.State == want {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("session never reached %s", want)
}

func drainStates(sub bus.Subscriber) []model.SessionState {
	var states []model.SessionState
	for {
		select {
		case msg := <-sub.C():
			if ev, ok := msg.(StateEvent); ok {
				states = append(states, ev.NewState)
			}
		default:
			return states
		}
	}
}

func drainProgress(sub bus.Subscriber) []int {
	var pcts []int
	for {
		select {
		case msg := <-sub.C():
			if ev, ok := msg.(ProgressEvent); ok {
				pcts = append(pcts, ev.Percent)
			}
		default:
			return pcts
		}
	}
}

func TestManagerLifecycleCompletes(t *testing.T) {
	requirePOSIX(t)

	dir := t.TempDir()
	encBin := writeScript(t, dir, "encoder", encoderOK)
	m := newTestManager(t, encBin)
	// The leak baseline must include the store's connection pool; it
	// stays open until t.Cleanup, after this check has run.
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	stateSub, err := m.bus.Subscribe(context.Background(), bus.TopicSessionState)
	require.NoError(t, err)
	defer stateSub.Close()
	progressSub, err := m.bus.Subscribe(context.Background(), bus.TopicProgress)
	require.NoError(t, err)
	defer progressSub.Close()
	lineSub, err := m.bus.Subscribe(context.Background(), bus.TopicEncoderLine)
	require.NoError(t, err)
	defer lineSub.Close()

	rec, err := m.Start(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, model.SessionInitializing, rec.State)
	assert.Equal(t, "Test Device", rec.Device)
	assert.NotEmpty(t, rec.SessionID)
	require.NotNil(t, rec.Plan)
	assert.Equal(t, 2, rec.Plan.PlannedDuration)

	final := waitDone(t, m)
	assert.Equal(t, model.SessionCompleted, final.State)
	assert.Equal(t, model.RCompleted, final.Reason)
	assert.Equal(t, 100, final.Percent)
	assert.True(t, strings.HasSuffix(final.CapturePath, "reference_capture.mp4"))
	require.NotNil(t, final.Result)
	assert.InDelta(t, 0.95, final.Result.Confidence, 1e-9)
	require.NotNil(t, final.Scores)
	assert.InDelta(t, 87.3, final.Scores.VMAF, 1e-9)
	assert.Greater(t, final.EndedAtMs, int64(0))

	states := drainStates(stateSub)
	assert.Equal(t, []model.SessionState{
		model.SessionInitializing,
		model.SessionCapturing,
		model.SessionProcessing,
		model.SessionCompleted,
	}, states)

	pcts := drainProgress(progressSub)
	require.NotEmpty(t, pcts)
	for i := 1; i < len(pcts); i++ {
		assert.Greater(t, pcts[i], pcts[i-1], "progress went backwards: %v", pcts)
	}
	assert.Equal(t, 100, pcts[len(pcts)-1])

	sawLine := false
	for drained := false; !drained; {
		select {
		case msg := <-lineSub.C():
			if ev, ok := msg.(EncoderLineEvent); ok && strings.Contains(ev.Line, "frame=") {
				sawLine = true
			}
		default:
			drained = true
		}
	}
	assert.True(t, sawLine, "no encoder diagnostics observed on the bus")

	// The terminal record made it into history and onto disk.
	stored, err := m.store.Get(context.Background(), final.SessionID)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, model.SessionCompleted, stored.State)

	report := filepath.Join(m.reportDir, "run_"+final.SessionID+".json")
	_, err = os.Stat(report)
	assert.NoError(t, err)

	snap := m.Snapshot()
	require.NotNil(t, snap)
	assert.Equal(t, model.SessionCompleted, snap.State)
}

func TestManagerRejectsConcurrentStart(t *testing.T) {
	requirePOSIX(t)

	dir := t.TempDir()
	encBin := writeScript(t, dir, "encoder", encoderBlocking)
	m := newTestManager(t, encBin)
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	first, err := m.Start(context.Background(), "")
	require.NoError(t, err)
	waitState(t, m, model.SessionCapturing)

	_, err = m.Start(context.Background(), "")
	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrConcurrentCapture)
	assert.Contains(t, err.Error(), first.SessionID)

	require.NoError(t, m.Cancel(context.Background()))
	final := waitDone(t, m)
	assert.Equal(t, model.SessionError, final.State)
	assert.Equal(t, model.RCancelled, final.Reason)
}

func TestManagerStartRequiresReference(t *testing.T) {
	m := newTestManager(t, "encoder-unused")
	m.reference = nil

	_, err := m.Start(context.Background(), "")
	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrMissingReference)
	assert.Nil(t, m.Snapshot())
}

func TestManagerCancelStopsEncoder(t *testing.T) {
	requirePOSIX(t)

	dir := t.TempDir()
	encBin := writeScript(t, dir, "encoder", encoderBlocking)
	m := newTestManager(t, encBin)
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	_, err := m.Start(context.Background(), "")
	require.NoError(t, err)
	waitState(t, m, model.SessionCapturing)

	require.NoError(t, m.Cancel(context.Background()))

	final := waitDone(t, m)
	assert.Equal(t, model.SessionError, final.State)
	assert.Equal(t, model.RCancelled, final.Reason)
	assert.Less(t, final.Percent, 100)

	assert.ErrorIs(t, m.Cancel(context.Background()), ErrNoActiveSession)
}

func TestManagerCancelWithoutSession(t *testing.T) {
	m := newTestManager(t, "encoder-unused")
	assert.ErrorIs(t, m.Cancel(context.Background()), ErrNoActiveSession)
	assert.NoError(t, m.Shutdown(context.Background()))
}

func TestManagerLaunchFailure(t *testing.T) {
	m := newTestManager(t, "/nonexistent/encoder-binary")
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	_, err := m.Start(context.Background(), "")
	require.NoError(t, err)

	final := waitDone(t, m)
	assert.Equal(t, model.SessionError, final.State)
	assert.Equal(t, model.RLaunchFailed, final.Reason)
	assert.Less(t, final.Percent, 100)

	stored, err := m.store.Get(context.Background(), final.SessionID)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, model.SessionError, stored.State)
}

func TestManagerEncoderExitFailure(t *testing.T) {
	requirePOSIX(t)

	dir := t.TempDir()
	encBin := writeScript(t, dir, "encoder", `echo "Cannot open device" >&2
exit 3
`)
	m := newTestManager(t, encBin)
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	_, err := m.Start(context.Background(), "")
	require.NoError(t, err)

	final := waitDone(t, m)
	assert.Equal(t, model.SessionError, final.State)
	assert.Equal(t, model.REncoderExit, final.Reason)
	assert.NotEmpty(t, final.Message)
}

func TestManagerWatchdogCompletesSoftly(t *testing.T) {
	requirePOSIX(t)

	dir := t.TempDir()
	// Ignores the quit token and the catchable signals; the watchdog
	// has to escalate all the way to SIGKILL.
	encBin := writeScript(t, dir, "encoder", `trap '' TERM INT
while :; do sleep 0.1; done
`)
	m := newTestManager(t, encBin)
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())
	m.capture.MaxDuration = 1 // planned 1s, watchdog at 2s
	m.newRunner = func() *ffmpeg.Runner {
		r := ffmpeg.NewRunner(encBin, "capture")
		r.GraceTimeout = 100 * time.Millisecond
		r.InterruptTimeout = 100 * time.Millisecond
		r.KillTimeout = 5 * time.Second
		return r
	}

	_, err := m.Start(context.Background(), "")
	require.NoError(t, err)

	final := waitDone(t, m)
	assert.Equal(t, model.SessionCompleted, final.State)
	assert.Equal(t, model.RTimeoutSoft, final.Reason)
	assert.Equal(t, 100, final.Percent)
	assert.Contains(t, final.Message, "watchdog")
}

func TestManagerStrictProbeBlocksLaunch(t *testing.T) {
	m := newTestManager(t, "encoder-unused")
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())
	m.strict = true
	m.probeFn = func(ctx context.Context) device.Result {
		return device.Result{State: device.StateAbsent, Reason: "device not found in enumeration"}
	}
	swept := false
	m.killFn = func(ctx context.Context, processName string) error {
		swept = true
		return nil
	}

	_, err := m.Start(context.Background(), "")
	require.NoError(t, err)

	final := waitDone(t, m)
	assert.Equal(t, model.SessionError, final.State)
	assert.Equal(t, model.RDeviceUnavailable, final.Reason)
	assert.Contains(t, final.Message, "Test Device")
	assert.True(t, swept, "failure cleanup skipped the stale encoder sweep")
}

func TestManagerRecoveryUnblocksUncertainDevice(t *testing.T) {
	requirePOSIX(t)

	dir := t.TempDir()
	encBin := writeScript(t, dir, "encoder", encoderOK)
	m := newTestManager(t, encBin)
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())
	m.recoveryEnabled = true
	m.probeFn = func(ctx context.Context) device.Result {
		return device.Result{State: device.StateUncertain, Reason: "signal check inconclusive"}
	}
	recovered := false
	m.recoverFn = func(ctx context.Context) device.Result {
		recovered = true
		return device.Result{State: device.StateAvailable}
	}

	_, err := m.Start(context.Background(), "")
	require.NoError(t, err)

	final := waitDone(t, m)
	assert.Equal(t, model.SessionCompleted, final.State)
	assert.True(t, recovered, "recovery was never attempted")
}

func TestManagerAlignmentFailure(t *testing.T) {
	requirePOSIX(t)

	dir := t.TempDir()
	encBin := writeScript(t, dir, "encoder", encoderOK)
	m := newTestManager(t, encBin)
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())
	m.alignFn = func(ctx context.Context, referencePath, capturePath string, onScanProgress func(pct int)) (*model.AlignmentResult, error) {
		return nil, &model.InsufficientBookendsError{Found: 1}
	}

	_, err := m.Start(context.Background(), "")
	require.NoError(t, err)

	final := waitDone(t, m)
	assert.Equal(t, model.SessionError, final.State)
	assert.Equal(t, model.RAlignmentFailed, final.Reason)
	assert.Nil(t, final.Result)
}

func TestManagerScoringFailureIsNonFatal(t *testing.T) {
	requirePOSIX(t)

	dir := t.TempDir()
	encBin := writeScript(t, dir, "encoder", encoderOK)
	m := newTestManager(t, encBin)
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())
	m.scoreFn = func(ctx context.Context, distorted, reference string) (*model.Scores, error) {
		return nil, &model.LaunchError{Bin: "ffmpeg", Err: os.ErrNotExist}
	}

	_, err := m.Start(context.Background(), "")
	require.NoError(t, err)

	final := waitDone(t, m)
	assert.Equal(t, model.SessionCompleted, final.State)
	assert.Equal(t, model.RCompleted, final.Reason)
	assert.Nil(t, final.Scores)
	assert.Contains(t, final.Message, "scores unavailable")
	require.NotNil(t, final.Result)
}

func TestManagerSetReference(t *testing.T) {
	requirePOSIX(t)

	dir := t.TempDir()
	ffprobeBin := writeScript(t, dir, "ffprobe", `printf '%s' '{"streams":[{"codec_type":"video","codec_name":"h264","width":1920,"height":1080,"avg_frame_rate":"30/1","nb_frames":"75"}],"format":{"duration":"2.5"}}'
`)
	refPath := filepath.Join(dir, "clip.mp4")
	require.NoError(t, os.WriteFile(refPath, []byte("REF"), 0o644))

	m := newTestManager(t, "encoder-unused")
	m.reference = nil
	m.encoder.FFprobeBin = ffprobeBin

	info, err := m.SetReference(context.Background(), refPath)
	require.NoError(t, err)
	assert.InDelta(t, 2.5, info.Duration, 1e-9)
	assert.InDelta(t, 30.0, info.FPS, 1e-9)
	assert.Equal(t, 1920, info.Width)

	loaded := m.Reference()
	require.NotNil(t, loaded)
	assert.Equal(t, refPath, loaded.Path)
}

func TestManagerSetReferenceProbeFailure(t *testing.T) {
	m := newTestManager(t, "encoder-unused")
	m.reference = nil
	m.encoder.FFprobeBin = "/nonexistent/ffprobe"

	_, err := m.SetReference(context.Background(), "/nonexistent/clip.mp4")
	require.Error(t, err)
	assert.Nil(t, m.Reference())
}
