// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package ffmpeg

import (
	"context"
	"errors"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/ManuGH/refcap/internal/model"
)

func requirePOSIX(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("test drives a POSIX shell")
	}
}

func TestRunnerCleanExit(t *testing.T) {
	requirePOSIX(t)
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	r := NewRunner("sh", "analysis")
	require.NoError(t, r.Start(context.Background(), []string{"-c", "echo configured >&2"}))

	status, err := r.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, status.Code)
	assert.Equal(t, model.ExitClean, status.Reason)
	assert.False(t, status.EndedAt.Before(status.StartedAt))
	assert.False(t, r.Alive())

	tail := strings.Join(r.LastLogLines(5), "\n")
	assert.Contains(t, tail, "configured")
}

func TestRunnerFailureCarriesStderrTail(t *testing.T) {
	requirePOSIX(t)
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	r := NewRunner("sh", "capture")
	require.NoError(t, r.Start(context.Background(), []string{"-c", "echo 'device busy' >&2; exit 3"}))

	status, err := r.Wait(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, model.ErrEncoderExit))

	var exitErr *model.EncoderExitError
	require.True(t, errors.As(err, &exitErr))
	assert.Equal(t, 3, exitErr.Code)
	assert.Contains(t, strings.Join(exitErr.Tail, " "), "device busy")

	assert.Equal(t, 3, status.Code)
	assert.Equal(t, model.ExitError, status.Reason)
}

func TestRunnerStartFailure(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	r := NewRunner("/nonexistent/encoder-binary", "capture")
	err := r.Start(context.Background(), []string{"-version"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, model.ErrLaunch))

	var launchErr *model.LaunchError
	require.True(t, errors.As(err, &launchErr))
	assert.Equal(t, "/nonexistent/encoder-binary", launchErr.Bin)
}

func TestRunnerDoubleStartRejected(t *testing.T) {
	requirePOSIX(t)
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	r := NewRunner("sh", "capture")
	r.GraceTimeout = 100 * time.Millisecond
	require.NoError(t, r.Start(context.Background(), []string{"-c", "sleep 5"}))
	assert.Error(t, r.Start(context.Background(), []string{"-c", "true"}))

	require.NoError(t, r.Stop(context.Background(), model.ExitCancelled))
	status, err := r.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, model.ExitCancelled, status.Reason)
}

func TestRunnerStopGracefulQuit(t *testing.T) {
	requirePOSIX(t)
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	// The shell exits as soon as the quit token arrives on stdin.
	r := NewRunner("sh", "capture")
	require.NoError(t, r.Start(context.Background(), []string{"-c", "read line; exit 0"}))

	began := time.Now()
	require.NoError(t, r.Stop(context.Background(), model.ExitCancelled))
	assert.Less(t, time.Since(began), r.graceTimeout())

	status, err := r.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, model.ExitCancelled, status.Reason)
}

func TestRunnerStopEscalatesToKillForHungProcess(t *testing.T) {
	requirePOSIX(t)
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	r := NewRunner("sh", "capture")
	r.GraceTimeout = 200 * time.Millisecond
	r.InterruptTimeout = 200 * time.Millisecond
	r.KillTimeout = 2 * time.Second

	// Ignores the quit token and traps the catchable signals; only
	// SIGKILL gets it.
	require.NoError(t, r.Start(context.Background(),
		[]string{"-c", "trap '' TERM INT; while :; do sleep 0.1; done"}))
	assert.True(t, r.Alive())

	began := time.Now()
	err := r.Stop(context.Background(), model.ExitTimeout)
	elapsed := time.Since(began)

	require.NoError(t, err)
	assert.False(t, r.Alive())
	budget := r.GraceTimeout + r.InterruptTimeout + r.KillTimeout
	assert.Lessf(t, elapsed, budget, "stop took %s, budget %s", elapsed, budget)

	status, waitErr := r.Wait(context.Background())
	require.NoError(t, waitErr)
	assert.Equal(t, model.ExitTimeout, status.Reason)
	assert.NotEqual(t, 0, status.Code)
}

func TestRunnerStopBeforeStartIsNoop(t *testing.T) {
	r := NewRunner("sh", "capture")
	assert.False(t, r.Alive())
	assert.NoError(t, r.Stop(context.Background(), model.ExitCancelled))
}

func TestRunnerStopAfterExitIsNoop(t *testing.T) {
	requirePOSIX(t)
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	r := NewRunner("sh", "analysis")
	require.NoError(t, r.Start(context.Background(), []string{"-c", "true"}))
	_, err := r.Wait(context.Background())
	require.NoError(t, err)

	assert.NoError(t, r.Stop(context.Background(), model.ExitCancelled))
}

func TestRunnerLinesStream(t *testing.T) {
	requirePOSIX(t)
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	r := NewRunner("sh", "capture")
	require.NoError(t, r.Start(context.Background(),
		[]string{"-c", "echo one >&2; echo two >&2"}))

	var got []string
	for line := range r.Lines() {
		got = append(got, line)
	}
	assert.Equal(t, []string{"one", "two"}, got)

	_, err := r.Wait(context.Background())
	assert.NoError(t, err)
}
