// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package ffmpeg

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/ManuGH/refcap/internal/log"
	"github.com/ManuGH/refcap/internal/metrics"
	"github.com/ManuGH/refcap/internal/model"
	"github.com/ManuGH/refcap/internal/procgroup"
)

const (
	defaultGraceTimeout     = 2 * time.Second
	defaultInterruptTimeout = 3 * time.Second
	defaultKillTimeout      = 5 * time.Second

	lineFeedCapacity = 512
)

// Runner manages a single ffmpeg process. There is no restart loop: a
// capture that dies mid-run has lost wall-clock alignment, so the
// caller decides what to do with the failure.
type Runner struct {
	BinPath string
	// Purpose labels metrics and logs (capture, extract, analysis).
	Purpose string

	// Stdout receives the process stdout when set (rawvideo frame
	// pipes). If it implements io.Closer it is closed after exit so
	// pipe readers see EOF.
	Stdout io.Writer

	// Escalation stage timeouts; zero values use the defaults.
	GraceTimeout     time.Duration
	InterruptTimeout time.Duration
	KillTimeout      time.Duration

	ring  *LineRing
	lines chan string

	mu        sync.Mutex
	cmd       *exec.Cmd
	stdin     io.WriteCloser
	start     time.Time
	stopCause string
	status    *model.ExitStatus

	// done closes once the process is confirmed dead and IO drained.
	done     chan struct{}
	resultCh chan error
}

// NewRunner creates a runner for one process lifecycle.
func NewRunner(binPath, purpose string) *Runner {
	if binPath == "" {
		binPath = "ffmpeg"
	}
	if purpose == "" {
		purpose = "capture"
	}
	return &Runner{
		BinPath:  binPath,
		Purpose:  purpose,
		ring:     NewLineRing(256),
		lines:    make(chan string, lineFeedCapacity),
		done:     make(chan struct{}),
		resultCh: make(chan error, 1),
	}
}

// Lines streams stderr lines as the process emits them. The channel
// closes after exit. Slow consumers lose lines; the ring keeps the
// tail for diagnostics either way.
func (r *Runner) Lines() <-chan string {
	return r.lines
}

// LastLogLines returns the most recent stderr lines from the ring.
func (r *Runner) LastLogLines(n int) []string {
	return r.ring.LastN(n)
}

// Alive reports whether a started process has not yet been confirmed
// dead. Non-blocking; false before Start and after the supervisor
// drains IO.
func (r *Runner) Alive() bool {
	r.mu.Lock()
	started := r.cmd != nil
	r.mu.Unlock()
	if !started {
		return false
	}
	select {
	case <-r.done:
		return false
	default:
		return true
	}
}

// Start launches the process and its supervision goroutine. A failed
// launch reports LaunchError; after a successful return the exit is
// delivered through Wait.
func (r *Runner) Start(ctx context.Context, args []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.cmd != nil {
		return fmt.Errorf("runner already started")
	}
	if ctx.Err() != nil {
		return &model.LaunchError{Bin: r.BinPath, Err: ctx.Err()}
	}

	logger := log.WithContext(ctx, log.WithComponent("ffmpeg"))

	cmd := exec.CommandContext(ctx, r.BinPath, args...) // #nosec G204 -- binary path comes from validated config
	procgroup.Set(cmd)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return &model.LaunchError{Bin: r.BinPath, Err: fmt.Errorf("stdin pipe: %w", err)}
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		_ = stdin.Close()
		return &model.LaunchError{Bin: r.BinPath, Err: fmt.Errorf("stderr pipe: %w", err)}
	}
	if r.Stdout != nil {
		cmd.Stdout = r.Stdout
	}

	var ioWg sync.WaitGroup
	ioWg.Add(1)
	go func() {
		defer ioWg.Done()
		scanner := bufio.NewScanner(stderr)
		scanner.Buffer(make([]byte, 0, 64*1024), 256*1024)
		scanner.Split(scanLinesWithCR)
		for scanner.Scan() {
			line := scanner.Text()
			if line == "" {
				continue
			}
			r.ring.Append(line)
			select {
			case r.lines <- line:
			default:
			}
		}
	}()

	logger.Info().
		Str("purpose", r.Purpose).
		Str("command", cmd.String()).
		Msg("starting ffmpeg process")

	if err := cmd.Start(); err != nil {
		_ = stdin.Close()
		// Drain the scanner goroutine; the pipe is closed by Start's failure.
		ioWg.Wait()
		return &model.LaunchError{Bin: r.BinPath, Err: err}
	}

	r.cmd = cmd
	r.stdin = stdin
	r.start = time.Now()
	metrics.IncEncoderStart(r.Purpose)

	go r.supervise(ctx, cmd, &ioWg)
	return nil
}

// supervise waits for process exit, drains IO and publishes the result.
func (r *Runner) supervise(ctx context.Context, cmd *exec.Cmd, ioWg *sync.WaitGroup) {
	waitErr := cmd.Wait()
	ioWg.Wait()
	if c, ok := r.Stdout.(io.Closer); ok {
		_ = c.Close()
	}
	close(r.lines)

	code := 0
	if waitErr != nil {
		code = 1
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			code = exitErr.ExitCode()
		}
	}

	r.mu.Lock()
	reason := r.stopCause
	switch {
	case reason != "":
		// Requested stop; the exit code reflects the signal, not a fault.
		waitErr = nil
	case code == 0:
		reason = model.ExitClean
	case ctx.Err() != nil:
		reason = model.ExitCancelled
		waitErr = ctx.Err()
	default:
		reason = model.ExitError
		waitErr = &model.EncoderExitError{Code: code, Tail: r.ring.LastN(5)}
	}
	status := model.ExitStatus{
		Code:      code,
		Reason:    reason,
		StartedAt: r.start,
		EndedAt:   time.Now(),
	}
	r.status = &status
	r.mu.Unlock()

	metrics.IncEncoderExit(r.Purpose, reason)
	close(r.done)
	r.resultCh <- waitErr
	close(r.resultCh)
}

// Wait blocks until the process has exited and returns its status. A
// non-nil error means the process failed on its own; stops requested
// through Stop never surface as errors here.
func (r *Runner) Wait(ctx context.Context) (model.ExitStatus, error) {
	// resultCh closes after the single send, so repeated Wait calls
	// return immediately with the cached status and a nil error.
	var err error
	select {
	case <-ctx.Done():
		return model.ExitStatus{Code: -1, Reason: model.ExitCancelled}, ctx.Err()
	case e := <-r.resultCh:
		err = e
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.status == nil {
		return model.ExitStatus{Code: -1, Reason: model.ExitError}, err
	}
	return *r.status, err
}

// Stop terminates the process and blocks until it is confirmed dead.
// Escalation: quit token on stdin, then SIGINT to the process group,
// then SIGKILL. The cause becomes the exit reason (cancelled, timeout).
func (r *Runner) Stop(ctx context.Context, cause string) error {
	r.mu.Lock()
	cmd := r.cmd
	stdin := r.stdin
	if cmd == nil {
		r.mu.Unlock()
		return nil
	}
	select {
	case <-r.done:
		r.mu.Unlock()
		return nil
	default:
	}
	if r.stopCause == "" {
		if cause == "" {
			cause = model.ExitCancelled
		}
		r.stopCause = cause
	}
	r.mu.Unlock()

	logger := log.WithContext(ctx, log.WithComponent("ffmpeg"))
	began := time.Now()
	defer func() {
		metrics.ObserveEncoderStop(time.Since(began))
	}()

	// Stage 1: ffmpeg flushes and finalizes the container on a quit
	// token, which keeps the moov atom intact.
	if stdin != nil {
		_, _ = io.WriteString(stdin, "q\n")
		_ = stdin.Close()
	}
	if r.waitDead(r.graceTimeout()) {
		logger.Debug().Str("cause", cause).Msg("process quit gracefully")
		return nil
	}

	// Stage 2: interrupt the whole group; ffmpeg treats SIGINT like a
	// quit request and still writes the trailer.
	if procgroup.Interruptible() {
		logger.Debug().Str("cause", cause).Msg("escalating stop to SIGINT")
		_ = procgroup.Kill(cmd, syscall.SIGINT)
		if r.waitDead(r.interruptTimeout()) {
			return nil
		}
	}

	// Stage 3: hard kill.
	logger.Warn().Str("cause", cause).Msg("escalating stop to SIGKILL")
	metrics.EncoderStopEscalationsTotal.Inc()
	_ = procgroup.Kill(cmd, syscall.SIGKILL)
	if r.waitDead(r.killTimeout()) {
		return nil
	}
	return fmt.Errorf("process did not exit within %s of SIGKILL", r.killTimeout())
}

// waitDead blocks until the supervisor confirms exit or the timeout
// elapses.
func (r *Runner) waitDead(timeout time.Duration) bool {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-r.done:
		return true
	case <-timer.C:
		return false
	}
}

func (r *Runner) graceTimeout() time.Duration {
	if r.GraceTimeout > 0 {
		return r.GraceTimeout
	}
	return defaultGraceTimeout
}

func (r *Runner) interruptTimeout() time.Duration {
	if r.InterruptTimeout > 0 {
		return r.InterruptTimeout
	}
	return defaultInterruptTimeout
}

func (r *Runner) killTimeout() time.Duration {
	if r.KillTimeout > 0 {
		return r.KillTimeout
	}
	return defaultKillTimeout
}
