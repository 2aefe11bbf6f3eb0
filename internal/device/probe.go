// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package device probes capture hardware reachability and recovers
// wedged devices. Probes against this hardware class are known to
// produce false negatives, so results are advisory: callers log an
// uncertain outcome and proceed unless strict mode is on.
package device

import (
	"context"
	"errors"
	"os/exec"
	"regexp"
	"strings"
	"time"

	"github.com/ManuGH/refcap/internal/log"
	"github.com/ManuGH/refcap/internal/metrics"
	"github.com/ManuGH/refcap/internal/model"
	"github.com/ManuGH/refcap/internal/pipeline/exec/ffmpeg"
	"github.com/ManuGH/refcap/internal/procgroup"
	"github.com/ManuGH/refcap/internal/retry"
)

// State classifies what a probe pass learned about the device.
type State string

const (
	// StateAvailable means a functional probe succeeded.
	StateAvailable State = "available"
	// StateBusy means the device exists but another process holds it.
	StateBusy State = "busy"
	// StateAbsent means the device never appeared in any enumeration.
	StateAbsent State = "absent"
	// StateUncertain means the device is enumerated but every
	// functional probe failed.
	StateUncertain State = "uncertain"
)

// Result is one probe verdict. Transient: consumed by the recovery
// policy or the session manager and discarded.
type Result struct {
	State  State
	Reason string
}

// OK reports whether the device can be captured from right now.
func (r Result) OK() bool { return r.State == StateAvailable }

// Format is one capture mode the device advertises.
type Format struct {
	Code        string `json:"code"`
	Description string `json:"description"`
}

var (
	deviceLineRe = regexp.MustCompile(`\[decklink @ [^\]]+\]\s+\[(\d+)\]\s+(.+)`)
	formatLineRe = regexp.MustCompile(`\[decklink @ [^\]]+\]\s+(\S+)\s+(\d+x\d+.*)`)
)

// busyMarkers are the stderr fragments the decklink demuxer emits when
// another process holds the device.
var busyMarkers = []string{"busy", "in use", "already opened"}

// runFunc executes one diagnostic invocation and returns its combined
// output and exit code. A non-nil error means the invocation itself
// could not run (missing binary, timeout), not that the tool exited
// non-zero.
type runFunc func(ctx context.Context, bin string, args []string, timeout time.Duration) (string, int, error)

// Prober runs the diagnostic sequence against one device.
type Prober struct {
	Bin        string
	Device     string
	FormatCode string
	// Timeout bounds each diagnostic invocation.
	Timeout time.Duration

	run runFunc
}

// NewProber builds a prober for the given encoder binary and device.
func NewProber(bin, device, formatCode string, timeout time.Duration) *Prober {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Prober{
		Bin:        bin,
		Device:     device,
		FormatCode: formatCode,
		Timeout:    timeout,
		run:        runCommand,
	}
}

// Probe runs up to three diagnostics in order: device enumeration,
// format listing, and a one-second null capture. Enumeration only
// establishes presence; the first functional probe that succeeds makes
// the device available. A device that is enumerated but fails every
// functional probe reads as uncertain rather than absent.
func (p *Prober) Probe(ctx context.Context) Result {
	logger := log.WithComponentFromContext(ctx, "device")
	began := time.Now()
	defer func() {
		metrics.ObserveProbeDuration(time.Since(began))
	}()

	seen := false

	out, _, err := p.run(ctx, p.Bin, ffmpeg.BuildListDevicesArgs(), p.Timeout)
	switch {
	case err != nil:
		metrics.IncProbeStep("enumerate", false)
		logger.Debug().Err(err).Str(log.FieldDevice, p.Device).Msg("device enumeration failed")
	default:
		metrics.IncProbeStep("enumerate", true)
		if r, busy := busyResult(out); busy {
			return r
		}
		for _, name := range ParseDeviceList(out) {
			if name == p.Device {
				seen = true
				break
			}
		}
	}

	out, code, err := p.run(ctx, p.Bin, ffmpeg.BuildListFormatsArgs(p.Device), p.Timeout)
	if err == nil {
		if r, busy := busyResult(out); busy {
			return r
		}
		// The decklink demuxer exits 1 for -list_formats even on
		// success; the format table is the real signal.
		if (code == 0 || code == 1) && strings.Contains(out, "Supported formats") {
			metrics.IncProbeStep("formats", true)
			return Result{State: StateAvailable, Reason: "format listing succeeded"}
		}
	}
	metrics.IncProbeStep("formats", false)

	out, code, err = p.run(ctx, p.Bin, ffmpeg.BuildSignalCheckArgs(p.Device, p.FormatCode), p.Timeout)
	if err == nil {
		if r, busy := busyResult(out); busy {
			return r
		}
		if code == 0 {
			metrics.IncProbeStep("signal", true)
			return Result{State: StateAvailable, Reason: "signal check passed"}
		}
	}
	metrics.IncProbeStep("signal", false)

	if seen {
		return Result{
			State:  StateUncertain,
			Reason: "device enumerated but all functional probes failed",
		}
	}
	return Result{State: StateAbsent, Reason: "device not found in enumeration"}
}

// ProbeWithRetry repeats the probe sequence under the shared retry
// policy until the device reads available or the budget is spent. The
// last verdict is returned either way.
func (p *Prober) ProbeWithRetry(ctx context.Context, attempts int, delay time.Duration) Result {
	var res Result
	_ = retry.Do(ctx, retry.Policy{Attempts: attempts, Delay: delay, Backoff: retry.Quadratic},
		"device probe", func(ctx context.Context) error {
			res = p.Probe(ctx)
			if res.OK() {
				return nil
			}
			return &model.DeviceUnavailableError{Device: p.Device, Reason: res.Reason}
		})
	return res
}

// ListDevices enumerates capture devices by name.
func (p *Prober) ListDevices(ctx context.Context) ([]string, error) {
	out, _, err := p.run(ctx, p.Bin, ffmpeg.BuildListDevicesArgs(), p.Timeout)
	if err != nil {
		return nil, &model.LaunchError{Bin: p.Bin, Err: err}
	}
	return ParseDeviceList(out), nil
}

// ListFormats enumerates the capture modes the device advertises.
func (p *Prober) ListFormats(ctx context.Context) ([]Format, error) {
	out, _, err := p.run(ctx, p.Bin, ffmpeg.BuildListFormatsArgs(p.Device), p.Timeout)
	if err != nil {
		return nil, &model.LaunchError{Bin: p.Bin, Err: err}
	}
	return ParseFormatList(out), nil
}

// ParseDeviceList extracts device names from enumeration output.
func ParseDeviceList(out string) []string {
	var names []string
	for _, line := range strings.Split(out, "\n") {
		if m := deviceLineRe.FindStringSubmatch(line); m != nil {
			names = append(names, strings.TrimSpace(m[2]))
		}
	}
	return names
}

// ParseFormatList extracts format codes and descriptions from
// -list_formats output. Header lines without a resolution are skipped.
func ParseFormatList(out string) []Format {
	var formats []Format
	for _, line := range strings.Split(out, "\n") {
		if m := formatLineRe.FindStringSubmatch(line); m != nil {
			formats = append(formats, Format{
				Code:        m[1],
				Description: strings.TrimSpace(m[2]),
			})
		}
	}
	return formats
}

func busyResult(out string) (Result, bool) {
	lower := strings.ToLower(out)
	for _, marker := range busyMarkers {
		if strings.Contains(lower, marker) {
			return Result{State: StateBusy, Reason: "device is held by another process"}, true
		}
	}
	return Result{}, false
}

// runCommand is the production runFunc. Non-zero exits are data for
// the caller, not errors; enumeration exits 1 by design.
func runCommand(ctx context.Context, bin string, args []string, timeout time.Duration) (string, int, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, bin, args...) // #nosec G204 -- binary path comes from validated config
	procgroup.Set(cmd)
	out, err := cmd.CombinedOutput()

	if ctx.Err() != nil {
		return string(out), -1, ctx.Err()
	}
	code := 0
	if err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			return string(out), -1, err
		}
		code = exitErr.ExitCode()
	}
	return string(out), code, nil
}
