// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package device

import (
	"context"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/ManuGH/refcap/internal/log"
	"github.com/ManuGH/refcap/internal/metrics"
)

// DefaultService is the vendor service bounced during recovery when
// service restart is enabled. DeckLink cards run their driver helper
// under this name on systemd hosts.
const DefaultService = "DesktopVideoHelper"

// Recovery resets a wedged capture device: kill every stale encoder
// process system-wide, let the driver settle, bounce the vendor
// service when one is configured, then re-probe once.
type Recovery struct {
	Prober      *Prober
	SettleDelay time.Duration
	// RestartService names an OS service to bounce between kill and
	// re-probe. Empty skips the step.
	RestartService string

	kill   func(ctx context.Context, processName string) error
	bounce func(ctx context.Context, service string) error
}

// NewRecovery builds a recovery policy around the given prober.
func NewRecovery(p *Prober, settle time.Duration, service string) *Recovery {
	if settle <= 0 {
		settle = 5 * time.Second
	}
	return &Recovery{
		Prober:         p,
		SettleDelay:    settle,
		RestartService: service,
		kill:           KillStaleEncoders,
		bounce:         bounceService,
	}
}

// Run executes the recovery sequence and returns the re-probe verdict.
// Every step is best-effort; only context cancellation aborts early.
func (r *Recovery) Run(ctx context.Context) Result {
	logger := log.WithComponentFromContext(ctx, "recovery")

	name := encoderProcessName(r.Prober.Bin)
	logger.Info().
		Str(log.FieldDevice, r.Prober.Device).
		Str("process", name).
		Msg("recovering capture device")

	if err := r.kill(ctx, name); err != nil {
		logger.Warn().Err(err).Msg("stale process kill failed")
	}

	select {
	case <-ctx.Done():
		metrics.IncRecoveryRun("aborted")
		return Result{State: StateUncertain, Reason: "recovery aborted: " + ctx.Err().Error()}
	case <-time.After(r.SettleDelay):
	}

	if r.RestartService != "" {
		if err := r.bounce(ctx, r.RestartService); err != nil {
			logger.Warn().Err(err).Str("service", r.RestartService).Msg("service bounce failed")
		}
	}

	res := r.Prober.Probe(ctx)
	if res.OK() {
		metrics.IncRecoveryRun("recovered")
		logger.Info().Str(log.FieldDevice, r.Prober.Device).Msg("device recovered")
	} else {
		metrics.IncRecoveryRun("unrecovered")
		logger.Warn().
			Str(log.FieldDevice, r.Prober.Device).
			Str("state", string(res.State)).
			Str(log.FieldReason, res.Reason).
			Msg("device still unavailable after recovery")
	}
	return res
}

// encoderProcessName reduces a configured binary path to the process
// name the system-wide kill matches on.
func encoderProcessName(bin string) string {
	if bin == "" {
		return "ffmpeg"
	}
	return filepath.Base(bin)
}

// bounceService restarts an OS service. Best-effort: hosts without
// systemctl simply report an error the caller swallows.
func bounceService(ctx context.Context, service string) error {
	cmd := exec.CommandContext(ctx, "systemctl", "restart", service) // #nosec G204 -- service name comes from validated config
	return cmd.Run()
}
