// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

//go:build !windows

package device

import (
	"context"
	"errors"
	"os/exec"
)

// KillStaleEncoders terminates every process with the given name. An
// exit status of 1 from pkill means nothing matched, which is fine.
func KillStaleEncoders(ctx context.Context, processName string) error {
	cmd := exec.CommandContext(ctx, "pkill", "-9", "-x", processName) // #nosec G204 -- process name derives from validated config
	err := cmd.Run()
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) && exitErr.ExitCode() == 1 {
		return nil
	}
	return err
}
