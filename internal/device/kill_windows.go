// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

//go:build windows

package device

import (
	"context"
	"errors"
	"os/exec"
	"strings"
)

// KillStaleEncoders terminates every process with the given image name.
// taskkill exits non-zero when no process matched; that is not a
// failure for this cleanup path.
func KillStaleEncoders(ctx context.Context, processName string) error {
	image := processName
	if !strings.HasSuffix(strings.ToLower(image), ".exe") {
		image += ".exe"
	}
	cmd := exec.CommandContext(ctx, "taskkill", "/F", "/IM", image) // #nosec G204 -- process name derives from validated config
	err := cmd.Run()
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return nil
	}
	return err
}
