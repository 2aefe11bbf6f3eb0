// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package ffmpeg

import "context"

// Run executes one encoder invocation to completion. Context
// cancellation kills the process; callers bound long encodes with a
// deadline. For supervised runs with stop escalation use a Runner
// directly.
func Run(ctx context.Context, bin, purpose string, args []string) error {
	r := NewRunner(bin, purpose)
	if err := r.Start(ctx, args); err != nil {
		return err
	}
	_, err := r.Wait(ctx)
	return err
}
