// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package align

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"time"

	"github.com/ManuGH/refcap/internal/log"
	"github.com/ManuGH/refcap/internal/metrics"
	"github.com/ManuGH/refcap/internal/model"
	"github.com/ManuGH/refcap/internal/pipeline/exec/ffmpeg"
	"github.com/ManuGH/refcap/internal/retry"
)

const (
	repairAttempts = 3
	repairDelay    = time.Second
)

// EnsureValid checks that the capture container is readable and, when
// it is not, tries to repair it in place by remuxing the streams into
// a fresh container. Missing or empty files are not repairable; only a
// corrupt container triggers the remux path. On success the repaired
// file has replaced the original under the same path.
func EnsureValid(ctx context.Context, ffprobeBin, ffmpegBin, path string) error {
	err := ffmpeg.ValidateContainer(ctx, ffprobeBin, path)
	if err == nil {
		return nil
	}
	if !errors.Is(err, model.ErrCorruptContainer) {
		return err
	}

	logger := log.WithComponentFromContext(ctx, "align")
	logger.Warn().
		Str(log.FieldPath, path).
		Err(err).
		Msg("capture container unreadable, attempting remux repair")

	policy := retry.Policy{Attempts: repairAttempts, Delay: repairDelay, Backoff: retry.Fixed}
	rerr := retry.Do(ctx, policy, "container repair", func(ctx context.Context) error {
		return repairOnce(ctx, ffprobeBin, ffmpegBin, path)
	})
	if rerr != nil {
		return &model.CorruptContainerError{Path: path, Err: rerr}
	}

	logger.Info().Str(log.FieldPath, path).Msg("capture container repaired")
	return nil
}

// repairOnce remuxes the container into a sibling temp file, validates
// the result and swaps it over the original. The same-directory rename
// keeps the swap atomic.
func repairOnce(ctx context.Context, ffprobeBin, ffmpegBin, path string) error {
	tmp := filepath.Join(filepath.Dir(path), ".repair-"+filepath.Base(path))
	defer os.Remove(tmp)

	if err := ffmpeg.Run(ctx, ffmpegBin, "repair", ffmpeg.BuildRemuxArgs(path, tmp)); err != nil {
		metrics.IncRepairAttempt(false)
		return err
	}
	if err := ffmpeg.ValidateContainer(ctx, ffprobeBin, tmp); err != nil {
		metrics.IncRepairAttempt(false)
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		metrics.IncRepairAttempt(false)
		return err
	}
	metrics.IncRepairAttempt(true)
	return nil
}
