package validation

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/ManuGH/refcap/internal/config"
	"github.com/ManuGH/refcap/internal/log"
	"github.com/ManuGH/refcap/internal/validate"
)

// PerformStartupChecks validates the environment and dependencies before starting the server.
func PerformStartupChecks(_ context.Context, cfg config.Config) error {
	logger := log.WithComponent("startup-check")
	logger.Info().Msg("Running pre-flight startup checks...")

	// 1. Writable working directories
	for _, dir := range []string{cfg.DataDir, cfg.Capture.OutputDir, cfg.History.ReportDir} {
		if err := checkWritableDir(logger, dir); err != nil {
			return fmt.Errorf("directory check failed: %w", err)
		}
	}

	// 2. Encoder toolchain
	if err := checkBinary(logger, "encoder", cfg.Encoder.Bin); err != nil {
		return fmt.Errorf("encoder check failed: %w", err)
	}
	if err := checkBinary(logger, "ffprobe", cfg.Encoder.FFprobeBin); err != nil {
		return fmt.Errorf("ffprobe check failed: %w", err)
	}

	logger.Info().Msg("✅ All startup checks passed")
	return nil
}

// checkWritableDir creates dir if missing and probes it with a throwaway
// write. The daemon owns its data directories, so a missing one is
// created rather than reported.
func checkWritableDir(logger zerolog.Logger, path string) error {
	v := validate.New()
	v.Directory("dir", path, false)
	if err := v.Err(); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}

	testFile := filepath.Join(path, ".write_test")
	if err := os.WriteFile(testFile, []byte("ok"), 0o600); err != nil {
		return fmt.Errorf("directory is not writable: %s (error: %v)", path, err)
	}
	_ = os.Remove(testFile)

	logger.Info().Str("path", path).Msg("✓ Directory is writable")
	return nil
}

// checkBinary resolves bin via PATH lookup, or directly when it names a
// path. A capture daemon without its encoder toolchain cannot do
// anything useful, so this fails startup instead of the first capture.
func checkBinary(logger zerolog.Logger, role, bin string) error {
	if bin == "" {
		return fmt.Errorf("%s binary is not configured", role)
	}

	resolved, err := exec.LookPath(bin)
	if err != nil {
		return fmt.Errorf("%s binary %q not found: %w", role, bin, err)
	}

	logger.Info().Str("role", role).Str("bin", resolved).Msg("✓ Binary resolved")
	return nil
}
