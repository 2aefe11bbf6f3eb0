package validation

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/ManuGH/refcap/internal/config"
)

// fakeBinary drops an executable file into dir and returns its path.
func fakeBinary(t *testing.T, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if runtime.GOOS == "windows" {
		path += ".exe"
	}
	if err := os.WriteFile(path, []byte("#!/bin/sh\nexit 0\n"), 0o755); err != nil {
		t.Fatalf("write fake binary: %v", err)
	}
	return path
}

func baseConfig(t *testing.T) config.Config {
	t.Helper()
	dataDir := t.TempDir()
	cfg := config.Config{DataDir: dataDir}
	cfg.Capture.OutputDir = filepath.Join(dataDir, "captures")
	cfg.History.ReportDir = filepath.Join(dataDir, "reports")
	cfg.Encoder.Bin = fakeBinary(t, dataDir, "ffmpeg")
	cfg.Encoder.FFprobeBin = fakeBinary(t, dataDir, "ffprobe")
	return cfg
}

func TestPerformStartupChecks_OK(t *testing.T) {
	cfg := baseConfig(t)

	if err := PerformStartupChecks(context.Background(), cfg); err != nil {
		t.Fatalf("PerformStartupChecks() error = %v", err)
	}

	// Missing directories must have been created.
	for _, dir := range []string{cfg.Capture.OutputDir, cfg.History.ReportDir} {
		info, err := os.Stat(dir)
		if err != nil || !info.IsDir() {
			t.Errorf("expected %s to be created as a directory (err=%v)", dir, err)
		}
	}
}

func TestPerformStartupChecks_MissingEncoder(t *testing.T) {
	cfg := baseConfig(t)
	cfg.Encoder.Bin = filepath.Join(cfg.DataDir, "no-such-ffmpeg")

	err := PerformStartupChecks(context.Background(), cfg)
	if err == nil {
		t.Fatal("expected error for missing encoder binary")
	}
	if !strings.Contains(err.Error(), "encoder") {
		t.Errorf("error should name the encoder role, got %v", err)
	}
}

func TestPerformStartupChecks_UnconfiguredFFprobe(t *testing.T) {
	cfg := baseConfig(t)
	cfg.Encoder.FFprobeBin = ""

	err := PerformStartupChecks(context.Background(), cfg)
	if err == nil {
		t.Fatal("expected error for unconfigured ffprobe binary")
	}
}

func TestCheckWritableDir_FileInPlace(t *testing.T) {
	dataDir := t.TempDir()
	filePath := filepath.Join(dataDir, "occupied")
	if err := os.WriteFile(filePath, []byte("x"), 0o600); err != nil {
		t.Fatalf("write file: %v", err)
	}

	cfg := baseConfig(t)
	cfg.Capture.OutputDir = filePath

	err := PerformStartupChecks(context.Background(), cfg)
	if err == nil {
		t.Fatal("expected error when output dir path is a regular file")
	}
}
