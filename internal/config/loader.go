// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Environment variable keys. ENV always wins over file values.
const (
	EnvDataDir  = "REFCAP_DATA_DIR"
	EnvLogLevel = "REFCAP_LOG_LEVEL"

	EnvAPIListen    = "REFCAP_API_LISTEN"
	EnvAPIToken     = "REFCAP_API_TOKEN"
	EnvAPIRateLimit = "REFCAP_API_RATE_LIMIT"

	EnvFFmpegBin    = "REFCAP_FFMPEG_BIN"
	EnvFFprobeBin   = "REFCAP_FFPROBE_BIN"
	EnvPreset       = "REFCAP_ENCODER_PRESET"
	EnvCRF          = "REFCAP_ENCODER_CRF"
	EnvCaptureAudio = "REFCAP_CAPTURE_AUDIO"
	EnvAudioBitrate = "REFCAP_AUDIO_BITRATE"

	EnvDevice         = "REFCAP_DEVICE"
	EnvFormatCode     = "REFCAP_FORMAT_CODE"
	EnvOutputDir      = "REFCAP_OUTPUT_DIR"
	EnvMinLoops       = "REFCAP_MIN_LOOPS"
	EnvMaxLoops       = "REFCAP_MAX_LOOPS"
	EnvMinCaptureSecs = "REFCAP_MIN_CAPTURE_SECONDS"
	EnvMaxCaptureSecs = "REFCAP_MAX_CAPTURE_SECONDS"
	EnvBookendSecs    = "REFCAP_BOOKEND_SECONDS"

	EnvWhiteThreshold = "REFCAP_WHITE_THRESHOLD"
	EnvSampleStride   = "REFCAP_SAMPLE_STRIDE"
	EnvMinRunSeconds  = "REFCAP_BOOKEND_MIN_RUN"

	EnvProbeTimeout  = "REFCAP_PROBE_TIMEOUT"
	EnvProbeAttempts = "REFCAP_PROBE_ATTEMPTS"
	EnvProbeStrict   = "REFCAP_PROBE_STRICT"

	EnvRecoveryEnabled = "REFCAP_RECOVERY_ENABLED"
	EnvRecoverySettle  = "REFCAP_RECOVERY_SETTLE"
	EnvRecoveryService = "REFCAP_RECOVERY_RESTART_SERVICE"

	EnvVMAFEnabled = "REFCAP_VMAF_ENABLED"
	EnvVMAFModel   = "REFCAP_VMAF_MODEL"
	EnvVMAFThreads = "REFCAP_VMAF_THREADS"
	EnvVMAFPSNR    = "REFCAP_VMAF_PSNR"
	EnvVMAFSSIM    = "REFCAP_VMAF_SSIM"

	EnvOtelEnabled  = "REFCAP_OTEL_ENABLED"
	EnvOtelEndpoint = "REFCAP_OTEL_ENDPOINT"
	EnvOtelProtocol = "REFCAP_OTEL_PROTOCOL"
	EnvOtelRatio    = "REFCAP_OTEL_SAMPLE_RATIO"
	EnvOtelInsecure = "REFCAP_OTEL_INSECURE"

	EnvDBPath    = "REFCAP_DB_PATH"
	EnvReportDir = "REFCAP_REPORT_DIR"
)

// Loader handles configuration loading with precedence
type Loader struct {
	configPath string
	version    string
}

// NewLoader creates a new configuration loader
func NewLoader(configPath, version string) *Loader {
	return &Loader{configPath: configPath, version: version}
}

// Load loads configuration with precedence: ENV > File > Defaults.
// The file is parsed strictly: unknown keys are a hard error.
func (l *Loader) Load() (Config, error) {
	cfg := defaults()

	if l.configPath != "" {
		if err := l.loadFile(&cfg, l.configPath); err != nil {
			return cfg, fmt.Errorf("load config file: %w", err)
		}
	}

	l.mergeEnv(&cfg)

	cfg.Encoder.FFprobeBin = resolveFFprobeBin(cfg.Encoder.FFprobeBin, cfg.Encoder.Bin)

	// DataDir must be absolute before derived paths are filled in.
	if abs, err := filepath.Abs(cfg.DataDir); err == nil {
		cfg.DataDir = abs
	}
	if cfg.Capture.OutputDir == "" {
		cfg.Capture.OutputDir = filepath.Join(cfg.DataDir, "captures")
	}
	if cfg.History.DBPath == "" {
		cfg.History.DBPath = filepath.Join(cfg.DataDir, "refcap.db")
	}
	if cfg.History.ReportDir == "" {
		cfg.History.ReportDir = filepath.Join(cfg.DataDir, "reports")
	}

	cfg.Version = l.version

	if err := Validate(cfg); err != nil {
		return cfg, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// loadFile decodes a YAML file over the defaulted config. Absent keys
// keep their defaults; unknown keys fail the load.
func (l *Loader) loadFile(cfg *Config, path string) error {
	path = filepath.Clean(path)

	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".yaml" && ext != ".yml" {
		return fmt.Errorf("unsupported config format: %s (only YAML supported)", ext)
	}

	// #nosec G304 -- configuration file paths are provided by the operator via CLI/ENV
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read file: %w", err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	if err := dec.Decode(cfg); err != nil {
		if err == io.EOF {
			return nil
		}
		return fmt.Errorf("strict config parse error: %w", err)
	}

	// Reject multiple documents or trailing content.
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return fmt.Errorf("config file contains multiple documents or trailing content")
	}
	return nil
}

// mergeEnv overrides the current values from the environment. Each
// parser uses the current value as its default, so unset keys are a
// no-op and ENV keeps the highest precedence.
func (l *Loader) mergeEnv(cfg *Config) {
	cfg.DataDir = ParseString(EnvDataDir, cfg.DataDir)
	cfg.Log.Level = ParseString(EnvLogLevel, cfg.Log.Level)

	cfg.API.Listen = ParseString(EnvAPIListen, cfg.API.Listen)
	cfg.API.Token = ParseString(EnvAPIToken, cfg.API.Token)
	cfg.API.RateLimitPerMin = ParseInt(EnvAPIRateLimit, cfg.API.RateLimitPerMin)

	cfg.Encoder.Bin = ParseString(EnvFFmpegBin, cfg.Encoder.Bin)
	cfg.Encoder.FFprobeBin = ParseString(EnvFFprobeBin, cfg.Encoder.FFprobeBin)
	cfg.Encoder.Preset = ParseString(EnvPreset, cfg.Encoder.Preset)
	cfg.Encoder.CRF = ParseInt(EnvCRF, cfg.Encoder.CRF)
	cfg.Encoder.CaptureAudio = ParseBool(EnvCaptureAudio, cfg.Encoder.CaptureAudio)
	cfg.Encoder.AudioBitrate = ParseString(EnvAudioBitrate, cfg.Encoder.AudioBitrate)

	cfg.Capture.Device = ParseString(EnvDevice, cfg.Capture.Device)
	cfg.Capture.FormatCode = ParseString(EnvFormatCode, cfg.Capture.FormatCode)
	cfg.Capture.OutputDir = ParseString(EnvOutputDir, cfg.Capture.OutputDir)
	cfg.Capture.MinLoops = ParseInt(EnvMinLoops, cfg.Capture.MinLoops)
	cfg.Capture.MaxLoops = ParseInt(EnvMaxLoops, cfg.Capture.MaxLoops)
	cfg.Capture.MinDuration = ParseFloat(EnvMinCaptureSecs, cfg.Capture.MinDuration)
	cfg.Capture.MaxDuration = ParseFloat(EnvMaxCaptureSecs, cfg.Capture.MaxDuration)
	cfg.Capture.BookendDuration = ParseFloat(EnvBookendSecs, cfg.Capture.BookendDuration)

	cfg.Bookend.WhiteThreshold = ParseInt(EnvWhiteThreshold, cfg.Bookend.WhiteThreshold)
	cfg.Bookend.SampleStride = ParseInt(EnvSampleStride, cfg.Bookend.SampleStride)
	cfg.Bookend.MinRunSeconds = ParseFloat(EnvMinRunSeconds, cfg.Bookend.MinRunSeconds)

	cfg.Probe.Timeout = ParseDuration(EnvProbeTimeout, cfg.Probe.Timeout)
	cfg.Probe.Attempts = ParseInt(EnvProbeAttempts, cfg.Probe.Attempts)
	cfg.Probe.Strict = ParseBool(EnvProbeStrict, cfg.Probe.Strict)

	cfg.Recovery.Enabled = ParseBool(EnvRecoveryEnabled, cfg.Recovery.Enabled)
	cfg.Recovery.SettleDelay = ParseDuration(EnvRecoverySettle, cfg.Recovery.SettleDelay)
	cfg.Recovery.RestartService = ParseBool(EnvRecoveryService, cfg.Recovery.RestartService)

	cfg.VMAF.Enabled = ParseBool(EnvVMAFEnabled, cfg.VMAF.Enabled)
	cfg.VMAF.Model = ParseString(EnvVMAFModel, cfg.VMAF.Model)
	cfg.VMAF.Threads = ParseInt(EnvVMAFThreads, cfg.VMAF.Threads)
	cfg.VMAF.PSNR = ParseBool(EnvVMAFPSNR, cfg.VMAF.PSNR)
	cfg.VMAF.SSIM = ParseBool(EnvVMAFSSIM, cfg.VMAF.SSIM)

	cfg.Telemetry.Enabled = ParseBool(EnvOtelEnabled, cfg.Telemetry.Enabled)
	cfg.Telemetry.Endpoint = ParseString(EnvOtelEndpoint, cfg.Telemetry.Endpoint)
	cfg.Telemetry.Protocol = ParseString(EnvOtelProtocol, cfg.Telemetry.Protocol)
	cfg.Telemetry.SampleRatio = ParseFloat(EnvOtelRatio, cfg.Telemetry.SampleRatio)
	cfg.Telemetry.Insecure = ParseBool(EnvOtelInsecure, cfg.Telemetry.Insecure)

	cfg.History.DBPath = ParseString(EnvDBPath, cfg.History.DBPath)
	cfg.History.ReportDir = ParseString(EnvReportDir, cfg.History.ReportDir)
}

// resolveFFprobeBin returns an effective ffprobe binary path.
//
// Resolution order:
// 1) Explicit ffprobeBin (e.g. REFCAP_FFPROBE_BIN)
// 2) Derive from ffmpegBin (.../ffmpeg -> .../ffprobe) if the derived binary exists
// 3) "ffprobe" (PATH resolution)
func resolveFFprobeBin(ffprobeBin, ffmpegBin string) string {
	ffprobeBin = strings.TrimSpace(ffprobeBin)
	if ffprobeBin != "" {
		return ffprobeBin
	}

	ffmpegBin = strings.TrimSpace(ffmpegBin)
	// Only derive from a concrete ffmpeg path (.../ffmpeg -> .../ffprobe).
	// If ffmpegBin is just "ffmpeg" (PATH), we intentionally do not guess.
	if strings.ContainsRune(ffmpegBin, '/') && filepath.Base(ffmpegBin) == "ffmpeg" {
		candidate := filepath.Join(filepath.Dir(ffmpegBin), "ffprobe")
		if fi, err := os.Stat(candidate); err == nil && !fi.IsDir() {
			return candidate
		}
	}
	return "ffprobe"
}
