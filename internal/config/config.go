// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package config loads, validates and hot-reloads the daemon
// configuration with precedence ENV > file > defaults.
package config

import "time"

// Config is the resolved runtime configuration.
type Config struct {
	DataDir string `yaml:"dataDir"`

	Log       LogConfig       `yaml:"log"`
	API       APIConfig       `yaml:"api"`
	Encoder   EncoderConfig   `yaml:"encoder"`
	Capture   CaptureConfig   `yaml:"capture"`
	Bookend   BookendConfig   `yaml:"bookend"`
	Probe     ProbeConfig     `yaml:"probe"`
	Recovery  RecoveryConfig  `yaml:"recovery"`
	VMAF      VMAFConfig      `yaml:"vmaf"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	History   HistoryConfig   `yaml:"history"`

	// Version comes from the binary, never from file or ENV.
	Version string `yaml:"-"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

type APIConfig struct {
	Listen string `yaml:"listen"`
	// Token guards mutating endpoints when set; empty disables auth.
	Token           string `yaml:"token"`
	RateLimitPerMin int    `yaml:"rateLimitPerMin"`
}

type EncoderConfig struct {
	Bin          string `yaml:"bin"`
	FFprobeBin   string `yaml:"ffprobeBin"`
	Preset       string `yaml:"preset"`
	CRF          int    `yaml:"crf"`
	CaptureAudio bool   `yaml:"captureAudio"`
	AudioBitrate string `yaml:"audioBitrate"`
}

type CaptureConfig struct {
	Device     string `yaml:"device"`
	FormatCode string `yaml:"formatCode"`
	OutputDir  string `yaml:"outputDir"`

	MinLoops int `yaml:"minLoops"`
	MaxLoops int `yaml:"maxLoops"`
	// Planning clamps, in seconds of wall clock.
	MinDuration float64 `yaml:"minDuration"`
	MaxDuration float64 `yaml:"maxDuration"`
	// BookendDuration is the white-frame gap the looping player inserts
	// between content passes.
	BookendDuration float64 `yaml:"bookendDuration"`
}

type BookendConfig struct {
	WhiteThreshold int     `yaml:"whiteThreshold"`
	SampleStride   int     `yaml:"sampleStride"`
	MinRunSeconds  float64 `yaml:"minRunSeconds"`
}

type ProbeConfig struct {
	Timeout  time.Duration `yaml:"timeout"`
	Attempts int           `yaml:"attempts"`
	// Strict turns an uncertain probe (device listed but signal check
	// inconclusive) into a hard failure.
	Strict bool `yaml:"strict"`
}

type RecoveryConfig struct {
	Enabled     bool          `yaml:"enabled"`
	SettleDelay time.Duration `yaml:"settleDelay"`
	// RestartService additionally bounces the vendor device service
	// between kill and re-probe. Failures there are logged, not fatal.
	RestartService bool `yaml:"restartService"`
}

type VMAFConfig struct {
	Enabled bool   `yaml:"enabled"`
	Model   string `yaml:"model"`
	Threads int    `yaml:"threads"`
	PSNR    bool   `yaml:"psnr"`
	SSIM    bool   `yaml:"ssim"`
}

type TelemetryConfig struct {
	Enabled     bool    `yaml:"enabled"`
	Endpoint    string  `yaml:"endpoint"`
	Protocol    string  `yaml:"protocol"`
	SampleRatio float64 `yaml:"sampleRatio"`
	Insecure    bool    `yaml:"insecure"`
}

type HistoryConfig struct {
	DBPath    string `yaml:"dbPath"`
	ReportDir string `yaml:"reportDir"`
}

// defaults returns the built-in configuration. Paths that derive from
// DataDir stay empty here and are resolved by the Loader once DataDir
// is final.
func defaults() Config {
	return Config{
		DataDir: "./data",
		Log:     LogConfig{Level: "info"},
		API: APIConfig{
			Listen:          ":8484",
			RateLimitPerMin: 60,
		},
		Encoder: EncoderConfig{
			Bin:          "ffmpeg",
			Preset:       "fast",
			CRF:          18,
			CaptureAudio: true,
			AudioBitrate: "192k",
		},
		Capture: CaptureConfig{
			Device:          "Intensity Shuttle",
			MinLoops:        3,
			MaxLoops:        10,
			MinDuration:     5,
			MaxDuration:     300,
			BookendDuration: 0.2,
		},
		Bookend: BookendConfig{
			WhiteThreshold: 230,
			SampleStride:   5,
			MinRunSeconds:  0.25,
		},
		Probe: ProbeConfig{
			Timeout:  5 * time.Second,
			Attempts: 3,
		},
		Recovery: RecoveryConfig{
			Enabled:     true,
			SettleDelay: 10 * time.Second,
		},
		VMAF: VMAFConfig{
			Enabled: true,
			Model:   "vmaf_v0.6.1",
		},
		Telemetry: TelemetryConfig{
			Protocol:    "grpc",
			SampleRatio: 1.0,
		},
	}
}
