// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"fmt"

	"github.com/ManuGH/refcap/internal/validate"
)

// Validate checks the resolved configuration and returns an aggregated
// error naming every invalid field.
func Validate(cfg Config) error {
	v := validate.New()

	if _, err := validate.ParseLogLevel(cfg.Log.Level); err != nil {
		v.AddError("log.level", err.Error(), cfg.Log.Level)
	}

	v.HostPort("api.listen", cfg.API.Listen)
	v.NonNegative("api.rateLimitPerMin", cfg.API.RateLimitPerMin)

	v.NotEmpty("encoder.bin", cfg.Encoder.Bin)
	v.Range("encoder.crf", cfg.Encoder.CRF, 0, 51)
	if cfg.Encoder.CaptureAudio {
		v.NotEmpty("encoder.audioBitrate", cfg.Encoder.AudioBitrate)
	}

	v.NotEmpty("capture.device", cfg.Capture.Device)
	v.Positive("capture.minLoops", cfg.Capture.MinLoops)
	v.Positive("capture.maxLoops", cfg.Capture.MaxLoops)
	if cfg.Capture.MaxLoops < cfg.Capture.MinLoops {
		v.AddError("capture.maxLoops",
			fmt.Sprintf("must be >= minLoops (%d), got %d", cfg.Capture.MinLoops, cfg.Capture.MaxLoops),
			cfg.Capture.MaxLoops)
	}
	v.PositiveFloat("capture.minDuration", cfg.Capture.MinDuration)
	v.PositiveFloat("capture.maxDuration", cfg.Capture.MaxDuration)
	if cfg.Capture.MaxDuration < cfg.Capture.MinDuration {
		v.AddError("capture.maxDuration",
			fmt.Sprintf("must be >= minDuration (%g), got %g", cfg.Capture.MinDuration, cfg.Capture.MaxDuration),
			cfg.Capture.MaxDuration)
	}
	v.PositiveFloat("capture.bookendDuration", cfg.Capture.BookendDuration)

	v.Range("bookend.whiteThreshold", cfg.Bookend.WhiteThreshold, 1, 255)
	v.Positive("bookend.sampleStride", cfg.Bookend.SampleStride)
	v.PositiveFloat("bookend.minRunSeconds", cfg.Bookend.MinRunSeconds)

	v.PositiveDuration("probe.timeout", cfg.Probe.Timeout)
	v.Positive("probe.attempts", cfg.Probe.Attempts)

	v.NonNegativeDuration("recovery.settleDelay", cfg.Recovery.SettleDelay)

	if cfg.VMAF.Enabled {
		v.NotEmpty("vmaf.model", cfg.VMAF.Model)
	}
	v.NonNegative("vmaf.threads", cfg.VMAF.Threads)

	if cfg.Telemetry.Enabled {
		v.NotEmpty("telemetry.endpoint", cfg.Telemetry.Endpoint)
	}
	v.OneOf("telemetry.protocol", cfg.Telemetry.Protocol, []string{"grpc", "http"})
	v.Ratio("telemetry.sampleRatio", cfg.Telemetry.SampleRatio)

	return v.Err()
}
