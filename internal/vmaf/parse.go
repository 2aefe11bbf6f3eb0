// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package vmaf

import (
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
)

// vmafLog mirrors the two libvmaf JSON layouts: pooled_metrics on
// current builds, bare per-frame metrics on older ones.
type vmafLog struct {
	PooledMetrics map[string]struct {
		Mean float64 `json:"mean"`
	} `json:"pooled_metrics"`
	Frames []struct {
		Metrics map[string]float64 `json:"metrics"`
	} `json:"frames"`
}

// parseVMAFLog extracts the pooled VMAF mean plus any pooled PSNR/SSIM
// the log happens to carry. Older logs without pooled_metrics fall back
// to averaging the per-frame values.
func parseVMAFLog(path string) (float64, *float64, *float64, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return 0, nil, nil, fmt.Errorf("vmaf log: %w", err)
	}
	var data vmafLog
	if err := json.Unmarshal(raw, &data); err != nil {
		return 0, nil, nil, fmt.Errorf("vmaf log decode %s: %w", path, err)
	}

	pooled := func(names ...string) *float64 {
		for _, name := range names {
			if m, ok := data.PooledMetrics[name]; ok {
				v := m.Mean
				return &v
			}
		}
		return nil
	}

	if v := pooled("vmaf"); v != nil {
		return *v, pooled("psnr", "psnr_y"), pooled("ssim", "ssim_y"), nil
	}

	frameMean := func(names ...string) *float64 {
		var sum float64
		var n int
		for _, f := range data.Frames {
			for _, name := range names {
				if v, ok := f.Metrics[name]; ok {
					sum += v
					n++
					break
				}
			}
		}
		if n == 0 {
			return nil
		}
		v := sum / float64(n)
		return &v
	}

	if v := frameMean("vmaf"); v != nil {
		return *v, frameMean("psnr", "psnr_y"), frameMean("ssim", "ssim_y"), nil
	}
	return 0, nil, nil, fmt.Errorf("no vmaf metric in %s", path)
}

var (
	psnrAverageRe = regexp.MustCompile(`average:([0-9]+(?:\.[0-9]+)?|inf)`)
	ssimAllRe     = regexp.MustCompile(`All:([0-9]+(?:\.[0-9]+)?)`)
)

// parsePSNRTail pulls the pooled average out of the psnr filter's
// stderr summary line. An "inf" average (bit-identical clips) reads as
// not-a-score rather than a value JSON cannot carry.
func parsePSNRTail(lines []string) (float64, bool) {
	for i := len(lines) - 1; i >= 0; i-- {
		if !strings.Contains(lines[i], "PSNR") {
			continue
		}
		m := psnrAverageRe.FindStringSubmatch(lines[i])
		if m == nil || m[1] == "inf" {
			continue
		}
		if v, err := strconv.ParseFloat(m[1], 64); err == nil {
			return v, true
		}
	}
	return 0, false
}

// parseSSIMTail pulls the All: aggregate out of the ssim filter's
// stderr summary line.
func parseSSIMTail(lines []string) (float64, bool) {
	for i := len(lines) - 1; i >= 0; i-- {
		if !strings.Contains(lines[i], "SSIM") {
			continue
		}
		m := ssimAllRe.FindStringSubmatch(lines[i])
		if m == nil {
			continue
		}
		if v, err := strconv.ParseFloat(m[1], 64); err == nil {
			return v, true
		}
	}
	return 0, false
}
