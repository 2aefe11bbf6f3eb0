// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package vmaf scores an aligned clip pair with libvmaf, optionally
// adding PSNR and SSIM side runs.
package vmaf

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/ManuGH/refcap/internal/config"
	"github.com/ManuGH/refcap/internal/log"
	"github.com/ManuGH/refcap/internal/metrics"
	"github.com/ManuGH/refcap/internal/model"
	"github.com/ManuGH/refcap/internal/pipeline/exec/ffmpeg"
	"github.com/ManuGH/refcap/internal/telemetry"
)

// Analyzer runs the quality metrics over one aligned pair.
type Analyzer struct {
	FFmpegBin string
	Model     string
	Threads   int

	// EnablePSNR and EnableSSIM add the side filters. Their failures
	// are logged and swallowed; only the VMAF run is load-bearing.
	EnablePSNR bool
	EnableSSIM bool
}

// NewAnalyzer builds an analyzer from the resolved configuration.
func NewAnalyzer(enc config.EncoderConfig, v config.VMAFConfig) *Analyzer {
	return &Analyzer{
		FFmpegBin:  enc.Bin,
		Model:      v.Model,
		Threads:    v.Threads,
		EnablePSNR: v.PSNR,
		EnableSSIM: v.SSIM,
	}
}

// Run scores distorted against reference and returns the pooled
// metrics. Log files land next to the distorted clip and their paths
// are reported in the result.
func (a *Analyzer) Run(ctx context.Context, distorted, reference string) (*model.Scores, error) {
	ctx, span := telemetry.Tracer("refcap.vmaf").Start(ctx, "vmaf.score",
		trace.WithSpanKind(trace.SpanKindInternal),
	)
	defer span.End()

	scores, err := a.run(ctx, distorted, reference)
	metrics.IncVMAFRun(err == nil)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "scoring failed")
		return nil, err
	}
	metrics.VMAFScore.Set(scores.VMAF)
	span.SetAttributes(telemetry.ScoreAttributes(a.Model, scores.VMAF)...)
	span.SetStatus(codes.Ok, "")
	return scores, nil
}

func (a *Analyzer) run(ctx context.Context, distorted, reference string) (*model.Scores, error) {
	logger := log.WithComponentFromContext(ctx, "vmaf")
	paths := a.logPaths(distorted)

	var psnrTail, ssimTail []string

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return ffmpeg.Run(gctx, a.FFmpegBin, "vmaf", ffmpeg.BuildVMAFArgs(ffmpeg.VMAFSpec{
			DistortedPath: distorted,
			ReferencePath: reference,
			Model:         a.Model,
			LogPath:       paths["vmaf"],
			Threads:       a.Threads,
		}))
	})
	if a.EnablePSNR {
		g.Go(func() error {
			tail, err := a.sideRun(gctx, "psnr", ffmpeg.BuildPSNRArgs(distorted, reference, paths["psnr"]))
			if err != nil {
				logger.Warn().Err(err).Msg("psnr side run failed, continuing without it")
				return nil
			}
			psnrTail = tail
			return nil
		})
	}
	if a.EnableSSIM {
		g.Go(func() error {
			tail, err := a.sideRun(gctx, "ssim", ffmpeg.BuildSSIMArgs(distorted, reference, paths["ssim"]))
			if err != nil {
				logger.Warn().Err(err).Msg("ssim side run failed, continuing without it")
				return nil
			}
			ssimTail = tail
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("vmaf analysis: %w", err)
	}

	score, pooledPSNR, pooledSSIM, err := parseVMAFLog(paths["vmaf"])
	if err != nil {
		return nil, err
	}

	scores := &model.Scores{VMAF: score, LogPaths: paths}
	if v, ok := parsePSNRTail(psnrTail); ok {
		scores.PSNR = &v
	} else if pooledPSNR != nil {
		scores.PSNR = pooledPSNR
	}
	if v, ok := parseSSIMTail(ssimTail); ok {
		scores.SSIM = &v
	} else if pooledSSIM != nil {
		scores.SSIM = pooledSSIM
	}

	evt := logger.Info().Float64("vmaf", scores.VMAF)
	if scores.PSNR != nil {
		evt = evt.Float64("psnr", *scores.PSNR)
	}
	if scores.SSIM != nil {
		evt = evt.Float64("ssim", *scores.SSIM)
	}
	evt.Msg("quality analysis complete")

	return scores, nil
}

// sideRun executes one optional filter pass and returns its stderr
// tail, where the psnr/ssim filters print their aggregates.
func (a *Analyzer) sideRun(ctx context.Context, purpose string, args []string) ([]string, error) {
	r := ffmpeg.NewRunner(a.FFmpegBin, purpose)
	if err := r.Start(ctx, args); err != nil {
		return nil, err
	}
	if _, err := r.Wait(ctx); err != nil {
		return nil, err
	}
	return r.LastLogLines(10), nil
}

// logPaths derives the per-run artifact paths from the distorted clip
// name, which already carries the session timestamp.
func (a *Analyzer) logPaths(distorted string) map[string]string {
	dir := filepath.Dir(distorted)
	base := strings.TrimSuffix(filepath.Base(distorted), filepath.Ext(distorted))

	paths := map[string]string{
		"vmaf": filepath.Join(dir, base+"_vmaf.json"),
	}
	if a.EnablePSNR {
		paths["psnr"] = filepath.Join(dir, base+"_psnr.txt")
	}
	if a.EnableSSIM {
		paths["ssim"] = filepath.Join(dir, base+"_ssim.txt")
	}
	return paths
}
