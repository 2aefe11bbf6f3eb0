// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package align

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

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

// alignConfidence is the fixed confidence reported for bookend-based
// alignment. The method either brackets a loop or fails outright, so
// there is no graded score.
const alignConfidence = 0.95

const defaultScanFPS = 30.0

// Aligner turns a finished capture plus its reference into the
// frame-matched pair of clips the scoring stage consumes.
type Aligner struct {
	FFmpegBin  string
	FFprobeBin string

	WhiteThreshold float64
	Stride         int
	MinRunSeconds  float64

	// Preset and CRF apply to both trim encodes.
	Preset string
	CRF    int

	now func() time.Time
}

// NewAligner builds an aligner from the resolved configuration.
func NewAligner(enc config.EncoderConfig, bk config.BookendConfig) *Aligner {
	return &Aligner{
		FFmpegBin:      enc.Bin,
		FFprobeBin:     enc.FFprobeBin,
		WhiteThreshold: float64(bk.WhiteThreshold),
		Stride:         bk.SampleStride,
		MinRunSeconds:  bk.MinRunSeconds,
		Preset:         enc.Preset,
		CRF:            enc.CRF,
		now:            time.Now,
	}
}

// Run executes the full alignment stage: repair the capture container
// if needed, scan it for bookend runs, derive the content window, and
// cut the aligned pair. onScanProgress, when set, receives the scan's
// own 0-100 percentage; the caller maps it into its stage range.
func (a *Aligner) Run(ctx context.Context, referencePath, capturePath string, onScanProgress func(pct int)) (*model.AlignmentResult, error) {
	ctx, span := telemetry.Tracer("refcap.align").Start(ctx, "align.run",
		trace.WithSpanKind(trace.SpanKindInternal),
	)
	defer span.End()

	result, err := a.run(ctx, referencePath, capturePath, onScanProgress)
	metrics.IncAlignRun(err == nil)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "alignment failed")
		return nil, err
	}
	span.SetStatus(codes.Ok, "")
	return result, nil
}

func (a *Aligner) run(ctx context.Context, referencePath, capturePath string, onScanProgress func(pct int)) (*model.AlignmentResult, error) {
	logger := log.WithComponentFromContext(ctx, "align")

	if referencePath == "" {
		return nil, model.ErrMissingReference
	}
	if _, err := os.Stat(referencePath); err != nil {
		return nil, fmt.Errorf("%w: %s", model.ErrMissingReference, referencePath)
	}

	if err := EnsureValid(ctx, a.FFprobeBin, a.FFmpegBin, capturePath); err != nil {
		return nil, err
	}

	capInfo, err := ffmpeg.ProbeFile(ctx, a.FFprobeBin, capturePath)
	if err != nil {
		return nil, err
	}
	refInfo, err := ffmpeg.ProbeFile(ctx, a.FFprobeBin, referencePath)
	if err != nil {
		return nil, err
	}

	fps := capInfo.FPS
	if fps <= 0 {
		fps = defaultScanFPS
	}

	intervals, err := a.scan(ctx, capInfo, fps, onScanProgress)
	if err != nil {
		return nil, err
	}
	logger.Info().
		Int("intervals", len(intervals)).
		Float64("first_end_s", intervals[0].EndTime).
		Float64("last_start_s", intervals[len(intervals)-1].StartTime).
		Msg("bookend scan complete")

	window, err := ComputeWindow(intervals[0], intervals[len(intervals)-1], fps)
	if err != nil {
		return nil, err
	}

	// A capture that ran long brackets several loops, with inner
	// bookends between them. Trim to the consecutive pair closest to
	// one reference length instead of scoring several loops against
	// a single one.
	if len(intervals) > 2 && refInfo.Duration > 0 && window.Duration > refInfo.Duration*multiLoopFactor {
		if selected, ok := closestLoop(intervals, fps, refInfo.Duration); ok {
			logger.Info().
				Int("intervals", len(intervals)).
				Float64(log.FieldDuration, selected.Duration).
				Float64("reference_duration_s", refInfo.Duration).
				Msg("capture spans multiple loops, trimming to best matching pair")
			window = selected
		}
	}

	delta, mismatch := DurationMismatch(window, refInfo.Duration)
	if mismatch {
		logger.Warn().
			Float64(log.FieldDuration, window.Duration).
			Float64("reference_duration_s", refInfo.Duration).
			Float64("delta_s", delta).
			Msg("content window deviates from reference duration, proceeding")
	}

	alignedRef, alignedCap := a.outputPaths(referencePath, capturePath)
	if err := a.cutPair(ctx, referencePath, capturePath, alignedRef, alignedCap, window, fps); err != nil {
		return nil, err
	}

	trace.SpanFromContext(ctx).SetAttributes(
		telemetry.AlignAttributes(len(intervals), alignConfidence, window.Duration)...,
	)
	logger.Info().
		Str(log.FieldReference, alignedRef).
		Str(log.FieldCapturePath, alignedCap).
		Float64(log.FieldDuration, window.Duration).
		Msg("aligned pair created")

	return &model.AlignmentResult{
		Window:               window,
		AlignedReferencePath: alignedRef,
		AlignedCapturedPath:  alignedCap,
		Confidence:           alignConfidence,
		DurationMismatch:     mismatch,
		RefDuration:          refInfo.Duration,
	}, nil
}

// scan streams decimated grayscale frames out of the capture and runs
// the white-run detector over them. The encoder writes rawvideo to a
// pipe the detector reads; the runner closes the write end on exit so
// the detector sees EOF.
func (a *Aligner) scan(ctx context.Context, info *model.VideoInfo, fps float64, onProgress func(pct int)) ([]model.BookendInterval, error) {
	stride := a.Stride
	if stride < 1 {
		stride = 1
	}

	pr, pw := io.Pipe()
	defer pr.Close()

	src, err := NewFrameSource(pr, info.Width, info.Height, stride)
	if err != nil {
		return nil, err
	}

	runner := ffmpeg.NewRunner(a.FFmpegBin, "scan")
	runner.Stdout = pw
	args := ffmpeg.BuildGrayFrameArgs(ffmpeg.GrayFrameSpec{
		InputPath: info.Path,
		Stride:    stride,
	})
	if err := runner.Start(ctx, args); err != nil {
		_ = pw.Close()
		return nil, err
	}

	cfg := DetectorConfig{
		WhiteThreshold: a.WhiteThreshold,
		Stride:         stride,
		MinRunSeconds:  a.MinRunSeconds,
		FPS:            fps,
		TotalSamples:   info.FrameCount / int64(stride),
	}
	intervals, derr := DetectBookends(src, cfg, onProgress)
	if derr != nil && !errors.Is(derr, model.ErrInsufficientBookends) {
		// Reader died mid-stream; put the encoder down before reaping it.
		_ = runner.Stop(ctx, model.ExitCancelled)
	}
	if _, werr := runner.Wait(ctx); werr != nil {
		return nil, werr
	}
	if derr != nil {
		return nil, derr
	}
	return intervals, nil
}

// cutPair produces both aligned clips concurrently: the reference
// re-encoded in full at the capture's rate, and the content window
// extracted from the capture. Partial outputs are removed on failure.
func (a *Aligner) cutPair(ctx context.Context, referencePath, capturePath, alignedRef, alignedCap string, window model.ContentWindow, fps float64) error {
	frames := int64(math.Round(window.Duration * fps))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return ffmpeg.Run(gctx, a.FFmpegBin, "align-reference",
			ffmpeg.BuildReferenceEncodeArgs(referencePath, fps, alignedRef))
	})
	g.Go(func() error {
		return ffmpeg.Run(gctx, a.FFmpegBin, "align-capture",
			ffmpeg.BuildExtractArgs(ffmpeg.ExtractSpec{
				InputPath:    capturePath,
				StartSeconds: window.Start,
				FPS:          fps,
				FrameCount:   frames,
				Preset:       a.Preset,
				CRF:          a.CRF,
				OutputPath:   alignedCap,
			}))
	})
	if err := g.Wait(); err != nil {
		_ = os.Remove(alignedRef)
		_ = os.Remove(alignedCap)
		return err
	}
	return nil
}

// outputPaths derives the aligned clip names. Both land next to the
// capture file, tagged with a shared timestamp so one run's pair sorts
// together.
func (a *Aligner) outputPaths(referencePath, capturePath string) (string, string) {
	dir := filepath.Dir(capturePath)
	stamp := a.now().Format("20060102_150405")
	refBase := baseName(referencePath)
	capBase := baseName(capturePath)
	alignedRef := filepath.Join(dir, fmt.Sprintf("%s_%s_aligned.mp4", refBase, stamp))
	alignedCap := filepath.Join(dir, fmt.Sprintf("%s_%s_aligned.mp4", capBase, stamp))
	if alignedRef == alignedCap {
		alignedCap = filepath.Join(dir, fmt.Sprintf("%s_%s_aligned_capture.mp4", capBase, stamp))
	}
	return alignedRef, alignedCap
}

func baseName(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
