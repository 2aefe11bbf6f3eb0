// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package ffmpeg

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildCaptureArgsFullOrder(t *testing.T) {
	args, err := BuildCaptureArgs(CaptureSpec{
		Device:          "Intensity Shuttle",
		FormatCode:      "Hp29",
		FPS:             29.97,
		Preset:          "fast",
		CRF:             18,
		CaptureAudio:    true,
		AudioBitrate:    "192k",
		DurationSeconds: 33,
		OutputPath:      "/tmp/capture.mp4",
	})
	require.NoError(t, err)

	want := []string{
		"-y",
		"-v", "info",
		"-f", "decklink",
		"-format_code", "hp1080p2997",
		"-video_input", "hdmi",
		"-audio_input", "embedded",
		"-i", "Intensity Shuttle",
		"-c:v", "libx264",
		"-preset", "fast",
		"-crf", "18",
		"-g", "29",
		"-keyint_min", "29",
		"-movflags", "+faststart",
		"-fflags", "+genpts+igndts",
		"-avoid_negative_ts", "1",
		"-t", "33",
		"-c:a", "aac",
		"-b:a", "192k",
		"/tmp/capture.mp4",
	}
	assert.Equal(t, want, args)
}

func TestBuildCaptureArgsVideoOnly(t *testing.T) {
	args, err := BuildCaptureArgs(CaptureSpec{
		Device:          "DeckLink Mini Recorder",
		FPS:             30,
		CRF:             20,
		DurationSeconds: 10,
		OutputPath:      "/tmp/out.mp4",
	})
	require.NoError(t, err)

	joined := strings.Join(args, " ")
	assert.NotContains(t, joined, "-audio_input")
	assert.NotContains(t, joined, "-c:a")
	assert.NotContains(t, joined, "-format_code")
	assert.Contains(t, joined, "-video_input hdmi")
}

func TestBuildCaptureArgsRejectsBadSpec(t *testing.T) {
	tests := []struct {
		name string
		spec CaptureSpec
	}{
		{"missing device", CaptureSpec{OutputPath: "/tmp/x.mp4", DurationSeconds: 5}},
		{"missing output", CaptureSpec{Device: "d", DurationSeconds: 5}},
		{"zero duration", CaptureSpec{Device: "d", OutputPath: "/tmp/x.mp4"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := BuildCaptureArgs(tt.spec)
			assert.Error(t, err)
		})
	}
}

func TestMapFormatCode(t *testing.T) {
	assert.Equal(t, "hp1080p2997", MapFormatCode("Hp29"))
	assert.Equal(t, "hp720p5994", MapFormatCode("hp59"))
	// Raw decklink names pass through.
	assert.Equal(t, "hp1080p50", MapFormatCode("hp1080p50"))
}

func TestBuildExtractArgs(t *testing.T) {
	args := BuildExtractArgs(ExtractSpec{
		InputPath:    "/tmp/capture.mp4",
		StartSeconds: 2.033,
		FPS:          29.97,
		FrameCount:   930,
		Preset:       "fast",
		CRF:          18,
		OutputPath:   "/tmp/aligned.mp4",
	})

	want := []string{
		"-y", "-i", "/tmp/capture.mp4",
		"-ss", "2.033",
		"-c:v", "libx264",
		"-crf", "18",
		"-preset", "fast",
		"-r", "29.97",
		"-frames:v", "930",
		"-an",
		"/tmp/aligned.mp4",
	}
	assert.Equal(t, want, args)
}

func TestBuildExtractArgsZeroStartSkipsSeek(t *testing.T) {
	args := BuildExtractArgs(ExtractSpec{
		InputPath:  "/tmp/ref.mp4",
		FPS:        30,
		CopyAudio:  true,
		OutputPath: "/tmp/ref_aligned.mp4",
	})
	joined := strings.Join(args, " ")
	assert.NotContains(t, joined, "-ss")
	assert.Contains(t, joined, "-c:a copy")
	assert.NotContains(t, joined, "-an")
}

func TestBuildReferenceEncodeArgs(t *testing.T) {
	args := BuildReferenceEncodeArgs("/tmp/ref.mp4", 29.97, "/tmp/out.mp4")
	joined := strings.Join(args, " ")
	assert.Contains(t, joined, "-r 29.97")
	assert.Contains(t, joined, "-c:a copy")
	assert.Contains(t, joined, "-crf 18")
}

func TestBuildRemuxArgs(t *testing.T) {
	args := BuildRemuxArgs("/tmp/broken.mp4", "/tmp/fixed.mp4")
	want := []string{
		"-hide_banner", "-loglevel", "warning",
		"-i", "/tmp/broken.mp4",
		"-c", "copy",
		"-movflags", "faststart",
		"/tmp/fixed.mp4",
	}
	assert.Equal(t, want, args)
}

func TestBuildSignalCheckArgs(t *testing.T) {
	args := BuildSignalCheckArgs("Intensity Shuttle", "Hp29")
	joined := strings.Join(args, " ")
	assert.Contains(t, joined, "-f decklink")
	assert.Contains(t, joined, "-format_code hp1080p2997")
	assert.Contains(t, joined, "-i Intensity Shuttle")
	assert.Contains(t, joined, "-t 1")
	assert.True(t, strings.HasSuffix(joined, "-f null -"))
}

func TestBuildGrayFrameArgs(t *testing.T) {
	args := BuildGrayFrameArgs(GrayFrameSpec{InputPath: "/tmp/cap.mp4", Stride: 5})
	joined := strings.Join(args, " ")
	assert.Contains(t, joined, `select=not(mod(n\,5))`)
	assert.Contains(t, joined, "-fps_mode passthrough")
	assert.Contains(t, joined, "-pix_fmt gray")
	assert.True(t, strings.HasSuffix(joined, "-"))
}

func TestBuildGrayFrameArgsStrideOneSkipsFilter(t *testing.T) {
	args := BuildGrayFrameArgs(GrayFrameSpec{InputPath: "/tmp/cap.mp4", Stride: 1})
	joined := strings.Join(args, " ")
	assert.NotContains(t, joined, "select=")
	assert.NotContains(t, joined, "-fps_mode")
}

func TestBuildVMAFArgs(t *testing.T) {
	args := BuildVMAFArgs(VMAFSpec{
		DistortedPath: "/tmp/cap_aligned.mp4",
		ReferencePath: "/tmp/ref_aligned.mp4",
		Model:         "vmaf_v0.6.1",
		LogPath:       "/tmp/vmaf.json",
		Threads:       4,
	})

	require.Equal(t, "/tmp/cap_aligned.mp4", args[4])
	require.Equal(t, "/tmp/ref_aligned.mp4", args[6])

	joined := strings.Join(args, " ")
	assert.Contains(t, joined, "libvmaf=")
	assert.Contains(t, joined, `model=version\=vmaf_v0.6.1`)
	assert.Contains(t, joined, "n_threads=4")
	assert.Contains(t, joined, "n_subsample=1")
	assert.Contains(t, joined, "log_fmt=json")
	assert.True(t, strings.HasSuffix(joined, "-f null -"))
}

func TestBuildPSNRAndSSIMArgs(t *testing.T) {
	psnr := strings.Join(BuildPSNRArgs("/tmp/d.mp4", "/tmp/r.mp4", "/tmp/psnr.log"), " ")
	assert.Contains(t, psnr, "psnr=stats_file=/tmp/psnr.log")

	ssim := strings.Join(BuildSSIMArgs("/tmp/d.mp4", "/tmp/r.mp4", "/tmp/ssim.log"), " ")
	assert.Contains(t, ssim, "ssim=stats_file=/tmp/ssim.log")
}

func TestEscapeFilterPath(t *testing.T) {
	assert.Equal(t, `C\:/logs/vmaf.json`, escapeFilterPath("C:/logs/vmaf.json"))
	assert.Equal(t, "/plain/path.json", escapeFilterPath("/plain/path.json"))
	assert.Equal(t, `it\'s.json`, escapeFilterPath("it's.json"))
}
