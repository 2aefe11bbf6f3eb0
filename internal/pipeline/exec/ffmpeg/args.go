// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package ffmpeg

import (
	"fmt"
	"strconv"
	"strings"
)

// decklinkFormatMap translates the short format codes operators know
// from the vendor tooling into the decklink demuxer's format names.
var decklinkFormatMap = map[string]string{
	"Hp29": "hp1080p2997",
	"Hp30": "hp1080p30",
	"Hp25": "hp1080p25",
	"hp59": "hp720p5994",
	"hp60": "hp720p60",
	"hp50": "hp720p50",
}

// MapFormatCode resolves a short format code to the decklink format
// name. Unknown codes pass through unchanged so operators can use raw
// decklink names directly.
func MapFormatCode(code string) string {
	if mapped, ok := decklinkFormatMap[code]; ok {
		return mapped
	}
	return code
}

// CaptureSpec describes one decklink capture run.
type CaptureSpec struct {
	Device     string
	FormatCode string
	// FPS drives the keyframe cadence; fractional rates round down.
	FPS          float64
	Preset       string
	CRF          int
	CaptureAudio bool
	AudioBitrate string
	// DurationSeconds bounds the encoder run via -t.
	DurationSeconds int
	OutputPath      string
}

// BuildCaptureArgs assembles the decklink capture command line. The
// format code must precede -i; the decklink demuxer ignores it
// otherwise.
func BuildCaptureArgs(spec CaptureSpec) ([]string, error) {
	if spec.Device == "" {
		return nil, fmt.Errorf("capture device is required")
	}
	if spec.OutputPath == "" {
		return nil, fmt.Errorf("output path is required")
	}
	if spec.DurationSeconds <= 0 {
		return nil, fmt.Errorf("capture duration must be positive, got %d", spec.DurationSeconds)
	}

	gop := int(spec.FPS)
	if gop <= 0 {
		gop = 30
	}
	preset := spec.Preset
	if preset == "" {
		preset = "fast"
	}

	args := []string{
		"-y",
		"-v", "info",
		"-f", "decklink",
	}
	if spec.FormatCode != "" {
		args = append(args, "-format_code", MapFormatCode(spec.FormatCode))
	}
	args = append(args, "-video_input", "hdmi")
	if spec.CaptureAudio {
		args = append(args, "-audio_input", "embedded")
	}
	args = append(args, "-i", spec.Device)

	args = append(args,
		"-c:v", "libx264",
		"-preset", preset,
		"-crf", strconv.Itoa(spec.CRF),
		"-g", strconv.Itoa(gop),
		"-keyint_min", strconv.Itoa(gop),
		"-movflags", "+faststart",
		"-fflags", "+genpts+igndts",
		"-avoid_negative_ts", "1",
		"-t", strconv.Itoa(spec.DurationSeconds),
	)
	if spec.CaptureAudio {
		bitrate := spec.AudioBitrate
		if bitrate == "" {
			bitrate = "192k"
		}
		args = append(args, "-c:a", "aac", "-b:a", bitrate)
	}

	args = append(args, spec.OutputPath)
	return args, nil
}

// BuildRemuxArgs assembles the stream-copy remux used to rebuild a
// container whose index never got written (crash, kill during write).
func BuildRemuxArgs(inputPath, outputPath string) []string {
	return []string{
		"-hide_banner", "-loglevel", "warning",
		"-i", inputPath,
		"-c", "copy",
		"-movflags", "faststart",
		outputPath,
	}
}

// BuildSignalCheckArgs assembles the minimal timed capture used to
// verify a device actually delivers frames. Output is discarded.
func BuildSignalCheckArgs(device, formatCode string) []string {
	args := []string{
		"-hide_banner",
		"-f", "decklink",
	}
	if formatCode != "" {
		args = append(args, "-format_code", MapFormatCode(formatCode))
	}
	args = append(args,
		"-video_input", "hdmi",
		"-i", device,
		"-t", "1",
		"-f", "null", "-",
	)
	return args
}

// BuildListDevicesArgs assembles the decklink device enumeration call.
// ffmpeg exits non-zero for it by design; callers parse stderr.
func BuildListDevicesArgs() []string {
	return []string{
		"-hide_banner",
		"-f", "decklink",
		"-list_devices", "1",
		"-i", "dummy",
	}
}

// BuildListFormatsArgs assembles the per-device format enumeration call.
// Like -list_devices this exits non-zero on success.
func BuildListFormatsArgs(device string) []string {
	return []string{
		"-hide_banner",
		"-f", "decklink",
		"-list_formats", "1",
		"-i", device,
	}
}

// GrayFrameSpec describes a luma scan feed over a capture file.
type GrayFrameSpec struct {
	InputPath string
	// Stride keeps every Nth frame; 1 keeps all.
	Stride int
}

// BuildGrayFrameArgs assembles the rawvideo pipe that feeds the bookend
// scanner: decimated to the stride, converted to 8-bit grayscale,
// streamed to stdout.
func BuildGrayFrameArgs(spec GrayFrameSpec) []string {
	stride := spec.Stride
	if stride < 1 {
		stride = 1
	}
	args := []string{
		"-hide_banner", "-loglevel", "error",
		"-i", spec.InputPath,
	}
	if stride > 1 {
		args = append(args, "-vf", fmt.Sprintf("select=not(mod(n\\,%d))", stride), "-fps_mode", "passthrough")
	}
	args = append(args,
		"-f", "rawvideo",
		"-pix_fmt", "gray",
		"-",
	)
	return args
}

// ExtractSpec describes one aligned-clip encode.
type ExtractSpec struct {
	InputPath string
	// StartSeconds seeks into the input; zero starts at the head.
	StartSeconds float64
	FPS          float64
	// FrameCount forces an exact output length so reference and capture
	// clips match frame for frame.
	FrameCount int64
	Preset     string
	CRF        int
	// CopyAudio keeps the source audio track (reference side only).
	CopyAudio  bool
	OutputPath string
}

// BuildExtractArgs assembles the re-encode that cuts one aligned clip.
func BuildExtractArgs(spec ExtractSpec) []string {
	preset := spec.Preset
	if preset == "" {
		preset = "fast"
	}
	crf := spec.CRF
	if crf <= 0 {
		crf = 18
	}

	args := []string{"-y", "-i", spec.InputPath}
	if spec.StartSeconds > 0 {
		args = append(args, "-ss", formatSeconds(spec.StartSeconds))
	}
	args = append(args,
		"-c:v", "libx264",
		"-crf", strconv.Itoa(crf),
		"-preset", preset,
	)
	if spec.FPS > 0 {
		args = append(args, "-r", formatRate(spec.FPS))
	}
	if spec.FrameCount > 0 {
		args = append(args, "-frames:v", strconv.FormatInt(spec.FrameCount, 10))
	}
	if spec.CopyAudio {
		args = append(args, "-c:a", "copy")
	} else {
		args = append(args, "-an")
	}
	args = append(args, spec.OutputPath)
	return args
}

// BuildReferenceEncodeArgs assembles the re-encode that conforms the
// reference to the capture's frame rate so both clips compare frame
// for frame.
func BuildReferenceEncodeArgs(referencePath string, fps float64, outputPath string) []string {
	return BuildExtractArgs(ExtractSpec{
		InputPath:  referencePath,
		FPS:        fps,
		CopyAudio:  true,
		OutputPath: outputPath,
	})
}

// VMAFSpec describes one quality analysis pass.
type VMAFSpec struct {
	DistortedPath string
	ReferencePath string
	Model         string
	LogPath       string
	Threads       int
}

// BuildVMAFArgs assembles the libvmaf filter invocation. The distorted
// clip is the first input; libvmaf treats the second as reference.
func BuildVMAFArgs(spec VMAFSpec) []string {
	model := spec.Model
	if model == "" {
		model = "vmaf_v0.6.1"
	}
	threads := spec.Threads
	if threads <= 0 {
		threads = 4
	}

	filter := fmt.Sprintf("libvmaf=log_path=%s:log_fmt=json:model=version\\=%s:n_threads=%d:n_subsample=1",
		escapeFilterPath(spec.LogPath), model, threads)

	return []string{
		"-hide_banner",
		"-loglevel", "info",
		"-i", spec.DistortedPath,
		"-i", spec.ReferencePath,
		"-lavfi", filter,
		"-f", "null", "-",
	}
}

// BuildPSNRArgs assembles the psnr filter invocation.
func BuildPSNRArgs(distorted, reference, statsPath string) []string {
	return []string{
		"-hide_banner",
		"-i", distorted,
		"-i", reference,
		"-lavfi", fmt.Sprintf("psnr=stats_file=%s", escapeFilterPath(statsPath)),
		"-f", "null", "-",
	}
}

// BuildSSIMArgs assembles the ssim filter invocation.
func BuildSSIMArgs(distorted, reference, statsPath string) []string {
	return []string{
		"-hide_banner",
		"-i", distorted,
		"-i", reference,
		"-lavfi", fmt.Sprintf("ssim=stats_file=%s", escapeFilterPath(statsPath)),
		"-f", "null", "-",
	}
}

// escapeFilterPath escapes characters the lavfi filter parser treats as
// option separators. Windows drive colons are the common offender.
func escapeFilterPath(p string) string {
	var b strings.Builder
	b.Grow(len(p) + 2)
	for _, r := range p {
		if r == ':' || r == '\'' {
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}

func formatSeconds(s float64) string {
	return strconv.FormatFloat(s, 'f', 3, 64)
}

func formatRate(fps float64) string {
	return strconv.FormatFloat(fps, 'f', -1, 64)
}
