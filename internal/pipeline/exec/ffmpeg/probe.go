// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package ffmpeg

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/ManuGH/refcap/internal/model"
)

const probeTimeout = 10 * time.Second

// ProbeFile inspects a media file with ffprobe and returns its video
// stream parameters. The returned FrameCount falls back to
// duration*fps when the container does not carry nb_frames.
func ProbeFile(ctx context.Context, ffprobeBin, path string) (*model.VideoInfo, error) {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	args := []string{
		"-v", "quiet",
		"-print_format", "json",
		"-show_entries", "stream=codec_type,codec_name,width,height,pix_fmt,r_frame_rate,avg_frame_rate,nb_frames,duration",
		"-show_entries", "format=duration",
		"-i", path,
	}

	cmd := exec.CommandContext(ctx, ffprobeBin, args...)
	var stdout bytes.Buffer
	cmd.Stdout = &stdout

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("ffprobe failed for %s: %w", path, err)
	}

	var data struct {
		Streams []struct {
			CodecType    string `json:"codec_type"`
			CodecName    string `json:"codec_name"`
			Width        int    `json:"width"`
			Height       int    `json:"height"`
			PixFmt       string `json:"pix_fmt"`
			RFrameRate   string `json:"r_frame_rate"`
			AvgFrameRate string `json:"avg_frame_rate"`
			NbFrames     string `json:"nb_frames"`
			Duration     string `json:"duration"`
		} `json:"streams"`
		Format struct {
			Duration string `json:"duration"`
		} `json:"format"`
	}

	if err := json.Unmarshal(stdout.Bytes(), &data); err != nil {
		return nil, fmt.Errorf("ffprobe json decode failed for %s: %w", path, err)
	}

	info := &model.VideoInfo{Path: path}
	info.Duration, _ = strconv.ParseFloat(data.Format.Duration, 64)

	for _, s := range data.Streams {
		if s.CodecType != "video" {
			continue
		}
		info.Codec = s.CodecName
		info.Width = s.Width
		info.Height = s.Height
		info.PixFmt = s.PixFmt

		// avg_frame_rate reflects actual pacing; r_frame_rate is the
		// container's nominal rate and survives VFR edge cases.
		info.FPS = parseRational(s.AvgFrameRate)
		if info.FPS == 0 {
			info.FPS = parseRational(s.RFrameRate)
		}

		if s.Duration != "" && info.Duration == 0 {
			info.Duration, _ = strconv.ParseFloat(s.Duration, 64)
		}
		if s.NbFrames != "" {
			info.FrameCount, _ = strconv.ParseInt(s.NbFrames, 10, 64)
		}
		break
	}

	if info.Codec == "" {
		return nil, &model.ValidationError{Path: path, Reason: "no video stream"}
	}
	if info.FrameCount == 0 && info.Duration > 0 && info.FPS > 0 {
		info.FrameCount = int64(math.Round(info.Duration * info.FPS))
	}
	return info, nil
}

// ValidateContainer checks that a file is a readable container with at
// least one video stream. A truncated moov atom after a killed encoder
// is the case this exists to catch.
func ValidateContainer(ctx context.Context, ffprobeBin, path string) error {
	st, err := os.Stat(path)
	if err != nil {
		return &model.ValidationError{Path: path, Reason: "file missing"}
	}
	if st.Size() == 0 {
		return &model.ValidationError{Path: path, Reason: "file is empty"}
	}

	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	args := []string{
		"-v", "error",
		"-select_streams", "v:0",
		"-show_entries", "stream=codec_type",
		"-of", "json",
		path,
	}

	cmd := exec.CommandContext(ctx, ffprobeBin, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return &model.CorruptContainerError{
				Path: path,
				Err:  fmt.Errorf("ffprobe exit %d: %s", exitErr.ExitCode(), firstLine(stderr.String())),
			}
		}
		return &model.LaunchError{Bin: ffprobeBin, Err: err}
	}

	var data struct {
		Streams []struct {
			CodecType string `json:"codec_type"`
		} `json:"streams"`
	}
	if err := json.Unmarshal(stdout.Bytes(), &data); err != nil {
		return &model.CorruptContainerError{Path: path, Err: fmt.Errorf("ffprobe json decode: %w", err)}
	}
	if len(data.Streams) == 0 {
		return &model.CorruptContainerError{Path: path, Err: errors.New("no video stream in container")}
	}
	return nil
}

// parseRational converts ffprobe's "num/den" rate strings to a float.
// A zero denominator reads as 0 rather than a panic.
func parseRational(s string) float64 {
	num, den, ok := strings.Cut(s, "/")
	if !ok {
		v, _ := strconv.ParseFloat(s, 64)
		return v
	}
	n, err1 := strconv.ParseFloat(num, 64)
	d, err2 := strconv.ParseFloat(den, 64)
	if err1 != nil || err2 != nil || d == 0 {
		return 0
	}
	return n / d
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	if s == "" {
		s = "no diagnostic output"
	}
	return s
}
