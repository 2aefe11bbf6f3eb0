// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package model

// VideoInfo is the container-level metadata read from a media file.
type VideoInfo struct {
	Path       string  `json:"path"`
	Duration   float64 `json:"duration"`
	FPS        float64 `json:"fps"`
	Width      int     `json:"width"`
	Height     int     `json:"height"`
	PixFmt     string  `json:"pixFmt,omitempty"`
	Codec      string  `json:"codec,omitempty"`
	FrameCount int64   `json:"frameCount,omitempty"`
}

// BookendInterval is one contiguous run of white frames found in a capture.
// Frame indices are source-frame indices; FrameCount counts the sampled
// frames inside the run, at the scan stride.
type BookendInterval struct {
	StartFrame int64   `json:"startFrame"`
	EndFrame   int64   `json:"endFrame"`
	StartTime  float64 `json:"startTime"`
	EndTime    float64 `json:"endTime"`
	FrameCount int64   `json:"frameCount"`
}

// Duration returns the wall-clock span of the interval in seconds.
func (b BookendInterval) Duration() float64 {
	return b.EndTime - b.StartTime
}

// ContentWindow is the region of a capture holding exactly one pass of
// the played content, exclusive of the surrounding bookends.
type ContentWindow struct {
	Start    float64 `json:"start"`
	End      float64 `json:"end"`
	Duration float64 `json:"duration"`
}

// AlignmentResult is the output of a successful alignment pass.
type AlignmentResult struct {
	Window               ContentWindow `json:"window"`
	AlignedReferencePath string        `json:"alignedReferencePath"`
	AlignedCapturedPath  string        `json:"alignedCapturedPath"`
	Confidence           float64       `json:"confidence"`
	// DurationMismatch is set when the extracted window deviates from
	// the reference duration by more than the tolerance. Non-fatal.
	DurationMismatch bool    `json:"durationMismatch,omitempty"`
	RefDuration      float64 `json:"refDuration,omitempty"`
}

// Scores holds the quality metrics computed over an aligned pair.
// PSNR and SSIM are optional features; nil means not computed.
type Scores struct {
	VMAF     float64           `json:"vmaf"`
	PSNR     *float64          `json:"psnr,omitempty"`
	SSIM     *float64          `json:"ssim,omitempty"`
	LogPaths map[string]string `json:"logPaths,omitempty"`
}

// CapturePlan is the timing decision made before the encoder starts.
type CapturePlan struct {
	LoopDuration    float64 `json:"loopDuration"`
	MinDuration     float64 `json:"minDuration"`
	MaxDuration     float64 `json:"maxDuration"`
	PlannedDuration int     `json:"plannedDuration"`
	Loops           int     `json:"loops"`
}

// SessionRecord is the JSON shape shared by the HTTP API and the run
// history. Times are unix milliseconds; zero means not reached.
type SessionRecord struct {
	SessionID     string           `json:"sessionId"`
	Device        string           `json:"device"`
	ReferencePath string           `json:"referencePath,omitempty"`
	CapturePath   string           `json:"capturePath,omitempty"`
	State         SessionState     `json:"state"`
	Reason        ReasonCode       `json:"reason"`
	Message       string           `json:"message,omitempty"`
	Percent       int              `json:"percent"`
	StartedAtMs   int64            `json:"startedAtMs,omitempty"`
	UpdatedAtMs   int64            `json:"updatedAtMs,omitempty"`
	EndedAtMs     int64            `json:"endedAtMs,omitempty"`
	Plan          *CapturePlan     `json:"plan,omitempty"`
	Result        *AlignmentResult `json:"result,omitempty"`
	Scores        *Scores          `json:"scores,omitempty"`
}
