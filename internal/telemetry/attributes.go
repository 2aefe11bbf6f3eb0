// SPDX-License-Identifier: MIT

// Span attribute keys shared across the daemon so traces stay
// queryable by one vocabulary.
package telemetry

import (
	"go.opentelemetry.io/otel/attribute"
)

const (
	// Session attributes
	SessionIDKey     = "session.id"
	SessionStateKey  = "session.state"
	SessionReasonKey = "session.reason"

	// Capture attributes
	CaptureDeviceKey  = "capture.device"
	CaptureFormatKey  = "capture.format_code"
	CaptureFPSKey     = "capture.fps"
	CapturePlannedKey = "capture.planned_s"
	CaptureLoopsKey   = "capture.loops"

	// Alignment attributes
	AlignBookendsKey   = "align.bookends"
	AlignConfidenceKey = "align.confidence"
	AlignWindowKey     = "align.window_s"

	// Scoring attributes
	ScoreModelKey = "score.model"
	ScoreVMAFKey  = "score.vmaf"

	// Device probe attributes
	ProbeDeviceKey = "probe.device"
	ProbeStateKey  = "probe.state"

	// Error attributes
	ErrorKey     = "error"
	ErrorTypeKey = "error.type"
)

// SessionAttributes creates capture session span attributes. Empty
// values are skipped so partial knowledge never pads the span.
func SessionAttributes(id, state, reason string) []attribute.KeyValue {
	attrs := make([]attribute.KeyValue, 0, 3)
	if id != "" {
		attrs = append(attrs, attribute.String(SessionIDKey, id))
	}
	if state != "" {
		attrs = append(attrs, attribute.String(SessionStateKey, state))
	}
	if reason != "" {
		attrs = append(attrs, attribute.String(SessionReasonKey, reason))
	}
	return attrs
}

// CaptureAttributes creates encoder launch span attributes.
func CaptureAttributes(device, formatCode string, fps float64, plannedSeconds, loops int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(CaptureDeviceKey, device),
		attribute.String(CaptureFormatKey, formatCode),
		attribute.Float64(CaptureFPSKey, fps),
		attribute.Int(CapturePlannedKey, plannedSeconds),
		attribute.Int(CaptureLoopsKey, loops),
	}
}

// AlignAttributes creates alignment span attributes.
func AlignAttributes(bookends int, confidence, windowSeconds float64) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.Int(AlignBookendsKey, bookends),
		attribute.Float64(AlignConfidenceKey, confidence),
		attribute.Float64(AlignWindowKey, windowSeconds),
	}
}

// ScoreAttributes creates quality scoring span attributes.
func ScoreAttributes(model string, vmaf float64) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(ScoreModelKey, model),
		attribute.Float64(ScoreVMAFKey, vmaf),
	}
}

// ProbeAttributes creates device probe span attributes.
func ProbeAttributes(device, state string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(ProbeDeviceKey, device),
		attribute.String(ProbeStateKey, state),
	}
}

// ErrorAttributes creates error span attributes.
func ErrorAttributes(_ error, errorType string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.Bool(ErrorKey, true),
		attribute.String(ErrorTypeKey, errorType),
	}
}
