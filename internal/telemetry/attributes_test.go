// SPDX-License-Identifier: MIT
package telemetry

import (
	"errors"
	"testing"

	"go.opentelemetry.io/otel/attribute"
)

func TestSessionAttributes(t *testing.T) {
	tests := []struct {
		name    string
		id      string
		state   string
		reason  string
		wantLen int
	}{
		{
			name:    "all fields",
			id:      "4dfb23a0-0c3f-4b9a-9f6e-d31b51f7a001",
			state:   "CAPTURING",
			reason:  "R_NONE",
			wantLen: 3,
		},
		{
			name:    "only id",
			id:      "4dfb23a0-0c3f-4b9a-9f6e-d31b51f7a001",
			state:   "",
			reason:  "",
			wantLen: 1,
		},
		{
			name:    "empty fields",
			id:      "",
			state:   "",
			reason:  "",
			wantLen: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			attrs := SessionAttributes(tt.id, tt.state, tt.reason)

			if len(attrs) != tt.wantLen {
				t.Errorf("Expected %d attributes, got %d", tt.wantLen, len(attrs))
			}

			if tt.id != "" {
				verifyAttribute(t, attrs, SessionIDKey, tt.id)
			}
			if tt.state != "" {
				verifyAttribute(t, attrs, SessionStateKey, tt.state)
			}
			if tt.reason != "" {
				verifyAttribute(t, attrs, SessionReasonKey, tt.reason)
			}
		})
	}
}

func TestCaptureAttributes(t *testing.T) {
	attrs := CaptureAttributes("Intensity Shuttle", "Hp29", 29.97, 38, 3)

	if len(attrs) != 5 {
		t.Fatalf("Expected 5 attributes, got %d", len(attrs))
	}

	verifyAttribute(t, attrs, CaptureDeviceKey, "Intensity Shuttle")
	verifyAttribute(t, attrs, CaptureFormatKey, "Hp29")
	verifyFloatAttribute(t, attrs, CaptureFPSKey, 29.97)
	verifyIntAttribute(t, attrs, CapturePlannedKey, 38)
	verifyIntAttribute(t, attrs, CaptureLoopsKey, 3)
}

func TestAlignAttributes(t *testing.T) {
	attrs := AlignAttributes(4, 0.95, 31.0333)

	if len(attrs) != 3 {
		t.Fatalf("Expected 3 attributes, got %d", len(attrs))
	}

	verifyIntAttribute(t, attrs, AlignBookendsKey, 4)
	verifyFloatAttribute(t, attrs, AlignConfidenceKey, 0.95)
	verifyFloatAttribute(t, attrs, AlignWindowKey, 31.0333)
}

func TestScoreAttributes(t *testing.T) {
	attrs := ScoreAttributes("vmaf_v0.6.1", 87.3)

	if len(attrs) != 2 {
		t.Fatalf("Expected 2 attributes, got %d", len(attrs))
	}

	verifyAttribute(t, attrs, ScoreModelKey, "vmaf_v0.6.1")
	verifyFloatAttribute(t, attrs, ScoreVMAFKey, 87.3)
}

func TestProbeAttributes(t *testing.T) {
	attrs := ProbeAttributes("Intensity Shuttle", "uncertain")

	if len(attrs) != 2 {
		t.Fatalf("Expected 2 attributes, got %d", len(attrs))
	}

	verifyAttribute(t, attrs, ProbeDeviceKey, "Intensity Shuttle")
	verifyAttribute(t, attrs, ProbeStateKey, "uncertain")
}

func TestErrorAttributes(t *testing.T) {
	attrs := ErrorAttributes(errors.New("device unavailable"), "hardware")

	if len(attrs) != 2 {
		t.Fatalf("Expected 2 attributes, got %d", len(attrs))
	}

	verifyBoolAttribute(t, attrs, ErrorKey, true)
	verifyAttribute(t, attrs, ErrorTypeKey, "hardware")
}

func verifyAttribute(t *testing.T, attrs []attribute.KeyValue, key, expectedValue string) {
	t.Helper()
	for _, attr := range attrs {
		if string(attr.Key) == key {
			if attr.Value.AsString() != expectedValue {
				t.Errorf("Expected %s=%s, got %s", key, expectedValue, attr.Value.AsString())
			}
			return
		}
	}
	t.Errorf("Attribute %s not found", key)
}

func verifyIntAttribute(t *testing.T, attrs []attribute.KeyValue, key string, expectedValue int) {
	t.Helper()
	for _, attr := range attrs {
		if string(attr.Key) == key {
			if attr.Value.AsInt64() != int64(expectedValue) {
				t.Errorf("Expected %s=%d, got %d", key, expectedValue, attr.Value.AsInt64())
			}
			return
		}
	}
	t.Errorf("Attribute %s not found", key)
}

func verifyFloatAttribute(t *testing.T, attrs []attribute.KeyValue, key string, expectedValue float64) {
	t.Helper()
	for _, attr := range attrs {
		if string(attr.Key) == key {
			if attr.Value.AsFloat64() != expectedValue {
				t.Errorf("Expected %s=%f, got %f", key, expectedValue, attr.Value.AsFloat64())
			}
			return
		}
	}
	t.Errorf("Attribute %s not found", key)
}

func verifyBoolAttribute(t *testing.T, attrs []attribute.KeyValue, key string, expectedValue bool) {
	t.Helper()
	for _, attr := range attrs {
		if string(attr.Key) == key {
			if attr.Value.AsBool() != expectedValue {
				t.Errorf("Expected %s=%t, got %t", key, expectedValue, attr.Value.AsBool())
			}
			return
		}
	}
	t.Errorf("Attribute %s not found", key)
}
