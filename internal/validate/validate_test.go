// SPDX-License-Identifier: MIT
package validate

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestValidator_HostPort(t *testing.T) {
	tests := []struct {
		name    string
		value   string
		wantErr bool
	}{
		{"port only", ":8484", false},
		{"host and port", "127.0.0.1:8484", false},
		{"named port", "localhost:http", false},
		{"empty", "", true},
		{"missing port", "localhost", true},
		{"bare number", "8484", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := New()
			v.HostPort("listen", tt.value)

			if tt.wantErr && v.IsValid() {
				t.Errorf("expected error, got none")
			}
			if !tt.wantErr && !v.IsValid() {
				t.Errorf("unexpected error: %v", v.Err())
			}
		})
	}
}

func TestValidator_Range(t *testing.T) {
	tests := []struct {
		name    string
		value   int
		min     int
		max     int
		wantErr bool
	}{
		{"in range", 18, 0, 51, false},
		{"at lower bound", 0, 0, 51, false},
		{"at upper bound", 51, 0, 51, false},
		{"below", -1, 0, 51, true},
		{"above", 52, 0, 51, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := New()
			v.Range("crf", tt.value, tt.min, tt.max)

			if tt.wantErr && v.IsValid() {
				t.Errorf("expected error, got none")
			}
			if !tt.wantErr && !v.IsValid() {
				t.Errorf("unexpected error: %v", v.Err())
			}
		})
	}
}

func TestValidator_Directory(t *testing.T) {
	t.Run("existing directory", func(t *testing.T) {
		v := New()
		v.Directory("dataDir", t.TempDir(), true)
		if !v.IsValid() {
			t.Errorf("unexpected error: %v", v.Err())
		}
	})

	t.Run("missing directory with mustExist", func(t *testing.T) {
		v := New()
		v.Directory("dataDir", filepath.Join(t.TempDir(), "missing"), true)
		if v.IsValid() {
			t.Error("expected error, got none")
		}
	})

	t.Run("missing directory is created", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "created")
		v := New()
		v.Directory("dataDir", path, false)
		if !v.IsValid() {
			t.Fatalf("unexpected error: %v", v.Err())
		}
		if _, err := os.Stat(path); err != nil {
			t.Errorf("directory was not created: %v", err)
		}
	})

	t.Run("traversal rejected", func(t *testing.T) {
		v := New()
		v.Directory("dataDir", "../escape", false)
		if v.IsValid() {
			t.Error("expected error, got none")
		}
	})

	t.Run("file is not a directory", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "file")
		if err := os.WriteFile(path, []byte("x"), 0o600); err != nil {
			t.Fatal(err)
		}
		v := New()
		v.Directory("dataDir", path, true)
		if v.IsValid() {
			t.Error("expected error, got none")
		}
	})
}

func TestValidator_FloatHelpers(t *testing.T) {
	v := New()
	v.PositiveFloat("bookendDuration", 0.2)
	v.Ratio("sampleRatio", 1.0)
	v.Ratio("sampleRatio", 0.0)
	if !v.IsValid() {
		t.Fatalf("unexpected error: %v", v.Err())
	}

	v = New()
	v.PositiveFloat("bookendDuration", 0)
	v.Ratio("sampleRatio", 1.5)
	if len(v.Errors()) != 2 {
		t.Errorf("expected 2 errors, got %d", len(v.Errors()))
	}
}

func TestValidator_DurationHelpers(t *testing.T) {
	v := New()
	v.PositiveDuration("probeTimeout", 10*time.Second)
	v.NonNegativeDuration("settleDelay", 0)
	if !v.IsValid() {
		t.Fatalf("unexpected error: %v", v.Err())
	}

	v = New()
	v.PositiveDuration("probeTimeout", 0)
	v.NonNegativeDuration("settleDelay", -time.Second)
	if len(v.Errors()) != 2 {
		t.Errorf("expected 2 errors, got %d", len(v.Errors()))
	}
}

func TestValidationError_Aggregation(t *testing.T) {
	v := New()
	v.NotEmpty("device", "")
	v.Positive("minLoops", 0)
	v.OneOf("protocol", "udp", []string{"grpc", "http"})

	err := v.Err()
	if err == nil {
		t.Fatal("expected error, got nil")
	}

	var verr ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %T", err)
	}
	if len(verr.Errors()) != 3 {
		t.Errorf("expected 3 errors, got %d", len(verr.Errors()))
	}
	for _, want := range []string{"device", "minLoops", "protocol"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("aggregated message missing field %q: %s", want, err.Error())
		}
	}
}

func TestParseLogLevel(t *testing.T) {
	for _, lvl := range []string{"trace", "debug", "info", "warn", "error"} {
		if _, err := ParseLogLevel(lvl); err != nil {
			t.Errorf("ParseLogLevel(%q) returned error: %v", lvl, err)
		}
	}
	if _, err := ParseLogLevel("verbose"); err == nil {
		t.Error("expected error for invalid level")
	}
}
