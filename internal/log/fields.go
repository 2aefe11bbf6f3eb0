// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package log

// Canonical field name constants for structured logging.
const (
	// Identity fields
	FieldSessionID = "session_id"
	FieldRequestID = "request_id"
	FieldRunID     = "run_id"

	// Process / pipeline fields
	FieldEvent     = "event"
	FieldComponent = "component"
	FieldPID       = "pid"
	FieldExitCode  = "exit_code"
	FieldReason    = "reason"
	FieldAttempt   = "attempt"

	// Media fields
	FieldDevice   = "device"
	FieldEncoder  = "encoder"
	FieldFPS      = "fps"
	FieldFrame    = "frame"
	FieldDuration = "duration_s"
	FieldPercent  = "percent"

	// State fields
	FieldOldState = "old_state"
	FieldNewState = "new_state"

	// Path fields
	FieldPath        = "path"
	FieldReference   = "reference"
	FieldCapturePath = "capture_path"
)
