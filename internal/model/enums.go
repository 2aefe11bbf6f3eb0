// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package model

import "time"

// SessionState is the client-visible lifecycle of a capture session.
type SessionState string

const (
	SessionIdle         SessionState = "IDLE"
	SessionInitializing SessionState = "INITIALIZING"
	SessionCapturing    SessionState = "CAPTURING"
	SessionProcessing   SessionState = "PROCESSING"
	SessionCompleted    SessionState = "COMPLETED"
	SessionError        SessionState = "ERROR"
)

// IsTerminal returns true if the state is a final state.
func (s SessionState) IsTerminal() bool {
	switch s {
	case SessionCompleted, SessionError:
		return true
	}
	return false
}

// IsActive returns true while the session holds the encoder or the device.
func (s SessionState) IsActive() bool {
	switch s {
	case SessionInitializing, SessionCapturing, SessionProcessing:
		return true
	}
	return false
}

// ReasonCode is a compact, typed failure/decision signal.
// Keep these stable: metrics + client UX depend on them.
type ReasonCode string

const (
	RNone              ReasonCode = "R_NONE"
	RCompleted         ReasonCode = "R_COMPLETED"
	RCancelled         ReasonCode = "R_CANCELLED"
	RTimeoutSoft       ReasonCode = "R_TIMEOUT_SOFT"
	RLaunchFailed      ReasonCode = "R_LAUNCH_FAILED"
	REncoderExit       ReasonCode = "R_ENCODER_EXIT"
	RDeviceUnavailable ReasonCode = "R_DEVICE_UNAVAILABLE"
	RValidationFailed  ReasonCode = "R_VALIDATION_FAILED"
	RAlignmentFailed   ReasonCode = "R_ALIGNMENT_FAILED"
	RMissingReference  ReasonCode = "R_MISSING_REFERENCE"
	RConcurrentReject  ReasonCode = "R_CONCURRENT_REJECT"
	RInternal          ReasonCode = "R_INTERNAL"
)

// ExitStatus describes how an encoder process ended.
// Lives here rather than in the exec package to avoid import cycles.
type ExitStatus struct {
	Code      int
	Reason    string
	StartedAt time.Time
	EndedAt   time.Time
}

// Exit reasons recorded on ExitStatus.Reason.
const (
	ExitClean     = "clean"
	ExitError     = "error"
	ExitTimeout   = "timeout"
	ExitCancelled = "cancelled"
)
