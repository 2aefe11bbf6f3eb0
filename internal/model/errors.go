// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package model

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// Sentinel errors for errors.Is checks at the boundary.
	ErrLaunch               = errors.New("capture: encoder could not be started")
	ErrDeviceUnavailable    = errors.New("capture: device not available")
	ErrEncoderExit          = errors.New("capture: encoder exited abnormally")
	ErrValidation           = errors.New("capture: output failed validation")
	ErrCorruptContainer     = errors.New("capture: output container unreadable")
	ErrInsufficientBookends = errors.New("align: fewer than two bookend intervals found")
	ErrInvalidTiming        = errors.New("align: bookend timing yields empty content window")
	ErrMissingReference     = errors.New("capture: reference video not set or duration unknown")
	ErrConcurrentCapture    = errors.New("capture: a session is already active")
)

// FailureClass buckets terminal failures for operator messaging.
type FailureClass string

const (
	ClassHardware FailureClass = "hardware"
	ClassFile     FailureClass = "file"
	ClassConfig   FailureClass = "config"
	ClassInternal FailureClass = "internal"
)

// ClassOf maps an error to its failure class. Unknown errors are internal.
func ClassOf(err error) FailureClass {
	switch {
	case errors.Is(err, ErrDeviceUnavailable), errors.Is(err, ErrEncoderExit):
		return ClassHardware
	case errors.Is(err, ErrValidation), errors.Is(err, ErrCorruptContainer),
		errors.Is(err, ErrInsufficientBookends), errors.Is(err, ErrInvalidTiming):
		return ClassFile
	case errors.Is(err, ErrLaunch), errors.Is(err, ErrMissingReference),
		errors.Is(err, ErrConcurrentCapture):
		return ClassConfig
	}
	return ClassInternal
}

// ReasonOf maps an error to the reason code recorded on the session.
func ReasonOf(err error) ReasonCode {
	switch {
	case err == nil:
		return RNone
	case errors.Is(err, ErrDeviceUnavailable):
		return RDeviceUnavailable
	case errors.Is(err, ErrLaunch):
		return RLaunchFailed
	case errors.Is(err, ErrEncoderExit):
		return REncoderExit
	case errors.Is(err, ErrValidation), errors.Is(err, ErrCorruptContainer):
		return RValidationFailed
	case errors.Is(err, ErrInsufficientBookends), errors.Is(err, ErrInvalidTiming):
		return RAlignmentFailed
	case errors.Is(err, ErrMissingReference):
		return RMissingReference
	case errors.Is(err, ErrConcurrentCapture):
		return RConcurrentReject
	}
	return RInternal
}

// LaunchError reports that the encoder binary could not be spawned.
type LaunchError struct {
	Bin string
	Err error
}

func (e *LaunchError) Error() string {
	return fmt.Sprintf("%v: %s: %v", ErrLaunch, e.Bin, e.Err)
}

func (e *LaunchError) Unwrap() error { return ErrLaunch }

// DeviceUnavailableError reports a capture device that is absent or busy.
type DeviceUnavailableError struct {
	Device string
	Reason string
}

func (e *DeviceUnavailableError) Error() string {
	return fmt.Sprintf("%v: %q: %s", ErrDeviceUnavailable, e.Device, e.Reason)
}

func (e *DeviceUnavailableError) Unwrap() error { return ErrDeviceUnavailable }

// EncoderExitError reports a non-zero encoder exit, with the tail of its
// diagnostic output for operator-facing messages.
type EncoderExitError struct {
	Code int
	Tail []string
}

func (e *EncoderExitError) Error() string {
	if len(e.Tail) == 0 {
		return fmt.Sprintf("%v: exit code %d", ErrEncoderExit, e.Code)
	}
	return fmt.Sprintf("%v: exit code %d: %s", ErrEncoderExit, e.Code, strings.Join(e.Tail, " | "))
}

func (e *EncoderExitError) Unwrap() error { return ErrEncoderExit }

// ValidationError reports a capture file that exists but is not usable.
type ValidationError struct {
	Path   string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%v: %s: %s", ErrValidation, e.Path, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// CorruptContainerError reports a container that stayed unreadable after
// the repair budget was exhausted.
type CorruptContainerError struct {
	Path string
	Err  error
}

func (e *CorruptContainerError) Error() string {
	return fmt.Sprintf("%v: %s: %v", ErrCorruptContainer, e.Path, e.Err)
}

func (e *CorruptContainerError) Unwrap() error { return ErrCorruptContainer }

// InsufficientBookendsError reports too few white intervals to bound a
// content window.
type InsufficientBookendsError struct {
	Found int
}

func (e *InsufficientBookendsError) Error() string {
	return fmt.Sprintf("%v: found %d, need at least 2", ErrInsufficientBookends, e.Found)
}

func (e *InsufficientBookendsError) Unwrap() error { return ErrInsufficientBookends }

// InvalidTimingError reports bookend positions that produce a zero or
// negative content window.
type InvalidTimingError struct {
	Start float64
	End   float64
}

func (e *InvalidTimingError) Error() string {
	return fmt.Sprintf("%v: start %.3fs, end %.3fs", ErrInvalidTiming, e.Start, e.End)
}

func (e *InvalidTimingError) Unwrap() error { return ErrInvalidTiming }
