// SPDX-License-Identifier: MIT

// Package validate accumulates field-level configuration errors so a
// bad config reports every problem at once instead of one per restart.
package validate

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Error is one failed field check.
type Error struct {
	Field   string
	Value   any
	Message string
}

func (e Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationError aggregates every failed check of one Validate pass.
type ValidationError struct {
	errors []Error
}

// Errors returns the individual field errors.
func (e ValidationError) Errors() []Error {
	return e.errors
}

// Unwrap exposes the field errors to errors.Is and errors.As.
func (e ValidationError) Unwrap() []error {
	out := make([]error, len(e.errors))
	for i, fe := range e.errors {
		out[i] = fe
	}
	return out
}

func (e ValidationError) Error() string {
	switch len(e.errors) {
	case 0:
		return ""
	case 1:
		return e.errors[0].Error()
	}
	msgs := make([]string, len(e.errors))
	for i, fe := range e.errors {
		msgs[i] = fe.Error()
	}
	return strings.Join(msgs, "; ")
}

// Validator collects field checks. The zero value is not usable; New
// returns a ready instance.
type Validator struct {
	errors []Error
}

func New() *Validator {
	return &Validator{}
}

// AddError records a failed check for field.
func (v *Validator) AddError(field, message string, value any) {
	v.errors = append(v.errors, Error{Field: field, Value: value, Message: message})
}

// IsValid reports whether no check has failed so far.
func (v *Validator) IsValid() bool {
	return len(v.errors) == 0
}

// Errors returns the checks failed so far.
func (v *Validator) Errors() []Error {
	return v.errors
}

// Err returns the accumulated failures as a single error, or nil when
// every check passed.
func (v *Validator) Err() error {
	if len(v.errors) == 0 {
		return nil
	}
	copied := make([]Error, len(v.errors))
	copy(copied, v.errors)
	return ValidationError{errors: copied}
}

// HostPort checks a listen address in "host:port" or ":port" form.
func (v *Validator) HostPort(field, value string) {
	if value == "" {
		v.AddError(field, "listen address cannot be empty", value)
		return
	}
	if _, _, err := net.SplitHostPort(value); err != nil {
		v.AddError(field, fmt.Sprintf("invalid listen address: %v", err), value)
	}
}

// NotEmpty checks that a string has non-whitespace content.
func (v *Validator) NotEmpty(field, value string) {
	if strings.TrimSpace(value) == "" {
		v.AddError(field, "value cannot be empty", value)
	}
}

// OneOf checks that value is one of the allowed literals.
func (v *Validator) OneOf(field, value string, allowed []string) {
	for _, a := range allowed {
		if value == a {
			return
		}
	}
	v.AddError(field, fmt.Sprintf("value must be one of %v, got %q", allowed, value), value)
}

// Range checks an integer against an inclusive interval.
func (v *Validator) Range(field string, value, minVal, maxVal int) {
	if value < minVal || value > maxVal {
		v.AddError(field, fmt.Sprintf("value must be between %d and %d, got %d", minVal, maxVal, value), value)
	}
}

// Positive checks that an integer is greater than zero.
func (v *Validator) Positive(field string, value int) {
	if value <= 0 {
		v.AddError(field, fmt.Sprintf("value must be positive, got %d", value), value)
	}
}

// NonNegative checks that an integer is zero or greater.
func (v *Validator) NonNegative(field string, value int) {
	if value < 0 {
		v.AddError(field, fmt.Sprintf("value cannot be negative, got %d", value), value)
	}
}

// PositiveFloat checks that a float is greater than zero.
func (v *Validator) PositiveFloat(field string, value float64) {
	if value <= 0 {
		v.AddError(field, fmt.Sprintf("value must be positive, got %g", value), value)
	}
}

// Ratio checks that a float lies in [0, 1].
func (v *Validator) Ratio(field string, value float64) {
	if value < 0 || value > 1 {
		v.AddError(field, fmt.Sprintf("value must be between 0 and 1, got %g", value), value)
	}
}

// PositiveDuration checks that a duration is greater than zero.
func (v *Validator) PositiveDuration(field string, value time.Duration) {
	if value <= 0 {
		v.AddError(field, fmt.Sprintf("duration must be positive, got %s", value), value)
	}
}

// NonNegativeDuration checks that a duration is not negative.
func (v *Validator) NonNegativeDuration(field string, value time.Duration) {
	if value < 0 {
		v.AddError(field, fmt.Sprintf("duration cannot be negative, got %s", value), value)
	}
}

// Directory checks a directory path. With mustExist the path has to be
// present already; without it a missing directory is created. Relative
// paths with traversal segments are rejected outright.
func (v *Validator) Directory(field, path string, mustExist bool) {
	if path == "" {
		v.AddError(field, "directory path cannot be empty", path)
		return
	}
	if strings.Contains(path, "..") {
		v.AddError(field, "path contains traversal sequences (..)", path)
		return
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		v.AddError(field, fmt.Sprintf("invalid path: %v", err), path)
		return
	}

	info, err := os.Stat(abs)
	switch {
	case err == nil:
		if !info.IsDir() {
			v.AddError(field, "path is not a directory", path)
		}
	case os.IsNotExist(err):
		if mustExist {
			v.AddError(field, "directory does not exist", path)
			return
		}
		if err := os.MkdirAll(abs, 0o750); err != nil {
			v.AddError(field, fmt.Sprintf("cannot create directory: %v", err), path)
		}
	default:
		v.AddError(field, fmt.Sprintf("cannot access directory: %v", err), path)
	}
}

// logLevels are the accepted log.level values, matching what the
// zerolog-backed logger applies at runtime.
var logLevels = []string{"trace", "debug", "info", "warn", "error"}

// ParseLogLevel checks a log level string and returns it unchanged.
func ParseLogLevel(s string) (string, error) {
	for _, l := range logLevels {
		if s == l {
			return s, nil
		}
	}
	return "", fmt.Errorf("invalid log level %q (must be one of: %s)", s, strings.Join(logLevels, ", "))
}
