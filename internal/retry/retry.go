// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package retry provides the single bounded-retry-with-backoff primitive
// shared by device probing, recovery and container repair.
package retry

import (
	"context"
	"fmt"
	"time"

	"github.com/ManuGH/refcap/internal/log"
)

// Backoff computes the delay before the given attempt (1-based; the first
// attempt never waits).
type Backoff func(attempt int, base time.Duration) time.Duration

// Fixed waits the base delay between every attempt.
func Fixed(_ int, base time.Duration) time.Duration { return base }

// Quadratic waits attempt²×base, the escalation curve used for flaky
// upstream hardware.
func Quadratic(attempt int, base time.Duration) time.Duration {
	return time.Duration(attempt*attempt) * base
}

// Policy bounds a retried operation: total attempt count, base delay and
// the backoff curve. A zero Backoff means Fixed.
type Policy struct {
	Attempts int
	Delay    time.Duration
	Backoff  Backoff
}

// Do runs fn up to p.Attempts times, sleeping per the policy between
// attempts, until fn returns nil. The context aborts both the sleep and
// the loop. The returned error wraps the last failure with the attempt
// budget so callers can surface "failed after N attempts" messages.
func Do(ctx context.Context, p Policy, op string, fn func(ctx context.Context) error) error {
	if p.Attempts < 1 {
		p.Attempts = 1
	}
	backoff := p.Backoff
	if backoff == nil {
		backoff = Fixed
	}

	logger := log.WithComponentFromContext(ctx, "retry")

	var lastErr error
	for attempt := 1; attempt <= p.Attempts; attempt++ {
		if attempt > 1 {
			delay := backoff(attempt-1, p.Delay)
			logger.Debug().
				Str(log.FieldEvent, "retry.backoff").
				Str("op", op).
				Int(log.FieldAttempt, attempt).
				Dur("delay_ms", delay).
				Msg("waiting before retry")
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		if err := fn(ctx); err != nil {
			lastErr = err
			logger.Warn().
				Err(err).
				Str(log.FieldEvent, "retry.attempt_failed").
				Str("op", op).
				Int(log.FieldAttempt, attempt).
				Int("budget", p.Attempts).
				Msg("attempt failed")
			continue
		}
		return nil
	}

	return fmt.Errorf("%s failed after %d attempts: %w", op, p.Attempts, lastErr)
}
