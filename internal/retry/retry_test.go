// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDoSucceedsFirstAttempt(t *testing.T) {
	calls := 0
	err := Do(context.Background(), Policy{Attempts: 3, Delay: time.Hour}, "probe", func(context.Context) error {
		calls++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls, "no retries after success")
}

func TestDoExhaustsBudget(t *testing.T) {
	sentinel := errors.New("device busy")
	calls := 0
	err := Do(context.Background(), Policy{Attempts: 3, Delay: time.Millisecond}, "probe", func(context.Context) error {
		calls++
		return sentinel
	})
	require.Error(t, err)
	assert.Equal(t, 3, calls)
	assert.ErrorIs(t, err, sentinel, "last error must stay unwrappable")
	assert.Contains(t, err.Error(), "after 3 attempts")
}

func TestDoRecoversMidBudget(t *testing.T) {
	calls := 0
	err := Do(context.Background(), Policy{Attempts: 5, Delay: time.Millisecond}, "repair", func(context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("still corrupt")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDoContextCancelsSleep(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	err := Do(ctx, Policy{Attempts: 2, Delay: time.Hour}, "probe", func(context.Context) error {
		return errors.New("fail once, then sleep forever")
	})
	require.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(start), time.Second, "cancel must cut the backoff sleep short")
}

func TestQuadraticBackoffCurve(t *testing.T) {
	base := 500 * time.Millisecond
	assert.Equal(t, 500*time.Millisecond, Quadratic(1, base))
	assert.Equal(t, 2*time.Second, Quadratic(2, base))
	assert.Equal(t, 4500*time.Millisecond, Quadratic(3, base))
}

func TestDoNormalizesZeroAttempts(t *testing.T) {
	calls := 0
	_ = Do(context.Background(), Policy{}, "noop", func(context.Context) error {
		calls++
		return nil
	})
	assert.Equal(t, 1, calls)
}
