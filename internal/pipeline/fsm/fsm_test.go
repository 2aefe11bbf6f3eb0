// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package fsm

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type state string
type event string

const (
	idle         state = "IDLE"
	initializing state = "INITIALIZING"
	capturing    state = "CAPTURING"
	failed       state = "ERROR"

	evStart   event = "start"
	evReady   event = "ready"
	evFail    event = "fail"
	evRestart event = "restart"
)

func newTestMachine(t *testing.T) *Machine[state, event] {
	t.Helper()
	m, err := New(idle, []Transition[state, event]{
		{From: idle, Event: evStart, To: initializing},
		{From: initializing, Event: evReady, To: capturing},
		{From: initializing, Event: evFail, To: failed},
		{From: failed, Event: evRestart, To: idle},
	})
	require.NoError(t, err)
	return m
}

func TestFireWalksDefinedPath(t *testing.T) {
	m := newTestMachine(t)

	next, err := m.Fire(evStart)
	require.NoError(t, err)
	assert.Equal(t, initializing, next)

	next, err = m.Fire(evReady)
	require.NoError(t, err)
	assert.Equal(t, capturing, next)
	assert.Equal(t, capturing, m.State())
}

func TestFireRejectsUnknownTransition(t *testing.T) {
	m := newTestMachine(t)

	cur, err := m.Fire(evReady)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid transition")
	assert.Equal(t, idle, cur)
	assert.Equal(t, idle, m.State())
}

func TestDuplicateTransitionRejected(t *testing.T) {
	_, err := New(idle, []Transition[state, event]{
		{From: idle, Event: evStart, To: initializing},
		{From: idle, Event: evStart, To: failed},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate transition")
}

// Concurrent start requests race for the same edge; exactly one may
// win, everyone else must see a rejection.
func TestConcurrentFireSingleWinner(t *testing.T) {
	m := newTestMachine(t)

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := m.Fire(evStart); err == nil {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), wins.Load())
	assert.Equal(t, initializing, m.State())
}
