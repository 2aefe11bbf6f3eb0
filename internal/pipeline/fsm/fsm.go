// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package fsm holds the strict state machine driving a capture
// session's lifecycle. Undeclared transitions fail loudly instead of
// being ignored, so a misordered pipeline step cannot corrupt the
// session's observable state.
package fsm

import (
	"fmt"
	"sync"
)

// Transition declares one edge of the machine.
type Transition[S ~string, E ~string] struct {
	From  S
	Event E
	To    S
}

// Machine applies declared transitions atomically. Construct with New;
// the zero value has no edges and rejects every event.
type Machine[S ~string, E ~string] struct {
	mu    sync.Mutex
	state S
	edges map[S]map[E]S
}

// New builds a machine in the initial state. Declaring the same
// (state, event) pair twice is a programming error and rejected.
func New[S ~string, E ~string](initial S, table []Transition[S, E]) (*Machine[S, E], error) {
	edges := make(map[S]map[E]S, len(table))
	for _, t := range table {
		byEvent, ok := edges[t.From]
		if !ok {
			byEvent = make(map[E]S)
			edges[t.From] = byEvent
		}
		if _, dup := byEvent[t.Event]; dup {
			return nil, fmt.Errorf("duplicate transition: %s -> %s", t.From, t.Event)
		}
		byEvent[t.Event] = t.To
	}
	return &Machine[S, E]{state: initial, edges: edges}, nil
}

// State returns the current state.
func (m *Machine[S, E]) State() S {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Fire applies event to the current state. On an undeclared transition
// the state stays put and is returned alongside the error, so callers
// can report where the machine actually was.
func (m *Machine[S, E]) Fire(event E) (S, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	to, ok := m.edges[m.state][event]
	if !ok {
		return m.state, fmt.Errorf("invalid transition: state=%s event=%s", m.state, event)
	}
	m.state = to
	return to, nil
}
