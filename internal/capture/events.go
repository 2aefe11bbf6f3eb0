// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package capture

import (
	"time"

	"github.com/ManuGH/refcap/internal/model"
)

// StateEvent announces a session state change on the bus. The terminal
// event for a session is always its last state event.
type StateEvent struct {
	SessionID string             `json:"sessionId"`
	OldState  model.SessionState `json:"oldState"`
	NewState  model.SessionState `json:"newState"`
	Reason    model.ReasonCode   `json:"reason"`
	Class     model.FailureClass `json:"class,omitempty"`
	Message   string             `json:"message,omitempty"`
	At        time.Time          `json:"at"`
}

// ProgressEvent carries one progress emission. Percent is monotonic
// per session: below 100 while running, exactly 100 once on success.
type ProgressEvent struct {
	SessionID string    `json:"sessionId"`
	Percent   int       `json:"percent"`
	At        time.Time `json:"at"`
}

// EncoderLineEvent relays one line of encoder diagnostics.
type EncoderLineEvent struct {
	SessionID string `json:"sessionId"`
	Line      string `json:"line"`
}
