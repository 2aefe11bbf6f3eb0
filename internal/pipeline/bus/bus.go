// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package bus provides in-process pub/sub for session lifecycle events.
// Clients poll the HTTP API; internal consumers (history, log taps)
// subscribe here.
package bus

import "context"

// Message is an opaque event payload. Producers publish typed structs;
// consumers type-assert on the topics they subscribe to.
type Message any

// Subscriber is a handle to one subscription. C drains events; Close
// detaches the subscription and closes the channel.
type Subscriber interface {
	C() <-chan Message
	Close() error
}

// Bus is the publish side contract.
type Bus interface {
	Publish(ctx context.Context, topic string, msg Message) error
	Subscribe(ctx context.Context, topic string) (Subscriber, error)
}

// Topics carried on the bus.
const (
	TopicSessionState = "session.state"
	TopicProgress     = "session.progress"
	TopicEncoderLine  = "encoder.stderr"
)
