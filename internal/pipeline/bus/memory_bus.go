// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package bus

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/ManuGH/refcap/internal/log"
	"github.com/ManuGH/refcap/internal/metrics"
)

// subscriberBuffer sizes each subscription channel. Progress events
// arrive about once per second and stderr lines in short bursts, so a
// consumer that stalls for a full minute still loses nothing.
const subscriberBuffer = 64

const dropLogEvery = 100

// MemoryBus is the in-process event fabric between the capture worker
// and its consumers. Delivery is at-least-once while the publish
// context is live; there is no persistence and no replay.
type MemoryBus struct {
	mu    sync.RWMutex
	subs  map[string][]*subscription
	drops atomic.Uint64
}

func NewMemoryBus() *MemoryBus {
	return &MemoryBus{subs: make(map[string][]*subscription)}
}

// Publish fans msg out to every subscriber of topic. It blocks until
// all buffers accepted the message or ctx expires; the capture worker
// bounds that wait with a short per-publish timeout. The read lock is
// held across the sends so a concurrent Close cannot tear down a
// channel mid-delivery.
func (b *MemoryBus) Publish(ctx context.Context, topic string, msg Message) error {
	if ctx == nil {
		return fmt.Errorf("publish context is nil")
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, s := range b.subs[topic] {
		select {
		case s.ch <- msg:
		case <-ctx.Done():
			b.recordDrop(topic, ctx.Err())
			return fmt.Errorf("publish topic %q: %w", topic, ctx.Err())
		}
	}
	return nil
}

func (b *MemoryBus) recordDrop(topic string, cause error) {
	reason := "context_done"
	switch {
	case errors.Is(cause, context.DeadlineExceeded):
		reason = "timeout"
	case errors.Is(cause, context.Canceled):
		reason = "canceled"
	}
	metrics.IncBusDropReason(topic, reason)

	if n := b.drops.Add(1); n%dropLogEvery == 0 {
		l := log.L()
		l.Warn().
			Str("topic", topic).
			Str("reason", reason).
			Uint64("dropped", n).
			Msg("event bus dropping messages, consumer too slow")
	}
}

// Subscribe registers a consumer for topic. The subscription detaches
// itself when ctx ends, so callers tying a consumer to a request or
// session lifetime do not need their own cleanup path. Close remains
// safe to call either way.
func (b *MemoryBus) Subscribe(ctx context.Context, topic string) (Subscriber, error) {
	if ctx == nil {
		return nil, fmt.Errorf("subscribe context is nil")
	}

	s := &subscription{
		bus:   b,
		topic: topic,
		ch:    make(chan Message, subscriberBuffer),
		quit:  make(chan struct{}),
	}

	b.mu.Lock()
	b.subs[topic] = append(b.subs[topic], s)
	b.mu.Unlock()

	// Background contexts report a nil Done channel; skip the watcher
	// for those so short-lived buses stay goroutine-free.
	if done := ctx.Done(); done != nil {
		go func() {
			select {
			case <-done:
				_ = s.Close()
			case <-s.quit:
			}
		}()
	}
	return s, nil
}

type subscription struct {
	bus   *MemoryBus
	topic string
	ch    chan Message
	quit  chan struct{}
	once  sync.Once
}

func (s *subscription) C() <-chan Message {
	return s.ch
}

// Close detaches the subscription and closes its channel. Idempotent;
// the channel close happens after the detach, so an in-flight Publish
// holding the read lock finishes before the channel goes away.
func (s *subscription) Close() error {
	s.once.Do(func() {
		close(s.quit)
		s.bus.detach(s)
		close(s.ch)
	})
	return nil
}

func (b *MemoryBus) detach(dead *subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()

	lst := b.subs[dead.topic]
	out := lst[:0]
	for _, s := range lst {
		if s != dead {
			out = append(out, s)
		}
	}
	if len(out) == 0 {
		delete(b.subs, dead.topic)
	} else {
		b.subs[dead.topic] = out
	}
}

var (
	_ Bus        = (*MemoryBus)(nil)
	_ Subscriber = (*subscription)(nil)
)
