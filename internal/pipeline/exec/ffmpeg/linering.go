// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package ffmpeg

import "sync"

// LineRing keeps the most recent stderr lines of one encoder process
// so exit errors can carry their diagnostic tail. Safe for concurrent
// use.
type LineRing struct {
	mu    sync.Mutex
	buf   []string
	next  int
	count int
}

// NewLineRing creates a ring holding up to capacity lines.
func NewLineRing(capacity int) *LineRing {
	if capacity < 1 {
		capacity = 50
	}
	return &LineRing{buf: make([]string, capacity)}
}

// Append records one line, evicting the oldest once the ring is full.
// Empty lines are dropped.
func (r *LineRing) Append(line string) {
	if line == "" {
		return
	}
	r.mu.Lock()
	r.buf[r.next] = line
	r.next = (r.next + 1) % len(r.buf)
	if r.count < len(r.buf) {
		r.count++
	}
	r.mu.Unlock()
}

// LastN returns up to n of the most recent lines, oldest first.
func (r *LineRing) LastN(n int) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	if n > r.count {
		n = r.count
	}
	if n <= 0 {
		return nil
	}

	start := r.next - n
	if start < 0 {
		start += len(r.buf)
	}
	out := make([]string, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, r.buf[(start+i)%len(r.buf)])
	}
	return out
}
