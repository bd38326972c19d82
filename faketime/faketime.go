// Package faketime provides a deterministic Timeout implementation for
// tests that drive the association, txqueue and reassembly packages: no
// real timers fire, the test advances a virtual clock and asks the Clock
// to report which timeouts are now due, mirroring original_source's
// net/dcsctp/timer/fake_timeout.h adapted to Go's timer.Timeout interface.
package faketime

import "github.com/ossrs/go-dcsctp/timer"

// Clock is a manually-advanced monotonic clock plus a factory for fake
// Timeout instances that register themselves with it.
type Clock struct {
	nowMs   int64
	timeout []*Timeout
}

// NewClock creates a Clock starting at nowMs.
func NewClock(nowMs int64) *Clock {
	return &Clock{nowMs: nowMs}
}

// NowMs returns the current virtual time, suitable for a TimeMillis
// callback.
func (c *Clock) NowMs() int64 { return c.nowMs }

// Advance moves the virtual clock forward by deltaMs. It does not itself
// fire anything; call Due and the caller's Manager.HandleTimeout to do
// that.
func (c *Clock) Advance(deltaMs int64) {
	c.nowMs += deltaMs
}

// Factory returns a timer.Factory that mints Timeout instances bound to
// this Clock.
func (c *Clock) Factory() timer.Factory {
	return func() timer.Timeout {
		t := &Timeout{clock: c}
		c.timeout = append(c.timeout, t)
		return t
	}
}

// Due returns, and clears, the timeout ids whose deadline is <= the current
// virtual time, in the order they were scheduled. The caller is expected to
// feed each one to Manager.HandleTimeout.
func (c *Clock) Due() []uint64 {
	var due []uint64
	for _, t := range c.timeout {
		if t.armed && t.deadlineMs <= c.nowMs {
			t.armed = false
			due = append(due, t.lastID)
		}
	}
	return due
}

// Timeout is a single fake one-shot timeout primitive.
type Timeout struct {
	clock      *Clock
	armed      bool
	deadlineMs int64
	lastID     uint64
}

func (t *Timeout) Start(durationMs int, timeoutID uint64) {
	t.armed = true
	t.deadlineMs = t.clock.nowMs + int64(durationMs)
	t.lastID = timeoutID
}

func (t *Timeout) Stop() {
	t.armed = false
}

func (t *Timeout) Restart(durationMs int, timeoutID uint64) {
	t.Start(durationMs, timeoutID)
}
