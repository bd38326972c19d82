package main

import (
	"sync"
	"time"

	"github.com/ossrs/go-dcsctp/timer"
)

// realtimeTimeout is the host-side timer.Timeout backing one association's
// timers with the process wall clock, via time.AfterFunc. Grounded on
// faketime.Timeout's shape (arm/stop/rearm around a single pending deadline)
// but driven by a real clock instead of a manually advanced one, since this
// binary runs as a long-lived process rather than a test.
type realtimeTimeout struct {
	mu      sync.Mutex
	fire    func(timeoutID uint64)
	pending *time.Timer
}

func newRealtimeFactory(fire func(timeoutID uint64)) timer.Factory {
	return func() timer.Timeout {
		return &realtimeTimeout{fire: fire}
	}
}

func (t *realtimeTimeout) Start(durationMs int, timeoutID uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.pending = time.AfterFunc(time.Duration(durationMs)*time.Millisecond, func() {
		t.fire(timeoutID)
	})
}

func (t *realtimeTimeout) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.pending != nil {
		t.pending.Stop()
		t.pending = nil
	}
}

func (t *realtimeTimeout) Restart(durationMs int, timeoutID uint64) {
	t.Stop()
	t.Start(durationMs, timeoutID)
}
