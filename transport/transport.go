// Package transport implements the packet sender: it hands serialized
// packets to the host's send callback, retrying ones that hit a transient
// failure on a short timer, per spec.md §4.9 ("Packet sender").
package transport

import (
	"time"

	"golang.org/x/time/rate"

	"github.com/ossrs/go-dcsctp/timer"
)

// Status is the outcome the host callback reports for one send attempt.
type Status int

const (
	// StatusSuccess: the packet was handed off; retry not needed.
	StatusSuccess Status = iota
	// StatusTemporaryFailure: the host couldn't send right now (e.g. a
	// full socket buffer); the packet is queued for retry.
	StatusTemporaryFailure
	// StatusError: the packet cannot be sent and never will be; dropped.
	StatusError
)

// SendFunc is the host's outbound packet callback.
type SendFunc func(packet []byte) Status

// OnSentFunc is notified of every send attempt, successful or not.
type OnSentFunc func(packet []byte, status Status)

const retryTimerDurationMs = 1

// Sender serializes packets to the network, queuing ones that hit a
// temporary failure and retrying them on a 1ms timer.
type Sender struct {
	send    SendFunc
	onSent  OnSentFunc
	retry   *timer.Timer
	queue   [][]byte
	limiter *rate.Limiter
}

// New builds a Sender. If bytesPerSec > 0, outbound packets are additionally
// rate-limited via a token bucket, useful for simulating a constrained link
// in tests and the demo binary; 0 disables throttling.
func New(tm *timer.Manager, send SendFunc, onSent OnSentFunc, bytesPerSec int) *Sender {
	s := &Sender{send: send, onSent: onSent}
	s.retry = tm.CreateTimer("packet-retry", s.onRetryTimerExpiry, timer.Options{
		DurationMs:  retryTimerDurationMs,
		MaxRestarts: timer.Unlimited,
	})
	if bytesPerSec > 0 {
		s.limiter = rate.NewLimiter(rate.Limit(bytesPerSec), bytesPerSec)
	}
	return s
}

func (s *Sender) onRetryTimerExpiry() (int, bool) {
	s.retrySendPackets()
	return 0, false
}

// PrepareToSend drains the retry queue if there is one. Returns false if it
// couldn't fully drain it, meaning no new packet should be sent this round.
func (s *Sender) PrepareToSend() bool {
	return s.retrySendPackets()
}

func (s *Sender) retrySendPackets() bool {
	if len(s.queue) == 0 {
		return true
	}
	for len(s.queue) > 0 {
		packet := s.queue[0]
		status := s.attempt(packet)
		switch status {
		case StatusSuccess:
			s.queue = s.queue[1:]
			continue
		case StatusTemporaryFailure:
			return false
		case StatusError:
			s.queue = s.queue[1:]
			return false
		}
	}
	s.retry.Stop()
	return true
}

// Send transmits packet, returning true if it was handed off successfully.
// On a temporary failure it's queued for retry and false is returned; on a
// permanent error it's dropped and false is returned.
func (s *Sender) Send(packet []byte) bool {
	if len(packet) == 0 {
		return false
	}
	status := s.attempt(packet)
	switch status {
	case StatusSuccess:
		return true
	case StatusTemporaryFailure:
		s.queue = append(s.queue, packet)
		if !s.retry.IsRunning() {
			s.retry.Start()
		}
		return false
	default: // StatusError
		return false
	}
}

func (s *Sender) attempt(packet []byte) Status {
	if s.limiter != nil && !s.limiter.AllowN(time.Now(), len(packet)) {
		if s.onSent != nil {
			s.onSent(packet, StatusTemporaryFailure)
		}
		return StatusTemporaryFailure
	}
	status := s.send(packet)
	if s.onSent != nil {
		s.onSent(packet, status)
	}
	return status
}

// PendingRetries returns how many packets are currently queued for retry.
func (s *Sender) PendingRetries() int { return len(s.queue) }
