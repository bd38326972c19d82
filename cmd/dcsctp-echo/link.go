package main

import (
	"math/rand"
	"time"
)

// lossyLink simulates a best-effort network path between the demo's two
// endpoints: packets are delivered out of the calling goroutine after a
// random delay, and a small fraction are dropped outright, the way a real
// UDP path backing SCTP would behave. This is what actually exercises the
// retransmission queue's T3-RTX path and the reassembly queue's SACK
// gap-ack reporting in a single-process demo.
type lossyLink struct {
	dropProbability      float64
	minDelay, maxDelay   time.Duration
}

var link = &lossyLink{
	dropProbability: 0.03,
	minDelay:        2 * time.Millisecond,
	maxDelay:        30 * time.Millisecond,
}

func (l *lossyLink) transmit(from, to *endpoint, packet []byte) {
	if rand.Float64() < l.dropProbability {
		return
	}
	raw := append([]byte(nil), packet...)
	delay := l.minDelay + time.Duration(rand.Int63n(int64(l.maxDelay-l.minDelay+1)))
	time.AfterFunc(delay, func() {
		to.mu.Lock()
		defer to.mu.Unlock()
		to.sock.ReceivePacket(raw)
	})
}
