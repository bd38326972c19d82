package association

import "testing"

func TestStreamResetRoundTrip(t *testing.T) {
	p := newPair(testOptions())
	p.handshake()

	if err := p.a.Send(Message{StreamID: 5, PPID: 1, Payload: []byte("before reset")}, SendOptions{MaxRetransmissions: -1, LifetimeMs: -1}); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	p.settle()

	p.a.ResetStreams([]uint16{5})
	p.settle()

	if len(p.sinkA.resetsOK) != 1 || len(p.sinkA.resetsOK[0]) != 1 || p.sinkA.resetsOK[0][0] != 5 {
		t.Fatalf("expect a to observe a successful reset of stream 5, got %+v", p.sinkA.resetsOK)
	}
	if len(p.sinkB.incomingReset) != 1 || len(p.sinkB.incomingReset[0]) != 1 || p.sinkB.incomingReset[0][0] != 5 {
		t.Fatalf("expect b to observe an incoming reset of stream 5, got %+v", p.sinkB.incomingReset)
	}

	if err := p.a.Send(Message{StreamID: 5, PPID: 1, Payload: []byte("after reset")}, SendOptions{MaxRetransmissions: -1, LifetimeMs: -1}); err != nil {
		t.Fatalf("Send after reset failed: %v", err)
	}
	p.settle()

	if len(p.sinkB.received) != 2 {
		t.Fatalf("expect both pre- and post-reset messages delivered, got %d", len(p.sinkB.received))
	}
}

func TestResetStreamsBeforeEstablishedIsNoop(t *testing.T) {
	p := newPair(testOptions())
	p.a.ResetStreams([]uint16{1})

	if p.a.State() != StateClosed {
		t.Fatalf("ResetStreams before Established must not change state, got %s", p.a.State())
	}
	if len(p.sinkA.sentPackets) != 0 {
		t.Fatalf("ResetStreams before Established must not send anything, got %d packets", len(p.sinkA.sentPackets))
	}
}
