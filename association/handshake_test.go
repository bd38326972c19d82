package association

import "testing"

func TestHandshakeEstablishesAssociation(t *testing.T) {
	p := newPair(testOptions())
	p.handshake()

	if p.a.State() != StateEstablished {
		t.Fatalf("a: expect established, got %s", p.a.State())
	}
	if p.b.State() != StateEstablished {
		t.Fatalf("b: expect established, got %s", p.b.State())
	}
	if p.sinkA.connected != 1 || p.sinkB.connected != 1 {
		t.Fatalf("expect exactly one OnConnected per side, got a=%d b=%d", p.sinkA.connected, p.sinkB.connected)
	}
}

func TestHandshakeNegotiatesStreamReset(t *testing.T) {
	p := newPair(testOptions())
	p.handshake()

	if p.a.SupportsStreamReset() == nil || !*p.a.SupportsStreamReset() {
		t.Fatalf("expect a to have negotiated stream reset support")
	}
	if p.b.SupportsStreamReset() == nil || !*p.b.SupportsStreamReset() {
		t.Fatalf("expect b to have negotiated stream reset support")
	}
}

func TestSendBeforeConnectEnqueuesWithoutError(t *testing.T) {
	p := newPair(testOptions())

	err := p.a.Send(Message{StreamID: 0, PPID: 1, Payload: []byte("queued before connect")}, SendOptions{MaxRetransmissions: -1, LifetimeMs: -1})
	if err != nil {
		t.Fatalf("Send before Connect should enqueue, not error: %v", err)
	}
	if p.a.State() != StateClosed {
		t.Fatalf("Send alone must not change state, got %s", p.a.State())
	}

	p.handshake()
	p.settle()

	if len(p.sinkB.received) != 1 || string(p.sinkB.received[0].Payload) != "queued before connect" {
		t.Fatalf("expect the queued message to be delivered once connected, got %+v", p.sinkB.received)
	}
}

func TestMessageDeliveredEndToEnd(t *testing.T) {
	p := newPair(testOptions())
	p.handshake()

	if err := p.a.Send(Message{StreamID: 3, PPID: 42, Payload: []byte("hello")}, SendOptions{MaxRetransmissions: -1, LifetimeMs: -1}); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	p.settle()

	if len(p.sinkB.received) != 1 {
		t.Fatalf("expect 1 message delivered, got %d", len(p.sinkB.received))
	}
	got := p.sinkB.received[0]
	if got.StreamID != 3 || got.PPID != 42 || string(got.Payload) != "hello" {
		t.Fatalf("unexpected delivered message: %+v", got)
	}
	if p.b.MessagesDelivered() != 1 {
		t.Fatalf("expect MessagesDelivered() == 1, got %d", p.b.MessagesDelivered())
	}
}

func TestSendOnClosedSocketFails(t *testing.T) {
	p := newPair(testOptions())
	p.handshake()
	p.a.Close()

	err := p.a.Send(Message{StreamID: 0, PPID: 1, Payload: []byte("x")}, SendOptions{})
	if err != ErrNotConnected {
		t.Fatalf("expect ErrNotConnected after Close, got %v", err)
	}
}

func TestGracefulShutdownCompletesBothSides(t *testing.T) {
	p := newPair(testOptions())
	p.handshake()

	p.a.Shutdown()
	p.settle()

	if p.a.State() != StateClosed {
		t.Fatalf("a: expect closed after shutdown handshake, got %s", p.a.State())
	}
	if p.b.State() != StateClosed {
		t.Fatalf("b: expect closed after shutdown handshake, got %s", p.b.State())
	}
	if p.sinkA.closed != 1 || p.sinkB.closed != 1 {
		t.Fatalf("expect exactly one OnClosed per side, got a=%d b=%d", p.sinkA.closed, p.sinkB.closed)
	}
}
