package association

import (
	"testing"

	"github.com/ossrs/go-dcsctp/chunk"
)

func TestT3RtxExhaustionAbortsWithoutSendingAbort(t *testing.T) {
	opts := testOptions()
	opts.MaxRetransmissions = 2
	opts.RTOInitialMs = 100
	opts.RTOMinMs = 100
	opts.RTOMaxMs = 200
	p := newPair(opts)
	p.handshake()

	if err := p.a.Send(Message{StreamID: 0, PPID: 1, Payload: []byte("never delivered")}, SendOptions{MaxRetransmissions: -1, LifetimeMs: -1}); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	// Drop a's DATA on the floor: b never sees it, so no SACK ever arrives
	// and t3-rtx has nothing to cancel it.
	p.sinkA.takeSent()

	for i := 0; i < 10 && p.a.State() != StateClosed; i++ {
		p.advance(int64(opts.RTOMaxMs))
		p.sinkA.takeSent()
	}

	if p.a.State() != StateClosed {
		t.Fatalf("expect association to close after t3-rtx exhaustion, got %s", p.a.State())
	}
	if len(p.sinkA.errors) == 0 {
		t.Fatalf("expect an OnError(TooManyRetries) notification")
	}
	if len(p.sinkA.aborted) != 0 {
		t.Fatalf("expect no OnAborted callback: t3-rtx exhaustion must fail silently, got %v", p.sinkA.aborted)
	}
}

func TestT3RtxHalvesCwndAndDoublesRTO(t *testing.T) {
	opts := testOptions()
	opts.RTOInitialMs = 100
	opts.RTOMinMs = 100
	opts.RTOMaxMs = 10000
	p := newPair(opts)
	p.handshake()

	if err := p.a.Send(Message{StreamID: 0, PPID: 1, Payload: []byte("dropped once")}, SendOptions{MaxRetransmissions: -1, LifetimeMs: -1}); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	p.sinkA.takeSent()

	cwndBefore := p.a.CwndBytes()
	rtoBefore := p.a.RTOMs()

	p.a.onT3RtxExpiry()

	if p.a.CwndBytes() >= cwndBefore {
		t.Fatalf("expect cwnd to shrink after t3-rtx, before=%d after=%d", cwndBefore, p.a.CwndBytes())
	}
	if p.a.RTOMs() <= rtoBefore {
		t.Fatalf("expect RTO to grow after t3-rtx, before=%d after=%d", rtoBefore, p.a.RTOMs())
	}
}

func TestRetransmittedDataEventuallyDelivered(t *testing.T) {
	opts := testOptions()
	opts.RTOInitialMs = 100
	opts.RTOMinMs = 100
	opts.RTOMaxMs = 200
	p := newPair(opts)
	p.handshake()

	if err := p.a.Send(Message{StreamID: 0, PPID: 7, Payload: []byte("will be lost once")}, SendOptions{MaxRetransmissions: -1, LifetimeMs: -1}); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	// Drop the first DATA chunk, simulating one lost packet.
	dropped := p.sinkA.takeSent()
	if !containsChunkType(dropped, chunk.TypeData) {
		t.Fatalf("expect the send to produce a DATA chunk")
	}

	p.advance(int64(opts.RTOMaxMs))
	p.settle()

	if len(p.sinkB.received) != 1 {
		t.Fatalf("expect the retransmitted message to be delivered exactly once, got %d", len(p.sinkB.received))
	}
	if p.a.BytesRetransmitted() == 0 {
		t.Fatalf("expect BytesRetransmitted() to account for the retransmission")
	}
}
