package association

import (
	"testing"

	"github.com/ossrs/go-dcsctp/chunk"
)

func TestHeartbeatRoundTripSamplesRTT(t *testing.T) {
	p := newPair(testOptions())
	p.handshake()

	p.advance(int64(p.a.opts.HeartbeatIntervalMs))
	p.settle()

	if p.a.heartbeatOutstanding {
		t.Fatalf("expect heartbeat to be acked and no longer outstanding")
	}
	if p.a.heartbeatFailures != 0 {
		t.Fatalf("expect heartbeat failure count reset on ack, got %d", p.a.heartbeatFailures)
	}
}

func TestHeartbeatExhaustionAbortsWithoutSendingAbort(t *testing.T) {
	opts := testOptions()
	opts.MaxRetransmissions = 2
	opts.HeartbeatIntervalMs = 100
	p := newPair(opts)
	p.handshake()

	// Never deliver a's HEARTBEATs to b, so no HEARTBEAT-ACK ever arrives.
	p.sinkA.takeSent()

	for i := 0; i < 10 && p.a.State() != StateClosed; i++ {
		p.advance(int64(opts.HeartbeatIntervalMs))
	}

	if p.a.State() != StateClosed {
		t.Fatalf("expect association to close after heartbeat exhaustion, got %s", p.a.State())
	}
	if len(p.sinkA.errors) == 0 {
		t.Fatalf("expect an OnError(TooManyRetries) notification")
	}
	if len(p.sinkA.aborted) != 0 {
		t.Fatalf("expect no OnAborted callback: heartbeat exhaustion must fail silently, got %v", p.sinkA.aborted)
	}
	if containsChunkType(p.sinkA.sentPackets, chunk.TypeAbort) {
		t.Fatalf("expect no ABORT chunk sent on heartbeat exhaustion")
	}
}

func TestHeartbeatIntervalIncludesRTTWhenConfigured(t *testing.T) {
	opts := testOptions()
	opts.HeartbeatIntervalIncludeRTT = true
	p := newPair(opts)
	p.handshake()

	p.a.txQ.ObserveRTTSample(50)
	nextMs, ok := p.a.onHeartbeatExpiry()
	if !ok {
		t.Fatalf("expect onHeartbeatExpiry to report a new duration")
	}
	if nextMs <= opts.HeartbeatIntervalMs {
		t.Fatalf("expect next interval to be lengthened by SRTT, got %d (base %d)", nextMs, opts.HeartbeatIntervalMs)
	}
}

func TestHeartbeatAckWithMismatchedNonceIsIgnored(t *testing.T) {
	p := newPair(testOptions())
	p.handshake()

	p.a.heartbeatOutstanding = true
	p.a.heartbeatNonce = []byte{1, 2, 3, 4}
	p.a.handleHeartbeatAck(&chunk.HeartbeatAck{Info: encodeHeartbeatInfo([]byte{9, 9, 9, 9}, p.a.nowMs())})

	if !p.a.heartbeatOutstanding {
		t.Fatalf("a mismatched nonce must not clear heartbeatOutstanding")
	}
}
