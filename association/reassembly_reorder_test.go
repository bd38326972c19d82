package association

import (
	"bytes"
	"testing"

	"github.com/ossrs/go-dcsctp/chunk"
)

// TestUnorderedFragmentReorderReassembles covers the case where a classic
// DATA fragment of an unordered message arrives before its run's begin
// fragment. Since classic DATA carries no wire FSN, the begin fragment is
// the only one that reveals the base TSN the rest of the run is keyed off;
// receiving a later fragment first must not strand it in the wrong bucket.
func TestUnorderedFragmentReorderReassembles(t *testing.T) {
	p := newPair(testOptions())
	p.handshake()

	base := p.b.peerInitialTSN

	// Fragment order on the wire: begin(base, "AB"), mid(base+1, "CD"),
	// end(base+2, "EF"). Deliver mid, then begin, then end.
	mid := &chunk.Data{TSN: base + 1, StreamID: 7, PPID: 99, Payload: []byte("CD"), Unordered: true}
	begin := &chunk.Data{TSN: base, StreamID: 7, PPID: 99, Payload: []byte("AB"), Unordered: true, IsBeginning: true}
	end := &chunk.Data{TSN: base + 2, StreamID: 7, PPID: 99, Payload: []byte("EF"), Unordered: true, IsEnd: true}

	p.b.handleClassicData(mid)
	if len(p.sinkB.received) != 0 {
		t.Fatalf("expect no delivery before the begin fragment arrives, got %+v", p.sinkB.received)
	}

	p.b.handleClassicData(begin)
	if len(p.sinkB.received) != 0 {
		t.Fatalf("expect no delivery before the end fragment arrives, got %+v", p.sinkB.received)
	}

	p.b.handleClassicData(end)
	if len(p.sinkB.received) != 1 {
		t.Fatalf("expect exactly one delivered message, got %d", len(p.sinkB.received))
	}
	got := p.sinkB.received[0]
	if !bytes.Equal(got.Payload, []byte("ABCDEF")) {
		t.Fatalf("expect reassembled payload ABCDEF, got %q", got.Payload)
	}
}

// TestUnorderedFragmentReorderAcrossRuns covers a fragment of one run
// arriving out of order, buffered ahead of its begin, while a wholly
// separate unordered run on the same stream is still able to complete in
// the meantime without the two runs' fragments being mixed together.
func TestUnorderedFragmentReorderAcrossRuns(t *testing.T) {
	p := newPair(testOptions())
	p.handshake()

	base := p.b.peerInitialTSN

	// Run 1: base, base+1 (fragmented, 2 parts). Run 2: base+2 (single
	// chunk, unfragmented). Deliver run 1's second fragment first, then
	// run 2 complete, then run 1's begin.
	run1Mid := &chunk.Data{TSN: base + 1, StreamID: 4, PPID: 1, Payload: []byte("2"), Unordered: true, IsEnd: true}
	run2 := &chunk.Data{TSN: base + 2, StreamID: 4, PPID: 2, Payload: []byte("run2"), Unordered: true, IsBeginning: true, IsEnd: true}
	run1Begin := &chunk.Data{TSN: base, StreamID: 4, PPID: 1, Payload: []byte("1"), Unordered: true, IsBeginning: true}

	p.b.handleClassicData(run1Mid)
	if len(p.sinkB.received) != 0 {
		t.Fatalf("expect nothing delivered yet, got %+v", p.sinkB.received)
	}

	p.b.handleClassicData(run2)
	if len(p.sinkB.received) != 1 {
		t.Fatalf("expect run 2 to deliver immediately despite run 1's buffered fragment, got %d", len(p.sinkB.received))
	}
	if !bytes.Equal(p.sinkB.received[0].Payload, []byte("run2")) {
		t.Fatalf("expect run 2's own payload, got %q", p.sinkB.received[0].Payload)
	}

	p.b.handleClassicData(run1Begin)
	if len(p.sinkB.received) != 2 {
		t.Fatalf("expect run 1 to complete once its begin fragment arrives, got %d", len(p.sinkB.received))
	}
	if !bytes.Equal(p.sinkB.received[1].Payload, []byte("12")) {
		t.Fatalf("expect run 1's fragments joined as 12, got %q", p.sinkB.received[1].Payload)
	}
}
