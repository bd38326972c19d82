package reassembly

import "testing"

func frag(tsn uint32, stream uint16, key, fsn uint32, payload string, beg, end bool) InboundChunk {
	return InboundChunk{
		TSN:         tsn,
		StreamID:    stream,
		Key:         key,
		FSN:         fsn,
		PPID:        1,
		Payload:     []byte(payload),
		IsBeginning: beg,
		IsEnd:       end,
	}
}

func TestOrderedDeliveryInSequence(t *testing.T) {
	q := New(Options{})
	q.SetInitialTSN(1000)

	res := q.HandleData(frag(1000, 1, 0, 0, "hello", true, true))
	if len(res.Delivered) != 1 || string(res.Delivered[0].Payload) != "hello" {
		t.Fatalf("expect immediate delivery of single-fragment message, got %+v", res)
	}
	if res.Ack != AckDelayed {
		t.Errorf("expect delayed ack for in-order single chunk, got %v", res.Ack)
	}
}

func TestOrderedDeliveryWaitsForNextSSN(t *testing.T) {
	q := New(Options{})
	q.SetInitialTSN(1000)

	// Message for SSN 1 arrives complete before SSN 0 has been seen.
	res := q.HandleData(frag(1001, 1, 1, 0, "second", true, true))
	if len(res.Delivered) != 0 {
		t.Fatalf("expect no delivery while SSN 0 missing, got %+v", res.Delivered)
	}

	res = q.HandleData(frag(1000, 1, 0, 0, "first", true, true))
	if len(res.Delivered) != 2 {
		t.Fatalf("expect both messages delivered back-to-back, got %d", len(res.Delivered))
	}
	if string(res.Delivered[0].Payload) != "first" || string(res.Delivered[1].Payload) != "second" {
		t.Errorf("expect in-order delivery first,second; got %q,%q",
			res.Delivered[0].Payload, res.Delivered[1].Payload)
	}
}

func TestUnorderedDeliversAsSoonAsComplete(t *testing.T) {
	q := New(Options{})
	q.SetInitialTSN(1000)

	u := func(c InboundChunk) InboundChunk { c.Unordered = true; return c }
	res := q.HandleData(u(frag(1000, 2, 7, 0, "part-a", true, false)))
	if len(res.Delivered) != 0 {
		t.Fatalf("expect no delivery until end fragment seen")
	}
	res = q.HandleData(u(frag(1001, 2, 7, 1, "part-b", false, true)))
	if len(res.Delivered) != 1 || string(res.Delivered[0].Payload) != "part-apart-b" {
		t.Fatalf("expect assembled unordered message, got %+v", res.Delivered)
	}
}

func TestDuplicateAndObsoleteTSNsDiscarded(t *testing.T) {
	q := New(Options{})
	q.SetInitialTSN(1000)
	q.HandleData(frag(1000, 1, 0, 0, "a", true, true))

	res := q.HandleData(frag(1000, 1, 0, 0, "a", true, true))
	if !res.Discarded {
		t.Errorf("expect TSN at/behind cumulative ack point discarded")
	}

	res2 := q.HandleData(frag(1002, 1, 2, 0, "c", true, true))
	if len(res2.Delivered) != 0 {
		t.Fatalf("expect message withheld pending the gap")
	}
	dupRes := q.HandleData(frag(1002, 1, 2, 0, "c", true, true))
	if !dupRes.Duplicate {
		t.Errorf("expect re-receiving TSN 1002 flagged as duplicate")
	}
	dups := q.DuplicateTSNs()
	if len(dups) != 1 || dups[0] != 1002 {
		t.Errorf("expect recorded duplicate TSN 1002, got %v", dups)
	}
}

func TestGapAckBlocksReflectOutOfOrderTSNs(t *testing.T) {
	q := New(Options{})
	q.SetInitialTSN(1000)
	q.HandleData(frag(1002, 1, 2, 0, "c", true, true))
	q.HandleData(frag(1003, 1, 3, 0, "d", true, true))

	blocks := q.GapAckBlocks()
	if len(blocks) != 1 || blocks[0].Start != 3 || blocks[0].End != 4 {
		t.Errorf("expect single gap-ack block [3,4], got %+v", blocks)
	}
	if q.CumulativeTSN() != 999 {
		t.Errorf("expect cumulative TSN stuck at 999 behind the gap, got %d", q.CumulativeTSN())
	}
}

func TestForwardTSNDropsAbandonedAndUnblocksOrdered(t *testing.T) {
	q := New(Options{})
	q.SetInitialTSN(1000)

	// SSN 1's message is buffered waiting on SSN 0, which will never arrive
	// (it was abandoned and skipped by a Forward-TSN).
	q.HandleData(frag(1001, 1, 1, 0, "second", true, true))

	delivered := q.ApplyForwardTSN(1000, []ForwardTSNSkip{{StreamID: 1, Key: 0}})
	if len(delivered) != 1 || string(delivered[0].Payload) != "second" {
		t.Fatalf("expect SSN 1 delivered once SSN 0 is skipped, got %+v", delivered)
	}
	if q.CumulativeTSN() != 1000 {
		t.Errorf("expect cumulative TSN advanced to 1000, got %d", q.CumulativeTSN())
	}
}

func TestMemoryBoundSignalsOverBudget(t *testing.T) {
	q := New(Options{MaxBufferedBytes: 4})
	q.SetInitialTSN(1000)
	q.HandleData(frag(1000, 1, 0, 0, "toolong", true, false))
	if !q.OverBudget() {
		t.Errorf("expect over-budget once buffered bytes exceed the bound")
	}
}

func TestResetStreamClearsPartialStateAndCursor(t *testing.T) {
	q := New(Options{})
	q.SetInitialTSN(1000)
	q.HandleData(frag(1000, 1, 3, 0, "partial", true, false))

	q.ResetStream(1)
	if q.BufferedBytes() != 0 {
		t.Errorf("expect reset to release buffered bytes, got %d", q.BufferedBytes())
	}

	res := q.HandleData(frag(1001, 1, 0, 0, "fresh", true, true))
	if len(res.Delivered) != 1 {
		t.Fatalf("expect ordered delivery to resume at key 0 after reset, got %+v", res)
	}
}
