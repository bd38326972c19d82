package reconfig

import "testing"

func TestOutgoingRequestQueuesBehindCurrent(t *testing.T) {
	e := New()
	first := e.RequestReset([]uint16{1}, 1000)
	second := e.RequestReset([]uint16{2}, 1005)

	if e.ReadyToSend() != first {
		t.Fatalf("expect the first request ready to send, not the second")
	}
	seq := e.MarkSent(first)

	req, done := e.HandleResponse(seq, ResultSuccess)
	if !done || req != first {
		t.Fatalf("expect first request completed")
	}
	if e.ReadyToSend() != second {
		t.Fatalf("expect second request promoted to current after the first completes")
	}
}

func TestInProgressResponseLeavesRequestOutstanding(t *testing.T) {
	e := New()
	req := e.RequestReset([]uint16{1}, 1000)
	seq := e.MarkSent(req)

	_, done := e.HandleResponse(seq, ResultInProgress)
	if done {
		t.Fatalf("expect In-progress response to leave the request outstanding")
	}
	if e.ReadyToSend() != nil {
		t.Fatalf("expect request to stay Requested, not Pending, while in progress")
	}
}

func TestIncomingRequestAppliesImmediatelyWhenLastTSNAlreadyReceived(t *testing.T) {
	e := New()
	result, respond, applied := e.HandleIncomingRequest([]uint16{3}, 1, 1000, 1000)
	if result != ResultSuccess || !respond || !applied {
		t.Fatalf("expect immediate success, got %v respond=%v applied=%v", result, respond, applied)
	}
}

func TestIncomingRequestDefersUntilCumulativeAckCatchesUp(t *testing.T) {
	e := New()
	result, respond, applied := e.HandleIncomingRequest([]uint16{3}, 1, 1005, 1000)
	if result != ResultInProgress || respond || applied {
		t.Fatalf("expect deferred In-progress response, got %v respond=%v applied=%v", result, respond, applied)
	}

	ready := e.DrainDeferred(1004)
	if len(ready) != 0 {
		t.Fatalf("expect nothing ready yet, got %+v", ready)
	}
	ready = e.DrainDeferred(1005)
	if len(ready) != 1 || ready[0].ReqSeqNum != 1 {
		t.Fatalf("expect the deferred request to drain once cumulative ack reaches 1005, got %+v", ready)
	}
}

func TestRetransmittedIncomingRequestReanswersWithoutReapplying(t *testing.T) {
	e := New()
	e.HandleIncomingRequest([]uint16{3}, 5, 1000, 1000)

	result, respond, applied := e.HandleIncomingRequest([]uint16{3}, 5, 1000, 1000)
	if result != ResultSuccess || !respond || applied {
		t.Errorf("expect a retransmitted request to be re-answered Success without reapplying, got %v respond=%v applied=%v", result, respond, applied)
	}
}
