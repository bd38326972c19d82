package sendqueue

import (
	"testing"

	"github.com/ossrs/go-dcsctp/ppid"
)

type recordingNotifier struct {
	bufferedLow      []uint16
	totalLow         int
	expired          []string
	emptyFired       int
	sentExpired      int
}

func (r *recordingNotifier) OnBufferedAmountLow(streamID uint16) {
	r.bufferedLow = append(r.bufferedLow, streamID)
}
func (r *recordingNotifier) OnTotalBufferedAmountLow() { r.totalLow++ }
func (r *recordingNotifier) OnLifecycleMessageExpired(lifecycleID string, maybeDelivered bool) {
	r.expired = append(r.expired, lifecycleID)
}
func (r *recordingNotifier) OnOutgoingMessageBufferEmpty() { r.emptyFired++ }
func (r *recordingNotifier) OnSentMessageExpired(streamID uint16, ppid uint32, unsent bool) {
	r.sentExpired++
}

func newQueue() (*Queue, *recordingNotifier) {
	n := &recordingNotifier{}
	q := New(Options{BufferSize: 1 << 20}, n)
	return q, n
}

func TestRoundRobinSendsWholeMessageBeforeAdvancing(t *testing.T) {
	q, _ := newQueue()
	q.Add(0, Message{StreamID: 1, Payload: []byte("hello world"), PPID: ppid.String, LifetimeMs: -1})
	q.Add(0, Message{StreamID: 2, Payload: []byte("second stream"), LifetimeMs: -1})

	f1, ok := q.Produce(0, 5)
	if !ok || f1.StreamID != 1 || !f1.IsBeginning {
		t.Fatalf("expect first fragment from stream 1, beginning; got %+v ok=%v", f1, ok)
	}
	f2, ok := q.Produce(0, 5)
	if !ok || f2.StreamID != 1 {
		t.Fatalf("expect second fragment still stream 1 (message not finished); got %+v", f2)
	}
	f3, ok := q.Produce(0, 5)
	if !ok || f3.StreamID != 1 || !f3.IsEnd {
		t.Fatalf("expect third fragment finishes stream 1's message; got %+v", f3)
	}
	f4, ok := q.Produce(0, 64)
	if !ok || f4.StreamID != 2 {
		t.Fatalf("expect scheduler to move to stream 2 only after stream 1 finished; got %+v", f4)
	}
}

func TestEmptyMessageEncodesAsOneFillerByte(t *testing.T) {
	q, _ := newQueue()
	q.Add(0, Message{StreamID: 1, Payload: nil, PPID: ppid.String, LifetimeMs: -1})
	f, ok := q.Produce(0, 1500)
	if !ok {
		t.Fatal("expect a fragment")
	}
	if len(f.Payload) != 1 || f.Payload[0] != 0 {
		t.Errorf("expect single zero filler byte, got %v", f.Payload)
	}
	if f.PPID != ppid.StringEmpty {
		t.Errorf("expect PPID substituted to StringEmpty, got %v", f.PPID)
	}
	if !f.IsBeginning || !f.IsEnd {
		t.Errorf("expect single-fragment message to carry both flags")
	}
}

func TestMessageExpiryBeforeTransmission(t *testing.T) {
	q, n := newQueue()
	q.Add(0, Message{StreamID: 1, Payload: []byte("late"), LifetimeMs: 10, LifecycleID: "lc1"})
	_, ok := q.Produce(100, 1500)
	if ok {
		t.Fatal("expect expired message to be discarded, not produced")
	}
	if len(n.expired) != 1 || n.expired[0] != "lc1" {
		t.Errorf("expect OnLifecycleMessageExpired(lc1), got %v", n.expired)
	}
}

func TestLifetimeZeroExpiresBeforeFirstProduce(t *testing.T) {
	q, n := newQueue()
	q.Add(5, Message{StreamID: 1, Payload: []byte("x"), LifetimeMs: 0, LifecycleID: "lc0"})
	_, ok := q.Produce(5, 1500)
	if ok {
		t.Fatal("expect lifetime_ms=0 message to expire at the first Produce")
	}
	if len(n.expired) != 1 {
		t.Errorf("expect expiry notification, got %v", n.expired)
	}
}

func TestBufferedAmountConservation(t *testing.T) {
	q, _ := newQueue()
	q.Add(0, Message{StreamID: 1, Payload: make([]byte, 100)})
	q.Add(0, Message{StreamID: 2, Payload: make([]byte, 50)})
	if q.TotalBufferedAmount() != 150 {
		t.Fatalf("expect total 150, got %d", q.TotalBufferedAmount())
	}
	if q.BufferedAmount(1)+q.BufferedAmount(2) != q.TotalBufferedAmount() {
		t.Errorf("expect sum of per-stream buffered amount to equal total")
	}
	for {
		if _, ok := q.Produce(0, 30); !ok {
			break
		}
	}
	if q.TotalBufferedAmount() != 0 {
		t.Errorf("expect buffer drained to 0, got %d", q.TotalBufferedAmount())
	}
}

func TestWFQInterleavesAcrossStreams(t *testing.T) {
	q, _ := newQueue()
	q.SetInterleaved(true)
	q.SetStreamPriority(1, 1)
	q.SetStreamPriority(2, 1)
	q.Add(0, Message{StreamID: 1, Payload: make([]byte, 30), LifetimeMs: -1})
	q.Add(0, Message{StreamID: 2, Payload: make([]byte, 30), LifetimeMs: -1})

	var seen []uint16
	for i := 0; i < 4; i++ {
		f, ok := q.Produce(0, 10)
		if !ok {
			break
		}
		seen = append(seen, f.StreamID)
	}
	sawBoth := false
	for i := 1; i < len(seen); i++ {
		if seen[i] != seen[0] {
			sawBoth = true
		}
	}
	if !sawBoth {
		t.Errorf("expect WFQ to interleave fragments across streams with equal priority, got %v", seen)
	}
}

func TestPrepareResetStreamsDiscardsUnsentThenPauses(t *testing.T) {
	q, n := newQueue()
	q.Add(0, Message{StreamID: 1, Payload: []byte("abcdef"), LifetimeMs: -1})
	q.Add(0, Message{StreamID: 1, Payload: []byte("unsent"), LifecycleID: "lc-unsent", LifetimeMs: -1})

	// Start sending the first message's first fragment so it's "partial".
	f, ok := q.Produce(0, 3)
	if !ok || f.IsEnd {
		t.Fatalf("expect a partial (non-final) fragment, got %+v ok=%v", f, ok)
	}

	q.PrepareResetStreams([]uint16{1})
	if len(n.expired) != 1 || n.expired[0] != "lc-unsent" {
		t.Errorf("expect the unsent second message to expire on Pending, got %v", n.expired)
	}
	if q.PauseStateOf(1) != Pending {
		t.Fatalf("expect stream still Pending until partial message completes, got %v", q.PauseStateOf(1))
	}

	// Finish the partial message.
	for {
		if _, ok := q.Produce(0, 100); !ok {
			break
		}
	}
	if q.PauseStateOf(1) != Paused {
		t.Errorf("expect stream Paused once partial message completed, got %v", q.PauseStateOf(1))
	}
	if !q.CanResetStreams([]uint16{1}) {
		t.Errorf("expect CanResetStreams true once Paused")
	}
}

func TestResetStreamZeroesCounters(t *testing.T) {
	q, _ := newQueue()
	q.Add(0, Message{StreamID: 1, Payload: []byte("a"), LifetimeMs: -1})
	for {
		if _, ok := q.Produce(0, 100); !ok {
			break
		}
	}
	q.CommitResetStreams([]uint16{1})
	q.ResetStream(1)
	q.Add(0, Message{StreamID: 1, Payload: []byte("b"), LifetimeMs: -1})
	f, _ := q.Produce(0, 100)
	if f.MID != 0 {
		t.Errorf("expect MID reset to 0 after stream reset, got %d", f.MID)
	}
}
