package callback

import (
	"testing"

	"github.com/ossrs/go-dcsctp/timer"
)

type recordingSink struct {
	sent     [][]byte
	events   []string
	messages []ReceivedMessage
}

func (r *recordingSink) SendPacket(packet []byte) { r.sent = append(r.sent, packet) }
func (r *recordingSink) CreateTimeout() timer.Timeout { return nil }
func (r *recordingSink) TimeMillis() int64            { return 42 }
func (r *recordingSink) GetRandomInt(low, high uint32) uint32 { return low }

func (r *recordingSink) OnMessageReceived(m ReceivedMessage)     { r.messages = append(r.messages, m) }
func (r *recordingSink) OnError(kind ErrorKind, message string)  { r.events = append(r.events, "error") }
func (r *recordingSink) OnAborted(kind ErrorKind, message string) { r.events = append(r.events, "aborted") }
func (r *recordingSink) OnConnected()                            { r.events = append(r.events, "connected") }
func (r *recordingSink) OnClosed()                               { r.events = append(r.events, "closed") }
func (r *recordingSink) OnConnectionRestarted()                  { r.events = append(r.events, "restarted") }
func (r *recordingSink) OnStreamsResetFailed(ids []uint16, reason string) {
	r.events = append(r.events, "reset-failed")
}
func (r *recordingSink) OnStreamsResetPerformed(ids []uint16) {
	r.events = append(r.events, "reset-performed")
}
func (r *recordingSink) OnIncomingStreamsReset(ids []uint16) {
	r.events = append(r.events, "incoming-reset")
}
func (r *recordingSink) OnSentMessageExpired(streamID uint16, ppid uint32, unsent bool) {
	r.events = append(r.events, "expired")
}
func (r *recordingSink) OnOutgoingMessageBufferEmpty() { r.events = append(r.events, "buffer-empty") }
func (r *recordingSink) OnBufferedAmountLow(streamID uint16) {
	r.events = append(r.events, "buffered-low")
}
func (r *recordingSink) OnTotalBufferedAmountLow() { r.events = append(r.events, "total-low") }
func (r *recordingSink) OnLifecycleMessageExpired(lifecycleID string, maybeDelivered bool) {
	r.events = append(r.events, "lifecycle-expired")
}
func (r *recordingSink) OnLifecycleEnd(lifecycleID string) { r.events = append(r.events, "lifecycle-end") }

func TestSynchronousCallbacksPassThroughImmediately(t *testing.T) {
	sink := &recordingSink{}
	d := New(sink)

	d.SendPacket([]byte("x"))
	if len(sink.sent) != 1 {
		t.Fatalf("expect SendPacket to pass through without TriggerDeferred, got %d", len(sink.sent))
	}
	if d.TimeMillis() != 42 {
		t.Errorf("expect TimeMillis passthrough")
	}
	if d.GetRandomInt(5, 10) != 5 {
		t.Errorf("expect GetRandomInt passthrough")
	}
}

func TestNotificationsAreQueuedUntilTriggered(t *testing.T) {
	sink := &recordingSink{}
	d := New(sink)

	d.OnConnected()
	d.OnClosed()
	if len(sink.events) != 0 {
		t.Fatalf("expect nothing delivered before TriggerDeferred, got %v", sink.events)
	}

	d.TriggerDeferred()
	if len(sink.events) != 2 || sink.events[0] != "connected" || sink.events[1] != "closed" {
		t.Errorf("expect connected,closed delivered in order, got %v", sink.events)
	}
}

func TestReceivedMessagesQueuedSeparatelyAndDeliveredOnTrigger(t *testing.T) {
	sink := &recordingSink{}
	d := New(sink)

	d.OnMessageReceived(ReceivedMessage{StreamID: 1, Payload: []byte("hi")})
	if len(sink.messages) != 0 {
		t.Fatalf("expect message queued, not delivered yet")
	}
	d.TriggerDeferred()
	if len(sink.messages) != 1 || string(sink.messages[0].Payload) != "hi" {
		t.Errorf("expect message delivered after trigger, got %+v", sink.messages)
	}
}

func TestTriggerDeferredClearsQueueForNextCall(t *testing.T) {
	sink := &recordingSink{}
	d := New(sink)

	d.OnConnected()
	d.TriggerDeferred()
	d.TriggerDeferred()
	if len(sink.events) != 1 {
		t.Errorf("expect the second TriggerDeferred to be a no-op, got %v", sink.events)
	}
}
