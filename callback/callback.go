// Package callback defers client-facing notifications until the end of the
// public API call that produced them, per spec.md §4.10. A handful of
// callbacks that the client is expected to answer synchronously (sending a
// packet, creating a timeout, reading the clock, getting randomness) are
// passed straight through instead of being queued.
package callback

import "github.com/ossrs/go-dcsctp/timer"

// ErrorKind classifies an OnError/OnAborted notification.
type ErrorKind int

const (
	ErrorKindNone ErrorKind = iota
	ErrorKindTooManyRetries
	ErrorKindNotConnected
	ErrorKindParseFailed
	ErrorKindWrongSequence
	ErrorKindPeerReported
	ErrorKindProtocolViolation
	ErrorKindResourceExhaustion
)

func (k ErrorKind) String() string {
	switch k {
	case ErrorKindNone:
		return "none"
	case ErrorKindTooManyRetries:
		return "too-many-retries"
	case ErrorKindNotConnected:
		return "not-connected"
	case ErrorKindParseFailed:
		return "parse-failed"
	case ErrorKindWrongSequence:
		return "wrong-sequence"
	case ErrorKindPeerReported:
		return "peer-reported"
	case ErrorKindProtocolViolation:
		return "protocol-violation"
	case ErrorKindResourceExhaustion:
		return "resource-exhaustion"
	default:
		return "unknown"
	}
}

// ReceivedMessage is one fully reassembled message handed to the client.
type ReceivedMessage struct {
	StreamID  uint16
	PPID      uint32
	Payload   []byte
	Unordered bool
}

// Sink is the client's notification interface. Association calls the
// Deferrer, never this directly; the Deferrer passes five methods straight
// through (SendPacket, CreateTimeout, TimeMillis, GetRandomInt and
// OnOutgoingMessageBufferEmpty).
type Sink interface {
	SendPacket(packet []byte)
	CreateTimeout() timer.Timeout
	TimeMillis() int64
	GetRandomInt(low, high uint32) uint32

	OnMessageReceived(m ReceivedMessage)
	OnError(kind ErrorKind, message string)
	OnAborted(kind ErrorKind, message string)
	OnConnected()
	OnClosed()
	OnConnectionRestarted()
	OnStreamsResetFailed(streamIDs []uint16, reason string)
	OnStreamsResetPerformed(streamIDs []uint16)
	OnIncomingStreamsReset(streamIDs []uint16)
	OnSentMessageExpired(streamID uint16, ppid uint32, unsent bool)
	OnOutgoingMessageBufferEmpty()
	OnBufferedAmountLow(streamID uint16)
	OnTotalBufferedAmountLow()
	OnLifecycleMessageExpired(lifecycleID string, maybeDelivered bool)
	OnLifecycleEnd(lifecycleID string)
}

// Deferrer wraps a Sink, queuing every notification except the five
// pass-through methods, and flushing the queue on TriggerDeferred.
type Deferrer struct {
	underlying Sink
	deferred   []func(Sink)
	received   []ReceivedMessage
}

// New wraps sink in a Deferrer.
func New(sink Sink) *Deferrer {
	return &Deferrer{underlying: sink}
}

// TriggerDeferred runs every queued notification in the order it was queued,
// then delivers every received message in arrival order, then clears both
// queues. Received messages are kept in a queue of their own, so each one is
// delivered after all other notifications of the same flush, even those
// queued after it. Association calls this once at the end of every public
// API method.
func (d *Deferrer) TriggerDeferred() {
	for _, cb := range d.deferred {
		cb(d.underlying)
	}
	d.deferred = nil

	for _, m := range d.received {
		d.underlying.OnMessageReceived(m)
	}
	d.received = nil
}

// SendPacket is not deferred - called directly.
func (d *Deferrer) SendPacket(packet []byte) { d.underlying.SendPacket(packet) }

// CreateTimeout is not deferred - called directly.
func (d *Deferrer) CreateTimeout() timer.Timeout { return d.underlying.CreateTimeout() }

// TimeMillis is not deferred - called directly.
func (d *Deferrer) TimeMillis() int64 { return d.underlying.TimeMillis() }

// GetRandomInt is not deferred - called directly.
func (d *Deferrer) GetRandomInt(low, high uint32) uint32 {
	return d.underlying.GetRandomInt(low, high)
}

// OnOutgoingMessageBufferEmpty is not deferred - called directly, matching
// the original's NotifyOutgoingMessageBufferEmpty passthrough.
func (d *Deferrer) OnOutgoingMessageBufferEmpty() { d.underlying.OnOutgoingMessageBufferEmpty() }

// OnMessageReceived is special-cased like the original: messages carry a
// payload slice that's cheaper to queue directly than to wrap in a closure.
func (d *Deferrer) OnMessageReceived(m ReceivedMessage) {
	d.received = append(d.received, m)
}

func (d *Deferrer) OnError(kind ErrorKind, message string) {
	d.deferred = append(d.deferred, func(s Sink) { s.OnError(kind, message) })
}

func (d *Deferrer) OnAborted(kind ErrorKind, message string) {
	d.deferred = append(d.deferred, func(s Sink) { s.OnAborted(kind, message) })
}

func (d *Deferrer) OnConnected() {
	d.deferred = append(d.deferred, func(s Sink) { s.OnConnected() })
}

func (d *Deferrer) OnClosed() {
	d.deferred = append(d.deferred, func(s Sink) { s.OnClosed() })
}

func (d *Deferrer) OnConnectionRestarted() {
	d.deferred = append(d.deferred, func(s Sink) { s.OnConnectionRestarted() })
}

func (d *Deferrer) OnStreamsResetFailed(streamIDs []uint16, reason string) {
	ids := append([]uint16(nil), streamIDs...)
	d.deferred = append(d.deferred, func(s Sink) { s.OnStreamsResetFailed(ids, reason) })
}

func (d *Deferrer) OnStreamsResetPerformed(streamIDs []uint16) {
	ids := append([]uint16(nil), streamIDs...)
	d.deferred = append(d.deferred, func(s Sink) { s.OnStreamsResetPerformed(ids) })
}

func (d *Deferrer) OnIncomingStreamsReset(streamIDs []uint16) {
	ids := append([]uint16(nil), streamIDs...)
	d.deferred = append(d.deferred, func(s Sink) { s.OnIncomingStreamsReset(ids) })
}

func (d *Deferrer) OnSentMessageExpired(streamID uint16, ppid uint32, unsent bool) {
	d.deferred = append(d.deferred, func(s Sink) { s.OnSentMessageExpired(streamID, ppid, unsent) })
}

func (d *Deferrer) OnBufferedAmountLow(streamID uint16) {
	d.deferred = append(d.deferred, func(s Sink) { s.OnBufferedAmountLow(streamID) })
}

func (d *Deferrer) OnTotalBufferedAmountLow() {
	d.deferred = append(d.deferred, func(s Sink) { s.OnTotalBufferedAmountLow() })
}

// OnLifecycleMessageExpired reports that a message sent with a
// caller-supplied lifecycle id was discarded before full delivery. maybeDelivered is true if some fragments may have
// reached the peer.
func (d *Deferrer) OnLifecycleMessageExpired(lifecycleID string, maybeDelivered bool) {
	d.deferred = append(d.deferred, func(s Sink) { s.OnLifecycleMessageExpired(lifecycleID, maybeDelivered) })
}

// OnLifecycleEnd reports that a lifecycle-tracked message reached its final
// state, successfully or not, and the id will not be reported again.
func (d *Deferrer) OnLifecycleEnd(lifecycleID string) {
	d.deferred = append(d.deferred, func(s Sink) { s.OnLifecycleEnd(lifecycleID) })
}

// DiscardDeferred drops every queued notification and received message
// without delivering it.
func (d *Deferrer) DiscardDeferred() {
	d.deferred = nil
	d.received = nil
}
