package main

import (
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/rs/xid"

	"github.com/ossrs/go-dcsctp/association"
	"github.com/ossrs/go-dcsctp/callback"
	"github.com/ossrs/go-dcsctp/logger"
	"github.com/ossrs/go-dcsctp/timer"
)

// endpoint is one side of the demo's two in-process associations. It owns
// the mutex that serializes every entry point into its Socket (ReceivePacket,
// HandleTimeout, Send, Shutdown, Close), since association.Socket itself,
// like original_source, assumes single-threaded access.
type endpoint struct {
	label string
	cid   xid.ID
	mu    sync.Mutex
	sock  *association.Socket
	peer  *endpoint

	echo bool // whether this endpoint echoes received payloads back to the sender
}

func newEndpoint(label string, opts association.Options, echo bool) *endpoint {
	e := &endpoint{label: label, cid: xid.New(), echo: echo}
	e.sock = association.NewSocket(opts, e)
	return e
}

// ctx implements logger.Context so the demo's own log lines carry the same
// correlation id scheme the association package uses internally.
func (e *endpoint) ctx() logger.Context { return epCtx{e.cid} }

type epCtx struct{ id xid.ID }

func (c epCtx) Cid() string { return c.id.String() }

// --- callback.Sink: synchronous methods ---

func (e *endpoint) SendPacket(packet []byte) {
	link.transmit(e, e.peer, packet)
}

func (e *endpoint) CreateTimeout() timer.Timeout {
	factory := newRealtimeFactory(func(timeoutID uint64) {
		e.mu.Lock()
		defer e.mu.Unlock()
		e.sock.HandleTimeout(timeoutID)
	})
	return factory()
}

func (e *endpoint) TimeMillis() int64 { return time.Now().UnixMilli() }

func (e *endpoint) GetRandomInt(low, high uint32) uint32 {
	if high <= low {
		return low
	}
	return low + uint32(rand.Int63n(int64(high-low)))
}

// --- callback.Sink: deferred notifications ---

func (e *endpoint) OnMessageReceived(m callback.ReceivedMessage) {
	logger.T(e.ctx(), e.label, "received", len(m.Payload), "bytes on stream", m.StreamID)
	if e.echo {
		e.sock.Send(association.Message{StreamID: m.StreamID, PPID: m.PPID, Payload: m.Payload}, association.SendOptions{MaxRetransmissions: -1, LifetimeMs: -1})
	}
}

func (e *endpoint) OnError(kind callback.ErrorKind, message string) {
	logger.W(e.ctx(), e.label, "error", kind, message)
}

func (e *endpoint) OnAborted(kind callback.ErrorKind, message string) {
	logger.E(e.ctx(), e.label, "aborted", kind, message)
}

func (e *endpoint) OnConnected() {
	logger.T(e.ctx(), e.label, "connected")
}

func (e *endpoint) OnClosed() {
	logger.T(e.ctx(), e.label, "closed")
}

func (e *endpoint) OnConnectionRestarted() {
	logger.T(e.ctx(), e.label, "peer restarted the association")
}

func (e *endpoint) OnStreamsResetFailed(streamIDs []uint16, reason string) {
	logger.W(e.ctx(), e.label, "stream reset failed", streamIDs, reason)
}

func (e *endpoint) OnStreamsResetPerformed(streamIDs []uint16) {
	logger.T(e.ctx(), e.label, "streams reset", streamIDs)
}

func (e *endpoint) OnIncomingStreamsReset(streamIDs []uint16) {
	logger.T(e.ctx(), e.label, "peer reset incoming streams", streamIDs)
}

func (e *endpoint) OnSentMessageExpired(streamID uint16, ppid uint32, unsent bool) {
	logger.W(e.ctx(), e.label, "message expired on stream", streamID, fmt.Sprintf("unsent=%v", unsent))
}

func (e *endpoint) OnOutgoingMessageBufferEmpty() {}

func (e *endpoint) OnBufferedAmountLow(streamID uint16) {}

func (e *endpoint) OnTotalBufferedAmountLow() {}

func (e *endpoint) OnLifecycleMessageExpired(lifecycleID string, maybeDelivered bool) {
	logger.W(e.ctx(), e.label, "lifecycle message expired", lifecycleID, fmt.Sprintf("maybeDelivered=%v", maybeDelivered))
}

func (e *endpoint) OnLifecycleEnd(lifecycleID string) {}
