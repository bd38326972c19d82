package association

import (
	"github.com/ossrs/go-dcsctp/callback"
	"github.com/ossrs/go-dcsctp/chunk"
	"github.com/ossrs/go-dcsctp/ppid"
	"github.com/ossrs/go-dcsctp/sendqueue"
	"github.com/ossrs/go-dcsctp/txqueue"
)

// packetHeaderOverhead is the common header's fixed size (spec.md §4.1);
// pumpData budgets chunk bytes against MTU minus this so the Socket never
// builds a packet larger than what the host asked for.
const packetHeaderOverhead = 12

// Send enqueues msg for transmission, per spec.md §6. It never blocks: if
// the association hasn't connected yet the message simply waits in the
// send queue until the handshake completes (spec.md §7 "Send() when not
// yet connected enqueues, never errors"); a closed association fails
// immediately, and a full send buffer fails synchronously without
// aborting.
func (s *Socket) Send(msg Message, opts SendOptions) error {
	defer s.flush()

	if s.closed {
		return ErrNotConnected
	}
	if s.sendQ.IsFull() {
		return ErrSendBufferFull
	}

	s.sendQ.Add(s.nowMs(), sendqueue.Message{
		StreamID:           msg.StreamID,
		PPID:               ppid.PPID(msg.PPID),
		Payload:            msg.Payload,
		Unordered:          opts.Unordered,
		MaxRetransmissions: opts.MaxRetransmissions,
		LifetimeMs:         opts.LifetimeMs,
		LifecycleID:        opts.LifecycleID,
	})
	return nil
}

// Shutdown initiates the graceful three-way shutdown (spec.md §4.8). It is
// a no-op outside Established.
func (s *Socket) Shutdown() {
	defer s.flush()

	if s.state != StateEstablished {
		return
	}
	s.shutdownInitiated = true
	s.state = StateShutdownPending
	s.tryFinishShutdown()
}

// Close aborts the association immediately: no ABORT is sent, no further
// callbacks fire, per spec.md §7.
func (s *Socket) Close() {
	if s.closed {
		return
	}
	s.teardown()
	s.cb.OnClosed()
	s.flush()
}

// ResetStreams requests the peer reset the listed outgoing streams (RFC
// 6525, spec.md §4.7). Only meaningful once Established; a request made
// earlier or on an unknown stream id is silently accepted and flushed once
// the precondition it waits on (an empty partial message) is met.
func (s *Socket) ResetStreams(streamIDs []uint16) {
	defer s.flush()

	if s.state != StateEstablished {
		return
	}
	s.sendQ.PrepareResetStreams(streamIDs)
	s.reset.RequestReset(streamIDs, s.txQ.LastAssignedTSN())
}

// flush is called at the end of every public API method: it drains any
// queued control/data chunks produced while handling the event, then
// delivers every deferred notification.
func (s *Socket) flush() {
	if s.state == StateEstablished || s.state == StateShutdownPending {
		s.pumpData()
	}
	s.cb.TriggerDeferred()
}

// pumpData is the one place that turns queued application messages and
// control-plane decisions into packets on the wire: outgoing RE-CONFIG,
// (I-)FORWARD-TSN and DATA/I-DATA, in that priority order, per spec.md
// §4.5's "first retransmissions, then new data" rule and §4.7's "issue
// RE-CONFIG once the listed streams have drained their partial message".
func (s *Socket) pumpData() {
	s.tryFlushResetRequest()
	s.tryFlushForwardTSN()

	budget := s.opts.MTU - packetHeaderOverhead
	if budget <= 0 {
		return
	}

	// Cap iterations generously: each call drains whatever fits in one
	// packet's worth of budget, and GetChunksToSend never returns more than
	// that, so this loop only runs again while there's still data and
	// congestion window to send it with.
	for i := 0; i < 1<<16; i++ {
		outbound := s.txQ.GetChunksToSend(s.nowMs(), budget)
		if len(outbound) == 0 {
			break
		}
		chunks := make([]chunk.Chunk, 0, len(outbound))
		for _, oc := range outbound {
			if oc.Retransmission {
				s.bytesRetransmitted += uint64(len(oc.Payload))
			}
			chunks = append(chunks, outboundToWire(oc))
		}
		s.sendControl(s.peerVerificationTag, chunks...)
	}

	if s.txQ.HasOutstandingData() {
		if !s.tRtx.IsRunning() {
			s.tRtx.SetDurationMs(s.txQ.RTOMs())
			s.tRtx.Start()
		}
	} else {
		s.tRtx.Stop()
	}

	s.tryFlushForwardTSN()
	s.tryFinishShutdown()
}

func outboundToWire(oc txqueue.OutboundChunk) chunk.Chunk {
	if oc.IData {
		return &chunk.IData{
			TSN:         oc.TSN,
			StreamID:    oc.StreamID,
			MID:         oc.MID,
			FSN:         oc.FSN,
			PPID:        uint32(oc.PPID),
			Payload:     oc.Payload,
			Unordered:   oc.Unordered,
			IsBeginning: oc.IsBeginning,
			IsEnd:       oc.IsEnd,
		}
	}
	return &chunk.Data{
		TSN:         oc.TSN,
		StreamID:    oc.StreamID,
		SSN:         oc.SSN,
		PPID:        uint32(oc.PPID),
		Payload:     oc.Payload,
		Unordered:   oc.Unordered,
		IsBeginning: oc.IsBeginning,
		IsEnd:       oc.IsEnd,
	}
}

// tryFlushForwardTSN emits a (I-)FORWARD-TSN whenever the retransmission
// queue reports an abandoned entry is blocking the cumulative ack, per
// spec.md §4.5/§8.
func (s *Socket) tryFlushForwardTSN() {
	if !s.txQ.ShouldSendForwardTsn() {
		return
	}
	newCum, skips, ok := s.txQ.BuildForwardTSN()
	if !ok {
		return
	}

	if s.negotiatedInterleaving {
		streams := make([]chunk.StreamMID, 0, len(skips))
		for _, sk := range skips {
			streams = append(streams, chunk.StreamMID{StreamID: sk.StreamID, Unordered: sk.Unordered, MID: sk.MID})
		}
		s.sendControl(s.peerVerificationTag, &chunk.IForwardTSN{NewCumulativeTSN: newCum, Streams: streams})
		return
	}

	streams := make([]chunk.StreamSequence, 0, len(skips))
	for _, sk := range skips {
		streams = append(streams, chunk.StreamSequence{StreamID: sk.StreamID, SSN: sk.SSN})
	}
	s.sendControl(s.peerVerificationTag, &chunk.ForwardTSN{NewCumulativeTSN: newCum, Streams: streams})
}

// tryFinishShutdown drives the passive half of the graceful shutdown
// sequence: once every inflight chunk has been acked and the local side
// has initiated or echoed a shutdown, send SHUTDOWN (or SHUTDOWN-ACK if the
// peer shut down first) and arm T2.
func (s *Socket) tryFinishShutdown() {
	if s.state != StateShutdownPending {
		return
	}
	if s.sendQ.TotalBufferedAmount() != 0 || s.txQ.HasOutstandingData() {
		return
	}

	if s.peerInitiatedShutdown {
		s.sendControl(s.peerVerificationTag, &chunk.ShutdownAck{})
		s.state = StateShutdownAckSent
		s.tShutdown.Start()
		return
	}

	s.sendControl(s.peerVerificationTag, &chunk.Shutdown{CumulativeTSNAck: s.reasm.CumulativeTSN()})
	s.state = StateShutdownSent
	s.tShutdown.Start()
}

func (s *Socket) onT2ShutdownExpiry() (int, bool) {
	if s.tShutdown.ExpirationCount() > s.opts.MaxRetransmissions {
		s.fail(callback.ErrorKindTooManyRetries, "shutdown handshake retransmission limit exceeded")
		s.finishClose()
		return 0, false
	}
	switch s.state {
	case StateShutdownSent:
		s.sendControl(s.peerVerificationTag, &chunk.Shutdown{CumulativeTSNAck: s.reasm.CumulativeTSN()})
	case StateShutdownAckSent:
		s.sendControl(s.peerVerificationTag, &chunk.ShutdownAck{})
	}
	return 0, false
}

// finishClose completes the three-way shutdown on receipt of the final
// SHUTDOWN-ACK/SHUTDOWN-COMPLETE, or on T2 exhaustion.
func (s *Socket) finishClose() {
	s.teardown()
	s.cb.OnClosed()
}

// onT3RtxExpiry fires when an outstanding DATA chunk's retransmission timer
// expires: it halves cwnd, doubles RTO and moves every outstanding chunk
// back to ToBeRetransmitted, per spec.md §4.5's congestion-loss handling. A
// peer presumed unreachable (MaxT3Retries exceeded) aborts silently, per
// spec.md §7 "RTO or heartbeat exhaustion aborts with TooManyRetries; no
// ABORT is sent".
func (s *Socket) onT3RtxExpiry() (int, bool) {
	abandoned, tooMany := s.txQ.HandleT3Expiry(s.nowMs())
	for _, a := range abandoned {
		s.cb.OnSentMessageExpired(a.StreamID, a.PPID, false)
		if a.LifecycleID != "" {
			s.cb.OnLifecycleMessageExpired(a.LifecycleID, true)
			s.cb.OnLifecycleEnd(a.LifecycleID)
		}
	}
	if tooMany {
		s.fail(callback.ErrorKindTooManyRetries, "t3-rtx retransmission limit exceeded")
		s.finishClose()
		return 0, false
	}
	return s.txQ.RTOMs(), true
}
