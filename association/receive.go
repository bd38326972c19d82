package association

import (
	"bytes"
	"errors"

	"github.com/ossrs/go-dcsctp/callback"
	"github.com/ossrs/go-dcsctp/cause"
	"github.com/ossrs/go-dcsctp/chunk"
	"github.com/ossrs/go-dcsctp/ppid"
	"github.com/ossrs/go-dcsctp/reassembly"
)

// ReceivePacket decodes raw and feeds every chunk it carries through the
// association, per spec.md §4.1/§4.8. It is the host's single entry point
// for inbound data.
func (s *Socket) ReceivePacket(raw []byte) {
	if s.closed {
		return
	}
	if s.observer != nil {
		s.observer.OnReceivedPacket(raw)
	}

	verify := !s.negotiatedZeroChecksum && !s.opts.DisableChecksumVerification
	p, err := chunk.DecodePacket(raw, verify)
	if err != nil {
		var uce *chunk.UnknownChunkError
		if errors.As(err, &uce) {
			s.respondUnknownChunk(uce)
		} else {
			s.fail(callback.ErrorKindParseFailed, "%v", err)
		}
		s.flush()
		return
	}

	if !s.verifyTag(p) {
		s.flush()
		return
	}

	for _, c := range p.Chunks {
		s.handleChunk(p, c)
	}
	s.drainDeferredResets()
	s.flush()
}

func (s *Socket) respondUnknownChunk(uce *chunk.UnknownChunkError) {
	s.sendControl(s.peerVerificationTag, &chunk.Error{
		Causes: []cause.Cause{&cause.UnrecognizedChunkType{Chunk: uce.Raw}},
	})
}

// verifyTag implements spec.md §4.1's verification-tag discipline: INIT
// always carries tag zero (no association exists yet to check against),
// COOKIE-ECHO is exempt while still Closed (the local tag is only learned by
// decrypting the cookie inside handleCookieEcho), ABORT/SHUTDOWN-COMPLETE
// may reflect the peer's tag, and everything else must match the locally
// issued tag exactly.
func (s *Socket) verifyTag(p *chunk.Packet) bool {
	for _, c := range p.Chunks {
		switch c.Type() {
		case chunk.TypeInit:
			return p.VerificationTag == 0
		case chunk.TypeCookieEcho:
			if s.state == StateClosed {
				return true
			}
		}
	}
	for _, c := range p.Chunks {
		if chunk.RequiresReflectedTag(c) && c.Flags()&1 != 0 {
			if s.haveInitialTSN && p.VerificationTag == s.peerVerificationTag {
				return true
			}
		}
	}
	return p.VerificationTag == s.localVerificationTag
}

func (s *Socket) handleChunk(p *chunk.Packet, c chunk.Chunk) {
	switch v := c.(type) {
	case *chunk.Init:
		s.handleInit(v.InitiateTag, v)
	case *chunk.InitAck:
		s.handleInitAck(v)
	case *chunk.CookieEcho:
		s.handleCookieEcho(p.VerificationTag, v)
	case *chunk.CookieAck:
		s.handleCookieAck()
	case *chunk.Data:
		s.handleClassicData(v)
	case *chunk.IData:
		s.handleIData(v)
	case *chunk.Sack:
		s.handleSack(v)
	case *chunk.Heartbeat:
		s.handleHeartbeat(v)
	case *chunk.HeartbeatAck:
		s.handleHeartbeatAck(v)
	case *chunk.Abort:
		s.handleAbort(v)
	case *chunk.Shutdown:
		s.handleShutdown(v)
	case *chunk.ShutdownAck:
		s.handleShutdownAck()
	case *chunk.ShutdownComplete:
		s.handleShutdownComplete()
	case *chunk.Error:
		s.handleError(v)
	case *chunk.ReConfig:
		s.handleReConfig(v)
	case *chunk.ForwardTSN:
		s.handleForwardTSN(v)
	case *chunk.IForwardTSN:
		s.handleIForwardTSN(v)
	}
}

// unwrapSSN extends a classic DATA chunk's wire-level 16-bit ordered SSN
// into the monotonically increasing 32-bit key reassembly.Queue's ordered
// delivery cursor expects, per the design note on Socket.ssnUnwrap.
func (s *Socket) unwrapSSN(streamID uint16, ssn uint16) uint32 {
	st, ok := s.ssnUnwrap[streamID]
	if !ok {
		st = &ssnState{}
		s.ssnUnwrap[streamID] = st
	}
	if !st.have {
		st.have = true
		st.lastSSN = ssn
		return uint32(ssn)
	}
	if ssn < st.lastSSN && st.lastSSN-ssn > 1<<15 {
		st.high += 1 << 16
	}
	st.lastSSN = ssn
	return st.high + uint32(ssn)
}

// classicFragInfo derives the reassembly Key and FSN for one ordered classic
// DATA fragment from Socket.fragBase: ordered messages key on the unwrapped
// SSN, which reassembly's ordered delivery cursor needs to be sequential and
// which (unlike an unordered run's base TSN) is carried on every fragment
// and known the moment it arrives, regardless of fragment order.
func (s *Socket) classicFragInfo(streamID uint16, ssn uint16, tsn uint32, isBeginning, isEnd bool) (key uint32, fsn uint32) {
	fk := fragKey{streamID: streamID, unordered: false}
	if isBeginning {
		s.fragBase[fk] = tsn
	}
	base, ok := s.fragBase[fk]
	if !ok {
		base = tsn
	}
	fsn = tsn - base
	if isEnd {
		delete(s.fragBase, fk)
	}
	return s.unwrapSSN(streamID, ssn), fsn
}

func (s *Socket) handleClassicData(v *chunk.Data) {
	if v.Unordered {
		s.handleUnorderedClassicData(v)
		return
	}
	key, fsn := s.classicFragInfo(v.StreamID, v.SSN, v.TSN, v.IsBeginning, v.IsEnd)
	s.ingestData(reassembly.InboundChunk{
		TSN:          v.TSN,
		StreamID:     v.StreamID,
		Key:          key,
		FSN:          fsn,
		PPID:         v.PPID,
		Payload:      v.Payload,
		Unordered:    false,
		IsBeginning:  v.IsBeginning,
		IsEnd:        v.IsEnd,
		ImmediateAck: v.ImmediateAck,
	})
}

// handleUnorderedClassicData keys an unordered classic-DATA fragment on its
// run's base TSN (classic DATA carries no wire FSN, and SSN is always zero
// for unordered messages, so base TSN is the only thing left to key on).
// That base is only known once the begin fragment is seen, but the network
// may reorder a non-beginning fragment ahead of it. Rather than guessing
// base=tsn for an early arrival (which would key it into a reassembly
// bucket the later begin fragment never joins), hold it in
// Socket.pendingUnordered until the run's TSN chain reaches it.
func (s *Socket) handleUnorderedClassicData(v *chunk.Data) {
	fk := fragKey{streamID: v.StreamID, unordered: true}

	if v.IsBeginning {
		base := v.TSN
		s.fragBase[fk] = base
		s.ingestUnorderedFragment(v.StreamID, base, v.TSN, v.PPID, v.Payload, true, v.IsEnd, v.ImmediateAck)
		if v.IsEnd {
			delete(s.fragBase, fk)
		}
		s.drainPendingUnordered(fk, v.TSN)
		return
	}

	if base, ok := s.fragBase[fk]; ok {
		s.ingestUnorderedFragment(v.StreamID, base, v.TSN, v.PPID, v.Payload, false, v.IsEnd, v.ImmediateAck)
		if v.IsEnd {
			delete(s.fragBase, fk)
		}
		s.drainPendingUnordered(fk, v.TSN)
		return
	}

	s.pendingUnordered[fk] = append(s.pendingUnordered[fk], pendingFragment{
		tsn:          v.TSN,
		payload:      v.Payload,
		isEnd:        v.IsEnd,
		immediateAck: v.ImmediateAck,
	})
}

// drainPendingUnordered consumes every fragment buffered under fk that
// chains contiguously off lastTSN, in TSN order, feeding each into
// reassembly as part of the run fragBase[fk] currently names. It stops at
// the first missing TSN (that fragment simply hasn't arrived yet) or once
// it consumes an end fragment (the run is closed; anything left buffered
// belongs to whatever run starts next and waits for that run's own begin).
// This is what keeps a non-beginning fragment that arrived before its own
// run's begin from ever being mistaken for a fragment of a different run
// sharing the same (stream, ordering) pair.
func (s *Socket) drainPendingUnordered(fk fragKey, lastTSN uint32) {
	for {
		base, ok := s.fragBase[fk]
		if !ok {
			return
		}
		pending := s.pendingUnordered[fk]
		idx := -1
		for i, f := range pending {
			if f.tsn == lastTSN+1 {
				idx = i
				break
			}
		}
		if idx < 0 {
			return
		}
		f := pending[idx]
		pending = append(pending[:idx], pending[idx+1:]...)
		if len(pending) == 0 {
			delete(s.pendingUnordered, fk)
		} else {
			s.pendingUnordered[fk] = pending
		}
		s.ingestUnorderedFragment(fk.streamID, base, f.tsn, 0, f.payload, false, f.isEnd, f.immediateAck)
		if f.isEnd {
			delete(s.fragBase, fk)
			return
		}
		lastTSN = f.tsn
	}
}

func (s *Socket) ingestUnorderedFragment(streamID uint16, base, tsn uint32, msgPPID uint32, payload []byte, isBeginning, isEnd bool, immediateAck bool) {
	s.ingestData(reassembly.InboundChunk{
		TSN:          tsn,
		StreamID:     streamID,
		Key:          base,
		FSN:          tsn - base,
		PPID:         msgPPID,
		Payload:      payload,
		Unordered:    true,
		IsBeginning:  isBeginning,
		IsEnd:        isEnd,
		ImmediateAck: immediateAck,
	})
}

func (s *Socket) handleIData(v *chunk.IData) {
	s.ingestData(reassembly.InboundChunk{
		TSN:          v.TSN,
		StreamID:     v.StreamID,
		Key:          v.MID,
		FSN:          v.FSN,
		PPID:         v.PPID,
		Payload:      v.Payload,
		Unordered:    v.Unordered,
		IsBeginning:  v.IsBeginning,
		IsEnd:        v.IsEnd,
		ImmediateAck: v.ImmediateAck,
	})
}

func (s *Socket) ingestData(ic reassembly.InboundChunk) {
	res := s.reasm.HandleData(ic)
	s.deliverMessages(res.Delivered)

	if s.reasm.OverBudget() {
		s.abort(callback.ErrorKindResourceExhaustion, "receive buffer exceeded", false)
		return
	}
	s.scheduleSack(res.Ack, res.DelayMs)
}

func (s *Socket) deliverMessages(msgs []reassembly.Message) {
	for _, m := range msgs {
		wirePPID := ppid.PPID(m.PPID)
		realPPID, isEmpty := ppid.FromEmpty(wirePPID)
		payload := m.Payload
		if isEmpty {
			payload = []byte{}
		} else {
			realPPID = wirePPID
		}
		s.messagesDelivered++
		s.cb.OnMessageReceived(callback.ReceivedMessage{
			StreamID:  m.StreamID,
			PPID:      uint32(realPPID),
			Payload:   payload,
			Unordered: m.Unordered,
		})
	}
}

func (s *Socket) handleSack(v *chunk.Sack) {
	var gapBlocks []txqueueGapAckBlock
	for _, g := range v.GapAckBlocks {
		gapBlocks = append(gapBlocks, txqueueGapAckBlock{Start: g.Start, End: g.End})
	}
	res := s.txQ.HandleSack(s.nowMs(), v.CumulativeTSNAck, v.AdvertisedRwnd, gapBlocks)
	if res.Stale {
		return
	}

	if res.HasRTTSample {
		s.reasm.SetRTOMs(s.txQ.RTOMs())
	}
	for _, a := range res.NewlyAbandoned {
		s.cb.OnSentMessageExpired(a.StreamID, a.PPID, false)
		if a.LifecycleID != "" {
			s.cb.OnLifecycleMessageExpired(a.LifecycleID, true)
			s.cb.OnLifecycleEnd(a.LifecycleID)
		}
	}

	s.txQ.ResetT3ExpiryCounter()
	if s.txQ.HasOutstandingData() {
		s.tRtx.Restart()
	} else {
		s.tRtx.Stop()
	}
	s.tryFinishShutdown()
}

func (s *Socket) handleHeartbeat(v *chunk.Heartbeat) {
	s.sendControl(s.peerVerificationTag, &chunk.HeartbeatAck{Info: v.Info})
}

func (s *Socket) handleHeartbeatAck(v *chunk.HeartbeatAck) {
	if !s.heartbeatOutstanding {
		return
	}
	nonce, sentAtMs, ok := decodeHeartbeatInfo(v.Info)
	if !ok || !bytes.Equal(nonce, s.heartbeatNonce) {
		return
	}
	s.heartbeatOutstanding = false
	s.heartbeatFailures = 0
	rtt := int(s.nowMs() - sentAtMs)
	if rtt < 0 {
		rtt = 0
	}
	s.txQ.ObserveRTTSample(rtt)
}

func causesToMessage(causes []cause.Cause) string {
	if len(causes) == 0 {
		return "no cause given"
	}
	return causes[0].Code().String()
}

func (s *Socket) handleAbort(v *chunk.Abort) {
	s.cb.OnAborted(callback.ErrorKindPeerReported, causesToMessage(v.Causes))
	s.teardown()
}

func (s *Socket) handleError(v *chunk.Error) {
	s.cb.OnError(callback.ErrorKindPeerReported, causesToMessage(v.Causes))
}

func (s *Socket) handleShutdown(v *chunk.Shutdown) {
	if s.state != StateEstablished && s.state != StateShutdownPending {
		return
	}
	s.peerInitiatedShutdown = true
	if s.state == StateEstablished {
		s.state = StateShutdownPending
	}
	s.tryFinishShutdown()
}

func (s *Socket) handleShutdownAck() {
	if s.state != StateShutdownSent {
		return
	}
	s.sendControl(s.peerVerificationTag, &chunk.ShutdownComplete{})
	s.finishClose()
}

func (s *Socket) handleShutdownComplete() {
	if s.state != StateShutdownAckSent {
		return
	}
	s.finishClose()
}

func (s *Socket) handleReConfig(v *chunk.ReConfig) {
	for _, p := range v.Parameters {
		switch pp := p.(type) {
		case *paramOutgoingSSNResetRequest:
			s.handleIncomingResetRequest(pp)
		case *paramReconfigResponse:
			s.handleResetResponse(pp)
		}
	}
}

func (s *Socket) handleForwardTSN(v *chunk.ForwardTSN) {
	var skips []reassembly.ForwardTSNSkip
	for _, st := range v.Streams {
		skips = append(skips, reassembly.ForwardTSNSkip{
			StreamID: st.StreamID,
			Key:      s.unwrapSSN(st.StreamID, st.SSN),
		})
	}
	s.applyForwardTSN(v.NewCumulativeTSN, skips)
}

func (s *Socket) handleIForwardTSN(v *chunk.IForwardTSN) {
	var skips []reassembly.ForwardTSNSkip
	for _, st := range v.Streams {
		skips = append(skips, reassembly.ForwardTSNSkip{
			StreamID:  st.StreamID,
			Unordered: st.Unordered,
			Key:       st.MID,
		})
	}
	s.applyForwardTSN(v.NewCumulativeTSN, skips)
}

func (s *Socket) applyForwardTSN(newCumTSN uint32, skips []reassembly.ForwardTSNSkip) {
	delivered := s.reasm.ApplyForwardTSN(newCumTSN, skips)
	s.deliverMessages(delivered)
	s.scheduleSack(reassembly.AckImmediate, 0)
}
