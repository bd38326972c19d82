package association

import (
	"github.com/ossrs/go-dcsctp/chunk"
	"github.com/ossrs/go-dcsctp/param"
	"github.com/ossrs/go-dcsctp/reconfig"
	"github.com/ossrs/go-dcsctp/txqueue"
)

// paramOutgoingSSNResetRequest and paramReconfigResponse name the two
// RE-CONFIG parameter types handleReConfig switches on; txqueueGapAckBlock
// is the SACK gap-block type handleSack hands to the retransmission queue.
// Aliased locally so receive.go doesn't need to import param/txqueue just
// for a type switch.
type (
	paramOutgoingSSNResetRequest = param.OutgoingSSNResetRequest
	paramReconfigResponse        = param.ReconfigResponse
	txqueueGapAckBlock           = txqueue.GapAckBlock
)

// resultToParam and paramToResult translate between reconfig.Result (the
// engine's internal vocabulary) and param.ReconfigResult (the wire
// vocabulary), per spec.md §4.7.
func resultToParam(r reconfig.Result) param.ReconfigResult {
	switch r {
	case reconfig.ResultSuccess:
		return param.ReconfigResultSuccess
	case reconfig.ResultDenied:
		return param.ReconfigResultDenied
	case reconfig.ResultError:
		return param.ReconfigResultError
	default:
		return param.ReconfigResultInProgress
	}
}

func paramToResult(r param.ReconfigResult) reconfig.Result {
	switch r {
	case param.ReconfigResultSuccess:
		return reconfig.ResultSuccess
	case param.ReconfigResultDenied:
		return reconfig.ResultDenied
	case param.ReconfigResultError:
		return reconfig.ResultError
	default:
		return reconfig.ResultInProgress
	}
}

// tryFlushResetRequest issues the next outgoing RE-CONFIG once the streams
// it targets have drained their in-flight partial messages, and re-arms the
// reconfig-rtx timer. Only one outgoing request is ever in flight per
// reconfig.Engine's contract.
func (s *Socket) tryFlushResetRequest() {
	if req := s.reset.ReadyToSend(); req != nil {
		if !s.sendQ.CanResetStreams(req.StreamIDs) {
			return
		}
		reqSeqNum := s.reset.MarkSent(req)
		s.sendQ.CommitResetStreams(req.StreamIDs)
		s.sendControl(s.peerVerificationTag, &chunk.ReConfig{Parameters: []param.Parameter{
			&param.OutgoingSSNResetRequest{
				ReconfigRequestSeqNum: reqSeqNum,
				SenderLastAssignedTSN: req.LastTSN,
				StreamIDs:             req.StreamIDs,
			},
		}})
		s.tReconfig.Start()
		return
	}

	if req := s.reset.CurrentRequested(); req != nil && !s.tReconfig.IsRunning() {
		s.sendControl(s.peerVerificationTag, &chunk.ReConfig{Parameters: []param.Parameter{
			&param.OutgoingSSNResetRequest{
				ReconfigRequestSeqNum: req.ReqSeqNum,
				SenderLastAssignedTSN: req.LastTSN,
				StreamIDs:             req.StreamIDs,
			},
		}})
		s.tReconfig.Start()
	}
}

// onReconfigExpiry retransmits the outstanding RE-CONFIG request, per
// spec.md §4.7's "retry on no response" rule.
func (s *Socket) onReconfigExpiry() (int, bool) {
	req := s.reset.CurrentRequested()
	if req == nil {
		return 0, false
	}
	s.sendControl(s.peerVerificationTag, &chunk.ReConfig{Parameters: []param.Parameter{
		&param.OutgoingSSNResetRequest{
			ReconfigRequestSeqNum: req.ReqSeqNum,
			SenderLastAssignedTSN: req.LastTSN,
			StreamIDs:             req.StreamIDs,
		},
	}})
	return 0, false
}

// handleIncomingResetRequest is the receiving side of RFC 6525: the peer
// asked us to reset one or more of our incoming streams (its outgoing
// streams). Applying it means resetting reassembly state for each stream
// and answering with a Re-configuration Response.
func (s *Socket) handleIncomingResetRequest(pp *param.OutgoingSSNResetRequest) {
	result, respond, applied := s.reset.HandleIncomingRequest(pp.StreamIDs, pp.ReconfigRequestSeqNum, pp.SenderLastAssignedTSN, s.reasm.CumulativeTSN())
	if applied {
		for _, id := range pp.StreamIDs {
			s.reasm.ResetStream(id)
		}
		s.cb.OnIncomingStreamsReset(pp.StreamIDs)
	}
	if respond {
		s.sendControl(s.peerVerificationTag, &chunk.ReConfig{Parameters: []param.Parameter{
			&param.ReconfigResponse{ReconfigResponseSeqNum: pp.ReconfigRequestSeqNum, Result: resultToParam(result)},
		}})
	}
}

// handleResetResponse is the sending side: the peer answered our
// outstanding RE-CONFIG. InProgress means try again later (the reconfig-rtx
// timer is already running); any other result finishes the request and
// promotes the next queued one.
func (s *Socket) handleResetResponse(pp *param.ReconfigResponse) {
	result := paramToResult(pp.Result)
	req, done := s.reset.HandleResponse(pp.ReconfigResponseSeqNum, result)
	if req == nil || !done {
		return
	}
	s.tReconfig.Stop()
	if result == reconfig.ResultSuccess {
		for _, id := range req.StreamIDs {
			s.sendQ.ResetStream(id)
		}
		s.cb.OnStreamsResetPerformed(req.StreamIDs)
	} else {
		s.sendQ.RollbackResetStreams(req.StreamIDs)
		s.cb.OnStreamsResetFailed(req.StreamIDs, resultToParam(result).String())
	}
}

// drainDeferredResets applies any incoming reset request that arrived
// before its SenderLastAssignedTSN had been received, now that the
// cumulative received TSN may have caught up, per spec.md §4.7.
func (s *Socket) drainDeferredResets() {
	for _, p := range s.reset.DrainDeferred(s.reasm.CumulativeTSN()) {
		for _, id := range p.StreamIDs {
			s.reasm.ResetStream(id)
		}
		s.cb.OnIncomingStreamsReset(p.StreamIDs)
		s.sendControl(s.peerVerificationTag, &chunk.ReConfig{Parameters: []param.Parameter{
			&param.ReconfigResponse{ReconfigResponseSeqNum: p.ReqSeqNum, Result: param.ReconfigResultSuccess},
		}})
	}
}
