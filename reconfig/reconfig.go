// Package reconfig implements the stream reset engine from spec.md §4.7
// (RFC 6525): negotiating outgoing stream resets with the peer via
// RE-CONFIG, and applying incoming reset requests.
package reconfig

import "github.com/ossrs/go-dcsctp/wire"

// Result mirrors the RE-CONFIG "Re-configuration Response" parameter's
// result codes.
type Result int

const (
	ResultSuccess Result = iota
	ResultInProgress
	ResultDenied
	ResultError
)

// OutgoingState is the lifecycle of one batch of requested stream resets.
type OutgoingState int

const (
	OutgoingIdle OutgoingState = iota
	OutgoingPending                  // waiting for the send queue to drain partial messages
	OutgoingRequested                // RE-CONFIG sent, awaiting response
	OutgoingDone
)

// OutgoingRequest is one in-flight (or queued) batch of stream IDs to reset.
type OutgoingRequest struct {
	StreamIDs []uint16
	ReqSeqNum uint32
	LastTSN   uint32
	State     OutgoingState
}

// IncomingPending is an incoming reset request that arrived before the
// sender's last TSN has actually been received, and must be deferred.
type IncomingPending struct {
	StreamIDs []uint16
	ReqSeqNum uint32
	LastTSN   uint32
}

// Engine tracks outgoing and incoming stream reset negotiation. At most one
// outgoing request is in flight; further ResetStreams calls queue behind it.
type Engine struct {
	nextReqSeqNum uint32

	current *OutgoingRequest
	queued  []*OutgoingRequest

	incomingPending []IncomingPending

	// peerReqSeqNum tracks the highest incoming request sequence number
	// already applied, so a retransmitted RE-CONFIG is answered again
	// without being re-applied.
	peerReqSeqNum     uint32
	peerReqSeqNumSeen bool
}

// New creates an empty reset engine.
func New() *Engine {
	return &Engine{}
}

// RequestReset enqueues a batch of stream IDs for outgoing reset. The
// caller (association) is responsible for marking the streams Pending in
// the send queue; this just tracks the negotiation state.
func (e *Engine) RequestReset(streamIDs []uint16, lastTSN uint32) *OutgoingRequest {
	req := &OutgoingRequest{
		StreamIDs: append([]uint16(nil), streamIDs...),
		LastTSN:   lastTSN,
		State:     OutgoingPending,
	}
	if e.current == nil {
		e.current = req
	} else {
		e.queued = append(e.queued, req)
	}
	return req
}

// ReadyToSend reports whether the current outgoing request's streams have
// all finished their partial messages (association checks
// sendqueue.CanResetStreams) and a RE-CONFIG can now be issued.
func (e *Engine) ReadyToSend() *OutgoingRequest {
	if e.current == nil || e.current.State != OutgoingPending {
		return nil
	}
	return e.current
}

// CurrentRequested returns the in-flight outgoing request awaiting a
// response, or nil, for the t-reconfig timer's retransmission.
func (e *Engine) CurrentRequested() *OutgoingRequest {
	if e.current != nil && e.current.State == OutgoingRequested {
		return e.current
	}
	return nil
}

// MarkSent transitions the current request to Requested, stamping it with
// a fresh reconfig sequence number.
func (e *Engine) MarkSent(req *OutgoingRequest) uint32 {
	req.ReqSeqNum = e.nextReqSeqNum
	e.nextReqSeqNum++
	req.State = OutgoingRequested
	return req.ReqSeqNum
}

// HandleResponse applies the peer's Re-configuration Response to the
// current outgoing request. It returns the request (so the caller can fire
// OnStreamsReset/OnStreamsResetFailed), whether the request completed
// (successfully or not), and whether the next queued request should now be
// promoted to current.
func (e *Engine) HandleResponse(reqSeqNum uint32, result Result) (*OutgoingRequest, bool) {
	if e.current == nil || e.current.ReqSeqNum != reqSeqNum {
		return nil, false
	}
	switch result {
	case ResultInProgress:
		// Leave state as Requested; association retries after a timer.
		return e.current, false
	case ResultSuccess, ResultDenied, ResultError:
		done := e.current
		done.State = OutgoingDone
		e.promoteNext()
		return done, true
	default:
		return nil, false
	}
}

func (e *Engine) promoteNext() {
	if len(e.queued) == 0 {
		e.current = nil
		return
	}
	e.current = e.queued[0]
	e.queued = e.queued[1:]
}

// HandleIncomingRequest decides how to respond to an incoming outgoing-reset
// request. If the request's LastTSN has already been received (<=
// cumulativeReceivedTSN), it applies immediately and returns
// (ResultSuccess, true, true). A retransmitted request (reqSeqNum already
// seen) is re-answered Success without reapplying, returning
// (ResultSuccess, true, false). Otherwise it's deferred and
// (ResultInProgress, false, false) is returned; the caller must retry via
// DrainDeferred once the cumulative ack catches up.
func (e *Engine) HandleIncomingRequest(streamIDs []uint16, reqSeqNum uint32, lastTSN uint32, cumulativeReceivedTSN uint32) (result Result, respond bool, applied bool) {
	if e.peerReqSeqNumSeen && !wire.Serial32LessThan(e.peerReqSeqNum, reqSeqNum) {
		return ResultSuccess, true, false
	}
	if wire.Serial32LessOrEqual(lastTSN, cumulativeReceivedTSN) {
		e.peerReqSeqNum = reqSeqNum
		e.peerReqSeqNumSeen = true
		return ResultSuccess, true, true
	}
	e.incomingPending = append(e.incomingPending, IncomingPending{
		StreamIDs: append([]uint16(nil), streamIDs...),
		ReqSeqNum: reqSeqNum,
		LastTSN:   lastTSN,
	})
	return ResultInProgress, false, false
}

// DrainDeferred returns (and removes) any deferred incoming requests whose
// LastTSN has now been reached, given the current cumulative received TSN.
func (e *Engine) DrainDeferred(cumulativeReceivedTSN uint32) []IncomingPending {
	var ready []IncomingPending
	var still []IncomingPending
	for _, p := range e.incomingPending {
		if wire.Serial32LessOrEqual(p.LastTSN, cumulativeReceivedTSN) {
			ready = append(ready, p)
			e.peerReqSeqNum = p.ReqSeqNum
			e.peerReqSeqNumSeen = true
		} else {
			still = append(still, p)
		}
	}
	e.incomingPending = still
	return ready
}

// Reset clears all negotiation state, for association restart/close.
func (e *Engine) Reset() {
	*e = Engine{}
}
