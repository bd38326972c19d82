// Package txqueue implements the retransmission queue: TSN assignment,
// per-chunk inflight state tracking, SACK processing with fast retransmit,
// T3-RTX-driven loss recovery, slow-start/congestion-avoidance windowing,
// partial reliability, and Forward-TSN generation. Grounded on spec.md §4.5
// and original_source/net/dcsctp/tx/retransmission_queue_test.cc.
package txqueue

import (
	"github.com/ossrs/go-dcsctp/ppid"
	"github.com/ossrs/go-dcsctp/rto"
	"github.com/ossrs/go-dcsctp/sendqueue"
	"github.com/ossrs/go-dcsctp/wire"
)

// State is one inflight chunk's position in the state machine described in
// spec.md §4.5.
type State int

const (
	InFlight State = iota
	Acked
	Nacked
	ToBeRetransmitted
	Abandoned
)

func (s State) String() string {
	switch s {
	case InFlight:
		return "InFlight"
	case Acked:
		return "Acked"
	case Nacked:
		return "Nacked"
	case ToBeRetransmitted:
		return "ToBeRetransmitted"
	case Abandoned:
		return "Abandoned"
	default:
		return "Unknown"
	}
}

// nackThreshold is the number of distinct SACKs that must nack the same TSN
// before fast retransmit fires, per spec.md §4.5.
const nackThreshold = 3

// OutboundChunk is a TSN-stamped fragment ready to be serialized onto the
// wire, as either a classic DATA chunk or (if IData is set) an I-DATA
// chunk.
type OutboundChunk struct {
	TSN                uint32
	StreamID           uint16
	Unordered          bool
	SSN                uint16
	MID                uint32
	FSN                uint32
	PPID               ppid.PPID
	Payload            []byte
	IsBeginning        bool
	IsEnd              bool
	IData              bool
	Retransmission     bool
}

// AbandonedMessage identifies one message's coordinates for a Forward-TSN
// skip list entry, and carries its LifecycleID for the OnLifecycleMessage
// Expired callback the association fires.
type AbandonedMessage struct {
	StreamID    uint16
	Unordered   bool
	SSN         uint16
	MID         uint32
	PPID        uint32
	LifecycleID string
}

type entry struct {
	tsn         uint32
	frag        sendqueue.Fragment
	iData       bool
	state       State
	sentAtMs    int64
	firstSentMs int64
	txCount     int
	nackCount   int
	abandonedNotified bool
}

// Options configures a Queue.
type Options struct {
	MTU                      int
	InitialCwndMultiplier    int // cwnd0 = InitialCwndMultiplier * MTU; default 4 if 0.
	EnablePartialReliability bool
	MaxT3Retries             int // consecutive T3-RTX expiries before "too many retries"; 0 = no cap.
	RTOOptions               rto.Options
}

// Queue is the per-association retransmission queue.
type Queue struct {
	opts Options

	nextTSN          uint32
	cumulativeTSNAck uint32
	hasCumulativeAck bool

	entries []*entry // ascending TSN order; TSNs assigned monotonically so
	// this is naturally sorted, retransmission never changes a TSN.

	outstandingBytes int
	cwnd             int
	ssthresh         int
	peerRwnd         uint32

	rto                    *rto.Estimator
	consecutiveT3Expiries  int

	interleaved bool
	sendQueue   *sendqueue.Queue
}

// New builds an empty Queue pulling fresh fragments from sq.
func New(opts Options, sq *sendqueue.Queue) *Queue {
	mult := opts.InitialCwndMultiplier
	if mult <= 0 {
		mult = 4
	}
	q := &Queue{
		opts:      opts,
		sendQueue: sq,
		cwnd:      mult * opts.MTU,
		ssthresh:  1 << 30,
		peerRwnd:  1 << 30,
		rto:       rto.New(opts.RTOOptions),
	}
	return q
}

// SetInterleaved toggles whether newly transmitted fragments are stamped
// for I-DATA (MID/FSN) or classic DATA (SSN) wire encoding, mirroring the
// negotiated capability the association learns at handshake completion.
func (q *Queue) SetInterleaved(v bool) { q.interleaved = v }

// SetInitialTSN seeds the TSN counter from the association's locally
// announced (or peer-announced, for the receive side's SACK bookkeeping is
// separate) initial TSN, per spec.md §6 end-to-end scenario 1.
func (q *Queue) SetInitialTSN(tsn uint32) {
	q.nextTSN = tsn
	q.cumulativeTSNAck = tsn - 1
	q.hasCumulativeAck = true
}

// OutstandingBytes is the sum of payload bytes currently InFlight or
// Nacked (not yet Acked or Abandoned).
func (q *Queue) OutstandingBytes() int { return q.outstandingBytes }

// HasOutstandingData reports whether the T3-RTX timer should be running.
func (q *Queue) HasOutstandingData() bool { return q.outstandingBytes > 0 }

// Cwnd returns the current congestion window, in bytes.
func (q *Queue) Cwnd() int { return q.cwnd }

// RTOMs returns the current retransmission timeout estimate.
func (q *Queue) RTOMs() int { return q.rto.RTOMs() }

// SRTTMs returns the current smoothed RTT estimate, used to schedule the
// next heartbeat when heartbeat_interval_include_rtt is enabled.
func (q *Queue) SRTTMs() int { return q.rto.SRTTMs() }

// ObserveRTTSample folds an RTT sample measured outside of SACK processing
// (a HEARTBEAT-ACK round trip) into the shared RTO estimator.
func (q *Queue) ObserveRTTSample(rttMs int) { q.rto.Observe(rttMs) }

// LastAssignedTSN returns the most recently assigned outgoing TSN, used to
// stamp the Sender's Last Assigned TSN field of an outgoing stream-reset
// request at the moment it is actually sent.
func (q *Queue) LastAssignedTSN() uint32 { return q.nextTSN - 1 }

// NextTSN returns the TSN the next freshly-sent chunk will be stamped with,
// part of the handover snapshot in spec.md §6.
func (q *Queue) NextTSN() uint32 { return q.nextTSN }

// Empty reports whether no chunk is currently tracked (InFlight, Nacked,
// ToBeRetransmitted or Abandoned-but-unpruned), the precondition spec.md §6
// places on taking a handover snapshot.
func (q *Queue) Empty() bool { return len(q.entries) == 0 }

func chunkSize(f sendqueue.Fragment) int {
	n := len(f.Payload)
	if n == 0 {
		return 1
	}
	return n
}

// GetChunksToSend drains ToBeRetransmitted entries first (in TSN order),
// then pulls new fragments from the send queue, up to maxPacketBytes and
// the available congestion window, per spec.md §4.5.
func (q *Queue) GetChunksToSend(nowMs int64, maxPacketBytes int) []OutboundChunk {
	var out []OutboundChunk
	budget := maxPacketBytes
	window := q.availableWindow()

	for _, e := range q.entries {
		if e.state != ToBeRetransmitted {
			continue
		}
		size := chunkSize(e.frag)
		if size > budget || size > window {
			break
		}
		e.state = InFlight
		e.sentAtMs = nowMs
		e.txCount++
		q.outstandingBytes += size
		budget -= size
		window -= size
		out = append(out, q.toOutbound(e, true))
	}

	for budget > 0 && window > 0 {
		size := budget
		if size > q.opts.MTU {
			size = q.opts.MTU
		}
		if size > window {
			size = window
		}
		if size <= 0 {
			break
		}
		frag, ok := q.sendQueue.Produce(nowMs, size)
		if !ok {
			break
		}
		tsn := q.nextTSN
		q.nextTSN++
		e := &entry{tsn: tsn, frag: frag, iData: q.interleaved, state: InFlight, sentAtMs: nowMs, firstSentMs: nowMs, txCount: 1}
		q.entries = append(q.entries, e)
		n := chunkSize(frag)
		q.outstandingBytes += n
		budget -= n
		window -= n
		out = append(out, q.toOutbound(e, false))
	}
	return out
}

func (q *Queue) availableWindow() int {
	w := q.cwnd - q.outstandingBytes
	if pw := int(q.peerRwnd) - q.outstandingBytes; pw < w {
		w = pw
	}
	if w < 0 {
		w = 0
	}
	return w
}

func (q *Queue) toOutbound(e *entry, retransmission bool) OutboundChunk {
	return OutboundChunk{
		TSN:            e.tsn,
		StreamID:       e.frag.StreamID,
		Unordered:      e.frag.Unordered,
		SSN:            e.frag.SSN,
		MID:            e.frag.MID,
		FSN:            e.frag.FSN,
		PPID:           e.frag.PPID,
		Payload:        e.frag.Payload,
		IsBeginning:    e.frag.IsBeginning,
		IsEnd:          e.frag.IsEnd,
		IData:          e.iData,
		Retransmission: retransmission,
	}
}

// SackResult reports what processing a SACK changed, so the association
// can react (fire lifecycle callbacks, recompute timers, abort on
// ResourceExhaustion etc.).
type SackResult struct {
	Stale          bool
	RTTSampleMs    int
	HasRTTSample   bool
	NewlyAbandoned []AbandonedMessage
	CongestionLoss bool
}

// HandleSack processes an inbound SACK: rejects stale ones, promotes
// entries to Acked or Nacked, fires fast retransmit after three nacking
// SACKs, and measures RTT from the first newly-acked, once-transmitted
// entry.
func (q *Queue) HandleSack(nowMs int64, cumulativeTSNAck uint32, advertisedRwnd uint32, gapAckBlocks []GapAckBlock) SackResult {
	var res SackResult
	if q.hasCumulativeAck && wire.Serial32LessThan(cumulativeTSNAck, q.cumulativeTSNAck) {
		res.Stale = true
		return res
	}
	q.peerRwnd = advertisedRwnd
	q.cumulativeTSNAck = cumulativeTSNAck
	q.hasCumulativeAck = true

	highestGapEnd, haveGapBlocks := highestGapEndTSN(cumulativeTSNAck, gapAckBlocks)

	ackedAnyNewLoss := false
	sawRTTSample := false
	ackedNewBytes := 0

	for _, e := range q.entries {
		if e.state == Acked || e.state == Abandoned {
			continue
		}
		if wire.Serial32LessOrEqual(e.tsn, cumulativeTSNAck) {
			ackedNewBytes += q.ackEntry(e)
			if !sawRTTSample && e.txCount == 1 {
				sawRTTSample = true
				res.HasRTTSample = true
				res.RTTSampleMs = int(nowMs - e.firstSentMs)
				q.rto.Observe(res.RTTSampleMs)
			}
			continue
		}
		if inGap(e.tsn, cumulativeTSNAck, gapAckBlocks) {
			ackedNewBytes += q.ackEntry(e)
			if !sawRTTSample && e.txCount == 1 {
				sawRTTSample = true
				res.HasRTTSample = true
				res.RTTSampleMs = int(nowMs - e.firstSentMs)
				q.rto.Observe(res.RTTSampleMs)
			}
			continue
		}
		// A hole: TSN is past cumulative ack, not covered by a gap block,
		// but still below the highest gap-ack block's end, per spec.md §4.5
		// step 3 and RFC 4960 §7.2.4 ("missing report" only applies inside
		// the range the peer has actually reported gaps over). A TSN above
		// the last gap block is simply not yet acknowledged or reported,
		// not missing.
		if !haveGapBlocks || wire.Serial32LessThan(highestGapEnd, e.tsn) {
			continue
		}
		if e.state == InFlight {
			e.state = Nacked
			e.nackCount++
		} else if e.state == Nacked {
			e.nackCount++
		}
		if e.nackCount >= nackThreshold && e.state != ToBeRetransmitted {
			if q.abandonIfNeeded(e, nowMs, &res) {
				continue
			}
			e.state = ToBeRetransmitted
			ackedAnyNewLoss = true
		}
	}

	q.pruneAcked()
	if ackedAnyNewLoss {
		q.onLoss()
		res.CongestionLoss = true
	} else if ackedNewBytes > 0 {
		q.onAckProgress()
	}
	return res
}

// ackEntry marks e Acked, returning the number of bytes this newly
// acknowledged (0 if e was already Acked, e.g. a retransmitted SACK
// re-covering the same range).
func (q *Queue) ackEntry(e *entry) int {
	if e.state == Acked {
		return 0
	}
	size := chunkSize(e.frag)
	q.outstandingBytes -= size
	if q.outstandingBytes < 0 {
		q.outstandingBytes = 0
	}
	e.state = Acked
	return size
}

// GapAckBlock mirrors chunk.GapAckBlock without importing chunk, to keep
// txqueue decoupled from the wire codec (it only needs the two offsets).
type GapAckBlock struct {
	Start uint16
	End   uint16
}

// highestGapEndTSN returns the TSN-space end of the gap-ack block with the
// largest End offset, and whether any block was present at all. Per RFC
// 4960 §7.2.4, only TSNs at or below this point are "missing reports";
// gap-ack blocks are reported in ascending, non-overlapping order, but this
// takes the max defensively rather than assuming the last block is largest.
func highestGapEndTSN(cumAck uint32, blocks []GapAckBlock) (uint32, bool) {
	if len(blocks) == 0 {
		return 0, false
	}
	highest := cumAck + uint32(blocks[0].End)
	for _, b := range blocks[1:] {
		hi := cumAck + uint32(b.End)
		if wire.Serial32LessThan(highest, hi) {
			highest = hi
		}
	}
	return highest, true
}

func inGap(tsn uint32, cumAck uint32, blocks []GapAckBlock) bool {
	for _, b := range blocks {
		lo := cumAck + uint32(b.Start)
		hi := cumAck + uint32(b.End)
		if wire.Serial32LessOrEqual(lo, tsn) && wire.Serial32LessOrEqual(tsn, hi) {
			return true
		}
	}
	return false
}

// onLoss applies the congestion-control reaction to a detected loss: halve
// cwnd (floor 2*MTU) and set ssthresh accordingly, per spec.md §4.5.
func (q *Queue) onLoss() {
	q.ssthresh = q.cwnd / 2
	if min := 2 * q.opts.MTU; q.ssthresh < min {
		q.ssthresh = min
	}
	q.cwnd = q.opts.MTU
}

// onAckProgress grows cwnd: slow-start doubles per RTT (approximated here
// as "per SACK", a close enough proxy absent RTT-round bookkeeping) until
// ssthresh, then additive increase by one MTU per SACK.
func (q *Queue) onAckProgress() {
	if q.cwnd < q.ssthresh {
		q.cwnd += q.opts.MTU
	} else {
		q.cwnd += (q.opts.MTU*q.opts.MTU + q.cwnd - 1) / q.cwnd
	}
}

// abandonIfNeeded moves e to Abandoned if its retransmission budget is
// exhausted or its message-level deadline has passed, recording it in
// res.NewlyAbandoned. Returns true if e was abandoned.
func (q *Queue) abandonIfNeeded(e *entry, nowMs int64, res *SackResult) bool {
	if !q.opts.EnablePartialReliability {
		return false
	}
	maxRT := e.frag.MaxRetransmissions
	expired := e.frag.ExpiresAtMs != 0 && nowMs >= e.frag.ExpiresAtMs
	exceeded := maxRT >= 0 && e.txCount > maxRT
	if !expired && !exceeded {
		return false
	}
	q.markAbandoned(e, res)
	return true
}

func (q *Queue) markAbandoned(e *entry, res *SackResult) {
	if e.state == Abandoned {
		return
	}
	size := chunkSize(e.frag)
	q.outstandingBytes -= size
	if q.outstandingBytes < 0 {
		q.outstandingBytes = 0
	}
	e.state = Abandoned
	if !e.abandonedNotified {
		e.abandonedNotified = true
		res.NewlyAbandoned = append(res.NewlyAbandoned, AbandonedMessage{
			StreamID:    e.frag.StreamID,
			Unordered:   e.frag.Unordered,
			SSN:         e.frag.SSN,
			MID:         e.frag.MID,
			PPID:        uint32(e.frag.PPID),
			LifecycleID: e.frag.LifecycleID,
		})
	}
}

// pruneAcked drops Acked/Abandoned entries that sit at or behind the
// cumulative ack point, freeing their memory (spec.md §4.5 "Abandoned
// entries are kept until the cumulative ack advances past them").
func (q *Queue) pruneAcked() {
	i := 0
	for i < len(q.entries) && wire.Serial32LessOrEqual(q.entries[i].tsn, q.cumulativeTSNAck) {
		i++
	}
	if i > 0 {
		q.entries = q.entries[i:]
	}
}

// HandleT3Expiry reacts to the T3-RTX timer firing: every InFlight/Nacked
// entry moves to ToBeRetransmitted (unless abandon conditions now apply),
// cwnd is halved, and the RTO is doubled by the caller's timer backoff.
// Returns true once MaxT3Retries consecutive expiries have occurred with no
// intervening ack progress, per spec.md §4.5 ("too many retries" abort).
func (q *Queue) HandleT3Expiry(nowMs int64) ([]AbandonedMessage, bool) {
	var res SackResult
	for _, e := range q.entries {
		if e.state != InFlight && e.state != Nacked {
			continue
		}
		if q.abandonIfNeeded(e, nowMs, &res) {
			continue
		}
		e.state = ToBeRetransmitted
	}
	q.onLoss()
	q.rto.Backoff()
	q.consecutiveT3Expiries++
	tooMany := q.opts.MaxT3Retries > 0 && q.consecutiveT3Expiries > q.opts.MaxT3Retries
	return res.NewlyAbandoned, tooMany
}

// ResetT3ExpiryCounter is called whenever new data is acked, per spec.md
// §4.5's T3-RTX restart-on-ack rule.
func (q *Queue) ResetT3ExpiryCounter() { q.consecutiveT3Expiries = 0 }

// ShouldSendForwardTsn reports whether an Abandoned entry sits at or
// adjacent to the cumulative ack point, i.e. advancing the cumulative ack
// past it (and any contiguous Acked/Abandoned run after it) would free
// blocked progress, per spec.md §4.5 / §8.
func (q *Queue) ShouldSendForwardTsn() bool {
	_, ok := q.forwardTSNTarget()
	return ok
}

// forwardTSNTarget scans from the cumulative ack point forward through a
// contiguous run of Acked/Abandoned entries, returning the new cumulative
// TSN to advance to and whether any Abandoned entry was in that run.
func (q *Queue) forwardTSNTarget() (uint32, bool) {
	target := q.cumulativeTSNAck
	sawAbandoned := false
	for _, e := range q.entries {
		if !wire.Serial32LessThan(target, e.tsn) {
			continue
		}
		if e.tsn != target+1 {
			break
		}
		if e.state == Acked {
			target = e.tsn
			continue
		}
		if e.state == Abandoned {
			target = e.tsn
			sawAbandoned = true
			continue
		}
		break
	}
	if sawAbandoned {
		return target, true
	}
	return 0, false
}

// ForwardTSNSkip is one (stream, ordering coordinate) entry for the
// Forward-TSN chunk body.
type ForwardTSNSkip struct {
	StreamID  uint16
	Unordered bool
	SSN       uint16
	MID       uint32
}

// BuildForwardTSN returns the new cumulative TSN to advertise and the
// deduplicated set of message coordinates to skip, or ok=false if
// ShouldSendForwardTsn is false.
func (q *Queue) BuildForwardTSN() (newCumulativeTSN uint32, skips []ForwardTSNSkip, ok bool) {
	target, has := q.forwardTSNTarget()
	if !has {
		return 0, nil, false
	}
	seen := make(map[string]bool)
	for _, e := range q.entries {
		if !wire.Serial32LessOrEqual(e.tsn, target) {
			break
		}
		if e.state != Abandoned {
			continue
		}
		var key string
		if e.frag.Unordered {
			key = "u:" + itoa(uint64(e.frag.StreamID)) + ":" + itoa(uint64(e.frag.MID))
		} else {
			key = "o:" + itoa(uint64(e.frag.StreamID)) + ":" + itoa(uint64(e.frag.SSN))
		}
		if seen[key] {
			continue
		}
		seen[key] = true
		skips = append(skips, ForwardTSNSkip{
			StreamID:  e.frag.StreamID,
			Unordered: e.frag.Unordered,
			SSN:       e.frag.SSN,
			MID:       e.frag.MID,
		})
	}
	return target, skips, true
}

func itoa(v uint64) string {
	if v == 0 {
		return "0"
	}
	var buf [20]byte
	i := len(buf)
	for v > 0 {
		i--
		buf[i] = byte('0' + v%10)
		v /= 10
	}
	return string(buf[i:])
}

// Reset clears all inflight state, used on association restart.
func (q *Queue) Reset() {
	q.entries = nil
	q.outstandingBytes = 0
	q.cwnd = 4 * q.opts.MTU
	q.ssthresh = 1 << 30
	q.consecutiveT3Expiries = 0
	q.hasCumulativeAck = false
}
