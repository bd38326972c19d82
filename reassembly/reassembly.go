// Package reassembly collects inbound DATA/I-DATA fragments into complete
// messages, tracks the cumulative received TSN and the out-of-order set
// needed to build SACK gap-ack blocks, and applies Forward-TSN skips. It is
// the receive-side counterpart of sendqueue/txqueue: those stamp and
// retransmit outgoing fragments, this one reassembles and acks incoming
// ones.
//
// Ordering keys (SSN for classic DATA, MID for I-DATA) are both carried as a
// plain uint32 "Key" field on InboundChunk. The association layer owns the
// translation from the wire's 16-bit SSN into this 32-bit space; this
// package never distinguishes the two, the same way txqueue decouples
// itself from chunk.GapAckBlock.
package reassembly

import (
	"sort"

	"github.com/ossrs/go-dcsctp/wire"
)

// AckDecision tells the caller what kind of SACK, if any, a HandleData call
// requires, per spec.md §4.6.
type AckDecision int

const (
	AckNone AckDecision = iota
	AckDelayed
	AckImmediate
)

// Message is a fully reassembled, ready-to-deliver payload.
type Message struct {
	StreamID  uint16
	PPID      uint32
	Payload   []byte
	Unordered bool
}

// InboundChunk is one fragment of a message, already decoded off the wire by
// the association layer.
type InboundChunk struct {
	TSN          uint32
	StreamID     uint16
	Key          uint32 // SSN (classic) or MID (interleaved)
	FSN          uint32 // fragment index within the message, 0 on the first
	PPID         uint32 // only meaningful when IsBeginning
	Payload      []byte
	Unordered    bool
	IsBeginning  bool
	IsEnd        bool
	ImmediateAck bool
}

// GapAckBlock is the reassembly-side analogue of txqueue.GapAckBlock: an
// offset range, relative to the cumulative TSN, of TSNs that have been
// received out of order.
type GapAckBlock struct {
	Start uint16
	End   uint16
}

// ForwardTSNSkip names one message a Forward-TSN chunk instructs the
// receiver to drop partial reassembly state for.
type ForwardTSNSkip struct {
	StreamID  uint16
	Unordered bool
	Key       uint32
}

// HandleResult reports what a single HandleData call produced.
type HandleResult struct {
	Delivered []Message
	Duplicate bool
	Discarded bool // TSN at or behind the cumulative ack point
	Ack       AckDecision
	DelayMs   int // meaningful only when Ack == AckDelayed
}

// Options configures a Queue.
type Options struct {
	// MaxBufferedBytes bounds the total size of buffered (not yet
	// delivered) fragment payloads. Zero means unbounded.
	MaxBufferedBytes int
	// DelayedAckMaxMs is the ceiling on the delayed-ack timer, per
	// spec.md §4.6 (default 200ms).
	DelayedAckMaxMs int
}

type partialMessage struct {
	fragments   map[uint32][]byte
	beginSeen   bool
	endSeen     bool
	endFSN      uint32
	ppid        uint32
	unordered   bool
	streamID    uint16
	bytes       int
	highestTSN  uint32
}

func (p *partialMessage) complete() bool {
	if !p.beginSeen || !p.endSeen {
		return false
	}
	for i := uint32(0); i <= p.endFSN; i++ {
		if _, ok := p.fragments[i]; !ok {
			return false
		}
	}
	return true
}

func (p *partialMessage) assemble() []byte {
	out := make([]byte, 0, p.bytes)
	for i := uint32(0); i <= p.endFSN; i++ {
		out = append(out, p.fragments[i]...)
	}
	return out
}

type incomingStream struct {
	nextKey   uint32
	ordered   map[uint32]*partialMessage
	unordered map[uint32]*partialMessage
}

func newIncomingStream() *incomingStream {
	return &incomingStream{
		ordered:   make(map[uint32]*partialMessage),
		unordered: make(map[uint32]*partialMessage),
	}
}

// Queue reassembles inbound fragments per spec.md §4.6.
type Queue struct {
	opts Options

	initialized   bool
	cumulativeTSN uint32          // highest TSN such that all TSNs <= it have arrived
	received      map[uint32]bool // out-of-order TSNs, strictly > cumulativeTSN
	duplicates    []uint32

	streams map[uint16]*incomingStream

	bufferedBytes int
	rtoMs         int

	sinceImmediateAck int // counts in-order DATA chunks since the last ack, for "ack every other packet"
}

// New creates an empty reassembly queue.
func New(opts Options) *Queue {
	if opts.DelayedAckMaxMs == 0 {
		opts.DelayedAckMaxMs = 200
	}
	return &Queue{
		opts:     opts,
		received: make(map[uint32]bool),
		streams:  make(map[uint16]*incomingStream),
		rtoMs:    500,
	}
}

// SetInitialTSN primes the cumulative ack point from the peer's announced
// initial TSN (the handshake's INIT/INIT-ACK Initiate Tag companion field).
func (q *Queue) SetInitialTSN(tsn uint32) {
	q.cumulativeTSN = tsn - 1
	q.initialized = true
}

// SetRTOMs feeds the current smoothed RTO, used to cap the delayed-ack
// timer at min(rto/2, DelayedAckMaxMs).
func (q *Queue) SetRTOMs(rtoMs int) { q.rtoMs = rtoMs }

func (q *Queue) getOrCreateStream(id uint16) *incomingStream {
	s, ok := q.streams[id]
	if !ok {
		s = newIncomingStream()
		q.streams[id] = s
	}
	return s
}

// CumulativeTSN returns the highest TSN such that every TSN up to and
// including it has been received.
func (q *Queue) CumulativeTSN() uint32 { return q.cumulativeTSN }

// BufferedBytes returns the total size of payload bytes currently held in
// incomplete partial messages.
func (q *Queue) BufferedBytes() int { return q.bufferedBytes }

// AdvertisedRwnd returns the receive window to advertise in the next SACK:
// the configured maximum minus what's currently buffered, clamped at zero.
func (q *Queue) AdvertisedRwnd() uint32 {
	if q.opts.MaxBufferedBytes == 0 {
		return 1 << 30
	}
	free := q.opts.MaxBufferedBytes - q.bufferedBytes
	if free < 0 {
		return 0
	}
	return uint32(free)
}

// OverBudget reports whether the memory bound has been exceeded; the
// association should abort with ResourceExhaustion when this is true.
func (q *Queue) OverBudget() bool {
	return q.opts.MaxBufferedBytes > 0 && q.bufferedBytes > q.opts.MaxBufferedBytes
}

// HandleData ingests one inbound fragment.
func (q *Queue) HandleData(c InboundChunk) HandleResult {
	if !q.initialized {
		q.cumulativeTSN = c.TSN - 1
		q.initialized = true
	}

	if wire.Serial32LessOrEqual(c.TSN, q.cumulativeTSN) {
		return HandleResult{Discarded: true, Ack: AckImmediate}
	}

	if q.received[c.TSN] {
		q.duplicates = append(q.duplicates, c.TSN)
		return HandleResult{Duplicate: true, Ack: AckImmediate}
	}

	hadGapBefore := len(q.received) > 0
	q.received[c.TSN] = true

	for q.received[q.cumulativeTSN+1] {
		delete(q.received, q.cumulativeTSN+1)
		q.cumulativeTSN++
	}

	s := q.getOrCreateStream(c.StreamID)
	bucket := s.ordered
	if c.Unordered {
		bucket = s.unordered
	}
	pm, ok := bucket[c.Key]
	if !ok {
		pm = &partialMessage{
			fragments: make(map[uint32][]byte),
			unordered: c.Unordered,
			streamID:  c.StreamID,
		}
		bucket[c.Key] = pm
	}
	if _, dup := pm.fragments[c.FSN]; !dup {
		pm.fragments[c.FSN] = c.Payload
		pm.bytes += len(c.Payload)
		q.bufferedBytes += len(c.Payload)
	}
	if c.IsBeginning {
		pm.beginSeen = true
		pm.ppid = c.PPID
	}
	if c.IsEnd {
		pm.endSeen = true
		pm.endFSN = c.FSN
	}
	if c.TSN > pm.highestTSN {
		pm.highestTSN = c.TSN
	}

	var delivered []Message
	if c.Unordered {
		if pm.complete() {
			delivered = append(delivered, q.deliver(pm))
			delete(bucket, c.Key)
		}
	} else {
		delivered = q.drainOrdered(s)
	}

	res := HandleResult{Delivered: delivered}

	hasGap := hadGapBefore || len(q.received) > 0
	switch {
	case hasGap:
		res.Ack = AckImmediate
	case c.ImmediateAck:
		res.Ack = AckImmediate
	default:
		q.sinceImmediateAck++
		if q.sinceImmediateAck >= 2 {
			q.sinceImmediateAck = 0
			res.Ack = AckImmediate
		} else {
			res.Ack = AckDelayed
			res.DelayMs = q.delayedAckMs()
		}
	}
	return res
}

func (q *Queue) delayedAckMs() int {
	cap := q.opts.DelayedAckMaxMs
	half := q.rtoMs / 2
	if half < cap {
		return half
	}
	return cap
}

func (q *Queue) drainOrdered(s *incomingStream) []Message {
	var out []Message
	for {
		pm, ok := s.ordered[s.nextKey]
		if !ok || !pm.complete() {
			break
		}
		out = append(out, q.deliver(pm))
		delete(s.ordered, s.nextKey)
		s.nextKey++
	}
	return out
}

func (q *Queue) deliver(pm *partialMessage) Message {
	q.bufferedBytes -= pm.bytes
	return Message{
		StreamID:  pm.streamID,
		PPID:      pm.ppid,
		Payload:   pm.assemble(),
		Unordered: pm.unordered,
	}
}

// DuplicateTSNs returns and clears the duplicate TSNs recorded since the
// last call, for inclusion in the next SACK.
func (q *Queue) DuplicateTSNs() []uint32 {
	d := q.duplicates
	q.duplicates = nil
	return d
}

// GapAckBlocks builds the SACK gap-ack blocks from the out-of-order set,
// relative to the cumulative TSN.
func (q *Queue) GapAckBlocks() []GapAckBlock {
	if len(q.received) == 0 {
		return nil
	}
	offsets := make([]int, 0, len(q.received))
	for tsn := range q.received {
		offsets = append(offsets, int(tsn-q.cumulativeTSN))
	}
	sort.Ints(offsets)

	var blocks []GapAckBlock
	start := offsets[0]
	prev := offsets[0]
	for _, o := range offsets[1:] {
		if o == prev+1 {
			prev = o
			continue
		}
		blocks = append(blocks, GapAckBlock{Start: uint16(start), End: uint16(prev)})
		start, prev = o, o
	}
	blocks = append(blocks, GapAckBlock{Start: uint16(start), End: uint16(prev)})
	return blocks
}

// ApplyForwardTSN advances the cumulative TSN and drops partial reassembly
// state at or before each named coordinate, per spec.md §4.6. It returns any
// messages newly deliverable as a result (a forward-tsn can unblock ordered
// streams stuck behind an abandoned message).
func (q *Queue) ApplyForwardTSN(newCumTSN uint32, skips []ForwardTSNSkip) []Message {
	if wire.Serial32LessThan(q.cumulativeTSN, newCumTSN) {
		q.cumulativeTSN = newCumTSN
		for tsn := range q.received {
			if wire.Serial32LessOrEqual(tsn, q.cumulativeTSN) {
				delete(q.received, tsn)
			}
		}
	}

	touched := make(map[uint16]*incomingStream)
	for _, sk := range skips {
		s := q.getOrCreateStream(sk.StreamID)
		bucket := s.ordered
		if sk.Unordered {
			bucket = s.unordered
		}
		if pm, ok := bucket[sk.Key]; ok {
			q.bufferedBytes -= pm.bytes
			delete(bucket, sk.Key)
		}
		if !sk.Unordered && wire.Serial32LessOrEqual(s.nextKey, sk.Key) {
			s.nextKey = sk.Key + 1
			touched[sk.StreamID] = s
		}
	}

	var delivered []Message
	for _, s := range touched {
		delivered = append(delivered, q.drainOrdered(s)...)
	}
	return delivered
}

// ResetStream drops partial reassembly state for an incoming stream and
// resets its ordered delivery cursor, per spec.md §4.7's incoming reset
// flow.
func (q *Queue) ResetStream(streamID uint16) {
	s := q.getOrCreateStream(streamID)
	for _, pm := range s.ordered {
		q.bufferedBytes -= pm.bytes
	}
	for _, pm := range s.unordered {
		q.bufferedBytes -= pm.bytes
	}
	s.ordered = make(map[uint32]*partialMessage)
	s.unordered = make(map[uint32]*partialMessage)
	s.nextKey = 0
}
