// Package sendqueue buffers outgoing messages per stream, fragments them on
// demand, and schedules which stream's next fragment goes out: round-robin
// when message interleaving hasn't been negotiated, weighted fair queuing
// once it has. Grounded on original_source/net/dcsctp/tx/rr_send_queue.h and
// stream_scheduler.{h,cc}, and spec.md §4.4.
package sendqueue

import (
	"container/heap"

	"github.com/ossrs/go-dcsctp/ppid"
)

// PauseState is a stream's position in the outgoing stream-reset state
// machine, per spec.md §4.4.
type PauseState int

const (
	NotPaused PauseState = iota
	Pending
	Paused
	Resetting
)

// Message is an application-submitted payload plus send options, as handed
// to Queue.Add.
type Message struct {
	StreamID           uint16
	PPID               ppid.PPID
	Payload            []byte
	Unordered          bool
	MaxRetransmissions int // -1 means unlimited, per spec.md §6 default.
	LifetimeMs         int // Negative means unlimited; 0 expires at the next Produce.
	LifecycleID        string
}

// Fragment is one chunk's worth of a message, ready for the retransmission
// queue to stamp with a TSN. SSN is meaningful only in round-robin
// (non-interleaved) mode; MID/FSN are meaningful only under WFQ
// (interleaved, I-DATA) mode -- the caller (association) picks which wire
// chunk type to build from Mode.
type Fragment struct {
	StreamID           uint16
	Unordered          bool
	SSN                uint16
	MID                uint32
	FSN                uint32
	PPID               ppid.PPID
	Payload            []byte
	IsBeginning        bool
	IsEnd              bool
	MaxRetransmissions int
	ExpiresAtMs        int64
	LifecycleID        string
}

// Notifier is the narrow capability interface the queue uses to tell its
// owner about buffer and lifecycle events; it never holds the whole
// association, per spec.md §9 "pass a narrow capability interface".
type Notifier interface {
	OnBufferedAmountLow(streamID uint16)
	OnTotalBufferedAmountLow()
	OnLifecycleMessageExpired(lifecycleID string, maybeDelivered bool)
	OnOutgoingMessageBufferEmpty()
	// OnSentMessageExpired fires whenever a message is discarded before
	// being handed to the wire, whether or not it carried a lifecycle id.
	OnSentMessageExpired(streamID uint16, ppid uint32, unsent bool)
}

// Options configures a Queue.
type Options struct {
	// BufferSize is the total, in payload bytes, a Queue will hold before
	// IsFull reports true (max_send_buffer_size in spec.md §6).
	BufferSize int
	// StreamLowWaterMark arms OnBufferedAmountLow(stream) once a stream's
	// buffered amount drops at or below this value, having previously been
	// above it.
	StreamLowWaterMark int
	// TotalLowWaterMark is the same notion for the queue's total.
	TotalLowWaterMark int
	// MinimumFragmentedPayload bounds how small a trailing fragment may be
	// made, mirroring RRSendQueue::kMinimumFragmentedPayload; 0 disables
	// the check.
	MinimumFragmentedPayload int
}

type item struct {
	message            Message
	expiresAtMs        int64
	hasExpiry          bool
	remaining          []byte
	mid                uint32
	hasMID             bool
	ssn                uint16
	hasSSN             bool
	currentFSN         uint32
	startedTransmitting bool
}

func (it *item) remainingSize() int { return len(it.remaining) }

// outgoingStream holds one stream's pending messages and cursors.
type outgoingStream struct {
	streamID        uint16
	items           []*item
	nextUnorderedMID uint32
	nextOrderedMID  uint32
	nextSSN         uint16
	priority        int
	pause           PauseState
	bufferedAmount  int
	finishTime      float64
}

func (s *outgoingStream) hasSendableData() bool {
	if s.pause == Paused || s.pause == Resetting {
		return false
	}
	return len(s.items) > 0
}

// Queue is the per-association send queue: one outgoingStream per StreamID
// plus the active scheduling discipline.
type Queue struct {
	opts        Options
	notify      Notifier
	interleaved bool

	streams map[uint16]*outgoingStream

	// round-robin bookkeeping: FIFO order of stream ids that have ever had
	// data, and a sticky "currently producing" stream so a whole message
	// finishes before the scheduler advances.
	rrOrder   []uint16
	rrCursor  int
	rrCurrent uint16
	rrHasCur  bool

	totalBuffered int
}

// New builds an empty Queue.
func New(opts Options, notify Notifier) *Queue {
	return &Queue{
		opts:    opts,
		notify:  notify,
		streams: make(map[uint16]*outgoingStream),
	}
}

// SetInterleaved switches the scheduling discipline. Switching is only safe
// between messages (the association does this once at handshake
// completion, per spec.md §4.4's capability negotiation).
func (q *Queue) SetInterleaved(v bool) { q.interleaved = v }

func (q *Queue) getOrCreateStream(id uint16) *outgoingStream {
	s, ok := q.streams[id]
	if !ok {
		s = &outgoingStream{streamID: id, priority: 1}
		q.streams[id] = s
		q.rrOrder = append(q.rrOrder, id)
	}
	return s
}

// StreamPriority returns the WFQ priority set for a stream, defaulting to 1.
func (q *Queue) StreamPriority(id uint16) int {
	if s, ok := q.streams[id]; ok {
		return s.priority
	}
	return 1
}

// SetStreamPriority sets a stream's WFQ weight; doubling it doubles the
// share of bytes the stream is granted relative to its peers, per
// spec.md §4.4.
func (q *Queue) SetStreamPriority(id uint16, priority int) {
	if priority <= 0 {
		priority = 1
	}
	q.getOrCreateStream(id).priority = priority
}

// IsFull reports whether the queue is at or above its total buffer budget.
func (q *Queue) IsFull() bool { return q.totalBuffered >= q.opts.BufferSize }

// TotalBufferedAmount is the sum of every stream's BufferedAmount, per
// spec.md §8's buffer-conservation invariant.
func (q *Queue) TotalBufferedAmount() int { return q.totalBuffered }

// BufferedAmount returns one stream's buffered byte count.
func (q *Queue) BufferedAmount(streamID uint16) int {
	if s, ok := q.streams[streamID]; ok {
		return s.bufferedAmount
	}
	return 0
}

// Add enqueues msg. The caller must have checked IsFull first; Add does not
// itself reject on a full buffer (spec.md §7: "Send-buffer full: Send()
// returns failure synchronously" is the association's responsibility).
func (q *Queue) Add(nowMs int64, msg Message) {
	s := q.getOrCreateStream(msg.StreamID)
	it := &item{message: msg, remaining: msg.Payload}
	if msg.LifetimeMs > 0 {
		it.hasExpiry = true
		it.expiresAtMs = nowMs + int64(msg.LifetimeMs)
	} else if msg.LifetimeMs == 0 {
		// lifetime_ms=0 means "expire if not sent before the next Produce",
		// per spec.md §8 boundary behavior: treat as already-due.
		it.hasExpiry = true
		it.expiresAtMs = nowMs
	}
	s.items = append(s.items, it)

	size := len(msg.Payload)
	if size == 0 {
		size = 1 // the one-byte empty-message filler, per spec.md §3.
	}
	s.bufferedAmount += size
	q.totalBuffered += size
}

// discardItem removes the front item of s (expired or fully sent) and
// updates buffer accounting + low-water notifications.
func (q *Queue) discardItem(s *outgoingStream, idx int) {
	it := s.items[idx]
	size := it.remainingSize()
	if size == 0 && len(it.message.Payload) == 0 {
		size = 1
	}
	wasAbove := s.bufferedAmount > q.opts.StreamLowWaterMark
	wasTotalAbove := q.totalBuffered > q.opts.TotalLowWaterMark

	s.bufferedAmount -= size
	if s.bufferedAmount < 0 {
		s.bufferedAmount = 0
	}
	q.totalBuffered -= size
	if q.totalBuffered < 0 {
		q.totalBuffered = 0
	}
	s.items = append(s.items[:idx], s.items[idx+1:]...)

	if wasAbove && s.bufferedAmount <= q.opts.StreamLowWaterMark && q.notify != nil {
		q.notify.OnBufferedAmountLow(s.streamID)
	}
	if wasTotalAbove && q.totalBuffered <= q.opts.TotalLowWaterMark && q.notify != nil {
		q.notify.OnTotalBufferedAmountLow()
	}
	if q.totalBuffered == 0 && q.notify != nil {
		q.notify.OnOutgoingMessageBufferEmpty()
	}
}

// expireFront checks whether s's front item is past its deadline and, if
// so, discards it (firing OnLifecycleMessageExpired) and reports true so
// the caller tries the next item.
func (q *Queue) expireFront(nowMs int64, s *outgoingStream) bool {
	if len(s.items) == 0 {
		return false
	}
	it := s.items[0]
	if it.hasExpiry && nowMs >= it.expiresAtMs && !it.startedTransmitting {
		if q.notify != nil {
			q.notify.OnSentMessageExpired(s.streamID, uint32(it.message.PPID), true)
			if it.message.LifecycleID != "" {
				q.notify.OnLifecycleMessageExpired(it.message.LifecycleID, false)
			}
		}
		q.discardItem(s, 0)
		return true
	}
	return false
}

// produceFrom builds the next Fragment out of s's front item, advancing or
// retiring it as needed. maxSize bounds the fragment payload.
func (q *Queue) produceFrom(s *outgoingStream, maxSize int) (Fragment, bool) {
	if len(s.items) == 0 {
		return Fragment{}, false
	}
	it := s.items[0]

	if !it.hasMID {
		if it.message.Unordered {
			it.mid = s.nextUnorderedMID
			s.nextUnorderedMID++
		} else {
			it.mid = s.nextOrderedMID
			s.nextOrderedMID++
			it.ssn = s.nextSSN
			it.hasSSN = true
			s.nextSSN++
		}
		it.hasMID = true
	}

	isBeginning := it.currentFSN == 0
	payloadLen := len(it.remaining)
	end := payloadLen <= maxSize
	n := payloadLen
	if !end {
		n = maxSize
		if q.opts.MinimumFragmentedPayload > 0 && payloadLen-n < q.opts.MinimumFragmentedPayload && payloadLen > q.opts.MinimumFragmentedPayload {
			n = payloadLen - q.opts.MinimumFragmentedPayload
		}
	}

	var chunkPayload []byte
	wirePPID := it.message.PPID
	if payloadLen == 0 {
		// The empty-message invariant: one filler byte under the empty PPID
		// variant, per spec.md §3 and ppid.ToEmpty.
		chunkPayload = []byte{0}
		if p, ok := ppid.ToEmpty(it.message.PPID); ok {
			wirePPID = p
		}
		end = true
	} else {
		chunkPayload = append([]byte(nil), it.remaining[:n]...)
		it.remaining = it.remaining[n:]
	}

	f := Fragment{
		StreamID:           s.streamID,
		Unordered:          it.message.Unordered,
		MID:                it.mid,
		FSN:                it.currentFSN,
		PPID:               wirePPID,
		Payload:            chunkPayload,
		IsBeginning:        isBeginning,
		IsEnd:              end,
		MaxRetransmissions: it.message.MaxRetransmissions,
		LifecycleID:        it.message.LifecycleID,
	}
	if it.hasSSN {
		f.SSN = it.ssn
	}
	if it.hasExpiry {
		f.ExpiresAtMs = it.expiresAtMs
	}
	it.startedTransmitting = true
	it.currentFSN++

	sentSize := n
	if payloadLen == 0 {
		sentSize = 1
	}
	s.bufferedAmount -= sentSize
	if s.bufferedAmount < 0 {
		s.bufferedAmount = 0
	}
	q.totalBuffered -= sentSize
	if q.totalBuffered < 0 {
		q.totalBuffered = 0
	}

	if end {
		q.fireLowWaterIfCrossed(s)
		s.items = s.items[1:]
		q.advancePauseState(s)
		if len(s.items) == 0 && q.totalBuffered == 0 && q.notify != nil {
			q.notify.OnOutgoingMessageBufferEmpty()
		}
	}
	return f, true
}

func (q *Queue) fireLowWaterIfCrossed(s *outgoingStream) {
	if q.notify == nil {
		return
	}
	if s.bufferedAmount <= q.opts.StreamLowWaterMark {
		q.notify.OnBufferedAmountLow(s.streamID)
	}
	if q.totalBuffered <= q.opts.TotalLowWaterMark {
		q.notify.OnTotalBufferedAmountLow()
	}
}

// Produce returns the next fragment to send, or false if nothing is ready.
// Round-robin mode completes an entire message before moving to another
// stream; WFQ mode picks the active stream with the lowest virtual finish
// time and may interleave fragments of different streams' messages.
func (q *Queue) Produce(nowMs int64, maxSize int) (Fragment, bool) {
	if maxSize <= 0 {
		return Fragment{}, false
	}
	if q.interleaved {
		return q.produceWFQ(nowMs, maxSize)
	}
	return q.produceRoundRobin(nowMs, maxSize)
}

func (q *Queue) produceRoundRobin(nowMs int64, maxSize int) (Fragment, bool) {
	for q.expireAnyFront(nowMs) {
	}

	// Stick with the in-progress stream until its current message finishes.
	if q.rrHasCur {
		if s, ok := q.streams[q.rrCurrent]; ok && s.hasSendableData() {
			f, ok := q.produceFrom(s, maxSize)
			if ok && f.IsEnd {
				q.rrHasCur = false
			}
			if ok {
				return f, true
			}
		}
		q.rrHasCur = false
	}

	n := len(q.rrOrder)
	for i := 0; i < n; i++ {
		idx := (q.rrCursor + i) % n
		id := q.rrOrder[idx]
		s := q.streams[id]
		if s == nil || !s.hasSendableData() {
			continue
		}
		for q.expireFront(nowMs, s) {
		}
		if !s.hasSendableData() {
			continue
		}
		q.rrCursor = (idx + 1) % n
		f, ok := q.produceFrom(s, maxSize)
		if !ok {
			continue
		}
		if !f.IsEnd {
			q.rrCurrent = id
			q.rrHasCur = true
		}
		return f, true
	}
	return Fragment{}, false
}

func (q *Queue) expireAnyFront(nowMs int64) bool {
	for _, s := range q.streams {
		if q.expireFront(nowMs, s) {
			return true
		}
	}
	return false
}

// wfqHeap orders stream ids by ascending finish time; container/heap backs
// the WFQ ready-set, per DESIGN.md.
type wfqHeap struct {
	ids     []uint16
	streams map[uint16]*outgoingStream
}

func (h *wfqHeap) Len() int { return len(h.ids) }
func (h *wfqHeap) Less(i, j int) bool {
	return h.streams[h.ids[i]].finishTime < h.streams[h.ids[j]].finishTime
}
func (h *wfqHeap) Swap(i, j int) { h.ids[i], h.ids[j] = h.ids[j], h.ids[i] }
func (h *wfqHeap) Push(x interface{}) { h.ids = append(h.ids, x.(uint16)) }
func (h *wfqHeap) Pop() interface{} {
	old := h.ids
	n := len(old)
	id := old[n-1]
	h.ids = old[:n-1]
	return id
}

func (q *Queue) produceWFQ(nowMs int64, maxSize int) (Fragment, bool) {
	for q.expireAnyFront(nowMs) {
	}

	h := &wfqHeap{streams: q.streams}
	for id, s := range q.streams {
		if s.hasSendableData() {
			for q.expireFront(nowMs, s) {
			}
			if s.hasSendableData() {
				h.ids = append(h.ids, id)
			}
		}
	}
	if h.Len() == 0 {
		return Fragment{}, false
	}
	heap.Init(h)
	id := h.ids[0]
	s := q.streams[id]

	f, ok := q.produceFrom(s, maxSize)
	if !ok {
		return Fragment{}, false
	}
	bytes := len(f.Payload)
	priority := s.priority
	if priority <= 0 {
		priority = 1
	}
	s.finishTime += float64(bytes) / float64(priority)
	return f, true
}

// PrepareResetStreams marks every listed stream Pending: messages that
// haven't begun transmission are discarded (expired) immediately; a
// partially-sent message is allowed to complete before the stream advances
// to Paused, per spec.md §4.4.
func (q *Queue) PrepareResetStreams(streamIDs []uint16) {
	for _, id := range streamIDs {
		s := q.getOrCreateStream(id)
		if s.pause != NotPaused {
			continue
		}
		s.pause = Pending
		kept := s.items[:0]
		for _, it := range s.items {
			if it.startedTransmitting {
				kept = append(kept, it)
				continue
			}
			size := it.remainingSize()
			if size == 0 {
				size = 1
			}
			s.bufferedAmount -= size
			q.totalBuffered -= size
			if q.notify != nil {
				q.notify.OnSentMessageExpired(s.streamID, uint32(it.message.PPID), true)
				if it.message.LifecycleID != "" {
					q.notify.OnLifecycleMessageExpired(it.message.LifecycleID, false)
				}
			}
		}
		s.items = kept
		q.advancePauseState(s)
	}
}

// advancePauseState moves a Pending stream to Paused once it no longer has
// a partially-sent message.
func (q *Queue) advancePauseState(s *outgoingStream) {
	if s.pause == Pending && len(s.items) == 0 {
		s.pause = Paused
	}
}

// CanResetStreams reports whether every stream passed to
// PrepareResetStreams has finished its in-flight partial message and is now
// Paused.
func (q *Queue) CanResetStreams(streamIDs []uint16) bool {
	for _, id := range streamIDs {
		s, ok := q.streams[id]
		if !ok || s.pause != Paused {
			return false
		}
	}
	return true
}

// CommitResetStreams moves the listed streams from Paused to Resetting,
// just before the RE-CONFIG request is sent.
func (q *Queue) CommitResetStreams(streamIDs []uint16) {
	for _, id := range streamIDs {
		if s, ok := q.streams[id]; ok && s.pause == Paused {
			s.pause = Resetting
		}
	}
}

// RollbackResetStreams aborts an in-progress reset (e.g. Denied/Error
// response) and returns the streams straight to NotPaused.
func (q *Queue) RollbackResetStreams(streamIDs []uint16) {
	for _, id := range streamIDs {
		if s, ok := q.streams[id]; ok {
			s.pause = NotPaused
		}
	}
}

// ResetStream completes a successful reset: stream counters return to zero
// and the stream becomes schedulable again, per spec.md §4.7.
func (q *Queue) ResetStream(streamID uint16) {
	s := q.getOrCreateStream(streamID)
	s.nextOrderedMID = 0
	s.nextUnorderedMID = 0
	s.nextSSN = 0
	s.pause = NotPaused
}

// PauseStateOf reports a stream's current reset-negotiation state.
func (q *Queue) PauseStateOf(streamID uint16) PauseState {
	if s, ok := q.streams[streamID]; ok {
		return s.pause
	}
	return NotPaused
}

// Reset clears all streams' state, used on association restart (spec.md
// §4.8).
func (q *Queue) Reset() {
	q.streams = make(map[uint16]*outgoingStream)
	q.rrOrder = nil
	q.rrCursor = 0
	q.rrHasCur = false
	q.totalBuffered = 0
}

// StreamCursors is the per-stream state a handover snapshot needs to
// reproduce MID/SSN assignment after restore, per spec.md §6 "Persisted
// state". Valid only when the stream has no pending messages.
type StreamCursors struct {
	NextOrderedMID   uint32
	NextUnorderedMID uint32
	NextSSN          uint16
	Priority         int
}

// Cursors returns a StreamCursors snapshot for every stream that has ever
// carried data, keyed by stream id.
func (q *Queue) Cursors() map[uint16]StreamCursors {
	out := make(map[uint16]StreamCursors, len(q.streams))
	for id, s := range q.streams {
		out[id] = StreamCursors{
			NextOrderedMID:   s.nextOrderedMID,
			NextUnorderedMID: s.nextUnorderedMID,
			NextSSN:          s.nextSSN,
			Priority:         s.priority,
		}
	}
	return out
}

// RestoreCursors re-creates streams from a prior Cursors() snapshot. Only
// valid to call on an empty Queue (no pending messages), matching the
// handover contract in spec.md §6.
func (q *Queue) RestoreCursors(cursors map[uint16]StreamCursors) {
	for id, c := range cursors {
		s := q.getOrCreateStream(id)
		s.nextOrderedMID = c.NextOrderedMID
		s.nextUnorderedMID = c.NextUnorderedMID
		s.nextSSN = c.NextSSN
		s.priority = c.Priority
	}
}
