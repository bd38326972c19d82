package association

import (
	"github.com/ossrs/go-dcsctp/callback"
	"github.com/ossrs/go-dcsctp/chunk"
	"github.com/ossrs/go-dcsctp/faketime"
	"github.com/ossrs/go-dcsctp/timer"
)

// recordingSink is a callback.Sink that records every notification and
// outgoing packet for assertions, and answers the synchronous callbacks
// off a shared faketime.Clock so tests can drive both sides of an
// association deterministically.
type recordingSink struct {
	clock *faketime.Clock
	seed  uint32

	sentPackets [][]byte
	drop        bool

	connected     int
	closed        int
	aborted       []string
	errors        []string
	received      []callback.ReceivedMessage
	resetsOK      [][]uint16
	resetsFailed  [][]uint16
	incomingReset [][]uint16
	restarted     int
}

func newRecordingSink(clock *faketime.Clock) *recordingSink {
	return &recordingSink{clock: clock}
}

func (s *recordingSink) SendPacket(packet []byte) {
	if s.drop {
		return
	}
	s.sentPackets = append(s.sentPackets, append([]byte(nil), packet...))
}

func (s *recordingSink) CreateTimeout() timer.Timeout { return s.clock.Factory()() }

func (s *recordingSink) TimeMillis() int64 { return s.clock.NowMs() }

// GetRandomInt is deterministic (a counter) rather than actually random, so
// assertions on verification tags and nonces are reproducible.
func (s *recordingSink) GetRandomInt(low, high uint32) uint32 {
	s.seed++
	if high <= low {
		return low
	}
	return low + s.seed%(high-low)
}

func (s *recordingSink) OnMessageReceived(m callback.ReceivedMessage) {
	s.received = append(s.received, m)
}

func (s *recordingSink) OnError(kind callback.ErrorKind, message string) {
	s.errors = append(s.errors, message)
}

func (s *recordingSink) OnAborted(kind callback.ErrorKind, message string) {
	s.aborted = append(s.aborted, message)
}

func (s *recordingSink) OnConnected()              { s.connected++ }
func (s *recordingSink) OnClosed()                 { s.closed++ }
func (s *recordingSink) OnConnectionRestarted()    { s.restarted++ }

func (s *recordingSink) OnStreamsResetFailed(streamIDs []uint16, reason string) {
	s.resetsFailed = append(s.resetsFailed, streamIDs)
}

func (s *recordingSink) OnStreamsResetPerformed(streamIDs []uint16) {
	s.resetsOK = append(s.resetsOK, streamIDs)
}

func (s *recordingSink) OnIncomingStreamsReset(streamIDs []uint16) {
	s.incomingReset = append(s.incomingReset, streamIDs)
}

func (s *recordingSink) OnSentMessageExpired(streamID uint16, ppid uint32, unsent bool) {}
func (s *recordingSink) OnOutgoingMessageBufferEmpty()                                  {}
func (s *recordingSink) OnBufferedAmountLow(streamID uint16)                            {}
func (s *recordingSink) OnTotalBufferedAmountLow()                                      {}
func (s *recordingSink) OnLifecycleMessageExpired(lifecycleID string, maybeDelivered bool) {}
func (s *recordingSink) OnLifecycleEnd(lifecycleID string)                              {}

// takeSent drains and returns every packet the socket has queued for send
// since the last call.
func (s *recordingSink) takeSent() [][]byte {
	sent := s.sentPackets
	s.sentPackets = nil
	return sent
}

// pair bundles two Sockets sharing one faketime.Clock, wired to deliver
// packets directly into each other's ReceivePacket, the way the demo
// binary's lossyLink does but synchronously and loss-free by default.
type pair struct {
	clock *faketime.Clock
	a, b  *Socket
	sinkA *recordingSink
	sinkB *recordingSink
}

func newPair(opts Options) *pair {
	clock := faketime.NewClock(0)
	sinkA := newRecordingSink(clock)
	sinkB := newRecordingSink(clock)
	return &pair{
		clock: clock,
		a:     NewSocket(opts, sinkA),
		b:     NewSocket(opts, sinkB),
		sinkA: sinkA,
		sinkB: sinkB,
	}
}

// deliver hands every packet queued on src's sink to dst, draining up to a
// handful of rounds so control-chunk replies (e.g. INIT -> INIT-ACK) that
// themselves provoke a reply are fully settled.
func (p *pair) deliver(src *recordingSink, dst *Socket) {
	for round := 0; round < 8; round++ {
		packets := src.takeSent()
		if len(packets) == 0 {
			return
		}
		for _, raw := range packets {
			dst.ReceivePacket(raw)
		}
	}
}

// settle runs packets back and forth between a and b until neither side has
// anything queued, bounding the exchange so a protocol bug can't hang a
// test in an infinite loop.
func (p *pair) settle() {
	for round := 0; round < 16; round++ {
		aOut := p.sinkA.takeSent()
		bOut := p.sinkB.takeSent()
		if len(aOut) == 0 && len(bOut) == 0 {
			return
		}
		for _, raw := range aOut {
			p.b.ReceivePacket(raw)
		}
		for _, raw := range bOut {
			p.a.ReceivePacket(raw)
		}
	}
}

// handshake drives a's active Connect() through to Established on both
// sides.
func (p *pair) handshake() {
	p.a.Connect()
	p.settle()
}

// advance moves the shared clock forward and fires every timeout due as a
// result, on both sockets, repeating until nothing more comes due at the
// new time (a single HandleTimeout can itself arm a new timer at the same
// deadline, e.g. exponential backoff of zero).
func (p *pair) advance(deltaMs int64) {
	p.clock.Advance(deltaMs)
	for {
		due := p.clock.Due()
		if len(due) == 0 {
			return
		}
		for _, id := range due {
			p.a.HandleTimeout(id)
			p.b.HandleTimeout(id)
		}
	}
}

func testOptions() Options {
	opts := DefaultOptions()
	opts.MaxRetransmissions = 3
	opts.MaxInitRetransmits = 3
	opts.HeartbeatIntervalMs = 1000
	opts.T1InitTimeoutMs = 200
	opts.T1CookieTimeoutMs = 200
	opts.T2ShutdownTimeoutMs = 200
	opts.RTOInitialMs = 200
	opts.RTOMinMs = 100
	opts.RTOMaxMs = 400
	return opts
}

// containsChunkType reports whether any packet in packets decodes to
// include a chunk of the given type, used to assert e.g. that no ABORT was
// ever sent.
func containsChunkType(packets [][]byte, typ chunk.Type) bool {
	for _, raw := range packets {
		p, err := chunk.DecodePacket(raw, false)
		if err != nil {
			continue
		}
		for _, c := range p.Chunks {
			if c.Type() == typ {
				return true
			}
		}
	}
	return false
}
