// Package association implements the association state machine from
// spec.md §4.8: handshake (INIT/INIT-ACK/COOKIE-ECHO/COOKIE-ACK), graceful
// shutdown, association restart detection, and the glue between the
// send/retransmission/reassembly/reset engines and the wire codec. It is the
// single public entry point client code drives: ReceivePacket and
// HandleTimeout feed it events, Send/ResetStreams/Shutdown/Close issue
// commands, and callback.Sink receives the resulting notifications.
package association

import (
	"fmt"

	"github.com/rs/xid"

	"github.com/ossrs/go-dcsctp/callback"
	"github.com/ossrs/go-dcsctp/cause"
	"github.com/ossrs/go-dcsctp/chunk"
	"github.com/ossrs/go-dcsctp/logger"
	"github.com/ossrs/go-dcsctp/reassembly"
	"github.com/ossrs/go-dcsctp/reconfig"
	"github.com/ossrs/go-dcsctp/rto"
	"github.com/ossrs/go-dcsctp/sendqueue"
	"github.com/ossrs/go-dcsctp/timer"
	"github.com/ossrs/go-dcsctp/transport"
	"github.com/ossrs/go-dcsctp/txqueue"
)

// reConfigSupport, forwardTSNSupport and iDataSupport are the chunk type
// values advertised in a Supported-Extensions parameter, per spec.md §4.7
// and §4.4's capability negotiation.
const (
	extReConfig    = uint8(chunk.TypeReConfig)
	extForwardTSN  = uint8(chunk.TypeForwardTSN)
	extIData       = uint8(chunk.TypeIData)
	extIForwardTSN = uint8(chunk.TypeIForwardTSN)
)

// Message is an application payload submitted to Send.
type Message struct {
	StreamID uint16
	PPID     uint32
	Payload  []byte
}

// SendOptions controls how a single Send call's message is scheduled and
// retransmitted, per spec.md §6.
type SendOptions struct {
	Unordered bool
	// LifetimeMs bounds how long the message may wait for successful
	// delivery; a negative value means unlimited, and 0 makes the message
	// expire unsent at the first send attempt that reaches it.
	LifetimeMs int
	// MaxRetransmissions caps retransmission attempts; -1 means unlimited.
	MaxRetransmissions int
	// LifecycleID, if non-empty, requests OnLifecycleMessageExpired /
	// OnLifecycleEnd notifications for this message. Socket passes the id
	// through as given and never mints one; an empty id requests no
	// lifecycle notifications.
	LifecycleID string
}

// Socket is one SCTP-like association. It is not safe for concurrent use;
// spec.md §9 assumes single-threaded access, same as the client-driven
// event loop original_source itself uses.
type Socket struct {
	opts Options
	cid  xid.ID
	cb   *callback.Deferrer

	state State

	sendQ  *sendqueue.Queue
	txQ    *txqueue.Queue
	reasm  *reassembly.Queue
	reset  *reconfig.Engine
	sender *transport.Sender
	timers *timer.Manager

	tInit      *timer.Timer
	tCookie    *timer.Timer
	tShutdown  *timer.Timer
	tHeartbeat *timer.Timer
	tReconfig  *timer.Timer
	tRtx       *timer.Timer

	localVerificationTag uint32
	peerVerificationTag  uint32

	localInitialTSN uint32
	peerInitialTSN  uint32
	haveInitialTSN  bool

	cookieSecret  []byte
	pendingCookie []byte

	negotiatedInterleaving bool
	negotiatedZeroChecksum bool
	supportsStreamReset    *bool

	observer PacketObserver

	heartbeatOutstanding bool
	heartbeatNonce       []byte
	heartbeatFailures    int

	peerInitiatedShutdown bool

	tDelayedAck *timer.Timer

	// fragBase tracks, for every (stream, ordering) pair currently in the
	// middle of a classic (non-interleaved) DATA fragmentation run, the TSN
	// its first fragment carried. Classic DATA has no wire FSN field (only
	// I-DATA does), so the fragment index handed to the reassembly package
	// is synthesized as TSN - fragBase. This is unambiguous because the
	// non-interleaved send scheduler never starts a new message before the
	// previous one has been fully handed to the wire, so at most one
	// fragmentation run per (stream, ordering) pair is ever open at once.
	fragBase map[fragKey]uint32

	// pendingUnordered holds unordered classic-DATA fragments whose run's
	// base TSN isn't known yet, because their begin fragment hasn't arrived.
	// The network may reorder a non-beginning fragment ahead of its begin
	// fragment, or even ahead of an entirely later run on the same (stream,
	// ordering) pair; each buffered fragment is only handed to reassembly
	// once receive.go's drainPendingUnordered walks a contiguous TSN chain
	// to it from a fragment it has already placed, so a fragment can never
	// be attributed to the wrong run even while more than one run's worth
	// of fragments sits here at once.
	pendingUnordered map[fragKey][]pendingFragment

	// ssnUnwrap extends each incoming ordered stream's wire-level 16-bit SSN
	// into a monotonically increasing 32-bit reassembly key, matching what
	// reassembly.Queue's ordered delivery cursor expects.
	ssnUnwrap map[uint16]*ssnState

	messagesDelivered  uint64
	bytesRetransmitted uint64

	shutdownInitiated bool
	closed            bool
}

// fragKey identifies one (stream, ordering) classic-DATA fragmentation run.
type fragKey struct {
	streamID  uint16
	unordered bool
}

// pendingFragment is one unordered classic-DATA fragment buffered in
// Socket.pendingUnordered because it arrived before its run's begin
// fragment.
type pendingFragment struct {
	tsn          uint32
	payload      []byte
	isEnd        bool
	immediateAck bool
}

// ssnState is the per-stream cursor unwrapSSN uses to detect 16-bit SSN
// wraparound.
type ssnState struct {
	have    bool
	lastSSN uint16
	high    uint32
}

// NewSocket builds a Socket in the Closed state, wired to sink for every
// host-facing callback. Connect (active) or ReceivePacket of an INIT
// (passive) moves it out of Closed.
func NewSocket(opts Options, sink callback.Sink) *Socket {
	cb := callback.New(sink)

	s := &Socket{
		opts:     opts,
		cid:      xid.New(),
		cb:       cb,
		state:            StateClosed,
		fragBase:         make(map[fragKey]uint32),
		pendingUnordered: make(map[fragKey][]pendingFragment),
		ssnUnwrap:        make(map[uint16]*ssnState),
	}

	s.sendQ = sendqueue.New(sendqueue.Options{
		BufferSize:               opts.MaxSendBufferSize,
		StreamLowWaterMark:       opts.MaxSendBufferSize / 4,
		TotalLowWaterMark:        opts.MaxSendBufferSize / 4,
		MinimumFragmentedPayload: 32,
	}, s)

	s.txQ = txqueue.New(txqueue.Options{
		MTU:                      opts.MTU,
		EnablePartialReliability: opts.EnablePartialReliability,
		MaxT3Retries:             opts.MaxRetransmissions,
		RTOOptions: rto.Options{
			InitialMs: opts.RTOInitialMs,
			MinMs:     opts.RTOMinMs,
			MaxMs:     opts.RTOMaxMs,
		},
	}, s.sendQ)

	s.reasm = reassembly.New(reassembly.Options{
		MaxBufferedBytes: opts.MaxReceiverWindow,
		DelayedAckMaxMs:  opts.DelayedAckMaxMs,
	})

	s.reset = reconfig.New()

	s.timers = timer.NewManager(func() timer.Timeout { return cb.CreateTimeout() })

	s.sender = transport.New(s.timers, s.transportSend, nil, opts.BytesPerSecLimit)

	s.cookieSecret = newCookieSecret(cb)

	s.tInit = s.timers.CreateTimer("t1-init", s.onT1InitExpiry, timer.Options{
		DurationMs:       opts.T1InitTimeoutMs,
		MaxRestarts:      opts.MaxInitRetransmits,
		BackoffAlgorithm: timer.BackoffExponential,
	})
	s.tCookie = s.timers.CreateTimer("t1-cookie", s.onT1CookieExpiry, timer.Options{
		DurationMs:       opts.T1CookieTimeoutMs,
		MaxRestarts:      opts.MaxInitRetransmits,
		BackoffAlgorithm: timer.BackoffExponential,
	})
	s.tShutdown = s.timers.CreateTimer("t2-shutdown", s.onT2ShutdownExpiry, timer.Options{
		DurationMs:       opts.T2ShutdownTimeoutMs,
		MaxRestarts:      opts.MaxRetransmissions,
		BackoffAlgorithm: timer.BackoffExponential,
	})
	s.tHeartbeat = s.timers.CreateTimer("heartbeat", s.onHeartbeatExpiry, timer.Options{
		DurationMs:       opts.HeartbeatIntervalMs,
		MaxRestarts:      timer.Unlimited,
		BackoffAlgorithm: timer.BackoffFixed,
	})
	s.tReconfig = s.timers.CreateTimer("reconfig-rtx", s.onReconfigExpiry, timer.Options{
		DurationMs:       opts.RTOInitialMs,
		MaxRestarts:      opts.MaxRetransmissions,
		BackoffAlgorithm: timer.BackoffExponential,
	})
	s.tRtx = s.timers.CreateTimer("t3-rtx", s.onT3RtxExpiry, timer.Options{
		DurationMs:       opts.RTOInitialMs,
		MaxRestarts:      timer.Unlimited,
		BackoffAlgorithm: timer.BackoffFixed,
	})
	s.tDelayedAck = s.timers.CreateTimer("delayed-ack", s.onDelayedAckExpiry, timer.Options{
		DurationMs:       opts.DelayedAckMaxMs,
		MaxRestarts:      timer.Unlimited,
		BackoffAlgorithm: timer.BackoffFixed,
	})

	return s
}

// HandleTimeout must be called by the host exactly when a Timeout created
// through callback.Sink.CreateTimeout fires, carrying the same opaque id the
// Timeout was started/restarted with.
func (s *Socket) HandleTimeout(timeoutID uint64) {
	if s.closed {
		return
	}
	s.timers.HandleTimeout(timeoutID)
	s.flush()
}

func (s *Socket) logCtx() logger.Context { return logCtx{s.cid} }

type logCtx struct{ id xid.ID }

func (c logCtx) Cid() string { return c.id.String() }

// State returns the association's current handshake/shutdown state.
func (s *Socket) State() State { return s.state }

// SetPacketObserver installs (or, with nil, removes) a synchronous hook
// invoked for every packet sent or received, per SPEC_FULL.md's supplemented
// packet-observer feature.
func (s *Socket) SetPacketObserver(observer PacketObserver) {
	s.observer = observer
}

// SupportsStreamReset reports whether the peer has been confirmed to
// understand RE-CONFIG, or nil before that capability has been negotiated
// (i.e. before the handshake completes).
func (s *Socket) SupportsStreamReset() *bool {
	return s.supportsStreamReset
}

// RTOMs, CwndBytes, OutstandingBytes and related accessors expose txqueue
// internals for the stats package's Prometheus collector.
func (s *Socket) RTOMs() int             { return s.txQ.RTOMs() }
func (s *Socket) CwndBytes() int         { return s.txQ.Cwnd() }
func (s *Socket) OutstandingBytes() int  { return s.txQ.OutstandingBytes() }
func (s *Socket) BufferedAmount() int    { return s.sendQ.TotalBufferedAmount() }
func (s *Socket) MessagesDelivered() uint64  { return s.messagesDelivered }
func (s *Socket) BytesRetransmitted() uint64 { return s.bytesRetransmitted }
func (s *Socket) PendingRetries() int    { return s.sender.PendingRetries() }

func (s *Socket) nowMs() int64 { return s.cb.TimeMillis() }

// transportSend adapts callback.Sink's fire-and-forget SendPacket to
// transport.SendFunc's Status-returning shape: the Sink interface has no way
// to report a transient failure, so every handoff is reported Success and
// the transport layer's retry path is only exercised by tests that drive it
// directly.
func (s *Socket) transportSend(packet []byte) transport.Status {
	if s.observer != nil {
		s.observer.OnSentPacket(packet)
	}
	s.cb.SendPacket(packet)
	return transport.StatusSuccess
}

func (s *Socket) sendPacket(p *chunk.Packet) {
	raw, err := chunk.EncodePacket(p, s.negotiatedZeroChecksum)
	if err != nil {
		logger.E(s.logCtx(), "EncodePacket failed", err)
		return
	}
	s.sender.Send(raw)
}

func (s *Socket) sendControl(tag uint32, chunks ...chunk.Chunk) {
	s.sendPacket(&chunk.Packet{
		SourcePort:      s.opts.LocalPort,
		DestPort:        s.opts.RemotePort,
		VerificationTag: tag,
		Chunks:          chunks,
	})
}

// abort sends an ABORT with a cause matching kind, reports the error to the
// client and moves to Closed, per spec.md §4.8's "any state -> Closed on
// ABORT" transition.
func (s *Socket) abort(kind callback.ErrorKind, message string, reflect bool) {
	var causes []cause.Cause
	switch kind {
	case callback.ErrorKindResourceExhaustion:
		causes = []cause.Cause{&cause.OutOfResource{}}
	case callback.ErrorKindProtocolViolation:
		causes = []cause.Cause{&cause.ProtocolViolation{Reason: message}}
	default:
		causes = []cause.Cause{&cause.UserInitiatedAbort{Reason: message}}
	}
	tag := s.peerVerificationTag
	s.sendControl(tag, &chunk.Abort{ReflectedTag: reflect, Causes: causes})
	s.cb.OnAborted(kind, message)
	s.teardown()
}

func (s *Socket) teardown() {
	s.state = StateClosed
	s.tInit.Stop()
	s.tCookie.Stop()
	s.tShutdown.Stop()
	s.tHeartbeat.Stop()
	s.tReconfig.Stop()
	s.tRtx.Stop()
	s.tDelayedAck.Stop()
	s.closed = true
}

func (s *Socket) fail(kind callback.ErrorKind, format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	s.cb.OnError(kind, msg)
}
