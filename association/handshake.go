package association

import (
	"github.com/ossrs/go-dcsctp/callback"
	"github.com/ossrs/go-dcsctp/chunk"
	"github.com/ossrs/go-dcsctp/logger"
	"github.com/ossrs/go-dcsctp/param"
	"github.com/ossrs/go-dcsctp/reassembly"
)

func (s *Socket) capabilityParameters() []param.Parameter {
	var chunkTypes []uint8
	if s.opts.EnableMessageInterleaving {
		chunkTypes = append(chunkTypes, extIData, extIForwardTSN)
	}
	chunkTypes = append(chunkTypes, extReConfig)
	if s.opts.EnablePartialReliability {
		chunkTypes = append(chunkTypes, extForwardTSN)
	}

	params := []param.Parameter{&param.SupportedExtensions{ChunkTypes: chunkTypes}}
	if s.opts.EnablePartialReliability {
		params = append(params, &param.ForwardTSNSupported{})
	}
	if s.opts.DisableChecksumVerification {
		params = append(params, &param.ZeroChecksumAcceptable{})
	}
	return params
}

type peerCapabilities struct {
	reConfig    bool
	forwardTSN  bool
	iData       bool
	iForwardTSN bool
	zeroChecksum bool
}

func parseCapabilities(params []param.Parameter) peerCapabilities {
	var c peerCapabilities
	for _, p := range params {
		switch v := p.(type) {
		case *param.SupportedExtensions:
			for _, t := range v.ChunkTypes {
				switch t {
				case extReConfig:
					c.reConfig = true
				case extForwardTSN:
					c.forwardTSN = true
				case extIData:
					c.iData = true
				case extIForwardTSN:
					c.iForwardTSN = true
				}
			}
		case *param.ZeroChecksumAcceptable:
			c.zeroChecksum = true
		}
	}
	return c
}

// applyNegotiated finalizes capability negotiation once the peer's
// parameters are known (from INIT on the passive side, from INIT-ACK on the
// active side), per spec.md §4.4/§4.7's capability-gated behavior.
func (s *Socket) applyNegotiated(peer peerCapabilities) {
	supported := peer.reConfig
	s.supportsStreamReset = &supported

	s.negotiatedInterleaving = s.opts.EnableMessageInterleaving && peer.iData
	s.sendQ.SetInterleaved(s.negotiatedInterleaving)
	s.txQ.SetInterleaved(s.negotiatedInterleaving)

	s.negotiatedZeroChecksum = s.opts.DisableChecksumVerification && peer.zeroChecksum
}

func (s *Socket) newVerificationTag() uint32 {
	return s.cb.GetRandomInt(1, 0xFFFFFFFF)
}

func (s *Socket) newInitialTSN() uint32 {
	return s.cb.GetRandomInt(0, 0xFFFFFFFF)
}

// Connect starts the active handshake: generates a verification tag and
// initial TSN, sends INIT, and arms t1-init, per spec.md §4.8.
func (s *Socket) Connect() {
	if s.state != StateClosed {
		s.flush()
		return
	}
	s.localVerificationTag = s.newVerificationTag()
	s.localInitialTSN = s.newInitialTSN()
	s.state = StateCookieWait
	s.sendInit()
	s.tInit.Start()
	s.flush()
}

func (s *Socket) sendInit() {
	init := &chunk.Init{
		InitiateTag:        s.localVerificationTag,
		AdvertisedRwnd:     s.reasm.AdvertisedRwnd(),
		NumOutboundStreams: 65535,
		NumInboundStreams:  65535,
		InitialTSN:         s.localInitialTSN,
		Parameters:         s.capabilityParameters(),
	}
	// INIT always carries verification tag zero on the wire (no association
	// exists yet for the peer to validate against), per spec.md §4.1.
	s.sendControl(0, init)
}

func (s *Socket) onT1InitExpiry() (int, bool) {
	if s.tInit.ExpirationCount() > s.opts.MaxInitRetransmits {
		s.fail(callback.ErrorKindTooManyRetries, "INIT retransmission limit exceeded")
		s.teardown()
		return 0, false
	}
	s.sendInit()
	return 0, false
}

func (s *Socket) onT1CookieExpiry() (int, bool) {
	if s.tCookie.ExpirationCount() > s.opts.MaxInitRetransmits {
		s.fail(callback.ErrorKindTooManyRetries, "COOKIE-ECHO retransmission limit exceeded")
		s.teardown()
		return 0, false
	}
	s.sendControl(s.peerVerificationTag, &chunk.CookieEcho{Cookie: s.pendingCookie})
	return 0, false
}

// handleInit answers an inbound INIT with INIT-ACK. Received while already
// Established, it signals the peer restarted (spec.md §4.8): the actual
// reset of engine state happens once the matching COOKIE-ECHO arrives, not
// here, so a spurious retransmitted INIT can't wipe live state.
func (s *Socket) handleInit(peerTag uint32, v *chunk.Init) {
	localTag := s.newVerificationTag()
	localInitialTSN := s.newInitialTSN()

	if s.state != StateEstablished {
		s.applyNegotiated(parseCapabilities(v.Parameters))
	}

	cookie, err := mintCookie(s.cookieSecret, cookieData{
		CreatedAtMs:     s.nowMs(),
		PeerTag:         peerTag,
		LocalTag:        localTag,
		PeerInitialTSN:  v.InitialTSN,
		LocalInitialTSN: localInitialTSN,
	})
	if err != nil {
		logger.E(s.logCtx(), "mintCookie failed", err)
		return
	}

	params := append(s.capabilityParameters(), &param.StateCookie{Cookie: cookie})
	ack := &chunk.InitAck{
		InitiateTag:        localTag,
		AdvertisedRwnd:     s.reasm.AdvertisedRwnd(),
		NumOutboundStreams: 65535,
		NumInboundStreams:  65535,
		InitialTSN:         localInitialTSN,
		Parameters:         params,
	}
	s.sendControl(peerTag, ack)
}

func (s *Socket) handleInitAck(v *chunk.InitAck) {
	if s.state != StateCookieWait {
		return
	}
	sc := v.StateCookie()
	if sc == nil {
		s.fail(callback.ErrorKindProtocolViolation, "INIT-ACK missing state cookie")
		return
	}

	s.peerVerificationTag = v.InitiateTag
	s.peerInitialTSN = v.InitialTSN
	s.haveInitialTSN = true

	peerCaps := parseCapabilities(v.Parameters)
	s.applyNegotiated(peerCaps)

	s.txQ.SetInitialTSN(s.localInitialTSN)
	s.reasm.SetInitialTSN(v.InitialTSN)

	s.pendingCookie = append([]byte(nil), sc.Cookie...)
	s.tInit.Stop()
	s.state = StateCookieEchoed
	s.sendControl(s.peerVerificationTag, &chunk.CookieEcho{Cookie: s.pendingCookie})
	s.tCookie.Start()
}

func (s *Socket) handleCookieEcho(peerTag uint32, v *chunk.CookieEcho) {
	d, err := verifyCookie(s.cookieSecret, s.nowMs(), v.Cookie)
	if err != nil {
		s.fail(callback.ErrorKindProtocolViolation, "invalid state cookie: %v", err)
		return
	}

	wasEstablished := s.state == StateEstablished

	s.localVerificationTag = d.LocalTag
	s.peerVerificationTag = d.PeerTag
	s.localInitialTSN = d.LocalInitialTSN
	s.peerInitialTSN = d.PeerInitialTSN
	s.haveInitialTSN = true

	if wasEstablished {
		s.sendQ.Reset()
		s.txQ.Reset()
		s.reset.Reset()
		s.reasm = reassembly.New(reassembly.Options{
			MaxBufferedBytes: s.opts.MaxReceiverWindow,
			DelayedAckMaxMs:  s.opts.DelayedAckMaxMs,
		})
		s.fragBase = make(map[fragKey]uint32)
		s.pendingUnordered = make(map[fragKey][]pendingFragment)
		s.ssnUnwrap = make(map[uint16]*ssnState)
		s.cb.OnConnectionRestarted()
	}

	s.txQ.SetInitialTSN(s.localInitialTSN)
	s.reasm.SetInitialTSN(s.peerInitialTSN)

	s.state = StateEstablished
	s.sendControl(s.peerVerificationTag, &chunk.CookieAck{})
	s.tHeartbeat.Start()
	if !wasEstablished {
		s.cb.OnConnected()
	}
}

func (s *Socket) handleCookieAck() {
	if s.state != StateCookieEchoed {
		return
	}
	s.tCookie.Stop()
	s.state = StateEstablished
	s.tHeartbeat.Start()
	s.cb.OnConnected()
}
