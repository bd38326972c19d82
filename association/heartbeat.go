package association

import (
	"github.com/ossrs/go-dcsctp/callback"
	"github.com/ossrs/go-dcsctp/chunk"
	"github.com/ossrs/go-dcsctp/wire"
)

// encodeHeartbeatInfo packs a random nonce and the local send timestamp into
// a HEARTBEAT chunk's opaque Info field, so the echoed HEARTBEAT-ACK can be
// matched back to the outstanding probe and yield an RTT sample, per
// spec.md §4.6.
func encodeHeartbeatInfo(nonce []byte, sentAtMs int64) []byte {
	info := make([]byte, 0, len(nonce)+8)
	info = wire.PutUint64(info, uint64(sentAtMs))
	info = append(info, nonce...)
	return info
}

func decodeHeartbeatInfo(info []byte) (nonce []byte, sentAtMs int64, ok bool) {
	if len(info) < 8 {
		return nil, 0, false
	}
	ts, err := wire.ReadUint64(info)
	if err != nil {
		return nil, 0, false
	}
	return info[8:], int64(ts), true
}

// onHeartbeatExpiry fires every heartbeat_interval_ms while Established: if
// the previous probe never got a HEARTBEAT-ACK the failure counter advances
// and, past MaxRetransmissions, the association aborts (spec.md §4.6's
// "path failure" rule); otherwise it sends a fresh HEARTBEAT. Per
// SPEC_FULL.md's Open Question decision, the next interval is lengthened by
// the current smoothed RTT when HeartbeatIntervalIncludeRTT is set, so probes
// don't pile up on a slow path.
func (s *Socket) onHeartbeatExpiry() (int, bool) {
	if s.state != StateEstablished {
		return 0, false
	}
	if s.heartbeatOutstanding {
		s.heartbeatFailures++
		if s.opts.MaxRetransmissions >= 0 && s.heartbeatFailures > s.opts.MaxRetransmissions {
			s.fail(callback.ErrorKindTooManyRetries, "heartbeat failure limit exceeded")
			s.finishClose()
			return 0, false
		}
	}

	nonce := wire.PutUint32(nil, s.cb.GetRandomInt(0, 0xFFFFFFFF))
	s.heartbeatNonce = nonce
	s.heartbeatOutstanding = true
	sentAtMs := s.nowMs()
	s.sendControl(s.peerVerificationTag, &chunk.Heartbeat{Info: encodeHeartbeatInfo(nonce, sentAtMs)})

	interval := s.opts.HeartbeatIntervalMs
	if s.opts.HeartbeatIntervalIncludeRTT {
		interval += s.txQ.SRTTMs()
	}
	return interval, true
}
