package association

import (
	"github.com/ossrs/go-dcsctp/chunk"
	"github.com/ossrs/go-dcsctp/reassembly"
)

// scheduleSack reacts to a reassembly.AckDecision produced by HandleData or
// ApplyForwardTSN, per spec.md §4.6's delayed-ack policy.
func (s *Socket) scheduleSack(decision reassembly.AckDecision, delayMs int) {
	switch decision {
	case reassembly.AckImmediate:
		s.tDelayedAck.Stop()
		s.sendSack()
	case reassembly.AckDelayed:
		if delayMs > 0 {
			s.tDelayedAck.SetDurationMs(delayMs)
		}
		if !s.tDelayedAck.IsRunning() {
			s.tDelayedAck.Start()
		}
	}
}

func (s *Socket) onDelayedAckExpiry() (int, bool) {
	s.sendSack()
	s.tDelayedAck.Stop()
	return 0, false
}

func (s *Socket) sendSack() {
	var gapBlocks []chunk.GapAckBlock
	for _, g := range s.reasm.GapAckBlocks() {
		gapBlocks = append(gapBlocks, chunk.GapAckBlock{Start: g.Start, End: g.End})
	}
	sack := &chunk.Sack{
		CumulativeTSNAck: s.reasm.CumulativeTSN(),
		AdvertisedRwnd:   s.reasm.AdvertisedRwnd(),
		GapAckBlocks:     gapBlocks,
		DuplicateTSNs:    s.reasm.DuplicateTSNs(),
	}
	s.sendControl(s.peerVerificationTag, sack)
}
