package chunk

import "github.com/ossrs/go-dcsctp/wire"

// StreamSequence is one (stream, SSN) skip entry in a classic FORWARD-TSN
// chunk, per RFC 3758 §3.2.
type StreamSequence struct {
	StreamID uint16
	SSN      uint16
}

// ForwardTSN tells the peer to advance its cumulative ack point past
// abandoned messages, skipping the listed per-stream sequence numbers, per
// spec.md §6 (partial reliability).
type ForwardTSN struct {
	NewCumulativeTSN uint32
	Streams          []StreamSequence
}

func (v *ForwardTSN) Type() Type    { return TypeForwardTSN }
func (v *ForwardTSN) Flags() uint8 { return 0 }

func (v *ForwardTSN) MarshalBody() ([]byte, error) {
	b := make([]byte, 0, 4+4*len(v.Streams))
	b = wire.PutUint32(b, v.NewCumulativeTSN)
	for _, s := range v.Streams {
		b = wire.PutUint16(b, s.StreamID)
		b = wire.PutUint16(b, s.SSN)
	}
	return b, nil
}

func unmarshalForwardTSN(h header, value []byte) (Chunk, error) {
	if len(value) < 4 {
		return nil, wire.ErrTooShort
	}
	v := &ForwardTSN{}
	v.NewCumulativeTSN, _ = wire.ReadUint32(value)
	rest := value[4:]
	if len(rest)%4 != 0 {
		return nil, wire.ErrBadAlignment
	}
	for len(rest) > 0 {
		id, _ := wire.ReadUint16(rest)
		ssn, _ := wire.ReadUint16(rest[2:])
		v.Streams = append(v.Streams, StreamSequence{StreamID: id, SSN: ssn})
		rest = rest[4:]
	}
	return v, nil
}

// streamMIDFlagUnordered marks a StreamMID entry as belonging to an
// unordered message, per RFC 8260 §3.
const streamMIDFlagUnordered uint16 = 1 << 0

// StreamMID is one (stream, MID) skip entry in an I-FORWARD-TSN chunk, per
// RFC 8260 §3.
type StreamMID struct {
	StreamID  uint16
	Unordered bool
	MID       uint32
}

// IForwardTSN is the interleaving-capable variant of ForwardTSN, keyed by
// MID instead of SSN.
type IForwardTSN struct {
	NewCumulativeTSN uint32
	Streams          []StreamMID
}

func (v *IForwardTSN) Type() Type    { return TypeIForwardTSN }
func (v *IForwardTSN) Flags() uint8 { return 0 }

func (v *IForwardTSN) MarshalBody() ([]byte, error) {
	b := make([]byte, 0, 4+8*len(v.Streams))
	b = wire.PutUint32(b, v.NewCumulativeTSN)
	for _, s := range v.Streams {
		b = wire.PutUint16(b, s.StreamID)
		var flags uint16
		if s.Unordered {
			flags |= streamMIDFlagUnordered
		}
		b = wire.PutUint16(b, flags)
		b = wire.PutUint32(b, s.MID)
	}
	return b, nil
}

func unmarshalIForwardTSN(h header, value []byte) (Chunk, error) {
	if len(value) < 4 {
		return nil, wire.ErrTooShort
	}
	v := &IForwardTSN{}
	v.NewCumulativeTSN, _ = wire.ReadUint32(value)
	rest := value[4:]
	if len(rest)%8 != 0 {
		return nil, wire.ErrBadAlignment
	}
	for len(rest) > 0 {
		id, _ := wire.ReadUint16(rest)
		flags, _ := wire.ReadUint16(rest[2:])
		mid, _ := wire.ReadUint32(rest[4:])
		v.Streams = append(v.Streams, StreamMID{
			StreamID:  id,
			Unordered: flags&streamMIDFlagUnordered != 0,
			MID:       mid,
		})
		rest = rest[8:]
	}
	return v, nil
}
