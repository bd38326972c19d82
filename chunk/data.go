package chunk

import "github.com/ossrs/go-dcsctp/wire"

// Flag bits shared by DATA and I-DATA, per spec.md §3 DataChunk invariant
// (exactly one fragment per message carries IsBeginning, exactly one
// carries IsEnd). ImmediateAck is a dcsctp-local extension bit (spec.md §9
// "immediate-ack ... leave its generation as optional").
const (
	flagEnd          uint8 = 1 << 0
	flagBeginning    uint8 = 1 << 1
	flagUnordered    uint8 = 1 << 2
	flagImmediateAck uint8 = 1 << 3
)

// Data is the classic (non-interleaved) RFC 4960 DATA chunk. Ordering uses
// (StreamID, SSN); fragments of one message share a TSN-ordered run but only
// the first/last carry IsBeginning/IsEnd.
type Data struct {
	TSN          uint32
	StreamID     uint16
	SSN          uint16
	PPID         uint32
	Payload      []byte
	Unordered    bool
	IsBeginning  bool
	IsEnd        bool
	ImmediateAck bool
}

func (d *Data) Type() Type { return TypeData }

func (d *Data) Flags() uint8 {
	var f uint8
	if d.IsEnd {
		f |= flagEnd
	}
	if d.IsBeginning {
		f |= flagBeginning
	}
	if d.Unordered {
		f |= flagUnordered
	}
	if d.ImmediateAck {
		f |= flagImmediateAck
	}
	return f
}

func (d *Data) MarshalBody() ([]byte, error) {
	b := make([]byte, 0, 12+len(d.Payload))
	b = wire.PutUint32(b, d.TSN)
	b = wire.PutUint16(b, d.StreamID)
	b = wire.PutUint16(b, d.SSN)
	b = wire.PutUint32(b, d.PPID)
	b = append(b, d.Payload...)
	return b, nil
}

func unmarshalData(h header, value []byte) (Chunk, error) {
	if len(value) < 12 {
		return nil, wire.ErrTooShort
	}
	d := &Data{
		Unordered:    h.flags&flagUnordered != 0,
		IsBeginning:  h.flags&flagBeginning != 0,
		IsEnd:        h.flags&flagEnd != 0,
		ImmediateAck: h.flags&flagImmediateAck != 0,
	}
	d.TSN, _ = wire.ReadUint32(value)
	d.StreamID, _ = wire.ReadUint16(value[4:])
	d.SSN, _ = wire.ReadUint16(value[6:])
	d.PPID, _ = wire.ReadUint32(value[8:])
	d.Payload = append([]byte(nil), value[12:]...)
	return d, nil
}

// IData is the RFC 8260 interleaving-capable DATA variant, keyed by
// (StreamID, MID) with an explicit FSN for fragment ordering within a
// message. PPID is only meaningful when IsBeginning; FSN is only meaningful
// otherwise (the two share the same wire slot per RFC 8260).
type IData struct {
	TSN          uint32
	StreamID     uint16
	MID          uint32
	PPID         uint32
	FSN          uint32
	Payload      []byte
	Unordered    bool
	IsBeginning  bool
	IsEnd        bool
	ImmediateAck bool
}

func (d *IData) Type() Type { return TypeIData }

func (d *IData) Flags() uint8 {
	var f uint8
	if d.IsEnd {
		f |= flagEnd
	}
	if d.IsBeginning {
		f |= flagBeginning
	}
	if d.Unordered {
		f |= flagUnordered
	}
	if d.ImmediateAck {
		f |= flagImmediateAck
	}
	return f
}

func (d *IData) MarshalBody() ([]byte, error) {
	b := make([]byte, 0, 16+len(d.Payload))
	b = wire.PutUint32(b, d.TSN)
	b = wire.PutUint16(b, d.StreamID)
	b = wire.PutUint16(b, 0) // reserved
	b = wire.PutUint32(b, d.MID)
	if d.IsBeginning {
		b = wire.PutUint32(b, d.PPID)
	} else {
		b = wire.PutUint32(b, d.FSN)
	}
	b = append(b, d.Payload...)
	return b, nil
}

func unmarshalIData(h header, value []byte) (Chunk, error) {
	if len(value) < 16 {
		return nil, wire.ErrTooShort
	}
	d := &IData{
		Unordered:    h.flags&flagUnordered != 0,
		IsBeginning:  h.flags&flagBeginning != 0,
		IsEnd:        h.flags&flagEnd != 0,
		ImmediateAck: h.flags&flagImmediateAck != 0,
	}
	d.TSN, _ = wire.ReadUint32(value)
	d.StreamID, _ = wire.ReadUint16(value[4:])
	// value[6:8] reserved, ignored.
	d.MID, _ = wire.ReadUint32(value[8:])
	slot, _ := wire.ReadUint32(value[12:])
	if d.IsBeginning {
		d.PPID = slot
	} else {
		d.FSN = slot
	}
	d.Payload = append([]byte(nil), value[16:]...)
	return d, nil
}
