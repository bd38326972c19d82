package chunk

import (
	"github.com/ossrs/go-dcsctp/cause"
	"github.com/ossrs/go-dcsctp/param"
	"github.com/ossrs/go-dcsctp/wire"
)

// flagTBit marks ABORT/SHUTDOWN-COMPLETE packets whose verification tag
// reflects the peer's tag rather than the locally issued one, per spec.md
// §4.1.
const flagTBit uint8 = 1 << 0

// Init is the INIT chunk: the active side's handshake opener.
type Init struct {
	InitiateTag          uint32
	AdvertisedRwnd       uint32
	NumOutboundStreams   uint16
	NumInboundStreams    uint16
	InitialTSN           uint32
	Parameters           []param.Parameter
}

func (v *Init) Type() Type    { return TypeInit }
func (v *Init) Flags() uint8 { return 0 }

func (v *Init) MarshalBody() ([]byte, error) {
	b := make([]byte, 0, 16)
	b = wire.PutUint32(b, v.InitiateTag)
	b = wire.PutUint32(b, v.AdvertisedRwnd)
	b = wire.PutUint16(b, v.NumOutboundStreams)
	b = wire.PutUint16(b, v.NumInboundStreams)
	b = wire.PutUint32(b, v.InitialTSN)
	params, err := param.EncodeAll(v.Parameters)
	if err != nil {
		return nil, err
	}
	return append(b, params...), nil
}

func unmarshalInit(h header, value []byte) (Chunk, error) {
	if len(value) < 16 {
		return nil, wire.ErrTooShort
	}
	v := &Init{}
	v.InitiateTag, _ = wire.ReadUint32(value)
	v.AdvertisedRwnd, _ = wire.ReadUint32(value[4:])
	v.NumOutboundStreams, _ = wire.ReadUint16(value[8:])
	v.NumInboundStreams, _ = wire.ReadUint16(value[10:])
	v.InitialTSN, _ = wire.ReadUint32(value[12:])
	params, err := param.ParseAll(value[16:])
	if err != nil {
		return nil, err
	}
	v.Parameters = params
	return v, nil
}

// InitAck is the INIT-ACK chunk: identical layout to INIT, but mandatorily
// carries a StateCookie parameter.
type InitAck struct {
	InitiateTag        uint32
	AdvertisedRwnd      uint32
	NumOutboundStreams  uint16
	NumInboundStreams   uint16
	InitialTSN          uint32
	Parameters          []param.Parameter
}

func (v *InitAck) Type() Type    { return TypeInitAck }
func (v *InitAck) Flags() uint8 { return 0 }

func (v *InitAck) MarshalBody() ([]byte, error) {
	b := make([]byte, 0, 16)
	b = wire.PutUint32(b, v.InitiateTag)
	b = wire.PutUint32(b, v.AdvertisedRwnd)
	b = wire.PutUint16(b, v.NumOutboundStreams)
	b = wire.PutUint16(b, v.NumInboundStreams)
	b = wire.PutUint32(b, v.InitialTSN)
	params, err := param.EncodeAll(v.Parameters)
	if err != nil {
		return nil, err
	}
	return append(b, params...), nil
}

func unmarshalInitAck(h header, value []byte) (Chunk, error) {
	if len(value) < 16 {
		return nil, wire.ErrTooShort
	}
	v := &InitAck{}
	v.InitiateTag, _ = wire.ReadUint32(value)
	v.AdvertisedRwnd, _ = wire.ReadUint32(value[4:])
	v.NumOutboundStreams, _ = wire.ReadUint16(value[8:])
	v.NumInboundStreams, _ = wire.ReadUint16(value[10:])
	v.InitialTSN, _ = wire.ReadUint32(value[12:])
	params, err := param.ParseAll(value[16:])
	if err != nil {
		return nil, err
	}
	v.Parameters = params
	return v, nil
}

// StateCookie returns the mandatory state cookie parameter, or nil if
// missing (a protocol violation the caller should react to).
func (v *InitAck) StateCookie() *param.StateCookie {
	for _, p := range v.Parameters {
		if sc, ok := p.(*param.StateCookie); ok {
			return sc
		}
	}
	return nil
}

// GapAckBlock is one (start, end) TSN-offset-from-cumulative-ack range of
// received but non-contiguous chunks, per spec.md GLOSSARY.
type GapAckBlock struct {
	Start uint16
	End   uint16
}

// Sack is the SACK chunk.
type Sack struct {
	CumulativeTSNAck uint32
	AdvertisedRwnd   uint32
	GapAckBlocks     []GapAckBlock
	DuplicateTSNs    []uint32
}

func (v *Sack) Type() Type    { return TypeSack }
func (v *Sack) Flags() uint8 { return 0 }

func (v *Sack) MarshalBody() ([]byte, error) {
	b := make([]byte, 0, 12+4*len(v.GapAckBlocks)+4*len(v.DuplicateTSNs))
	b = wire.PutUint32(b, v.CumulativeTSNAck)
	b = wire.PutUint32(b, v.AdvertisedRwnd)
	b = wire.PutUint16(b, uint16(len(v.GapAckBlocks)))
	b = wire.PutUint16(b, uint16(len(v.DuplicateTSNs)))
	for _, g := range v.GapAckBlocks {
		b = wire.PutUint16(b, g.Start)
		b = wire.PutUint16(b, g.End)
	}
	for _, d := range v.DuplicateTSNs {
		b = wire.PutUint32(b, d)
	}
	return b, nil
}

func unmarshalSack(h header, value []byte) (Chunk, error) {
	if len(value) < 12 {
		return nil, wire.ErrTooShort
	}
	v := &Sack{}
	v.CumulativeTSNAck, _ = wire.ReadUint32(value)
	v.AdvertisedRwnd, _ = wire.ReadUint32(value[4:])
	numGap, _ := wire.ReadUint16(value[8:])
	numDup, _ := wire.ReadUint16(value[10:])

	rest := value[12:]
	need := int(numGap)*4 + int(numDup)*4
	if len(rest) < need {
		return nil, wire.ErrTooShort
	}
	for i := 0; i < int(numGap); i++ {
		start, _ := wire.ReadUint16(rest)
		end, _ := wire.ReadUint16(rest[2:])
		v.GapAckBlocks = append(v.GapAckBlocks, GapAckBlock{Start: start, End: end})
		rest = rest[4:]
	}
	for i := 0; i < int(numDup); i++ {
		d, _ := wire.ReadUint32(rest)
		v.DuplicateTSNs = append(v.DuplicateTSNs, d)
		rest = rest[4:]
	}
	return v, nil
}

// Heartbeat carries a HeartbeatInfo parameter with a nonce + sender
// monotonic time, per spec.md §4.8.
type Heartbeat struct {
	Info []byte
}

func (v *Heartbeat) Type() Type    { return TypeHeartbeat }
func (v *Heartbeat) Flags() uint8 { return 0 }

func (v *Heartbeat) MarshalBody() ([]byte, error) {
	return param.Encode(&param.HeartbeatInfo{Info: v.Info})
}

func unmarshalHeartbeat(h header, value []byte) (Chunk, error) {
	p, _, err := param.Parse(value)
	if err != nil {
		return nil, err
	}
	info, ok := p.(*param.HeartbeatInfo)
	if !ok {
		return nil, wire.ErrBadAlignment
	}
	return &Heartbeat{Info: info.Info}, nil
}

// HeartbeatAck echoes back the HeartbeatInfo unchanged.
type HeartbeatAck struct {
	Info []byte
}

func (v *HeartbeatAck) Type() Type    { return TypeHeartbeatAck }
func (v *HeartbeatAck) Flags() uint8 { return 0 }

func (v *HeartbeatAck) MarshalBody() ([]byte, error) {
	return param.Encode(&param.HeartbeatInfo{Info: v.Info})
}

func unmarshalHeartbeatAck(h header, value []byte) (Chunk, error) {
	p, _, err := param.Parse(value)
	if err != nil {
		return nil, err
	}
	info, ok := p.(*param.HeartbeatInfo)
	if !ok {
		return nil, wire.ErrBadAlignment
	}
	return &HeartbeatAck{Info: info.Info}, nil
}

// Abort terminates the association abruptly, optionally reflecting the
// peer's verification tag (ReflectedTag) and carrying error causes.
type Abort struct {
	ReflectedTag bool
	Causes       []cause.Cause
}

func (v *Abort) Type() Type { return TypeAbort }
func (v *Abort) Flags() uint8 {
	if v.ReflectedTag {
		return flagTBit
	}
	return 0
}

func (v *Abort) MarshalBody() ([]byte, error) {
	return cause.EncodeAll(v.Causes)
}

func unmarshalAbort(h header, value []byte) (Chunk, error) {
	causes, err := cause.ParseAll(value)
	if err != nil {
		return nil, err
	}
	return &Abort{ReflectedTag: h.flags&flagTBit != 0, Causes: causes}, nil
}

// Shutdown begins the graceful three-way shutdown, advertising the sender's
// cumulative TSN ack so the peer can retire any remaining inflight data.
type Shutdown struct {
	CumulativeTSNAck uint32
}

func (v *Shutdown) Type() Type    { return TypeShutdown }
func (v *Shutdown) Flags() uint8 { return 0 }

func (v *Shutdown) MarshalBody() ([]byte, error) {
	return wire.PutUint32(nil, v.CumulativeTSNAck), nil
}

func unmarshalShutdown(h header, value []byte) (Chunk, error) {
	ack, err := wire.ReadUint32(value)
	if err != nil {
		return nil, err
	}
	return &Shutdown{CumulativeTSNAck: ack}, nil
}

// ShutdownAck has no body.
type ShutdownAck struct{}

func (v *ShutdownAck) Type() Type              { return TypeShutdownAck }
func (v *ShutdownAck) Flags() uint8            { return 0 }
func (v *ShutdownAck) MarshalBody() ([]byte, error) { return nil, nil }

func unmarshalShutdownAck(h header, value []byte) (Chunk, error) {
	return &ShutdownAck{}, nil
}

// Error reports a non-fatal issue while keeping the association viable.
type Error struct {
	Causes []cause.Cause
}

func (v *Error) Type() Type    { return TypeError }
func (v *Error) Flags() uint8 { return 0 }

func (v *Error) MarshalBody() ([]byte, error) {
	return cause.EncodeAll(v.Causes)
}

func unmarshalError(h header, value []byte) (Chunk, error) {
	causes, err := cause.ParseAll(value)
	if err != nil {
		return nil, err
	}
	return &Error{Causes: causes}, nil
}

// CookieEcho echoes the opaque state cookie back to the handshake
// responder, who validates it without keeping INIT state.
type CookieEcho struct {
	Cookie []byte
}

func (v *CookieEcho) Type() Type    { return TypeCookieEcho }
func (v *CookieEcho) Flags() uint8 { return 0 }

func (v *CookieEcho) MarshalBody() ([]byte, error) {
	return append([]byte(nil), v.Cookie...), nil
}

func unmarshalCookieEcho(h header, value []byte) (Chunk, error) {
	return &CookieEcho{Cookie: append([]byte(nil), value...)}, nil
}

// CookieAck has no body.
type CookieAck struct{}

func (v *CookieAck) Type() Type              { return TypeCookieAck }
func (v *CookieAck) Flags() uint8            { return 0 }
func (v *CookieAck) MarshalBody() ([]byte, error) { return nil, nil }

func unmarshalCookieAck(h header, value []byte) (Chunk, error) {
	return &CookieAck{}, nil
}

// ShutdownComplete has no body and may reflect the peer's tag.
type ShutdownComplete struct {
	ReflectedTag bool
}

func (v *ShutdownComplete) Type() Type { return TypeShutdownComplete }
func (v *ShutdownComplete) Flags() uint8 {
	if v.ReflectedTag {
		return flagTBit
	}
	return 0
}
func (v *ShutdownComplete) MarshalBody() ([]byte, error) { return nil, nil }

func unmarshalShutdownComplete(h header, value []byte) (Chunk, error) {
	return &ShutdownComplete{ReflectedTag: h.flags&flagTBit != 0}, nil
}
