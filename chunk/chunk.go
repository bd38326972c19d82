// The chunk package codes the TLV chunks that make up an SCTP packet body:
// DATA, I-DATA, INIT, INIT-ACK, SACK, HEARTBEAT(-ACK), ABORT, SHUTDOWN(-ACK/
// -COMPLETE), ERROR, COOKIE-ECHO/-ACK, RE-CONFIG and (I-)FORWARD-TSN.
//
// Each concrete type implements Chunk: a closed, tagged variant in the same
// shape as amf0.Amf0 (a Marker-style Type() plus Marshal/unmarshal), so
// Parse can dispatch off the leading type byte the way amf0.Discovery
// dispatches off its leading marker byte.
package chunk

import (
	"fmt"

	"github.com/ossrs/go-dcsctp/wire"
)

// Type is the 8-bit chunk type identifier. Numeric values match RFC 4960 /
// RFC 6525 / RFC 8260, preserved verbatim per spec.md §4.1.
type Type uint8

const (
	TypeData             Type = 0
	TypeInit             Type = 1
	TypeInitAck          Type = 2
	TypeSack              Type = 3
	TypeHeartbeat        Type = 4
	TypeHeartbeatAck     Type = 5
	TypeAbort            Type = 6
	TypeShutdown         Type = 7
	TypeShutdownAck      Type = 8
	TypeError            Type = 9
	TypeCookieEcho       Type = 10
	TypeCookieAck        Type = 11
	TypeShutdownComplete Type = 14
	TypeReConfig         Type = 130
	TypeForwardTSN       Type = 192
	TypeIData            Type = 64
	TypeIForwardTSN      Type = 194
)

func (t Type) String() string {
	switch t {
	case TypeData:
		return "DATA"
	case TypeInit:
		return "INIT"
	case TypeInitAck:
		return "INIT-ACK"
	case TypeSack:
		return "SACK"
	case TypeHeartbeat:
		return "HEARTBEAT"
	case TypeHeartbeatAck:
		return "HEARTBEAT-ACK"
	case TypeAbort:
		return "ABORT"
	case TypeShutdown:
		return "SHUTDOWN"
	case TypeShutdownAck:
		return "SHUTDOWN-ACK"
	case TypeError:
		return "ERROR"
	case TypeCookieEcho:
		return "COOKIE-ECHO"
	case TypeCookieAck:
		return "COOKIE-ACK"
	case TypeShutdownComplete:
		return "SHUTDOWN-COMPLETE"
	case TypeReConfig:
		return "RE-CONFIG"
	case TypeForwardTSN:
		return "FORWARD-TSN"
	case TypeIData:
		return "I-DATA"
	case TypeIForwardTSN:
		return "I-FORWARD-TSN"
	default:
		return fmt.Sprintf("Unknown(%d)", uint8(t))
	}
}

// Chunk is the common interface every chunk variant implements.
type Chunk interface {
	// Type returns the wire type constant for this variant.
	Type() Type
	// Flags returns the 8-bit flags field for this variant.
	Flags() uint8
	// MarshalBody returns just the chunk's value bytes (header is added by Encode).
	MarshalBody() ([]byte, error)
}

// header is the common 4-byte chunk header: Type(1) Flags(1) Length(2),
// length includes the header and excludes padding.
type header struct {
	typ    Type
	flags  uint8
	length int
}

func readHeader(b []byte) (header, error) {
	if len(b) < 4 {
		return header{}, wire.ErrTooShort
	}
	l, _ := wire.ReadUint16(b[2:])
	return header{typ: Type(b[0]), flags: b[1], length: int(l)}, nil
}

// Encode serializes c as Type|Flags|Length|Body, padded to a 4-byte
// boundary.
func Encode(c Chunk) ([]byte, error) {
	body, err := c.MarshalBody()
	if err != nil {
		return nil, err
	}
	out := make([]byte, 4, 4+len(body)+3)
	out[0] = byte(c.Type())
	out[1] = c.Flags()
	out = wire.PutUint16(out[:2], uint16(4+len(body)))
	out = append(out, body...)
	return wire.PadBytes(out, wire.Pad4(len(out))), nil
}

// unmarshalFunc builds an empty chunk of the matching type and fills it in
// from header+value.
type unmarshalFunc func(h header, value []byte) (Chunk, error)

var registry = map[Type]unmarshalFunc{
	TypeData:             unmarshalData,
	TypeIData:            unmarshalIData,
	TypeInit:             unmarshalInit,
	TypeInitAck:          unmarshalInitAck,
	TypeSack:              unmarshalSack,
	TypeHeartbeat:        unmarshalHeartbeat,
	TypeHeartbeatAck:     unmarshalHeartbeatAck,
	TypeAbort:            unmarshalAbort,
	TypeShutdown:         unmarshalShutdown,
	TypeShutdownAck:      unmarshalShutdownAck,
	TypeError:            unmarshalError,
	TypeCookieEcho:       unmarshalCookieEcho,
	TypeCookieAck:        unmarshalCookieAck,
	TypeShutdownComplete: unmarshalShutdownComplete,
	TypeReConfig:         unmarshalReConfig,
	TypeForwardTSN:       unmarshalForwardTSN,
	TypeIForwardTSN:      unmarshalIForwardTSN,
}

// Parse reads a single chunk (with trailing padding) from b and returns it
// plus the number of bytes consumed. A nil Chunk with a nil error means the
// chunk's high bits said "skip silently" and the caller should just advance
// by the returned count.
func Parse(b []byte) (Chunk, int, error) {
	h, err := readHeader(b)
	if err != nil {
		return nil, 0, err
	}
	if h.length < 4 || h.length > len(b) {
		return nil, 0, wire.ErrBadAlignment
	}
	value := b[4:h.length]
	consumed := wire.RoundUp4(h.length)
	if consumed > len(b) {
		return nil, 0, wire.ErrTooShort
	}
	if err := wire.CheckPadding(b[h.length:consumed], consumed-h.length); err != nil {
		return nil, 0, err
	}

	fn, ok := registry[h.typ]
	if !ok {
		switch wire.ClassifyUnknownChunkType(uint8(h.typ)) {
		case wire.ActionRejectPacket:
			return nil, 0, fmt.Errorf("dcsctp/chunk: unknown mandatory chunk type %v rejects packet", h.typ)
		case wire.ActionReturnError:
			return nil, 0, &UnknownChunkError{TypeValue: h.typ, Raw: append([]byte(nil), b[:consumed]...)}
		default:
			return nil, consumed, nil
		}
	}

	c, err := fn(h, value)
	if err != nil {
		return nil, 0, fmt.Errorf("dcsctp/chunk: parse %v: %w", h.typ, err)
	}
	return c, consumed, nil
}

// ParseAll parses a back-to-back sequence of chunks filling body.
func ParseAll(body []byte) ([]Chunk, error) {
	var out []Chunk
	for len(body) > 0 {
		c, n, err := Parse(body)
		if err != nil {
			return nil, err
		}
		if c != nil {
			out = append(out, c)
		}
		body = body[n:]
	}
	return out, nil
}

// UnknownChunkError is returned by Parse when an unrecognized chunk type's
// high bits demand an ERROR response (rather than silent rejection or
// silent skip); the caller is expected to send an ERROR chunk with an
// UnrecognizedChunkType cause wrapping Raw.
type UnknownChunkError struct {
	TypeValue Type
	Raw       []byte
}

func (e *UnknownChunkError) Error() string {
	return fmt.Sprintf("dcsctp/chunk: unrecognized chunk type %v requires error response", e.TypeValue)
}
