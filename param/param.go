// The param package codes the TLV parameters carried inside INIT, INIT-ACK,
// RE-CONFIG and a few other chunks. It follows the same Discovery-then-
// per-type-Marshal/Unmarshal idiom amf0 uses for its tagged variants: a
// leading 16-bit type acts as the marker, dispatched in Parse.
package param

import (
	"fmt"

	"github.com/ossrs/go-dcsctp/wire"
)

// Type is the 16-bit parameter type identifier.
type Type uint16

const (
	TypeHeartbeatInfo           Type = 1
	TypeStateCookie             Type = 7
	TypeOutgoingSSNResetRequest Type = 13
	TypeReconfigResponse        Type = 16
	TypeSupportedExtensions     Type = 0x8008
	TypeForwardTSNSupported     Type = 0xC000
	TypeZeroChecksumAcceptable  Type = 0x8001
)

func (t Type) String() string {
	switch t {
	case TypeHeartbeatInfo:
		return "HeartbeatInfo"
	case TypeStateCookie:
		return "StateCookie"
	case TypeOutgoingSSNResetRequest:
		return "OutgoingSSNResetRequest"
	case TypeReconfigResponse:
		return "ReconfigResponse"
	case TypeSupportedExtensions:
		return "SupportedExtensions"
	case TypeForwardTSNSupported:
		return "ForwardTSNSupported"
	case TypeZeroChecksumAcceptable:
		return "ZeroChecksumAcceptable"
	default:
		return fmt.Sprintf("Unknown(0x%04x)", uint16(t))
	}
}

// Parameter is the common interface every parameter variant implements.
type Parameter interface {
	// Type returns the wire type constant for this variant.
	Type() Type
	// Marshal returns the TLV encoding (header + value), unpadded.
	Marshal() ([]byte, error)
	// unmarshal populates the variant from a value (header already consumed).
	unmarshal(value []byte) error
}

// header is the 4-byte parameter TLV header: Type(2) Length(2), length
// includes the header and excludes padding.
type header struct {
	typ    Type
	length int
}

func readHeader(b []byte) (header, error) {
	if len(b) < 4 {
		return header{}, wire.ErrTooShort
	}
	t, _ := wire.ReadUint16(b)
	l, _ := wire.ReadUint16(b[2:])
	return header{typ: Type(t), length: int(l)}, nil
}

func writeHeader(typ Type, valueLen int) []byte {
	b := make([]byte, 0, 4)
	b = wire.PutUint16(b, uint16(typ))
	b = wire.PutUint16(b, uint16(4+valueLen))
	return b
}

// Encode serializes p as Type|Length|Value, padded to a 4-byte boundary (the
// padding bytes themselves are not included in the returned length field but
// are appended to the returned byte slice so callers can concatenate
// multiple parameters back-to-back).
func Encode(p Parameter) ([]byte, error) {
	b, err := p.Marshal()
	if err != nil {
		return nil, err
	}
	pad := wire.Pad4(len(b))
	return wire.PadBytes(b, pad), nil
}

// Parse reads a single parameter TLV (with any trailing padding) from b and
// returns the parameter plus the number of bytes consumed including padding.
// Unknown types are classified per the high-two-bits rule; recognized
// parameters are fully validated.
func Parse(b []byte) (Parameter, int, error) {
	h, err := readHeader(b)
	if err != nil {
		return nil, 0, err
	}
	if h.length < 4 || h.length > len(b) {
		return nil, 0, wire.ErrBadAlignment
	}
	value := b[4:h.length]

	var p Parameter
	switch h.typ {
	case TypeHeartbeatInfo:
		p = &HeartbeatInfo{}
	case TypeStateCookie:
		p = &StateCookie{}
	case TypeOutgoingSSNResetRequest:
		p = &OutgoingSSNResetRequest{}
	case TypeReconfigResponse:
		p = &ReconfigResponse{}
	case TypeSupportedExtensions:
		p = &SupportedExtensions{}
	case TypeForwardTSNSupported:
		p = &ForwardTSNSupported{}
	case TypeZeroChecksumAcceptable:
		p = &ZeroChecksumAcceptable{}
	default:
		switch wire.ClassifyUnknownType(uint16(h.typ)) {
		case wire.ActionRejectPacket:
			return nil, 0, fmt.Errorf("dcsctp/param: unknown mandatory type %v rejects packet", h.typ)
		case wire.ActionReturnError:
			return nil, 0, fmt.Errorf("dcsctp/param: unknown type %v requires error response", h.typ)
		default:
			p = &Unknown{TypeValue: h.typ, Value: append([]byte(nil), value...)}
		}
	}

	if u, ok := p.(*Unknown); ok {
		consumed := wire.RoundUp4(h.length)
		if consumed > len(b) {
			return nil, 0, wire.ErrTooShort
		}
		if err := wire.CheckPadding(b[h.length:consumed], consumed-h.length); err != nil {
			return nil, 0, err
		}
		return u, consumed, nil
	}

	if err := p.unmarshal(value); err != nil {
		return nil, 0, err
	}

	consumed := wire.RoundUp4(h.length)
	if consumed > len(b) {
		return nil, 0, wire.ErrTooShort
	}
	if err := wire.CheckPadding(b[h.length:consumed], consumed-h.length); err != nil {
		return nil, 0, err
	}
	return p, consumed, nil
}

// ParseAll parses a back-to-back sequence of parameters filling exactly
// body (no trailing bytes allowed other than padding already consumed per
// parameter).
func ParseAll(body []byte) ([]Parameter, error) {
	var out []Parameter
	for len(body) > 0 {
		p, n, err := Parse(body)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
		body = body[n:]
	}
	return out, nil
}

// EncodeAll concatenates the padded encodings of params in order.
func EncodeAll(params []Parameter) ([]byte, error) {
	var out []byte
	for _, p := range params {
		b, err := Encode(p)
		if err != nil {
			return nil, err
		}
		out = append(out, b...)
	}
	return out, nil
}

// Unknown carries the raw value of a parameter type that wasn't recognized
// but whose high bits said to skip it silently.
type Unknown struct {
	TypeValue Type
	Value     []byte
}

func (u *Unknown) Type() Type { return u.TypeValue }
func (u *Unknown) Marshal() ([]byte, error) {
	b := writeHeader(u.TypeValue, len(u.Value))
	return append(b, u.Value...), nil
}
func (u *Unknown) unmarshal(value []byte) error {
	u.Value = append([]byte(nil), value...)
	return nil
}
