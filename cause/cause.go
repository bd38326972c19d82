// The cause package codes the TLV error causes carried inside ABORT and
// ERROR chunks. Same marker-dispatch idiom as param and chunk.
package cause

import (
	"fmt"

	"github.com/ossrs/go-dcsctp/wire"
)

// Code is the 16-bit error-cause code.
type Code uint16

const (
	CodeInvalidStreamIdentifier                 Code = 1
	CodeOutOfResource                            Code = 4
	CodeUnrecognizedChunkType                    Code = 6
	CodeProtocolViolation                        Code = 13
	CodeUserInitiatedAbort                       Code = 12
	CodeRestartOfAssociationWithNewAddresses     Code = 11
)

func (c Code) String() string {
	switch c {
	case CodeInvalidStreamIdentifier:
		return "InvalidStreamIdentifier"
	case CodeOutOfResource:
		return "OutOfResource"
	case CodeUnrecognizedChunkType:
		return "UnrecognizedChunkType"
	case CodeProtocolViolation:
		return "ProtocolViolation"
	case CodeUserInitiatedAbort:
		return "UserInitiatedAbort"
	case CodeRestartOfAssociationWithNewAddresses:
		return "RestartOfAssociationWithNewAddresses"
	default:
		return fmt.Sprintf("Unknown(%d)", uint16(c))
	}
}

// Cause is the common interface every error-cause variant implements.
type Cause interface {
	Code() Code
	Marshal() ([]byte, error)
	unmarshal(value []byte) error
}

func writeHeader(code Code, valueLen int) []byte {
	b := make([]byte, 0, 4)
	b = wire.PutUint16(b, uint16(code))
	b = wire.PutUint16(b, uint16(4+valueLen))
	return b
}

// Parse reads a single error-cause TLV (with trailing padding) and returns
// it plus the number of bytes consumed.
func Parse(b []byte) (Cause, int, error) {
	if len(b) < 4 {
		return nil, 0, wire.ErrTooShort
	}
	codeVal, _ := wire.ReadUint16(b)
	length, _ := wire.ReadUint16(b[2:])
	code := Code(codeVal)
	if int(length) < 4 || int(length) > len(b) {
		return nil, 0, wire.ErrBadAlignment
	}
	value := b[4:length]

	var c Cause
	switch code {
	case CodeInvalidStreamIdentifier:
		c = &InvalidStreamIdentifier{}
	case CodeOutOfResource:
		c = &OutOfResource{}
	case CodeUnrecognizedChunkType:
		c = &UnrecognizedChunkType{}
	case CodeProtocolViolation:
		c = &ProtocolViolation{}
	case CodeUserInitiatedAbort:
		c = &UserInitiatedAbort{}
	case CodeRestartOfAssociationWithNewAddresses:
		c = &RestartOfAssociationWithNewAddresses{}
	default:
		switch wire.ClassifyUnknownType(codeVal) {
		case wire.ActionRejectPacket:
			return nil, 0, fmt.Errorf("dcsctp/cause: unknown mandatory code %v", code)
		default:
			c = &Unknown{CodeValue: code, Value: append([]byte(nil), value...)}
		}
	}

	if u, ok := c.(*Unknown); ok {
		consumed := wire.RoundUp4(int(length))
		if consumed > len(b) {
			return nil, 0, wire.ErrTooShort
		}
		if err := wire.CheckPadding(b[length:consumed], consumed-int(length)); err != nil {
			return nil, 0, err
		}
		return u, consumed, nil
	}

	if err := c.unmarshal(value); err != nil {
		return nil, 0, err
	}
	consumed := wire.RoundUp4(int(length))
	if consumed > len(b) {
		return nil, 0, wire.ErrTooShort
	}
	if err := wire.CheckPadding(b[length:consumed], consumed-int(length)); err != nil {
		return nil, 0, err
	}
	return c, consumed, nil
}

// ParseAll parses a back-to-back sequence of error causes filling body.
func ParseAll(body []byte) ([]Cause, error) {
	var out []Cause
	for len(body) > 0 {
		c, n, err := Parse(body)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
		body = body[n:]
	}
	return out, nil
}

// Encode serializes c as Code|Length|Value, padded to 4 bytes.
func Encode(c Cause) ([]byte, error) {
	b, err := c.Marshal()
	if err != nil {
		return nil, err
	}
	return wire.PadBytes(b, wire.Pad4(len(b))), nil
}

// EncodeAll concatenates the padded encodings of causes in order.
func EncodeAll(causes []Cause) ([]byte, error) {
	var out []byte
	for _, c := range causes {
		b, err := Encode(c)
		if err != nil {
			return nil, err
		}
		out = append(out, b...)
	}
	return out, nil
}

// Unknown carries the raw value of an unrecognized, skippable cause code.
type Unknown struct {
	CodeValue Code
	Value     []byte
}

func (u *Unknown) Code() Code { return u.CodeValue }
func (u *Unknown) Marshal() ([]byte, error) {
	b := writeHeader(u.CodeValue, len(u.Value))
	return append(b, u.Value...), nil
}
func (u *Unknown) unmarshal(value []byte) error {
	u.Value = append([]byte(nil), value...)
	return nil
}

// InvalidStreamIdentifier: the peer referenced a stream id outside the
// negotiated stream count.
type InvalidStreamIdentifier struct {
	StreamID uint16
}

func (v *InvalidStreamIdentifier) Code() Code { return CodeInvalidStreamIdentifier }
func (v *InvalidStreamIdentifier) Marshal() ([]byte, error) {
	b := writeHeader(CodeInvalidStreamIdentifier, 4)
	b = wire.PutUint16(b, v.StreamID)
	return wire.PutUint16(b, 0), nil
}
func (v *InvalidStreamIdentifier) unmarshal(value []byte) error {
	id, err := wire.ReadUint16(value)
	if err != nil {
		return err
	}
	v.StreamID = id
	return nil
}

// OutOfResource: sent with ABORT when the association exhausts a buffer
// limit, per spec.md §7.
type OutOfResource struct{}

func (v *OutOfResource) Code() Code                    { return CodeOutOfResource }
func (v *OutOfResource) Marshal() ([]byte, error)       { return writeHeader(CodeOutOfResource, 0), nil }
func (v *OutOfResource) unmarshal(value []byte) error {
	if len(value) != 0 {
		return wire.ErrBadAlignment
	}
	return nil
}

// UnrecognizedChunkType echoes back an unrecognized chunk whose high bits
// asked for an ERROR response.
type UnrecognizedChunkType struct {
	Chunk []byte
}

func (v *UnrecognizedChunkType) Code() Code { return CodeUnrecognizedChunkType }
func (v *UnrecognizedChunkType) Marshal() ([]byte, error) {
	b := writeHeader(CodeUnrecognizedChunkType, len(v.Chunk))
	return append(b, v.Chunk...), nil
}
func (v *UnrecognizedChunkType) unmarshal(value []byte) error {
	v.Chunk = append([]byte(nil), value...)
	return nil
}

// ProtocolViolation: sent with ABORT for a protocol-sequence violation
// (e.g. DATA before COOKIE-ACK), carrying a short human-readable reason.
type ProtocolViolation struct {
	Reason string
}

func (v *ProtocolViolation) Code() Code { return CodeProtocolViolation }
func (v *ProtocolViolation) Marshal() ([]byte, error) {
	b := writeHeader(CodeProtocolViolation, len(v.Reason))
	return append(b, []byte(v.Reason)...), nil
}
func (v *ProtocolViolation) unmarshal(value []byte) error {
	v.Reason = string(value)
	return nil
}

// UserInitiatedAbort carries the optional textual reason a client passed to
// Close()/Abort() (not currently surfaced in the public API but kept for
// wire compatibility with peers that send one).
type UserInitiatedAbort struct {
	Reason string
}

func (v *UserInitiatedAbort) Code() Code { return CodeUserInitiatedAbort }
func (v *UserInitiatedAbort) Marshal() ([]byte, error) {
	b := writeHeader(CodeUserInitiatedAbort, len(v.Reason))
	return append(b, []byte(v.Reason)...), nil
}
func (v *UserInitiatedAbort) unmarshal(value []byte) error {
	v.Reason = string(value)
	return nil
}

// RestartOfAssociationWithNewAddresses is logged informationally by the
// restart-detection path (no multihoming is implemented, so the address
// list itself is opaque here), grounded on
// original_source/net/dcsctp/packet/error_cause/restart_of_an_association_with_new_address_cause.cc.
type RestartOfAssociationWithNewAddresses struct {
	Raw []byte
}

func (v *RestartOfAssociationWithNewAddresses) Code() Code {
	return CodeRestartOfAssociationWithNewAddresses
}
func (v *RestartOfAssociationWithNewAddresses) Marshal() ([]byte, error) {
	b := writeHeader(CodeRestartOfAssociationWithNewAddresses, len(v.Raw))
	return append(b, v.Raw...), nil
}
func (v *RestartOfAssociationWithNewAddresses) unmarshal(value []byte) error {
	v.Raw = append([]byte(nil), value...)
	return nil
}
