// The dcsctp wire package holds the bounds-checked big-endian primitives
// shared by the chunk, param and cause TLV codecs. It mirrors the role
// amf0's marker-dispatch helpers play for rtmp: a small, dependency-free
// layer that every typed wire unit is built on top of.
package wire

import (
	"encoding/binary"
	"errors"
	"hash/crc32"
)

// ErrTooShort is returned whenever a buffer ends before a mandatory field.
var ErrTooShort = errors.New("dcsctp/wire: buffer too short")

// ErrBadAlignment is returned when a TLV's padding isn't all-zero or its
// length claims more bytes than the enclosing container has left.
var ErrBadAlignment = errors.New("dcsctp/wire: bad TLV alignment or length")

// Pad4 returns the number of zero padding bytes needed to round n up to the
// next multiple of 4.
func Pad4(n int) int {
	return (4 - (n % 4)) % 4
}

// RoundUp4 rounds n up to the next multiple of 4.
func RoundUp4(n int) int {
	return n + Pad4(n)
}

// ReadUint16 reads a big-endian uint16 at offset 0, bounds-checked.
func ReadUint16(b []byte) (uint16, error) {
	if len(b) < 2 {
		return 0, ErrTooShort
	}
	return binary.BigEndian.Uint16(b), nil
}

// ReadUint32 reads a big-endian uint32 at offset 0, bounds-checked.
func ReadUint32(b []byte) (uint32, error) {
	if len(b) < 4 {
		return 0, ErrTooShort
	}
	return binary.BigEndian.Uint32(b), nil
}

// PutUint16 appends a big-endian uint16 to dst.
func PutUint16(dst []byte, v uint16) []byte {
	var tmp [2]byte
	binary.BigEndian.PutUint16(tmp[:], v)
	return append(dst, tmp[:]...)
}

// PutUint32 appends a big-endian uint32 to dst.
func PutUint32(dst []byte, v uint32) []byte {
	var tmp [4]byte
	binary.BigEndian.PutUint32(tmp[:], v)
	return append(dst, tmp[:]...)
}

// ReadUint64 reads a big-endian uint64 at offset 0, bounds-checked.
func ReadUint64(b []byte) (uint64, error) {
	if len(b) < 8 {
		return 0, ErrTooShort
	}
	return binary.BigEndian.Uint64(b), nil
}

// PutUint64 appends a big-endian uint64 to dst.
func PutUint64(dst []byte, v uint64) []byte {
	var tmp [8]byte
	binary.BigEndian.PutUint64(tmp[:], v)
	return append(dst, tmp[:]...)
}

// PadBytes appends n zero padding bytes to dst.
func PadBytes(dst []byte, n int) []byte {
	for i := 0; i < n; i++ {
		dst = append(dst, 0)
	}
	return dst
}

// CheckPadding verifies that the trailing n bytes of b are all zero, per the
// TLV discipline in spec.md §4.1 ("Variable-length payloads are followed by
// 0-3 zero padding bytes").
func CheckPadding(b []byte, n int) error {
	if len(b) < n {
		return ErrTooShort
	}
	for i := 0; i < n; i++ {
		if b[i] != 0 {
			return ErrBadAlignment
		}
	}
	return nil
}

// castagnoliTable is the standard CRC32c (Castagnoli) polynomial table used
// for the SCTP packet checksum.
var castagnoliTable = crc32.MakeTable(crc32.Castagnoli)

// CRC32C computes the Castagnoli CRC32 of data.
func CRC32C(data []byte) uint32 {
	return crc32.Checksum(data, castagnoliTable)
}

// TypeAction classifies how an unrecognized TLV type should be handled, per
// the high-two-bits discipline in spec.md §4.1.
type TypeAction int

const (
	// ActionRejectPacket: high bits 00 - reject the entire enclosing packet.
	ActionRejectPacket TypeAction = iota
	// ActionReturnError: high bits 01 - return an ERROR chunk/cause, keep processing.
	ActionReturnError
	// ActionSkip: high bits 10 or 11 - silently skip this TLV.
	ActionSkip
)

// ClassifyUnknownType inspects the high two bits of a 16-bit parameter or
// error-cause type id (or the single leading byte for chunk types, shifted
// into the same position) to decide the unknown-type policy.
func ClassifyUnknownType(typ uint16) TypeAction {
	switch typ >> 14 {
	case 0b00:
		return ActionRejectPacket
	case 0b01:
		return ActionReturnError
	default:
		return ActionSkip
	}
}

// ClassifyUnknownChunkType applies the same high-two-bits rule to an 8-bit
// chunk type.
func ClassifyUnknownChunkType(typ uint8) TypeAction {
	switch typ >> 6 {
	case 0b00:
		return ActionRejectPacket
	case 0b01:
		return ActionReturnError
	default:
		return ActionSkip
	}
}

// Serial32LessThan compares two 32-bit serial numbers (TSN, MID) per RFC
// 1982: a precedes b iff their unsigned difference, taken the short way
// around the ring, is positive and less than half the number space.
func Serial32LessThan(a, b uint32) bool {
	return a != b && (b-a) < (1<<31)
}

// Serial32LessOrEqual is Serial32LessThan or equality.
func Serial32LessOrEqual(a, b uint32) bool {
	return a == b || Serial32LessThan(a, b)
}

// Serial16LessThan is the 16-bit (SSN) analogue of Serial32LessThan.
func Serial16LessThan(a, b uint16) bool {
	return a != b && uint16(b-a) < (1<<15)
}

// Serial16LessOrEqual is Serial16LessThan or equality.
func Serial16LessOrEqual(a, b uint16) bool {
	return a == b || Serial16LessThan(a, b)
}
