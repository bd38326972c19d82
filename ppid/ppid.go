// Package ppid names the WebRTC data-channel payload protocol identifiers
// and implements the "empty message" substitution spec.md §3 requires: a
// zero-byte application payload is wire-encoded as a single zero byte under
// a dedicated empty-variant PPID so the peer can tell an empty message
// apart from a not-yet-fully-received one.
package ppid

// PPID is the 32-bit opaque payload protocol identifier carried by every
// DATA/I-DATA chunk.
type PPID uint32

// Well-known values, per the WebRTC data channel PPID registry (RFC 8832).
const (
	DCEP          PPID = 50
	String        PPID = 51
	BinaryPartial PPID = 52 // deprecated, kept for peer compatibility
	Binary        PPID = 53
	StringPartial PPID = 54 // deprecated, kept for peer compatibility
	StringEmpty   PPID = 56
	BinaryEmpty   PPID = 57
)

// ToEmpty returns the empty-message variant of p, and true if one is known.
// Only String and Binary have a registered empty counterpart; any other
// PPID paired with a zero-byte payload is sent unchanged (the one-byte
// filler still round-trips, but an unmapped PPID cannot be distinguished
// from a genuine one-byte payload on the wire -- see DESIGN.md).
func ToEmpty(p PPID) (PPID, bool) {
	switch p {
	case String:
		return StringEmpty, true
	case Binary:
		return BinaryEmpty, true
	default:
		return p, false
	}
}

// FromEmpty reverses ToEmpty: given a PPID observed on the wire, it reports
// the original PPID and whether the payload should be treated as empty.
func FromEmpty(p PPID) (PPID, bool) {
	switch p {
	case StringEmpty:
		return String, true
	case BinaryEmpty:
		return Binary, true
	default:
		return p, false
	}
}
