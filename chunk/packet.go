package chunk

import (
	"fmt"

	"github.com/ossrs/go-dcsctp/wire"
)

// commonHeaderLen is the fixed 12-byte packet header: source port(2),
// destination port(2), verification tag(4), CRC32c(4).
const commonHeaderLen = 12

// CommonHeaderLen is the exported form of commonHeaderLen, for callers
// budgeting how many chunk bytes fit under an MTU.
const CommonHeaderLen = commonHeaderLen

// Packet is a full SCTP datagram: the common header plus a back-to-back
// sequence of chunks, per spec.md §4.1.
type Packet struct {
	SourcePort      uint16
	DestPort        uint16
	VerificationTag uint32
	Chunks          []Chunk
}

// EncodePacket serializes p with a CRC32c checksum computed over the whole
// packet with the checksum field zeroed. When zeroChecksum is true the
// checksum field is left at zero instead (used once a Zero-Checksum-
// Acceptable parameter has been negotiated with the peer).
func EncodePacket(p *Packet, zeroChecksum bool) ([]byte, error) {
	out := make([]byte, commonHeaderLen)
	out = wire.PutUint16(out[:0], p.SourcePort)
	out = wire.PutUint16(out, p.DestPort)
	out = wire.PutUint32(out, p.VerificationTag)
	out = wire.PutUint32(out, 0) // checksum placeholder

	for _, c := range p.Chunks {
		enc, err := Encode(c)
		if err != nil {
			return nil, err
		}
		out = append(out, enc...)
	}

	if !zeroChecksum {
		sum := wire.CRC32C(out)
		binaryPutUint32InPlace(out[8:12], sum)
	}
	return out, nil
}

func binaryPutUint32InPlace(dst []byte, v uint32) {
	dst[0] = byte(v >> 24)
	dst[1] = byte(v >> 16)
	dst[2] = byte(v >> 8)
	dst[3] = byte(v)
}

// DecodePacket parses the common header and every chunk in b. verifyChecksum
// controls whether the CRC32c field is validated (callers pass false when
// disable_checksum_verification is set or a Zero-Checksum-Acceptable
// parameter was negotiated and the field reads zero).
func DecodePacket(b []byte, verifyChecksum bool) (*Packet, error) {
	if len(b) < commonHeaderLen {
		return nil, wire.ErrTooShort
	}
	p := &Packet{}
	p.SourcePort, _ = wire.ReadUint16(b)
	p.DestPort, _ = wire.ReadUint16(b[2:])
	p.VerificationTag, _ = wire.ReadUint32(b[4:])
	checksum, _ := wire.ReadUint32(b[8:])

	if verifyChecksum {
		zeroed := append([]byte(nil), b...)
		binaryPutUint32InPlace(zeroed[8:12], 0)
		if want := wire.CRC32C(zeroed); want != checksum {
			return nil, fmt.Errorf("dcsctp/chunk: checksum mismatch: got %#x want %#x", checksum, want)
		}
	}

	chunks, err := ParseAll(b[commonHeaderLen:])
	if err != nil {
		return nil, err
	}
	p.Chunks = chunks
	return p, nil
}

// RequiresReflectedTag reports whether c is one of the two chunk types
// allowed to carry the peer's verification tag instead of the locally
// issued one (INIT always carries zero tag and is handled separately by the
// caller), per spec.md §4.1.
func RequiresReflectedTag(c Chunk) bool {
	switch c.Type() {
	case TypeAbort, TypeShutdownComplete:
		return true
	default:
		return false
	}
}
