package param

import (
	"github.com/ossrs/go-dcsctp/wire"
)

// HeartbeatInfo carries the opaque nonce + sender timestamp a HEARTBEAT
// chunk sends and a HEARTBEAT-ACK echoes back unchanged, per spec.md §4.8.
type HeartbeatInfo struct {
	Info []byte
}

func (v *HeartbeatInfo) Type() Type { return TypeHeartbeatInfo }

func (v *HeartbeatInfo) Marshal() ([]byte, error) {
	b := writeHeader(TypeHeartbeatInfo, len(v.Info))
	return append(b, v.Info...), nil
}

func (v *HeartbeatInfo) unmarshal(value []byte) error {
	v.Info = append([]byte(nil), value...)
	return nil
}

// StateCookie is the opaque, signed blob INIT-ACK carries and COOKIE-ECHO
// echoes back, per spec.md §4.8. Its internal structure (signature, creation
// time, proposed parameters) is owned by the association package; here it
// is an opaque byte string.
type StateCookie struct {
	Cookie []byte
}

func (v *StateCookie) Type() Type { return TypeStateCookie }

func (v *StateCookie) Marshal() ([]byte, error) {
	b := writeHeader(TypeStateCookie, len(v.Cookie))
	return append(b, v.Cookie...), nil
}

func (v *StateCookie) unmarshal(value []byte) error {
	v.Cookie = append([]byte(nil), value...)
	return nil
}

// SupportedExtensions lists chunk type ids the sender understands, used to
// negotiate RE-CONFIG / I-DATA / FORWARD-TSN support during the handshake.
type SupportedExtensions struct {
	ChunkTypes []uint8
}

func (v *SupportedExtensions) Type() Type { return TypeSupportedExtensions }

func (v *SupportedExtensions) Marshal() ([]byte, error) {
	b := writeHeader(TypeSupportedExtensions, len(v.ChunkTypes))
	return append(b, v.ChunkTypes...), nil
}

func (v *SupportedExtensions) unmarshal(value []byte) error {
	v.ChunkTypes = append([]uint8(nil), value...)
	return nil
}

// ForwardTSNSupported is an empty-valued marker parameter (RFC 3758)
// indicating partial reliability / Forward-TSN support.
type ForwardTSNSupported struct{}

func (v *ForwardTSNSupported) Type() Type { return TypeForwardTSNSupported }

func (v *ForwardTSNSupported) Marshal() ([]byte, error) {
	return writeHeader(TypeForwardTSNSupported, 0), nil
}

func (v *ForwardTSNSupported) unmarshal(value []byte) error {
	if len(value) != 0 {
		return wire.ErrBadAlignment
	}
	return nil
}

// ZeroChecksumAcceptable negotiates that the sender will accept packets with
// a zero CRC32c field from a peer using the named method, per
// original_source's zero_checksum_acceptable_chunk_parameter.h.
type ZeroChecksumAcceptable struct {
	// MethodID identifies the error-detection method the peer may use
	// instead of CRC32c (0 = none negotiated beyond "none required").
	MethodID uint32
}

func (v *ZeroChecksumAcceptable) Type() Type { return TypeZeroChecksumAcceptable }

func (v *ZeroChecksumAcceptable) Marshal() ([]byte, error) {
	b := writeHeader(TypeZeroChecksumAcceptable, 4)
	return wire.PutUint32(b, v.MethodID), nil
}

func (v *ZeroChecksumAcceptable) unmarshal(value []byte) error {
	m, err := wire.ReadUint32(value)
	if err != nil {
		return err
	}
	v.MethodID = m
	return nil
}

// OutgoingSSNResetRequest is the RFC 6525 "Outgoing SSN Reset Request
// Parameter" a RE-CONFIG chunk uses to ask the peer to reset one or more
// outgoing streams.
type OutgoingSSNResetRequest struct {
	ReconfigRequestSeqNum  uint32
	ReconfigResponseSeqNum uint32
	SenderLastAssignedTSN  uint32
	StreamIDs              []uint16
}

func (v *OutgoingSSNResetRequest) Type() Type { return TypeOutgoingSSNResetRequest }

func (v *OutgoingSSNResetRequest) Marshal() ([]byte, error) {
	valueLen := 12 + 2*len(v.StreamIDs)
	b := writeHeader(TypeOutgoingSSNResetRequest, valueLen)
	b = wire.PutUint32(b, v.ReconfigRequestSeqNum)
	b = wire.PutUint32(b, v.ReconfigResponseSeqNum)
	b = wire.PutUint32(b, v.SenderLastAssignedTSN)
	for _, id := range v.StreamIDs {
		b = wire.PutUint16(b, id)
	}
	return b, nil
}

func (v *OutgoingSSNResetRequest) unmarshal(value []byte) error {
	if len(value) < 12 {
		return wire.ErrTooShort
	}
	v.ReconfigRequestSeqNum, _ = wire.ReadUint32(value)
	v.ReconfigResponseSeqNum, _ = wire.ReadUint32(value[4:])
	v.SenderLastAssignedTSN, _ = wire.ReadUint32(value[8:])

	rest := value[12:]
	if len(rest)%2 != 0 {
		return wire.ErrBadAlignment
	}
	v.StreamIDs = v.StreamIDs[:0]
	for len(rest) > 0 {
		id, _ := wire.ReadUint16(rest)
		v.StreamIDs = append(v.StreamIDs, id)
		rest = rest[2:]
	}
	return nil
}

// ReconfigResult is the result code carried in a Re-configuration Response
// Parameter, per RFC 6525 §4.3 and spec.md §4.7.
type ReconfigResult uint32

const (
	ReconfigResultSuccess ReconfigResult = iota
	ReconfigResultInProgress
	ReconfigResultDenied
	ReconfigResultError
)

func (r ReconfigResult) String() string {
	switch r {
	case ReconfigResultSuccess:
		return "Success"
	case ReconfigResultInProgress:
		return "InProgress"
	case ReconfigResultDenied:
		return "Denied"
	default:
		return "Error"
	}
}

// ReconfigResponse is the RFC 6525 "Re-configuration Response Parameter".
type ReconfigResponse struct {
	ReconfigResponseSeqNum uint32
	Result                 ReconfigResult
}

func (v *ReconfigResponse) Type() Type { return TypeReconfigResponse }

func (v *ReconfigResponse) Marshal() ([]byte, error) {
	b := writeHeader(TypeReconfigResponse, 8)
	b = wire.PutUint32(b, v.ReconfigResponseSeqNum)
	b = wire.PutUint32(b, uint32(v.Result))
	return b, nil
}

func (v *ReconfigResponse) unmarshal(value []byte) error {
	if len(value) < 8 {
		return wire.ErrTooShort
	}
	v.ReconfigResponseSeqNum, _ = wire.ReadUint32(value)
	result, _ := wire.ReadUint32(value[4:])
	v.Result = ReconfigResult(result)
	return nil
}
