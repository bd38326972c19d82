package chunk

import (
	"bytes"
	"testing"

	"github.com/ossrs/go-dcsctp/cause"
	"github.com/ossrs/go-dcsctp/param"
)

func roundTrip(t *testing.T, c Chunk) Chunk {
	t.Helper()
	enc, err := Encode(c)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	if len(enc)%4 != 0 {
		t.Errorf("encoded length %d not 4-byte aligned", len(enc))
	}
	got, n, err := Parse(enc)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if n != len(enc) {
		t.Errorf("Parse consumed %d expect %d", n, len(enc))
	}
	if got.Type() != c.Type() {
		t.Errorf("expect type %v actual %v", c.Type(), got.Type())
	}
	if got.Flags() != c.Flags() {
		t.Errorf("expect flags %#x actual %#x", c.Flags(), got.Flags())
	}
	return got
}

func TestDataRoundTrip(t *testing.T) {
	want := &Data{
		TSN:         7,
		StreamID:    3,
		SSN:         1,
		PPID:        42,
		Payload:     []byte("hello"),
		IsBeginning: true,
		IsEnd:       true,
	}
	got := roundTrip(t, want).(*Data)
	if got.TSN != want.TSN || got.StreamID != want.StreamID || got.SSN != want.SSN || got.PPID != want.PPID {
		t.Errorf("expect %+v actual %+v", want, got)
	}
	if !bytes.Equal(got.Payload, want.Payload) {
		t.Errorf("expect payload %v actual %v", want.Payload, got.Payload)
	}
}

func TestDataUnorderedImmediateAck(t *testing.T) {
	want := &Data{TSN: 1, Unordered: true, ImmediateAck: true, IsBeginning: true, IsEnd: true, Payload: []byte{1}}
	got := roundTrip(t, want).(*Data)
	if !got.Unordered || !got.ImmediateAck {
		t.Errorf("expect unordered+immediate-ack flags preserved, got %+v", got)
	}
}

func TestIDataBeginningCarriesPPID(t *testing.T) {
	want := &IData{TSN: 1, StreamID: 2, MID: 10, PPID: 99, IsBeginning: true, Payload: []byte("a")}
	got := roundTrip(t, want).(*IData)
	if got.PPID != want.PPID {
		t.Errorf("expect PPID %v actual %v", want.PPID, got.PPID)
	}
}

func TestIDataNonBeginningCarriesFSN(t *testing.T) {
	want := &IData{TSN: 2, StreamID: 2, MID: 10, FSN: 3, IsEnd: true, Payload: []byte("bcd")}
	got := roundTrip(t, want).(*IData)
	if got.FSN != want.FSN {
		t.Errorf("expect FSN %v actual %v", want.FSN, got.FSN)
	}
}

func TestInitRoundTrip(t *testing.T) {
	want := &Init{
		InitiateTag:        1234,
		AdvertisedRwnd:     65536,
		NumOutboundStreams: 10,
		NumInboundStreams:  10,
		InitialTSN:         5,
		Parameters:         []param.Parameter{&param.ForwardTSNSupported{}},
	}
	got := roundTrip(t, want).(*Init)
	if got.InitiateTag != want.InitiateTag || got.InitialTSN != want.InitialTSN {
		t.Errorf("expect %+v actual %+v", want, got)
	}
	if len(got.Parameters) != 1 {
		t.Fatalf("expect 1 parameter actual %d", len(got.Parameters))
	}
}

func TestInitAckStateCookie(t *testing.T) {
	want := &InitAck{
		InitiateTag:        1,
		AdvertisedRwnd:     2,
		NumOutboundStreams: 3,
		NumInboundStreams:  3,
		InitialTSN:         4,
		Parameters:         []param.Parameter{&param.StateCookie{Cookie: []byte("c")}},
	}
	got := roundTrip(t, want).(*InitAck)
	sc := got.StateCookie()
	if sc == nil {
		t.Fatalf("expect a state cookie")
	}
	if string(sc.Cookie) != "c" {
		t.Errorf("expect cookie %q actual %q", "c", sc.Cookie)
	}
}

func TestSackRoundTrip(t *testing.T) {
	want := &Sack{
		CumulativeTSNAck: 100,
		AdvertisedRwnd:   2000,
		GapAckBlocks:     []GapAckBlock{{Start: 2, End: 2}, {Start: 5, End: 7}},
		DuplicateTSNs:    []uint32{50, 60},
	}
	got := roundTrip(t, want).(*Sack)
	if got.CumulativeTSNAck != want.CumulativeTSNAck || got.AdvertisedRwnd != want.AdvertisedRwnd {
		t.Errorf("expect %+v actual %+v", want, got)
	}
	if len(got.GapAckBlocks) != 2 || len(got.DuplicateTSNs) != 2 {
		t.Fatalf("expect 2 gap blocks and 2 duplicates, got %+v", got)
	}
}

func TestHeartbeatRoundTrip(t *testing.T) {
	want := &Heartbeat{Info: []byte("nonce+time")}
	got := roundTrip(t, want).(*Heartbeat)
	if !bytes.Equal(got.Info, want.Info) {
		t.Errorf("expect %v actual %v", want.Info, got.Info)
	}
}

func TestHeartbeatAckRoundTrip(t *testing.T) {
	want := &HeartbeatAck{Info: []byte("echo")}
	got := roundTrip(t, want).(*HeartbeatAck)
	if !bytes.Equal(got.Info, want.Info) {
		t.Errorf("expect %v actual %v", want.Info, got.Info)
	}
}

func TestAbortRoundTrip(t *testing.T) {
	want := &Abort{
		ReflectedTag: true,
		Causes:       []cause.Cause{&cause.OutOfResource{}},
	}
	got := roundTrip(t, want).(*Abort)
	if !got.ReflectedTag {
		t.Errorf("expect reflected tag flag preserved")
	}
	if len(got.Causes) != 1 {
		t.Fatalf("expect 1 cause actual %d", len(got.Causes))
	}
}

func TestShutdownRoundTrip(t *testing.T) {
	want := &Shutdown{CumulativeTSNAck: 77}
	got := roundTrip(t, want).(*Shutdown)
	if got.CumulativeTSNAck != want.CumulativeTSNAck {
		t.Errorf("expect %v actual %v", want.CumulativeTSNAck, got.CumulativeTSNAck)
	}
}

func TestShutdownAckRoundTrip(t *testing.T) {
	roundTrip(t, &ShutdownAck{})
}

func TestErrorRoundTrip(t *testing.T) {
	want := &Error{Causes: []cause.Cause{&cause.ProtocolViolation{Reason: "bad"}}}
	got := roundTrip(t, want).(*Error)
	if len(got.Causes) != 1 {
		t.Fatalf("expect 1 cause actual %d", len(got.Causes))
	}
}

func TestCookieEchoRoundTrip(t *testing.T) {
	want := &CookieEcho{Cookie: []byte("state-cookie-bytes")}
	got := roundTrip(t, want).(*CookieEcho)
	if !bytes.Equal(got.Cookie, want.Cookie) {
		t.Errorf("expect %v actual %v", want.Cookie, got.Cookie)
	}
}

func TestCookieAckRoundTrip(t *testing.T) {
	roundTrip(t, &CookieAck{})
}

func TestShutdownCompleteRoundTrip(t *testing.T) {
	want := &ShutdownComplete{ReflectedTag: true}
	got := roundTrip(t, want).(*ShutdownComplete)
	if !got.ReflectedTag {
		t.Errorf("expect reflected tag flag preserved")
	}
}

func TestReConfigRoundTrip(t *testing.T) {
	want := &ReConfig{
		Parameters: []param.Parameter{
			&param.OutgoingSSNResetRequest{
				ReconfigRequestSeqNum: 1,
				StreamIDs:             []uint16{1, 2},
			},
		},
	}
	got := roundTrip(t, want).(*ReConfig)
	if len(got.Parameters) != 1 {
		t.Fatalf("expect 1 parameter actual %d", len(got.Parameters))
	}
}

func TestForwardTSNRoundTrip(t *testing.T) {
	want := &ForwardTSN{
		NewCumulativeTSN: 50,
		Streams:          []StreamSequence{{StreamID: 1, SSN: 2}, {StreamID: 3, SSN: 4}},
	}
	got := roundTrip(t, want).(*ForwardTSN)
	if got.NewCumulativeTSN != want.NewCumulativeTSN || len(got.Streams) != 2 {
		t.Errorf("expect %+v actual %+v", want, got)
	}
}

func TestIForwardTSNRoundTrip(t *testing.T) {
	want := &IForwardTSN{
		NewCumulativeTSN: 60,
		Streams:          []StreamMID{{StreamID: 1, Unordered: true, MID: 5}},
	}
	got := roundTrip(t, want).(*IForwardTSN)
	if len(got.Streams) != 1 || !got.Streams[0].Unordered || got.Streams[0].MID != 5 {
		t.Errorf("expect %+v actual %+v", want, got)
	}
}

func TestParseUnknownChunkTypeSkipped(t *testing.T) {
	// Type 200 (0xC8) has high bits 11 -> skip silently.
	b := []byte{200, 0, 0, 4}
	c, n, err := Parse(b)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if c != nil {
		t.Errorf("expect nil chunk for skipped unknown type")
	}
	if n != 4 {
		t.Errorf("expect 4 bytes consumed actual %d", n)
	}
}

func TestParseUnknownChunkTypeReturnsError(t *testing.T) {
	// Type 65 (0x41) has high bits 01 -> return an UnknownChunkError.
	b := []byte{65, 0, 0, 4}
	_, _, err := Parse(b)
	if err == nil {
		t.Fatalf("expect error for unrecognized chunk type")
	}
}

func TestParseUnknownChunkTypeRejectsPacket(t *testing.T) {
	// Type 20 (0x14) has high bits 00 -> reject the entire packet.
	b := []byte{20, 0, 0, 4}
	if _, _, err := Parse(b); err == nil {
		t.Errorf("expect error for mandatory unknown chunk type")
	}
}

func TestPacketRoundTrip(t *testing.T) {
	p := &Packet{
		SourcePort:      5000,
		DestPort:        5001,
		VerificationTag: 0xaabbccdd,
		Chunks: []Chunk{
			&Data{TSN: 1, StreamID: 0, SSN: 0, PPID: 51, IsBeginning: true, IsEnd: true, Payload: []byte("hi")},
		},
	}
	enc, err := EncodePacket(p, false)
	if err != nil {
		t.Fatalf("EncodePacket failed: %v", err)
	}
	got, err := DecodePacket(enc, true)
	if err != nil {
		t.Fatalf("DecodePacket failed: %v", err)
	}
	if got.SourcePort != p.SourcePort || got.DestPort != p.DestPort || got.VerificationTag != p.VerificationTag {
		t.Errorf("expect %+v actual %+v", p, got)
	}
	if len(got.Chunks) != 1 {
		t.Fatalf("expect 1 chunk actual %d", len(got.Chunks))
	}
}

func TestPacketChecksumRejectsBitFlip(t *testing.T) {
	p := &Packet{SourcePort: 1, DestPort: 2, VerificationTag: 3, Chunks: []Chunk{&CookieAck{}}}
	enc, err := EncodePacket(p, false)
	if err != nil {
		t.Fatalf("EncodePacket failed: %v", err)
	}
	enc[0] ^= 0xff
	if _, err := DecodePacket(enc, true); err == nil {
		t.Errorf("expect checksum mismatch after flipping a bit")
	}
}

func TestPacketZeroChecksumSkipsVerification(t *testing.T) {
	p := &Packet{SourcePort: 1, DestPort: 2, VerificationTag: 3, Chunks: []Chunk{&CookieAck{}}}
	enc, err := EncodePacket(p, true)
	if err != nil {
		t.Fatalf("EncodePacket failed: %v", err)
	}
	if _, err := DecodePacket(enc, false); err != nil {
		t.Errorf("expect zero checksum to be accepted when verification is skipped: %v", err)
	}
}

func TestRequiresReflectedTag(t *testing.T) {
	if !RequiresReflectedTag(&Abort{}) {
		t.Errorf("expect ABORT to allow a reflected tag")
	}
	if !RequiresReflectedTag(&ShutdownComplete{}) {
		t.Errorf("expect SHUTDOWN-COMPLETE to allow a reflected tag")
	}
	if RequiresReflectedTag(&Data{}) {
		t.Errorf("expect DATA to not allow a reflected tag")
	}
}
