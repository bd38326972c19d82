package cause

import (
	"bytes"
	"testing"
)

func roundTrip(t *testing.T, c Cause) Cause {
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
	return got
}

func TestInvalidStreamIdentifierRoundTrip(t *testing.T) {
	want := &InvalidStreamIdentifier{StreamID: 9}
	got := roundTrip(t, want).(*InvalidStreamIdentifier)
	if got.StreamID != want.StreamID {
		t.Errorf("expect %v actual %v", want.StreamID, got.StreamID)
	}
}

func TestOutOfResourceRoundTrip(t *testing.T) {
	got := roundTrip(t, &OutOfResource{})
	if _, ok := got.(*OutOfResource); !ok {
		t.Errorf("expect *OutOfResource actual %T", got)
	}
}

func TestUnrecognizedChunkTypeRoundTrip(t *testing.T) {
	want := &UnrecognizedChunkType{Chunk: []byte{1, 2, 3}}
	got := roundTrip(t, want).(*UnrecognizedChunkType)
	if !bytes.Equal(got.Chunk, want.Chunk) {
		t.Errorf("expect %v actual %v", want.Chunk, got.Chunk)
	}
}

func TestProtocolViolationRoundTrip(t *testing.T) {
	want := &ProtocolViolation{Reason: "data before cookie-ack"}
	got := roundTrip(t, want).(*ProtocolViolation)
	if got.Reason != want.Reason {
		t.Errorf("expect %v actual %v", want.Reason, got.Reason)
	}
}

func TestUserInitiatedAbortRoundTrip(t *testing.T) {
	want := &UserInitiatedAbort{Reason: "bye"}
	got := roundTrip(t, want).(*UserInitiatedAbort)
	if got.Reason != want.Reason {
		t.Errorf("expect %v actual %v", want.Reason, got.Reason)
	}
}

func TestRestartOfAssociationWithNewAddressesRoundTrip(t *testing.T) {
	want := &RestartOfAssociationWithNewAddresses{Raw: []byte{1, 2, 3, 4}}
	got := roundTrip(t, want).(*RestartOfAssociationWithNewAddresses)
	if !bytes.Equal(got.Raw, want.Raw) {
		t.Errorf("expect %v actual %v", want.Raw, got.Raw)
	}
}

func TestCodeString(t *testing.T) {
	pvs := []struct {
		c    Code
		want string
	}{
		{CodeInvalidStreamIdentifier, "InvalidStreamIdentifier"},
		{CodeOutOfResource, "OutOfResource"},
		{CodeUnrecognizedChunkType, "UnrecognizedChunkType"},
		{CodeProtocolViolation, "ProtocolViolation"},
		{CodeUserInitiatedAbort, "UserInitiatedAbort"},
		{CodeRestartOfAssociationWithNewAddresses, "RestartOfAssociationWithNewAddresses"},
	}
	for _, pv := range pvs {
		if v := pv.c.String(); v != pv.want {
			t.Errorf("%v expect %v actual %v", pv.c, pv.want, v)
		}
	}
}

func TestParseAllEncodeAll(t *testing.T) {
	causes := []Cause{
		&InvalidStreamIdentifier{StreamID: 1},
		&OutOfResource{},
		&ProtocolViolation{Reason: "x"},
	}
	enc, err := EncodeAll(causes)
	if err != nil {
		t.Fatalf("EncodeAll failed: %v", err)
	}
	got, err := ParseAll(enc)
	if err != nil {
		t.Fatalf("ParseAll failed: %v", err)
	}
	if len(got) != len(causes) {
		t.Fatalf("expect %d causes actual %d", len(causes), len(got))
	}
	for i := range causes {
		if got[i].Code() != causes[i].Code() {
			t.Errorf("cause %d: expect code %v actual %v", i, causes[i].Code(), got[i].Code())
		}
	}
}

func TestUnknownCauseSkipped(t *testing.T) {
	c := &Unknown{CodeValue: 0xC000, Value: []byte{5, 6}}
	enc, err := Encode(c)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	got, _, err := Parse(enc)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	u, ok := got.(*Unknown)
	if !ok {
		t.Fatalf("expect *Unknown actual %T", got)
	}
	if u.Code() != 0xC000 {
		t.Errorf("expect code 0xC000 actual %#x", u.Code())
	}
}

func TestTruncatedBufferFails(t *testing.T) {
	if _, _, err := Parse([]byte{0, 1}); err == nil {
		t.Errorf("expect error for truncated header")
	}
}
