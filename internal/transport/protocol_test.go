package transport

import "testing"

func TestParseEnvelopeOp(t *testing.T) {
	env, err := ParseEnvelope([]byte(`{"op":"hello","version":"1"}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if env.Kind() != "hello" {
		t.Fatalf("expected kind hello, got %q", env.Kind())
	}
}

func TestParseEnvelopeLegacyType(t *testing.T) {
	env, err := ParseEnvelope([]byte(`{"type":"ping","timestamp":123}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if env.Kind() != "ping" {
		t.Fatalf("expected kind ping, got %q", env.Kind())
	}
}

func TestParseEnvelopeInvalidJSON(t *testing.T) {
	_, err := ParseEnvelope([]byte(`not json`))
	if err == nil {
		t.Fatal("expected error for invalid JSON")
	}
}

func TestBinaryFrameRoundTrip(t *testing.T) {
	frame := BinaryFrame{
		StreamID:  "stream-abc",
		Sequence:  42,
		Timestamp: 1700000000123,
		PCM:       []byte{1, 2, 3, 4, 5, 6},
	}

	encoded := EncodeBinaryFrame(frame)
	decoded, err := DecodeBinaryFrame(encoded)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if decoded.StreamID != frame.StreamID || decoded.Sequence != frame.Sequence || decoded.Timestamp != frame.Timestamp {
		t.Fatalf("round trip mismatch: %+v vs %+v", decoded, frame)
	}
	if string(decoded.PCM) != string(frame.PCM) {
		t.Fatalf("PCM mismatch: %v vs %v", decoded.PCM, frame.PCM)
	}
}

func TestDecodeBinaryFrameTooShort(t *testing.T) {
	_, err := DecodeBinaryFrame([]byte{1, 2})
	if err == nil {
		t.Fatal("expected error for too-short frame")
	}
}

func TestDecodeBinaryFrameTruncated(t *testing.T) {
	frame := BinaryFrame{StreamID: "abc", Sequence: 1, Timestamp: 1, PCM: []byte{1, 2}}
	encoded := EncodeBinaryFrame(frame)
	_, err := DecodeBinaryFrame(encoded[:len(encoded)-10])
	if err == nil {
		t.Fatal("expected error for truncated frame")
	}
}
