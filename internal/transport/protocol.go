package transport

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
)

// Envelope is the minimal shape every inbound JSON message shares: either
// an `op` or a legacy `type` field selects the message kind
// (spec.md §6: "Accepted forms: {op:\"hello\", ...} or the legacy
// {type:\"hello\", ...}").
type Envelope struct {
	Op   string          `json:"op,omitempty"`
	Type string          `json:"type,omitempty"`
	Raw  json.RawMessage `json:"-"`
}

// Kind returns whichever of op/type was populated, op taking precedence.
func (e Envelope) Kind() string {
	if e.Op != "" {
		return e.Op
	}
	return e.Type
}

// ParseEnvelope decodes the outer shape of a client JSON message without
// committing to a concrete payload type, so Session can dispatch by Kind().
func ParseEnvelope(data []byte) (Envelope, error) {
	var e Envelope
	if err := json.Unmarshal(data, &e); err != nil {
		return Envelope{}, fmt.Errorf("transport: invalid message: %w", err)
	}
	e.Raw = data
	return e, nil
}

// Hello is the handshake message (spec.md §4.1).
type Hello struct {
	Version      string   `json:"version"`
	StreamID     string   `json:"stream_id,omitempty"`
	Device       string   `json:"device,omitempty"`
	Capabilities []string `json:"capabilities"`
}

// Features is the negotiated capability set returned in Ready.
type Features struct {
	BinaryAudio        bool `json:"binary_audio"`
	InterimTranscripts bool `json:"interim_transcripts"`
	VAD                bool `json:"vad"`
}

// Ready acknowledges a successful handshake.
type Ready struct {
	Op       string   `json:"op"`
	Features Features `json:"features"`
}

// StartAudioStream begins a new audio stream.
type StartAudioStream struct {
	StreamID string `json:"stream_id"`
}

// AudioChunk is one base64-encoded PCM16 chunk over the JSON path.
type AudioChunk struct {
	StreamID  string `json:"stream_id"`
	Chunk     string `json:"chunk"`
	Sequence  int64  `json:"sequence"`
	Timestamp int64  `json:"timestamp"`
}

// EndAudioStream finalizes a stream.
type EndAudioStream struct {
	StreamID string `json:"stream_id"`
}

// TextInput bypasses STT with direct text.
type TextInput struct {
	Content string `json:"content"`
}

// Ping carries a client liveness timestamp.
type Ping struct {
	Timestamp int64 `json:"timestamp"`
}

// ErrorMessage is the server->client error shape (spec.md §6): kinds are
// unauthorized, stt_failed, tts_failed, routing_failed, invalid_message,
// backpressure.
type ErrorMessage struct {
	Op      string `json:"op"`
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

const (
	ErrKindUnauthorized   = "unauthorized"
	ErrKindSTTFailed      = "stt_failed"
	ErrKindTTSFailed      = "tts_failed"
	ErrKindRoutingFailed  = "routing_failed"
	ErrKindInvalidMessage = "invalid_message"
	ErrKindBackpressure   = "backpressure"
)

// NewError builds an ErrorMessage with op "error".
func NewError(kind, message string) ErrorMessage {
	return ErrorMessage{Op: "error", Kind: kind, Message: message}
}

// TTSChunk is one audio chunk of a staged sequence.
type TTSChunk struct {
	Op         string `json:"op"`
	SequenceID string `json:"sequence_id"`
	Index      int    `json:"index"`
	Total      int    `json:"total"`
	Engine     string `json:"engine"`
	Text       string `json:"text"`
	Audio      string `json:"audio,omitempty"`
	Success    bool   `json:"success"`
}

// TTSSequenceEnd terminates a sequence; always emitted exactly once per
// sequence (spec.md §4.6).
type TTSSequenceEnd struct {
	Op         string `json:"op"`
	SequenceID string `json:"sequence_id"`
}

// Response carries the plain text of a reply; it is sent before the reply's
// TTS sequence.
type Response struct {
	Op      string `json:"op"`
	Content string `json:"content"`
}

// frameHeaderLen is the fixed portion of the v2 binary frame header
// preceding the stream id and PCM payload: u32 stream_id_len + u32
// sequence + u64 timestamp_ms.
const frameHeaderLen = 4 + 4 + 8

// BinaryFrame is the decoded v2 binary audio ingress frame (spec.md §6):
// [u32 LE stream_id_len][stream_id][u32 LE sequence][u64 LE timestamp_ms][PCM16 payload].
type BinaryFrame struct {
	StreamID  string
	Sequence  uint32
	Timestamp uint64
	PCM       []byte
}

// DecodeBinaryFrame parses a v2 binary frame, little-endian throughout.
func DecodeBinaryFrame(data []byte) (BinaryFrame, error) {
	if len(data) < 4 {
		return BinaryFrame{}, fmt.Errorf("transport: binary frame too short")
	}
	idLen := binary.LittleEndian.Uint32(data[0:4])
	offset := 4 + int(idLen)
	if len(data) < offset+frameHeaderLen-4 {
		return BinaryFrame{}, fmt.Errorf("transport: binary frame truncated")
	}

	streamID := string(data[4:offset])
	sequence := binary.LittleEndian.Uint32(data[offset : offset+4])
	timestamp := binary.LittleEndian.Uint64(data[offset+4 : offset+12])
	pcm := data[offset+12:]

	return BinaryFrame{StreamID: streamID, Sequence: sequence, Timestamp: timestamp, PCM: pcm}, nil
}

// EncodeBinaryFrame is the inverse of DecodeBinaryFrame, used by tests and
// any future binary egress.
func EncodeBinaryFrame(f BinaryFrame) []byte {
	buf := make([]byte, 4+len(f.StreamID)+4+8+len(f.PCM))
	binary.LittleEndian.PutUint32(buf[0:4], uint32(len(f.StreamID)))
	offset := 4 + len(f.StreamID)
	copy(buf[4:offset], f.StreamID)
	binary.LittleEndian.PutUint32(buf[offset:offset+4], f.Sequence)
	binary.LittleEndian.PutUint64(buf[offset+4:offset+12], f.Timestamp)
	copy(buf[offset+12:], f.PCM)
	return buf
}
