// Package audioingest implements spec.md §4.3: PCM16 chunk assembly,
// VAD-driven segmentation, and backpressure for one session's audio stream
// at a time.
package audioingest

import (
	"sync"
	"time"

	"github.com/lokutor-ai/lokutor-gateway/pkg/orchestrator"
)

// SampleRate is the fixed ingest sample rate (spec.md §3: "sample rate
// (fixed 16 kHz)").
const SampleRate = 16000

// State is the lifecycle state of one AudioStream (spec.md §3).
type State string

const (
	StateIdle        State = "idle"
	StateActive      State = "active"
	StateCompleted   State = "completed"
	StateTranscribed State = "transcribed"
	StateFailed      State = "failed"
)

// EndReason records why a stream finalized.
type EndReason string

const (
	EndExplicit EndReason = "explicit"
	EndVAD      EndReason = "vad_silence"
	EndDuration EndReason = "duration_bound"
	EndSession  EndReason = "session_closed"
)

// DefaultMaxDuration is the hard upper bound on accumulated stream duration
// before force-finalization (spec.md §3 default 30s).
const DefaultMaxDuration = 30 * time.Second

// DefaultSilenceWindow is the VAD silence window after which a stream with
// at least one voiced frame auto-finalizes (spec.md §4.3 default 1500ms).
const DefaultSilenceWindow = 1500 * time.Millisecond

// DefaultQueueDepth is the bounded per-stream inbound queue size (spec.md
// §4.3 default 100 frames).
const DefaultQueueDepth = 100

// Config tunes one Stream's ingest policy.
type Config struct {
	MaxDuration   time.Duration
	SilenceWindow time.Duration
	QueueDepth    int
	VADEnabled    bool
	VADThreshold  float64
}

// DefaultConfig returns spec.md's stated defaults.
func DefaultConfig() Config {
	return Config{
		MaxDuration:   DefaultMaxDuration,
		SilenceWindow: DefaultSilenceWindow,
		QueueDepth:    DefaultQueueDepth,
		VADEnabled:    true,
		VADThreshold:  0.02,
	}
}

// Stream is one ongoing speech input (spec.md §3 AudioStream).
type Stream struct {
	mu sync.Mutex

	StreamID string
	State    State

	cfg Config
	vad *orchestrator.RMSVAD

	lastSeq        int64
	haveSeq        bool
	buf            []byte
	startedAt      time.Time
	lastActivityAt time.Time
	voicedFrame    bool

	droppedFrames int64
	rejectedSeqs  int64
}

// NewStream creates an Idle-to-Active stream for streamID.
func NewStream(streamID string, cfg Config) *Stream {
	var vad *orchestrator.RMSVAD
	if cfg.VADEnabled {
		vad = orchestrator.NewRMSVAD(cfg.VADThreshold, cfg.SilenceWindow)
	}
	now := time.Now()
	return &Stream{
		StreamID:       streamID,
		State:          StateActive,
		cfg:            cfg,
		vad:            vad,
		startedAt:      now,
		lastActivityAt: now,
	}
}

// PushResult reports the outcome of one PushFrame call.
type PushResult struct {
	Accepted  bool
	Finalized bool
	EndReason EndReason
}

// PushFrame appends one PCM16 frame if its sequence is strictly greater than
// the last accepted sequence (spec.md §8 invariant 4: frame ordering).
// Returns whether the frame was accepted and whether it triggered
// finalization (VAD silence or duration bound).
func (s *Stream) PushFrame(seq int64, pcm []byte) PushResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.State != StateActive {
		return PushResult{}
	}

	if s.haveSeq && seq <= s.lastSeq {
		s.rejectedSeqs++
		return PushResult{}
	}

	s.lastSeq = seq
	s.haveSeq = true
	s.buf = append(s.buf, pcm...)
	now := time.Now()
	s.lastActivityAt = now

	if now.Sub(s.startedAt) >= s.cfg.MaxDuration {
		s.State = StateCompleted
		return PushResult{Accepted: true, Finalized: true, EndReason: EndDuration}
	}

	if s.vad != nil {
		event, _ := s.vad.Process(pcm)
		if event != nil {
			switch event.Type {
			case orchestrator.VADSpeechStart:
				s.voicedFrame = true
			case orchestrator.VADSpeechEnd:
				s.State = StateCompleted
				return PushResult{Accepted: true, Finalized: true, EndReason: EndVAD}
			}
		}
	}

	return PushResult{Accepted: true}
}

// Finalize explicitly completes the stream (spec.md §4.3 "Explicit end").
func (s *Stream) Finalize(reason EndReason) []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.State == StateActive {
		s.State = StateCompleted
	}
	return s.buf
}

// Buffer returns the immutable accumulated PCM16 buffer.
func (s *Stream) Buffer() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]byte, len(s.buf))
	copy(out, s.buf)
	return out
}

// DroppedFrames returns the count of frames dropped due to inbound queue
// overflow (incremented by Manager.PushFrame whenever Queue.Push drops a
// frame).
func (s *Stream) DroppedFrames() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.droppedFrames
}

// RejectedSequences returns the count of frames rejected for out-of-order
// sequence numbers.
func (s *Stream) RejectedSequences() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rejectedSeqs
}

func (s *Stream) incrementDropped() {
	s.mu.Lock()
	s.droppedFrames++
	s.mu.Unlock()
}

// IsActive reports whether the stream is still accepting frames.
func (s *Stream) IsActive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.State == StateActive
}

// Elapsed returns the time since the stream started.
func (s *Stream) Elapsed() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return time.Since(s.startedAt)
}
