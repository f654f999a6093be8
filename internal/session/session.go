// Package session implements the per-connection actor (spec.md §4.2):
// state machine, control/audio/text dispatch, and the handle registry for
// in-flight audio streams and TTS sequences. It generalizes the teacher's
// ManagedStream (pkg/orchestrator/managed_stream.go), a single-user local
// actor, into a multi-client, handle-addressed design per the Design
// Notes' "avoid back-reference cycles" guidance.
package session

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/lokutor-ai/lokutor-gateway/internal/metrics"
	"github.com/lokutor-ai/lokutor-gateway/pkg/orchestrator"
)

// State is the session lifecycle state (spec.md §4.2):
// Unauth -> Authed -> Ready -> (Streaming <-> Idle) -> Closed.
type State int

const (
	StateUnauth State = iota
	StateAuthed
	StateReady
	StateStreaming
	StateIdle
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateUnauth:
		return "unauth"
	case StateAuthed:
		return "authed"
	case StateReady:
		return "ready"
	case StateStreaming:
		return "streaming"
	case StateIdle:
		return "idle"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// protocolError is the kind x message sum type named in the Design Notes.
// newProtocolError has no callers: Session emits wire `error` messages
// through EmitError(kind, message) directly.
type protocolError struct {
	kind    string
	message string
}

func (e *protocolError) Error() string { return fmt.Sprintf("%s: %s", e.kind, e.message) }

func newProtocolError(kind, message string) *protocolError {
	return &protocolError{kind: kind, message: message}
}

// Emitter is the minimal outbound capability Session needs from its
// transport connection; internal/transport.Conn satisfies it.
type Emitter interface {
	Emit(msg interface{}, telemetry bool) error
}

// Dependencies bundles the collaborators a Session dispatches work to.
// Passed explicitly at construction per the Design Notes ("no ambient
// globals").
type Dependencies struct {
	Logger  orchestrator.Logger
	Metrics *metrics.Collector
}

// Session owns the lifecycle of one client connection.
type Session struct {
	id   string
	conn Emitter
	deps Dependencies

	mu    sync.Mutex
	state State

	streams   *streamRegistry
	sequences *sequenceRegistry

	conversation *orchestrator.ConversationSession

	latency latencyTracker

	minWordsToInterrupt int
	botSpeaking         bool
}

// New creates a Session in StateUnauth, bound to the given connection.
func New(conn Emitter, deps Dependencies) *Session {
	if deps.Logger == nil {
		deps.Logger = &orchestrator.NoOpLogger{}
	}
	id := uuid.NewString()
	if deps.Metrics != nil {
		deps.Metrics.ActiveSessions.Add(context.Background(), 1)
	}
	return &Session{
		id:                  id,
		conn:                conn,
		deps:                deps,
		state:               StateUnauth,
		streams:             newStreamRegistry(),
		sequences:           newSequenceRegistry(),
		conversation:        orchestrator.NewConversationSession(id),
		minWordsToInterrupt: 1,
	}
}

// ID returns the session's unique identifier.
func (s *Session) ID() string { return s.id }

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) setState(next State) {
	s.mu.Lock()
	s.state = next
	s.mu.Unlock()
}

// MarkReady transitions Unauth/Authed -> Ready, called once the transport
// handshake completes.
func (s *Session) MarkReady() {
	s.setState(StateReady)
}

// SetMinWordsToInterrupt configures the barge-in word-count threshold
// (supplemented feature, teacher's managed_stream.go countWords/
// MinWordsToInterrupt): short backchannel utterances while the bot is
// speaking don't trigger an interruption unless they meet this count.
func (s *Session) SetMinWordsToInterrupt(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n < 1 {
		n = 1
	}
	s.minWordsToInterrupt = n
}

// SetBotSpeaking records whether the bot is currently mid-utterance, used
// by ShouldInterrupt.
func (s *Session) SetBotSpeaking(speaking bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.botSpeaking = speaking
}

// ShouldInterrupt reports whether transcript should barge in over the
// bot's current speech, per the configured word-count threshold.
func (s *Session) ShouldInterrupt(transcript string) bool {
	s.mu.Lock()
	speaking := s.botSpeaking
	minWords := s.minWordsToInterrupt
	s.mu.Unlock()

	if !speaking {
		return true
	}
	return countWords(transcript) >= minWords
}

func countWords(text string) int {
	text = strings.TrimSpace(text)
	if text == "" {
		return 0
	}
	return len(strings.Fields(text))
}

// Conversation exposes the underlying per-session conversation context
// (teacher's ConversationSession, reused directly).
func (s *Session) Conversation() *orchestrator.ConversationSession {
	return s.conversation
}

// emit wraps conn.Emit, logging failures rather than propagating them —
// an outbound send failure closes itself out on the transport side.
func (s *Session) emit(msg interface{}, telemetry bool) {
	if err := s.conn.Emit(msg, telemetry); err != nil {
		s.deps.Logger.Warn("session: emit failed", "session_id", s.id, "err", err)
	}
}

// EmitError sends a wire error message of the given kind.
func (s *Session) EmitError(kind, message string) {
	s.emit(map[string]interface{}{"op": "error", "kind": kind, "message": message}, false)
}

// Close transitions to Closed, cancelling any active stream and pending
// TTS sequences (spec.md §4.2: "Terminal transitions always flush or
// cancel any pending TTSSequence and close the active AudioStream").
func (s *Session) Close(reason string) {
	s.mu.Lock()
	if s.state == StateClosed {
		s.mu.Unlock()
		return
	}
	s.state = StateClosed
	s.mu.Unlock()

	s.streams.closeAll()
	s.sequences.cancelAll()
	if s.deps.Metrics != nil {
		s.deps.Metrics.ActiveSessions.Add(context.Background(), -1)
	}
	s.deps.Logger.Info("session: closed", "session_id", s.id, "reason", reason)
}

// Recover catches a panic from f, converting it into a wire `error`
// message and terminating the session, without propagating the panic to
// the caller (spec.md §4.2 "Failure semantics").
func (s *Session) Recover(f func()) {
	defer func() {
		if r := recover(); r != nil {
			s.deps.Logger.Error("session: recovered panic", "session_id", s.id, "panic", r)
			s.EmitError("invalid_message", fmt.Sprintf("internal error: %v", r))
			s.Close("panic")
		}
	}()
	f()
}

// latencyTracker mirrors the teacher's per-turn instrumentation fields
// (managed_stream.go sttStartTime/llmStartTime/.../GetLatencyBreakdown),
// generalized from a single field set to one tracker per session.
type latencyTracker struct {
	mu sync.Mutex

	userSpeechEnd time.Time
	sttStart      time.Time
	sttEnd        time.Time
	llmStart      time.Time
	llmEnd        time.Time
	ttsStart      time.Time
	ttsFirst      time.Time
	ttsEnd        time.Time
}

// LatencyBreakdown mirrors the teacher's LatencyBreakdown shape (all
// values in milliseconds).
type LatencyBreakdown struct {
	UserToSTT          int64
	STT                int64
	UserToLLM          int64
	LLM                int64
	UserToTTSFirstByte int64
	LLMToTTSFirstByte  int64
	TTSTotal           int64
}

func (s *Session) MarkUserSpeechEnd()   { s.latency.mark(&s.latency.userSpeechEnd) }
func (s *Session) MarkSTTStart()        { s.latency.mark(&s.latency.sttStart) }
func (s *Session) MarkSTTEnd()          { s.latency.mark(&s.latency.sttEnd) }
func (s *Session) MarkLLMStart()        { s.latency.mark(&s.latency.llmStart) }
func (s *Session) MarkLLMEnd()          { s.latency.mark(&s.latency.llmEnd) }
func (s *Session) MarkTTSStart()        { s.latency.mark(&s.latency.ttsStart) }
func (s *Session) MarkTTSFirstChunk()   { s.latency.markOnce(&s.latency.ttsFirst) }
func (s *Session) MarkTTSEnd()          { s.latency.mark(&s.latency.ttsEnd) }

func (t *latencyTracker) mark(field *time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	*field = time.Now()
}

func (t *latencyTracker) markOnce(field *time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if field.IsZero() {
		*field = time.Now()
	}
}

// GetLatencyBreakdown returns the measured per-stage timings for the
// current turn (teacher's GetLatencyBreakdown, generalized).
func (s *Session) GetLatencyBreakdown() LatencyBreakdown {
	s.latency.mu.Lock()
	defer s.latency.mu.Unlock()

	var bd LatencyBreakdown
	t := &s.latency
	if t.userSpeechEnd.IsZero() {
		return bd
	}
	if !t.sttEnd.IsZero() {
		bd.UserToSTT = t.sttEnd.Sub(t.userSpeechEnd).Milliseconds()
	}
	if !t.sttStart.IsZero() && !t.sttEnd.IsZero() {
		bd.STT = t.sttEnd.Sub(t.sttStart).Milliseconds()
	}
	if !t.llmEnd.IsZero() {
		bd.UserToLLM = t.llmEnd.Sub(t.userSpeechEnd).Milliseconds()
	}
	if !t.llmStart.IsZero() && !t.llmEnd.IsZero() {
		bd.LLM = t.llmEnd.Sub(t.llmStart).Milliseconds()
	}
	if !t.ttsFirst.IsZero() {
		bd.UserToTTSFirstByte = t.ttsFirst.Sub(t.userSpeechEnd).Milliseconds()
	}
	if !t.llmEnd.IsZero() && !t.ttsFirst.IsZero() {
		bd.LLMToTTSFirstByte = t.ttsFirst.Sub(t.llmEnd).Milliseconds()
	}
	if !t.ttsStart.IsZero() && !t.ttsEnd.IsZero() {
		bd.TTSTotal = t.ttsEnd.Sub(t.ttsStart).Milliseconds()
	}
	return bd
}

// resetTurnLatency clears per-turn timestamps ahead of a new user turn.
func (s *Session) resetTurnLatency() {
	s.latency.mu.Lock()
	defer s.latency.mu.Unlock()
	s.latency = latencyTracker{}
}
