package session

import (
	"context"
	"encoding/json"

	"github.com/lokutor-ai/lokutor-gateway/internal/audioingest"
	"github.com/lokutor-ai/lokutor-gateway/internal/transport"
	"github.com/lokutor-ai/lokutor-gateway/pkg/orchestrator"
)

// Handler adapts a Session + Pipeline to transport.Handler, the interface
// the WebSocket server dispatches demultiplexed frames to.
type Handler struct {
	Session  *Session
	Pipeline *Pipeline
	Language orchestrator.Language
	AudioCfg audioingest.Config
}

// NewHandler builds a transport.Handler-compatible Handler bound to conn.
// *transport.Conn already satisfies session.Emitter structurally (its
// Emit(msg, telemetry) method matches), so no adapter wrapper is needed.
func NewHandler(conn *transport.Conn, p *Pipeline, lang orchestrator.Language, audioCfg audioingest.Config, deps Dependencies) *Handler {
	s := New(conn, deps)
	s.MarkReady()
	return &Handler{Session: s, Pipeline: p, Language: lang, AudioCfg: audioCfg}
}

var _ transport.Handler = (*Handler)(nil)

// OnControl applies a control message and emits the corresponding
// acknowledgement (spec.md §4.2 on_control). Control messages never block
// audio frames — each case returns quickly; long-running work (TTS) is
// launched in its own goroutine elsewhere.
func (h *Handler) OnControl(ctx context.Context, env transport.Envelope) error {
	s := h.Session

	switch env.Kind() {
	case "start_audio_stream":
		var msg transport.StartAudioStream
		if err := json.Unmarshal(env.Raw, &msg); err != nil {
			return err
		}
		manager := audioingest.NewManager(h.AudioCfg)
		s.streams.bind(manager)
		if err := manager.Start(msg.StreamID); err != nil {
			s.EmitError("invalid_message", err.Error())
			return nil
		}
		s.emit(map[string]interface{}{"op": "audio_stream_started", "stream_id": msg.StreamID}, true)

	case "end_audio_stream":
		var msg transport.EndAudioStream
		if err := json.Unmarshal(env.Raw, &msg); err != nil {
			return err
		}
		manager := s.streams.current()
		if manager == nil {
			s.EmitError("invalid_message", "no active stream")
			return nil
		}
		pcm, err := manager.End(msg.StreamID)
		if err != nil {
			s.EmitError("invalid_message", err.Error())
			return nil
		}
		s.emit(map[string]interface{}{"op": "audio_stream_ended", "stream_id": msg.StreamID}, true)
		s.Recover(func() {
			h.Session.HandleFinalizedStream(ctx, h.Pipeline, msg.StreamID, pcm, h.Language)
		})

	case "ping":
		var msg transport.Ping
		json.Unmarshal(env.Raw, &msg)
		s.emit(map[string]interface{}{"op": "pong", "timestamp": msg.Timestamp}, true)

	case "staged_tts_control":
		h.handleStagedTTSControl(env)

	case "switch_tts_engine", "set_tts_voice", "set_tts_options", "switch_stt_model",
		"set_audio_opts", "switch_llm_model", "set_llm_options":
		// Session-scoped configuration acknowledgements: the payload values
		// are not applied to the session or the pipeline; each message is
		// only acknowledged. switch_llm_model also clears the conversation
		// context.
		if env.Kind() == "switch_llm_model" {
			s.conversation.ClearContext()
		}
		s.emit(map[string]interface{}{"op": ackOpFor(env.Kind()), "ok": true}, true)

	case "get_tts_info":
		s.emit(map[string]interface{}{
			"op":     "tts_info",
			"engines": h.Pipeline.Engines.Names(),
		}, true)

	case "get_llm_models":
		s.emit(map[string]interface{}{"op": "llm_models", "models": []string{}}, true)

	default:
		s.EmitError("invalid_message", "unknown control message")
	}

	return nil
}

// ackOpFor maps a client control op to its server acknowledgement op name,
// following the *_updated/*_switched convention (spec.md §6 message table).
func ackOpFor(kind string) string {
	switch kind {
	case "switch_tts_engine":
		return "tts_engine_switched"
	case "switch_stt_model":
		return "stt_model_switched"
	case "switch_llm_model":
		return "llm_model_switched"
	case "set_tts_voice":
		return "tts_voice_updated"
	case "set_tts_options":
		return "tts_options_updated"
	case "set_audio_opts":
		return "audio_opts_updated"
	case "set_llm_options":
		return "llm_options_updated"
	default:
		return kind + "_updated"
	}
}

func (h *Handler) handleStagedTTSControl(env transport.Envelope) {
	var msg struct {
		Action string `json:"action"`
	}
	json.Unmarshal(env.Raw, &msg)

	switch msg.Action {
	case "clear_cache":
		// FingerprintCache is shared process-wide (one per Pipeline), so
		// this clears every session's cached synthesis, not just this one.
		h.Pipeline.Staged.Cache().Clear()
		h.Session.emit(map[string]interface{}{"op": "staged_tts_control_updated", "action": "clear_cache"}, true)
	case "get_stats":
		bd := h.Session.GetLatencyBreakdown()
		h.Session.emit(map[string]interface{}{
			"op":               "staged_tts_control_updated",
			"action":           "get_stats",
			"latency_ms_stt":   bd.STT,
			"latency_ms_llm":   bd.LLM,
			"latency_ms_tts":   bd.TTSTotal,
		}, true)
	default:
		h.Session.emit(map[string]interface{}{"op": "staged_tts_control_updated", "action": msg.Action}, true)
	}
}

// OnAudioFrame forwards a frame to AudioIngest after verifying the stream
// exists and is active (spec.md §4.2 on_audio_frame).
func (h *Handler) OnAudioFrame(ctx context.Context, streamID string, seq int64, ts int64, pcm []byte) error {
	manager := h.Session.streams.current()
	if manager == nil {
		return nil
	}

	result, err := pushAndMaybeFinalize(manager, streamID, seq, ts, pcm)
	if err != nil {
		return err
	}
	if result.finalized {
		h.Session.emit(map[string]interface{}{"op": "audio_stream_ended", "stream_id": streamID}, true)
		h.Session.Recover(func() {
			h.Session.HandleFinalizedStream(ctx, h.Pipeline, streamID, result.pcm, h.Language)
		})
	}
	return nil
}

type pushResult struct {
	finalized bool
	pcm       []byte
}

func pushAndMaybeFinalize(manager *audioingest.Manager, streamID string, seq int64, ts int64, pcm []byte) (pushResult, error) {
	if err := manager.PushFrame(streamID, audioingest.Frame{Sequence: seq, Timestamp: ts, PCM: pcm}); err != nil {
		return pushResult{}, err
	}

	stream, result := manager.DrainAndApply()
	if stream == nil || !result.Finalized {
		return pushResult{}, nil
	}

	buf, err := manager.End(streamID)
	if err != nil {
		return pushResult{}, nil
	}
	return pushResult{finalized: true, pcm: buf}, nil
}

// OnText bypasses STT, feeding text directly to IntentRouter (spec.md
// §4.2 on_text).
func (h *Handler) OnText(ctx context.Context, text string) error {
	h.Session.Recover(func() {
		h.Session.HandleText(ctx, h.Pipeline, text, h.Language)
	})
	return nil
}

// OnClose terminates the session.
func (h *Handler) OnClose(reason string) {
	h.Session.Close(reason)
}
