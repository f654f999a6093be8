package session

import (
	"context"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lokutor-ai/lokutor-gateway/internal/audiopost"
	"github.com/lokutor-ai/lokutor-gateway/internal/intent"
	"github.com/lokutor-ai/lokutor-gateway/internal/metrics"
	"github.com/lokutor-ai/lokutor-gateway/internal/sttadapter"
	"github.com/lokutor-ai/lokutor-gateway/internal/ttsengine"
	"github.com/lokutor-ai/lokutor-gateway/pkg/orchestrator"
)

// Pipeline bundles the process-wide collaborators a Session dispatches a
// finished utterance or direct text input through: STT, intent routing,
// and staged TTS. Passed in explicitly (Design Notes: no ambient globals).
type Pipeline struct {
	STT      *sttadapter.Adapter
	Router   *intent.Router
	Engines  *ttsengine.Registry
	Staged   *ttsengine.StagedTTS
	AudioOut audiopost.Options
	PlanCfg  ttsengine.PlanConfig
	Metrics  *metrics.Collector
}

// HandleFinalizedStream runs a finalized PCM16 buffer through STT, intent
// routing, and staged TTS, emitting wire messages as results arrive.
func (s *Session) HandleFinalizedStream(ctx context.Context, p *Pipeline, streamID string, pcm []byte, lang orchestrator.Language) {
	s.MarkUserSpeechEnd()
	s.MarkSTTStart()

	sttBegin := time.Now()
	utterance, failure := p.STT.Transcribe(ctx, streamID, pcm, lang)
	s.MarkSTTEnd()
	if p.Metrics != nil {
		p.Metrics.STTDuration.Record(ctx, time.Since(sttBegin).Seconds())
	}

	if failure != nil {
		s.EmitError(failureKind(failure), failure.Error())
		return
	}

	s.runUtterance(ctx, p, utterance.Transcript, lang)
}

func failureKind(f *sttadapter.Failure) string {
	return "stt_failed"
}

// HandleText bypasses STT, feeding text directly to the IntentRouter
// (spec.md §4.2 on_text).
func (s *Session) HandleText(ctx context.Context, p *Pipeline, text string, lang orchestrator.Language) {
	s.MarkUserSpeechEnd()
	s.runUtterance(ctx, p, text, lang)
}

func (s *Session) runUtterance(ctx context.Context, p *Pipeline, transcript string, lang orchestrator.Language) {
	if !s.ShouldInterrupt(transcript) {
		return
	}

	s.conversation.AddMessage("user", transcript)

	s.MarkLLMStart()
	llmBegin := time.Now()
	reply := p.Router.Route(ctx, transcript, lang, s.conversation.GetContextCopy())
	s.MarkLLMEnd()
	if p.Metrics != nil {
		p.Metrics.LLMDuration.Record(ctx, time.Since(llmBegin).Seconds())
	}

	if reply.RoutingErr != nil {
		if p.Metrics != nil {
			p.Metrics.RoutingErrors.Add(ctx, 1)
		}
		s.EmitError("routing_failed", reply.RoutingErr.Error())
	}

	s.conversation.AddMessage("assistant", reply.Reply)
	s.emit(map[string]interface{}{"op": "response", "content": reply.Reply}, false)

	if reply.Reply == "" {
		return
	}

	s.runStagedTTS(ctx, p, reply.Reply, lang)
}

func (s *Session) runStagedTTS(ctx context.Context, p *Pipeline, reply string, lang orchestrator.Language) {
	cfg := p.PlanCfg
	cfg.Language = string(lang)

	plan, err := p.Staged.Resolve(p.Engines, reply, cfg)
	if err != nil {
		s.EmitError("tts_failed", err.Error())
		return
	}

	seq := ttsengine.NewSequence(newSequenceID(), nil)
	s.sequences.add(seq)
	defer s.sequences.remove(seq.ID())

	s.SetBotSpeaking(true)
	s.MarkTTSStart()
	ttsBegin := time.Now()
	defer func() {
		s.SetBotSpeaking(false)
		s.MarkTTSEnd()
		if p.Metrics != nil {
			p.Metrics.TTSDuration.Record(ctx, time.Since(ttsBegin).Seconds())
		}
	}()

	total := len(plan.MainChunks)
	if plan.Staged {
		total++
	}

	chunks := p.Staged.Run(ctx, seq, plan)
	for chunk := range chunks {
		s.MarkTTSFirstChunk()

		engineName := plan.MainEngine.Name()
		if chunk.IsIntro {
			engineName = plan.IntroEngine.Name()
		}

		wireChunk := map[string]interface{}{
			"op":          "tts_chunk",
			"sequence_id": seq.ID(),
			"index":       chunk.Index,
			"total":       total,
			"engine":      engineName,
			"text":        chunk.Text,
			"success":     chunk.Err == nil,
		}

		if chunk.Err != nil && p.Metrics != nil {
			p.Metrics.TTSChunkFailures.Add(ctx, 1)
		}

		if chunk.Err == nil && len(chunk.PCM) > 0 {
			processed, err := audiopost.Process(chunk.PCM, audiopost.Options{
				SrcSampleRate:    chunk.SampleRate,
				TargetSampleRate: p.AudioOut.TargetSampleRate,
				Normalize:        p.AudioOut.Normalize,
				TargetDBFS:       p.AudioOut.TargetDBFS,
				LimiterCeiling:   p.AudioOut.LimiterCeiling,
			})
			if err != nil {
				wireChunk["success"] = false
				if p.Metrics != nil {
					p.Metrics.TTSChunkFailures.Add(ctx, 1)
				}
			} else {
				wireChunk["audio"] = base64.StdEncoding.EncodeToString(processed)
				if p.Metrics != nil {
					p.Metrics.FramesOut.Add(ctx, 1)
				}
			}
		}

		s.emit(wireChunk, false)
	}

	s.emit(map[string]interface{}{"op": "tts_sequence_end", "sequence_id": seq.ID()}, false)
}

func newSequenceID() string {
	return fmt.Sprintf("seq-%s", uuid.NewString())
}
