package ttsengine

import (
	"context"

	"github.com/lokutor-ai/lokutor-gateway/internal/providers/tts"
	"github.com/lokutor-ai/lokutor-gateway/pkg/orchestrator"
)

// lokutorSampleRate is the fixed output rate of the Lokutor streaming voice
// model; callers resample via internal/audiopost if a different target
// sample rate is configured.
const lokutorSampleRate = 24000

// LokutorEngine adapts the teacher's tts.LokutorTTS provider to the Engine
// capability interface, acting as the main/high-quality engine in a staged
// sequence (spec.md §4.6).
type LokutorEngine struct {
	provider *tts.LokutorTTS
	voices   []string
}

// NewLokutorEngine wraps an existing LokutorTTS provider.
func NewLokutorEngine(provider *tts.LokutorTTS, voices []string) *LokutorEngine {
	return &LokutorEngine{provider: provider, voices: voices}
}

func (e *LokutorEngine) Name() string { return e.provider.Name() }

func (e *LokutorEngine) Initialize(ctx context.Context) error { return nil }

func (e *LokutorEngine) Synthesize(ctx context.Context, text string, params SynthesisParams) ([]byte, int, error) {
	pcm, err := e.provider.Synthesize(ctx, text, orchestrator.Voice(params.Voice), orchestrator.Language(params.Language))
	if err != nil {
		return nil, 0, err
	}
	return pcm, lokutorSampleRate, nil
}

func (e *LokutorEngine) ListVoices() []string { return e.voices }

func (e *LokutorEngine) IsAvailable(voice string) bool {
	for _, v := range e.voices {
		if v == voice {
			return true
		}
	}
	return len(e.voices) == 0
}
