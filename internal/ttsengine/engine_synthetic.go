package ttsengine

import (
	"context"
	"hash/fnv"
	"math"
)

// SyntheticEngine is a fast, dependency-free formant-style engine used as
// the default intro engine (spec.md §4.6: "A fast but lower-quality engine
// synthesizes an intro"). Modeled on the teacher's RMSVAD comment describing
// itself as "a lightweight, no-dependency default" — this is the TTS
// analogue: no model file, no network call, deterministic output derived
// from the text so repeated requests for the same fingerprint are
// idempotent without needing the cache.
type SyntheticEngine struct {
	sampleRate int
	voices     []string
}

// NewSyntheticEngine creates a SyntheticEngine supporting the given voices.
func NewSyntheticEngine(voices []string) *SyntheticEngine {
	return &SyntheticEngine{sampleRate: 16000, voices: voices}
}

func (s *SyntheticEngine) Name() string { return "synthetic" }

func (s *SyntheticEngine) Initialize(ctx context.Context) error { return nil }

// Synthesize produces a single enveloped tone whose length follows the text
// length (0.2-4 s at speed 1) and whose pitch is derived from a hash of the
// text, so different inputs are audibly distinct without any model.
func (s *SyntheticEngine) Synthesize(ctx context.Context, text string, params SynthesisParams) ([]byte, int, error) {
	h := fnv.New32a()
	h.Write([]byte(text))
	seed := h.Sum32()

	baseFreq := 160.0 + float64(seed%200)
	durationPerChar := 0.018
	duration := float64(len(text)) * durationPerChar
	if duration < 0.2 {
		duration = 0.2
	}
	if duration > 4.0 {
		duration = 4.0
	}

	speed := params.Speed
	if speed <= 0 {
		speed = 1.0
	}
	numSamples := int(duration / speed * float64(s.sampleRate))

	pcm := make([]byte, numSamples*2)
	for i := 0; i < numSamples; i++ {
		t := float64(i) / float64(s.sampleRate)
		envelope := math.Sin(math.Pi * float64(i) / float64(numSamples))
		sample := 0.3 * envelope * math.Sin(2*math.Pi*baseFreq*t)
		v := int16(sample * 32767)
		pcm[i*2] = byte(v)
		pcm[i*2+1] = byte(v >> 8)
	}

	return pcm, s.sampleRate, nil
}

func (s *SyntheticEngine) ListVoices() []string { return s.voices }

func (s *SyntheticEngine) IsAvailable(voice string) bool {
	for _, v := range s.voices {
		if v == voice {
			return true
		}
	}
	return len(s.voices) == 0
}
