// Package audiopost implements the pure PCM16 mono transformations applied
// to every synthesized TTS chunk: resample to the target sample rate,
// loudness normalize, and soft-limit. All functions are stateless and
// side-effect free, per spec.md §4.7.
package audiopost

import (
	"fmt"

	resampling "github.com/tphakala/go-audio-resampling"
)

// Resample converts PCM16 mono little-endian audio from srcRate to dstRate.
// It follows the same float64 [-1,1] normalization and int16 round-trip as
// haivivi-giztoy's pkg/audio/resampler, but operates on a complete buffer
// instead of streaming through an io.Reader since a TTS chunk is always a
// bounded, already-complete PCM buffer.
func Resample(pcm []byte, srcRate, dstRate int) ([]byte, error) {
	if srcRate == dstRate {
		return pcm, nil
	}
	if srcRate <= 0 || dstRate <= 0 {
		return nil, fmt.Errorf("audiopost: invalid sample rates src=%d dst=%d", srcRate, dstRate)
	}

	input := pcm16ToFloat64(pcm)

	cfg := &resampling.Config{
		InputRate:  float64(srcRate),
		OutputRate: float64(dstRate),
		Channels:   1,
		Quality:    resampling.QualitySpec{Preset: resampling.QualityHigh},
	}
	r, err := resampling.New(cfg)
	if err != nil {
		return nil, fmt.Errorf("audiopost: create resampler: %w", err)
	}

	output, err := r.Process(input)
	if err != nil {
		return nil, fmt.Errorf("audiopost: resample: %w", err)
	}

	return float64ToPCM16(output), nil
}

func pcm16ToFloat64(pcm []byte) []float64 {
	n := len(pcm) / 2
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		sample := int16(pcm[i*2]) | int16(pcm[i*2+1])<<8
		out[i] = float64(sample) / 32768.0
	}
	return out
}

func float64ToPCM16(samples []float64) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		if s > 1.0 {
			s = 1.0
		} else if s < -1.0 {
			s = -1.0
		}
		sample := int16(s * 32767.0)
		out[i*2] = byte(sample)
		out[i*2+1] = byte(sample >> 8)
	}
	return out
}
