package audiopost

import (
	"math"
	"testing"
)

func sineWavePCM16(freq float64, sampleRate, numSamples int, amplitude float64) []byte {
	out := make([]byte, numSamples*2)
	for i := 0; i < numSamples; i++ {
		t := float64(i) / float64(sampleRate)
		s := amplitude * math.Sin(2*math.Pi*freq*t)
		sample := int16(s * 32767.0)
		out[i*2] = byte(sample)
		out[i*2+1] = byte(sample >> 8)
	}
	return out
}

func TestResampleSameRateNoop(t *testing.T) {
	pcm := sineWavePCM16(440, 16000, 160, 0.5)
	out, err := Resample(pcm, 16000, 16000)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out) != len(pcm) {
		t.Fatalf("expected passthrough length %d, got %d", len(pcm), len(out))
	}
}

func TestResampleChangesLength(t *testing.T) {
	pcm := sineWavePCM16(440, 16000, 1600, 0.5)
	out, err := Resample(pcm, 16000, 24000)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out) == 0 {
		t.Fatalf("expected non-empty resampled output")
	}
}

func TestNormalizeLoudnessRaisesQuietAudio(t *testing.T) {
	pcm := sineWavePCM16(440, 16000, 1600, 0.01)
	normalized := NormalizeLoudness(pcm, -16.0)

	quiet := pcm16ToFloat64(pcm)
	loud := pcm16ToFloat64(normalized)

	rms := func(s []float64) float64 {
		var sum float64
		for _, v := range s {
			sum += v * v
		}
		return math.Sqrt(sum / float64(len(s)))
	}

	if rms(loud) <= rms(quiet) {
		t.Errorf("expected normalized RMS to exceed original: got %f vs %f", rms(loud), rms(quiet))
	}
}

func TestNormalizeLoudnessSkipsSilence(t *testing.T) {
	silence := make([]byte, 320)
	out := NormalizeLoudness(silence, -16.0)
	if len(out) != len(silence) {
		t.Fatalf("expected silence passthrough")
	}
}

func TestSoftLimitClampsPeaks(t *testing.T) {
	pcm := sineWavePCM16(440, 16000, 1600, 1.0)
	limited := SoftLimit(pcm, -1.0)

	ceiling := dbfsToLinear(-1.0)
	samples := pcm16ToFloat64(limited)
	for _, s := range samples {
		if math.Abs(s) > ceiling+0.01 {
			t.Fatalf("sample %f exceeds ceiling %f", s, ceiling)
		}
	}
}

func TestProcessPipeline(t *testing.T) {
	pcm := sineWavePCM16(440, 16000, 1600, 0.8)
	out, err := Process(pcm, Options{
		SrcSampleRate:    16000,
		TargetSampleRate: 24000,
		Normalize:        true,
		TargetDBFS:       -16.0,
		LimiterCeiling:   -1.0,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out) == 0 {
		t.Fatalf("expected non-empty output")
	}
}
