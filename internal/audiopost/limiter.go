package audiopost

import "math"

// softKneeRatio places the start of the limiter's knee as a fraction of the
// ceiling's linear amplitude.
const softKneeRatio = 0.9

// SoftLimit applies a tanh-shaped soft-knee limiter to PCM16 mono audio,
// clamping peaks to ceilingDBFS (spec.md default -1.0 dBFS) without the hard
// clipping artifacts of a brick-wall limiter.
func SoftLimit(pcm []byte, ceilingDBFS float64) []byte {
	samples := pcm16ToFloat64(pcm)
	ceiling := dbfsToLinear(ceilingDBFS)
	knee := ceiling * softKneeRatio

	for i, s := range samples {
		mag := math.Abs(s)
		if mag <= knee {
			continue
		}
		sign := 1.0
		if s < 0 {
			sign = -1.0
		}
		// Soft knee: values above the knee are compressed through tanh so
		// they approach but never exceed the ceiling.
		excess := (mag - knee) / (ceiling - knee)
		compressed := knee + (ceiling-knee)*math.Tanh(excess)
		samples[i] = sign * compressed
	}

	return float64ToPCM16(samples)
}
