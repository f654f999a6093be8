package audiopost

import "math"

// minRMSFloor avoids divide-by-near-zero amplification of near-silent audio.
const minRMSFloor = 1e-6

// NormalizeLoudness scales PCM16 mono audio so its RMS level sits at
// targetDBFS (spec.md default -16 dBFS). This is a simple RMS-based gain
// normalizer, not a full ITU-R BS.1770 LUFS meter — no example in the
// retrieved corpus implements loudness measurement, so this is a
// self-contained numeric transform justified in DESIGN.md.
func NormalizeLoudness(pcm []byte, targetDBFS float64) []byte {
	samples := pcm16ToFloat64(pcm)
	if len(samples) == 0 {
		return pcm
	}

	var sumSquares float64
	for _, s := range samples {
		sumSquares += s * s
	}
	rms := math.Sqrt(sumSquares / float64(len(samples)))
	if rms < minRMSFloor {
		return pcm
	}

	targetRMS := math.Pow(10, targetDBFS/20)
	gain := targetRMS / rms

	for i, s := range samples {
		samples[i] = s * gain
	}

	return float64ToPCM16(samples)
}

// dbfsToLinear converts a dBFS ceiling to a linear amplitude in [0,1].
func dbfsToLinear(dbfs float64) float64 {
	return math.Pow(10, dbfs/20)
}
