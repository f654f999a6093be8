package audiopost

// Options configures the post-processing chain applied to one synthesized
// chunk (spec.md §4.6 "Audio post-processing").
type Options struct {
	SrcSampleRate    int
	TargetSampleRate int
	Normalize        bool
	TargetDBFS       float64
	LimiterCeiling   float64
}

// Process runs the full post-processing pipeline: resample, then optional
// loudness normalize, then always soft-limit. Order matters: normalizing
// before limiting lets the limiter catch any peaks the gain change
// introduces.
func Process(pcm []byte, opts Options) ([]byte, error) {
	out, err := Resample(pcm, opts.SrcSampleRate, opts.TargetSampleRate)
	if err != nil {
		return nil, err
	}
	if opts.Normalize {
		out = NormalizeLoudness(out, opts.TargetDBFS)
	}
	out = SoftLimit(out, opts.LimiterCeiling)
	return out, nil
}
