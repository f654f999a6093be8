package ttsengine

import (
	"context"
	"errors"
	"time"

	"github.com/lokutor-ai/lokutor-gateway/internal/metrics"
	"golang.org/x/sync/errgroup"
)

// ErrNoEngineAvailable is returned when plan resolution cannot find any
// engine serving the requested voice (spec.md §4.6: "fail with no chunks if
// neither engine resolves").
var ErrNoEngineAvailable = errors.New("ttsengine: no engine available for voice")

// DefaultChunkTimeout bounds a single chunk's synthesis call
// (spec.md §6 default 10s).
const DefaultChunkTimeout = 10 * time.Second

// PlanConfig carries the per-reply configuration needed to resolve a
// ReplyPlan (spec.md §6's STAGED_TTS_* keys).
type PlanConfig struct {
	Voice          string
	Language       string
	Speed          float64
	MaxIntroLen    int
	MaxResponseLen int
	MaxChunks      int
	IntroEngine    string
	MainEngine     string
	PreferredOrder []string
}

// StagedTTS orchestrates staged two-engine synthesis: plan resolution,
// concurrent intro/main synthesis tracks, and strictly ordered chunk
// emission (spec.md §4.6, the subsystem with the heaviest invariant load).
type StagedTTS struct {
	cache        *FingerprintCache
	chunkTimeout time.Duration
	metrics      *metrics.Collector
}

// NewStagedTTS creates an orchestrator backed by cache, timing out each
// chunk's synthesis after chunkTimeout (0 uses DefaultChunkTimeout).
func NewStagedTTS(cache *FingerprintCache, chunkTimeout time.Duration) *StagedTTS {
	if chunkTimeout <= 0 {
		chunkTimeout = DefaultChunkTimeout
	}
	return &StagedTTS{cache: cache, chunkTimeout: chunkTimeout}
}

// Cache exposes the underlying fingerprint cache so callers can expose a
// clear-cache control operation without reaching into StagedTTS internals.
func (st *StagedTTS) Cache() *FingerprintCache {
	return st.cache
}

// SetMetrics attaches a metrics collector so cache hit/miss and fallback
// counts are recorded. Optional; nil (the default) disables recording.
func (st *StagedTTS) SetMetrics(m *metrics.Collector) {
	st.metrics = m
}

// Resolve builds a ReplyPlan for reply against registry. If the intro and
// main engine resolve to the same engine, staging is bypassed in favor of a
// single monolithic sequence (Open Question #1: intro==main). If only one
// of the two engines is available, the available engine serves both roles,
// degrading to unstaged (Open Question #3).
func (st *StagedTTS) Resolve(registry *Registry, reply string, cfg PlanConfig) (ReplyPlan, error) {
	introEngine, introOK := registry.Resolve(cfg.IntroEngine, cfg.Voice, cfg.PreferredOrder)
	mainEngine, mainOK := registry.Resolve(cfg.MainEngine, cfg.Voice, cfg.PreferredOrder)

	if !introOK && !mainOK {
		return ReplyPlan{}, ErrNoEngineAvailable
	}
	if !mainOK {
		mainEngine, mainOK = introEngine, introOK
	}
	if !introOK {
		introEngine, introOK = mainEngine, mainOK
	}

	plan := ReplyPlan{
		IntroEngine: introEngine,
		MainEngine:  mainEngine,
		Voice:       cfg.Voice,
		Language:    cfg.Language,
		Speed:       cfg.Speed,
		Staged:      introEngine.Name() != mainEngine.Name(),
	}

	maxIntro := cfg.MaxIntroLen
	if maxIntro <= 0 {
		maxIntro = DefaultMaxIntroLength
	}
	maxResponse := cfg.MaxResponseLen
	if maxResponse <= 0 {
		maxResponse = DefaultMaxResponseLength
	}

	if !plan.Staged {
		clean := Sanitize(reply)
		if len([]rune(clean)) > maxResponse {
			clean = TruncateAtSentence(clean, maxResponse)
		}
		plan.MainChunks = ChunkMain(clean, cfg.MaxChunks)
		return plan, nil
	}

	intro, main := SplitIntroMain(reply, maxIntro, maxResponse)
	plan.Intro = intro
	plan.MainChunks = ChunkMain(main, cfg.MaxChunks)
	return plan, nil
}

// Run executes plan, returning a channel of strictly ordered Chunks (intro
// first when staged, then main chunks in order). The channel is always
// closed exactly once, after which the sequence has reached a terminal
// state (spec.md §8 invariant: exactly one tts_sequence_end per sequence).
func (st *StagedTTS) Run(ctx context.Context, seq *Sequence, plan ReplyPlan) <-chan Chunk {
	out := make(chan Chunk)

	go func() {
		defer close(out)
		seq.transition(StatePreparing)

		if !plan.Staged {
			st.runUnstaged(ctx, seq, plan, out)
			return
		}
		st.runStaged(ctx, seq, plan, out)
	}()

	return out
}

func (st *StagedTTS) runUnstaged(ctx context.Context, seq *Sequence, plan ReplyPlan, out chan<- Chunk) {
	seq.transition(StateEmittingMain)
	anyFailed := false

	for _, text := range plan.MainChunks {
		idx := seq.NextIndex()
		chunkCtx, cancel := context.WithTimeout(ctx, st.chunkTimeout)
		chunk, err := st.synthesizeOne(chunkCtx, plan.MainEngine, text, plan, false, idx)
		cancel()
		if err != nil {
			chunk = Chunk{Index: idx, Text: text, Err: err}
			anyFailed = true
		}
		if !send(ctx, out, chunk) {
			seq.transition(StateCancelled)
			return
		}
	}

	if anyFailed {
		seq.transition(StatePartiallyFailed)
	} else {
		seq.transition(StateCompleted)
	}
}

func (st *StagedTTS) runStaged(ctx context.Context, seq *Sequence, plan ReplyPlan, out chan<- Chunk) {
	type introResult struct {
		chunk Chunk
		err   error
	}
	introDone := make(chan introResult, 1)

	mainResults := make([]chan Chunk, len(plan.MainChunks))
	for i := range mainResults {
		mainResults[i] = make(chan Chunk, 1)
	}

	// The intro and main tracks are independent producers fanned out with
	// errgroup; each reports through its own result channel rather than
	// through the group's error, since a failed chunk is carried as
	// Chunk.Err and surfaced to the caller rather than aborting the run.
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		introCtx, cancel := context.WithTimeout(gctx, st.chunkTimeout)
		defer cancel()
		chunk, err := st.synthesizeOne(introCtx, plan.IntroEngine, plan.Intro, plan, true, 0)
		introDone <- introResult{chunk: chunk, err: err}
		return nil
	})
	g.Go(func() error {
		for i, text := range plan.MainChunks {
			idx := i + 1
			chunk, err := st.synthesizeWithFallback(gctx, plan.MainEngine, plan.IntroEngine, text, plan, idx)
			if err != nil {
				chunk = Chunk{Index: idx, Text: text, Err: err}
			}
			mainResults[i] <- chunk
		}
		return nil
	})
	go func() { _ = g.Wait() }()

	var intro introResult
	select {
	case intro = <-introDone:
	case <-ctx.Done():
		seq.transition(StateCancelled)
		return
	}

	seq.transition(StateEmittingIntro)
	anyFailed := intro.err != nil
	introChunk := intro.chunk
	if intro.err != nil {
		introChunk = Chunk{Index: 0, IsIntro: true, Text: plan.Intro, Err: intro.err}
	}
	if !send(ctx, out, introChunk) {
		seq.transition(StateCancelled)
		return
	}

	seq.transition(StateEmittingMain)
	for _, ch := range mainResults {
		var chunk Chunk
		select {
		case chunk = <-ch:
		case <-ctx.Done():
			seq.transition(StateCancelled)
			return
		}
		if chunk.Err != nil {
			anyFailed = true
		}
		if !send(ctx, out, chunk) {
			seq.transition(StateCancelled)
			return
		}
	}

	if anyFailed {
		seq.transition(StatePartiallyFailed)
	} else {
		seq.transition(StateCompleted)
	}
}

func send(ctx context.Context, out chan<- Chunk, c Chunk) bool {
	select {
	case out <- c:
		return true
	case <-ctx.Done():
		return false
	}
}

func (st *StagedTTS) synthesizeOne(ctx context.Context, engine Engine, text string, plan ReplyPlan, isIntro bool, index int) (Chunk, error) {
	if text == "" {
		return Chunk{Index: index, IsIntro: isIntro}, nil
	}

	params := SynthesisParams{Voice: plan.Voice, Language: plan.Language, Speed: plan.Speed}
	key := NewFingerprint(engine.Name(), params, text)

	pcm, rate, hit, err := st.cache.GetOrSynthesize(ctx, key, func(ctx context.Context) ([]byte, int, error) {
		return engine.Synthesize(ctx, text, params)
	})
	if st.metrics != nil {
		if hit {
			st.metrics.CacheHits.Add(ctx, 1)
		} else {
			st.metrics.CacheMisses.Add(ctx, 1)
		}
	}
	if err != nil {
		return Chunk{Index: index, Text: text, IsIntro: isIntro}, err
	}
	return Chunk{Index: index, Text: text, PCM: pcm, SampleRate: rate, IsIntro: isIntro}, nil
}

// synthesizeWithFallback tries the main engine first; on failure or timeout
// it retries once on the fallback (intro) engine. The intro chunk itself is
// never retried — if the intro fails, it is emitted with its error and the
// main chunks are still served by the main engine (spec.md §4.6).
func (st *StagedTTS) synthesizeWithFallback(ctx context.Context, mainEngine, fallbackEngine Engine, text string, plan ReplyPlan, index int) (Chunk, error) {
	chunkCtx, cancel := context.WithTimeout(ctx, st.chunkTimeout)
	chunk, err := st.synthesizeOne(chunkCtx, mainEngine, text, plan, false, index)
	cancel()
	if err == nil {
		return chunk, nil
	}
	if fallbackEngine == nil || fallbackEngine.Name() == mainEngine.Name() {
		return chunk, err
	}

	if st.metrics != nil {
		st.metrics.TTSFallbackCount.Add(ctx, 1)
	}

	fbCtx, cancel2 := context.WithTimeout(ctx, st.chunkTimeout)
	defer cancel2()
	return st.synthesizeOne(fbCtx, fallbackEngine, text, plan, false, index)
}
