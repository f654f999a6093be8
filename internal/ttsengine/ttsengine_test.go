package ttsengine

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

type fakeEngine struct {
	name    string
	voices  []string
	calls   int32
	delay   time.Duration
	failErr error
}

func (f *fakeEngine) Name() string                             { return f.name }
func (f *fakeEngine) Initialize(ctx context.Context) error      { return nil }
func (f *fakeEngine) ListVoices() []string                      { return f.voices }
func (f *fakeEngine) IsAvailable(voice string) bool {
	for _, v := range f.voices {
		if v == voice {
			return true
		}
	}
	return len(f.voices) == 0
}

func (f *fakeEngine) Synthesize(ctx context.Context, text string, params SynthesisParams) ([]byte, int, error) {
	atomic.AddInt32(&f.calls, 1)
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, 0, ctx.Err()
		}
	}
	if f.failErr != nil {
		return nil, 0, f.failErr
	}
	return []byte(text), 16000, nil
}

func TestRegistryResolveExplicit(t *testing.T) {
	r := NewRegistry()
	e := &fakeEngine{name: "synthetic", voices: []string{"anna"}}
	r.Register(context.Background(), e)

	got, ok := r.Resolve("synthetic", "anna", nil)
	if !ok || got.Name() != "synthetic" {
		t.Fatalf("expected synthetic engine resolved, got %v ok=%v", got, ok)
	}
}

func TestRegistryResolveAutoPrefersOrder(t *testing.T) {
	r := NewRegistry()
	r.Register(context.Background(), &fakeEngine{name: "lokutor", voices: []string{"anna"}})
	r.Register(context.Background(), &fakeEngine{name: "synthetic", voices: []string{"anna"}})

	got, ok := r.Resolve("auto", "anna", []string{"lokutor", "synthetic"})
	if !ok || got.Name() != "lokutor" {
		t.Fatalf("expected lokutor preferred, got %v ok=%v", got, ok)
	}
}

func TestRegistryResolveSkipsUnavailableVoice(t *testing.T) {
	r := NewRegistry()
	r.Register(context.Background(), &fakeEngine{name: "lokutor", voices: []string{"anna"}})
	r.Register(context.Background(), &fakeEngine{name: "synthetic", voices: []string{"bob"}})

	got, ok := r.Resolve("auto", "bob", []string{"lokutor", "synthetic"})
	if !ok || got.Name() != "synthetic" {
		t.Fatalf("expected synthetic (only one with bob), got %v ok=%v", got, ok)
	}
}

func TestFingerprintCacheDedupesConcurrentSynthesis(t *testing.T) {
	cache := NewFingerprintCache(10)
	key := Fingerprint("k1")

	var calls int32
	synth := func(ctx context.Context) ([]byte, int, error) {
		atomic.AddInt32(&calls, 1)
		time.Sleep(20 * time.Millisecond)
		return []byte("audio"), 16000, nil
	}

	results := make(chan error, 5)
	for i := 0; i < 5; i++ {
		go func() {
			_, _, _, err := cache.GetOrSynthesize(context.Background(), key, synth)
			results <- err
		}()
	}
	for i := 0; i < 5; i++ {
		if err := <-results; err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	if atomic.LoadInt32(&calls) != 1 {
		t.Fatalf("expected exactly 1 synthesis call, got %d", calls)
	}
	if cache.Len() != 1 {
		t.Fatalf("expected 1 cache entry, got %d", cache.Len())
	}
}

func TestFingerprintCacheClear(t *testing.T) {
	cache := NewFingerprintCache(10)
	cache.put("k", []byte("x"), 16000)
	if cache.Len() != 1 {
		t.Fatal("expected entry before clear")
	}
	cache.Clear()
	if cache.Len() != 0 {
		t.Fatal("expected cache empty after Clear")
	}
}

func TestFingerprintCacheEvictsLRU(t *testing.T) {
	cache := NewFingerprintCache(2)
	cache.put("a", []byte("1"), 16000)
	cache.put("b", []byte("2"), 16000)
	cache.put("c", []byte("3"), 16000)

	if _, _, ok := cache.Get("a"); ok {
		t.Error("expected a evicted")
	}
	if _, _, ok := cache.Get("c"); !ok {
		t.Error("expected c present")
	}
}

func TestChunkMainRespectsMaxChunks(t *testing.T) {
	text := "Sentence one is here. Sentence two is here. Sentence three is here. Sentence four is here."
	chunks := ChunkMain(text, 2)
	if len(chunks) > 2 {
		t.Fatalf("expected at most 2 chunks, got %d: %v", len(chunks), chunks)
	}
}

func TestTruncateAtSentenceBoundary(t *testing.T) {
	text := "Short one. This sentence is much longer and should be cut off before it finishes."
	got := TruncateAtSentence(text, 20)
	if got != "Short one." {
		t.Fatalf("expected truncation at sentence boundary, got %q", got)
	}
}

func TestSanitizeStripsCombiningMarks(t *testing.T) {
	text := "café"
	got := Sanitize(text)
	if got != "cafe" {
		t.Fatalf("expected combining mark stripped, got %q", got)
	}
}

func TestStagedRunEmitsOrderedChunksIntroFirst(t *testing.T) {
	cache := NewFingerprintCache(10)
	st := NewStagedTTS(cache, time.Second)

	intro := &fakeEngine{name: "synthetic", voices: []string{"anna"}, delay: 5 * time.Millisecond}
	main := &fakeEngine{name: "lokutor", voices: []string{"anna"}}

	plan := ReplyPlan{
		Intro:       "Hello there.",
		MainChunks:  []string{"First chunk.", "Second chunk."},
		IntroEngine: intro,
		MainEngine:  main,
		Staged:      true,
		Voice:       "anna",
	}

	seq := NewSequence("seq-1", nil)
	out := st.Run(context.Background(), seq, plan)

	var chunks []Chunk
	for c := range out {
		chunks = append(chunks, c)
	}

	if len(chunks) != 3 {
		t.Fatalf("expected 3 chunks, got %d", len(chunks))
	}
	if !chunks[0].IsIntro {
		t.Fatal("expected first emitted chunk to be intro")
	}
	for i, c := range chunks {
		if c.Index != i {
			t.Errorf("chunk %d has index %d, want strictly ordered indices", i, c.Index)
		}
	}
	if seq.State() != StateCompleted {
		t.Fatalf("expected Completed, got %v", seq.State())
	}
}

func TestStagedRunFallsBackToIntroEngineOnMainFailure(t *testing.T) {
	cache := NewFingerprintCache(10)
	st := NewStagedTTS(cache, time.Second)

	intro := &fakeEngine{name: "synthetic", voices: []string{"anna"}}
	main := &fakeEngine{name: "lokutor", voices: []string{"anna"}, failErr: errors.New("upstream error")}

	plan := ReplyPlan{
		Intro:       "Hello there.",
		MainChunks:  []string{"First chunk."},
		IntroEngine: intro,
		MainEngine:  main,
		Staged:      true,
		Voice:       "anna",
	}

	seq := NewSequence("seq-2", nil)
	out := st.Run(context.Background(), seq, plan)

	var chunks []Chunk
	for c := range out {
		chunks = append(chunks, c)
	}

	if len(chunks) != 2 {
		t.Fatalf("expected 2 chunks, got %d", len(chunks))
	}
	if chunks[1].Err != nil {
		t.Fatalf("expected fallback engine to succeed, got err %v", chunks[1].Err)
	}
	if atomic.LoadInt32(&intro.calls) < 2 {
		t.Fatalf("expected intro engine used for both intro and fallback, calls=%d", intro.calls)
	}
}

func TestStagedRunBypassesWhenEnginesEqual(t *testing.T) {
	cache := NewFingerprintCache(10)
	st := NewStagedTTS(cache, time.Second)

	engine := &fakeEngine{name: "lokutor", voices: []string{"anna"}}
	registry := NewRegistry()
	registry.Register(context.Background(), engine)

	plan, err := st.Resolve(registry, "Just one short reply.", PlanConfig{
		Voice:          "anna",
		IntroEngine:    "lokutor",
		MainEngine:     "lokutor",
		MaxChunks:      3,
		MaxIntroLen:    DefaultMaxIntroLength,
		MaxResponseLen: DefaultMaxResponseLength,
	})
	if err != nil {
		t.Fatalf("unexpected resolve error: %v", err)
	}
	if plan.Staged {
		t.Fatal("expected staging bypassed when intro==main engine")
	}

	seq := NewSequence("seq-3", nil)
	out := st.Run(context.Background(), seq, plan)

	var chunks []Chunk
	for c := range out {
		chunks = append(chunks, c)
	}
	if len(chunks) == 0 {
		t.Fatal("expected at least one chunk in bypass mode")
	}
	if chunks[0].IsIntro {
		t.Fatal("expected no intro chunk in bypass mode")
	}
}

func TestResolveFailsWithNoEngineAvailable(t *testing.T) {
	st := NewStagedTTS(NewFingerprintCache(10), time.Second)
	registry := NewRegistry()

	_, err := st.Resolve(registry, "hi", PlanConfig{Voice: "anna"})
	if !errors.Is(err, ErrNoEngineAvailable) {
		t.Fatalf("expected ErrNoEngineAvailable, got %v", err)
	}
}
