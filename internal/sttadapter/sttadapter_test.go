package sttadapter

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/lokutor-ai/lokutor-gateway/pkg/orchestrator"
)

type fakeSTT struct {
	delay   time.Duration
	text    string
	failErr error
	calls   int32
}

func (f *fakeSTT) Transcribe(ctx context.Context, audio []byte, lang orchestrator.Language) (string, error) {
	atomic.AddInt32(&f.calls, 1)
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if f.failErr != nil {
		return "", f.failErr
	}
	return f.text, nil
}

func (f *fakeSTT) Name() string { return "fake-stt" }

func TestTranscribeSuccess(t *testing.T) {
	provider := &fakeSTT{text: "hello world"}
	a := New(provider, 2, time.Second)

	utt, fail := a.Transcribe(context.Background(), "stream-1", []byte{1, 2, 3}, orchestrator.LanguageEn)
	if fail != nil {
		t.Fatalf("unexpected failure: %v", fail)
	}
	if utt.Transcript != "hello world" {
		t.Errorf("expected transcript, got %q", utt.Transcript)
	}
}

func TestTranscribeEmptyBufferIsDecodeFailure(t *testing.T) {
	a := New(&fakeSTT{}, 2, time.Second)
	_, fail := a.Transcribe(context.Background(), "s1", nil, orchestrator.LanguageEn)
	if fail == nil || fail.Kind != FailureDecode {
		t.Fatalf("expected decode failure, got %v", fail)
	}
}

func TestTranscribeProviderError(t *testing.T) {
	a := New(&fakeSTT{failErr: errors.New("boom")}, 2, time.Second)
	_, fail := a.Transcribe(context.Background(), "s1", []byte{1}, orchestrator.LanguageEn)
	if fail == nil || fail.Kind != FailureDecode {
		t.Fatalf("expected decode failure, got %v", fail)
	}
}

func TestTranscribeTimeout(t *testing.T) {
	a := New(&fakeSTT{delay: 100 * time.Millisecond}, 1, 10*time.Millisecond)
	_, fail := a.Transcribe(context.Background(), "s1", []byte{1}, orchestrator.LanguageEn)
	if fail == nil || fail.Kind != FailureTimeout {
		t.Fatalf("expected timeout failure, got %v", fail)
	}
}

func TestConcurrencyBounded(t *testing.T) {
	provider := &fakeSTT{delay: 50 * time.Millisecond, text: "ok"}
	a := New(provider, 2, time.Second)

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			a.Transcribe(context.Background(), "s1", []byte{1}, orchestrator.LanguageEn)
		}()
	}
	wg.Wait()

	if atomic.LoadInt32(&provider.calls) != 5 {
		t.Fatalf("expected all 5 calls to complete, got %d", provider.calls)
	}
}

func TestDiscovery(t *testing.T) {
	a := New(&fakeSTT{}, 2, time.Second)
	a.SetDevice("cuda:0")
	d := a.Discover()
	if !d.GPU || d.Device != "cuda:0" || d.Provider != "fake-stt" {
		t.Fatalf("unexpected discovery: %+v", d)
	}
}
