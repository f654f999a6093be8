// Package sttadapter implements spec.md §4.4: in-memory transcription of a
// completed audio segment, dispatched on a dedicated worker pool so
// transcription never blocks the connection thread.
package sttadapter

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/lokutor-ai/lokutor-gateway/pkg/orchestrator"
)

// Utterance is the textual result of one transcription (spec.md §3).
type Utterance struct {
	StreamID   string
	Transcript string
	Language   orchestrator.Language
	Confidence float64
	StartedAt  time.Time
	EndedAt    time.Time
}

// FailureKind classifies why a transcription failed.
type FailureKind string

const (
	FailureModelLoad FailureKind = "model_load_error"
	FailureDecode    FailureKind = "decode_error"
	FailureTimeout   FailureKind = "timeout"
)

// Failure is the typed error surfaced when transcription does not produce
// an Utterance (spec.md §4.4).
type Failure struct {
	Kind FailureKind
	Err  error
}

func (f *Failure) Error() string {
	return fmt.Sprintf("sttadapter: %s: %v", f.Kind, f.Err)
}

func (f *Failure) Unwrap() error { return f.Err }

// DefaultConcurrency is the worker pool size (spec.md §4.4 default 2).
const DefaultConcurrency = 2

// DefaultTimeout bounds a single transcription call.
const DefaultTimeout = 30 * time.Second

// Adapter dispatches transcription requests to a bounded worker pool over
// an orchestrator.STTProvider.
type Adapter struct {
	provider orchestrator.STTProvider
	sem      chan struct{}
	timeout  time.Duration

	mu          sync.Mutex
	model       string
	device      string
	gpuDetected bool
}

// New creates an Adapter with the given provider and concurrency (falls
// back to DefaultConcurrency if concurrency <= 0).
func New(provider orchestrator.STTProvider, concurrency int, timeout time.Duration) *Adapter {
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Adapter{
		provider: provider,
		sem:      make(chan struct{}, concurrency),
		timeout:  timeout,
	}
}

// Transcribe runs transcription on the worker pool, blocking the caller
// (not the connection thread — callers invoke this from a goroutine) until
// a worker slot is free and the call completes or times out.
func (a *Adapter) Transcribe(ctx context.Context, streamID string, pcm []byte, lang orchestrator.Language) (*Utterance, *Failure) {
	select {
	case a.sem <- struct{}{}:
		defer func() { <-a.sem }()
	case <-ctx.Done():
		return nil, &Failure{Kind: FailureTimeout, Err: ctx.Err()}
	}

	callCtx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	start := time.Now()

	if len(pcm) == 0 {
		return nil, &Failure{Kind: FailureDecode, Err: fmt.Errorf("empty audio buffer")}
	}

	text, err := a.provider.Transcribe(callCtx, pcm, lang)
	if err != nil {
		kind := FailureDecode
		if callCtx.Err() != nil {
			kind = FailureTimeout
		}
		return nil, &Failure{Kind: kind, Err: err}
	}

	end := time.Now()
	return &Utterance{
		StreamID:   streamID,
		Transcript: text,
		Language:   lang,
		Confidence: 1.0,
		StartedAt:  start,
		EndedAt:    end,
	}, nil
}

// SwitchModel applies lazily on next transcription, per spec.md §4.4; the
// concrete provider stores the new model and picks it up on its next call.
func (a *Adapter) SwitchModel(model string) {
	a.mu.Lock()
	a.model = model
	a.mu.Unlock()

	if s, ok := a.provider.(interface{ SetModel(string) }); ok {
		s.SetModel(model)
	}
}

// Discovery describes the available STT models and device info (spec.md
// §4.4: "The adapter exposes a discovery call listing available models and
// whether a GPU device is available").
type Discovery struct {
	Provider string
	Device   string
	GPU      bool
}

// Discover returns the adapter's provider name and device info.
func (a *Adapter) Discover() Discovery {
	return Discovery{
		Provider: a.provider.Name(),
		Device:   a.device,
		GPU:      a.gpuDetected,
	}
}

// SetDevice records the configured STT device (e.g. "cpu", "cuda:0").
func (a *Adapter) SetDevice(device string) {
	a.mu.Lock()
	a.device = device
	a.gpuDetected = device != "" && device != "cpu"
	a.mu.Unlock()
}

// Healthy reports whether the worker pool has free capacity, used by
// internal/health's STT checker.
func (a *Adapter) Healthy() bool {
	return len(a.sem) < cap(a.sem)
}
