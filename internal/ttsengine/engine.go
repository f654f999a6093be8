// Package ttsengine implements spec.md §4.6, the hardest subsystem: staged
// two-engine TTS orchestration with ordered chunk emission, a fingerprint
// cache with at-most-one in-flight synthesis per key, and per-chunk
// timeout/fallback.
package ttsengine

import (
	"context"
	"fmt"
	"sync"
)

// SynthesisParams carries the voice/language/speed parameters for one
// synthesis call.
type SynthesisParams struct {
	Voice    string
	Language string
	Speed    float64
}

// Engine is the tagged-variant capability interface from the Design Notes:
// "Model TTS ... engines as a tagged variant set over a capability
// interface ... Add new engines by adding a variant — no base class, no
// runtime reflection."
type Engine interface {
	Name() string
	Initialize(ctx context.Context) error
	Synthesize(ctx context.Context, text string, params SynthesisParams) ([]byte, int, error)
	ListVoices() []string
	IsAvailable(voice string) bool
}

// Registry is the process-wide EngineRegistry singleton (spec.md §3). It is
// read-mostly: registration takes the write lock, and reads take the shared
// read lock of the same RWMutex.
type Registry struct {
	mu      sync.RWMutex
	engines map[string]Engine
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{engines: make(map[string]Engine)}
}

// Register adds or replaces an engine by name, initializing it.
func (r *Registry) Register(ctx context.Context, e Engine) error {
	if err := e.Initialize(ctx); err != nil {
		return fmt.Errorf("ttsengine: initialize %q: %w", e.Name(), err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.engines[e.Name()] = e
	return nil
}

// Get returns the named engine, or nil if not registered.
func (r *Registry) Get(name string) Engine {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.engines[name]
}

// Names returns all registered engine names.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.engines))
	for n := range r.engines {
		names = append(names, n)
	}
	return names
}

// Resolve resolves a requested engine name (possibly "auto") against the
// registry for a given voice, skipping engines whose assets for that voice
// are unavailable (spec.md §4.6 "Plan resolution"). "auto" resolves to the
// first available engine in preferred order.
func (r *Registry) Resolve(requested string, voice string, preferredOrder []string) (Engine, bool) {
	if requested != "" && requested != "auto" {
		e := r.Get(requested)
		if e != nil && e.IsAvailable(voice) {
			return e, true
		}
		return nil, false
	}

	for _, name := range preferredOrder {
		e := r.Get(name)
		if e != nil && e.IsAvailable(voice) {
			return e, true
		}
	}
	return nil, false
}
