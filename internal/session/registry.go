package session

import (
	"sync"

	"github.com/lokutor-ai/lokutor-gateway/internal/audioingest"
	"github.com/lokutor-ai/lokutor-gateway/internal/ttsengine"
)

// streamRegistry holds the session's audio ingest manager behind a handle
// keyed by stream id, so Session never holds a direct back-reference into
// audioingest internals (Design Notes: "avoid back-reference cycles").
type streamRegistry struct {
	mu      sync.Mutex
	manager *audioingest.Manager
}

func newStreamRegistry() *streamRegistry {
	return &streamRegistry{}
}

func (r *streamRegistry) bind(manager *audioingest.Manager) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.manager = manager
}

func (r *streamRegistry) current() *audioingest.Manager {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.manager
}

func (r *streamRegistry) closeAll() {
	r.mu.Lock()
	m := r.manager
	r.mu.Unlock()
	if m != nil {
		m.CloseSession()
	}
}

// sequenceRegistry is the handle/registry (arena) for in-flight TTS
// sequences: keyed by sequence id, never referenced by pointer elsewhere,
// so a cancelled or completed sequence can be dropped without any other
// structure holding a stale reference to it.
type sequenceRegistry struct {
	mu        sync.Mutex
	sequences map[string]*ttsengine.Sequence
}

func newSequenceRegistry() *sequenceRegistry {
	return &sequenceRegistry{sequences: make(map[string]*ttsengine.Sequence)}
}

func (r *sequenceRegistry) add(seq *ttsengine.Sequence) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sequences[seq.ID()] = seq
}

func (r *sequenceRegistry) get(id string) (*ttsengine.Sequence, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	seq, ok := r.sequences[id]
	return seq, ok
}

func (r *sequenceRegistry) remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sequences, id)
}

func (r *sequenceRegistry) cancelAll() {
	r.mu.Lock()
	seqs := make([]*ttsengine.Sequence, 0, len(r.sequences))
	for _, seq := range r.sequences {
		seqs = append(seqs, seq)
	}
	r.sequences = make(map[string]*ttsengine.Sequence)
	r.mu.Unlock()

	for _, seq := range seqs {
		seq.Cancel()
	}
}
