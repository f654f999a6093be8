package ttsengine

import (
	"container/list"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"
	"unicode"
)

// Fingerprint identifies one synthesis request uniquely by the parameters
// that affect its output: engine, voice, language, speed, and the
// normalized text (spec.md §3: "FingerprintCache ... keyed by
// (engine, voice, language, speed, normalized_text)").
type Fingerprint string

// NewFingerprint derives a Fingerprint from synthesis parameters.
func NewFingerprint(engine string, params SynthesisParams, text string) Fingerprint {
	normalized := NormalizeForFingerprint(text)
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%s|%s|%.3f|%s", engine, params.Voice, params.Language, params.Speed, normalized)))
	return Fingerprint(hex.EncodeToString(sum[:]))
}

// NormalizeForFingerprint collapses whitespace and strips combining marks
// (U+0300-U+036F) so near-identical text shares a cache entry.
func NormalizeForFingerprint(text string) string {
	var b strings.Builder
	prevSpace := false
	for _, r := range text {
		if r >= 0x0300 && r <= 0x036F {
			continue
		}
		if unicode.IsSpace(r) {
			if !prevSpace && b.Len() > 0 {
				b.WriteRune(' ')
			}
			prevSpace = true
			continue
		}
		prevSpace = false
		b.WriteRune(unicode.ToLower(r))
	}
	return strings.TrimSpace(b.String())
}

type cacheEntry struct {
	key  Fingerprint
	pcm  []byte
	rate int
}

// inflight represents one synthesis job in progress; additional requesters
// for the same fingerprint wait on done rather than launching a duplicate
// synthesis (spec.md §3: "at-most-one in-flight synthesis per
// fingerprint").
type inflight struct {
	done chan struct{}
	pcm  []byte
	rate int
	err  error
}

// FingerprintCache is the process-wide cache singleton named in spec.md §3.
// It is a bounded LRU guarded by a single mutex, with a separate table of
// in-flight jobs so concurrent requesters for the same key attach to one
// synthesis call.
type FingerprintCache struct {
	mu       sync.Mutex
	capacity int
	ll       *list.List
	index    map[Fingerprint]*list.Element
	inFlight map[Fingerprint]*inflight
}

// NewFingerprintCache creates a cache bounded to capacity entries.
func NewFingerprintCache(capacity int) *FingerprintCache {
	if capacity <= 0 {
		capacity = 256
	}
	return &FingerprintCache{
		capacity: capacity,
		ll:       list.New(),
		index:    make(map[Fingerprint]*list.Element),
		inFlight: make(map[Fingerprint]*inflight),
	}
}

// Get returns a cached result for key, if present, promoting it to
// most-recently-used.
func (c *FingerprintCache) Get(key Fingerprint) ([]byte, int, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.index[key]
	if !ok {
		return nil, 0, false
	}
	c.ll.MoveToFront(el)
	entry := el.Value.(*cacheEntry)
	return entry.pcm, entry.rate, true
}

func (c *FingerprintCache) put(key Fingerprint, pcm []byte, rate int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.index[key]; ok {
		c.ll.MoveToFront(el)
		el.Value.(*cacheEntry).pcm = pcm
		el.Value.(*cacheEntry).rate = rate
		return
	}

	el := c.ll.PushFront(&cacheEntry{key: key, pcm: pcm, rate: rate})
	c.index[key] = el

	for c.ll.Len() > c.capacity {
		oldest := c.ll.Back()
		if oldest == nil {
			break
		}
		c.ll.Remove(oldest)
		delete(c.index, oldest.Value.(*cacheEntry).key)
	}
}

// Clear evicts every cached entry (spec.md §8 invariant: cache must support
// an explicit clear control message).
func (c *FingerprintCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ll.Init()
	c.index = make(map[Fingerprint]*list.Element)
}

// Len reports the number of cached entries.
func (c *FingerprintCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ll.Len()
}

// GetOrSynthesize returns a cached result for key, or invokes synth exactly
// once across any number of concurrent callers racing for the same key,
// fanning the single result out to all of them. The returned hit reports
// whether the result came from the cache rather than a fresh synth call, so
// callers can record a hit/miss metric without a separate lookup.
func (c *FingerprintCache) GetOrSynthesize(ctx context.Context, key Fingerprint, synth func(ctx context.Context) ([]byte, int, error)) (pcm []byte, rate int, hit bool, err error) {
	if pcm, rate, ok := c.Get(key); ok {
		return pcm, rate, true, nil
	}

	c.mu.Lock()
	if el, ok := c.index[key]; ok {
		c.ll.MoveToFront(el)
		entry := el.Value.(*cacheEntry)
		c.mu.Unlock()
		return entry.pcm, entry.rate, true, nil
	}
	if job, ok := c.inFlight[key]; ok {
		c.mu.Unlock()
		select {
		case <-job.done:
			return job.pcm, job.rate, false, job.err
		case <-ctx.Done():
			return nil, 0, false, ctx.Err()
		}
	}

	job := &inflight{done: make(chan struct{})}
	c.inFlight[key] = job
	c.mu.Unlock()

	pcm, rate, err = synth(ctx)

	if err == nil {
		c.put(key, pcm, rate)
	}

	c.mu.Lock()
	delete(c.inFlight, key)
	c.mu.Unlock()

	job.pcm, job.rate, job.err = pcm, rate, err
	close(job.done)

	return pcm, rate, false, err
}
