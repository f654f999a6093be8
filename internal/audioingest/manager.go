package audioingest

import (
	"fmt"
	"sync"
)

// ErrStreamExists is returned when start_audio_stream is requested while a
// stream is already Active (spec.md §3 invariant: "a session has at-most-one
// stream in state Active").
var ErrStreamExists = fmt.Errorf("audioingest: a stream is already active")

// ErrNoActiveStream is returned when a frame or end arrives for a session
// with no Active stream.
var ErrNoActiveStream = fmt.Errorf("audioingest: no active stream")

// ErrUnknownStream is returned when a frame references a stream id that
// does not match the current Active stream.
var ErrUnknownStream = fmt.Errorf("audioingest: unknown stream id")

// Manager owns the at-most-one Active AudioStream for a single session.
type Manager struct {
	mu     sync.Mutex
	cfg    Config
	stream *Stream
	queue  *Queue
}

// NewManager creates a Manager using cfg for every stream it opens.
func NewManager(cfg Config) *Manager {
	return &Manager{cfg: cfg}
}

// Start opens a fresh Active stream, failing if one is already active.
func (m *Manager) Start(streamID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.stream != nil && m.stream.IsActive() {
		return ErrStreamExists
	}
	m.stream = NewStream(streamID, m.cfg)
	m.queue = NewQueue(m.cfg.QueueDepth)
	return nil
}

// PushFrame enqueues a frame for the current Active stream. Queue overflow
// silently drops the oldest frame (spec.md §4.3); the caller should drain
// with DrainAndApply on its own goroutine.
func (m *Manager) PushFrame(streamID string, f Frame) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.stream == nil || !m.stream.IsActive() {
		return ErrNoActiveStream
	}
	if m.stream.StreamID != streamID {
		return ErrUnknownStream
	}
	dropped := m.queue.Dropped()
	m.queue.Push(f)
	if m.queue.Dropped() > dropped {
		m.stream.incrementDropped()
	}
	return nil
}

// DrainAndApply pops every currently queued frame and applies it to the
// stream, returning a PushResult for the frame that triggered finalization
// (if any) along with the stream that was active while draining.
func (m *Manager) DrainAndApply() (*Stream, PushResult) {
	m.mu.Lock()
	stream := m.stream
	queue := m.queue
	m.mu.Unlock()

	if stream == nil || queue == nil {
		return nil, PushResult{}
	}

	for {
		f, ok := queue.Pop()
		if !ok {
			return stream, PushResult{}
		}
		res := stream.PushFrame(f.Sequence, f.PCM)
		if res.Finalized {
			return stream, res
		}
	}
}

// End explicitly finalizes the current stream and returns its accumulated
// buffer.
func (m *Manager) End(streamID string) ([]byte, error) {
	m.mu.Lock()
	stream := m.stream
	m.mu.Unlock()

	if stream == nil || stream.StreamID != streamID {
		return nil, ErrUnknownStream
	}
	return stream.Finalize(EndExplicit), nil
}

// Current returns the currently active stream, or nil.
func (m *Manager) Current() *Stream {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stream
}

// CloseSession force-finalizes any Active stream on session close.
func (m *Manager) CloseSession() {
	m.mu.Lock()
	stream := m.stream
	m.mu.Unlock()
	if stream != nil && stream.IsActive() {
		stream.Finalize(EndSession)
	}
}

// DroppedFrameTotal returns the total dropped-frame count across the
// current stream's queue.
func (m *Manager) DroppedFrameTotal() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.queue == nil {
		return 0
	}
	return m.queue.Dropped()
}
