package audioingest

import (
	"testing"
	"time"
)

func testConfig() Config {
	return Config{
		MaxDuration:   100 * time.Second,
		SilenceWindow: 1,
		QueueDepth:    4,
		VADEnabled:    false,
	}
}

func TestStartFailsWhenStreamAlreadyActive(t *testing.T) {
	m := NewManager(testConfig())
	if err := m.Start("s1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := m.Start("s2"); err != ErrStreamExists {
		t.Fatalf("expected ErrStreamExists, got %v", err)
	}
}

func TestPushFrameRequiresActiveStream(t *testing.T) {
	m := NewManager(testConfig())
	err := m.PushFrame("s1", Frame{Sequence: 1, PCM: []byte{1, 2}})
	if err != ErrNoActiveStream {
		t.Fatalf("expected ErrNoActiveStream, got %v", err)
	}
}

func TestPushFrameRejectsWrongStreamID(t *testing.T) {
	m := NewManager(testConfig())
	m.Start("s1")
	err := m.PushFrame("other", Frame{Sequence: 1, PCM: []byte{1, 2}})
	if err != ErrUnknownStream {
		t.Fatalf("expected ErrUnknownStream, got %v", err)
	}
}

func TestDrainAndApplyAccumulatesBuffer(t *testing.T) {
	m := NewManager(testConfig())
	m.Start("s1")
	m.PushFrame("s1", Frame{Sequence: 1, PCM: []byte{1, 2}})
	m.PushFrame("s1", Frame{Sequence: 2, PCM: []byte{3, 4}})

	stream, res := m.DrainAndApply()
	if stream == nil {
		t.Fatal("expected a stream")
	}
	if res.Finalized {
		t.Fatal("did not expect finalization")
	}
	buf := stream.Buffer()
	if len(buf) != 4 {
		t.Fatalf("expected 4 accumulated bytes, got %d", len(buf))
	}
}

func TestOutOfOrderFramesRejected(t *testing.T) {
	s := NewStream("s1", testConfig())
	r1 := s.PushFrame(2, []byte{1, 2})
	if !r1.Accepted {
		t.Fatal("expected first frame accepted")
	}
	r2 := s.PushFrame(1, []byte{3, 4})
	if r2.Accepted {
		t.Fatal("expected out-of-order frame rejected")
	}
	if s.RejectedSequences() != 1 {
		t.Fatalf("expected 1 rejected sequence, got %d", s.RejectedSequences())
	}
}

func TestDurationBoundForceFinalizes(t *testing.T) {
	cfg := testConfig()
	cfg.MaxDuration = 0
	s := NewStream("s1", cfg)
	res := s.PushFrame(1, []byte{1, 2})
	if !res.Finalized || res.EndReason != EndDuration {
		t.Fatalf("expected duration-bound finalization, got %+v", res)
	}
}

func TestQueueDropsOldestOnOverflow(t *testing.T) {
	q := NewQueue(2)
	q.Push(Frame{Sequence: 1})
	q.Push(Frame{Sequence: 2})
	q.Push(Frame{Sequence: 3})

	if q.Dropped() != 1 {
		t.Fatalf("expected 1 dropped frame, got %d", q.Dropped())
	}
	f, ok := q.Pop()
	if !ok || f.Sequence != 2 {
		t.Fatalf("expected oldest remaining frame to be sequence 2, got %+v", f)
	}
}

func TestCloseSessionFinalizesActiveStream(t *testing.T) {
	m := NewManager(testConfig())
	m.Start("s1")
	m.CloseSession()
	if m.Current().IsActive() {
		t.Fatal("expected stream finalized on session close")
	}
}
