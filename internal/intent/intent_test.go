package intent

import (
	"context"
	"errors"
	"regexp"
	"sync/atomic"
	"testing"
	"time"

	"github.com/lokutor-ai/lokutor-gateway/pkg/orchestrator"
)

type fakeLLM struct {
	reply string
	err   error
	calls int32
}

func (f *fakeLLM) Complete(ctx context.Context, messages []orchestrator.Message) (string, error) {
	atomic.AddInt32(&f.calls, 1)
	if f.err != nil {
		return "", f.err
	}
	return f.reply, nil
}

func (f *fakeLLM) Name() string { return "fake-llm" }

func TestSkillShortCircuit(t *testing.T) {
	r := NewRouter(BuildRegistry([]string{"time"}), &fakeLLM{reply: "should not be called"}, nil, DefaultRetryPolicy())

	intent := r.Route(context.Background(), "Wie spät ist es?", orchestrator.LanguageDe, nil)

	if intent.Kind != KindLocalSkill {
		t.Fatalf("expected KindLocalSkill, got %v", intent.Kind)
	}
	matched, _ := regexp.MatchString(`^Es ist \d{2}:\d{2} Uhr\.$`, intent.Reply)
	if !matched {
		t.Errorf("reply %q does not match expected time format", intent.Reply)
	}
}

func TestEmptyLLMReplyFallsThroughToEcho(t *testing.T) {
	r := NewRouter(nil, &fakeLLM{reply: "   "}, nil, DefaultRetryPolicy())

	intent := r.Route(context.Background(), "hello there", orchestrator.LanguageEn, nil)

	if intent.Kind != KindEcho {
		t.Fatalf("expected empty LLM reply to fall through to Echo, got %v", intent.Kind)
	}
	if intent.Reply != "hello there" {
		t.Errorf("expected echoed transcript, got %q", intent.Reply)
	}
}

func TestLLMSuccessReturnsExternalAgent(t *testing.T) {
	r := NewRouter(nil, &fakeLLM{reply: "a useful reply"}, nil, DefaultRetryPolicy())
	intent := r.Route(context.Background(), "hello", orchestrator.LanguageEn, nil)
	if intent.Kind != KindExternalLLM || intent.Reply != "a useful reply" {
		t.Fatalf("unexpected intent: %+v", intent)
	}
}

func TestNoSkillNoLLMNoWebhookFallsToEcho(t *testing.T) {
	r := NewRouter(nil, nil, nil, DefaultRetryPolicy())
	intent := r.Route(context.Background(), "raw transcript", orchestrator.LanguageEn, nil)
	if intent.Kind != KindEcho || intent.Reply != "raw transcript" {
		t.Fatalf("unexpected intent: %+v", intent)
	}
}

func TestRetryLawExhaustsExactLimitWithBackoff(t *testing.T) {
	llm := &fakeLLM{err: errors.New("unavailable")}
	policy := RetryPolicy{Limit: 3, Base: time.Millisecond, Cap: 10 * time.Millisecond}

	start := time.Now()
	_, err := callWithRetry(context.Background(), policy, func(ctx context.Context) (string, error) {
		return llm.Complete(ctx, nil)
	})
	elapsed := time.Since(start)

	if err == nil {
		t.Fatal("expected error after retries exhausted")
	}
	if atomic.LoadInt32(&llm.calls) != 3 {
		t.Fatalf("expected exactly 3 attempts, got %d", llm.calls)
	}
	// Two backoff sleeps between three attempts: ~1ms + ~2ms.
	if elapsed < time.Millisecond {
		t.Errorf("expected at least one backoff delay to elapse, got %v", elapsed)
	}
}

func TestWebhookMatchesKeywords(t *testing.T) {
	w := NewWebhookClient("http://example.invalid", "tok", []string{"lights"}, "Done.")
	if !w.Matches("turn off the lights please") {
		t.Error("expected keyword match")
	}
	if w.Matches("what's the weather") {
		t.Error("expected no keyword match")
	}
}
