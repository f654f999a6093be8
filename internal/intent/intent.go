// Package intent implements spec.md §4.5: skill dispatch, LLM/agent
// fallback, automation webhook, and the Echo terminal fallback, with
// bounded retries against external services.
package intent

import (
	"context"
	"errors"
	"strings"

	"github.com/lokutor-ai/lokutor-gateway/pkg/orchestrator"
)

// errEmptyLLMReply is the routing error recorded when the LLM answers with
// an empty (after trim) completion.
var errEmptyLLMReply = errors.New("intent: empty llm reply")

// Kind classifies an Intent's resolution path (spec.md §3: "The router
// produces exactly one variant per utterance").
type Kind string

const (
	KindLocalSkill   Kind = "local_skill"
	KindExternalLLM  Kind = "external_agent"
	KindAutomation   Kind = "automation"
	KindEcho         Kind = "echo"
)

// Intent is the tagged-union result of routing one utterance.
type Intent struct {
	Kind        Kind
	SkillName   string
	EndpointRef string
	Reply       string
	Async       bool
	RoutingErr  error
}

// Skill answers whether it can handle an utterance and, if so, produces the
// reply text. Skills are discovered at startup via a compile-time Registry
// table (Design Notes: replace dynamic plugin discovery with an explicit
// registry), not runtime reflection.
type Skill struct {
	Name      string
	Async     bool
	CanHandle func(text string, lang orchestrator.Language) bool
	Handle    func(ctx context.Context, text string) (string, error)
}

// Router resolves an Utterance to an Intent following spec.md §4.5's
// four-step policy: skill match, LLM/agent, automation webhook, Echo.
type Router struct {
	skills  []Skill
	llm     orchestrator.LLMProvider
	webhook *WebhookClient
	retry   RetryPolicy
}

// NewRouter creates a Router. llm and webhook may be nil if not configured;
// the router degrades to Echo when neither is available.
func NewRouter(skills []Skill, llm orchestrator.LLMProvider, webhook *WebhookClient, retry RetryPolicy) *Router {
	return &Router{skills: skills, llm: llm, webhook: webhook, retry: retry}
}

// Route resolves text against skills, then LLM, then webhook, then falls
// through to Echo. messages is the session's conversation context, passed
// to the LLM when selected.
func (r *Router) Route(ctx context.Context, text string, lang orchestrator.Language, messages []orchestrator.Message) Intent {
	// 1. Skill match — first registered skill claiming the text wins.
	for _, skill := range r.skills {
		if !skill.CanHandle(text, lang) {
			continue
		}
		reply, err := skill.Handle(ctx, text)
		if err != nil {
			continue
		}
		return Intent{Kind: KindLocalSkill, SkillName: skill.Name, Reply: reply, Async: skill.Async}
	}

	var routingErr error

	// 2. LLM/Agent.
	if r.llm != nil {
		reply, err := callWithRetry(ctx, r.retry, func(ctx context.Context) (string, error) {
			return r.llm.Complete(ctx, messages)
		})
		if err != nil {
			routingErr = err
		} else if strings.TrimSpace(reply) == "" {
			// Open Question resolution: empty LLM reply is routing_failed, not
			// a silent echo of nothing. Falls through to Echo below.
			routingErr = errEmptyLLMReply
		} else {
			return Intent{Kind: KindExternalLLM, EndpointRef: r.llm.Name(), Reply: reply}
		}
	}

	// 3. Automation webhook.
	if r.webhook != nil && r.webhook.Matches(text) {
		reply, err := callWithRetry(ctx, r.retry, func(ctx context.Context) (string, error) {
			return r.webhook.Invoke(ctx, text)
		})
		if err == nil {
			return Intent{Kind: KindAutomation, EndpointRef: r.webhook.URL, Reply: reply}
		}
		routingErr = err
	}

	// 4. Echo.
	return Intent{Kind: KindEcho, Reply: text, RoutingErr: routingErr}
}
