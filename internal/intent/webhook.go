package intent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

// WebhookClient posts matched utterances to an automation endpoint (n8n,
// per spec.md's N8N_URL config key), the same bare net/http POST shape the
// teacher's LLM adapters use.
type WebhookClient struct {
	URL          string
	Token        string
	Keywords     []string
	Acknowledge  string
	httpClient   *http.Client
}

// NewWebhookClient creates a client posting to url, matching any of
// keywords case-insensitively, replying with acknowledge on success.
func NewWebhookClient(url, token string, keywords []string, acknowledge string) *WebhookClient {
	return &WebhookClient{
		URL:         url,
		Token:       token,
		Keywords:    keywords,
		Acknowledge: acknowledge,
		httpClient:  http.DefaultClient,
	}
}

// Matches reports whether text satisfies this webhook's keyword policy
// (spec.md §4.5: "a webhook endpoint is configured and a keyword policy
// matches").
func (w *WebhookClient) Matches(text string) bool {
	if len(w.Keywords) == 0 {
		return false
	}
	lower := strings.ToLower(text)
	for _, kw := range w.Keywords {
		if strings.Contains(lower, strings.ToLower(kw)) {
			return true
		}
	}
	return false
}

// Invoke POSTs {query, token} to the webhook and returns the configured
// acknowledgement string on success.
func (w *WebhookClient) Invoke(ctx context.Context, query string) (string, error) {
	payload := map[string]string{"query": query, "token": w.Token}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.URL, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("intent: webhook error (status %d)", resp.StatusCode)
	}

	return w.Acknowledge, nil
}
