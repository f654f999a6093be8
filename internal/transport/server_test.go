package transport

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
)

type recordingHandler struct {
	mu      sync.Mutex
	texts   []string
	closed  bool
	closeCh chan struct{}
}

func newRecordingHandler() *recordingHandler {
	return &recordingHandler{closeCh: make(chan struct{})}
}

func (h *recordingHandler) OnControl(ctx context.Context, env Envelope) error { return nil }

func (h *recordingHandler) OnAudioFrame(ctx context.Context, streamID string, seq int64, ts int64, pcm []byte) error {
	return nil
}

func (h *recordingHandler) OnText(ctx context.Context, text string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.texts = append(h.texts, text)
	return nil
}

func (h *recordingHandler) OnClose(reason string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.closed {
		h.closed = true
		close(h.closeCh)
	}
}

func startTestServer(t *testing.T, factory HandlerFactory) *httptest.Server {
	t.Helper()
	auth, err := NewAuthenticator("", "", nil)
	if err != nil {
		t.Fatal(err)
	}

	srv := NewServer("", auth, nil, factory)
	ts := httptest.NewServer(http.HandlerFunc(srv.handleUpgrade))
	return ts
}

func TestServerHandshakeAndTextDispatch(t *testing.T) {
	var handler *recordingHandler
	ts := startTestServer(t, func(c *Conn) Handler {
		handler = newRecordingHandler()
		return handler
	})
	defer ts.Close()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	if err := wsjson.Write(ctx, conn, map[string]interface{}{
		"op":           "hello",
		"version":      "1",
		"capabilities": []string{"binary_audio"},
	}); err != nil {
		t.Fatalf("write hello failed: %v", err)
	}

	var ready Ready
	if err := wsjson.Read(ctx, conn, &ready); err != nil {
		t.Fatalf("read ready failed: %v", err)
	}
	if !ready.Features.BinaryAudio {
		t.Error("expected binary_audio negotiated")
	}

	if err := wsjson.Write(ctx, conn, map[string]interface{}{"op": "text", "content": "hello there"}); err != nil {
		t.Fatalf("write text failed: %v", err)
	}

	deadline := time.After(2 * time.Second)
	for {
		handlerSet := handler != nil
		if handlerSet {
			handler.mu.Lock()
			gotText := len(handler.texts) > 0
			handler.mu.Unlock()
			if gotText {
				break
			}
		}
		select {
		case <-deadline:
			t.Fatal("timed out waiting for text dispatch")
		case <-time.After(10 * time.Millisecond):
		}
	}

	handler.mu.Lock()
	defer handler.mu.Unlock()
	if handler.texts[0] != "hello there" {
		t.Errorf("expected dispatched text %q, got %q", "hello there", handler.texts[0])
	}
}
