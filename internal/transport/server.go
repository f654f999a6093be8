package transport

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/lokutor-ai/lokutor-gateway/pkg/orchestrator"
)

const (
	// outboundQueueDepth bounds the per-connection egress queue
	// (spec.md §4.1: "outbound queue is bounded").
	outboundQueueDepth = 256
	pingInterval       = 15 * time.Second
	pingTimeout        = 5 * time.Second
	maxMissedPongs     = 2
)

// Handler receives demultiplexed messages from a Conn. Session implements
// this; transport never imports internal/session to avoid a cycle.
type Handler interface {
	OnControl(ctx context.Context, env Envelope) error
	OnAudioFrame(ctx context.Context, streamID string, seq int64, ts int64, pcm []byte) error
	OnText(ctx context.Context, text string) error
	OnClose(reason string)
}

// HandlerFactory builds a Handler for a newly accepted, authenticated
// connection.
type HandlerFactory func(c *Conn) Handler

// Server accepts WebSocket upgrades, authenticates them, performs the
// handshake, and demultiplexes frames to a per-connection Handler
// (spec.md §4.1).
type Server struct {
	Addr    string
	Auth    *Authenticator
	Logger  orchestrator.Logger
	NewConn HandlerFactory

	// BinaryAudioSupported / InterimTranscriptsSupported / VADSupported
	// are the server's side of feature negotiation; the Ready.Features
	// sent to the client is the pairwise minimum of these and the
	// client's advertised capabilities.
	BinaryAudioSupported        bool
	InterimTranscriptsSupported bool
	VADSupported                bool
}

// NewServer constructs a Server with sane negotiation defaults.
func NewServer(addr string, auth *Authenticator, logger orchestrator.Logger, factory HandlerFactory) *Server {
	if logger == nil {
		logger = &orchestrator.NoOpLogger{}
	}
	return &Server{
		Addr:                        addr,
		Auth:                        auth,
		Logger:                      logger,
		NewConn:                     factory,
		BinaryAudioSupported:        true,
		InterimTranscriptsSupported: true,
		VADSupported:                true,
	}
}

// ListenAndServe runs the WebSocket server until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleUpgrade)

	httpServer := &http.Server{Addr: s.Addr, Handler: mux}

	errCh := make(chan error, 1)
	go func() {
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func (s *Server) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	if !s.Auth.CheckIP(r.RemoteAddr) {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	token := r.URL.Query().Get("token")
	if token == "" {
		token = strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	}
	if err := s.Auth.Authenticate(token); err != nil {
		conn, acceptErr := websocket.Accept(w, r, nil)
		if acceptErr == nil {
			conn.Close(websocket.StatusCode(4401), "unauthorized")
		} else {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
		}
		return
	}

	wsConn, err := websocket.Accept(w, r, nil)
	if err != nil {
		s.Logger.Warn("transport: accept failed", "err", err)
		return
	}

	c := newConn(wsConn, s.Logger)
	handler := s.NewConn(c)
	c.run(r.Context(), s, handler)
}

// Conn is one accepted, authenticated connection.
type Conn struct {
	ws     *websocket.Conn
	logger orchestrator.Logger

	mu       sync.Mutex
	outbound chan outboundMsg
	closed   bool

	featuresMu sync.RWMutex
	features   Features
}

type outboundMsg struct {
	data     []byte
	telemetry bool
}

func newConn(ws *websocket.Conn, logger orchestrator.Logger) *Conn {
	return &Conn{
		ws:       ws,
		logger:   logger,
		outbound: make(chan outboundMsg, outboundQueueDepth),
	}
}

// Emit enqueues msg as an outbound JSON message. telemetry messages (e.g.
// interim transcripts, acknowledgements) are the first to be dropped under
// backpressure; audio/control-critical messages are not.
func (c *Conn) Emit(msg interface{}, telemetry bool) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("transport: marshal outbound message: %w", err)
	}

	select {
	case c.outbound <- outboundMsg{data: data, telemetry: telemetry}:
		return nil
	default:
		if c.dropOldestTelemetry() {
			select {
			case c.outbound <- outboundMsg{data: data, telemetry: telemetry}:
				return nil
			default:
			}
		}
		return fmt.Errorf("transport: outbound queue full")
	}
}

// dropOldestTelemetry drains one telemetry message from the front of the
// queue to make room, per the backpressure policy in spec.md §4.1 ("drops
// non-audio telemetry first").
func (c *Conn) dropOldestTelemetry() bool {
	for i := 0; i < outboundQueueDepth; i++ {
		select {
		case m := <-c.outbound:
			if m.telemetry {
				return true
			}
			// Not telemetry: put it back at the tail; best effort, may
			// reorder under contention but only during overflow.
			select {
			case c.outbound <- m:
			default:
			}
		default:
			return false
		}
	}
	return false
}

// SetFeatures records the negotiated feature set for this connection.
func (c *Conn) SetFeatures(f Features) {
	c.featuresMu.Lock()
	defer c.featuresMu.Unlock()
	c.features = f
}

func (c *Conn) Features() Features {
	c.featuresMu.RLock()
	defer c.featuresMu.RUnlock()
	return c.features
}

// Close closes the underlying connection with the given code and reason.
func (c *Conn) Close(code websocket.StatusCode, reason string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	c.ws.Close(code, reason)
}

func (c *Conn) run(ctx context.Context, s *Server, handler Handler) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(3)

	go func() { defer wg.Done(); c.writeLoop(ctx) }()
	go func() { defer wg.Done(); c.pingLoop(ctx, cancel) }()
	go func() {
		defer wg.Done()
		defer cancel()
		c.readLoop(ctx, s, handler)
	}()

	wg.Wait()
	handler.OnClose("closed")
}

func (c *Conn) writeLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case m := <-c.outbound:
			writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			err := c.ws.Write(writeCtx, websocket.MessageText, m.data)
			cancel()
			if err != nil {
				c.logger.Warn("transport: write failed", "err", err)
				return
			}
		}
	}
}

func (c *Conn) pingLoop(ctx context.Context, cancel context.CancelFunc) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	missed := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			pingCtx, pcancel := context.WithTimeout(ctx, pingTimeout)
			err := c.ws.Ping(pingCtx)
			pcancel()
			if err != nil {
				missed++
				if missed >= maxMissedPongs {
					c.logger.Warn("transport: missed pongs, closing")
					c.Close(websocket.StatusCode(1011), "ping timeout")
					cancel()
					return
				}
				continue
			}
			missed = 0
		}
	}
}

func (c *Conn) readLoop(ctx context.Context, s *Server, handler Handler) {
	ready := false

	for {
		msgType, data, err := c.ws.Read(ctx)
		if err != nil {
			return
		}

		switch msgType {
		case websocket.MessageText:
			env, err := ParseEnvelope(data)
			if err != nil {
				c.Emit(NewError(ErrKindInvalidMessage, err.Error()), true)
				continue
			}

			if !ready {
				if env.Kind() != "hello" {
					c.Emit(NewError(ErrKindInvalidMessage, "expected hello"), true)
					continue
				}
				var hello Hello
				json.Unmarshal(env.Raw, &hello)
				features := s.negotiate(hello.Capabilities)
				c.SetFeatures(features)
				c.Emit(Ready{Op: "ready", Features: features}, false)
				ready = true
				continue
			}

			if err := c.dispatchControl(ctx, env, handler); err != nil {
				c.logger.Warn("transport: control dispatch error", "err", err)
			}

		case websocket.MessageBinary:
			if !ready || !c.Features().BinaryAudio {
				continue
			}
			frame, err := DecodeBinaryFrame(data)
			if err != nil {
				continue
			}
			handler.OnAudioFrame(ctx, frame.StreamID, int64(frame.Sequence), int64(frame.Timestamp), frame.PCM)
		}
	}
}

func (c *Conn) dispatchControl(ctx context.Context, env Envelope, handler Handler) error {
	switch env.Kind() {
	case "audio_chunk":
		var msg AudioChunk
		if err := json.Unmarshal(env.Raw, &msg); err != nil {
			return err
		}
		pcm, err := base64.StdEncoding.DecodeString(msg.Chunk)
		if err != nil {
			return err
		}
		return handler.OnAudioFrame(ctx, msg.StreamID, msg.Sequence, msg.Timestamp, pcm)
	case "text":
		var msg TextInput
		if err := json.Unmarshal(env.Raw, &msg); err != nil {
			return err
		}
		return handler.OnText(ctx, msg.Content)
	default:
		return handler.OnControl(ctx, env)
	}
}

// negotiate computes the pairwise minimum of client capabilities and
// server support.
func (s *Server) negotiate(clientCaps []string) Features {
	has := func(name string) bool {
		for _, c := range clientCaps {
			if c == name {
				return true
			}
		}
		return false
	}
	return Features{
		BinaryAudio:        s.BinaryAudioSupported && has("binary_audio"),
		InterimTranscripts: s.InterimTranscriptsSupported && has("interim_transcripts"),
		VAD:                s.VADSupported && has("vad"),
	}
}
