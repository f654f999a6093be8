// Command server runs the lokutor-gateway WebSocket voice orchestration
// service: it accepts authenticated WebSocket connections, ingests PCM16
// audio, transcribes and routes each utterance, and streams back staged
// TTS audio, all per spec.md. Provider selection follows the same
// environment-variable convention as the teacher's cmd/agent demo
// (*_PROVIDER env vars choosing among the same provider adapters),
// generalized from one hardwired local session to a multi-client server.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/lokutor-ai/lokutor-gateway/internal/audioingest"
	"github.com/lokutor-ai/lokutor-gateway/internal/config"
	"github.com/lokutor-ai/lokutor-gateway/internal/health"
	"github.com/lokutor-ai/lokutor-gateway/internal/intent"
	"github.com/lokutor-ai/lokutor-gateway/internal/logging"
	"github.com/lokutor-ai/lokutor-gateway/internal/metrics"
	llmProvider "github.com/lokutor-ai/lokutor-gateway/internal/providers/llm"
	sttProvider "github.com/lokutor-ai/lokutor-gateway/internal/providers/stt"
	ttsProvider "github.com/lokutor-ai/lokutor-gateway/internal/providers/tts"
	"github.com/lokutor-ai/lokutor-gateway/internal/session"
	"github.com/lokutor-ai/lokutor-gateway/internal/sttadapter"
	"github.com/lokutor-ai/lokutor-gateway/internal/transport"
	"github.com/lokutor-ai/lokutor-gateway/internal/ttsengine"
	"github.com/lokutor-ai/lokutor-gateway/pkg/orchestrator"
)

func main() {
	logger := logging.NewDefault(slog.LevelInfo)

	cfg, warnings := config.Load(func() error { return godotenv.Load() })
	for _, w := range warnings {
		logger.Warn("config: " + w)
	}

	stt, _, err := buildSTTProvider()
	if err != nil {
		logger.Error("server: stt provider setup failed", "err", err)
		os.Exit(1)
	}

	llm, _, err := buildLLMProvider()
	if err != nil {
		logger.Error("server: llm provider setup failed", "err", err)
		os.Exit(1)
	}

	lokutorKey := os.Getenv("LOKUTOR_API_KEY")
	if lokutorKey == "" {
		logger.Error("server: LOKUTOR_API_KEY must be set")
		os.Exit(1)
	}
	lokutorProvider := ttsProvider.NewLokutorTTS(lokutorKey)

	mp, shutdownMetrics, err := metrics.InitProvider()
	if err != nil {
		logger.Error("server: metrics provider init failed", "err", err)
		os.Exit(1)
	}
	collector, err := metrics.New(mp)
	if err != nil {
		logger.Error("server: metrics collector init failed", "err", err)
		os.Exit(1)
	}

	ctx := context.Background()
	engines := ttsengine.NewRegistry()
	if err := engines.Register(ctx, ttsengine.NewSyntheticEngine(allVoices())); err != nil {
		logger.Error("server: synthetic engine registration failed", "err", err)
		os.Exit(1)
	}
	if err := engines.Register(ctx, ttsengine.NewLokutorEngine(lokutorProvider, allVoices())); err != nil {
		logger.Error("server: lokutor engine registration failed", "err", err)
		os.Exit(1)
	}

	cache := ttsengine.NewFingerprintCache(256)
	staged := ttsengine.NewStagedTTS(cache, cfg.StagedTTSChunkTimeout)
	staged.SetMetrics(collector)

	sttAdapter := sttadapter.New(stt, sttadapter.DefaultConcurrency, 30*time.Second)

	skills := intent.BuildRegistry(cfg.EnabledSkills)
	var webhook *intent.WebhookClient
	if cfg.N8NURL != "" {
		webhook = intent.NewWebhookClient(cfg.N8NURL, "", nil, "")
	}
	retry := intent.RetryPolicy{Limit: cfg.RetryLimit, Base: cfg.RetryBackoff, Cap: 30 * time.Second}
	router := intent.NewRouter(skills, llm, webhook, retry)

	healthHandler := health.New(
		health.Checker{Name: "tts_engines", Check: func(ctx context.Context) error {
			if len(engines.Names()) == 0 {
				return fmt.Errorf("no tts engines loaded")
			}
			return nil
		}},
		health.Checker{Name: "stt_adapter", Check: func(ctx context.Context) error {
			if !sttAdapter.Healthy() {
				return fmt.Errorf("stt adapter unhealthy")
			}
			return nil
		}},
	)

	auth, err := transport.NewAuthenticator(cfg.WSToken, cfg.JWTPublicKey, cfg.AllowedIPs)
	if err != nil {
		logger.Error("server: authenticator setup failed", "err", err)
		os.Exit(1)
	}

	planCfg := ttsengine.PlanConfig{
		Voice:          cfg.TTSVoice,
		MaxIntroLen:    cfg.StagedTTSMaxIntroLen,
		MaxResponseLen: cfg.StagedTTSMaxResponseLen,
		MaxChunks:      cfg.StagedTTSMaxChunks,
		IntroEngine:    cfg.StagedTTSIntroEngine,
		MainEngine:     cfg.StagedTTSMainEngine,
		PreferredOrder: []string{"synthetic", "lokutor"},
	}
	if !cfg.StagedTTSEnabled {
		planCfg.IntroEngine = cfg.TTSEngine
		planCfg.MainEngine = cfg.TTSEngine
	}

	pipeline := &session.Pipeline{
		STT:     sttAdapter,
		Router:  router,
		Engines: engines,
		Staged:  staged,
		PlanCfg: planCfg,
		Metrics: collector,
	}
	pipeline.AudioOut.TargetSampleRate = cfg.TTSTargetSampleRate
	pipeline.AudioOut.Normalize = cfg.TTSLoudnessNormalize
	pipeline.AudioOut.TargetDBFS = -16
	pipeline.AudioOut.LimiterCeiling = cfg.TTSLimiterCeilingDBFS

	audioCfg := audioingest.DefaultConfig()
	lang := orchestrator.LanguageEn

	factory := func(conn *transport.Conn) transport.Handler {
		return session.NewHandler(conn, pipeline, lang, audioCfg, session.Dependencies{Logger: logger, Metrics: collector})
	}

	wsAddr := fmt.Sprintf("%s:%d", cfg.WSHost, cfg.WSPort)
	wsServer := transport.NewServer(wsAddr, auth, logger, factory)

	metricsAddr := fmt.Sprintf(":%d", cfg.MetricsPort)
	metricsMux := http.NewServeMux()
	healthHandler.Register(metricsMux)
	metricsMux.Handle("/metrics", promhttp.Handler())
	metricsHTTPServer := &http.Server{Addr: metricsAddr, Handler: metricsMux}

	runCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	errCh := make(chan error, 2)
	go func() {
		logger.Info("server: websocket listener starting", "addr", wsAddr)
		errCh <- wsServer.ListenAndServe(runCtx)
	}()
	go func() {
		logger.Info("server: metrics/health listener starting", "addr", metricsAddr)
		errCh <- metricsHTTPServer.ListenAndServe()
	}()

	select {
	case sig := <-sigCh:
		logger.Info("server: shutting down", "signal", sig.String())
	case err := <-errCh:
		if err != nil {
			logger.Error("server: listener exited", "err", err)
		}
	}

	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := metricsHTTPServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("server: metrics server shutdown failed", "err", err)
	}
	if err := shutdownMetrics(shutdownCtx); err != nil {
		logger.Warn("server: metrics provider shutdown failed", "err", err)
	}
}

func buildSTTProvider() (orchestrator.STTProvider, string, error) {
	name := os.Getenv("STT_PROVIDER")
	if name == "" {
		name = "groq"
	}

	switch name {
	case "openai":
		key := os.Getenv("OPENAI_API_KEY")
		if key == "" {
			return nil, "", fmt.Errorf("OPENAI_API_KEY must be set for openai STT")
		}
		return sttProvider.NewOpenAISTT(key, "whisper-1"), name, nil
	case "deepgram":
		key := os.Getenv("DEEPGRAM_API_KEY")
		if key == "" {
			return nil, "", fmt.Errorf("DEEPGRAM_API_KEY must be set for deepgram STT")
		}
		return sttProvider.NewDeepgramSTT(key), name, nil
	case "assemblyai":
		key := os.Getenv("ASSEMBLYAI_API_KEY")
		if key == "" {
			return nil, "", fmt.Errorf("ASSEMBLYAI_API_KEY must be set for assemblyai STT")
		}
		return sttProvider.NewAssemblyAISTT(key), name, nil
	case "groq":
		fallthrough
	default:
		key := os.Getenv("GROQ_API_KEY")
		if key == "" {
			return nil, "", fmt.Errorf("GROQ_API_KEY must be set for groq STT")
		}
		model := os.Getenv("GROQ_STT_MODEL")
		if model == "" {
			model = "whisper-large-v3-turbo"
		}
		return sttProvider.NewGroqSTT(key, model), "groq", nil
	}
}

func buildLLMProvider() (orchestrator.LLMProvider, string, error) {
	name := os.Getenv("LLM_PROVIDER")
	if name == "" {
		name = "groq"
	}

	switch name {
	case "openai":
		key := os.Getenv("OPENAI_API_KEY")
		if key == "" {
			return nil, "", fmt.Errorf("OPENAI_API_KEY must be set for openai LLM")
		}
		return llmProvider.NewOpenAILLM(key, "gpt-4o"), name, nil
	case "anthropic":
		key := os.Getenv("ANTHROPIC_API_KEY")
		if key == "" {
			return nil, "", fmt.Errorf("ANTHROPIC_API_KEY must be set for anthropic LLM")
		}
		return llmProvider.NewAnthropicLLM(key, "claude-3-5-sonnet-20241022"), name, nil
	case "google":
		key := os.Getenv("GOOGLE_API_KEY")
		if key == "" {
			return nil, "", fmt.Errorf("GOOGLE_API_KEY must be set for google LLM")
		}
		return llmProvider.NewGoogleLLM(key, "gemini-1.5-flash"), name, nil
	case "groq":
		fallthrough
	default:
		key := os.Getenv("GROQ_API_KEY")
		if key == "" {
			return nil, "", fmt.Errorf("GROQ_API_KEY must be set for groq LLM")
		}
		return llmProvider.NewGroqLLM(key, "llama-3.3-70b-versatile"), "groq", nil
	}
}

func allVoices() []string {
	return []string{"F1", "F2", "F3", "F4", "F5", "M1", "M2", "M3", "M4", "M5"}
}
