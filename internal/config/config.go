// Package config resolves the gateway's environment-variable surface and
// loads the voice asset manifest.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config is the immutable, process-wide configuration snapshot. It is built
// once at startup by Load and passed explicitly into constructors — never
// reached via an ambient global, per the Design Notes on global mutable
// state.
type Config struct {
	WSHost      string
	WSPort      int
	MetricsPort int

	JWTSecret    string
	JWTPublicKey string
	WSToken      string
	AllowedIPs   []string

	STTModel  string
	STTDevice string

	TTSEngine             string
	TTSVoice              string
	TTSTargetSampleRate   int
	TTSLoudnessNormalize  bool
	TTSLimiterCeilingDBFS float64

	StagedTTSEnabled         bool
	StagedTTSMaxResponseLen  int
	StagedTTSMaxIntroLen     int
	StagedTTSChunkTimeout    time.Duration
	StagedTTSMaxChunks       int
	StagedTTSCrossfadeMS     int
	StagedTTSIntroEngine     string
	StagedTTSMainEngine      string
	StagedTTSEnableCaching   bool

	FlowiseURL string
	FlowiseID  string
	N8NURL     string

	EnabledSkills []string

	RetryLimit   int
	RetryBackoff time.Duration

	VoiceAssetsPath string
}

// Load resolves Config from environment variables, applying defaults for any
// key that is unset. It first attempts to load a local .env file the way
// the teacher's cmd/agent/main.go does, for local-development convenience;
// a missing .env is not an error.
func Load(envLoader func() error) (Config, []string) {
	var warnings []string
	if envLoader != nil {
		if err := envLoader(); err != nil {
			warnings = append(warnings, "no .env file found, using system environment variables")
		}
	}

	cfg := Config{
		WSHost:      getEnv("WS_HOST", "0.0.0.0"),
		WSPort:      getEnvInt("WS_PORT", 8765),
		MetricsPort: getEnvInt("METRICS_PORT", 9090),

		JWTSecret:    os.Getenv("JWT_SECRET"),
		JWTPublicKey: os.Getenv("JWT_PUBLIC_KEY"),
		WSToken:      os.Getenv("WS_TOKEN"),
		AllowedIPs:   getEnvList("ALLOWED_IPS", nil),

		STTModel:  getEnv("STT_MODEL", "whisper-large-v3-turbo"),
		STTDevice: getEnv("STT_DEVICE", "cpu"),

		TTSEngine:             getEnv("TTS_ENGINE", "auto"),
		TTSVoice:              getEnv("TTS_VOICE", "F1"),
		TTSTargetSampleRate:   getEnvInt("TTS_TARGET_SR", 24000),
		TTSLoudnessNormalize:  getEnvBool("TTS_LOUDNESS_NORMALIZE", true),
		TTSLimiterCeilingDBFS: getEnvFloat("TTS_LIMITER_CEILING_DBFS", -1.0),

		StagedTTSEnabled:        getEnvBool("STAGED_TTS_ENABLED", true),
		StagedTTSMaxResponseLen: getEnvInt("STAGED_TTS_MAX_RESPONSE_LENGTH", 500),
		StagedTTSMaxIntroLen:    getEnvInt("STAGED_TTS_MAX_INTRO_LENGTH", 120),
		StagedTTSChunkTimeout:   getEnvDuration("STAGED_TTS_CHUNK_TIMEOUT", 10*time.Second),
		StagedTTSMaxChunks:      getEnvInt("STAGED_TTS_MAX_CHUNKS", 3),
		StagedTTSCrossfadeMS:    getEnvInt("STAGED_TTS_CROSSFADE_MS", 80),
		StagedTTSIntroEngine:    getEnv("STAGED_TTS_INTRO_ENGINE", "auto"),
		StagedTTSMainEngine:     getEnv("STAGED_TTS_MAIN_ENGINE", "auto"),
		StagedTTSEnableCaching:  getEnvBool("STAGED_TTS_ENABLE_CACHING", true),

		FlowiseURL: os.Getenv("FLOWISE_URL"),
		FlowiseID:  os.Getenv("FLOWISE_ID"),
		N8NURL:     os.Getenv("N8N_URL"),

		EnabledSkills: getEnvList("ENABLED_SKILLS", []string{"time"}),

		RetryLimit:   getEnvInt("RETRY_LIMIT", 3),
		RetryBackoff: getEnvDuration("RETRY_BACKOFF", 1*time.Second),

		VoiceAssetsPath: getEnv("VOICE_ASSETS_PATH", "voices.yaml"),
	}

	if cfg.JWTSecret == "" && cfg.JWTPublicKey == "" && cfg.WSToken == "" {
		warnings = append(warnings, "no authentication configured (JWT_SECRET, JWT_PUBLIC_KEY, WS_TOKEN all empty); connections are accepted without a token check")
	}

	return cfg, warnings
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func getEnvFloat(key string, def float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return f
}

func getEnvBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	// Accept either a bare integer number of seconds or a Go duration string.
	if n, err := strconv.Atoi(v); err == nil {
		return time.Duration(n) * time.Second
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}

func getEnvList(key string, def []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
