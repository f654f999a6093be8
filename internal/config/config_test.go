package config

import (
	"os"
	"strings"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	os.Clearenv()
	os.Setenv("WS_TOKEN", "test-token")

	cfg, warnings := Load(nil)

	if cfg.WSHost != "0.0.0.0" {
		t.Errorf("expected default WSHost, got %q", cfg.WSHost)
	}
	if cfg.WSPort != 8765 {
		t.Errorf("expected default WSPort 8765, got %d", cfg.WSPort)
	}
	if cfg.StagedTTSMaxChunks != 3 {
		t.Errorf("expected default StagedTTSMaxChunks 3, got %d", cfg.StagedTTSMaxChunks)
	}
	if cfg.RetryLimit != 3 {
		t.Errorf("expected default RetryLimit 3, got %d", cfg.RetryLimit)
	}
	for _, w := range warnings {
		if w == "no authentication configured (JWT_SECRET, JWT_PUBLIC_KEY, WS_TOKEN all empty); connections are accepted without a token check" {
			t.Errorf("unexpected auth warning when WS_TOKEN is set")
		}
	}
}

func TestLoadOverrides(t *testing.T) {
	os.Clearenv()
	os.Setenv("WS_PORT", "9999")
	os.Setenv("STAGED_TTS_ENABLED", "false")
	os.Setenv("ALLOWED_IPS", "127.0.0.1, 10.0.0.0/8")

	cfg, _ := Load(nil)

	if cfg.WSPort != 9999 {
		t.Errorf("expected overridden WSPort 9999, got %d", cfg.WSPort)
	}
	if cfg.StagedTTSEnabled {
		t.Errorf("expected StagedTTSEnabled false")
	}
	if len(cfg.AllowedIPs) != 2 {
		t.Fatalf("expected 2 allowed ips, got %d", len(cfg.AllowedIPs))
	}
}

func TestLoadWarnsOnNoAuth(t *testing.T) {
	os.Clearenv()
	_, warnings := Load(nil)

	found := false
	for _, w := range warnings {
		if w != "" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected a warning when no auth is configured")
	}
}

func TestDecodeVoiceManifest(t *testing.T) {
	yaml := `
voices:
  - voice: F1
    engines:
      synthetic: "builtin:f1"
      lokutor: "voice-f1-remote"
  - voice: M1
    engines:
      lokutor: "voice-m1-remote"
`
	m, err := DecodeVoiceManifest(strings.NewReader(yaml))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(m.Voices) != 2 {
		t.Fatalf("expected 2 voices, got %d", len(m.Voices))
	}

	asset, ok := m.AssetFor("F1", "synthetic")
	if !ok || asset != "builtin:f1" {
		t.Errorf("expected F1/synthetic asset, got %q ok=%v", asset, ok)
	}

	_, ok = m.AssetFor("F1", "nonexistent")
	if ok {
		t.Errorf("expected no asset for unknown engine")
	}

	engines := m.AvailableEngines()
	if !engines["synthetic"] || !engines["lokutor"] {
		t.Errorf("expected both engines present, got %v", engines)
	}
}
