package config

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"
)

// VoiceAsset maps a canonical voice identifier to the per-engine assets that
// realize it (e.g. a model file path for one engine, a speaker id for
// another). Spec.md §3: "missing mandatory assets log warnings; engines
// whose assets are missing are marked unavailable."
type VoiceAsset struct {
	Voice   string            `yaml:"voice"`
	Engines map[string]string `yaml:"engines"`
}

// VoiceManifest is the top-level document decoded from the voice assets
// YAML file.
type VoiceManifest struct {
	Voices []VoiceAsset `yaml:"voices"`
}

// LoadVoiceManifest reads and strictly decodes the YAML voice asset manifest
// at path, the way MrWong99-glyphoxa's internal/config/loader.go decodes its
// configuration: KnownFields(true) so a typo'd key is a load error rather
// than silently ignored.
func LoadVoiceManifest(path string) (*VoiceManifest, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open voice manifest %q: %w", path, err)
	}
	defer f.Close()

	m, err := DecodeVoiceManifest(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse voice manifest %q: %w", path, err)
	}
	return m, nil
}

// DecodeVoiceManifest decodes a voice manifest from r without touching the
// filesystem, so tests can construct manifests from string literals.
func DecodeVoiceManifest(r io.Reader) (*VoiceManifest, error) {
	var m VoiceManifest
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&m); err != nil {
		return nil, fmt.Errorf("config: decode voice manifest yaml: %w", err)
	}
	return &m, nil
}

// AvailableEngines returns the set of engine names that have an asset entry
// for at least one voice, logging a warning for any voice with no engines
// configured at all.
func (m *VoiceManifest) AvailableEngines() map[string]bool {
	engines := make(map[string]bool)
	for _, v := range m.Voices {
		if len(v.Engines) == 0 {
			slog.Warn("voice asset has no engine mappings", "voice", v.Voice)
			continue
		}
		for engine := range v.Engines {
			engines[engine] = true
		}
	}
	return engines
}

// AssetFor returns the asset string for the given voice/engine pair and
// whether it was found. Engines whose required assets are missing for a
// requested voice are marked unavailable by the caller (EngineRegistry).
func (m *VoiceManifest) AssetFor(voice, engine string) (string, bool) {
	for _, v := range m.Voices {
		if v.Voice != voice {
			continue
		}
		asset, ok := v.Engines[engine]
		return asset, ok
	}
	return "", false
}

// Validate checks the manifest for mandatory entries and logs warnings for
// anything missing, mirroring glyphoxa's Validate: collect errors, but only
// warn (not fail) for missing optional data since a voice simply becomes
// unavailable on the engines it lacks assets for.
func (m *VoiceManifest) Validate(mandatoryVoices []string) {
	seen := make(map[string]bool, len(m.Voices))
	for _, v := range m.Voices {
		seen[v.Voice] = true
	}
	for _, mv := range mandatoryVoices {
		if !seen[mv] {
			slog.Warn("mandatory voice asset missing from manifest", "voice", mv)
		}
	}
}
