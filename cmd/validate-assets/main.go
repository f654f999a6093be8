// Command validate-assets checks a voice asset manifest (spec.md §3's
// VoiceManifest) for mandatory voices and reports any engine that has no
// usable assets, without starting the gateway itself. For CI use: a
// manifest missing a mandatory voice makes it exit with status 1.
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/lokutor-ai/lokutor-gateway/internal/config"
)

func main() {
	path := flag.String("manifest", "voices.yaml", "path to the voice asset manifest")
	mandatory := flag.String("mandatory", "F1,M1", "comma-separated list of mandatory voice ids")
	flag.Parse()

	manifest, err := config.LoadVoiceManifest(*path)
	if err != nil {
		slog.Error("validate-assets: failed to load manifest", "path", *path, "err", err)
		os.Exit(1)
	}

	var mandatoryVoices []string
	for _, v := range strings.Split(*mandatory, ",") {
		v = strings.TrimSpace(v)
		if v != "" {
			mandatoryVoices = append(mandatoryVoices, v)
		}
	}

	manifest.Validate(mandatoryVoices)

	seen := make(map[string]bool, len(manifest.Voices))
	for _, v := range manifest.Voices {
		seen[v.Voice] = true
	}
	for _, mv := range mandatoryVoices {
		if !seen[mv] {
			slog.Error("validate-assets: mandatory voice missing from manifest", "path", *path, "voice", mv)
			os.Exit(1)
		}
	}

	engines := manifest.AvailableEngines()
	if len(engines) == 0 {
		slog.Error("validate-assets: manifest declares no usable engine assets", "path", *path)
		os.Exit(1)
	}

	names := make([]string, 0, len(engines))
	for name := range engines {
		names = append(names, name)
	}
	fmt.Printf("validate-assets: %d voices, engines: %s\n", len(manifest.Voices), strings.Join(names, ", "))
}
