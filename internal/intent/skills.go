package intent

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/lokutor-ai/lokutor-gateway/pkg/orchestrator"
)

// nowFunc is overridable in tests.
var nowFunc = time.Now

// TimeSkill answers "what time is it" style questions without an external
// call (spec.md §8 scenario S6). It is enabled via ENABLED_SKILLS containing
// "time".
func TimeSkill() Skill {
	return Skill{
		Name:  "time",
		Async: false,
		CanHandle: func(text string, lang orchestrator.Language) bool {
			lower := strings.ToLower(text)
			return strings.Contains(lower, "wie spät") || strings.Contains(lower, "what time")
		},
		Handle: func(ctx context.Context, text string) (string, error) {
			now := nowFunc()
			return fmt.Sprintf("Es ist %02d:%02d Uhr.", now.Hour(), now.Minute()), nil
		},
	}
}

// BuildRegistry constructs the compile-time skill table for the names in
// enabled, in the given order (Design Notes: "replace dynamic plugin
// discovery with an explicit registry"). Unknown names are skipped.
func BuildRegistry(enabled []string) []Skill {
	available := map[string]func() Skill{
		"time": TimeSkill,
	}

	var skills []Skill
	for _, name := range enabled {
		if factory, ok := available[name]; ok {
			skills = append(skills, factory())
		}
	}
	return skills
}
