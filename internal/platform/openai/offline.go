package openai

import (
	"context"
	"fmt"
	"strings"

	"github.com/yungbote/neurobridge-remedy/internal/domain/content"
)

// OfflineGenerator fills every expected key with deterministic placeholder
// material. It is used when no API key is configured.
type OfflineGenerator struct{}

func (OfflineGenerator) Generate(ctx context.Context, stage content.StageName, focus string, bundle map[string]any) content.Result {
	if err := ctx.Err(); err != nil {
		return content.Degrade(content.Degraded{Stage: stage, Focus: focus, Reason: "generation failed: " + err.Error()})
	}
	_, keys := buildPrompt(stage, focus, bundle)
	topic := orDefault(focus, "the topic")
	grade := orDefault(str(bundle["grade_level"]), "NA")

	out := make(map[string]any, len(keys))
	for _, k := range keys {
		out[k] = offlineValue(k, topic, grade)
	}
	return content.Ok(content.Artifact{Stage: stage, Focus: focus, Content: out})
}

func offlineValue(key, topic, grade string) any {
	label := strings.ReplaceAll(key, "_", " ")
	switch {
	case key == "total_marks":
		return 10
	case key == "glossary":
		return map[string]any{topic: "Key idea of " + topic + " at " + grade}
	case strings.HasSuffix(key, "s") && key != "rules" && key != "settings":
		items := make([]any, 0, 3)
		for i := 1; i <= 3; i++ {
			items = append(items, fmt.Sprintf("%s %d on %s", strings.TrimSuffix(label, "s"), i, topic))
		}
		return items
	default:
		return fmt.Sprintf("%s for %s (%s)", label, topic, grade)
	}
}
