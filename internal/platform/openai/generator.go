package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/shared"

	"github.com/yungbote/neurobridge-remedy/internal/domain/content"
	"github.com/yungbote/neurobridge-remedy/internal/observability"
	"github.com/yungbote/neurobridge-remedy/internal/pkg/logger"
)

// Generator produces stage content through Chat Completions in JSON mode.
// Every failure is folded into a Degraded result.
type Generator struct {
	client *Client
	log    *logger.Logger
}

func NewGenerator(client *Client) *Generator {
	return &Generator{client: client, log: client.log.With("component", "ContentGenerator")}
}

func (g *Generator) Generate(ctx context.Context, stage content.StageName, focus string, bundle map[string]any) content.Result {
	prompt, keys := buildPrompt(stage, focus, bundle)

	params := openai.ChatCompletionNewParams{
		Model: shared.ChatModel(g.client.cfg.Model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(prompt),
		},
		ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &shared.ResponseFormatJSONObjectParam{Type: "json_object"},
		},
	}
	if t := g.client.cfg.Temperature; t != nil {
		params.Temperature = openai.Float(*t)
	}

	start := time.Now()
	completion, err := g.client.sdk.Chat.Completions.New(ctx, params)
	observability.Current().ObserveLLMRequest(g.client.cfg.Model, "chat.completions", requestStatus(err), time.Since(start))
	if err != nil {
		g.log.Warn("stage generation failed", "stage", stage, "rate_limited", isRateLimit(err), "error", err)
		return content.Degrade(content.Degraded{Stage: stage, Focus: focus, Reason: "generation failed: " + err.Error()})
	}
	if len(completion.Choices) == 0 {
		return content.Degrade(content.Degraded{Stage: stage, Focus: focus, Reason: "no completion choices returned"})
	}
	return parseArtifact(stage, focus, completion.Choices[0].Message.Content, keys)
}

// parseArtifact accepts a bare JSON object or one wrapped in prose or code
// fences, and requires every expected key.
func parseArtifact(stage content.StageName, focus, raw string, keys []string) content.Result {
	text := strings.TrimSpace(raw)
	if text == "" {
		return content.Degrade(content.Degraded{Stage: stage, Focus: focus, Reason: "empty response"})
	}
	if start, end := strings.Index(text, "{"), strings.LastIndex(text, "}"); start >= 0 && end > start {
		text = text[start : end+1]
	}
	var obj map[string]any
	if err := json.Unmarshal([]byte(text), &obj); err != nil {
		return content.Degrade(content.Degraded{Stage: stage, Focus: focus, Raw: raw, Reason: fmt.Sprintf("invalid json: %v", err)})
	}
	var missing []string
	for _, k := range keys {
		if _, ok := obj[k]; !ok {
			missing = append(missing, k)
		}
	}
	if len(missing) > 0 {
		return content.Degrade(content.Degraded{Stage: stage, Focus: focus, Raw: raw, Reason: "missing keys: " + strings.Join(missing, ", ")})
	}
	return content.Ok(content.Artifact{Stage: stage, Focus: focus, Content: obj})
}
