package openai

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/openai/openai-go/v3"

	"github.com/yungbote/neurobridge-remedy/internal/observability"
)

type Embedder struct {
	client *Client
}

func NewEmbedder(client *Client) *Embedder {
	return &Embedder{client: client}
}

func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		text = " "
	}
	params := openai.EmbeddingNewParams{
		Model: openai.EmbeddingModel(e.client.cfg.EmbeddingModel),
		Input: openai.EmbeddingNewParamsInputUnion{OfString: openai.String(text)},
	}
	if e.client.cfg.Dimensions > 0 {
		params.Dimensions = openai.Int(int64(e.client.cfg.Dimensions))
	}
	start := time.Now()
	resp, err := e.client.sdk.Embeddings.New(ctx, params)
	observability.Current().ObserveLLMRequest(e.client.cfg.EmbeddingModel, "embeddings", requestStatus(err), time.Since(start))
	if err != nil {
		return nil, fmt.Errorf("openai embeddings: %w", err)
	}
	if len(resp.Data) == 0 || len(resp.Data[0].Embedding) == 0 {
		return nil, fmt.Errorf("openai embeddings: empty response model=%s", e.client.cfg.EmbeddingModel)
	}
	vec := make([]float32, len(resp.Data[0].Embedding))
	for i, f := range resp.Data[0].Embedding {
		vec[i] = float32(f)
	}
	return vec, nil
}
