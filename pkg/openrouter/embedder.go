package openrouter

import (
	"context"
	"errors"
	"fmt"
	"strings"

	openaisdk "github.com/openai/openai-go"
)

// Embedder turns text into vectors through the embeddings endpoint.
type Embedder struct {
	client *openaisdk.Client
	model  string
}

func NewEmbedder(cfg Config) (*Embedder, error) {
	client := NewClient(cfg)
	if client == nil {
		return nil, errors.New("openrouter: embedding api key is empty")
	}
	modelName := strings.TrimSpace(cfg.Model)
	if modelName == "" {
		return nil, errors.New("openrouter: embedding model is empty")
	}
	return &Embedder{client: client, model: modelName}, nil
}

// Embed returns the embedding of a single text. Its signature matches the
// embedding function expected by the memory index.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := e.client.Embeddings.New(ctx, openaisdk.EmbeddingNewParams{
		Input: openaisdk.EmbeddingNewParamsInputUnion{OfArrayOfStrings: []string{text}},
		Model: openaisdk.EmbeddingModel(e.model),
	})
	if err != nil {
		return nil, fmt.Errorf("openrouter: embed: %w", err)
	}
	if len(resp.Data) == 0 || len(resp.Data[0].Embedding) == 0 {
		return nil, errors.New("openrouter: embed: empty response")
	}

	src := resp.Data[0].Embedding
	out := make([]float32, len(src))
	for i, v := range src {
		out[i] = float32(v)
	}
	return out, nil
}
