package services

import (
	"context"
	"fmt"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

// Text chunks with no extractable content still need a vector so retrieval
// stays aligned with the chunk store.
const emptyContentPlaceholder = "(no text content)"

// TextEmbedder produces text-space embeddings for indexing and querying.
type TextEmbedder interface {
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, query string) ([]float32, error)
}

// OpenAITextEmbedder implements TextEmbedder over an OpenAI-compatible
// embeddings API.
type OpenAITextEmbedder struct {
	client openai.Client
	model  string
}

// NewOpenAITextEmbedder creates a text embedder. baseURL may be empty for the
// default endpoint.
func NewOpenAITextEmbedder(apiKey, baseURL, model string) *OpenAITextEmbedder {
	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
	}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return &OpenAITextEmbedder{
		client: openai.NewClient(opts...),
		model:  model,
	}
}

// EmbedTexts embeds a batch of texts in one request. Empty inputs are
// replaced with a placeholder so every chunk keeps a vector.
func (e *OpenAITextEmbedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	inputs := make([]string, len(texts))
	for i, text := range texts {
		if text == "" {
			text = emptyContentPlaceholder
		}
		inputs[i] = text
	}

	resp, err := e.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Model: openai.EmbeddingModel(e.model),
		Input: openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: inputs},
	})
	if err != nil {
		return nil, fmt.Errorf("embedding request failed: %w", err)
	}
	if len(resp.Data) != len(inputs) {
		return nil, fmt.Errorf("embedding response has %d vectors for %d inputs", len(resp.Data), len(inputs))
	}

	embeddings := make([][]float32, len(resp.Data))
	for _, item := range resp.Data {
		if item.Index < 0 || int(item.Index) >= len(embeddings) {
			return nil, fmt.Errorf("embedding response index %d out of range", item.Index)
		}
		vector := make([]float32, len(item.Embedding))
		for j, v := range item.Embedding {
			vector[j] = float32(v)
		}
		embeddings[item.Index] = vector
	}
	return embeddings, nil
}

// EmbedQuery embeds a single retrieval query.
func (e *OpenAITextEmbedder) EmbedQuery(ctx context.Context, query string) ([]float32, error) {
	embeddings, err := e.EmbedTexts(ctx, []string{query})
	if err != nil {
		return nil, err
	}
	return embeddings[0], nil
}
