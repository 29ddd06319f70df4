package memory

import (
	"context"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// OpenAIProvider generates embeddings through the OpenAI API. It is the
// alternative to OllamaProvider for deployments without a local model server.
type OpenAIProvider struct {
	client openai.Client
}

// NewOpenAIProvider creates a provider authenticated with apiKey. Extra
// request options (custom base URL, org headers) pass through to the client.
func NewOpenAIProvider(apiKey string, opts ...option.RequestOption) *OpenAIProvider {
	opts = append([]option.RequestOption{option.WithAPIKey(apiKey)}, opts...)
	return &OpenAIProvider{client: openai.NewClient(opts...)}
}

// Embed requests a single embedding for text from the given model.
func (p *OpenAIProvider) Embed(ctx context.Context, model, text string) ([]float32, error) {
	resp, err := p.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Input: openai.EmbeddingNewParamsInputUnion{OfString: openai.String(text)},
		Model: openai.EmbeddingModel(model),
	})
	if err != nil {
		return nil, fmt.Errorf("openai embeddings call failed: %w", err)
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("openai returned no embedding data")
	}

	raw := resp.Data[0].Embedding
	vec := make([]float32, len(raw))
	for i, v := range raw {
		vec[i] = float32(v)
	}
	return vec, nil
}
