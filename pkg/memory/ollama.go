package memory

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/ollama/ollama/api"
)

// OllamaProvider generates embeddings through a local or remote Ollama server.
type OllamaProvider struct {
	client *api.Client
}

// NewOllamaProvider creates a provider talking to the given host, e.g.
// "http://127.0.0.1:11434". An empty host falls back to the client's
// environment-based defaults.
func NewOllamaProvider(host string) (*OllamaProvider, error) {
	if host == "" {
		client, err := api.ClientFromEnvironment()
		if err != nil {
			return nil, fmt.Errorf("failed to create ollama client: %w", err)
		}
		return &OllamaProvider{client: client}, nil
	}

	base, err := url.Parse(host)
	if err != nil {
		return nil, fmt.Errorf("invalid embedding host %q: %w", host, err)
	}

	client := api.NewClient(base, &http.Client{
		Timeout: 30 * time.Second,
	})
	return &OllamaProvider{client: client}, nil
}

// Embed requests a single embedding for text from the given model.
func (p *OllamaProvider) Embed(ctx context.Context, model, text string) ([]float32, error) {
	resp, err := p.client.Embeddings(ctx, &api.EmbeddingRequest{
		Model:  model,
		Prompt: text,
	})
	if err != nil {
		return nil, fmt.Errorf("ollama embeddings call failed: %w", err)
	}

	vec := make([]float32, len(resp.Embedding))
	for i, v := range resp.Embedding {
		vec[i] = float32(v)
	}
	return vec, nil
}
