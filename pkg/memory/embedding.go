package memory

import (
	"context"
	"fmt"
	"math"

	"github.com/harun/mnemo/internal/observability"
	"github.com/rs/zerolog"
)

// VectorDim is the fixed dimensionality of every vector stored or compared by
// this package. Provider output is cropped or zero-padded to this length.
const VectorDim = 256

// The embedding model is trained to treat documents and queries asymmetrically;
// mixing the prefixes up systematically degrades ranking quality.
const (
	documentPrefix = "search_document: "
	queryPrefix    = "search_query: "
)

// Provider generates a raw embedding vector for a text. Implementations call
// an external inference endpoint and make no length promise beyond >= 1.
type Provider interface {
	Embed(ctx context.Context, model, text string) ([]float32, error)
}

// Generator turns text into unit-length, 256-dimensional vectors. It prefixes
// documents and queries with their role markers, normalizes, crops or pads to
// VectorDim and re-normalizes, so downstream code never sees anything else.
type Generator struct {
	provider Provider
	model    string
	cache    *embeddingCache
	logger   zerolog.Logger
}

// NewGenerator wires a provider and model name into a Generator. cacheSize is
// the maximum number of cached embeddings; zero or negative disables caching.
func NewGenerator(provider Provider, model string, cacheSize int64, logger zerolog.Logger) (*Generator, error) {
	if provider == nil {
		return nil, fmt.Errorf("embedding provider is required")
	}
	if model == "" {
		return nil, fmt.Errorf("embedding model is required")
	}

	cache, err := newEmbeddingCache(cacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create embedding cache: %w", err)
	}

	return &Generator{
		provider: provider,
		model:    model,
		cache:    cache,
		logger:   logger,
	}, nil
}

// EmbedDocument embeds text in the document role.
func (g *Generator) EmbedDocument(ctx context.Context, text string) ([]float32, error) {
	return g.embed(ctx, documentPrefix+text)
}

// EmbedQuery embeds text in the query role.
func (g *Generator) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return g.embed(ctx, queryPrefix+text)
}

func (g *Generator) embed(ctx context.Context, prefixed string) ([]float32, error) {
	key := cacheKey(prefixed)
	if vec, ok := g.cache.get(key); ok {
		observability.RecordEmbeddingCacheLookup(true)
		return vec, nil
	}
	observability.RecordEmbeddingCacheLookup(false)

	raw, err := g.provider.Embed(ctx, g.model, prefixed)
	if err != nil {
		observability.RecordEmbeddingFailure()
		return nil, fmt.Errorf("%w: %v", ErrEmbeddingUnavailable, err)
	}
	if len(raw) == 0 {
		observability.RecordEmbeddingFailure()
		return nil, fmt.Errorf("%w: provider returned empty vector", ErrEmbeddingUnavailable)
	}

	// Truncation changes the vector's magnitude, so normalize again after
	// fitting to VectorDim.
	vec := l2Normalize(raw)
	vec = fitDimension(vec, VectorDim)
	vec = l2Normalize(vec)

	g.cache.put(key, vec)
	return vec, nil
}

// l2Normalize scales v to unit Euclidean length. A zero vector is returned
// unchanged.
func l2Normalize(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	norm := math.Sqrt(sum)
	if norm == 0 {
		return v
	}

	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(float64(x) / norm)
	}
	return out
}

// fitDimension truncates v to the first dim components or right-pads it with
// zeros. Keeping the leading components is a storage tradeoff inherited from
// the 256-dim vector contract, not a claim that they are the most informative.
func fitDimension(v []float32, dim int) []float32 {
	if len(v) == dim {
		return v
	}
	out := make([]float32, dim)
	copy(out, v)
	return out
}
