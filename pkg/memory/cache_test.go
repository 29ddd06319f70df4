package memory

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmbeddingCache_RoundTrip(t *testing.T) {
	c, err := newEmbeddingCache(64)
	require.NoError(t, err)

	key := cacheKey("search_document: hello")
	vec := []float32{0.1, 0.2, 0.3}

	_, ok := c.get(key)
	assert.False(t, ok)

	c.put(key, vec)
	c.wait()

	got, ok := c.get(key)
	require.True(t, ok)
	assert.Equal(t, vec, got)
}

func TestEmbeddingCache_Disabled(t *testing.T) {
	c, err := newEmbeddingCache(0)
	require.NoError(t, err)

	c.put("key", []float32{1})
	c.wait()

	_, ok := c.get("key")
	assert.False(t, ok)
}

func TestCacheKey_DistinctPerInput(t *testing.T) {
	a := cacheKey("search_document: same text")
	b := cacheKey("search_query: same text")
	assert.NotEqual(t, a, b)
	assert.Equal(t, a, cacheKey("search_document: same text"))
}
