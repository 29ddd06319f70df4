package memory

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/dgraph-io/ristretto"
)

// embeddingCache memoizes generated vectors keyed by the hash of the prefixed
// input text. Cache misses are merely slower, never wrong: entries are only
// ever the output of the same deterministic pipeline.
type embeddingCache struct {
	cache *ristretto.Cache
}

// newEmbeddingCache creates a cache holding up to maxEntries vectors. A zero
// or negative size disables caching entirely.
func newEmbeddingCache(maxEntries int64) (*embeddingCache, error) {
	if maxEntries <= 0 {
		return &embeddingCache{}, nil
	}

	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: maxEntries * 10,
		MaxCost:     maxEntries,
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}
	return &embeddingCache{cache: cache}, nil
}

func (c *embeddingCache) get(key string) ([]float32, bool) {
	if c.cache == nil {
		return nil, false
	}
	v, ok := c.cache.Get(key)
	if !ok {
		return nil, false
	}
	vec, ok := v.([]float32)
	return vec, ok
}

func (c *embeddingCache) put(key string, vec []float32) {
	if c.cache == nil {
		return
	}
	c.cache.Set(key, vec, 1)
}

// wait blocks until buffered writes are applied. Test helper; ristretto
// applies Set asynchronously.
func (c *embeddingCache) wait() {
	if c.cache != nil {
		c.cache.Wait()
	}
}

// cacheKey hashes the prefixed text so role markers keep document and query
// entries distinct.
func cacheKey(text string) string {
	h := sha256.Sum256([]byte(text))
	return hex.EncodeToString(h[:])
}
