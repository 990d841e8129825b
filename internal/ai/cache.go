package ai

import (
	"context"
	"crypto/sha1"
	"encoding/hex"

	lru "github.com/hashicorp/golang-lru/v2"
)

// CachedClient wraps a Client with a bounded LRU over content-hash keys.
// Re-ingesting an unchanged chunk (the common case after a partial corpus
// change) skips the model call. The cache is owned by whoever constructs it
// and evicts least-recently-used entries at the configured size, rather than
// growing for the life of the process.
type CachedClient struct {
	inner Client
	cache *lru.Cache[string, []float32]
}

// NewCachedClient wraps inner with an LRU of the given size. A size below 1
// returns inner unwrapped.
func NewCachedClient(inner Client, size int) (Client, error) {
	if size < 1 {
		return inner, nil
	}
	c, err := lru.New[string, []float32](size)
	if err != nil {
		return nil, err
	}
	return &CachedClient{inner: inner, cache: c}, nil
}

func (c *CachedClient) Embed(ctx context.Context, text string) ([]float32, error) {
	key := cacheKey(text)
	if vec, ok := c.cache.Get(key); ok {
		return vec, nil
	}
	vec, err := c.inner.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	c.cache.Add(key, vec)
	return vec, nil
}

func (c *CachedClient) Dim() int { return c.inner.Dim() }

func cacheKey(text string) string {
	h := sha1.Sum([]byte(text))
	return hex.EncodeToString(h[:])
}
