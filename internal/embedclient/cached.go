package embedclient

import (
	"context"
	"crypto/sha256"
	"encoding/hex"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultCacheSize caps the number of unique query embeddings kept in memory.
const DefaultCacheSize = 1000

// Embedder is the subset of Client's behavior a CachedClient wraps, so tests
// can substitute a fake.
type Embedder interface {
	EmbedText(ctx context.Context, text string) ([]float32, error)
	EmbedImage(ctx context.Context, dataURL string) ([]float32, error)
}

// CachedClient wraps an Embedder with an LRU cache keyed by input content, to
// avoid re-embedding identical chunks across repeated indexing runs and
// repeated search queries.
type CachedClient struct {
	inner Embedder
	cache *lru.Cache[string, []float32]
}

// NewCachedClient wraps inner with an LRU cache of the given size. A
// non-positive size falls back to DefaultCacheSize.
func NewCachedClient(inner Embedder, cacheSize int) *CachedClient {
	if cacheSize <= 0 {
		cacheSize = DefaultCacheSize
	}
	cache, _ := lru.New[string, []float32](cacheSize)
	return &CachedClient{inner: inner, cache: cache}
}

func cacheKey(kind, input string) string {
	h := sha256.Sum256([]byte(kind + "\x00" + input))
	return hex.EncodeToString(h[:])
}

// EmbedText returns the cached vector for text if present, otherwise computes
// and caches it.
func (c *CachedClient) EmbedText(ctx context.Context, text string) ([]float32, error) {
	key := cacheKey("text", text)
	if vec, ok := c.cache.Get(key); ok {
		return vec, nil
	}
	vec, err := c.inner.EmbedText(ctx, text)
	if err != nil {
		return nil, err
	}
	c.cache.Add(key, vec)
	return vec, nil
}

// EmbedImage returns the cached vector for dataURL if present, otherwise
// computes and caches it.
func (c *CachedClient) EmbedImage(ctx context.Context, dataURL string) ([]float32, error) {
	key := cacheKey("image", dataURL)
	if vec, ok := c.cache.Get(key); ok {
		return vec, nil
	}
	vec, err := c.inner.EmbedImage(ctx, dataURL)
	if err != nil {
		return nil, err
	}
	c.cache.Add(key, vec)
	return vec, nil
}
