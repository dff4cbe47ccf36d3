package embedclient

import (
	"context"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingEmbedder struct {
	calls int
	vec   []float32
}

func (c *countingEmbedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	c.calls++
	return c.vec, nil
}

func (c *countingEmbedder) EmbedImage(ctx context.Context, dataURL string) ([]float32, error) {
	c.calls++
	return c.vec, nil
}

func TestCachedClient_EmbedText_CachesRepeatedInput(t *testing.T) {
	inner := &countingEmbedder{vec: []float32{1, 2, 3}}
	c := NewCachedClient(inner, 10)

	v1, err := c.EmbedText(t.Context(), "hello")
	require.NoError(t, err)
	v2, err := c.EmbedText(t.Context(), "hello")
	require.NoError(t, err)

	assert.Equal(t, v1, v2)
	assert.Equal(t, 1, inner.calls)
}

func TestCachedClient_EmbedText_DistinctInputsBothCompute(t *testing.T) {
	inner := &countingEmbedder{vec: []float32{1, 2, 3}}
	c := NewCachedClient(inner, 10)

	_, _ = c.EmbedText(t.Context(), "hello")
	_, _ = c.EmbedText(t.Context(), "world")

	assert.Equal(t, 2, inner.calls)
}

func TestCachedClient_EmbedImage_CachesRepeatedInput(t *testing.T) {
	inner := &countingEmbedder{vec: []float32{0.5}}
	c := NewCachedClient(inner, 10)

	_, _ = c.EmbedImage(t.Context(), "data:image/png;base64,abc")
	_, _ = c.EmbedImage(t.Context(), "data:image/png;base64,abc")

	assert.Equal(t, 1, inner.calls)
}

func TestNewCachedClient_FallsBackToDefaultSizeOnZero(t *testing.T) {
	inner := &countingEmbedder{}
	c := NewCachedClient(inner, 0)
	assert.NotNil(t, c.cache)

	for i := 0; i <= DefaultCacheSize; i++ {
		c.cache.Add(strconv.Itoa(i), nil)
	}
	assert.Equal(t, DefaultCacheSize, c.cache.Len())
}
