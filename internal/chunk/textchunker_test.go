package chunk

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTextChunker_EmptyContentProducesNoChunks(t *testing.T) {
	c := NewTextChunker(100, 10)
	chunks, err := c.Chunk(context.Background(), &FileInput{Path: "a.txt", Content: ""})
	require.NoError(t, err)
	assert.Empty(t, chunks)
}

func TestTextChunker_ShortContentProducesOneChunk(t *testing.T) {
	c := NewTextChunker(100, 10)
	chunks, err := c.Chunk(context.Background(), &FileInput{Path: "a.txt", Content: "hello world"})
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, "hello world", chunks[0].Text)
	assert.Equal(t, 0, chunks[0].Index)
}

func TestTextChunker_SnapsToParagraphBoundary(t *testing.T) {
	para1 := strings.Repeat("a", 40)
	para2 := strings.Repeat("b", 40)
	content := para1 + "\n\n" + para2
	c := NewTextChunker(45, 5)

	chunks, err := c.Chunk(context.Background(), &FileInput{Path: "a.txt", Content: content})
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(chunks), 2)
	// The raw offsets still land on the paragraph break; the emitted text
	// is trimmed, so the trailing "\n\n" doesn't appear in chunks[0].Text.
	assert.Equal(t, para1, chunks[0].Text)
	assert.Equal(t, len(para1)+2, chunks[0].EndOffset)
}

func TestTextChunker_RejectsBoundaryBeforeHalfWindow(t *testing.T) {
	// A paragraph break 10 runes into a 100-rune window is well short of
	// the window's halfway point (50), so it must be rejected in favor of
	// falling through to the next, less specific break kind rather than
	// producing an undersized chunk.
	early := strings.Repeat("a", 10) + "\n\n" + strings.Repeat("b", 200)
	c := NewTextChunker(100, 10)

	chunks, err := c.Chunk(context.Background(), &FileInput{Path: "a.txt", Content: early})
	require.NoError(t, err)
	require.NotEmpty(t, chunks)
	assert.Greater(t, chunks[0].EndOffset, 12, "the too-early paragraph break at offset 12 must not be accepted as the chunk boundary")
}

func TestTextChunker_TrimsEmittedText(t *testing.T) {
	content := "  leading and trailing spaces  "
	c := NewTextChunker(100, 10)

	chunks, err := c.Chunk(context.Background(), &FileInput{Path: "a.txt", Content: content})
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, strings.TrimSpace(content), chunks[0].Text)
	assert.Equal(t, 0, chunks[0].StartOffset, "raw offsets are untouched by trimming")
	assert.Equal(t, len(content), chunks[0].EndOffset)
}

func TestTextChunker_OverlapCarriesBetweenChunks(t *testing.T) {
	content := strings.Repeat("word ", 200)
	c := NewTextChunker(50, 10)

	chunks, err := c.Chunk(context.Background(), &FileInput{Path: "a.txt", Content: content})
	require.NoError(t, err)
	require.Greater(t, len(chunks), 1)

	for i := 1; i < len(chunks); i++ {
		assert.Less(t, chunks[i].StartOffset, chunks[i-1].EndOffset, "chunk %d should overlap with the previous chunk", i)
	}
}

func TestTextChunker_IsDeterministic(t *testing.T) {
	content := strings.Repeat("The quick brown fox jumps over the lazy dog. ", 50)
	c := NewTextChunker(100, 15)

	first, err := c.Chunk(context.Background(), &FileInput{Path: "a.txt", Content: content})
	require.NoError(t, err)
	second, err := c.Chunk(context.Background(), &FileInput{Path: "a.txt", Content: content})
	require.NoError(t, err)

	require.Equal(t, len(first), len(second))
	for i := range first {
		assert.Equal(t, first[i].ID, second[i].ID)
		assert.Equal(t, first[i].Text, second[i].Text)
	}
}

func TestTextChunker_MakesProgressWithoutOverlapTrap(t *testing.T) {
	// A pathological single long "word" with no boundaries to snap to must
	// still terminate and advance position every iteration.
	content := strings.Repeat("x", 1000)
	c := NewTextChunker(50, 49)

	chunks, err := c.Chunk(context.Background(), &FileInput{Path: "a.txt", Content: content})
	require.NoError(t, err)
	assert.NotEmpty(t, chunks)
}
