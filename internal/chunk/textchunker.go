package chunk

import (
	"context"
	"strings"

	"github.com/fsgraph/indexer/internal/ids"
)

// Default sizing, chosen so a chunk comfortably fits an embedding model's
// context window while keeping enough surrounding text for useful matches.
const (
	DefaultChunkSize = 768
	DefaultOverlap   = 10
)

// TextChunker splits content into overlapping chunks, snapping each
// boundary to the nearest paragraph break, falling back to a sentence
// break, then a word break, and finally an unsnapped cut if none is found
// within the window. The algorithm is pure and deterministic: the same
// input always produces the same chunks, which keeps re-indexing
// idempotent alongside internal/ids.ChunkID's content-addressed ids.
type TextChunker struct {
	ChunkSize int
	Overlap   int
}

// NewTextChunker creates a TextChunker with the given target chunk size and
// overlap, both in runes. Non-positive values fall back to the defaults.
func NewTextChunker(chunkSize, overlap int) *TextChunker {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	if overlap < 0 || overlap >= chunkSize {
		overlap = DefaultOverlap
	}
	return &TextChunker{ChunkSize: chunkSize, Overlap: overlap}
}

// Chunk splits file.Content into chunks. Returns a single chunk for content
// shorter than ChunkSize, and zero chunks for empty content.
func (c *TextChunker) Chunk(ctx context.Context, file *FileInput) ([]*Chunk, error) {
	text := []rune(file.Content)
	if len(text) == 0 {
		return nil, nil
	}

	// byteOff maps a rune index in text to its byte offset in file.Content,
	// so emitted chunk offsets are byte offsets.
	byteOff := make([]int, 0, len(text)+1)
	for i := range file.Content {
		byteOff = append(byteOff, i)
	}
	byteOff = append(byteOff, len(file.Content))

	var chunks []*Chunk
	pos := 0
	index := 0

	for pos < len(text) {
		select {
		case <-ctx.Done():
			return chunks, ctx.Err()
		default:
		}

		end := min(pos+c.ChunkSize, len(text))
		if end < len(text) {
			end = snapBoundary(text, pos, end, c.ChunkSize)
		}

		chunkText := strings.TrimSpace(string(text[pos:end]))
		chunks = append(chunks, &Chunk{
			ID:          ids.ChunkID(file.Path, index, chunkText),
			FilePath:    file.Path,
			Index:       index,
			Text:        chunkText,
			StartOffset: byteOff[pos],
			EndOffset:   byteOff[end],
		})
		index++

		if end >= len(text) {
			break
		}

		next := end - c.Overlap
		if next <= pos {
			next = pos + 1
		}
		pos = next
	}

	return chunks, nil
}

// snapBoundary looks backward from end (but forward of pos) for the latest
// paragraph break, then sentence break, then word break, returning the
// first window boundary found that falls at or past the window's halfway
// point (pos + chunkSize/2); a break earlier than that would produce an
// undersized chunk, so it is rejected in favor of the next, less specific
// break kind. If none qualifies it returns end unchanged, accepting a
// mid-word cut rather than producing an oversized chunk.
func snapBoundary(text []rune, pos, end, chunkSize int) int {
	minBoundary := pos + chunkSize/2
	if b := lastBreak(text, pos, end, "\n\n", true); b > pos && b >= minBoundary {
		return b
	}
	if b := lastBreak(text, pos, end, ". ", true); b > pos && b >= minBoundary {
		return b
	}
	if b := lastBreak(text, pos, end, " ", false); b > pos && b >= minBoundary {
		return b
	}
	return end
}

// lastBreak finds the last occurrence of sep within text[pos:end] and
// returns the offset immediately after it. If includeSep is true the
// separator itself stays in the preceding chunk.
func lastBreak(text []rune, pos, end int, sep string, includeSep bool) int {
	window := string(text[pos:end])
	idx := strings.LastIndex(window, sep)
	if idx < 0 {
		return -1
	}
	offset := idx
	if includeSep {
		offset += len(sep)
	}
	return pos + len([]rune(window[:offset]))
}
