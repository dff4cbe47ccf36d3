// Package chunk implements the Chunker component: deterministic splitting
// of textual content into overlapping chunks on paragraph, sentence, and
// word boundaries.
package chunk

import "context"

// Chunk is a retrievable unit of a file's textual content.
type Chunk struct {
	ID          string // content-addressed, see internal/ids.ChunkID
	FilePath    string // path of the owning file, relative to the subscription root
	Index       int    // 0-indexed position within the file
	Text        string // chunk text, including any overlap carried from the prior chunk
	StartOffset int    // byte offset of Text's start within the file's content
	EndOffset   int    // byte offset of Text's end within the file's content (exclusive)
}

// FileInput is the input to a Chunker.
type FileInput struct {
	Path    string // relative path
	Content string // decoded textual content to split
}

// Chunker splits a file's content into chunks.
type Chunker interface {
	Chunk(ctx context.Context, file *FileInput) ([]*Chunk, error)
}
