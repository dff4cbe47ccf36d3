// Package ids provides the content-addressed id derivation and the Clock
// abstraction used across the indexing core.
package ids

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// FileID derives a stable, content-addressed File node id from a path.
// Stable across restarts: no counter, timestamp, or random suffix is mixed
// in, so re-indexing the same path always upserts the same node.
func FileID(path string) string {
	return "file-" + shortHash(path)
}

// ChunkID derives a stable FileChunk node id from the owning file's path,
// the chunk's position, and its text, so identical content at the same
// position always round-trips to the same id (idempotent re-chunking).
func ChunkID(path string, index int, text string) string {
	input := fmt.Sprintf("%s:%d:%s", path, index, text)
	return "chunk-" + shortHash(input)
}

// ContentHash returns the full hash of file content, used to detect
// modification independent of mtime (e.g. when mtimes are unreliable).
func ContentHash(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}

func shortHash(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])[:16]
}
