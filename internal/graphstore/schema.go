package graphstore

import (
	"context"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	fsindexerrors "github.com/fsgraph/indexer/internal/errors"
)

// fullTextProperties is the stable set of properties indexed for keyword
// search, spanning Files and FileChunks.
var fullTextProperties = []string{"path", "name", "language", "title", "description", "text", "content"}

// VectorIndexName is the FileChunk embedding index; VectorIndexNameFiles is
// the File embedding index (small, unchunked files embed directly on the
// File node). Neo4j vector indexes are single-label, so the two storage
// strategies fileindexer.Indexer uses need separate indexes; a vector
// search over type "file" queries both (type-filter expansion covers
// chunk results, not File's own embedding, so the search service queries
// VectorIndexNameFiles explicitly alongside VectorIndexName).
// FullTextIndexName covers both labels since Neo4j's full-text index does
// support multiple labels.
const (
	VectorIndexName      = "embedding_vector"
	VectorIndexNameFiles = "embedding_vector_files"
	FullTextIndexName    = "content_fulltext"
)

// Bootstrap creates the constraints and indices the adapter depends on:
// a uniqueness constraint on each node label's id, label+property indices on
// path/id, a full-text index over fullTextProperties, and a vector index on
// the embedding property sized for dimensions using cosine similarity.
//
// Safe to call repeatedly; all statements are idempotent (IF NOT EXISTS).
func (s *Store) Bootstrap(ctx context.Context, dimensions int) error {
	statements := []string{
		`CREATE CONSTRAINT subscription_id IF NOT EXISTS FOR (n:Subscription) REQUIRE n.id IS UNIQUE`,
		`CREATE CONSTRAINT file_id IF NOT EXISTS FOR (n:File) REQUIRE n.id IS UNIQUE`,
		`CREATE CONSTRAINT filechunk_id IF NOT EXISTS FOR (n:FileChunk) REQUIRE n.id IS UNIQUE`,
		`CREATE INDEX file_path IF NOT EXISTS FOR (n:File) ON (n.path)`,
		`CREATE INDEX filechunk_parent IF NOT EXISTS FOR (n:FileChunk) ON (n.parentPath)`,
		`CREATE FULLTEXT INDEX ` + FullTextIndexName + ` IF NOT EXISTS FOR (n:File|FileChunk) ON EACH [` + quotedJoin(fullTextProperties) + `]`,
		fmt.Sprintf(`CREATE VECTOR INDEX %s IF NOT EXISTS FOR (n:FileChunk) ON (n.embedding)
			OPTIONS {indexConfig: {`+"`vector.dimensions`"+`: %d, `+"`vector.similarity_function`"+`: 'cosine'}}`, VectorIndexName, dimensions),
		fmt.Sprintf(`CREATE VECTOR INDEX %s IF NOT EXISTS FOR (n:File) ON (n.embedding)
			OPTIONS {indexConfig: {`+"`vector.dimensions`"+`: %d, `+"`vector.similarity_function`"+`: 'cosine'}}`, VectorIndexNameFiles, dimensions),
	}

	return s.WithTransaction(ctx, func(ctx context.Context, tx neo4j.ManagedTransaction) error {
		for _, stmt := range statements {
			if _, err := tx.Run(ctx, stmt, nil); err != nil {
				return fsindexerrors.Wrap(fsindexerrors.ErrCodeGraphStoreDown, err)
			}
		}
		return nil
	})
}

func quotedJoin(props []string) string {
	out := ""
	for i, p := range props {
		if i > 0 {
			out += ", "
		}
		out += "'" + p + "'"
	}
	return out
}

// ClearAll detach-deletes every node in the graph. It requires an explicit
// safety token matching the one the caller configured out-of-band; it never
// reads an environment variable for this purpose. Intended for test/dev
// resets, never for production use without deliberate operator action.
func (s *Store) ClearAll(ctx context.Context, token, expectedToken string) error {
	if expectedToken == "" || token != expectedToken {
		return fsindexerrors.New(fsindexerrors.ErrCodeInvalidInput, "clear-all safety token mismatch", nil)
	}
	return s.WithTransaction(ctx, func(ctx context.Context, tx neo4j.ManagedTransaction) error {
		_, err := tx.Run(ctx, `MATCH (n) DETACH DELETE n`, nil)
		return err
	})
}
