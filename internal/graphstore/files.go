package graphstore

import (
	"context"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	fsindexerrors "github.com/fsgraph/indexer/internal/errors"
)

// UpsertFile merges a File node by id and sets its properties, replacing
// any previous value. If subscriptionID is non-empty, also merges the
// WATCHES/WATCHED_BY edge pair between the Subscription and the File.
func (s *Store) UpsertFile(ctx context.Context, f *File, subscriptionID string) error {
	return s.WithTransaction(ctx, func(ctx context.Context, tx neo4j.ManagedTransaction) error {
		params := map[string]any{
			"id":          f.ID,
			"path":        f.Path,
			"name":        f.DisplayName,
			"extension":   f.Extension,
			"language":    f.Language,
			"size":        f.SizeBytes,
			"lineCount":   f.LineCount,
			"modTime":     f.ModTime.UTC().Format(timeLayout),
			"indexedAt":   f.IndexedAt.UTC().Format(timeLayout),
			"hasChunks":   f.HasChunks,
			"content":     f.Content,
			"embedding":   toFloat64Slice(f.Embedding),
			"dimensions":  f.Dimensions,
			"model":       f.Model,
		}
		_, err := tx.Run(ctx, `
			MERGE (f:File {id: $id})
			SET f.path = $path, f.name = $name, f.extension = $extension,
			    f.language = $language, f.size = $size, f.lineCount = $lineCount,
			    f.modTime = $modTime, f.indexedAt = $indexedAt, f.hasChunks = $hasChunks,
			    f.content = $content, f.embedding = $embedding, f.dimensions = $dimensions,
			    f.model = $model
		`, params)
		if err != nil {
			return fsindexerrors.Wrap(fsindexerrors.ErrCodeIndexFailed, err)
		}

		if subscriptionID == "" {
			return nil
		}
		_, err = tx.Run(ctx, `
			MATCH (s:Subscription {id: $subID}), (f:File {id: $fileID})
			MERGE (s)-[:WATCHES]->(f)
			MERGE (f)-[:WATCHED_BY]->(s)
		`, map[string]any{"subID": subscriptionID, "fileID": f.ID})
		if err != nil {
			return fsindexerrors.Wrap(fsindexerrors.ErrCodeIndexFailed, err)
		}
		return nil
	})
}

// ReplaceChunks deletes all existing FileChunks under parentPath and inserts
// chunks, each under a HAS_CHUNK {index} edge from the File, in a single
// transaction so consumers never observe a partially-replaced chunk set.
func (s *Store) ReplaceChunks(ctx context.Context, fileID, parentPath string, chunks []*FileChunk) error {
	return s.WithTransaction(ctx, func(ctx context.Context, tx neo4j.ManagedTransaction) error {
		if _, err := tx.Run(ctx, `
			MATCH (f:File {id: $fileID})-[:HAS_CHUNK]->(c:FileChunk)
			DETACH DELETE c
		`, map[string]any{"fileID": fileID}); err != nil {
			return fsindexerrors.Wrap(fsindexerrors.ErrCodeIndexFailed, err)
		}

		for _, c := range chunks {
			params := map[string]any{
				"fileID":      fileID,
				"id":          c.ID,
				"parentPath":  parentPath,
				"index":       c.Index,
				"text":        c.Text,
				"startOffset": c.StartOffset,
				"endOffset":   c.EndOffset,
				"embedding":   toFloat64Slice(c.Embedding),
				"dimensions":  c.Dimensions,
				"model":       c.Model,
				"totalChunks": c.TotalChunks,
				"hasNext":     c.HasNext,
				"hasPrev":     c.HasPrev,
			}
			_, err := tx.Run(ctx, `
				MATCH (f:File {id: $fileID})
				MERGE (c:FileChunk {id: $id})
				SET c.parentPath = $parentPath, c.index = $index, c.text = $text,
				    c.startOffset = $startOffset, c.endOffset = $endOffset,
				    c.embedding = $embedding, c.dimensions = $dimensions, c.model = $model,
				    c.totalChunks = $totalChunks, c.hasNext = $hasNext, c.hasPrev = $hasPrev
				MERGE (f)-[:HAS_CHUNK {index: $index}]->(c)
			`, params)
			if err != nil {
				return fsindexerrors.Wrap(fsindexerrors.ErrCodeIndexFailed, err)
			}
		}
		return nil
	})
}

// DeleteFile detach-deletes a File and its FileChunks (cascading over the
// HAS_CHUNK edge).
func (s *Store) DeleteFile(ctx context.Context, fileID string) error {
	return s.WithTransaction(ctx, func(ctx context.Context, tx neo4j.ManagedTransaction) error {
		_, err := tx.Run(ctx, `
			MATCH (f:File {id: $fileID})
			OPTIONAL MATCH (f)-[:HAS_CHUNK]->(c:FileChunk)
			DETACH DELETE f, c
		`, map[string]any{"fileID": fileID})
		if err != nil {
			return fsindexerrors.Wrap(fsindexerrors.ErrCodeIndexFailed, err)
		}
		return nil
	})
}

// GetFileMTime returns the stored mtime for a File, and whether it exists,
// used by FileIndexer's fast-skip check.
func (s *Store) GetFileMTime(ctx context.Context, fileID string) (modTime string, exists bool, err error) {
	session := s.session(ctx, neo4j.AccessModeRead)
	defer func() { _ = session.Close(ctx) }()

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `MATCH (f:File {id: $id}) RETURN f.modTime AS modTime`, map[string]any{"id": fileID})
		if err != nil {
			return nil, err
		}
		records, err := res.Collect(ctx)
		if err != nil {
			return nil, err
		}
		if len(records) == 0 {
			return "", nil
		}
		v, _ := records[0].Get("modTime")
		s, _ := v.(string)
		return s, nil
	})
	if err != nil {
		return "", false, wrapNeo4jErr(err)
	}
	mt, _ := result.(string)
	return mt, mt != "", nil
}

const timeLayout = "2006-01-02T15:04:05.000Z"

func toFloat64Slice(v []float32) []float64 {
	if v == nil {
		return nil
	}
	out := make([]float64, len(v))
	for i, f := range v {
		out[i] = float64(f)
	}
	return out
}
