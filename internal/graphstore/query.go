package graphstore

import (
	"context"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

// VectorQuery runs a KNN query over the named vector index, returning up to
// k nearest nodes of that index's label (FileChunk or File) by cosine
// similarity.
func (s *Store) VectorQuery(ctx context.Context, indexName string, queryVector []float32, k int) ([]VectorHit, error) {
	session := s.session(ctx, neo4j.AccessModeRead)
	defer func() { _ = session.Close(ctx) }()

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `
			CALL db.index.vector.queryNodes($indexName, $k, $queryVector)
			YIELD node, score
			RETURN node.id AS id, labels(node)[0] AS label, score
		`, map[string]any{
			"indexName":   indexName,
			"k":           k,
			"queryVector": toFloat64Slice(queryVector),
		})
		if err != nil {
			return nil, err
		}
		records, err := res.Collect(ctx)
		if err != nil {
			return nil, err
		}

		hits := make([]VectorHit, 0, len(records))
		for _, rec := range records {
			id, _ := rec.Get("id")
			label, _ := rec.Get("label")
			score, _ := rec.Get("score")
			idStr, _ := id.(string)
			labelStr, _ := label.(string)
			scoreF, _ := score.(float64)
			hits = append(hits, VectorHit{ID: idStr, Label: NodeLabel(labelStr), Score: float32(scoreF)})
		}
		return hits, nil
	})
	if err != nil {
		return nil, wrapNeo4jErr(err)
	}
	hits, _ := result.([]VectorHit)
	return hits, nil
}

// FullTextQuery runs a full-text query over the named index, returning up to
// limit matches ordered by Lucene score.
func (s *Store) FullTextQuery(ctx context.Context, indexName, query string, limit int) ([]FullTextHit, error) {
	session := s.session(ctx, neo4j.AccessModeRead)
	defer func() { _ = session.Close(ctx) }()

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `
			CALL db.index.fulltext.queryNodes($indexName, $query)
			YIELD node, score
			RETURN node.id AS id, labels(node)[0] AS label, score
			LIMIT $limit
		`, map[string]any{
			"indexName": indexName,
			"query":     query,
			"limit":     limit,
		})
		if err != nil {
			return nil, err
		}
		records, err := res.Collect(ctx)
		if err != nil {
			return nil, err
		}

		hits := make([]FullTextHit, 0, len(records))
		for _, rec := range records {
			id, _ := rec.Get("id")
			label, _ := rec.Get("label")
			score, _ := rec.Get("score")
			idStr, _ := id.(string)
			labelStr, _ := label.(string)
			scoreF, _ := score.(float64)
			hits = append(hits, FullTextHit{ID: idStr, Label: NodeLabel(labelStr), Score: float32(scoreF)})
		}
		return hits, nil
	})
	if err != nil {
		return nil, wrapNeo4jErr(err)
	}
	hits, _ := result.([]FullTextHit)
	return hits, nil
}

// GetFileByID returns a File node's properties by id, or (nil, false) if
// absent.
func (s *Store) GetFileByID(ctx context.Context, fileID string) (*File, bool, error) {
	session := s.session(ctx, neo4j.AccessModeRead)
	defer func() { _ = session.Close(ctx) }()

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `MATCH (f:File {id: $id}) RETURN f`, map[string]any{"id": fileID})
		if err != nil {
			return nil, err
		}
		records, err := res.Collect(ctx)
		if err != nil {
			return nil, err
		}
		if len(records) == 0 {
			return nil, nil
		}
		node, _ := records[0].Get("f")
		n, ok := node.(neo4j.Node)
		if !ok {
			return nil, nil
		}
		return nodeToFile(n), nil
	})
	if err != nil {
		return nil, false, wrapNeo4jErr(err)
	}
	f, ok := result.(*File)
	return f, ok && f != nil, nil
}

// GetChunkByID returns a FileChunk node's properties by id, or (nil, false)
// if absent. Used by HybridSearchService to resolve vector/full-text chunk
// hits to their text and parent file path.
func (s *Store) GetChunkByID(ctx context.Context, chunkID string) (*FileChunk, bool, error) {
	session := s.session(ctx, neo4j.AccessModeRead)
	defer func() { _ = session.Close(ctx) }()

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `MATCH (c:FileChunk {id: $id}) RETURN c`, map[string]any{"id": chunkID})
		if err != nil {
			return nil, err
		}
		records, err := res.Collect(ctx)
		if err != nil {
			return nil, err
		}
		if len(records) == 0 {
			return nil, nil
		}
		node, _ := records[0].Get("c")
		n, ok := node.(neo4j.Node)
		if !ok {
			return nil, nil
		}
		return nodeToChunk(n), nil
	})
	if err != nil {
		return nil, false, wrapNeo4jErr(err)
	}
	c, ok := result.(*FileChunk)
	return c, ok && c != nil, nil
}

func nodeToChunk(n neo4j.Node) *FileChunk {
	props := n.Props
	c := &FileChunk{}
	if v, ok := props["id"].(string); ok {
		c.ID = v
	}
	if v, ok := props["parentPath"].(string); ok {
		c.ParentPath = v
	}
	if v, ok := props["text"].(string); ok {
		c.Text = v
	}
	if v, ok := props["index"].(int64); ok {
		c.Index = int(v)
	}
	if v, ok := props["totalChunks"].(int64); ok {
		c.TotalChunks = int(v)
	}
	return c
}

func nodeToFile(n neo4j.Node) *File {
	props := n.Props
	f := &File{}
	if v, ok := props["id"].(string); ok {
		f.ID = v
	}
	if v, ok := props["path"].(string); ok {
		f.Path = v
	}
	if v, ok := props["name"].(string); ok {
		f.DisplayName = v
	}
	if v, ok := props["extension"].(string); ok {
		f.Extension = v
	}
	if v, ok := props["language"].(string); ok {
		f.Language = v
	}
	if v, ok := props["hasChunks"].(bool); ok {
		f.HasChunks = v
	}
	if v, ok := props["content"].(string); ok {
		f.Content = v
	}
	return f
}
