// Package search implements hybrid retrieval: parallel vector + BM25 arms
// over the graph store, fused with internal/rrf, with a fallback ladder on
// partial failure.
package search

import (
	"context"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/fsgraph/indexer/internal/graphstore"
	"github.com/fsgraph/indexer/internal/ids"
	"github.com/fsgraph/indexer/internal/rrf"
)

// previewLen is the maximum length of a result's content_preview.
const previewLen = 200

// GraphStore is the subset of *graphstore.Store HybridSearchService reads.
type GraphStore interface {
	VectorQuery(ctx context.Context, indexName string, queryVector []float32, k int) ([]graphstore.VectorHit, error)
	FullTextQuery(ctx context.Context, indexName, query string, limit int) ([]graphstore.FullTextHit, error)
	GetFileByID(ctx context.Context, fileID string) (*graphstore.File, bool, error)
	GetChunkByID(ctx context.Context, chunkID string) (*graphstore.FileChunk, bool, error)
}

// Embedder is the subset of *embedclient.Client used to embed the query
// text for the vector arm.
type Embedder interface {
	EmbedText(ctx context.Context, text string) ([]float32, error)
}

// Config parameterizes a Service.
type Config struct {
	MinSimilarity float64 // default 0.75
	RRFK          int     // default 60
	VectorWeight  float64 // default 1.0
	BM25Weight    float64 // default 1.0
	RRFMinScore   float64 // default 0.01
	// EmbeddingsEnabled, when false, skips the vector arm entirely and
	// runs BM25 only.
	EmbeddingsEnabled bool
}

// DefaultConfig returns the standard search defaults.
func DefaultConfig() Config {
	return Config{
		MinSimilarity:     0.75,
		RRFK:              rrf.DefaultK,
		VectorWeight:      1.0,
		BM25Weight:        1.0,
		RRFMinScore:       rrf.DefaultMinScore,
		EmbeddingsEnabled: true,
	}
}

// Query is one search request.
type Query struct {
	Text          string
	Types         []string // e.g. ["file"]; expanded to include "file_chunk"
	Limit         int
	MinSimilarity float64 // 0 uses Config.MinSimilarity
	RRFK          int     // 0 uses Config.RRFK
	RRFMinScore   float64 // 0 uses Config.RRFMinScore
	VectorWeight  float64 // 0 uses Config.VectorWeight
	BM25Weight    float64 // 0 uses Config.BM25Weight
	BM25Only      bool
}

// Method identifies which arms contributed to a Response.
type Method string

const (
	MethodRRFHybrid  Method = "rrf_hybrid"
	MethodVectorOnly Method = "vector_only"
	MethodFullText   Method = "fulltext"
	MethodEmpty      Method = "empty"
)

// Result is one shaped hit.
type Result struct {
	ID             string
	Type           string
	Title          string
	Description    string
	ContentPreview string
	Score          float64 // similarity (vector-only) or relevance (fused/BM25)
	ChunkText      string
	ChunkIndex     int
	ChunksMatched  int
	ParentFilePath string
	AbsolutePath   string
}

// Response is a full search response envelope.
type Response struct {
	Status            string
	Query             string
	Results           []Result
	TotalCandidates   int
	Returned          int
	SearchMethod      Method
	FallbackTriggered bool
	Message           string
}

// Service is the HybridSearchService.
type Service struct {
	store    GraphStore
	embedder Embedder
	cfg      Config
}

// New builds a Service.
func New(cfg Config, store GraphStore, embedder Embedder) *Service {
	if cfg.RRFK <= 0 {
		cfg.RRFK = rrf.DefaultK
	}
	if cfg.MinSimilarity <= 0 {
		cfg.MinSimilarity = 0.75
	}
	if cfg.RRFMinScore <= 0 {
		cfg.RRFMinScore = rrf.DefaultMinScore
	}
	if cfg.VectorWeight <= 0 {
		cfg.VectorWeight = 1.0
	}
	if cfg.BM25Weight <= 0 {
		cfg.BM25Weight = 1.0
	}
	return &Service{store: store, embedder: embedder, cfg: cfg}
}

// candidate is one grouped-by-parent-file hit, pre-fusion.
type candidate struct {
	id            string // parent-file path for chunk hits, else the node's own id
	nodeType      string // "file" or "file_chunk"
	maxScore      float64
	avgScore      float64
	chunksMatched int
	repChunk      *graphstore.FileChunk
	file          *graphstore.File
}

// Search runs the full retrieval pipeline: empty-query short-circuit,
// embeddings-disabled BM25-only path, or parallel vector+BM25 arms fused
// via RRF with a fallback ladder on failure.
func (s *Service) Search(ctx context.Context, q Query) Response {
	if strings.TrimSpace(q.Text) == "" {
		return Response{Status: "success", Query: q.Text, SearchMethod: MethodEmpty, Message: "empty query"}
	}

	limit := q.Limit
	if limit <= 0 {
		limit = 20
	}
	minSim := q.MinSimilarity
	if minSim <= 0 {
		minSim = s.cfg.MinSimilarity
	}
	rrfK := q.RRFK
	if rrfK <= 0 {
		rrfK = s.cfg.RRFK
	}
	rrfMinScore := q.RRFMinScore
	if rrfMinScore <= 0 {
		rrfMinScore = s.cfg.RRFMinScore
	}
	vectorWeight := q.VectorWeight
	if vectorWeight <= 0 {
		vectorWeight = s.cfg.VectorWeight
	}
	bm25Weight := q.BM25Weight
	if bm25Weight <= 0 {
		bm25Weight = s.cfg.BM25Weight
	}

	types := expandTypes(q.Types)

	if !s.cfg.EmbeddingsEnabled || q.BM25Only {
		bm25, err := s.bm25Arm(ctx, q.Text, types, 2*limit)
		if err != nil {
			return Response{Status: "success", Query: q.Text, SearchMethod: MethodEmpty, Message: "search unavailable: " + err.Error()}
		}
		return shapeSingleArm(q.Text, bm25, limit, MethodFullText)
	}

	var vectorCands, bm25Cands []candidate
	var vectorErr, bm25Err error

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		vectorCands, vectorErr = s.vectorArm(gctx, q.Text, types, minSim, 2*limit)
		return nil
	})
	g.Go(func() error {
		bm25Cands, bm25Err = s.bm25Arm(gctx, q.Text, types, 2*limit)
		return nil
	})
	_ = g.Wait()

	if vectorErr == nil && bm25Err == nil {
		resp := s.fuse(q.Text, vectorCands, bm25Cands, rrfK, rrfMinScore, vectorWeight, bm25Weight, limit)
		return resp
	}

	// Fallback ladder: vector-only, then BM25-only, then empty success.
	if vectorErr == nil {
		resp := shapeSingleArm(q.Text, vectorCands, limit, MethodVectorOnly)
		resp.FallbackTriggered = true
		resp.Message = "RRF fusion unavailable, falling back to vector-only results"
		return resp
	}
	if bm25Err == nil {
		resp := shapeSingleArm(q.Text, bm25Cands, limit, MethodFullText)
		resp.FallbackTriggered = true
		resp.Message = "RRF fusion unavailable, falling back to keyword-only results"
		return resp
	}
	return Response{Status: "success", Query: q.Text, SearchMethod: MethodEmpty, FallbackTriggered: true, Message: "search unavailable"}
}

// vectorArm embeds the query, runs KNN over both File and FileChunk vector
// indexes, drops hits below minSim and outside types, and groups by parent
// file.
func (s *Service) vectorArm(ctx context.Context, text string, types map[string]bool, minSim float64, k int) ([]candidate, error) {
	vec, err := s.embedder.EmbedText(ctx, text)
	if err != nil {
		return nil, err
	}

	var hits []graphstore.VectorHit
	if types["file_chunk"] {
		chunkHits, err := s.store.VectorQuery(ctx, graphstore.VectorIndexName, vec, k)
		if err != nil {
			return nil, err
		}
		hits = append(hits, chunkHits...)
	}
	if types["file"] {
		fileHits, err := s.store.VectorQuery(ctx, graphstore.VectorIndexNameFiles, vec, k)
		if err != nil {
			return nil, err
		}
		hits = append(hits, fileHits...)
	}

	groups := map[string]*candidate{}
	var order []string
	for _, h := range hits {
		score := float64(h.Score)
		if score < minSim {
			continue
		}
		switch h.Label {
		case graphstore.LabelFileChunk:
			chunk, ok, err := s.store.GetChunkByID(ctx, h.ID)
			if err != nil || !ok {
				continue
			}
			addChunkCandidate(groups, &order, chunk, score)
		case graphstore.LabelFile:
			file, ok, err := s.store.GetFileByID(ctx, h.ID)
			if err != nil || !ok {
				continue
			}
			addFileCandidate(groups, &order, file, score)
		}
	}

	return finalizeGroups(ctx, s.store, groups, order)
}

// bm25Arm runs the full-text query and groups by parent file.
func (s *Service) bm25Arm(ctx context.Context, text string, types map[string]bool, limit int) ([]candidate, error) {
	hits, err := s.store.FullTextQuery(ctx, graphstore.FullTextIndexName, text, limit)
	if err != nil {
		return nil, err
	}

	groups := map[string]*candidate{}
	var order []string
	for _, h := range hits {
		switch h.Label {
		case graphstore.LabelFileChunk:
			if !types["file_chunk"] {
				continue
			}
			chunk, ok, err := s.store.GetChunkByID(ctx, h.ID)
			if err != nil || !ok {
				continue
			}
			addChunkCandidate(groups, &order, chunk, float64(h.Score))
		case graphstore.LabelFile:
			if !types["file"] {
				continue
			}
			file, ok, err := s.store.GetFileByID(ctx, h.ID)
			if err != nil || !ok {
				continue
			}
			addFileCandidate(groups, &order, file, float64(h.Score))
		}
	}

	return finalizeGroups(ctx, s.store, groups, order)
}

func addChunkCandidate(groups map[string]*candidate, order *[]string, chunk *graphstore.FileChunk, score float64) {
	key := chunk.ParentPath
	c, ok := groups[key]
	if !ok {
		c = &candidate{id: key, nodeType: "file_chunk"}
		groups[key] = c
		*order = append(*order, key)
	}
	c.chunksMatched++
	if c.repChunk == nil || score > c.maxScore {
		c.repChunk = chunk
	}
	c.avgScore = (c.avgScore*float64(c.chunksMatched-1) + score) / float64(c.chunksMatched)
	if score > c.maxScore {
		c.maxScore = score
	}
}

func addFileCandidate(groups map[string]*candidate, order *[]string, file *graphstore.File, score float64) {
	key := file.ID
	c, ok := groups[key]
	if !ok {
		c = &candidate{id: key, nodeType: "file", file: file, maxScore: score, avgScore: score}
		groups[key] = c
		*order = append(*order, key)
		return
	}
	if score > c.maxScore {
		c.maxScore = score
	}
}

// finalizeGroups resolves each chunk-grouped candidate's parent File
// record (the "left-join each FileChunk candidate to its parent File" step)
// and sorts by max score descending.
func finalizeGroups(ctx context.Context, store GraphStore, groups map[string]*candidate, order []string) ([]candidate, error) {
	out := make([]candidate, 0, len(order))
	for _, key := range order {
		c := groups[key]
		if c.nodeType == "file_chunk" && c.file == nil {
			if f, ok, err := store.GetFileByID(ctx, parentFileID(c.repChunk)); err == nil && ok {
				c.file = f
			}
		}
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].maxScore > out[j].maxScore })
	return out, nil
}

// parentFileID derives the parent File's id from a chunk's parent path via
// the same content-addressed scheme fileindexer uses to produce File ids.
func parentFileID(c *graphstore.FileChunk) string {
	return ids.FileID(c.ParentPath)
}

func expandTypes(types []string) map[string]bool {
	out := map[string]bool{}
	if len(types) == 0 {
		out["file"] = true
		out["file_chunk"] = true
		return out
	}
	for _, t := range types {
		out[t] = true
		if t == "file" {
			out["file_chunk"] = true
		}
	}
	return out
}

// fuse runs RRF over the two arms' candidate lists and shapes the result.
func (s *Service) fuse(query string, vectorCands, bm25Cands []candidate, k int, minScore, vectorWeight, bm25Weight float64, limit int) Response {
	byID := map[string]*candidate{}
	vecList := rrf.List{Source: "vector"}
	for _, c := range vectorCands {
		c := c
		vecList.Items = append(vecList.Items, rrf.Ranked{ID: c.id, Score: c.maxScore})
		byID[c.id] = &c
	}
	bm25List := rrf.List{Source: "bm25"}
	for _, c := range bm25Cands {
		c := c
		bm25List.Items = append(bm25List.Items, rrf.Ranked{ID: c.id, Score: c.maxScore})
		if _, ok := byID[c.id]; !ok {
			byID[c.id] = &c
		}
	}

	fused := rrf.Fuse([]rrf.List{vecList, bm25List}, rrf.Config{
		K:        k,
		MinScore: minScore,
		Weights:  map[string]float64{"vector": vectorWeight, "bm25": bm25Weight},
	})

	total := len(byID)
	if len(fused) > limit {
		fused = fused[:limit]
	}

	results := make([]Result, 0, len(fused))
	for _, f := range fused {
		c, ok := byID[f.ID]
		if !ok {
			continue
		}
		results = append(results, shapeResult(*c, f.Score))
	}

	return Response{
		Status:          "success",
		Query:           query,
		Results:         results,
		TotalCandidates: total,
		Returned:        len(results),
		SearchMethod:    MethodRRFHybrid,
	}
}

func shapeSingleArm(query string, cands []candidate, limit int, method Method) Response {
	total := len(cands)
	if len(cands) > limit {
		cands = cands[:limit]
	}
	results := make([]Result, 0, len(cands))
	for _, c := range cands {
		results = append(results, shapeResult(c, c.maxScore))
	}
	return Response{
		Status:          "success",
		Query:           query,
		Results:         results,
		TotalCandidates: total,
		Returned:        len(results),
		SearchMethod:    method,
	}
}

func shapeResult(c candidate, score float64) Result {
	r := Result{
		ID:            c.id,
		Type:          c.nodeType,
		Score:         score,
		ChunksMatched: c.chunksMatched,
	}
	if c.file != nil {
		r.Title = c.file.DisplayName
		r.ParentFilePath = c.file.Path
		r.AbsolutePath = c.file.Path
		r.Description = c.file.Language
		if c.repChunk == nil {
			r.ContentPreview = truncate(c.file.Content, previewLen)
		}
	}
	if c.repChunk != nil {
		r.ChunkIndex = c.repChunk.Index
		r.ChunkText = c.repChunk.Text
		r.ContentPreview = truncate(c.repChunk.Text, previewLen)
	}
	return r
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
