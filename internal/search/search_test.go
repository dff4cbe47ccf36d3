package search

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fsgraph/indexer/internal/graphstore"
	"github.com/fsgraph/indexer/internal/ids"
)

type fakeStore struct {
	vectorHits   map[string][]graphstore.VectorHit
	fullTextHits []graphstore.FullTextHit
	files        map[string]*graphstore.File
	chunks       map[string]*graphstore.FileChunk
	vectorErr    error
	fullTextErr  error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		vectorHits: map[string][]graphstore.VectorHit{},
		files:      map[string]*graphstore.File{},
		chunks:     map[string]*graphstore.FileChunk{},
	}
}

func (f *fakeStore) VectorQuery(ctx context.Context, indexName string, queryVector []float32, k int) ([]graphstore.VectorHit, error) {
	if f.vectorErr != nil {
		return nil, f.vectorErr
	}
	return f.vectorHits[indexName], nil
}

func (f *fakeStore) FullTextQuery(ctx context.Context, indexName, query string, limit int) ([]graphstore.FullTextHit, error) {
	if f.fullTextErr != nil {
		return nil, f.fullTextErr
	}
	return f.fullTextHits, nil
}

func (f *fakeStore) GetFileByID(ctx context.Context, fileID string) (*graphstore.File, bool, error) {
	file, ok := f.files[fileID]
	return file, ok, nil
}

func (f *fakeStore) GetChunkByID(ctx context.Context, chunkID string) (*graphstore.FileChunk, bool, error) {
	chunk, ok := f.chunks[chunkID]
	return chunk, ok, nil
}

func (f *fakeStore) addFile(path, displayName string) *graphstore.File {
	file := &graphstore.File{ID: ids.FileID(path), Path: path, DisplayName: displayName, Content: "file content for " + path}
	f.files[file.ID] = file
	return file
}

type fakeEmbedder struct {
	vec []float32
	err error
}

func (f *fakeEmbedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	return f.vec, f.err
}

func TestSearch_EmptyQueryShortCircuits(t *testing.T) {
	svc := New(DefaultConfig(), newFakeStore(), &fakeEmbedder{})
	resp := svc.Search(t.Context(), Query{Text: "   "})

	assert.Equal(t, MethodEmpty, resp.SearchMethod)
	assert.Equal(t, "success", resp.Status)
	assert.Empty(t, resp.Results)
}

func TestSearch_RRFHybridFusesBothArms(t *testing.T) {
	store := newFakeStore()
	f1 := store.addFile("/repo/a.go", "a.go")
	f2 := store.addFile("/repo/b.go", "b.go")

	store.vectorHits[graphstore.VectorIndexNameFiles] = []graphstore.VectorHit{
		{ID: f1.ID, Label: graphstore.LabelFile, Score: 0.9},
		{ID: f2.ID, Label: graphstore.LabelFile, Score: 0.8},
	}
	store.fullTextHits = []graphstore.FullTextHit{
		{ID: f2.ID, Label: graphstore.LabelFile, Score: 5.0},
		{ID: f1.ID, Label: graphstore.LabelFile, Score: 3.0},
	}

	svc := New(DefaultConfig(), store, &fakeEmbedder{vec: []float32{0.1, 0.2}})
	resp := svc.Search(t.Context(), Query{Text: "widget factory", Types: []string{"file"}})

	require.Equal(t, MethodRRFHybrid, resp.SearchMethod)
	assert.False(t, resp.FallbackTriggered)
	assert.Len(t, resp.Results, 2)
	assert.Equal(t, 2, resp.TotalCandidates)
}

func TestSearch_VectorErrorFallsBackToBM25Only(t *testing.T) {
	store := newFakeStore()
	f1 := store.addFile("/repo/a.go", "a.go")
	store.fullTextHits = []graphstore.FullTextHit{{ID: f1.ID, Label: graphstore.LabelFile, Score: 4.0}}

	svc := New(DefaultConfig(), store, &fakeEmbedder{err: errors.New("embedding endpoint down")})
	resp := svc.Search(t.Context(), Query{Text: "widget factory", Types: []string{"file"}})

	require.Equal(t, MethodFullText, resp.SearchMethod)
	assert.True(t, resp.FallbackTriggered)
	assert.Len(t, resp.Results, 1)
}

func TestSearch_BM25ErrorFallsBackToVectorOnly(t *testing.T) {
	store := newFakeStore()
	f1 := store.addFile("/repo/a.go", "a.go")
	store.vectorHits[graphstore.VectorIndexNameFiles] = []graphstore.VectorHit{{ID: f1.ID, Label: graphstore.LabelFile, Score: 0.9}}
	store.fullTextErr = errors.New("fulltext index unavailable")

	svc := New(DefaultConfig(), store, &fakeEmbedder{vec: []float32{0.1}})
	resp := svc.Search(t.Context(), Query{Text: "widget factory", Types: []string{"file"}})

	require.Equal(t, MethodVectorOnly, resp.SearchMethod)
	assert.True(t, resp.FallbackTriggered)
	assert.Len(t, resp.Results, 1)
}

func TestSearch_BothArmsFailReturnsEmptySuccess(t *testing.T) {
	store := newFakeStore()
	store.fullTextErr = errors.New("fulltext index unavailable")

	svc := New(DefaultConfig(), store, &fakeEmbedder{err: errors.New("embedding endpoint down")})
	resp := svc.Search(t.Context(), Query{Text: "widget factory"})

	assert.Equal(t, MethodEmpty, resp.SearchMethod)
	assert.Equal(t, "success", resp.Status)
	assert.True(t, resp.FallbackTriggered)
	assert.Empty(t, resp.Results)
}

func TestSearch_EmbeddingsDisabledRunsBM25Only(t *testing.T) {
	store := newFakeStore()
	f1 := store.addFile("/repo/a.go", "a.go")
	store.fullTextHits = []graphstore.FullTextHit{{ID: f1.ID, Label: graphstore.LabelFile, Score: 4.0}}

	cfg := DefaultConfig()
	cfg.EmbeddingsEnabled = false
	svc := New(cfg, store, &fakeEmbedder{vec: []float32{0.1}})
	resp := svc.Search(t.Context(), Query{Text: "widget factory", Types: []string{"file"}})

	assert.Equal(t, MethodFullText, resp.SearchMethod)
	assert.False(t, resp.FallbackTriggered)
}

func TestSearch_VectorArmFiltersBelowMinSimilarity(t *testing.T) {
	store := newFakeStore()
	f1 := store.addFile("/repo/a.go", "a.go")
	f2 := store.addFile("/repo/b.go", "b.go")
	store.vectorHits[graphstore.VectorIndexNameFiles] = []graphstore.VectorHit{
		{ID: f1.ID, Label: graphstore.LabelFile, Score: 0.95},
		{ID: f2.ID, Label: graphstore.LabelFile, Score: 0.10},
	}

	cfg := DefaultConfig()
	svc := New(cfg, store, &fakeEmbedder{vec: []float32{0.1}})
	resp := svc.Search(t.Context(), Query{Text: "widget factory", Types: []string{"file"}, BM25Only: false, MinSimilarity: 0.5})

	// both arms return without error (bm25 arm simply has no hits), so the
	// pipeline still fuses rather than falling back; only f1 survives the
	// minSim filter and is the sole candidate in the fused result.
	require.Equal(t, MethodRRFHybrid, resp.SearchMethod)
	assert.False(t, resp.FallbackTriggered)
	require.Len(t, resp.Results, 1)
	assert.Equal(t, f1.Path, resp.Results[0].ParentFilePath)
}

func TestSearch_PerQueryWeightsOverrideConfigDefaults(t *testing.T) {
	store := newFakeStore()
	f1 := store.addFile("/repo/a.go", "a.go")
	f2 := store.addFile("/repo/b.go", "b.go")
	f3 := store.addFile("/repo/c.go", "c.go")

	// Vector arm ranks f1 > f2 > f3; BM25 arm ranks the opposite way, so
	// the fused order is entirely determined by the relative arm weights.
	store.vectorHits[graphstore.VectorIndexNameFiles] = []graphstore.VectorHit{
		{ID: f1.ID, Label: graphstore.LabelFile, Score: 0.9},
		{ID: f2.ID, Label: graphstore.LabelFile, Score: 0.8},
		{ID: f3.ID, Label: graphstore.LabelFile, Score: 0.76},
	}
	store.fullTextHits = []graphstore.FullTextHit{
		{ID: f3.ID, Label: graphstore.LabelFile, Score: 5.0},
		{ID: f2.ID, Label: graphstore.LabelFile, Score: 4.0},
		{ID: f1.ID, Label: graphstore.LabelFile, Score: 3.0},
	}

	svc := New(DefaultConfig(), store, &fakeEmbedder{vec: []float32{0.1}})

	resp := svc.Search(t.Context(), Query{
		Text:         "widget factory",
		Types:        []string{"file"},
		VectorWeight: 1,
		BM25Weight:   0.001,
	})
	require.Equal(t, MethodRRFHybrid, resp.SearchMethod)
	require.Len(t, resp.Results, 3)
	assert.Equal(t, f1.Path, resp.Results[0].ParentFilePath, "near-zero bm25 weight should let the vector arm's order dominate")

	resp = svc.Search(t.Context(), Query{
		Text:         "widget factory",
		Types:        []string{"file"},
		VectorWeight: 0.001,
		BM25Weight:   1,
	})
	require.Equal(t, MethodRRFHybrid, resp.SearchMethod)
	require.Len(t, resp.Results, 3)
	assert.Equal(t, f3.Path, resp.Results[0].ParentFilePath, "near-zero vector weight should let the bm25 arm's order dominate")
}

func TestExpandTypes_FileImpliesFileChunk(t *testing.T) {
	types := expandTypes([]string{"file"})
	assert.True(t, types["file"])
	assert.True(t, types["file_chunk"])
}

func TestExpandTypes_EmptyDefaultsToBoth(t *testing.T) {
	types := expandTypes(nil)
	assert.True(t, types["file"])
	assert.True(t, types["file_chunk"])
}
