package rrf

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFuse_Basic(t *testing.T) {
	// bm25: A, B, C ; vector: C, A, D
	lists := []List{
		{Source: "bm25", Items: []Ranked{{ID: "A", Score: 2.5}, {ID: "B", Score: 2.0}, {ID: "C", Score: 1.5}}},
		{Source: "vector", Items: []Ranked{{ID: "C", Score: 0.95}, {ID: "A", Score: 0.90}, {ID: "D", Score: 0.85}}},
	}

	results := Fuse(lists, DefaultConfig())
	require.NotEmpty(t, results)

	// A and C appear in both lists and should outrank B/D, which appear once.
	byID := map[string]Fused{}
	for _, r := range results {
		byID[r.ID] = r
	}
	assert.Equal(t, 2, byID["A"].NumSources)
	assert.Equal(t, 2, byID["C"].NumSources)
	assert.Equal(t, 1, byID["B"].NumSources)
	assert.Equal(t, 1, byID["D"].NumSources)

	// top result has the max normalized score of 1.0
	assert.InDelta(t, 1.0, results[0].Score, 1e-9)
}

func TestFuse_Monotonicity(t *testing.T) {
	// Item appearing in both lists at top ranks must fuse strictly higher
	// than one appearing in only a single list, for equal weights/k.
	lists := []List{
		{Source: "a", Items: []Ranked{{ID: "both"}, {ID: "only-a"}}},
		{Source: "b", Items: []Ranked{{ID: "both"}, {ID: "only-b"}}},
	}
	results := Fuse(lists, Config{K: 60, MinScore: -1})
	byID := map[string]float64{}
	for _, r := range results {
		byID[r.ID] = r.Score
	}
	assert.Greater(t, byID["both"], byID["only-a"])
	assert.Greater(t, byID["both"], byID["only-b"])
}

func TestFuse_EmptyLists(t *testing.T) {
	results := Fuse(nil, DefaultConfig())
	assert.Empty(t, results)
}

func TestFuse_MinScoreDrops(t *testing.T) {
	lists := []List{
		{Source: "a", Items: []Ranked{{ID: "x"}, {ID: "y"}, {ID: "z"}}},
	}
	// z's RRF contribution is much smaller than x's; a high min score should drop it.
	results := Fuse(lists, Config{K: 60, MinScore: 0.99})
	for _, r := range results {
		assert.NotEqual(t, "z", r.ID)
	}
}

func TestFuse_WeightsSkewRanking(t *testing.T) {
	lists := []List{
		{Source: "bm25", Items: []Ranked{{ID: "bm25-fav"}, {ID: "other"}}},
		{Source: "vector", Items: []Ranked{{ID: "other"}, {ID: "bm25-fav"}}},
	}
	results := Fuse(lists, Config{K: 60, Weights: map[string]float64{"bm25": 5.0, "vector": 1.0}, MinScore: -1})
	require.NotEmpty(t, results)
	assert.Equal(t, "bm25-fav", results[0].ID)
}

func TestFuse_DeterministicTieBreak(t *testing.T) {
	// Two items with identical scores and source counts tie-break by ID.
	lists := []List{
		{Source: "a", Items: []Ranked{{ID: "zzz"}, {ID: "aaa"}}},
	}
	results := Fuse(lists, Config{K: 60, MinScore: -1})
	// both appear once at different ranks so not actually tied; use same rank via two lists.
	lists2 := []List{
		{Source: "a", Items: []Ranked{{ID: "zzz"}}},
		{Source: "b", Items: []Ranked{{ID: "aaa"}}},
	}
	results2 := Fuse(lists2, Config{K: 60, MinScore: -1})
	assert.Equal(t, "aaa", results2[0].ID)
	_ = results
}
