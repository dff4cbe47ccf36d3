// Package rrf implements the RRF component: a pure function fusing any
// number of independently-ranked result lists into one ranked list via
// Reciprocal Rank Fusion.
package rrf

import "sort"

// DefaultK is the standard RRF smoothing constant, empirically validated
// across domains (used by Azure AI Search, OpenSearch, etc.).
const DefaultK = 60

// DefaultMinScore is the fused-score floor below which an item is dropped.
const DefaultMinScore = 0.01

// Ranked is one item's position in a single source's ranked list.
type Ranked struct {
	ID    string
	Score float64 // the source's own score, carried through for display/tie-break
}

// List is one named, ranked source (e.g. "vector", "bm25").
type List struct {
	Source string
	Items  []Ranked
}

// Config parameterizes the fusion.
type Config struct {
	// K is the RRF smoothing constant. Non-positive falls back to DefaultK.
	K int
	// Weights maps a List's Source to its contribution weight. A source
	// absent from the map defaults to weight 1.0.
	Weights map[string]float64
	// MinScore drops fused items below this score. Zero falls back to
	// DefaultMinScore; a negative value disables the floor.
	MinScore float64
}

// DefaultConfig returns {K: 60, MinScore: 0.01, equal weights}.
func DefaultConfig() Config {
	return Config{K: DefaultK, MinScore: DefaultMinScore}
}

// Fused is one item's result after fusion.
type Fused struct {
	ID          string
	Score       float64            // fused RRF score, normalized 0-1
	SourceRanks map[string]int     // 1-indexed rank per source the item appeared in, absent if not present
	SourceScore map[string]float64 // the source's own score, for display/tie-break
	NumSources  int                // count of sources the item appeared in
}

// Fuse combines lists into one ranked, deduplicated-by-ID slice. Identity
// for grouping is Ranked.ID. An item contributes weight/(k+rank) only for
// lists it actually appears in; a list it is absent from contributes
// nothing.
func Fuse(lists []List, cfg Config) []Fused {
	if cfg.K <= 0 {
		cfg.K = DefaultK
	}
	minScore := cfg.MinScore
	if minScore == 0 {
		minScore = DefaultMinScore
	}

	items := map[string]*Fused{}
	order := []string{}

	weight := func(source string) float64 {
		if cfg.Weights != nil {
			if w, ok := cfg.Weights[source]; ok {
				return w
			}
		}
		return 1.0
	}

	for _, list := range lists {
		w := weight(list.Source)
		for rank, it := range list.Items {
			f, ok := items[it.ID]
			if !ok {
				f = &Fused{ID: it.ID, SourceRanks: map[string]int{}, SourceScore: map[string]float64{}}
				items[it.ID] = f
				order = append(order, it.ID)
			}
			f.SourceRanks[list.Source] = rank + 1
			f.SourceScore[list.Source] = it.Score
			f.NumSources++
			f.Score += w / float64(cfg.K+rank+1)
		}
	}

	results := make([]Fused, 0, len(order))
	for _, id := range order {
		results = append(results, *items[id])
	}

	sort.Slice(results, func(i, j int) bool {
		return less(results[i], results[j])
	})

	normalize(results)

	out := results[:0]
	for _, r := range results {
		if r.Score >= minScore {
			out = append(out, r)
		}
	}
	return out
}

// less implements the deterministic tie-break order: higher fused score
// first, then more source hits, then higher max per-source score, then
// lexicographic ID for a stable order.
func less(a, b Fused) bool {
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	if a.NumSources != b.NumSources {
		return a.NumSources > b.NumSources
	}
	if am, bm := maxScore(a), maxScore(b); am != bm {
		return am > bm
	}
	return a.ID < b.ID
}

func maxScore(f Fused) float64 {
	m := 0.0
	for _, s := range f.SourceScore {
		if s > m {
			m = s
		}
	}
	return m
}

// normalize scales fused scores to 0-1 using the maximum as reference.
func normalize(results []Fused) {
	if len(results) == 0 {
		return
	}
	max := 0.0
	for _, r := range results {
		if r.Score > max {
			max = r.Score
		}
	}
	if max == 0 {
		return
	}
	for i := range results {
		results[i].Score /= max
	}
}
